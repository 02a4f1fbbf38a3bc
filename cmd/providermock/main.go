package main

import (
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sendMailRequest mirrors the transactional API shape the gateway posts.
type sendMailRequest struct {
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations" binding:"required"`
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	Subject string `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func apiError(message string) errorResponse {
	var resp errorResponse
	resp.Errors = append(resp.Errors, struct {
		Message string `json:"message"`
	}{Message: message})
	return resp
}

// MockProvider simulates a transactional email provider for local load
// runs against the API gateways.
type MockProvider struct {
	acceptRate float64
	minDelay   time.Duration
	maxDelay   time.Duration
	serverID   string
	rng        *rand.Rand
}

func NewMockProvider(acceptRate float64, minDelay, maxDelay time.Duration) *MockProvider {
	return &MockProvider{
		acceptRate: acceptRate,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		serverID:   "MOCK_PROVIDER_" + uuid.New().String()[:8],
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockProvider) randomDelay() time.Duration {
	if m.maxDelay <= m.minDelay {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(m.maxDelay-m.minDelay)))
}

func (m *MockProvider) shouldAccept() bool {
	return m.rng.Float64() < m.acceptRate
}

// rejectionStatus picks the failure mode: mostly transient so retry
// behavior can be observed, occasionally permanent.
func (m *MockProvider) rejectionStatus() int {
	switch m.rng.Intn(4) {
	case 0:
		return http.StatusBadRequest
	case 1:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type Handler struct {
	provider *MockProvider
}

func NewHandler(provider *MockProvider) *Handler {
	return &Handler{provider: provider}
}

func (h *Handler) SendMail(c *gin.Context) {
	var req sendMailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError("invalid request: "+err.Error()))
		return
	}
	if len(req.Personalizations) == 0 || len(req.Personalizations[0].To) == 0 {
		c.JSON(http.StatusBadRequest, apiError("no recipient"))
		return
	}

	to := req.Personalizations[0].To[0].Email
	delay := h.provider.randomDelay()
	time.Sleep(delay)

	if !h.provider.shouldAccept() {
		status := h.provider.rejectionStatus()
		log.Warn().
			Str("to", to).
			Int("status", status).
			Msg("mail rejected")
		c.JSON(status, apiError("mail rejected by mock policy"))
		return
	}

	messageID := uuid.NewString()
	c.Header("X-Message-Id", messageID)

	log.Info().
		Str("to", to).
		Str("subject", req.Subject).
		Str("message_id", messageID).
		Dur("delay", delay).
		Msg("mail accepted")

	c.Status(http.StatusAccepted)
}

// GetProfile backs the gateway's connectivity probe.
func (h *Handler) GetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"username": "mock",
		"server":   h.provider.serverID,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"server_id":   h.provider.serverID,
		"accept_rate": h.provider.acceptRate,
		"timestamp":   time.Now(),
	})
}

// UpdateConfig changes the accept rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		AcceptRate *float64 `json:"accept_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, apiError("invalid request: "+err.Error()))
		return
	}
	if config.AcceptRate != nil && *config.AcceptRate >= 0 && *config.AcceptRate <= 1.0 {
		h.provider.acceptRate = *config.AcceptRate
		log.Info().Float64("rate", *config.AcceptRate).Msg("updated accept rate")
	}
	c.JSON(http.StatusOK, gin.H{"accept_rate": h.provider.acceptRate})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	v3 := router.Group("/v3")
	{
		v3.POST("/mail/send", handler.SendMail)
		v3.GET("/user/profile", handler.GetProfile)
	}
	router.PUT("/config", handler.UpdateConfig)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	acceptRate := getEnvFloat("ACCEPT_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 10*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 150*time.Millisecond)

	provider := NewMockProvider(acceptRate, minDelay, maxDelay)
	handler := NewHandler(provider)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info().
			Str("port", port).
			Float64("accept_rate", acceptRate).
			Str("server_id", provider.serverID).
			Msg("mock provider listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down mock provider")
	_ = srv.Close()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
