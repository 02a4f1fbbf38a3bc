package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kianmehr/campaign-gateway/internal/config"
	"github.com/kianmehr/campaign-gateway/internal/dispatch"
	"github.com/kianmehr/campaign-gateway/internal/handlers"
	"github.com/kianmehr/campaign-gateway/internal/repository"
	"github.com/kianmehr/campaign-gateway/internal/services"
	xhttp "github.com/kianmehr/campaign-gateway/pkg/http"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
	"github.com/kianmehr/campaign-gateway/pkg/pg"
	"github.com/kianmehr/campaign-gateway/pkg/prom"
	"github.com/kianmehr/campaign-gateway/pkg/redis"
	"github.com/kianmehr/campaign-gateway/pkg/worker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 30))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	if config.Get().AppDebugMetricsAddr != "" {
		host, _ := os.Hostname()
		if err := prom.Create(host, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
			logger.Error("failed creating metrics", "error", err)
		}
		go func() {
			prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
		}()
	}

	campaignRepo := repository.NewCampaignRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	sendLogRepo := repository.NewSendLogRepository(db)
	suppressionRepo := repository.NewSuppressionRepository(db)

	suppressionService := services.NewSuppressionService(suppressionRepo, redisAdap)
	if err := suppressionService.WarmCache(context.Background()); err != nil {
		logger.Warn("failed warming suppression cache", "error", err)
	}

	pool := worker.NewWorkerManager(
		config.Get().DispatchMaxConcurrentRuns,
		config.Get().DispatchMaxConcurrentRuns,
	)
	go func() {
		if err := pool.Start(); err != nil {
			logger.Info("dispatch worker pool stopped", "reason", err.Error())
		}
	}()

	limiter := dispatch.NewRateLimiter(accountRepo)
	progress := dispatch.NewProgressTracker(redisAdap, config.Get().ProgressMirrorTTL)
	dispatcher := dispatch.NewDispatcher(
		campaignRepo, recipientRepo, accountRepo, sendLogRepo, suppressionService,
		limiter, progress, pool, nil,
		dispatch.Options{
			MaxRetries:  config.Get().DispatchMaxRetries,
			RetryDelay:  config.Get().DispatchRetryDelay,
			SendTimeout: config.Get().DispatchSendTimeout,
		},
	)

	campaignService := services.NewCampaignService(
		campaignRepo, recipientRepo, sendLogRepo, suppressionService, accountRepo, dispatcher, nil)
	accountService := services.NewAccountService(accountRepo, nil)

	campaignHandler := handlers.NewCampaignHandler(campaignService)
	accountHandler := handlers.NewAccountHandler(accountService)
	suppressionHandler := handlers.NewSuppressionHandler(suppressionService)
	healthHandler := handlers.NewHealthHandler(nil)

	g := s.Router.Group("/api/v1")
	handlers.RegisterCampaignRoutes(g, campaignHandler)
	handlers.RegisterAccountRoutes(g, accountHandler)
	handlers.RegisterSuppressionRoutes(g, suppressionHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	logger.Info("starting campaign gateway", "version", version, "commit", commit, "built", date)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(config.Get().HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
	pool.Exit()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
