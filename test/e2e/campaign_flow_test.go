package e2e

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kianmehr/campaign-gateway/internal/dispatch"
	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/internal/repository"
	"github.com/kianmehr/campaign-gateway/internal/services"
	"github.com/kianmehr/campaign-gateway/pkg/pg"
	"github.com/kianmehr/campaign-gateway/pkg/redis"
	"github.com/kianmehr/campaign-gateway/pkg/worker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testDB = pg.DB

// scriptedGateway succeeds for every recipient unless an outcome has been
// scripted for that address. It records what it was asked to send.
type scriptedGateway struct {
	mu       sync.Mutex
	scripted map[string]gateway.SendOutcome
	sent     []string
	subjects map[string]string
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{
		scripted: make(map[string]gateway.SendOutcome),
		subjects: make(map[string]string),
	}
}

func (g *scriptedGateway) Send(_ context.Context, req *gateway.SendRequest) *gateway.SendOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subjects[req.To] = req.Subject
	if out, ok := g.scripted[req.To]; ok {
		out.Recipient = req.To
		out.Timestamp = time.Now()
		return &out
	}
	g.sent = append(g.sent, req.To)
	return &gateway.SendOutcome{
		Success:   true,
		MessageID: fmt.Sprintf("e2e-%d", len(g.sent)),
		Provider:  "sendgrid",
		Recipient: req.To,
		Response:  "202 Accepted",
		Kind:      gateway.KindNone,
		Timestamp: time.Now(),
	}
}

func (g *scriptedGateway) TestConnection(_ context.Context) *gateway.ConnectivityResult {
	return &gateway.ConnectivityResult{Success: true, Provider: "sendgrid"}
}

func (g *scriptedGateway) Name() string { return "sendgrid" }

func (g *scriptedGateway) delivered() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.sent...)
}

func (g *scriptedGateway) subjectFor(email string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subjects[email]
}

type TestEnvironment struct {
	DB                 *pg.DB
	Redis              *miniredis.Miniredis
	RedisAdapter       redis.RedisAdapter
	Pool               *worker.WorkerManager
	CampaignRepo       *repository.CampaignRepository
	RecipientRepo      *repository.RecipientRepository
	AccountRepo        *repository.AccountRepository
	SendLogRepo        *repository.SendLogRepository
	SuppressionRepo    *repository.SuppressionRepository
	SuppressionService *services.SuppressionService
	Dispatcher         *dispatch.Dispatcher
	CampaignService    *services.CampaignService
	Gateway            *scriptedGateway
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.CampaignEntity{},
		&repository.RecipientEntity{},
		&repository.ProviderAccountEntity{},
		&repository.SendLogEntryEntity{},
		&repository.SuppressionEntity{},
	)
	require.NoError(t, err)

	pgDB := &testDB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Unique connection name per test to avoid the global adapter cache
	connName := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	redisAdapter, err := redis.NewRedisAdapter(connName, "e2e:", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	campaignRepo := repository.NewCampaignRepository(pgDB)
	recipientRepo := repository.NewRecipientRepository(pgDB)
	accountRepo := repository.NewAccountRepository(pgDB)
	sendLogRepo := repository.NewSendLogRepository(pgDB)
	suppressionRepo := repository.NewSuppressionRepository(pgDB)

	suppressionService := services.NewSuppressionService(suppressionRepo, redisAdapter)

	pool := worker.NewWorkerManager(4, 2)
	go pool.Start()

	gw := newScriptedGateway()
	factory := func(_ *model.ProviderAccount) (gateway.EmailGateway, error) {
		return gw, nil
	}

	dispatcher := dispatch.NewDispatcher(
		campaignRepo,
		recipientRepo,
		accountRepo,
		sendLogRepo,
		suppressionService,
		dispatch.NewRateLimiter(accountRepo),
		dispatch.NewProgressTracker(redisAdapter, time.Hour),
		pool,
		factory,
		dispatch.Options{MaxRetries: 3, RetryDelay: time.Millisecond, SendTimeout: time.Second},
	)

	campaignService := services.NewCampaignService(
		campaignRepo,
		recipientRepo,
		sendLogRepo,
		suppressionService,
		accountRepo,
		dispatcher,
		factory,
	)

	return &TestEnvironment{
		DB:                 pgDB,
		Redis:              mr,
		RedisAdapter:       redisAdapter,
		Pool:               pool,
		CampaignRepo:       campaignRepo,
		RecipientRepo:      recipientRepo,
		AccountRepo:        accountRepo,
		SendLogRepo:        sendLogRepo,
		SuppressionRepo:    suppressionRepo,
		SuppressionService: suppressionService,
		Dispatcher:         dispatcher,
		CampaignService:    campaignService,
		Gateway:            gw,
	}
}

func (env *TestEnvironment) Cleanup() {
	env.Pool.Exit()
	// Give in-flight status updates time to land before tearing down redis
	time.Sleep(100 * time.Millisecond)
	if env.Redis != nil {
		env.Redis.Close()
	}
}

func (env *TestEnvironment) createAccount(t *testing.T) *model.ProviderAccount {
	account, err := env.AccountRepo.Create(context.Background(), &model.ProviderAccount{
		Name:         "sendgrid main",
		Kind:         model.AccountKindAPI,
		ProviderType: model.ProviderTypeSendgrid,
		APIKey:       "SG.e2e",
		FromEmail:    "news@corp.example",
		FromName:     "Corp News",
		Enabled:      true,
	})
	require.NoError(t, err)
	return account
}

func (env *TestEnvironment) waitForStatus(t *testing.T, campaignID int64, want model.CampaignStatus) *model.Campaign {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c, err := env.CampaignRepo.Get(context.Background(), campaignID)
		require.NoError(t, err)
		if c.Status == want {
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("campaign %d never reached status %q", campaignID, want)
	return nil
}

func TestE2E_CampaignDispatchFlow(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	account := env.createAccount(t)

	_, err := env.SuppressionService.Add(ctx, model.SuppressionCreateRequest{
		Email:  "blocked@example.com",
		Reason: "unsubscribed",
	})
	require.NoError(t, err)

	campaign, err := env.CampaignService.Create(ctx, model.CampaignCreateRequest{
		Name:     "March newsletter",
		Subject:  "Hello {{first_name}}",
		BodyHTML: "<p>News for {{first_name}} {{last_name}}</p>",
		BodyText: "News for {{first_name}}",
	})
	require.NoError(t, err)

	csv := strings.Join([]string{
		"email,first_name,last_name,company",
		"ada@example.com,Ada,Lovelace,Initech",
		"bob@example.com,Bob,,",
		"carol@example.com,Carol,,",
		"blocked@example.com,Blocked,,",
	}, "\n")

	summary, err := env.CampaignService.ImportRecipients(ctx, campaign.ID, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Imported)
	assert.Equal(t, 1, summary.Suppressed)

	require.NoError(t, env.CampaignService.StartCampaign(ctx, campaign.ID, account.ID))

	done := env.waitForStatus(t, campaign.ID, model.CampaignStatusCompleted)
	assert.Equal(t, 3, done.TotalRecipients)
	assert.Equal(t, 3, done.SentCount)
	assert.Equal(t, 0, done.FailedCount)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)

	assert.ElementsMatch(t,
		[]string{"ada@example.com", "bob@example.com", "carol@example.com"},
		env.Gateway.delivered())
	assert.Equal(t, "Hello Ada", env.Gateway.subjectFor("ada@example.com"))

	recipients, _, err := env.RecipientRepo.List(ctx, model.RecipientFilter{CampaignID: &campaign.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, recipients, 3)
	for _, rec := range recipients {
		assert.Equal(t, model.RecipientStatusSent, rec.Status)
		assert.NotEmpty(t, rec.MessageID)
		assert.Equal(t, "sendgrid", rec.ProviderType)
		assert.NotNil(t, rec.SentAt)
	}

	_, total, err := env.SendLogRepo.List(ctx, model.SendLogFilter{CampaignID: &campaign.ID, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	// The run is over, so this snapshot comes from the redis mirror
	progress, err := env.CampaignService.GetProgress(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Sent)
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 0, progress.Failed)
}

func TestE2E_TransientFailureIsRetriedThenRecorded(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	account := env.createAccount(t)

	env.Gateway.scripted["bob@example.com"] = gateway.SendOutcome{
		Success:  false,
		Provider: "sendgrid",
		Response: "451",
		Error:    "451 4.7.1 greylisted, try again later",
		Kind:     gateway.KindTransient,
	}

	campaign, err := env.CampaignService.Create(ctx, model.CampaignCreateRequest{
		Name:    "Flaky provider",
		Subject: "Subject",
	})
	require.NoError(t, err)

	csv := "email\nada@example.com\nbob@example.com\n"
	summary, err := env.CampaignService.ImportRecipients(ctx, campaign.ID, strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, 2, summary.Imported)

	require.NoError(t, env.CampaignService.StartCampaign(ctx, campaign.ID, account.ID))

	done := env.waitForStatus(t, campaign.ID, model.CampaignStatusCompleted)
	assert.Equal(t, 1, done.SentCount)
	assert.Equal(t, 1, done.FailedCount)

	email := "bob@example.com"
	recipients, _, err := env.RecipientRepo.List(ctx, model.RecipientFilter{CampaignID: &campaign.ID, Email: &email, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, model.RecipientStatusFailed, recipients[0].Status)
	assert.Equal(t, 2, recipients[0].RetryCount)
	assert.Contains(t, recipients[0].ErrorMessage, "451")

	counts, err := env.CampaignService.RecipientCounts(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.RecipientStatusSent])
	assert.Equal(t, int64(1), counts[model.RecipientStatusFailed])
}

func TestE2E_AuthFailureAbortsRun(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	account := env.createAccount(t)

	for _, email := range []string{"ada@example.com", "bob@example.com"} {
		env.Gateway.scripted[email] = gateway.SendOutcome{
			Success:  false,
			Provider: "sendgrid",
			Response: "401",
			Error:    "401 unauthorized",
			Kind:     gateway.KindAuth,
		}
	}

	campaign, err := env.CampaignService.Create(ctx, model.CampaignCreateRequest{
		Name:    "Revoked key",
		Subject: "Subject",
	})
	require.NoError(t, err)

	_, err = env.CampaignService.ImportRecipients(ctx, campaign.ID,
		strings.NewReader("email\nada@example.com\nbob@example.com\n"))
	require.NoError(t, err)

	require.NoError(t, env.CampaignService.StartCampaign(ctx, campaign.ID, account.ID))

	done := env.waitForStatus(t, campaign.ID, model.CampaignStatusFailed)
	assert.Equal(t, 0, done.SentCount)

	counts, err := env.CampaignService.RecipientCounts(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.RecipientStatusFailed])
	assert.Equal(t, int64(1), counts[model.RecipientStatusPending])
}
