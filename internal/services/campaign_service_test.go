package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Campaign), args.Get(1).(int64), args.Error(2)
}

func (m *MockCampaignRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCampaignRepository) RefreshTotal(ctx context.Context, id int64) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockCampaignRepository) Stats(ctx context.Context) (*model.CampaignStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CampaignStats), args.Error(1)
}

type MockRecipientRepository struct {
	mock.Mock
}

func (m *MockRecipientRepository) BatchCreate(ctx context.Context, recs []*model.Recipient) (int, error) {
	args := m.Called(ctx, recs)
	return args.Int(0), args.Error(1)
}

func (m *MockRecipientRepository) List(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Recipient), args.Get(1).(int64), args.Error(2)
}

func (m *MockRecipientRepository) EmailsByCampaign(ctx context.Context, campaignID int64) (map[string]struct{}, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *MockRecipientRepository) CountByStatus(ctx context.Context, campaignID int64) (map[model.RecipientStatus]int64, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.RecipientStatus]int64), args.Error(1)
}

type MockSendLogRepository struct {
	mock.Mock
}

func (m *MockSendLogRepository) List(ctx context.Context, f model.SendLogFilter) ([]*model.SendLogEntry, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.SendLogEntry), args.Get(1).(int64), args.Error(2)
}

func (m *MockSendLogRepository) GetCampaignWithLogs(ctx context.Context, campaignID int64) (*model.CampaignWithSendLogs, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CampaignWithSendLogs), args.Error(1)
}

type MockSuppressionLookup struct {
	mock.Mock
}

func (m *MockSuppressionLookup) IsSuppressed(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

type MockAccountLookup struct {
	mock.Mock
}

func (m *MockAccountLookup) Get(ctx context.Context, id int64) (*model.ProviderAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderAccount), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Start(ctx context.Context, campaignID, accountID int64) error {
	args := m.Called(ctx, campaignID, accountID)
	return args.Error(0)
}

func (m *MockDispatcher) Pause(campaignID int64) error {
	args := m.Called(campaignID)
	return args.Error(0)
}

func (m *MockDispatcher) Stop(campaignID int64) {
	m.Called(campaignID)
}

func (m *MockDispatcher) Active(campaignID int64) bool {
	args := m.Called(campaignID)
	return args.Bool(0)
}

func (m *MockDispatcher) Progress(campaignID int64) *model.ProgressSnapshot {
	args := m.Called(campaignID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*model.ProgressSnapshot)
}

type stubGateway struct {
	lastRequest  *gateway.SendRequest
	outcome      *gateway.SendOutcome
	connectivity *gateway.ConnectivityResult
}

func (g *stubGateway) Send(_ context.Context, req *gateway.SendRequest) *gateway.SendOutcome {
	g.lastRequest = req
	if g.outcome != nil {
		return g.outcome
	}
	return &gateway.SendOutcome{Success: true, MessageID: "stub-1", Provider: "stub", Recipient: req.To}
}

func (g *stubGateway) TestConnection(_ context.Context) *gateway.ConnectivityResult {
	if g.connectivity != nil {
		return g.connectivity
	}
	return &gateway.ConnectivityResult{Success: true, Provider: "stub"}
}

func (g *stubGateway) Name() string { return "stub" }

type campaignServiceMocks struct {
	campaigns    *MockCampaignRepository
	recipients   *MockRecipientRepository
	logs         *MockSendLogRepository
	suppressions *MockSuppressionLookup
	accounts     *MockAccountLookup
	dispatcher   *MockDispatcher
	gateway      *stubGateway
}

func newCampaignService() (*CampaignService, *campaignServiceMocks) {
	m := &campaignServiceMocks{
		campaigns:    new(MockCampaignRepository),
		recipients:   new(MockRecipientRepository),
		logs:         new(MockSendLogRepository),
		suppressions: new(MockSuppressionLookup),
		accounts:     new(MockAccountLookup),
		dispatcher:   new(MockDispatcher),
		gateway:      &stubGateway{},
	}
	svc := NewCampaignService(m.campaigns, m.recipients, m.logs, m.suppressions, m.accounts, m.dispatcher,
		func(*model.ProviderAccount) (gateway.EmailGateway, error) { return m.gateway, nil })
	return svc, m
}

func TestCampaignService_Create(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	m.campaigns.On("Create", ctx, mock.MatchedBy(func(c *model.Campaign) bool {
		return c.Name == "welcome" && c.Status == model.CampaignStatusDraft
	})).Return(&model.Campaign{ID: 7, Name: "welcome", Status: model.CampaignStatusDraft}, nil)

	created, err := svc.Create(ctx, model.CampaignCreateRequest{
		Name:     "welcome",
		Subject:  "Hi",
		BodyHTML: "<p>hi</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.ID)
	m.campaigns.AssertExpectations(t)
}

func TestCampaignService_CreateValidation(t *testing.T) {
	svc, _ := newCampaignService()

	_, err := svc.Create(context.Background(), model.CampaignCreateRequest{Subject: "Hi", BodyHTML: "x"})
	assert.EqualError(t, err, "name is required")

	_, err = svc.Create(context.Background(), model.CampaignCreateRequest{Name: "x", Subject: "Hi"})
	assert.EqualError(t, err, "body_html or body_text is required")
}

func TestCampaignService_DeleteStopsActiveRun(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	m.dispatcher.On("Stop", int64(3)).Return()
	m.campaigns.On("Delete", ctx, int64(3)).Return(nil)

	require.NoError(t, svc.Delete(ctx, 3))
	m.dispatcher.AssertExpectations(t)
	m.campaigns.AssertExpectations(t)
}

func TestCampaignService_ImportRecipients(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	m.campaigns.On("Get", ctx, int64(1)).Return(&model.Campaign{ID: 1}, nil)
	m.recipients.On("EmailsByCampaign", ctx, int64(1)).
		Return(map[string]struct{}{"bob@example.com": {}}, nil)
	m.suppressions.On("IsSuppressed", ctx, "carol@example.com").Return(true, nil)
	m.suppressions.On("IsSuppressed", ctx, mock.Anything).Return(false, nil)

	var inserted []*model.Recipient
	m.recipients.On("BatchCreate", ctx, mock.MatchedBy(func(recs []*model.Recipient) bool {
		inserted = recs
		return true
	})).Return(2, nil)
	m.campaigns.On("RefreshTotal", ctx, int64(1)).Return(3, nil)

	input := strings.Join([]string{
		"email,first_name,last_name,company",
		"Ada@Example.com,Ada,Lovelace,Initech",
		"bob@example.com,Bob,,",
		"carol@example.com,Carol,,",
		"not-an-email,Nope,,",
		"dave@example.com,Dave,Jones,Globex",
	}, "\n")

	summary, err := svc.ImportRecipients(ctx, 1, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 1, summary.Suppressed)
	assert.Equal(t, 1, summary.Invalid)

	require.Len(t, inserted, 2)
	assert.Equal(t, "ada@example.com", inserted[0].Email)
	assert.Equal(t, "Ada", inserted[0].FirstName)
	assert.Equal(t, "Lovelace", inserted[0].LastName)
	assert.JSONEq(t, `{"company":"Initech"}`, inserted[0].CustomFields)
	assert.Equal(t, model.RecipientStatusPending, inserted[0].Status)
	assert.Equal(t, "dave@example.com", inserted[1].Email)

	m.recipients.AssertExpectations(t)
	m.campaigns.AssertExpectations(t)
}

func TestCampaignService_ImportDedupesWithinFile(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	m.campaigns.On("Get", ctx, int64(1)).Return(&model.Campaign{ID: 1}, nil)
	m.recipients.On("EmailsByCampaign", ctx, int64(1)).Return(map[string]struct{}{}, nil)
	m.suppressions.On("IsSuppressed", ctx, mock.Anything).Return(false, nil)
	m.recipients.On("BatchCreate", ctx, mock.MatchedBy(func(recs []*model.Recipient) bool {
		return len(recs) == 1
	})).Return(1, nil)
	m.campaigns.On("RefreshTotal", ctx, int64(1)).Return(1, nil)

	input := "email\nsame@example.com\nSAME@example.com\n"
	summary, err := svc.ImportRecipients(ctx, 1, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Duplicates)
}

func TestCampaignService_ImportRejectsHeaderWithoutEmail(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	m.campaigns.On("Get", ctx, int64(1)).Return(&model.Campaign{ID: 1}, nil)

	_, err := svc.ImportRecipients(ctx, 1, strings.NewReader("name,phone\nAda,123\n"))
	assert.ErrorIs(t, err, ErrMissingEmailCol)
}

func TestCampaignService_ImportEmptyBody(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	m.campaigns.On("Get", ctx, int64(1)).Return(&model.Campaign{ID: 1}, nil)

	_, err := svc.ImportRecipients(ctx, 1, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyImport)
}

func TestCampaignService_EventsScopesFilterToCampaign(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	m.campaigns.On("Get", ctx, int64(9)).Return(&model.Campaign{ID: 9}, nil)
	m.logs.On("List", ctx, mock.MatchedBy(func(f model.SendLogFilter) bool {
		return f.CampaignID != nil && *f.CampaignID == 9 && f.Limit == 20
	})).Return([]*model.SendLogEntry{{ID: 1, CampaignID: 9}}, int64(1), nil)

	entries, total, err := svc.Events(ctx, 9, model.SendLogFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, entries, 1)
}

func TestCampaignService_ExportEvents(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	when := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	m.logs.On("GetCampaignWithLogs", ctx, int64(5)).Return(&model.CampaignWithSendLogs{
		ID:   5,
		Name: "spring",
		SendLogs: []*model.SendLogEntry{
			{ID: 1, RecipientID: 11, ProviderType: "sendgrid", Status: "sent", MessageID: "m-1", Response: "accepted", Timestamp: when},
			{ID: 2, RecipientID: 12, ProviderType: "sendgrid", Status: "failed", Response: "550 no such user", Timestamp: when},
		},
	}, nil)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportEvents(ctx, 5, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "log_id,recipient_id,provider,status,message_id,response,timestamp", lines[0])
	assert.Equal(t, "1,11,sendgrid,sent,m-1,accepted,2025-03-01T10:30:00Z", lines[1])
	assert.Contains(t, lines[2], "550 no such user")
}

func TestCampaignService_GetProgress(t *testing.T) {
	t.Run("live run wins", func(t *testing.T) {
		svc, m := newCampaignService()
		live := &model.ProgressSnapshot{CampaignID: 4, Sent: 10, Total: 20, Rate: 5, ETA: "2m 0s"}
		m.dispatcher.On("Progress", int64(4)).Return(live)

		snap, err := svc.GetProgress(context.Background(), 4)
		require.NoError(t, err)
		assert.Equal(t, live, snap)
	})

	t.Run("falls back to stored counters", func(t *testing.T) {
		svc, m := newCampaignService()
		ctx := context.Background()
		m.dispatcher.On("Progress", int64(4)).Return(nil)
		m.campaigns.On("Get", ctx, int64(4)).Return(&model.Campaign{
			ID: 4, SentCount: 8, FailedCount: 2, TotalRecipients: 10,
		}, nil)

		snap, err := svc.GetProgress(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, 8, snap.Sent)
		assert.Equal(t, 2, snap.Failed)
		assert.Equal(t, 10, snap.Total)
		assert.Zero(t, snap.Rate)
	})
}

func TestCampaignService_SendTest(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	m.accounts.On("Get", ctx, int64(2)).Return(&model.ProviderAccount{ID: 2, Enabled: true}, nil)

	outcome, err := svc.SendTest(ctx, SendTestRequest{
		AccountID: 2,
		To:        "qa@example.com",
		Subject:   "Hello {{first_name}}",
		BodyHTML:  "<p>Hi {{first_name}}</p>",
		Data:      map[string]string{"first_name": "QA"},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "Hello QA", m.gateway.lastRequest.Subject)
	assert.Equal(t, "<p>Hi QA</p>", m.gateway.lastRequest.HTML)
}

func TestCampaignService_SendTestDisabledAccount(t *testing.T) {
	svc, m := newCampaignService()
	ctx := context.Background()

	m.accounts.On("Get", ctx, int64(2)).Return(&model.ProviderAccount{ID: 2}, nil)

	_, err := svc.SendTest(ctx, SendTestRequest{
		AccountID: 2, To: "qa@example.com", Subject: "x", BodyHTML: "y",
	})
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestCampaignService_SendTestValidation(t *testing.T) {
	svc, _ := newCampaignService()

	_, err := svc.SendTest(context.Background(), SendTestRequest{To: "qa@example.com", Subject: "x", BodyHTML: "y"})
	assert.EqualError(t, err, "account_id is required")

	_, err = svc.SendTest(context.Background(), SendTestRequest{AccountID: 1, To: "nope", Subject: "x", BodyHTML: "y"})
	assert.EqualError(t, err, "to address is malformed")
}
