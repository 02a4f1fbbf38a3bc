package handlers

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/kianmehr/campaign-gateway/internal/dispatch"
	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/internal/repository"
	"github.com/kianmehr/campaign-gateway/internal/services"
	xhttp "github.com/kianmehr/campaign-gateway/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockCampaignService struct {
	mock.Mock
}

func (m *MockCampaignService) Create(ctx context.Context, p model.CampaignCreateRequest) (*model.Campaign, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignService) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignService) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Campaign), args.Get(1).(int64), args.Error(2)
}

func (m *MockCampaignService) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCampaignService) Recipients(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Recipient), args.Get(1).(int64), args.Error(2)
}

func (m *MockCampaignService) RecipientCounts(ctx context.Context, campaignID int64) (map[model.RecipientStatus]int64, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.RecipientStatus]int64), args.Error(1)
}

func (m *MockCampaignService) ImportRecipients(ctx context.Context, campaignID int64, data io.Reader) (*services.ImportSummary, error) {
	args := m.Called(ctx, campaignID, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ImportSummary), args.Error(1)
}

func (m *MockCampaignService) Events(ctx context.Context, campaignID int64, f model.SendLogFilter) ([]*model.SendLogEntry, int64, error) {
	args := m.Called(ctx, campaignID, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.SendLogEntry), args.Get(1).(int64), args.Error(2)
}

func (m *MockCampaignService) ExportEvents(ctx context.Context, campaignID int64, w io.Writer) error {
	args := m.Called(ctx, campaignID, w)
	if args.Error(0) == nil {
		_, _ = w.Write([]byte("log_id,recipient_id\n1,11\n"))
	}
	return args.Error(0)
}

func (m *MockCampaignService) Stats(ctx context.Context) (*model.CampaignStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CampaignStats), args.Error(1)
}

func (m *MockCampaignService) StartCampaign(ctx context.Context, campaignID, accountID int64) error {
	args := m.Called(ctx, campaignID, accountID)
	return args.Error(0)
}

func (m *MockCampaignService) PauseCampaign(campaignID int64) error {
	args := m.Called(campaignID)
	return args.Error(0)
}

func (m *MockCampaignService) GetProgress(ctx context.Context, campaignID int64) (*model.ProgressSnapshot, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProgressSnapshot), args.Error(1)
}

func (m *MockCampaignService) SendTest(ctx context.Context, p services.SendTestRequest) (*gateway.SendOutcome, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendOutcome), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func TestCampaignHandler_CreateCampaign(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		body, _ := json.Marshal(model.CampaignCreateRequest{
			Name: "spring launch", Subject: "Hi", BodyHTML: "<p>hi</p>",
		})
		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.CampaignCreateRequest) bool {
			return p.Name == "spring launch"
		})).Return(&model.Campaign{ID: 1, Name: "spring launch", Status: model.CampaignStatusDraft}, nil)

		ctx := setupTestContext("POST", "/api/v1/campaigns", body)
		handler.CreateCampaign(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())
		var response model.Campaign
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, int64(1), response.ID)
		assert.Equal(t, model.CampaignStatusDraft, response.Status)
		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		ctx := setupTestContext("POST", "/api/v1/campaigns", []byte("not json"))
		handler.CreateCampaign(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestCampaignHandler_StartCampaign(t *testing.T) {
	t.Run("started", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)
		svc.On("StartCampaign", mock.Anything, int64(5), int64(2)).Return(nil)

		ctx := setupTestContext("POST", "/api/v1/campaigns/5/start?account_id=2", nil)
		ctx.SetUserValue("id", "5")
		handler.StartCampaign(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"status":"sending"}`, string(ctx.Response.Body()))
	})

	t.Run("missing account_id", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)

		ctx := setupTestContext("POST", "/api/v1/campaigns/5/start", nil)
		ctx.SetUserValue("id", "5")
		handler.StartCampaign(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("already sending maps to conflict", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)
		svc.On("StartCampaign", mock.Anything, int64(5), int64(2)).Return(dispatch.ErrAlreadySending)

		ctx := setupTestContext("POST", "/api/v1/campaigns/5/start?account_id=2", nil)
		ctx.SetUserValue("id", "5")
		handler.StartCampaign(ctx)

		assert.Equal(t, 409, ctx.Response.StatusCode())
	})

	t.Run("missing campaign maps to 404", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)
		svc.On("StartCampaign", mock.Anything, int64(5), int64(2)).Return(repository.ErrNotFound)

		ctx := setupTestContext("POST", "/api/v1/campaigns/5/start?account_id=2", nil)
		ctx.SetUserValue("id", "5")
		handler.StartCampaign(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("full pool maps to 503", func(t *testing.T) {
		svc := new(MockCampaignService)
		handler := NewCampaignHandler(svc)
		svc.On("StartCampaign", mock.Anything, int64(5), int64(2)).Return(dispatch.ErrCapacity)

		ctx := setupTestContext("POST", "/api/v1/campaigns/5/start?account_id=2", nil)
		ctx.SetUserValue("id", "5")
		handler.StartCampaign(ctx)

		assert.Equal(t, 503, ctx.Response.StatusCode())
	})
}

func TestCampaignHandler_PauseCampaign(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)
	svc.On("PauseCampaign", int64(5)).Return(nil)

	ctx := setupTestContext("POST", "/api/v1/campaigns/5/pause", nil)
	ctx.SetUserValue("id", "5")
	handler.PauseCampaign(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"status":"paused"}`, string(ctx.Response.Body()))
}

func TestCampaignHandler_ImportRecipients(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)

	svc.On("ImportRecipients", mock.Anything, int64(5), mock.Anything).
		Return(&services.ImportSummary{Imported: 3, Duplicates: 1}, nil)

	csv := []byte("email\na@example.com\nb@example.com\nc@example.com\na@example.com\n")
	ctx := setupTestContext("POST", "/api/v1/campaigns/5/recipients", csv)
	ctx.SetUserValue("id", "5")
	handler.ImportRecipients(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var summary services.ImportSummary
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &summary))
	assert.Equal(t, 3, summary.Imported)
	assert.Equal(t, 1, summary.Duplicates)
}

func TestCampaignHandler_GetProgress(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)

	svc.On("GetProgress", mock.Anything, int64(5)).Return(&model.ProgressSnapshot{
		CampaignID: 5, Sent: 40, Failed: 2, Total: 100, Rate: 12.5, ETA: "4m 38s",
	}, nil)

	ctx := setupTestContext("GET", "/api/v1/campaigns/5/progress", nil)
	ctx.SetUserValue("id", "5")
	handler.GetProgress(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var snap model.ProgressSnapshot
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &snap))
	assert.Equal(t, 40, snap.Sent)
	assert.Equal(t, "4m 38s", snap.ETA)
}

func TestCampaignHandler_ListEvents(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)

	svc.On("Events", mock.Anything, int64(5), mock.MatchedBy(func(f model.SendLogFilter) bool {
		return f.Limit == 10 && len(f.Statuses) == 1 && f.Statuses[0] == "failed"
	})).Return([]*model.SendLogEntry{{ID: 1, Status: "failed"}}, int64(1), nil)

	ctx := setupTestContext("GET", "/api/v1/campaigns/5/events?status=failed&limit=10", nil)
	ctx.SetUserValue("id", "5")
	handler.ListEvents(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var response eventListResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, int64(1), response.Total)
}

func TestCampaignHandler_ExportEvents(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)
	svc.On("ExportEvents", mock.Anything, int64(5), mock.Anything).Return(nil)

	ctx := setupTestContext("GET", "/api/v1/campaigns/5/export", nil)
	ctx.SetUserValue("id", "5")
	handler.ExportEvents(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, "text/csv; charset=utf-8", string(ctx.Response.Header.Peek("Content-Type")))
	assert.Contains(t, string(ctx.Response.Header.Peek("Content-Disposition")), "campaign-5-events.csv")
	assert.Contains(t, string(ctx.Response.Body()), "log_id")
}

func TestCampaignHandler_DeleteCampaign(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)
	svc.On("Delete", mock.Anything, int64(5)).Return(nil)

	ctx := setupTestContext("DELETE", "/api/v1/campaigns/5", nil)
	ctx.SetUserValue("id", "5")
	handler.DeleteCampaign(ctx)

	assert.Equal(t, 204, ctx.Response.StatusCode())
}

func TestCampaignHandler_SendTest(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)

	body, _ := json.Marshal(services.SendTestRequest{
		AccountID: 2, To: "qa@example.com", Subject: "Hi", BodyHTML: "<p>hi</p>",
	})
	svc.On("SendTest", mock.Anything, mock.MatchedBy(func(p services.SendTestRequest) bool {
		return p.AccountID == 2 && p.To == "qa@example.com"
	})).Return(&gateway.SendOutcome{Success: true, MessageID: "m-1", Provider: "sendgrid"}, nil)

	ctx := setupTestContext("POST", "/api/v1/send-test", body)
	handler.SendTest(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var outcome gateway.SendOutcome
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &outcome))
	assert.True(t, outcome.Success)
	assert.Equal(t, "m-1", outcome.MessageID)
}

func TestCampaignHandler_GetStats(t *testing.T) {
	svc := new(MockCampaignService)
	handler := NewCampaignHandler(svc)

	svc.On("Stats", mock.Anything).Return(&model.CampaignStats{
		Campaigns: 4, ActiveCampaigns: 1, Recipients: 1000, Sent: 750, Failed: 10, Suppressed: 25,
	}, nil)

	ctx := setupTestContext("GET", "/api/v1/stats", nil)
	handler.GetStats(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var stats model.CampaignStats
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &stats))
	assert.Equal(t, int64(750), stats.Sent)
}
