package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/kianmehr/campaign-gateway/internal/dispatch"
	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/internal/repository"
	"github.com/kianmehr/campaign-gateway/internal/services"
	xhttp "github.com/kianmehr/campaign-gateway/pkg/http"
)

type CampaignService interface {
	Create(ctx context.Context, p model.CampaignCreateRequest) (*model.Campaign, error)
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error)
	Delete(ctx context.Context, id int64) error
	Recipients(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error)
	RecipientCounts(ctx context.Context, campaignID int64) (map[model.RecipientStatus]int64, error)
	ImportRecipients(ctx context.Context, campaignID int64, data io.Reader) (*services.ImportSummary, error)
	Events(ctx context.Context, campaignID int64, f model.SendLogFilter) ([]*model.SendLogEntry, int64, error)
	ExportEvents(ctx context.Context, campaignID int64, w io.Writer) error
	Stats(ctx context.Context) (*model.CampaignStats, error)
	StartCampaign(ctx context.Context, campaignID, accountID int64) error
	PauseCampaign(campaignID int64) error
	GetProgress(ctx context.Context, campaignID int64) (*model.ProgressSnapshot, error)
	SendTest(ctx context.Context, p services.SendTestRequest) (*gateway.SendOutcome, error)
}

type CampaignHandler struct {
	svc CampaignService
}

func NewCampaignHandler(svc CampaignService) *CampaignHandler {
	return &CampaignHandler{svc: svc}
}

func RegisterCampaignRoutes(e *router.Group, h *CampaignHandler) {
	e.POST("/campaigns", h.CreateCampaign)
	e.GET("/campaigns", h.ListCampaigns)
	e.GET("/campaigns/{id}", h.GetCampaign)
	e.DELETE("/campaigns/{id}", h.DeleteCampaign)
	e.GET("/campaigns/{id}/recipients", h.ListRecipients)
	e.POST("/campaigns/{id}/recipients", h.ImportRecipients)
	e.POST("/campaigns/{id}/start", h.StartCampaign)
	e.POST("/campaigns/{id}/pause", h.PauseCampaign)
	e.GET("/campaigns/{id}/progress", h.GetProgress)
	e.GET("/campaigns/{id}/events", h.ListEvents)
	e.GET("/campaigns/{id}/export", h.ExportEvents)
	e.POST("/send-test", h.SendTest)
	e.GET("/stats", h.GetStats)
}

type campaignListResponse struct {
	Items []*model.Campaign `json:"items"`
	Total int64             `json:"total"`
}

type recipientListResponse struct {
	Items []*model.Recipient `json:"items"`
	Total int64              `json:"total"`
}

type eventListResponse struct {
	Items []*model.SendLogEntry `json:"items"`
	Total int64                 `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *CampaignHandler) CreateCampaign(ctx *xhttp.RequestCtx) {
	var req model.CampaignCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	c, err := h.svc.Create(ctx, req)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, c)
}

func (h *CampaignHandler) ListCampaigns(ctx *xhttp.RequestCtx) {
	var f model.CampaignFilter
	if v := query(ctx, "status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				f.Statuses = append(f.Statuses, model.CampaignStatus(part))
			}
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	f.Limit, f.Offset = pagination(ctx)
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, campaignListResponse{Items: items, Total: total})
}

func (h *CampaignHandler) GetCampaign(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
		return
	}
	c, err := h.svc.Get(ctx, id)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, c)
}

func (h *CampaignHandler) DeleteCampaign(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
		return
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	ctx.Response.SetStatusCode(xhttp.StatusNoContent)
}

func (h *CampaignHandler) ListRecipients(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
		return
	}
	f := model.RecipientFilter{CampaignID: &id}
	if v := query(ctx, "status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				f.Statuses = append(f.Statuses, model.RecipientStatus(part))
			}
		}
	}
	f.Limit, f.Offset = pagination(ctx)

	items, total, err := h.svc.Recipients(ctx, f)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, recipientListResponse{Items: items, Total: total})
}

// ImportRecipients takes the raw CSV as the request body.
func (h *CampaignHandler) ImportRecipients(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
		return
	}
	summary, err := h.svc.ImportRecipients(ctx, id, bytes.NewReader(ctx.PostBody()))
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, summary)
}

func (h *CampaignHandler) StartCampaign(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
		return
	}
	accountID, err := strconv.ParseInt(query(ctx, "account_id"), 10, 64)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "account_id is required")
		return
	}
	if err := h.svc.StartCampaign(ctx, id, accountID); err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]string{"status": string(model.CampaignStatusSending)})
}

func (h *CampaignHandler) PauseCampaign(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
		return
	}
	if err := h.svc.PauseCampaign(id); err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]string{"status": string(model.CampaignStatusPaused)})
}

func (h *CampaignHandler) GetProgress(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
		return
	}
	snap, err := h.svc.GetProgress(ctx, id)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, snap)
}

func (h *CampaignHandler) ListEvents(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
		return
	}
	var f model.SendLogFilter
	if v := query(ctx, "status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				f.Statuses = append(f.Statuses, part)
			}
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	f.Limit, f.Offset = pagination(ctx)
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.Events(ctx, id, f)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, eventListResponse{Items: items, Total: total})
}

func (h *CampaignHandler) ExportEvents(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportEvents(ctx, id, &buf); err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	ctx.Response.Header.Set("Content-Type", "text/csv; charset=utf-8")
	ctx.Response.Header.Set("Content-Disposition",
		`attachment; filename="campaign-`+strconv.FormatInt(id, 10)+`-events.csv"`)
	ctx.Response.SetStatusCode(xhttp.StatusOK)
	ctx.Response.SetBodyRaw(buf.Bytes())
}

func (h *CampaignHandler) SendTest(ctx *xhttp.RequestCtx) {
	var req services.SendTestRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	outcome, err := h.svc.SendTest(ctx, req)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, outcome)
}

func (h *CampaignHandler) GetStats(ctx *xhttp.RequestCtx) {
	stats, err := h.svc.Stats(ctx)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, stats)
}

/* -------------------------------- Helpers ----------------------------------- */

// statusFor maps service and repository sentinels onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrRecipientNotFound),
		errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrSuppressionNotFound),
		errors.Is(err, dispatch.ErrProviderNotFound):
		return xhttp.StatusNotFound
	case errors.Is(err, dispatch.ErrAlreadySending),
		errors.Is(err, dispatch.ErrNotStartable),
		errors.Is(err, repository.ErrStatusConflict):
		return xhttp.StatusConflict
	case errors.Is(err, dispatch.ErrCapacity):
		return xhttp.StatusServiceUnavailable
	case errors.Is(err, services.ErrAccountDisabled):
		return xhttp.StatusUnprocessableEntity
	default:
		return xhttp.StatusBadRequest
	}
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.ParseInt(v, 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func pagination(ctx *xhttp.RequestCtx) (limit, offset int) {
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			offset = n
		}
	}
	return limit, offset
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
