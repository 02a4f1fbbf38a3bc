package handlers

import (
	"bytes"
	"context"
	"io"

	"github.com/fasthttp/router"
	"github.com/kianmehr/campaign-gateway/internal/model"
	xhttp "github.com/kianmehr/campaign-gateway/pkg/http"
)

type SuppressionService interface {
	Add(ctx context.Context, p model.SuppressionCreateRequest) (*model.Suppression, error)
	Remove(ctx context.Context, email string) error
	List(ctx context.Context, limit, offset int) ([]*model.Suppression, int64, error)
	Export(ctx context.Context, w io.Writer) error
}

type SuppressionHandler struct {
	svc SuppressionService
}

func NewSuppressionHandler(svc SuppressionService) *SuppressionHandler {
	return &SuppressionHandler{svc: svc}
}

func RegisterSuppressionRoutes(e *router.Group, h *SuppressionHandler) {
	e.POST("/suppressions", h.AddSuppression)
	e.GET("/suppressions", h.ListSuppressions)
	e.GET("/suppressions/export", h.ExportSuppressions)
	e.DELETE("/suppressions/{email}", h.RemoveSuppression)
}

type suppressionListResponse struct {
	Items []*model.Suppression `json:"items"`
	Total int64                `json:"total"`
}

func (h *SuppressionHandler) AddSuppression(ctx *xhttp.RequestCtx) {
	var req model.SuppressionCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	s, err := h.svc.Add(ctx, req)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, s)
}

func (h *SuppressionHandler) RemoveSuppression(ctx *xhttp.RequestCtx) {
	email, _ := ctx.UserValue("email").(string)
	if email == "" {
		writeError(ctx, xhttp.StatusBadRequest, "email is required")
		return
	}
	if err := h.svc.Remove(ctx, email); err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	ctx.Response.SetStatusCode(xhttp.StatusNoContent)
}

func (h *SuppressionHandler) ListSuppressions(ctx *xhttp.RequestCtx) {
	limit, offset := pagination(ctx)
	items, total, err := h.svc.List(ctx, limit, offset)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, suppressionListResponse{Items: items, Total: total})
}

func (h *SuppressionHandler) ExportSuppressions(ctx *xhttp.RequestCtx) {
	var buf bytes.Buffer
	if err := h.svc.Export(ctx, &buf); err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	ctx.Response.Header.Set("Content-Type", "text/csv; charset=utf-8")
	ctx.Response.Header.Set("Content-Disposition", `attachment; filename="suppressions.csv"`)
	ctx.Response.SetStatusCode(xhttp.StatusOK)
	ctx.Response.SetBodyRaw(buf.Bytes())
}
