package handlers

import (
	"context"

	"github.com/fasthttp/router"
	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/kianmehr/campaign-gateway/internal/model"
	xhttp "github.com/kianmehr/campaign-gateway/pkg/http"
)

type AccountService interface {
	Create(ctx context.Context, p model.AccountCreateRequest) (*model.ProviderAccount, error)
	Get(ctx context.Context, id int64) (*model.ProviderAccount, error)
	List(ctx context.Context, enabledOnly bool) ([]*model.ProviderAccount, error)
	Update(ctx context.Context, a *model.ProviderAccount) (*model.ProviderAccount, error)
	Delete(ctx context.Context, id int64) error
	TestConnection(ctx context.Context, id int64) (*gateway.ConnectivityResult, error)
}

type AccountHandler struct {
	svc AccountService
}

func NewAccountHandler(svc AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func RegisterAccountRoutes(e *router.Group, h *AccountHandler) {
	e.POST("/accounts", h.CreateAccount)
	e.GET("/accounts", h.ListAccounts)
	e.GET("/accounts/{id}", h.GetAccount)
	e.PUT("/accounts/{id}", h.UpdateAccount)
	e.DELETE("/accounts/{id}", h.DeleteAccount)
	e.POST("/accounts/{id}/test", h.TestAccount)
}

func (h *AccountHandler) CreateAccount(ctx *xhttp.RequestCtx) {
	var req model.AccountCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	a, err := h.svc.Create(ctx, req)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, a)
}

func (h *AccountHandler) ListAccounts(ctx *xhttp.RequestCtx) {
	enabledOnly := query(ctx, "enabled") == "true"
	items, err := h.svc.List(ctx, enabledOnly)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, items)
}

func (h *AccountHandler) GetAccount(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid account id")
		return
	}
	a, err := h.svc.Get(ctx, id)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, a)
}

func (h *AccountHandler) UpdateAccount(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid account id")
		return
	}
	var account model.ProviderAccount
	if err := readJSON(ctx, &account); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	account.ID = id
	updated, err := h.svc.Update(ctx, &account)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, updated)
}

func (h *AccountHandler) DeleteAccount(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid account id")
		return
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	ctx.Response.SetStatusCode(xhttp.StatusNoContent)
}

func (h *AccountHandler) TestAccount(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid account id")
		return
	}
	result, err := h.svc.TestConnection(ctx, id)
	if err != nil {
		writeError(ctx, statusFor(err), err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, result)
}
