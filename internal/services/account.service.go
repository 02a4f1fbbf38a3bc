package services

import (
	"context"

	"github.com/kianmehr/campaign-gateway/internal/dispatch"
	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/kianmehr/campaign-gateway/internal/model"
)

type AccountRepository interface {
	Create(ctx context.Context, a *model.ProviderAccount) (*model.ProviderAccount, error)
	Get(ctx context.Context, id int64) (*model.ProviderAccount, error)
	List(ctx context.Context, enabledOnly bool) ([]*model.ProviderAccount, error)
	Update(ctx context.Context, a *model.ProviderAccount) (*model.ProviderAccount, error)
	Delete(ctx context.Context, id int64) error
}

type AccountService struct {
	accounts   AccountRepository
	newGateway dispatch.GatewayFactory
}

func NewAccountService(accounts AccountRepository, newGateway dispatch.GatewayFactory) *AccountService {
	if newGateway == nil {
		newGateway = gateway.New
	}
	return &AccountService{accounts: accounts, newGateway: newGateway}
}

func (s *AccountService) Create(ctx context.Context, p model.AccountCreateRequest) (*model.ProviderAccount, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	a := &model.ProviderAccount{
		Name:         p.Name,
		Kind:         p.Kind,
		ProviderType: p.ProviderType,
		Host:         p.Host,
		Port:         p.Port,
		Username:     p.Username,
		Password:     p.Password,
		UseTLS:       p.UseTLS,
		UseSSL:       p.UseSSL,
		APIKey:       p.APIKey,
		APISecret:    p.APISecret,
		Domain:       p.Domain,
		Region:       p.Region,
		FromEmail:    p.FromEmail,
		FromName:     p.FromName,
		ReplyTo:      p.ReplyTo,
		Enabled:      true,
		MaxPerHour:   p.MaxPerHour,
		MaxPerDay:    p.MaxPerDay,
	}
	return s.accounts.Create(ctx, a)
}

func (s *AccountService) Get(ctx context.Context, id int64) (*model.ProviderAccount, error) {
	return s.accounts.Get(ctx, id)
}

func (s *AccountService) List(ctx context.Context, enabledOnly bool) ([]*model.ProviderAccount, error) {
	return s.accounts.List(ctx, enabledOnly)
}

func (s *AccountService) Update(ctx context.Context, a *model.ProviderAccount) (*model.ProviderAccount, error) {
	return s.accounts.Update(ctx, a)
}

func (s *AccountService) Delete(ctx context.Context, id int64) error {
	return s.accounts.Delete(ctx, id)
}

// TestConnection asks the provider itself: SMTP dial + NOOP, or the API's
// cheapest authenticated endpoint.
func (s *AccountService) TestConnection(ctx context.Context, id int64) (*gateway.ConnectivityResult, error) {
	account, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	gw, err := s.newGateway(account)
	if err != nil {
		return nil, err
	}
	return gw.TestConnection(ctx), nil
}
