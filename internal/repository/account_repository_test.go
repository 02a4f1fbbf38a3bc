package repository

import (
	"context"
	"testing"
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_CRUD(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewAccountRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.ProviderAccount{
		Name:         "primary smtp",
		Kind:         model.AccountKindSMTP,
		ProviderType: model.ProviderTypeSMTP,
		Host:         "smtp.example.com",
		Port:         587,
		Username:     "mailer",
		Password:     "secret",
		UseTLS:       true,
		FromEmail:    "news@example.com",
		Enabled:      true,
		MaxPerHour:   100,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	t.Run("get", func(t *testing.T) {
		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "primary smtp", got.Name)
		assert.Equal(t, model.ProviderTypeSMTP, got.ProviderType)
		assert.Equal(t, 100, got.MaxPerHour)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get(ctx, 99999)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("update", func(t *testing.T) {
		created.MaxPerHour = 200
		updated, err := repo.Update(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, 200, updated.MaxPerHour)
	})

	t.Run("list", func(t *testing.T) {
		accounts, err := repo.List(ctx, false)
		require.NoError(t, err)
		assert.Len(t, accounts, 1)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, created.ID))
		assert.ErrorIs(t, repo.Delete(ctx, created.ID), ErrAccountNotFound)
	})
}

func TestAccountRepository_ListEnabledOnly(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewAccountRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.ProviderAccount{
		Name: "on", Kind: model.AccountKindAPI, ProviderType: model.ProviderTypeSendgrid,
		APIKey: "k", FromEmail: "a@example.com", Enabled: true,
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.ProviderAccount{
		Name: "off", Kind: model.AccountKindAPI, ProviderType: model.ProviderTypeMailgun,
		APIKey: "k", FromEmail: "b@example.com", Enabled: false,
	})
	require.NoError(t, err)

	accounts, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "on", accounts[0].Name)
}

func TestAccountRepository_UpdateQuotaCounters(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewAccountRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.ProviderAccount{
		Name: "quota", Kind: model.AccountKindSMTP, ProviderType: model.ProviderTypeSMTP,
		Host: "h", FromEmail: "q@example.com", Enabled: true,
	})
	require.NoError(t, err)

	now := time.Now().Truncate(time.Second)
	created.SentThisHour = 42
	created.SentToday = 300
	created.LastResetHour = &now
	created.LastResetDay = &now

	require.NoError(t, repo.UpdateQuotaCounters(ctx, created))

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.SentThisHour)
	assert.Equal(t, 300, got.SentToday)
	require.NotNil(t, got.LastResetHour)
	require.NotNil(t, got.LastResetDay)

	t.Run("missing account", func(t *testing.T) {
		bad := *created
		bad.ID = 99999
		assert.ErrorIs(t, repo.UpdateQuotaCounters(ctx, &bad), ErrAccountNotFound)
	})
}
