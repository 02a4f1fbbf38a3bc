package repository

import (
	"context"
	"testing"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuppressionRepository_Add(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewSuppressionRepository(db)
	ctx := context.Background()

	t.Run("stores lowercase", func(t *testing.T) {
		added, err := repo.Add(ctx, &model.Suppression{
			Email:  "Bounced@Example.COM",
			Reason: "hard bounce",
		})
		require.NoError(t, err)
		assert.Equal(t, "bounced@example.com", added.Email)
		assert.Equal(t, "hard bounce", added.Reason)
	})

	t.Run("duplicate keeps original reason", func(t *testing.T) {
		again, err := repo.Add(ctx, &model.Suppression{
			Email:  "bounced@example.com",
			Reason: "complaint",
		})
		require.NoError(t, err)
		assert.Equal(t, "hard bounce", again.Reason)
	})
}

func TestSuppressionRepository_IsSuppressed(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewSuppressionRepository(db)
	ctx := context.Background()

	_, err := repo.Add(ctx, &model.Suppression{Email: "gone@example.com"})
	require.NoError(t, err)

	t.Run("case insensitive match", func(t *testing.T) {
		ok, err := repo.IsSuppressed(ctx, "GONE@example.com")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown address", func(t *testing.T) {
		ok, err := repo.IsSuppressed(ctx, "fine@example.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSuppressionRepository_Remove(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewSuppressionRepository(db)
	ctx := context.Background()

	_, err := repo.Add(ctx, &model.Suppression{Email: "temp@example.com"})
	require.NoError(t, err)

	require.NoError(t, repo.Remove(ctx, "TEMP@example.com"))

	ok, err := repo.IsSuppressed(ctx, "temp@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, repo.Remove(ctx, "temp@example.com"), ErrSuppressionNotFound)
}

func TestSuppressionRepository_AllEmails(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewSuppressionRepository(db)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := repo.Add(ctx, &model.Suppression{Email: email})
		require.NoError(t, err)
	}

	emails, err := repo.AllEmails(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, emails)
}
