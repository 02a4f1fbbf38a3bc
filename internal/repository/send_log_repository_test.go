package repository

import (
	"context"
	"testing"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendLogRepository_Append(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewSendLogRepository(db)
	ctx := context.Background()

	entry, err := repo.Append(ctx, &model.SendLogEntry{
		CampaignID:        1,
		RecipientID:       2,
		ProviderType:      "smtp",
		ProviderAccountID: 3,
		Status:            "sent",
		MessageID:         "<m@host>",
		Response:          "250 ok",
	})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.NotZero(t, entry.Timestamp)
}

func TestSendLogRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewSendLogRepository(db)
	ctx := context.Background()

	campaignID := int64(9)
	for _, status := range []string{"sent", "sent", "failed"} {
		_, err := repo.Append(ctx, &model.SendLogEntry{
			CampaignID:  campaignID,
			RecipientID: 1,
			Status:      status,
		})
		require.NoError(t, err)
	}
	// another campaign's entry must not leak in
	_, err := repo.Append(ctx, &model.SendLogEntry{
		CampaignID:  campaignID + 1,
		RecipientID: 1,
		Status:      "sent",
	})
	require.NoError(t, err)

	t.Run("filter by campaign", func(t *testing.T) {
		entries, total, err := repo.List(ctx, model.SendLogFilter{
			CampaignID: &campaignID,
			Limit:      10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, entries, 3)
	})

	t.Run("filter by status", func(t *testing.T) {
		entries, total, err := repo.List(ctx, model.SendLogFilter{
			CampaignID: &campaignID,
			Statuses:   []string{"failed"},
			Limit:      10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, entries, 1)
		assert.Equal(t, "failed", entries[0].Status)
	})

	t.Run("pagination", func(t *testing.T) {
		entries, total, err := repo.List(ctx, model.SendLogFilter{
			CampaignID: &campaignID,
			Limit:      2,
			Offset:     2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, entries, 1)
	})
}
