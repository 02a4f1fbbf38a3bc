package services

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
	"github.com/kianmehr/campaign-gateway/pkg/redis"
)

const suppressionSetKey = "suppressions"

type SuppressionRepository interface {
	Add(ctx context.Context, s *model.Suppression) (*model.Suppression, error)
	Remove(ctx context.Context, email string) error
	IsSuppressed(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*model.Suppression, int64, error)
	AllEmails(ctx context.Context) ([]string, error)
}

// SuppressionService keeps the database and the redis member set in step.
// The database is the source of truth; the set only short-circuits
// positive lookups on the dispatch hot path.
type SuppressionService struct {
	suppressions SuppressionRepository
	cache        redis.RedisAdapter
}

func NewSuppressionService(suppressions SuppressionRepository, cache redis.RedisAdapter) *SuppressionService {
	return &SuppressionService{suppressions: suppressions, cache: cache}
}

func (s *SuppressionService) Add(ctx context.Context, p model.SuppressionCreateRequest) (*model.Suppression, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	email := model.NormalizeEmail(p.Email)
	stored, err := s.suppressions.Add(ctx, &model.Suppression{Email: email, Reason: p.Reason})
	if err != nil {
		return nil, err
	}
	s.cacheAdd(email)
	return stored, nil
}

func (s *SuppressionService) Remove(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)
	if err := s.suppressions.Remove(ctx, email); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.SRem(suppressionSetKey, email); err != nil {
			logger.Warn("failed to evict suppression from cache", "email", email, "error", err.Error())
		}
	}
	return nil
}

// IsSuppressed serves the dispatcher. A cached positive is trusted; a
// miss falls through to the database and backfills the set.
func (s *SuppressionService) IsSuppressed(ctx context.Context, email string) (bool, error) {
	email = model.NormalizeEmail(email)
	if s.cache != nil {
		member, err := s.cache.SIsMember(suppressionSetKey, email)
		if err == nil && member {
			return true, nil
		}
	}
	suppressed, err := s.suppressions.IsSuppressed(ctx, email)
	if err != nil {
		return false, err
	}
	if suppressed {
		s.cacheAdd(email)
	}
	return suppressed, nil
}

func (s *SuppressionService) List(ctx context.Context, limit, offset int) ([]*model.Suppression, int64, error) {
	return s.suppressions.List(ctx, limit, offset)
}

// Export streams the whole list as CSV.
func (s *SuppressionService) Export(ctx context.Context, w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"email", "reason", "added_at"}); err != nil {
		return err
	}

	offset := 0
	for {
		page, _, err := s.suppressions.List(ctx, 1000, offset)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, entry := range page {
			if err := writer.Write([]string{entry.Email, entry.Reason, entry.AddedAt.Format(time.RFC3339)}); err != nil {
				return err
			}
		}
		offset += len(page)
	}
	writer.Flush()
	return writer.Error()
}

// WarmCache loads every suppressed address into the redis set. Called at
// startup; failures are logged, the database path still works.
func (s *SuppressionService) WarmCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	emails, err := s.suppressions.AllEmails(ctx)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		return nil
	}
	members := make([]interface{}, len(emails))
	for i, email := range emails {
		members[i] = email
	}
	if err := s.cache.SAdd(suppressionSetKey, members...); err != nil {
		return err
	}
	logger.Info("suppression cache warmed", "entries", len(emails))
	return nil
}

func (s *SuppressionService) cacheAdd(email string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SAdd(suppressionSetKey, email); err != nil {
		logger.Warn("failed to cache suppression", "email", email, "error", err.Error())
	}
}
