package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
	"github.com/kianmehr/campaign-gateway/pkg/prom"
)

// AccountQuotaStore persists the limiter's counters between restarts.
type AccountQuotaStore interface {
	UpdateQuotaCounters(ctx context.Context, account *model.ProviderAccount) error
}

type accountState struct {
	mu sync.Mutex

	maxPerHour    int
	maxPerDay     int
	sentThisHour  int
	sentToday     int
	lastResetHour time.Time
	lastResetDay  time.Time
}

// RateLimiter enforces per-account hourly and daily send quotas. The
// in-memory state is shared by every concurrent campaign using the same
// account; the per-account mutex keeps the increments atomic.
type RateLimiter struct {
	mu     sync.Mutex
	states map[int64]*accountState
	store  AccountQuotaStore
	now    func() time.Time
}

func NewRateLimiter(store AccountQuotaStore) *RateLimiter {
	return &RateLimiter{
		states: make(map[int64]*accountState),
		store:  store,
		now:    time.Now,
	}
}

// Acquire blocks until the account has quota for one send, then charges
// both windows and persists the counters. It is called once per confirmed
// attempt; suppressed skips never reach it. Returns the ctx error when
// the wait is cancelled.
func (l *RateLimiter) Acquire(ctx context.Context, account *model.ProviderAccount) error {
	st := l.state(account)

	for {
		st.mu.Lock()
		now := l.now()
		st.roll(now)

		if st.hasCapacity() {
			st.sentThisHour++
			st.sentToday++
			l.persist(ctx, account, st)
			st.mu.Unlock()
			return nil
		}

		wait := st.nextWindow(now).Sub(now)
		sentThisHour, sentToday := st.sentThisHour, st.sentToday
		// The mutex is released for the wait so other campaigns sharing
		// the account can observe their own ctx cancellation instead of
		// queueing behind this sleeper. Capacity is re-checked under the
		// lock after waking.
		st.mu.Unlock()

		if wait <= 0 {
			continue
		}
		prom.IncCounter(prom.SystemDispatch, prom.MetricQuotaWaitsTotal)
		logger.Info("account quota exhausted, waiting for next window",
			"account_id", account.ID, "wait", wait.String(),
			"sent_this_hour", sentThisHour, "sent_today", sentToday)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Counters reports the live window counters for one account, for status
// endpoints and tests.
func (l *RateLimiter) Counters(accountID int64) (sentThisHour, sentToday int) {
	l.mu.Lock()
	st, ok := l.states[accountID]
	l.mu.Unlock()
	if !ok {
		return 0, 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sentThisHour, st.sentToday
}

func (l *RateLimiter) state(account *model.ProviderAccount) *accountState {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[account.ID]
	if !ok {
		// Seed from the persisted counters so a restart does not reopen
		// an exhausted window.
		st = &accountState{
			sentThisHour: account.SentThisHour,
			sentToday:    account.SentToday,
		}
		if account.LastResetHour != nil {
			st.lastResetHour = *account.LastResetHour
		}
		if account.LastResetDay != nil {
			st.lastResetDay = *account.LastResetDay
		}
		l.states[account.ID] = st
	}
	// Caps follow the account row so an edit takes effect mid-run.
	st.maxPerHour = account.MaxPerHour
	st.maxPerDay = account.MaxPerDay
	return st
}

func (l *RateLimiter) persist(ctx context.Context, account *model.ProviderAccount, st *accountState) {
	if l.store == nil {
		return
	}
	snapshot := *account
	snapshot.SentThisHour = st.sentThisHour
	snapshot.SentToday = st.sentToday
	hour, day := st.lastResetHour, st.lastResetDay
	snapshot.LastResetHour = &hour
	snapshot.LastResetDay = &day
	if err := l.store.UpdateQuotaCounters(ctx, &snapshot); err != nil {
		logger.Warn("failed to persist quota counters", "account_id", account.ID, "error", err.Error())
	}
}

func (s *accountState) roll(now time.Time) {
	if s.lastResetHour.IsZero() {
		s.lastResetHour = now
	}
	if s.lastResetDay.IsZero() {
		s.lastResetDay = now
	}
	if now.Sub(s.lastResetHour) >= time.Hour {
		s.sentThisHour = 0
		s.lastResetHour = now
	}
	if now.Sub(s.lastResetDay) >= 24*time.Hour {
		s.sentToday = 0
		s.lastResetDay = now
	}
}

func (s *accountState) hasCapacity() bool {
	if s.maxPerHour > 0 && s.sentThisHour >= s.maxPerHour {
		return false
	}
	if s.maxPerDay > 0 && s.sentToday >= s.maxPerDay {
		return false
	}
	return true
}

// nextWindow is the earliest moment an exhausted window rolls over. The
// caller re-checks capacity afterwards in case the other window is still
// closed.
func (s *accountState) nextWindow(now time.Time) time.Time {
	var next time.Time
	if s.maxPerHour > 0 && s.sentThisHour >= s.maxPerHour {
		next = s.lastResetHour.Add(time.Hour)
	}
	if s.maxPerDay > 0 && s.sentToday >= s.maxPerDay {
		day := s.lastResetDay.Add(24 * time.Hour)
		if next.IsZero() || day.Before(next) {
			next = day
		}
	}
	if next.IsZero() {
		return now
	}
	return next
}
