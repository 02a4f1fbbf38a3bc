package dispatch

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
	"github.com/kianmehr/campaign-gateway/pkg/redis"
)

const progressKeyPrefix = "progress:"

// ProgressTracker keeps the live counters of every active run. Each
// update is mirrored to a redis hash so progress survives a process
// restart; while a run is live the memory registry is authoritative.
type ProgressTracker struct {
	mu    sync.Mutex
	runs  map[int64]*runProgress
	cache redis.RedisAdapter
	ttl   time.Duration
	now   func() time.Time
}

type runProgress struct {
	total     int
	sent      int
	failed    int
	baseSent  int // carried over from before a resume
	startedAt time.Time
}

func NewProgressTracker(cache redis.RedisAdapter, ttl time.Duration) *ProgressTracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProgressTracker{
		runs:  make(map[int64]*runProgress),
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Begin registers a run. resumeSent/resumeFailed carry the counters of a
// paused campaign so the totals stay correct; the per-minute rate is
// measured over this run only.
func (t *ProgressTracker) Begin(campaignID int64, total, resumeSent, resumeFailed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[campaignID] = &runProgress{
		total:     total,
		sent:      resumeSent,
		failed:    resumeFailed,
		baseSent:  resumeSent,
		startedAt: t.now(),
	}
}

// End drops the memory entry. The redis mirror keeps the final snapshot
// until its TTL expires.
func (t *ProgressTracker) End(campaignID int64) {
	t.mu.Lock()
	delete(t.runs, campaignID)
	t.mu.Unlock()
}

func (t *ProgressTracker) RecordSent(campaignID int64) {
	t.record(campaignID, func(r *runProgress) { r.sent++ })
}

func (t *ProgressTracker) RecordFailed(campaignID int64) {
	t.record(campaignID, func(r *runProgress) { r.failed++ })
}

func (t *ProgressTracker) record(campaignID int64, apply func(*runProgress)) {
	t.mu.Lock()
	r, ok := t.runs[campaignID]
	if ok {
		apply(r)
	}
	t.mu.Unlock()
	if ok {
		t.mirror(campaignID)
	}
}

// Snapshot returns the live view of a run. When no run is in memory it
// falls back to the redis mirror; nil means nothing is known about the
// campaign here.
func (t *ProgressTracker) Snapshot(campaignID int64) *model.ProgressSnapshot {
	t.mu.Lock()
	r, ok := t.runs[campaignID]
	var snap *model.ProgressSnapshot
	if ok {
		snap = t.build(campaignID, r)
	}
	t.mu.Unlock()
	if ok {
		return snap
	}
	return t.fromMirror(campaignID)
}

func (t *ProgressTracker) build(campaignID int64, r *runProgress) *model.ProgressSnapshot {
	elapsed := t.now().Sub(r.startedAt).Minutes()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(r.sent-r.baseSent) / elapsed
	}
	remaining := r.total - r.sent - r.failed
	if remaining < 0 {
		remaining = 0
	}
	return &model.ProgressSnapshot{
		CampaignID: campaignID,
		Sent:       r.sent,
		Failed:     r.failed,
		Total:      r.total,
		Rate:       rate,
		ETA:        formatETA(remaining, rate),
	}
}

func (t *ProgressTracker) mirror(campaignID int64) {
	if t.cache == nil {
		return
	}
	t.mu.Lock()
	r, ok := t.runs[campaignID]
	var snap *model.ProgressSnapshot
	if ok {
		snap = t.build(campaignID, r)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	key := progressKey(campaignID)
	fields := map[string]interface{}{
		"sent":   snap.Sent,
		"failed": snap.Failed,
		"total":  snap.Total,
		"rate":   snap.Rate,
		"eta":    snap.ETA,
	}
	for field, value := range fields {
		if err := t.cache.HSet(key, field, value); err != nil {
			logger.Debug("progress mirror write failed", "campaign_id", campaignID, "error", err.Error())
			return
		}
	}
	_ = t.cache.Expire(key, t.ttl)
}

func (t *ProgressTracker) fromMirror(campaignID int64) *model.ProgressSnapshot {
	if t.cache == nil {
		return nil
	}
	fields, err := t.cache.HGetAll(progressKey(campaignID))
	if err != nil || len(fields) == 0 {
		return nil
	}
	snap := &model.ProgressSnapshot{CampaignID: campaignID, ETA: fields["eta"]}
	snap.Sent, _ = strconv.Atoi(fields["sent"])
	snap.Failed, _ = strconv.Atoi(fields["failed"])
	snap.Total, _ = strconv.Atoi(fields["total"])
	snap.Rate, _ = strconv.ParseFloat(fields["rate"], 64)
	return snap
}

func progressKey(campaignID int64) string {
	return progressKeyPrefix + strconv.FormatInt(campaignID, 10)
}

// formatETA renders the remaining time at the current rate: "3m 20s"
// under an hour, "1h 2m" above, "calculating" while the rate is zero.
func formatETA(remaining int, perMinute float64) string {
	if remaining <= 0 {
		return "0m 0s"
	}
	if perMinute <= 0 {
		return "calculating"
	}
	minutes := float64(remaining) / perMinute
	if minutes < 60 {
		whole := int(minutes)
		seconds := int((minutes - float64(whole)) * 60)
		return fmt.Sprintf("%dm %ds", whole, seconds)
	}
	hours := int(minutes) / 60
	rem := int(minutes) % 60
	return fmt.Sprintf("%dh %dm", hours, rem)
}
