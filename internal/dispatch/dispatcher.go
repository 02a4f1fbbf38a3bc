package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/internal/repository"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
	"github.com/kianmehr/campaign-gateway/pkg/prom"
	"github.com/kianmehr/campaign-gateway/pkg/worker"
)

var (
	// ErrAlreadySending is returned when a campaign already has an
	// active run or carries the sending status.
	ErrAlreadySending = errors.New("campaign is already sending")
	// ErrNotStartable is returned for terminal statuses; only draft and
	// paused campaigns can start.
	ErrNotStartable = errors.New("campaign cannot be started from its current status")
	// ErrProviderNotFound is returned when the account is missing or
	// disabled.
	ErrProviderNotFound = errors.New("provider account not found or disabled")
	// ErrCapacity is returned when every dispatch worker is busy and the
	// queue is full.
	ErrCapacity = errors.New("dispatch capacity exhausted")
)

type CampaignStore interface {
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, id int64, to model.CampaignStatus, from ...model.CampaignStatus) error
	IncrementSent(ctx context.Context, id int64) error
	IncrementFailed(ctx context.Context, id int64) error
}

type RecipientStore interface {
	PendingByCampaign(ctx context.Context, campaignID int64) ([]*model.Recipient, error)
	MarkSent(ctx context.Context, id int64, messageID, providerType string, retryCount int) error
	MarkFailed(ctx context.Context, id int64, providerType, errorMessage string, retryCount int) error
}

type AccountStore interface {
	Get(ctx context.Context, id int64) (*model.ProviderAccount, error)
}

type SendLogStore interface {
	Append(ctx context.Context, entry *model.SendLogEntry) (*model.SendLogEntry, error)
}

type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// GatewayFactory builds the delivery backend for an account. Swappable in
// tests.
type GatewayFactory func(account *model.ProviderAccount) (gateway.EmailGateway, error)

type Options struct {
	MaxRetries  int
	RetryDelay  time.Duration
	SendTimeout time.Duration
}

// Dispatcher owns every campaign run: it moves campaigns through their
// lifecycle, walks pending recipients, and records each terminal outcome.
// Runs execute on the shared worker pool, which bounds how many campaigns
// send concurrently.
type Dispatcher struct {
	campaigns    CampaignStore
	recipients   RecipientStore
	accounts     AccountStore
	logs         SendLogStore
	suppressions SuppressionChecker
	limiter      *RateLimiter
	progress     *ProgressTracker
	retries      *RetryExecutor
	newGateway   GatewayFactory
	pool         *worker.WorkerManager
	sendTimeout  time.Duration

	mu     sync.Mutex
	active map[int64]*run
}

type run struct {
	campaignID int64
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewDispatcher(
	campaigns CampaignStore,
	recipients RecipientStore,
	accounts AccountStore,
	logs SendLogStore,
	suppressions SuppressionChecker,
	limiter *RateLimiter,
	progress *ProgressTracker,
	pool *worker.WorkerManager,
	newGateway GatewayFactory,
	opts Options,
) *Dispatcher {
	if newGateway == nil {
		newGateway = gateway.New
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		campaigns:    campaigns,
		recipients:   recipients,
		accounts:     accounts,
		logs:         logs,
		suppressions: suppressions,
		limiter:      limiter,
		progress:     progress,
		retries:      NewRetryExecutor(opts.MaxRetries, opts.RetryDelay),
		newGateway:   newGateway,
		pool:         pool,
		sendTimeout:  sendTimeout,
		active:       make(map[int64]*run),
	}
}

// Start validates the campaign and account, marks the campaign sending,
// and hands the run to the worker pool. A gateway construction failure
// leaves the campaign untouched.
func (d *Dispatcher) Start(ctx context.Context, campaignID, accountID int64) error {
	campaign, err := d.campaigns.Get(ctx, campaignID)
	if err != nil {
		return err
	}

	switch campaign.Status {
	case model.CampaignStatusDraft, model.CampaignStatusPaused:
	case model.CampaignStatusSending:
		return ErrAlreadySending
	default:
		return fmt.Errorf("%w: %s", ErrNotStartable, campaign.Status)
	}

	account, err := d.accounts.Get(ctx, accountID)
	if err != nil || !account.Enabled {
		return ErrProviderNotFound
	}

	gw, err := d.newGateway(account)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if _, exists := d.active[campaignID]; exists {
		d.mu.Unlock()
		return ErrAlreadySending
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{campaignID: campaignID, cancel: cancel, done: make(chan struct{})}
	d.active[campaignID] = r
	d.mu.Unlock()

	if err := d.campaigns.UpdateStatus(ctx, campaignID, model.CampaignStatusSending,
		model.CampaignStatusDraft, model.CampaignStatusPaused); err != nil {
		d.unregister(r)
		if errors.Is(err, repository.ErrStatusConflict) {
			return ErrAlreadySending
		}
		return err
	}

	enqueued := d.pool.TryEnqueue(func() {
		d.execute(runCtx, r, campaign, account, gw)
	})
	if !enqueued {
		// Put the campaign back the way we found it.
		_ = d.campaigns.UpdateStatus(context.Background(), campaignID, campaign.Status,
			model.CampaignStatusSending)
		d.unregister(r)
		return ErrCapacity
	}

	logger.Info("campaign run started", "campaign_id", campaignID, "account_id", accountID, "provider", gw.Name())
	return nil
}

// Pause cancels the active run, if any, and marks the campaign paused.
// The in-flight recipient finishes and is recorded before the loop stops.
func (d *Dispatcher) Pause(campaignID int64) error {
	d.mu.Lock()
	r := d.active[campaignID]
	d.mu.Unlock()

	if r != nil {
		r.cancel()
	}

	err := d.campaigns.UpdateStatus(context.Background(), campaignID,
		model.CampaignStatusPaused, model.CampaignStatusSending)
	if errors.Is(err, repository.ErrStatusConflict) && r != nil {
		// The run finished between the cancel and the update.
		return nil
	}
	return err
}

// Stop cancels the active run and waits for it to unwind. Used before a
// campaign is deleted.
func (d *Dispatcher) Stop(campaignID int64) {
	d.mu.Lock()
	r := d.active[campaignID]
	d.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Active reports whether a run is live for the campaign.
func (d *Dispatcher) Active(campaignID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[campaignID]
	return ok
}

// Progress returns the live (or mirrored) snapshot, nil when unknown.
func (d *Dispatcher) Progress(campaignID int64) *model.ProgressSnapshot {
	return d.progress.Snapshot(campaignID)
}

func (d *Dispatcher) unregister(r *run) {
	d.mu.Lock()
	delete(d.active, r.campaignID)
	d.mu.Unlock()
	close(r.done)
}

// execute is the run loop. It owns the campaign's terminal status: a
// panic or unexpected error marks the campaign failed while every other
// run keeps going.
func (d *Dispatcher) execute(runCtx context.Context, r *run, campaign *model.Campaign, account *model.ProviderAccount, gw gateway.EmailGateway) {
	prom.AddGaugeVec(prom.SystemDispatch, prom.MetricActiveRuns, 1, "sending")
	defer prom.AddGaugeVec(prom.SystemDispatch, prom.MetricActiveRuns, -1, "sending")
	defer d.unregister(r)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("campaign run panicked", "campaign_id", campaign.ID, "panic", fmt.Sprint(rec))
			_ = d.campaigns.UpdateStatus(context.Background(), campaign.ID,
				model.CampaignStatusFailed, model.CampaignStatusSending)
			d.progress.End(campaign.ID)
		}
	}()

	// Persistence must outlive a cancelled run so the in-flight
	// recipient is still recorded.
	ctx := context.Background()

	pending, err := d.recipients.PendingByCampaign(ctx, campaign.ID)
	if err != nil {
		logger.Error("failed to load pending recipients", "campaign_id", campaign.ID, "error", err.Error())
		_ = d.campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignStatusFailed, model.CampaignStatusSending)
		return
	}

	d.progress.Begin(campaign.ID, campaign.TotalRecipients, campaign.SentCount, campaign.FailedCount)
	defer d.progress.End(campaign.ID)

	throttle := time.Duration(campaign.ThrottleRate * float64(time.Second))
	completed := true

	for i, rec := range pending {
		if runCtx.Err() != nil {
			completed = false
			break
		}
		// Cooperative pause: a status change from outside stops the loop
		// even if the cancel signal was missed.
		current, err := d.campaigns.Get(ctx, campaign.ID)
		if err != nil || current.Status != model.CampaignStatusSending {
			completed = false
			break
		}

		suppressed, err := d.suppressions.IsSuppressed(ctx, rec.Email)
		if err != nil {
			logger.Warn("suppression check failed, sending anyway", "email", rec.Email, "error", err.Error())
		}
		if suppressed {
			// Silent skip: no status change, no counters, no log entry.
			logger.Debug("recipient suppressed", "campaign_id", campaign.ID, "email", rec.Email)
			continue
		}

		if err := d.limiter.Acquire(runCtx, account); err != nil {
			completed = false
			break
		}

		fields := Fields(rec)
		req := &gateway.SendRequest{
			To:      rec.Email,
			Subject: Render(campaign.Subject, fields),
			HTML:    Render(campaign.BodyHTML, fields),
			ReplyTo: campaign.ReplyTo,
		}
		if campaign.BodyText != "" {
			req.Text = Render(campaign.BodyText, fields)
		}

		outcome, attempts, sendErr := d.retries.Execute(runCtx, func(c context.Context) *gateway.SendOutcome {
			sendCtx, cancel := context.WithTimeout(c, d.sendTimeout)
			defer cancel()
			start := time.Now()
			out := gw.Send(sendCtx, req)
			prom.AddSendDuration(time.Since(start).Seconds(), gw.Name())
			return out
		})

		switch {
		case sendErr == nil && outcome.Success:
			d.recordSent(ctx, campaign.ID, account.ID, rec, outcome, attempts)
		case errors.Is(sendErr, ErrAuthFailed):
			d.recordFailed(ctx, campaign.ID, account.ID, rec, outcome, attempts)
			logger.Error("provider rejected credentials, aborting run",
				"campaign_id", campaign.ID, "provider", outcome.Provider)
			_ = d.campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignStatusFailed, model.CampaignStatusSending)
			return
		case sendErr != nil:
			// Cancelled mid-retry; the recipient stays pending for the
			// next run.
			completed = false
		default:
			d.recordFailed(ctx, campaign.ID, account.ID, rec, outcome, attempts)
		}
		if !completed {
			break
		}

		if throttle > 0 && i < len(pending)-1 {
			select {
			case <-runCtx.Done():
			case <-time.After(throttle):
			}
		}
	}

	if completed {
		if err := d.campaigns.UpdateStatus(ctx, campaign.ID,
			model.CampaignStatusCompleted, model.CampaignStatusSending); err != nil &&
			!errors.Is(err, repository.ErrStatusConflict) {
			logger.Error("failed to complete campaign", "campaign_id", campaign.ID, "error", err.Error())
		}
		logger.Info("campaign run completed", "campaign_id", campaign.ID)
		return
	}
	logger.Info("campaign run stopped before completion", "campaign_id", campaign.ID)
}

// retry_count stores retries used, attempts-1, for sent and failed alike.
func (d *Dispatcher) recordSent(ctx context.Context, campaignID, accountID int64, rec *model.Recipient, out *gateway.SendOutcome, attempts int) {
	if err := d.recipients.MarkSent(ctx, rec.ID, out.MessageID, out.Provider, attempts-1); err != nil {
		logger.Error("failed to mark recipient sent", "recipient_id", rec.ID, "error", err.Error())
	}
	if err := d.campaigns.IncrementSent(ctx, campaignID); err != nil {
		logger.Error("failed to bump sent counters", "campaign_id", campaignID, "error", err.Error())
	}
	d.progress.RecordSent(campaignID)
	prom.IncEmail(out.Provider, "sent")
	d.appendLog(ctx, campaignID, accountID, rec.ID, out, "sent")
}

func (d *Dispatcher) recordFailed(ctx context.Context, campaignID, accountID int64, rec *model.Recipient, out *gateway.SendOutcome, attempts int) {
	if err := d.recipients.MarkFailed(ctx, rec.ID, out.Provider, out.Error, attempts-1); err != nil {
		logger.Error("failed to mark recipient failed", "recipient_id", rec.ID, "error", err.Error())
	}
	if err := d.campaigns.IncrementFailed(ctx, campaignID); err != nil {
		logger.Error("failed to bump failed counter", "campaign_id", campaignID, "error", err.Error())
	}
	d.progress.RecordFailed(campaignID)
	prom.IncEmail(out.Provider, "failed")
	d.appendLog(ctx, campaignID, accountID, rec.ID, out, "failed")
}

func (d *Dispatcher) appendLog(ctx context.Context, campaignID, accountID, recipientID int64, out *gateway.SendOutcome, status string) {
	response := out.Response
	if response == "" {
		response = out.Error
	}
	_, err := d.logs.Append(ctx, &model.SendLogEntry{
		CampaignID:        campaignID,
		RecipientID:       recipientID,
		ProviderType:      out.Provider,
		ProviderAccountID: accountID,
		Status:            status,
		MessageID:         out.MessageID,
		Response:          response,
	})
	if err != nil {
		logger.Error("failed to append send log", "campaign_id", campaignID, "error", err.Error())
	}
}
