package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kianmehr/campaign-gateway/internal/dispatch"
	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
)

var (
	ErrEmptyImport     = errors.New("import contains no recipient rows")
	ErrMissingEmailCol = errors.New("import header has no email column")
	ErrAccountDisabled = errors.New("provider account is disabled")
)

type CampaignRepository interface {
	Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error)
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error)
	Delete(ctx context.Context, id int64) error
	RefreshTotal(ctx context.Context, id int64) (int, error)
	Stats(ctx context.Context) (*model.CampaignStats, error)
}

type RecipientRepository interface {
	BatchCreate(ctx context.Context, recs []*model.Recipient) (int, error)
	List(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error)
	EmailsByCampaign(ctx context.Context, campaignID int64) (map[string]struct{}, error)
	CountByStatus(ctx context.Context, campaignID int64) (map[model.RecipientStatus]int64, error)
}

type SendLogRepository interface {
	List(ctx context.Context, f model.SendLogFilter) ([]*model.SendLogEntry, int64, error)
	GetCampaignWithLogs(ctx context.Context, campaignID int64) (*model.CampaignWithSendLogs, error)
}

type SuppressionLookup interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

type AccountLookup interface {
	Get(ctx context.Context, id int64) (*model.ProviderAccount, error)
}

// Dispatcher is the run engine consumed by the service; the concrete type
// lives in internal/dispatch.
type Dispatcher interface {
	Start(ctx context.Context, campaignID, accountID int64) error
	Pause(campaignID int64) error
	Stop(campaignID int64)
	Active(campaignID int64) bool
	Progress(campaignID int64) *model.ProgressSnapshot
}

// ImportSummary reports what an ImportRecipients call did with each row.
type ImportSummary struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Suppressed int `json:"suppressed"`
	Invalid    int `json:"invalid"`
}

type CampaignService struct {
	campaigns    CampaignRepository
	recipients   RecipientRepository
	logs         SendLogRepository
	suppressions SuppressionLookup
	accounts     AccountLookup
	dispatcher   Dispatcher
	newGateway   dispatch.GatewayFactory
}

func NewCampaignService(
	campaigns CampaignRepository,
	recipients RecipientRepository,
	logs SendLogRepository,
	suppressions SuppressionLookup,
	accounts AccountLookup,
	dispatcher Dispatcher,
	newGateway dispatch.GatewayFactory,
) *CampaignService {
	if newGateway == nil {
		newGateway = gateway.New
	}
	return &CampaignService{
		campaigns:    campaigns,
		recipients:   recipients,
		logs:         logs,
		suppressions: suppressions,
		accounts:     accounts,
		dispatcher:   dispatcher,
		newGateway:   newGateway,
	}
}

func (s *CampaignService) Create(ctx context.Context, p model.CampaignCreateRequest) (*model.Campaign, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := &model.Campaign{
		Name:         strings.TrimSpace(p.Name),
		Subject:      p.Subject,
		BodyHTML:     p.BodyHTML,
		BodyText:     p.BodyText,
		FromEmail:    p.FromEmail,
		FromName:     p.FromName,
		ReplyTo:      p.ReplyTo,
		Status:       model.CampaignStatusDraft,
		ThrottleRate: p.ThrottleRate,
	}
	return s.campaigns.Create(ctx, c)
}

func (s *CampaignService) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

func (s *CampaignService) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	return s.campaigns.List(ctx, f)
}

// Delete stops any active run first; recipients and logs go with the
// campaign through the cascade.
func (s *CampaignService) Delete(ctx context.Context, id int64) error {
	s.dispatcher.Stop(id)
	return s.campaigns.Delete(ctx, id)
}

func (s *CampaignService) Recipients(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error) {
	return s.recipients.List(ctx, f)
}

func (s *CampaignService) RecipientCounts(ctx context.Context, campaignID int64) (map[model.RecipientStatus]int64, error) {
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.recipients.CountByStatus(ctx, campaignID)
}

// ImportRecipients loads a CSV into a campaign. The header row names the
// columns; email is required, first_name and last_name are recognized,
// and every other column lands in the recipient's custom fields. Rows
// already present in the campaign, suppressed addresses, and rows
// without a usable email are counted but skipped.
func (s *CampaignService) ImportRecipients(ctx context.Context, campaignID int64, data io.Reader) (*ImportSummary, error) {
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}

	reader := csv.NewReader(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyImport
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	emailCol := -1
	for i, name := range header {
		header[i] = strings.ToLower(strings.TrimSpace(name))
		if header[i] == "email" {
			emailCol = i
		}
	}
	if emailCol < 0 {
		return nil, ErrMissingEmailCol
	}

	existing, err := s.recipients.EmailsByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load existing recipients: %w", err)
	}

	summary := &ImportSummary{}
	var batch []*model.Recipient
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			summary.Invalid++
			continue
		}
		if emailCol >= len(row) {
			summary.Invalid++
			continue
		}

		email := model.NormalizeEmail(row[emailCol])
		if email == "" || !strings.Contains(email, "@") {
			summary.Invalid++
			continue
		}
		if _, dup := existing[email]; dup {
			summary.Duplicates++
			continue
		}

		suppressed, err := s.suppressions.IsSuppressed(ctx, email)
		if err != nil {
			logger.Warn("suppression check failed during import", "email", email, "error", err.Error())
		}
		if suppressed {
			summary.Suppressed++
			continue
		}

		rec := &model.Recipient{
			CampaignID: campaignID,
			Email:      email,
			Status:     model.RecipientStatusPending,
		}
		custom := map[string]string{}
		for i, value := range row {
			if i == emailCol || i >= len(header) {
				continue
			}
			switch header[i] {
			case "first_name":
				rec.FirstName = value
			case "last_name":
				rec.LastName = value
			case "":
			default:
				custom[header[i]] = value
			}
		}
		if len(custom) > 0 {
			encoded, err := json.Marshal(custom)
			if err == nil {
				rec.CustomFields = string(encoded)
			}
		}

		existing[email] = struct{}{}
		batch = append(batch, rec)
	}

	if len(batch) > 0 {
		if _, err := s.recipients.BatchCreate(ctx, batch); err != nil {
			return nil, fmt.Errorf("insert recipients: %w", err)
		}
	}
	if _, err := s.campaigns.RefreshTotal(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("refresh recipient total: %w", err)
	}

	summary.Imported = len(batch)
	logger.Info("recipients imported", "campaign_id", campaignID,
		"imported", summary.Imported, "duplicates", summary.Duplicates,
		"suppressed", summary.Suppressed, "invalid", summary.Invalid)
	return summary, nil
}

// Events returns one page of the campaign's send log.
func (s *CampaignService) Events(ctx context.Context, campaignID int64, f model.SendLogFilter) ([]*model.SendLogEntry, int64, error) {
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, 0, err
	}
	f.CampaignID = &campaignID
	return s.logs.List(ctx, f)
}

// ExportEvents streams the campaign's full send log as CSV.
func (s *CampaignService) ExportEvents(ctx context.Context, campaignID int64, w io.Writer) error {
	aggregate, err := s.logs.GetCampaignWithLogs(ctx, campaignID)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"log_id", "recipient_id", "provider", "status", "message_id", "response", "timestamp"}); err != nil {
		return err
	}
	for _, entry := range aggregate.SendLogs {
		record := []string{
			fmt.Sprintf("%d", entry.ID),
			fmt.Sprintf("%d", entry.RecipientID),
			entry.ProviderType,
			entry.Status,
			entry.MessageID,
			entry.Response,
			entry.Timestamp.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *CampaignService) Stats(ctx context.Context) (*model.CampaignStats, error) {
	return s.campaigns.Stats(ctx)
}

func (s *CampaignService) StartCampaign(ctx context.Context, campaignID, accountID int64) error {
	return s.dispatcher.Start(ctx, campaignID, accountID)
}

func (s *CampaignService) PauseCampaign(campaignID int64) error {
	return s.dispatcher.Pause(campaignID)
}

// GetProgress answers for any known campaign: the live tracker first,
// then the redis mirror, then a snapshot built from the stored counters.
func (s *CampaignService) GetProgress(ctx context.Context, campaignID int64) (*model.ProgressSnapshot, error) {
	if snap := s.dispatcher.Progress(campaignID); snap != nil {
		return snap, nil
	}
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return &model.ProgressSnapshot{
		CampaignID: campaignID,
		Sent:       c.SentCount,
		Failed:     c.FailedCount,
		Total:      c.TotalRecipients,
	}, nil
}

// SendTestRequest delivers one rendered message outside any campaign run.
type SendTestRequest struct {
	AccountID int64             `json:"account_id"`
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	BodyHTML  string            `json:"body_html"`
	BodyText  string            `json:"body_text"`
	Data      map[string]string `json:"data"`
}

func (p SendTestRequest) Validate() error {
	if p.AccountID == 0 {
		return errors.New("account_id is required")
	}
	if p.To == "" || !strings.Contains(p.To, "@") {
		return errors.New("to address is malformed")
	}
	if p.Subject == "" {
		return errors.New("subject is required")
	}
	if p.BodyHTML == "" && p.BodyText == "" {
		return errors.New("body_html or body_text is required")
	}
	return nil
}

// SendTest bypasses the dispatcher, limiter, and campaign state; it is
// the "does this account actually deliver" check.
func (s *CampaignService) SendTest(ctx context.Context, p SendTestRequest) (*gateway.SendOutcome, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accounts.Get(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.Enabled {
		return nil, ErrAccountDisabled
	}

	gw, err := s.newGateway(account)
	if err != nil {
		return nil, err
	}

	data := map[string]string{"email": p.To, "first_name": "", "last_name": ""}
	for k, v := range p.Data {
		data[k] = v
	}

	req := &gateway.SendRequest{
		To:      p.To,
		Subject: dispatch.Render(p.Subject, data),
		HTML:    dispatch.Render(p.BodyHTML, data),
	}
	if p.BodyText != "" {
		req.Text = dispatch.Render(p.BodyText, data)
	}
	return gw.Send(ctx, req), nil
}
