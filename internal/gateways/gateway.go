package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kianmehr/campaign-gateway/internal/model"
)

var (
	// ErrUnknownProvider is returned by New for an unrecognized provider
	// type. This is a configuration error, not a delivery failure.
	ErrUnknownProvider = errors.New("unknown provider type")
)

// ErrorKind classifies a failed send so the caller can decide whether to
// retry, give up on the recipient, or abort the whole run.
type ErrorKind string

const (
	KindNone      ErrorKind = "none"
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
	KindAuth      ErrorKind = "auth"
)

// SendRequest carries one fully rendered message for one recipient.
type SendRequest struct {
	To      string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

// SendOutcome is the result of one delivery attempt. Delivery failures are
// reported through Success and Kind, never as a Go error.
type SendOutcome struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id"`
	Provider  string    `json:"provider"`
	Recipient string    `json:"recipient"`
	Response  string    `json:"response"`
	Error     string    `json:"error"`
	Kind      ErrorKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectivityResult reports whether an account's backend is reachable
// with its stored credentials.
type ConnectivityResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Provider string `json:"provider"`
}

// EmailGateway is the one contract every delivery backend implements.
type EmailGateway interface {
	Send(ctx context.Context, req *SendRequest) *SendOutcome
	TestConnection(ctx context.Context) *ConnectivityResult
	Name() string
}

// New constructs the gateway matching an account's provider type.
func New(account *model.ProviderAccount) (EmailGateway, error) {
	if account == nil {
		return nil, errors.New("account is required")
	}
	switch account.ProviderType {
	case model.ProviderTypeSMTP:
		return NewSMTPGateway(account), nil
	case model.ProviderTypeSendgrid:
		return NewSendgridGateway(account), nil
	case model.ProviderTypeMailgun:
		return NewMailgunGateway(account), nil
	case model.ProviderTypePostmark:
		return NewPostmarkGateway(account), nil
	case model.ProviderTypeMailjet:
		return NewMailjetGateway(account), nil
	case model.ProviderTypeAmazonSES:
		return NewAmazonSESGateway(account), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, account.ProviderType)
	}
}

func success(provider, recipient, messageID, response string) *SendOutcome {
	return &SendOutcome{
		Success:   true,
		MessageID: messageID,
		Provider:  provider,
		Recipient: recipient,
		Response:  response,
		Kind:      KindNone,
		Timestamp: time.Now(),
	}
}

func failure(provider, recipient, errText string, kind ErrorKind) *SendOutcome {
	return &SendOutcome{
		Provider:  provider,
		Recipient: recipient,
		Error:     errText,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// htmlToText derives a plain-text alternative from an HTML body: tags
// stripped, whitespace collapsed.
func htmlToText(html string) string {
	text := tagPattern.ReplaceAllString(html, "")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// formatAddress renders "Name <addr>" or the bare address.
func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
