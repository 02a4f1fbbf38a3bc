package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
)

const (
	mailjetSendURL   = "https://api.mailjet.com/v3.1/send"
	mailjetAPIKeyURL = "https://api.mailjet.com/v3/REST/apikey"
)

// MailjetGateway talks to the Mailjet Send API v3.1 with key/secret basic
// auth.
type MailjetGateway struct {
	apiKey    string
	apiSecret string
	fromEmail string
	fromName  string
	sendURL   string
	testURL   string
	client    *fasthttp.Client
}

func NewMailjetGateway(account *model.ProviderAccount) *MailjetGateway {
	return &MailjetGateway{
		apiKey:    account.APIKey,
		apiSecret: account.APISecret,
		fromEmail: account.FromEmail,
		fromName:  account.FromName,
		sendURL:   mailjetSendURL,
		testURL:   mailjetAPIKeyURL,
		client:    newAPIClient(),
	}
}

func (g *MailjetGateway) Name() string { return string(model.ProviderTypeMailjet) }

type mailjetMessage struct {
	From struct {
		Email string `json:"Email"`
		Name  string `json:"Name,omitempty"`
	} `json:"From"`
	To []struct {
		Email string `json:"Email"`
	} `json:"To"`
	Subject  string `json:"Subject"`
	HTMLPart string `json:"HTMLPart"`
	TextPart string `json:"TextPart"`
}

func (g *MailjetGateway) Send(ctx context.Context, req *SendRequest) *SendOutcome {
	text := req.Text
	if text == "" {
		text = htmlToText(req.HTML)
	}

	var msg mailjetMessage
	msg.From.Email = g.fromEmail
	msg.From.Name = g.fromName
	msg.To = append(msg.To, struct {
		Email string `json:"Email"`
	}{Email: req.To})
	msg.Subject = req.Subject
	msg.HTMLPart = req.HTML
	msg.TextPart = text

	body, err := json.Marshal(map[string][]mailjetMessage{"Messages": {msg}})
	if err != nil {
		return failure(g.Name(), req.To, err.Error(), KindPermanent)
	}

	code, respBody, err := execute(ctx, g.client, func(r *fasthttp.Request) {
		r.SetRequestURI(g.sendURL)
		r.Header.SetMethod(fasthttp.MethodPost)
		r.Header.SetContentType("application/json")
		r.Header.Set("Authorization", basicAuth(g.apiKey, g.apiSecret))
		r.SetBody(body)
	})
	if err != nil {
		return failure(g.Name(), req.To, err.Error(), KindTransient)
	}

	if code == fasthttp.StatusOK {
		var result struct {
			Messages []struct {
				Status string `json:"Status"`
				To     []struct {
					MessageID json.Number `json:"MessageID"`
				} `json:"To"`
				Errors []struct {
					ErrorMessage string `json:"ErrorMessage"`
				} `json:"Errors"`
			} `json:"Messages"`
		}
		if err := json.Unmarshal(respBody, &result); err == nil && len(result.Messages) > 0 {
			m := result.Messages[0]
			if m.Status == "success" {
				messageID := ""
				if len(m.To) > 0 {
					messageID = m.To[0].MessageID.String()
				}
				return success(g.Name(), req.To, messageID, "success")
			}
			errText := "unknown error"
			if len(m.Errors) > 0 {
				errText = m.Errors[0].ErrorMessage
			}
			return failure(g.Name(), req.To, errText, KindPermanent)
		}
		return failure(g.Name(), req.To, "malformed response", KindPermanent)
	}

	logger.Warn("mailjet send rejected", "status", code, "recipient", req.To)
	return failure(g.Name(), req.To,
		fmt.Sprintf("api error: %d - %s", code, respBody), classifyStatus(code))
}

func (g *MailjetGateway) TestConnection(ctx context.Context) *ConnectivityResult {
	code, _, err := execute(ctx, g.client, func(r *fasthttp.Request) {
		r.SetRequestURI(g.testURL)
		r.Header.SetMethod(fasthttp.MethodGet)
		r.Header.Set("Authorization", basicAuth(g.apiKey, g.apiSecret))
	})
	if err != nil {
		return &ConnectivityResult{Message: err.Error(), Provider: g.Name()}
	}
	if code != fasthttp.StatusOK {
		return &ConnectivityResult{
			Message:  fmt.Sprintf("api error: %d", code),
			Provider: g.Name(),
		}
	}
	return &ConnectivityResult{Success: true, Message: "mailjet api connected", Provider: g.Name()}
}
