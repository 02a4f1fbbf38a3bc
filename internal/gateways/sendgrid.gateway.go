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
	sendgridSendURL    = "https://api.sendgrid.com/v3/mail/send"
	sendgridProfileURL = "https://api.sendgrid.com/v3/user/profile"
)

// SendgridGateway talks to the SendGrid Mail Send API v3.
type SendgridGateway struct {
	apiKey    string
	fromEmail string
	fromName  string
	sendURL   string
	testURL   string
	client    *fasthttp.Client
}

func NewSendgridGateway(account *model.ProviderAccount) *SendgridGateway {
	return &SendgridGateway{
		apiKey:    account.APIKey,
		fromEmail: account.FromEmail,
		fromName:  account.FromName,
		sendURL:   sendgridSendURL,
		testURL:   sendgridProfileURL,
		client:    newAPIClient(),
	}
}

func (g *SendgridGateway) Name() string { return string(model.ProviderTypeSendgrid) }

type sendgridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendgridPayload struct {
	Personalizations []struct {
		To []sendgridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendgridAddress   `json:"from"`
	ReplyTo *sendgridAddress  `json:"reply_to,omitempty"`
	Subject string            `json:"subject"`
	Content []sendgridContent `json:"content"`
}

func (g *SendgridGateway) Send(ctx context.Context, req *SendRequest) *SendOutcome {
	text := req.Text
	if text == "" {
		text = htmlToText(req.HTML)
	}

	payload := sendgridPayload{
		From:    sendgridAddress{Email: g.fromEmail, Name: g.fromName},
		Subject: req.Subject,
		Content: []sendgridContent{{Type: "text/plain", Value: text}},
	}
	payload.Personalizations = append(payload.Personalizations, struct {
		To []sendgridAddress `json:"to"`
	}{To: []sendgridAddress{{Email: req.To}}})
	if req.HTML != "" {
		payload.Content = append(payload.Content, sendgridContent{Type: "text/html", Value: req.HTML})
	}
	if req.ReplyTo != "" {
		payload.ReplyTo = &sendgridAddress{Email: req.ReplyTo}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return failure(g.Name(), req.To, err.Error(), KindPermanent)
	}

	var messageID string
	code, respBody, err := executeWithHeader(ctx, g.client, func(r *fasthttp.Request) {
		r.SetRequestURI(g.sendURL)
		r.Header.SetMethod(fasthttp.MethodPost)
		r.Header.SetContentType("application/json")
		r.Header.Set("Authorization", "Bearer "+g.apiKey)
		r.SetBody(body)
	}, "X-Message-Id", &messageID)
	if err != nil {
		return failure(g.Name(), req.To, err.Error(), KindTransient)
	}

	if code == fasthttp.StatusOK || code == fasthttp.StatusAccepted {
		return success(g.Name(), req.To, messageID, fmt.Sprintf("status: %d", code))
	}

	logger.Warn("sendgrid send rejected", "status", code, "recipient", req.To)
	return failure(g.Name(), req.To,
		fmt.Sprintf("api error: %d - %s", code, respBody), classifyStatus(code))
}

func (g *SendgridGateway) TestConnection(ctx context.Context) *ConnectivityResult {
	code, _, err := execute(ctx, g.client, func(r *fasthttp.Request) {
		r.SetRequestURI(g.testURL)
		r.Header.SetMethod(fasthttp.MethodGet)
		r.Header.Set("Authorization", "Bearer "+g.apiKey)
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
	return &ConnectivityResult{Success: true, Message: "sendgrid api connected", Provider: g.Name()}
}
