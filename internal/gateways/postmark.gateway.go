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
	postmarkSendURL   = "https://api.postmarkapp.com/email"
	postmarkServerURL = "https://api.postmarkapp.com/server"
)

// PostmarkGateway talks to the Postmark email API, authenticated with the
// server token header.
type PostmarkGateway struct {
	serverToken string
	fromEmail   string
	fromName    string
	sendURL     string
	testURL     string
	client      *fasthttp.Client
}

func NewPostmarkGateway(account *model.ProviderAccount) *PostmarkGateway {
	return &PostmarkGateway{
		serverToken: account.APIKey,
		fromEmail:   account.FromEmail,
		fromName:    account.FromName,
		sendURL:     postmarkSendURL,
		testURL:     postmarkServerURL,
		client:      newAPIClient(),
	}
}

func (g *PostmarkGateway) Name() string { return string(model.ProviderTypePostmark) }

func (g *PostmarkGateway) Send(ctx context.Context, req *SendRequest) *SendOutcome {
	text := req.Text
	if text == "" {
		text = htmlToText(req.HTML)
	}

	payload := map[string]string{
		"From":          formatAddress(g.fromName, g.fromEmail),
		"To":            req.To,
		"Subject":       req.Subject,
		"HtmlBody":      req.HTML,
		"TextBody":      text,
		"MessageStream": "broadcast",
	}
	if req.ReplyTo != "" {
		payload["ReplyTo"] = req.ReplyTo
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return failure(g.Name(), req.To, err.Error(), KindPermanent)
	}

	code, respBody, err := execute(ctx, g.client, func(r *fasthttp.Request) {
		r.SetRequestURI(g.sendURL)
		r.Header.SetMethod(fasthttp.MethodPost)
		r.Header.SetContentType("application/json")
		r.Header.Set("Accept", "application/json")
		r.Header.Set("X-Postmark-Server-Token", g.serverToken)
		r.SetBody(body)
	})
	if err != nil {
		return failure(g.Name(), req.To, err.Error(), KindTransient)
	}

	if code == fasthttp.StatusOK {
		var result struct {
			MessageID string `json:"MessageID"`
			Message   string `json:"Message"`
		}
		_ = json.Unmarshal(respBody, &result)
		return success(g.Name(), req.To, result.MessageID, result.Message)
	}

	logger.Warn("postmark send rejected", "status", code, "recipient", req.To)
	return failure(g.Name(), req.To,
		fmt.Sprintf("api error: %d - %s", code, respBody), classifyStatus(code))
}

func (g *PostmarkGateway) TestConnection(ctx context.Context) *ConnectivityResult {
	code, respBody, err := execute(ctx, g.client, func(r *fasthttp.Request) {
		r.SetRequestURI(g.testURL)
		r.Header.SetMethod(fasthttp.MethodGet)
		r.Header.Set("Accept", "application/json")
		r.Header.Set("X-Postmark-Server-Token", g.serverToken)
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
	var server struct {
		Name string `json:"Name"`
	}
	_ = json.Unmarshal(respBody, &server)
	return &ConnectivityResult{
		Success:  true,
		Message:  fmt.Sprintf("postmark connected: %s", server.Name),
		Provider: g.Name(),
	}
}
