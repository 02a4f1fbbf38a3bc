package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
)

// MailgunGateway talks to the Mailgun messages API with form-encoded
// bodies and basic auth ("api" + key).
type MailgunGateway struct {
	apiKey    string
	fromEmail string
	fromName  string
	baseURL   string
	client    *fasthttp.Client
}

func NewMailgunGateway(account *model.ProviderAccount) *MailgunGateway {
	host := "api.mailgun.net"
	if account.Region == "eu" {
		host = "api.eu.mailgun.net"
	}
	return &MailgunGateway{
		apiKey:    account.APIKey,
		fromEmail: account.FromEmail,
		fromName:  account.FromName,
		baseURL:   fmt.Sprintf("https://%s/v3/%s", host, account.Domain),
		client:    newAPIClient(),
	}
}

func (g *MailgunGateway) Name() string { return string(model.ProviderTypeMailgun) }

func (g *MailgunGateway) Send(ctx context.Context, req *SendRequest) *SendOutcome {
	text := req.Text
	if text == "" {
		text = htmlToText(req.HTML)
	}

	form := url.Values{}
	form.Set("from", formatAddress(g.fromName, g.fromEmail))
	form.Set("to", req.To)
	form.Set("subject", req.Subject)
	form.Set("html", req.HTML)
	form.Set("text", text)
	if req.ReplyTo != "" {
		form.Set("h:Reply-To", req.ReplyTo)
	}

	code, respBody, err := execute(ctx, g.client, func(r *fasthttp.Request) {
		r.SetRequestURI(g.baseURL + "/messages")
		r.Header.SetMethod(fasthttp.MethodPost)
		r.Header.SetContentType("application/x-www-form-urlencoded")
		r.Header.Set("Authorization", basicAuth("api", g.apiKey))
		r.SetBodyString(form.Encode())
	})
	if err != nil {
		return failure(g.Name(), req.To, err.Error(), KindTransient)
	}

	if code == fasthttp.StatusOK {
		var result struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &result)
		return success(g.Name(), req.To, result.ID, result.Message)
	}

	logger.Warn("mailgun send rejected", "status", code, "recipient", req.To)
	return failure(g.Name(), req.To,
		fmt.Sprintf("api error: %d - %s", code, respBody), classifyStatus(code))
}

func (g *MailgunGateway) TestConnection(ctx context.Context) *ConnectivityResult {
	code, _, err := execute(ctx, g.client, func(r *fasthttp.Request) {
		r.SetRequestURI(g.baseURL + "/stats/total?event=accepted&duration=1h")
		r.Header.SetMethod(fasthttp.MethodGet)
		r.Header.Set("Authorization", basicAuth("api", g.apiKey))
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
	return &ConnectivityResult{Success: true, Message: "mailgun api connected", Provider: g.Name()}
}
