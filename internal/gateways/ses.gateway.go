package gateway

import (
	"context"

	"github.com/kianmehr/campaign-gateway/internal/model"
)

// sesEndpoints maps an AWS region to its SES SMTP endpoint. Unknown
// regions fall back to us-east-1.
var sesEndpoints = map[string]string{
	"us-east-1":      "email-smtp.us-east-1.amazonaws.com",
	"us-west-2":      "email-smtp.us-west-2.amazonaws.com",
	"eu-west-1":      "email-smtp.eu-west-1.amazonaws.com",
	"eu-central-1":   "email-smtp.eu-central-1.amazonaws.com",
	"ap-southeast-1": "email-smtp.ap-southeast-1.amazonaws.com",
	"ap-southeast-2": "email-smtp.ap-southeast-2.amazonaws.com",
}

// AmazonSESGateway sends through the SES SMTP interface, which avoids
// SigV4 request signing. The account's api_key/api_secret hold the SES
// SMTP credentials.
type AmazonSESGateway struct {
	smtp *SMTPGateway
}

func NewAmazonSESGateway(account *model.ProviderAccount) *AmazonSESGateway {
	host, ok := sesEndpoints[account.Region]
	if !ok {
		host = sesEndpoints["us-east-1"]
	}

	relay := *account
	relay.Username = account.APIKey
	relay.Password = account.APISecret
	relay.UseTLS = true
	relay.UseSSL = false

	return &AmazonSESGateway{
		smtp: newSMTPGateway(&relay, string(model.ProviderTypeAmazonSES), host, 587),
	}
}

func (g *AmazonSESGateway) Name() string { return g.smtp.Name() }

func (g *AmazonSESGateway) Send(ctx context.Context, req *SendRequest) *SendOutcome {
	return g.smtp.Send(ctx, req)
}

func (g *AmazonSESGateway) TestConnection(ctx context.Context) *ConnectivityResult {
	return g.smtp.TestConnection(ctx)
}

func (g *AmazonSESGateway) Close() {
	g.smtp.Close()
}
