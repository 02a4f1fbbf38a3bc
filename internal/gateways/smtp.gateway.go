package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kianmehr/campaign-gateway/internal/model"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
)

// SMTPGateway delivers through a plain SMTP relay. The connection is
// established lazily and reused across a batch; a transport failure drops
// it and the next send reconnects.
type SMTPGateway struct {
	providerName string
	host         string
	port         int
	username     string
	password     string
	fromEmail    string
	fromName     string
	replyTo      string
	useTLS       bool // STARTTLS after EHLO
	useSSL       bool // implicit TLS on connect
	tlsConfig    *tls.Config

	mu     sync.Mutex
	client *smtp.Client
}

func NewSMTPGateway(account *model.ProviderAccount) *SMTPGateway {
	return newSMTPGateway(account, string(model.ProviderTypeSMTP), account.Host, account.Port)
}

func newSMTPGateway(account *model.ProviderAccount, providerName, host string, port int) *SMTPGateway {
	if port == 0 {
		port = 587
	}
	return &SMTPGateway{
		providerName: providerName,
		host:         host,
		port:         port,
		username:     account.Username,
		password:     account.Password,
		fromEmail:    account.FromEmail,
		fromName:     account.FromName,
		replyTo:      account.ReplyTo,
		useTLS:       account.UseTLS,
		useSSL:       account.UseSSL,
		tlsConfig: &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		},
	}
}

func (g *SMTPGateway) Name() string { return g.providerName }

func (g *SMTPGateway) Send(ctx context.Context, req *SendRequest) *SendOutcome {
	message, messageID := g.buildMessage(req)

	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.deliver(ctx, req.To, message)
	if err != nil {
		// A dead connection from a previous batch send looks like a
		// transport error; reconnect once before reporting.
		if isTransportError(err) {
			g.dropClient()
			err = g.deliver(ctx, req.To, message)
		}
	}
	if err != nil {
		g.dropClient()
		kind := classifySMTPError(err)
		logger.Warn("smtp send failed", "host", g.host, "recipient", req.To, "kind", string(kind), "error", err.Error())
		return failure(g.providerName, req.To, err.Error(), kind)
	}

	return success(g.providerName, req.To, messageID, "250 message accepted")
}

func (g *SMTPGateway) TestConnection(ctx context.Context) *ConnectivityResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureClient(ctx); err != nil {
		return &ConnectivityResult{
			Message:  err.Error(),
			Provider: g.providerName,
		}
	}
	if err := g.client.Noop(); err != nil {
		g.dropClient()
		return &ConnectivityResult{
			Message:  err.Error(),
			Provider: g.providerName,
		}
	}
	return &ConnectivityResult{
		Success:  true,
		Message:  fmt.Sprintf("connected to %s:%d", g.host, g.port),
		Provider: g.providerName,
	}
}

// Close quits the cached session, if any.
func (g *SMTPGateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		_ = g.client.Quit()
		g.client = nil
	}
}

func (g *SMTPGateway) deliver(ctx context.Context, to string, message []byte) error {
	if err := g.ensureClient(ctx); err != nil {
		return err
	}

	c := g.client
	if err := c.Mail(g.fromEmail); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		_ = c.Reset()
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		_ = w.Close()
		return fmt.Errorf("data write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data close: %w", err)
	}
	return nil
}

func (g *SMTPGateway) ensureClient(ctx context.Context) error {
	if g.client != nil {
		return nil
	}

	addr := net.JoinHostPort(g.host, strconv.Itoa(g.port))
	dialer := &net.Dialer{Timeout: requestTimeout}

	var conn net.Conn
	var err error
	if g.useSSL {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, g.tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	client, err := smtp.NewClient(conn, g.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("new client: %w", err)
	}

	if err := client.Hello("localhost"); err != nil {
		_ = client.Close()
		return fmt.Errorf("hello: %w", err)
	}

	if g.useTLS && !g.useSSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(g.tlsConfig); err != nil {
				_ = client.Close()
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if g.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", g.username, g.password, g.host)
			if err := client.Auth(auth); err != nil {
				_ = client.Close()
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	logger.Debug("smtp session established", "host", g.host, "port", g.port)
	g.client = client
	return nil
}

func (g *SMTPGateway) dropClient() {
	if g.client != nil {
		_ = g.client.Close()
		g.client = nil
	}
}

// buildMessage renders a multipart/alternative MIME message and returns
// it with its Message-ID.
func (g *SMTPGateway) buildMessage(req *SendRequest) ([]byte, string) {
	domain := g.fromEmail
	if i := strings.Index(domain, "@"); i >= 0 {
		domain = domain[i+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)

	text := req.Text
	if text == "" {
		text = htmlToText(req.HTML)
	}
	replyTo := req.ReplyTo
	if replyTo == "" {
		replyTo = g.replyTo
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	from := g.fromEmail
	if g.fromName != "" {
		from = (&mail.Address{Name: g.fromName, Address: g.fromEmail}).String()
	}

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", req.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", sanitizeHeader(req.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	if replyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", sanitizeHeader(replyTo))
	}
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	buf.WriteString("\r\n")

	plain, _ := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	_, _ = io.WriteString(plain, text)

	if req.HTML != "" {
		html, _ := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"text/html; charset=UTF-8"},
		})
		_, _ = io.WriteString(html, req.HTML)
	}
	_ = mw.Close()

	return buf.Bytes(), messageID
}

func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}

// classifySMTPError maps an SMTP reply or transport failure to an error
// kind. Authentication replies (530/534/535/538) abort the whole run.
func classifySMTPError(err error) ErrorKind {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch proto.Code {
		case 530, 534, 535, 538:
			return KindAuth
		}
		if proto.Code >= 400 && proto.Code < 500 {
			return KindTransient
		}
		if proto.Code >= 500 {
			return KindPermanent
		}
	}
	return KindTransient
}

func isTransportError(err error) bool {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
