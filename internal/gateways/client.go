package gateway

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/valyala/fasthttp"
)

const requestTimeout = 30 * time.Second

func newAPIClient() *fasthttp.Client {
	return &fasthttp.Client{
		ReadTimeout:         requestTimeout,
		WriteTimeout:        requestTimeout,
		MaxIdleConnDuration: 60 * time.Second,
	}
}

// execute performs one HTTP exchange with the 30s deadline (or the
// caller's earlier ctx deadline) and copies the response body out of the
// pooled buffers.
func execute(ctx context.Context, client *fasthttp.Client, prepare func(*fasthttp.Request)) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	prepare(req)

	deadline, ok := ctx.Deadline()
	if !ok || deadline.After(time.Now().Add(requestTimeout)) {
		deadline = time.Now().Add(requestTimeout)
	}

	if err := client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, err
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	return resp.StatusCode(), body, nil
}

// executeWithHeader is execute plus a copy of one response header, for
// providers that return the message id out of band.
func executeWithHeader(ctx context.Context, client *fasthttp.Client, prepare func(*fasthttp.Request), header string, out *string) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	prepare(req)

	deadline, ok := ctx.Deadline()
	if !ok || deadline.After(time.Now().Add(requestTimeout)) {
		deadline = time.Now().Add(requestTimeout)
	}

	if err := client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, err
	}

	*out = string(resp.Header.Peek(header))

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	return resp.StatusCode(), body, nil
}

// classifyStatus maps an HTTP status to an error kind. 2xx never reaches
// this point.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == fasthttp.StatusUnauthorized || code == fasthttp.StatusForbidden:
		return KindAuth
	case code == fasthttp.StatusRequestTimeout || code == fasthttp.StatusTooManyRequests:
		return KindTransient
	case code >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
