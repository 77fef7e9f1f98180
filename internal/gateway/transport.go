package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ojclient/pkg/errors"
	"ojclient/pkg/utils/contextkey"
)

// Request describes one outbound call. Path is joined to the transport base
// URL unless it is already absolute.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte
	// Anonymous calls carry no credential and never trigger a refresh.
	Anonymous bool
}

// Response carries response details.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender issues a request with the given access token attached.
type Sender interface {
	Do(ctx context.Context, req Request, accessToken string) (*Response, error)
}

// Transport is the HTTP Sender.
type Transport struct {
	baseURL string
	client  *http.Client
}

func NewTransport(baseURL string, timeout time.Duration) *Transport {
	return NewTransportWithClient(baseURL, &http.Client{Timeout: timeout})
}

func NewTransportWithClient(baseURL string, client *http.Client) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *Transport) BaseURL() string {
	return t.baseURL
}

func (t *Transport) Do(ctx context.Context, r Request, accessToken string) (*Response, error) {
	var reader io.Reader
	if len(r.Body) > 0 {
		reader = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, t.resolve(r), reader)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InvalidParams, "build request failed: %v", err)
	}
	if len(r.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if traceID := contextkey.String(ctx, contextkey.TraceID); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}
	for k, v := range r.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if accessToken != "" && !r.Anonymous {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, errors.TransportFailure(fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.TransportFailure(fmt.Errorf("read response body failed: %w", err))
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   duration,
	}, nil
}

func (t *Transport) resolve(r Request) string {
	target := r.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		target = t.baseURL + target
	}
	if len(r.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.Query.Encode()
	}
	return target
}
