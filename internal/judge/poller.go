package judge

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ojclient/internal/common/metrics"
	"ojclient/internal/gateway"
	"ojclient/pkg/errors"
	"ojclient/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	DefaultPathPrefix  = "/submissions"
	DefaultInterval    = 500 * time.Millisecond
	DefaultMaxInterval = 2 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// Config tunes polling. Zero values take the defaults.
type Config struct {
	// BaseURL, when set, points polls at a judge host other than the API.
	// Such polls never carry the session credential.
	BaseURL     string        `yaml:"baseURL"`
	// AuthToken is sent as X-Auth-Token to a separate judge host.
	AuthToken   string        `yaml:"authToken"`
	PathPrefix  string        `yaml:"pathPrefix"`
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"maxInterval"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (c *Config) applyDefaults() {
	if c.PathPrefix == "" {
		c.PathPrefix = DefaultPathPrefix
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.MaxInterval < c.Interval {
		c.MaxInterval = c.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Poller follows one ticket at a time per Poll call.
type Poller struct {
	doer    gateway.Doer
	cfg     Config
	metrics metrics.Metrics
}

func NewPoller(doer gateway.Doer, cfg Config, m metrics.Metrics) *Poller {
	cfg.applyDefaults()
	return &Poller{doer: doer, cfg: cfg, metrics: metrics.OrNoop(m)}
}

// Poll fetches the ticket until its status is terminal and returns that reply.
// Polling stops at the first error; a transport failure is returned as is and
// the caller decides whether to poll again.
func (p *Poller) Poll(ctx context.Context, token string) (Details, error) {
	if strings.TrimSpace(token) == "" {
		return Details{}, errors.BadRequest("judge token is empty")
	}
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		details, err := p.fetch(pollCtx, token)
		if err != nil {
			p.metrics.ObservePollAttempts(attempt + 1)
			return Details{}, p.timeoutOr(ctx, pollCtx, token, err)
		}
		logger.Debug(ctx, "judge poll",
			zap.String("token", token),
			zap.Int("attempt", attempt+1),
			zap.Int("status_id", int(details.StatusID)),
		)
		if details.StatusID.Terminal() {
			p.metrics.ObservePollAttempts(attempt + 1)
			return details, nil
		}

		delay := ComputeBackoff(attempt, p.cfg.Interval, p.cfg.MaxInterval)
		if err := sleepCtx(pollCtx, delay); err != nil {
			p.metrics.ObservePollAttempts(attempt + 1)
			return Details{}, p.timeoutOr(ctx, pollCtx, token, err)
		}
	}
}

func (p *Poller) fetch(ctx context.Context, token string) (Details, error) {
	req := gateway.Request{
		Method: http.MethodGet,
		Path:   p.ticketPath(token),
		Query:  url.Values{"base64_encoded": {"false"}},
	}
	if p.cfg.BaseURL != "" {
		req.Anonymous = true
		if p.cfg.AuthToken != "" {
			req.Headers = map[string]string{"X-Auth-Token": p.cfg.AuthToken}
		}
	}
	resp, err := gateway.Call(ctx, p.doer, req, nil)
	if err != nil {
		return Details{}, err
	}
	return ParseDetails(resp.Body)
}

func (p *Poller) ticketPath(token string) string {
	path := strings.TrimRight(p.cfg.PathPrefix, "/") + "/" + url.PathEscape(token)
	if p.cfg.BaseURL != "" {
		return strings.TrimRight(p.cfg.BaseURL, "/") + path
	}
	return path
}

// timeoutOr reports JudgeTimeout when the polling budget ran out while the
// caller's own context is still live.
func (p *Poller) timeoutOr(parent, pollCtx context.Context, token string, err error) error {
	if parent.Err() == nil && stderrors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		logger.Warn(parent, "judge polling timed out", zap.String("token", token), zap.Duration("timeout", p.cfg.Timeout))
		return errors.Newf(errors.JudgeTimeout, "judging did not finish within %s", p.cfg.Timeout).WithDetail("token", token)
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return err
}
