// Package gateway attaches session credentials to outbound calls and
// refreshes them on 401.
//
// Refresh is single-flight per session id: concurrent 401s share one
// exchange, and stores shared between processes are locked around it. Each
// original call is retried exactly once with the token it produced. A 401 on
// the retry, or a failed exchange, ends the session with AuthExpired.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ojclient/internal/common/metrics"
	"ojclient/internal/session"
	"ojclient/pkg/errors"
	"ojclient/pkg/utils/contextkey"
	"ojclient/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/syncx"
	"go.uber.org/zap"
)

const (
	DefaultRefreshPath    = "/auth/refresh"
	DefaultLoginPath      = "/auth/login"
	DefaultRefreshTimeout = 10 * time.Second
)

// Doer issues calls under one session.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithRefreshPath(path string) Option {
	return func(g *Gateway) {
		if path != "" {
			g.refreshPath = path
		}
	}
}

func WithLoginPath(path string) Option {
	return func(g *Gateway) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// WithRefreshTimeout bounds one refresh exchange. The exchange is detached
// from the cancellation of whichever caller started it.
func WithRefreshTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.refreshTimeout = d
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = metrics.OrNoop(m)
	}
}

// WithRefreshLock serializes refresh exchanges with other processes sharing
// the session store. Stores implementing session.Locker are used by default.
func WithRefreshLock(l session.Locker) Option {
	return func(g *Gateway) {
		g.locker = l
	}
}

// WithOnExpired registers a hook run once when a session is terminated.
func WithOnExpired(fn func(ctx context.Context, sessionID string)) Option {
	return func(g *Gateway) {
		g.onExpired = fn
	}
}

// Gateway is safe for concurrent use across sessions.
type Gateway struct {
	sender         Sender
	store          session.Store
	flight         syncx.SingleFlight
	locker         session.Locker
	refreshPath    string
	loginPath      string
	refreshTimeout time.Duration
	metrics        metrics.Metrics
	onExpired      func(ctx context.Context, sessionID string)
}

func New(sender Sender, store session.Store, opts ...Option) *Gateway {
	g := &Gateway{
		sender:         sender,
		store:          store,
		flight:         syncx.NewSingleFlight(),
		refreshPath:    DefaultRefreshPath,
		loginPath:      DefaultLoginPath,
		refreshTimeout: DefaultRefreshTimeout,
		metrics:        metrics.Noop{},
	}
	if l, ok := store.(session.Locker); ok {
		g.locker = l
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bind returns a Doer scoped to sessionID.
func (g *Gateway) Bind(sessionID string) *Client {
	return &Client{gw: g, sessionID: sessionID}
}

// Do issues req under sessionID.
func (g *Gateway) Do(ctx context.Context, sessionID string, req Request) (*Response, error) {
	ctx = contextkey.WithSessionID(ctx, sessionID)
	if req.Anonymous {
		return g.sender.Do(ctx, req, "")
	}

	creds, err := g.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, errors.SessionNotFound) {
			return nil, errors.AuthExpiredError(err)
		}
		return nil, err
	}

	resp, err := g.sender.Do(ctx, req, creds.Access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	fresh, err := g.refresh(ctx, sessionID, creds.Access)
	if err != nil {
		return nil, err
	}

	resp, err = g.sender.Do(ctx, req, fresh.Access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		logger.Warn(ctx, "refreshed token rejected", zap.String("path", req.Path))
		g.expire(ctx, sessionID)
		return nil, errors.New(errors.AuthExpired).WithDetail("path", req.Path)
	}
	return resp, nil
}

// refresh returns credentials newer than stale, exchanging the refresh token
// only if nobody else has already replaced stale.
func (g *Gateway) refresh(ctx context.Context, sessionID, stale string) (session.Credentials, error) {
	val, err := g.flight.Do(sessionID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
		defer cancel()

		if g.locker != nil {
			unlock, err := g.locker.Lock(rctx, sessionID)
			if err != nil {
				g.metrics.IncRefresh("failed")
				return nil, err
			}
			defer unlock()
		}

		current, err := g.store.Load(rctx, sessionID)
		if err != nil {
			if errors.Is(err, errors.SessionNotFound) {
				return nil, errors.AuthExpiredError(err)
			}
			return nil, err
		}
		if current.Access != "" && current.Access != stale {
			g.metrics.IncRefresh("reused")
			return current, nil
		}

		logger.Info(rctx, "refreshing access token")
		fresh, err := g.exchange(rctx, current.Refresh)
		if err != nil {
			g.metrics.IncRefresh("failed")
			logger.Warn(rctx, "token refresh failed", zap.Error(err))
			g.expire(rctx, sessionID)
			return nil, errors.AuthExpiredError(err)
		}
		if err := g.store.Save(rctx, sessionID, fresh); err != nil {
			g.metrics.IncRefresh("failed")
			return nil, err
		}
		g.metrics.IncRefresh("ok")
		return fresh, nil
	})
	if err != nil {
		return session.Credentials{}, err
	}
	return val.(session.Credentials), nil
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (g *Gateway) exchange(ctx context.Context, refreshToken string) (session.Credentials, error) {
	if refreshToken == "" {
		return session.Credentials{}, errors.Newf(errors.TokenInvalid, "no refresh token held")
	}
	req, err := JSONRequest(http.MethodPost, g.refreshPath, refreshRequest{Refresh: refreshToken})
	if err != nil {
		return session.Credentials{}, err
	}
	req.Anonymous = true

	var pair tokenPair
	if _, err := Call(ctx, senderDoer{g.sender}, req, &pair); err != nil {
		return session.Credentials{}, err
	}
	if pair.Access == "" {
		return session.Credentials{}, errors.ProtocolFailure("refresh response has no access token")
	}
	creds := session.Credentials{Access: pair.Access, Refresh: pair.Refresh}
	if creds.Refresh == "" {
		creds.Refresh = refreshToken
	}
	return session.WithExpiry(creds), nil
}

func (g *Gateway) expire(ctx context.Context, sessionID string) {
	if err := g.store.Delete(ctx, sessionID); err != nil {
		logger.Error(ctx, "delete expired session failed", zap.Error(err))
	}
	if g.onExpired != nil {
		g.onExpired(ctx, sessionID)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges a username and password for a token pair stored under
// sessionID.
func (g *Gateway) Login(ctx context.Context, sessionID, username, password string) (session.Credentials, error) {
	ctx = contextkey.WithSessionID(ctx, sessionID)
	req, err := JSONRequest(http.MethodPost, g.loginPath, loginRequest{Username: username, Password: password})
	if err != nil {
		return session.Credentials{}, err
	}
	req.Anonymous = true

	var pair tokenPair
	if _, err := Call(ctx, senderDoer{g.sender}, req, &pair); err != nil {
		if errors.Is(err, errors.Unauthorized) {
			return session.Credentials{}, errors.Wrapf(err, errors.LoginFailed, "%s", err.Error())
		}
		return session.Credentials{}, err
	}
	if pair.Access == "" || pair.Refresh == "" {
		return session.Credentials{}, errors.ProtocolFailure("login response is missing tokens")
	}
	creds := session.WithExpiry(session.Credentials{Access: pair.Access, Refresh: pair.Refresh})
	if err := g.store.Save(ctx, sessionID, creds); err != nil {
		return session.Credentials{}, err
	}
	logger.Info(ctx, "logged in", zap.String("username", username))
	return creds, nil
}

// Logout forgets the session locally.
func (g *Gateway) Logout(ctx context.Context, sessionID string) error {
	return g.store.Delete(ctx, sessionID)
}

// Credentials returns the stored pair for display.
func (g *Gateway) Credentials(ctx context.Context, sessionID string) (session.Credentials, error) {
	return g.store.Load(ctx, sessionID)
}

// Client is a Gateway bound to one session.
type Client struct {
	gw        *Gateway
	sessionID string
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	return c.gw.Do(ctx, c.sessionID, req)
}

// DoJSON encodes in as the body (when non-nil) and decodes a 2xx reply into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := JSONRequest(method, path, in)
	if err != nil {
		return err
	}
	_, err = Call(ctx, c, req, out)
	return err
}

type senderDoer struct {
	sender Sender
}

func (s senderDoer) Do(ctx context.Context, req Request) (*Response, error) {
	return s.sender.Do(ctx, req, "")
}

// JSONRequest builds a request with in encoded as the JSON body.
func JSONRequest(method, path string, in any) (Request, error) {
	req := Request{Method: method, Path: path}
	if in == nil {
		return req, nil
	}
	body, err := json.Marshal(in)
	if err != nil {
		return req, errors.Wrapf(err, errors.InvalidParams, "encode request body failed: %v", err)
	}
	req.Body = body
	return req, nil
}

// Call issues req through d, maps a non-2xx status to a coded error and
// decodes the body into out when out is non-nil.
func Call(ctx context.Context, d Doer, req Request, out any) (*Response, error) {
	resp, err := d.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := CheckStatus(resp); err != nil {
		return resp, err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, errors.Wrapf(err, errors.ProtocolError, "decode response failed: %v", err)
		}
	}
	return resp, nil
}
