// Package gateway is the single outbound request pipeline of the client. It
// attaches the bearer token, turns error responses into *errs.APIError and
// recovers from authorization failures by refreshing the access token once.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/tim-admin/internal/client/tokenstore"
	"github.com/and161185/tim-admin/internal/errs"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-Id"

const defaultRefreshTimeout = 10 * time.Second

// Refresher exchanges a refresh token for a new access token. It must not go
// through the Gateway.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Config holds the Gateway collaborators that have defaults.
type Config struct {
	BaseURL string
	Client  *http.Client
	// RefreshTimeout bounds a single refresh call.
	RefreshTimeout time.Duration
	// OnExpired is called once per failed refresh after the store is cleared.
	OnExpired func(reason error)
	Metrics   *Metrics
}

// Gateway fronts every authenticated backend call.
type Gateway struct {
	base      string
	client    *http.Client
	store     tokenstore.Store
	refresher Refresher
	onExpired func(error)
	metrics   *Metrics
	log       *zap.Logger
	coord     *refreshCoordinator
}

// New constructs a Gateway. Only one should exist per process.
func New(cfg Config, store tokenstore.Store, refresher Refresher, log *zap.Logger) *Gateway {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.OnExpired == nil {
		cfg.OnExpired = func(error) {}
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		client:    cfg.Client,
		store:     store,
		refresher: refresher,
		onExpired: cfg.OnExpired,
		metrics:   cfg.Metrics,
		log:       log,
	}
	g.coord = &refreshCoordinator{
		run:     g.refresh,
		timeout: cfg.RefreshTimeout,
		onJoin:  g.metrics.joined.Inc,
	}
	return g
}

// BaseURL returns the API root without a trailing slash.
func (g *Gateway) BaseURL() string { return g.base }

// NewRequest builds a request for path relative to the API root.
func (g *Gateway) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, g.base+"/"+strings.TrimLeft(path, "/"), body)
}

// Do sends req with the current access token. Non-2xx responses are returned
// as *errs.APIError with the body consumed. A 401 triggers at most one
// refresh and one replay; a second 401 is returned to the caller.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	sent := g.store.Access()
	resp, err := g.send(req, sent)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return g.check(req, resp)
	}
	rejected := ErrorFromResponse(resp)
	g.log.Debug("access token rejected",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("message", rejected.Message),
	)

	next, err := g.renew(req.Context(), sent)
	if err != nil {
		return nil, err
	}

	g.metrics.replays.Inc()
	g.log.Debug("replaying request", zap.String("method", req.Method), zap.String("path", req.URL.Path))
	resp, err = g.send(req, next)
	if err != nil {
		return nil, err
	}
	return g.check(req, resp)
}

// JSON sends in (when non-nil) as a JSON body and decodes a 2xx body into out
// (when non-nil).
func (g *Gateway) JSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := g.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.Do(req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp, out)
}

// DecodeJSON decodes and closes resp. An empty body leaves out untouched.
func DecodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	err := json.NewDecoder(resp.Body).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// renew returns the token to replay with. A token already rotated since the
// request was sent is reused without a new refresh.
func (g *Gateway) renew(ctx context.Context, sent string) (string, error) {
	if cur, rotated, err := g.rotated(sent); rotated {
		return cur, err
	}
	return g.coord.acquireOrJoin(ctx, sent)
}

// rotated reports whether the stored access token is no longer sent. The check
// is repeated inside the coordinator: a refresh may finish between a caller's
// check and its join.
func (g *Gateway) rotated(sent string) (string, bool, error) {
	cur := g.store.Access()
	if cur == sent {
		return "", false, nil
	}
	if cur == "" {
		return "", true, fmt.Errorf("%w: credentials cleared", errs.ErrSessionExpired)
	}
	return cur, true, nil
}

// refresh runs inside the coordinator; at most one is in flight.
func (g *Gateway) refresh(ctx context.Context, sent string) (string, error) {
	if cur, rotated, err := g.rotated(sent); rotated {
		return cur, err
	}

	refreshToken := g.store.Refresh()
	if refreshToken == "" {
		g.metrics.refreshes.WithLabelValues(outcomeMissing).Inc()
		g.expire(errs.ErrNoRefreshToken)
		return "", fmt.Errorf("%w: %w", errs.ErrSessionExpired, errs.ErrNoRefreshToken)
	}

	access, err := g.refresher.Refresh(ctx, refreshToken)
	if err == nil && access == "" {
		err = errors.New("empty access token in refresh response")
	}
	if err != nil {
		g.metrics.refreshes.WithLabelValues(outcomeFailure).Inc()
		g.log.Info("token refresh failed", zap.Error(err))
		g.expire(err)
		return "", fmt.Errorf("%w: %w", errs.ErrSessionExpired, err)
	}

	// a logout while the refresh was in flight wins
	ok, err := g.store.RotateAccess(refreshToken, access)
	if err != nil {
		g.metrics.refreshes.WithLabelValues(outcomeFailure).Inc()
		g.expire(err)
		return "", fmt.Errorf("%w: persist refreshed token: %w", errs.ErrSessionExpired, err)
	}
	if !ok {
		g.metrics.refreshes.WithLabelValues(outcomeFailure).Inc()
		return "", fmt.Errorf("%w: logged out during refresh", errs.ErrSessionExpired)
	}
	g.metrics.refreshes.WithLabelValues(outcomeSuccess).Inc()
	g.log.Debug("access token refreshed")
	return access, nil
}

func (g *Gateway) expire(reason error) {
	if err := g.store.Clear(); err != nil {
		g.log.Warn("clear token store", zap.Error(err))
	}
	g.onExpired(reason)
}

// send dispatches a copy of req carrying token.
func (g *Gateway) send(req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind body: %w", err)
		}
		r.Body = body
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	} else {
		r.Header.Del("Authorization")
	}
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "application/json")
	}
	if r.Header.Get(HeaderRequestID) == "" {
		if id, err := uuid.NewV4(); err == nil {
			r.Header.Set(HeaderRequestID, id.String())
		}
	}

	start := time.Now()
	resp, err := g.client.Do(r)
	if err != nil {
		g.metrics.request(0)
		g.log.Debug("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		return nil, err
	}
	g.metrics.request(resp.StatusCode)
	g.log.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
		zap.String("request_id", r.Header.Get(HeaderRequestID)),
	)
	return resp, nil
}

func (g *Gateway) check(req *http.Request, resp *http.Response) (*http.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	apiErr := ErrorFromResponse(resp)
	g.log.Warn("api error",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", apiErr.Status),
		zap.String("message", apiErr.Message),
	)
	return nil, apiErr
}

// bufferBody makes req replayable by installing GetBody.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	req.ContentLength = int64(len(b))
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil }
	return nil
}
