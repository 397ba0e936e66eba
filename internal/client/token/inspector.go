// Package token interprets raw access tokens on the client side.
//
// The client never holds the signing key, so tokens are decoded without
// signature verification. Decoding fails softly: malformed input yields nil.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/tim-admin/internal/model"
)

// DefaultRefreshBuffer is how long before hard expiry a token counts as due for refresh.
const DefaultRefreshBuffer = 5 * time.Minute

// Inspector computes expiry predicates for access tokens.
type Inspector struct {
	now    func() time.Time
	buffer time.Duration
	parser *jwt.Parser
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Inspector) { i.now = now }
}

// WithRefreshBuffer overrides DefaultRefreshBuffer.
func WithRefreshBuffer(d time.Duration) Option {
	return func(i *Inspector) { i.buffer = d }
}

// NewInspector constructs an Inspector.
func NewInspector(opts ...Option) *Inspector {
	i := &Inspector{
		now:    time.Now,
		buffer: DefaultRefreshBuffer,
		parser: jwt.NewParser(),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Decode returns the token claims or nil if the token cannot be decoded.
func (i *Inspector) Decode(raw string) *model.Claims {
	if raw == "" {
		return nil
	}
	var claims model.Claims
	if _, _, err := i.parser.ParseUnverified(raw, &claims); err != nil {
		return nil
	}
	return &claims
}

// ExpiresAt returns the claimed expiry or the zero time if the token cannot be decoded.
func (i *Inspector) ExpiresAt(raw string) time.Time {
	c := i.Decode(raw)
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ExpiryMillis returns the expiry in epoch milliseconds, 0 if undecodable.
func (i *Inspector) ExpiryMillis(raw string) int64 {
	exp := i.ExpiresAt(raw)
	if exp.IsZero() {
		return 0
	}
	return exp.UnixMilli()
}

// IsExpired reports whether now has reached the claimed expiry.
// Undecodable tokens are expired.
func (i *Inspector) IsExpired(raw string) bool {
	exp := i.ExpiresAt(raw)
	if exp.IsZero() {
		return true
	}
	return !i.now().Before(exp)
}

// ShouldRefresh reports whether the token expires within the refresh buffer.
func (i *Inspector) ShouldRefresh(raw string) bool {
	exp := i.ExpiresAt(raw)
	if exp.IsZero() {
		return true
	}
	return exp.Sub(i.now()) < i.buffer
}
