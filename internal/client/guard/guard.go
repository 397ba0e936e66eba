// Package guard gates admin locations on the resolved session state.
package guard

import (
	"context"
	"fmt"

	"github.com/and161185/tim-admin/internal/client/session"
	"github.com/and161185/tim-admin/internal/errs"
)

// LoginLocation is the login entry point.
const LoginLocation = "/login"

// LoadingMessage is shown while the session is being resolved.
const LoadingMessage = "Verifying Session..."

// Outcome of a guard evaluation.
type Outcome int

const (
	Loading Outcome = iota
	Redirect
	Render
)

func (o Outcome) String() string {
	switch o {
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "loading"
	}
}

// Decision tells the caller what to show for a location.
type Decision struct {
	Outcome Outcome
	// To is the redirect target; From the originally requested location.
	To   string
	From string
}

// Checker resolves session state locally.
type Checker interface {
	CheckAuth() session.State
}

// Guard evaluates locations against the session.
type Guard struct {
	sess Checker
}

func New(sess Checker) *Guard { return &Guard{sess: sess} }

// Evaluate runs CheckAuth and decides for location.
func (g *Guard) Evaluate(location string) Decision {
	switch g.sess.CheckAuth().Status {
	case session.Authenticated:
		return Decision{Outcome: Render}
	case session.Unauthenticated:
		return Decision{Outcome: Redirect, To: LoginLocation, From: location}
	default:
		return Decision{Outcome: Loading}
	}
}

// RedirectError is returned by Gate when location requires a login.
type RedirectError struct {
	To   string
	From string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect to %s (from %s)", e.To, e.From)
}

func (e *RedirectError) Unwrap() error { return errs.ErrLoginRequired }

// Gate calls render when the session is authenticated, onLoading while it is
// unresolved, and returns *RedirectError otherwise.
func (g *Guard) Gate(ctx context.Context, location string, onLoading func(), render func(context.Context) error) error {
	d := g.Evaluate(location)
	switch d.Outcome {
	case Render:
		return render(ctx)
	case Redirect:
		return &RedirectError{To: d.To, From: d.From}
	default:
		if onLoading != nil {
			onLoading()
		}
		return nil
	}
}
