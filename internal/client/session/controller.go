// Package session owns the authentication state machine of the client and
// publishes its state to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/tim-admin/internal/client/notify"
	"github.com/and161185/tim-admin/internal/client/token"
	"github.com/and161185/tim-admin/internal/client/tokenstore"
	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
)

// Status is the resolved session status.
type Status int

const (
	Unresolved Status = iota
	Authenticated
	Unauthenticated
)

func (s Status) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unresolved"
	}
}

// State is a snapshot of the session. User is set only when Authenticated.
type State struct {
	Status Status
	User   *model.User
}

// Authenticator calls the login endpoint.
type Authenticator interface {
	Login(ctx context.Context, creds model.Credentials) (*model.LoginResponse, error)
}

// Navigator moves the operator to the login entry point.
type Navigator func()

// Notices shown by the controller.
const (
	MsgLoginOK        = "Login successful"
	MsgLoginFailed    = "Login failed"
	MsgLoggedOut      = "Logged out successfully"
	MsgSessionExpired = "Session expired. Please log in again."
)

// Controller holds the session state. Login, Logout and Expire are the only
// mutating entry points; CheckAuth only resolves state from storage.
type Controller struct {
	store    tokenstore.Store
	insp     *token.Inspector
	auth     Authenticator
	notifier notify.Notifier
	navigate Navigator
	log      *zap.Logger

	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// NewController constructs a Controller in the Unresolved state.
func NewController(store tokenstore.Store, insp *token.Inspector, auth Authenticator, n notify.Notifier, nav Navigator, log *zap.Logger) *Controller {
	if n == nil {
		n = notify.Discard
	}
	if nav == nil {
		nav = func() {}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store:    store,
		insp:     insp,
		auth:     auth,
		notifier: n,
		navigate: nav,
		log:      log,
		subs:     make(map[int]func(State)),
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) IsAuthenticated() bool { return c.State().Status == Authenticated }

// User returns the profile of the authenticated user or nil.
func (c *Controller) User() *model.User { return c.State().User }

// Subscribe registers fn for state changes and calls it once with the
// current state. The returned function unsubscribes.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	st := c.snapshot()
	c.mu.Unlock()

	fn(st)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// CheckAuth resolves state from the token store without network I/O.
func (c *Controller) CheckAuth() State {
	access, user := c.store.Access(), c.store.User()
	if access == "" || user == nil {
		c.transition(State{Status: Unauthenticated})
		return c.State()
	}
	if !c.insp.IsExpired(access) {
		c.transition(State{Status: Authenticated, User: user})
		return c.State()
	}
	if c.store.Refresh() == "" {
		c.log.Debug("access token expired without refresh token")
		c.Logout()
		return c.State()
	}

	// Expired but refreshable: the next gateway call refreshes. Keep the last
	// known state; on first resolution assume the session is still valid.
	c.mu.Lock()
	unresolved := c.state.Status == Unresolved
	c.mu.Unlock()
	if unresolved {
		c.transition(State{Status: Authenticated, User: user})
	}
	return c.State()
}

// Login authenticates and persists the credentials with the given durability.
// On failure state is left unchanged and the error is returned.
func (c *Controller) Login(ctx context.Context, creds model.Credentials, rememberMe bool) error {
	resp, err := c.auth.Login(ctx, creds)
	if err == nil && (resp == nil || resp.AccessToken == "") {
		msg := ""
		if resp != nil {
			msg = resp.Message
		}
		err = &errs.APIError{Status: http.StatusUnauthorized, Message: msg}
	}
	if err != nil {
		notify.Error(c.notifier, failureMessage(err))
		c.log.Info("login failed", zap.String("username", creds.Username), zap.Error(err))
		return fmt.Errorf("login: %w", err)
	}

	user := resp.User
	if err := c.store.Set(resp.AccessToken, resp.RefreshToken, &user, rememberMe); err != nil {
		notify.Error(c.notifier, MsgLoginFailed)
		return fmt.Errorf("persist credentials: %w", err)
	}
	c.transition(State{Status: Authenticated, User: &user})
	notify.Success(c.notifier, MsgLoginOK)
	c.log.Info("login", zap.String("username", user.Username), zap.Bool("remember_me", rememberMe))
	return nil
}

// Logout clears storage, moves to Unauthenticated and navigates to login.
// Safe to call from any state.
func (c *Controller) Logout() {
	c.end()
	notify.Success(c.notifier, MsgLoggedOut)
	c.navigate()
}

// Expire ends the session after an unrecoverable refresh failure.
func (c *Controller) Expire(reason error) {
	c.end()
	c.log.Info("session expired", zap.Error(reason))
	notify.Error(c.notifier, MsgSessionExpired)
	c.navigate()
}

func (c *Controller) end() {
	if err := c.store.Clear(); err != nil {
		c.log.Warn("clear token store", zap.Error(err))
	}
	c.transition(State{Status: Unauthenticated})
}

// transition stores next and notifies subscribers when the state changed.
func (c *Controller) transition(next State) {
	c.mu.Lock()
	if sameState(c.state, next) {
		c.mu.Unlock()
		return
	}
	c.state = next
	st := c.snapshot()
	fns := make([]func(State), 0, len(c.subs))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (c *Controller) snapshot() State {
	st := State{Status: c.state.Status}
	if c.state.User != nil {
		u := *c.state.User
		st.User = &u
	}
	return st
}

func sameState(a, b State) bool {
	if a.Status != b.Status {
		return false
	}
	if a.User == nil || b.User == nil {
		return a.User == b.User
	}
	return *a.User == *b.User
}

func failureMessage(err error) string {
	var apiErr *errs.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return MsgLoginFailed
}
