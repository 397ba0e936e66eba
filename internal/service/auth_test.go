package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	pkgcrypto "github.com/and161185/tim-admin/internal/crypto"
	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/limiter"
	"github.com/and161185/tim-admin/internal/model"
	"github.com/and161185/tim-admin/internal/repository"
)

type fakeUsers struct {
	mu     sync.Mutex
	byName map[string]*model.Account
	nextID int64
	getErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byName == nil {
		f.byName = map[string]*model.Account{}
	}
	if _, ok := f.byName[a.Username]; ok {
		return errs.ErrAlreadyExists
	}
	f.nextID++
	a.ID = f.nextID
	cpy := *a
	f.byName[a.Username] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byName {
		if a.ID == id {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id int64, hash, salt []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byName {
		if a.ID == id {
			a.PwdHash, a.Salt = hash, salt
			return nil
		}
	}
	return errs.ErrNotFound
}

type fakeTokens struct {
	mu   sync.Mutex
	rows map[string]tokenRow
}

type tokenRow struct {
	userID  int64
	expires time.Time
}

var _ repository.TokenRepository = (*fakeTokens)(nil)

func (f *fakeTokens) Save(_ context.Context, userID int64, hash []byte, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = map[string]tokenRow{}
	}
	f.rows[string(hash)] = tokenRow{userID: userID, expires: exp}
	return nil
}

func (f *fakeTokens) Lookup(_ context.Context, hash []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[string(hash)]
	if !ok || !r.expires.After(time.Now()) {
		return 0, errs.ErrNotFound
	}
	return r.userID, nil
}

func (f *fakeTokens) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type fakeLimiter struct {
	allowOK     bool
	failBlocked bool

	failures  int
	successes int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	if l.allowOK {
		return true, 0, nil
	}
	return false, 5 * time.Minute, nil
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successes++
	return nil
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failures++
	return l.failBlocked, 15 * time.Minute, nil
}

var testKey = []byte("test-signing-key")

func newAuth(t *testing.T, lim *fakeLimiter) (*AuthService, *fakeUsers, *fakeTokens) {
	t.Helper()
	users, tokens := &fakeUsers{}, &fakeTokens{}
	s := NewAuthService(users, tokens, lim, AuthConfig{SignKey: testKey, AccessTTL: 15 * time.Minute, RefreshTTL: time.Hour}, zaptest.NewLogger(t))
	require.NoError(t, s.EnsureAdmin(context.Background(), "admin", "secret1"))
	return s, users, tokens
}

func TestAuth_LoginIssuesTokens(t *testing.T) {
	t.Parallel()
	lim := &fakeLimiter{allowOK: true}
	s, _, tokens := newAuth(t, lim)

	resp, err := s.Login(context.Background(), "admin", "secret1", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "admin", resp.User.Username)
	require.Equal(t, model.RoleAdmin, resp.User.Role)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, 1, lim.successes)

	claims, err := s.ParseAccess(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, resp.User, claims.Profile())
	require.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	_, ok := tokens.rows[string(pkgcrypto.HashToken(resp.RefreshToken))]
	require.True(t, ok, "only the hash is stored")
	_, ok = tokens.rows[resp.RefreshToken]
	require.False(t, ok)
}

func TestAuth_LoginFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	lim := &fakeLimiter{allowOK: true}
	s, _, _ := newAuth(t, lim)
	_, err := s.Login(ctx, "admin", "wrong", "ip")
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	_, err = s.Login(ctx, "ghost", "secret1", "ip")
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	require.Equal(t, 2, lim.failures)

	_, err = s.Login(ctx, "", "", "ip")
	require.ErrorIs(t, err, errs.ErrValidation)

	lim.failBlocked = true
	_, err = s.Login(ctx, "admin", "wrong", "ip")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	lim.allowOK = false
	_, err = s.Login(ctx, "admin", "secret1", "ip")
	require.ErrorIs(t, err, errs.ErrRateLimited, "blocked pairs are refused before the password check")
	require.Zero(t, lim.successes)
}

func TestAuth_LoginRepoError(t *testing.T) {
	t.Parallel()
	lim := &fakeLimiter{allowOK: true}
	s, users, _ := newAuth(t, lim)
	users.getErr = errors.New("db down")

	_, err := s.Login(context.Background(), "admin", "secret1", "ip")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrInvalidCredentials)
	require.Zero(t, lim.failures)
}

func TestAuth_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, tokens := newAuth(t, &fakeLimiter{allowOK: true})

	resp, err := s.Login(ctx, "admin", "secret1", "ip")
	require.NoError(t, err)

	access, err := s.Refresh(ctx, resp.RefreshToken)
	require.NoError(t, err)
	claims, err := s.ParseAccess(access)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Username)

	again, err := s.Refresh(ctx, resp.RefreshToken)
	require.NoError(t, err, "refresh token is not rotated")
	require.NotEmpty(t, again)

	_, err = s.Refresh(ctx, "unknown")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = s.Refresh(ctx, "")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	for k, r := range tokens.rows {
		r.expires = time.Now().Add(-time.Second)
		tokens.rows[k] = r
	}
	_, err = s.Refresh(ctx, resp.RefreshToken)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuth_ChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, users, _ := newAuth(t, &fakeLimiter{allowOK: true})
	a, err := users.GetByUsername(ctx, "admin")
	require.NoError(t, err)

	require.ErrorIs(t, s.ChangePassword(ctx, a.ID, "", "x"), errs.ErrValidation)
	require.ErrorIs(t, s.ChangePassword(ctx, a.ID, "wrong", "secret2"), errs.ErrInvalidCredentials)
	require.NoError(t, s.ChangePassword(ctx, a.ID, "secret1", "secret2"))

	_, err = s.Login(ctx, "admin", "secret1", "ip")
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	_, err = s.Login(ctx, "admin", "secret2", "ip")
	require.NoError(t, err)
}

func TestAuth_EnsureAdminIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, users, _ := newAuth(t, &fakeLimiter{allowOK: true})

	require.NoError(t, s.EnsureAdmin(ctx, "admin", "other"))
	require.Len(t, users.byName, 1)
	_, err := s.Login(ctx, "admin", "secret1", "ip")
	require.NoError(t, err, "existing password is kept")

	require.ErrorIs(t, s.EnsureAdmin(ctx, "root", ""), errs.ErrValidation)
}

func TestAuth_ParseAccessRejects(t *testing.T) {
	t.Parallel()
	s, _, _ := newAuth(t, &fakeLimiter{allowOK: true})

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, model.Claims{
		ID: 1, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	tok, err := expired.SignedString(testKey)
	require.NoError(t, err)
	_, err = s.ParseAccess(tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, model.Claims{
		ID: 1, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString([]byte("other-key"))
	require.NoError(t, err)
	_, err = s.ParseAccess(foreign)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, model.Claims{ID: 1}).SignedString(testKey)
	require.NoError(t, err)
	_, err = s.ParseAccess(noExp)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = s.ParseAccess("garbage")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}
