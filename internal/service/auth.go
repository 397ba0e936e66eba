// Package service contains the backend's application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/tim-admin/internal/crypto"
	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/limiter"
	"github.com/and161185/tim-admin/internal/model"
	"github.com/and161185/tim-admin/internal/repository"
)

// AuthConfig holds token parameters.
type AuthConfig struct {
	SignKey    []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuthService issues and verifies tokens.
type AuthService struct {
	users  repository.UserRepository
	tokens repository.TokenRepository
	lim    limiter.Limiter
	cfg    AuthConfig
	now    func() time.Time
	log    *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, tokens repository.TokenRepository, lim limiter.Limiter, cfg AuthConfig, log *zap.Logger) *AuthService {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{users: users, tokens: tokens, lim: lim, cfg: cfg, now: time.Now, log: log}
}

// Login authenticates with rate limiting by (username, ip).
func (s *AuthService) Login(ctx context.Context, username, password, ip string) (model.LoginResponse, error) {
	if username == "" || password == "" {
		return model.LoginResponse{}, fmt.Errorf("%w: username and password are required", errs.ErrValidation)
	}
	ipHash := limiter.HashIP(ip)

	allowed, wait, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.LoginResponse{}, err
	}
	if !allowed {
		return model.LoginResponse{}, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, wait.Round(time.Second))
	}

	a, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.LoginResponse{}, err
	}
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), a.Salt, a.PwdHash) {
		blocked, wait, ferr := s.lim.Failure(ctx, username, ipHash)
		if ferr != nil {
			s.log.Warn("record login failure", zap.Error(ferr))
		}
		if blocked {
			return model.LoginResponse{}, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, wait.Round(time.Second))
		}
		// unknown user and wrong password look the same
		return model.LoginResponse{}, errs.ErrInvalidCredentials
	}

	if err := s.lim.Success(ctx, username, ipHash); err != nil {
		s.log.Warn("reset login limiter", zap.Error(err))
	}

	access, err := s.issueAccessToken(a.User)
	if err != nil {
		return model.LoginResponse{}, err
	}
	refresh, err := pkgcrypto.NewToken()
	if err != nil {
		return model.LoginResponse{}, err
	}
	if err := s.tokens.Save(ctx, a.ID, pkgcrypto.HashToken(refresh), s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return model.LoginResponse{}, fmt.Errorf("save refresh token: %w", err)
	}
	return model.LoginResponse{Success: true, AccessToken: access, RefreshToken: refresh, User: a.User}, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself stays valid until it expires.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", errs.ErrUnauthorized
	}
	userID, err := s.tokens.Lookup(ctx, pkgcrypto.HashToken(refreshToken))
	if errors.Is(err, errs.ErrNotFound) {
		return "", errs.ErrUnauthorized
	}
	if err != nil {
		return "", err
	}
	a, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return "", errs.ErrUnauthorized
	}
	if err != nil {
		return "", err
	}
	return s.issueAccessToken(a.User)
}

// ChangePassword verifies the old password before storing the new one.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: old and new password are required", errs.ErrValidation)
	}
	a, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !pkgcrypto.VerifyPassword([]byte(oldPassword), a.Salt, a.PwdHash) {
		return errs.ErrInvalidCredentials
	}
	hash, salt, err := pkgcrypto.NewPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash, salt)
}

// EnsureAdmin creates the admin account when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if password == "" {
		return fmt.Errorf("%w: admin %q missing and no password configured", errs.ErrValidation, username)
	}
	hash, salt, err := pkgcrypto.NewPassword(password)
	if err != nil {
		return err
	}
	a := &model.Account{User: model.User{Username: username, Role: model.RoleAdmin}, PwdHash: hash, Salt: salt}
	if err := s.users.Create(ctx, a); err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
		return err
	}
	s.log.Info("admin account created", zap.String("username", username))
	return nil
}

// ParseAccess verifies an access token and returns its claims.
func (s *AuthService) ParseAccess(token string) (*model.Claims, error) {
	var c model.Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return s.cfg.SignKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	return &c, nil
}

// issueAccessToken creates a signed HS256 JWT for the given user.
func (s *AuthService) issueAccessToken(u model.User) (string, error) {
	now := s.now()
	claims := model.Claims{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SignKey)
}
