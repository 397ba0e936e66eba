// Package api is the typed REST client of the admin backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/and161185/tim-admin/internal/client/gateway"
	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
)

// Endpoint paths.
const (
	PathLogin          = "/auth/login"
	PathRefresh        = "/auth/refresh"
	PathChangePassword = "/auth/change-password"
	PathServices       = "/our-services"
	PathReviews        = "/reviews"
	PathDistributors   = "/distributors"
	PathProjects       = "/our-projects"
	PathTranslations   = "/translations"
)

// Auth calls the unauthenticated auth endpoints directly, bypassing the gateway.
type Auth struct {
	base   string
	client *http.Client
}

// NewAuth constructs Auth. A nil client means http.DefaultClient.
func NewAuth(baseURL string, client *http.Client) *Auth {
	if client == nil {
		client = http.DefaultClient
	}
	return &Auth{base: strings.TrimRight(baseURL, "/"), client: client}
}

// Login exchanges credentials for a token pair. A 401 wraps errs.ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, creds model.Credentials) (*model.LoginResponse, error) {
	var out model.LoginResponse
	err := a.post(ctx, PathLogin, creds, &out)
	var apiErr *errs.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidCredentials, err)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh returns a new access token. The refresh token is not rotated.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var out model.RefreshResponse
	if err := a.post(ctx, PathRefresh, model.RefreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (a *Auth) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gateway.ErrorFromResponse(resp)
	}
	return gateway.DecodeJSON(resp, out)
}

// Account holds operations on the signed-in account.
type Account struct {
	d Doer
}

func NewAccount(d Doer) *Account { return &Account{d: d} }

// ChangePassword changes the password of the signed-in user.
func (a *Account) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: both passwords are required", errs.ErrValidation)
	}
	in := model.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}
	return a.d.JSON(ctx, http.MethodPost, PathChangePassword, in, nil)
}
