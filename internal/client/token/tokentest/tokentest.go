// Package tokentest issues signed access tokens for client tests.
package tokentest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/tim-admin/internal/model"
)

// Key signs every token issued by this package.
var Key = []byte("tokentest-signing-key")

// Issue returns an HS256 token for user expiring at exp.
func Issue(t testing.TB, user model.User, exp time.Time) string {
	t.Helper()
	claims := model.Claims{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(exp.Add(-15 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(Key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// Admin is the profile used across client tests.
var Admin = model.User{ID: 1, Username: "admin", Role: model.RoleAdmin}
