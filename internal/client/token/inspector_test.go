package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/tim-admin/internal/model"
)

func sign(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := model.Claims{
		ID:       7,
		Username: "admin",
		Role:     model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(exp.Add(-15 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func fixedClock(at time.Time) func() time.Time { return func() time.Time { return at } }

func TestDecode(t *testing.T) {
	t.Parallel()

	exp := time.Unix(2_000_000_000, 0)
	i := NewInspector()

	c := i.Decode(sign(t, exp))
	require.NotNil(t, c)
	require.Equal(t, int64(7), c.ID)
	require.Equal(t, "admin", c.Username)
	require.Equal(t, model.User{ID: 7, Username: "admin", Role: "admin"}, c.Profile())

	for _, bad := range []string{"", "garbage", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.!!!.sig"} {
		require.Nil(t, i.Decode(bad), "input %q", bad)
	}
}

func TestExpiry_Undecodable(t *testing.T) {
	t.Parallel()

	i := NewInspector()
	require.True(t, i.ExpiresAt("nope").IsZero())
	require.Equal(t, int64(0), i.ExpiryMillis("nope"))
	require.True(t, i.IsExpired("nope"))
	require.True(t, i.ShouldRefresh("nope"))
}

func TestIsExpired_Boundary(t *testing.T) {
	t.Parallel()

	exp := time.Unix(2_000_000_000, 0)
	tok := sign(t, exp)

	require.Equal(t, exp.UnixMilli(), NewInspector().ExpiryMillis(tok))
	require.False(t, NewInspector(WithClock(fixedClock(exp.Add(-time.Millisecond)))).IsExpired(tok))
	require.True(t, NewInspector(WithClock(fixedClock(exp))).IsExpired(tok))
	require.True(t, NewInspector(WithClock(fixedClock(exp.Add(time.Second)))).IsExpired(tok))
}

func TestShouldRefresh_Buffer(t *testing.T) {
	t.Parallel()

	exp := time.Unix(2_000_000_000, 0)
	tok := sign(t, exp)

	cases := []struct {
		before time.Duration
		want   bool
	}{
		{10 * time.Minute, false},
		{DefaultRefreshBuffer, false},
		{DefaultRefreshBuffer - time.Second, true},
		{0, true},
		{-time.Minute, true},
	}
	for _, c := range cases {
		i := NewInspector(WithClock(fixedClock(exp.Add(-c.before))))
		require.Equal(t, c.want, i.ShouldRefresh(tok), "%v before expiry", c.before)
	}

	i := NewInspector(WithClock(fixedClock(exp.Add(-time.Minute))), WithRefreshBuffer(30*time.Second))
	require.False(t, i.ShouldRefresh(tok))
}
