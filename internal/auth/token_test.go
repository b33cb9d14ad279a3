package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/account-service/internal/auth"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newIssuer(t *testing.T, clock *fakeClock) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("test-signing-key", auth.DefaultTokenTTL, auth.WithClock(clock.Now))
	require.NoError(t, err)
	return issuer
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newIssuer(t, clock)

	token, err := issuer.Issue("0c4b2a6e-6a57-4c3f-9a57-8d1b1c2f7a10", "jane@x.com")
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "0c4b2a6e-6a57-4c3f-9a57-8d1b1c2f7a10", claims.UserID)
	assert.Equal(t, "jane@x.com", claims.Email)
	assert.True(t, claims.ExpiresAt.Time.Equal(clock.now.Add(2*time.Hour)), "exp = iat + 2h")
	assert.True(t, claims.IssuedAt.Time.Equal(clock.now))
}

func TestTokenIssuer_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newIssuer(t, clock)

	token, err := issuer.Issue("user-id", "jane@x.com")
	require.NoError(t, err)

	clock.Advance(2*time.Hour - time.Second)
	_, err = issuer.Verify(token)
	require.NoError(t, err, "token must still be valid just before expiry")

	clock.Advance(2 * time.Second)
	_, err = issuer.Verify(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenIssuer_WrongKey(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newIssuer(t, clock)

	other, err := auth.NewTokenIssuer("another-key", time.Hour, auth.WithClock(clock.Now))
	require.NoError(t, err)

	token, err := other.Issue("user-id", "jane@x.com")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenIssuer_TamperedPayload(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newIssuer(t, clock)

	token, err := issuer.Issue("user-id", "jane@x.com")
	require.NoError(t, err)

	other, err := issuer.Issue("user-id", "mallory@x.com")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	forged := parts[0] + "." + strings.Split(other, ".")[1] + "." + parts[2]

	_, err = issuer.Verify(forged)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenIssuer_RejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newIssuer(t, clock)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
		UserID: "user-id",
		Email:  "jane@x.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenIssuer_RequiresExpiry(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("test-signing-key", time.Hour)
	require.NoError(t, err)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{UserID: "user-id", Email: "jane@x.com"})
	token, err := noExp.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenIssuer_Malformed(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("test-signing-key", time.Hour)
	require.NoError(t, err)

	for _, input := range []string{"", "not.a.jwt", "abc"} {
		_, err := issuer.Verify(input)
		assert.ErrorIs(t, err, auth.ErrInvalidToken, "input %q", input)
	}
}

func TestNewTokenIssuer(t *testing.T) {
	_, err := auth.NewTokenIssuer("", time.Hour)
	require.ErrorIs(t, err, auth.ErrEmptySigningKey)

	issuer, err := auth.NewTokenIssuer("key", 0)
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultTokenTTL, issuer.TTL())
}
