package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, mod func(*Claims)) string {
	t.Helper()

	claims := &Claims{
		Username: "jdoe",
		Email:    "jdoe@example.org",
		Roles:    []string{"customer"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	if mod != nil {
		mod(claims)
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newTestValidator(t *testing.T, store RevocationStore) *Validator {
	t.Helper()

	v, err := NewValidator(Options{Keys: testSecret, Revocations: store})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

func requireReason(t *testing.T, err error, reason Reason) {
	t.Helper()

	var terr *TokenError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, reason, terr.Reason)
}

func TestValidateExtractsIdentity(t *testing.T) {
	v := newTestValidator(t, nil)

	id, err := v.Validate(context.Background(), "Bearer "+signToken(t, testSecret, nil))
	require.NoError(t, err)

	assert.Equal(t, "user-42", id.SubjectID)
	assert.Equal(t, "jdoe", id.Username)
	assert.Equal(t, "jdoe@example.org", id.Email)
	assert.Equal(t, []string{"customer"}, id.Roles)
	assert.Equal(t, "jti-1", id.TokenID)
	assert.NotEmpty(t, id.TokenHash)
}

func TestValidateMissing(t *testing.T) {
	v := newTestValidator(t, nil)

	_, err := v.Validate(context.Background(), "")
	requireReason(t, err, ReasonMissing)
}

func TestValidateMalformed(t *testing.T) {
	v := newTestValidator(t, nil)

	_, err := v.Validate(context.Background(), "Bearer not.a.token")
	requireReason(t, err, ReasonMalformed)

	_, err = v.Validate(context.Background(), "Basic dXNlcjpwYXNz")
	requireReason(t, err, ReasonMalformed)
}

func TestValidateSignature(t *testing.T) {
	v := newTestValidator(t, nil)

	_, err := v.Validate(context.Background(), "Bearer "+signToken(t, "other-secret", nil))
	requireReason(t, err, ReasonSignature)
}

func TestValidateExpired(t *testing.T) {
	v := newTestValidator(t, nil)

	token := signToken(t, testSecret, func(c *Claims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	})

	_, err := v.Validate(context.Background(), "Bearer "+token)
	requireReason(t, err, ReasonExpired)
}

func TestValidateExpiryWithinSkew(t *testing.T) {
	v := newTestValidator(t, nil)

	// expired one second ago, inside the default 30s tolerance
	token := signToken(t, testSecret, func(c *Claims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Second))
	})

	_, err := v.Validate(context.Background(), "Bearer "+token)
	assert.NoError(t, err)

	token = signToken(t, testSecret, func(c *Claims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	})

	_, err = v.Validate(context.Background(), "Bearer "+token)
	requireReason(t, err, ReasonExpired)
}

func TestValidateMissingExpiry(t *testing.T) {
	v := newTestValidator(t, nil)

	token := signToken(t, testSecret, func(c *Claims) {
		c.ExpiresAt = nil
	})

	_, err := v.Validate(context.Background(), "Bearer "+token)
	requireReason(t, err, ReasonMalformed)
}

type fakeRevocations struct {
	revoked map[string]bool
	err     error
	calls   int
}

func (s *fakeRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}

	return s.revoked[jti], nil
}

func TestValidateRevoked(t *testing.T) {
	store := &fakeRevocations{revoked: map[string]bool{"jti-1": true}}
	v := newTestValidator(t, store)

	_, err := v.Validate(context.Background(), "Bearer "+signToken(t, testSecret, nil))
	requireReason(t, err, ReasonRevoked)
}

func TestValidateRevocationStoreUnavailable(t *testing.T) {
	store := &fakeRevocations{err: errors.New("connection refused")}
	v := newTestValidator(t, store)

	_, err := v.Validate(context.Background(), "Bearer "+signToken(t, testSecret, nil))
	assert.NoError(t, err)
}

func TestIdentityHeaderRoundTrip(t *testing.T) {
	v := newTestValidator(t, nil)

	id, err := v.Validate(context.Background(), "Bearer "+signToken(t, testSecret, func(c *Claims) {
		c.Roles = []string{"customer", "admin"}
	}))
	require.NoError(t, err)

	h := make(http.Header)
	SetIdentityHeaders(h, id)
	back := IdentityFromHeaders(h)

	assert.Equal(t, id.SubjectID, back.SubjectID)
	assert.Equal(t, id.Username, back.Username)
	assert.Equal(t, id.Email, back.Email)
	assert.Equal(t, id.Roles, back.Roles)
}
