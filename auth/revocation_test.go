package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedRevocationsServesFromCache(t *testing.T) {
	store := &fakeRevocations{revoked: map[string]bool{"jti-1": true}}
	c := NewCachedRevocations(store, time.Minute)

	for i := 0; i < 5; i++ {
		revoked, err := c.IsRevoked(context.Background(), "jti-1")
		require.NoError(t, err)
		assert.True(t, revoked)
	}

	assert.Equal(t, 1, store.calls)
}

func TestCachedRevocationsExpires(t *testing.T) {
	store := &fakeRevocations{}
	c := NewCachedRevocations(store, time.Minute)

	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)

	// a revocation becomes visible once the cached entry ages out
	store.revoked = map[string]bool{"jti-2": true}

	revoked, err := c.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	now = now.Add(2 * time.Minute)

	revoked, err = c.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 2, store.calls)
}

func TestStripIdentityHeaders(t *testing.T) {
	h := make(http.Header)
	h.Set(HeaderUserID, "spoofed")
	h.Set(HeaderRoles, "admin")
	h.Set("Accept", "application/json")

	StripIdentityHeaders(h)

	assert.Empty(t, h.Get(HeaderUserID))
	assert.Empty(t, h.Get(HeaderRoles))
	assert.Equal(t, "application/json", h.Get("Accept"))
}
