package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() []*Rule {
	return []*Rule{{
		ID:         "users",
		PathPrefix: "/api/users",
		Upstream:   "user-service",
	}, {
		ID:         "users-me",
		PathPrefix: "/api/users/me",
		Upstream:   "user-service",
	}, {
		ID:         "orders-read",
		PathPrefix: "/api/orders",
		Methods:    []string{"GET"},
		Upstream:   "order-service",
	}, {
		ID:         "orders",
		PathPrefix: "/api/orders",
		Upstream:   "order-service",
	}}
}

func TestMatchLongestPrefixWins(t *testing.T) {
	table, err := NewTable(testRules())
	require.NoError(t, err)

	r := table.Match("GET", "/api/users/me")
	require.NotNil(t, r)
	assert.Equal(t, "users-me", r.ID)

	r = table.Match("GET", "/api/users/42")
	require.NotNil(t, r)
	assert.Equal(t, "users", r.ID)
}

func TestMatchMethodSpecificityWins(t *testing.T) {
	table, err := NewTable(testRules())
	require.NoError(t, err)

	r := table.Match("GET", "/api/orders/42")
	require.NotNil(t, r)
	assert.Equal(t, "orders-read", r.ID)

	r = table.Match("POST", "/api/orders")
	require.NotNil(t, r)
	assert.Equal(t, "orders", r.ID)
}

func TestMatchSegmentBoundary(t *testing.T) {
	table, err := NewTable(testRules())
	require.NoError(t, err)

	assert.Nil(t, table.Match("GET", "/api/usersessions"))
	assert.Nil(t, table.Match("GET", "/api/cart"))
}

func TestMatchStable(t *testing.T) {
	table, err := NewTable(testRules())
	require.NoError(t, err)

	first := table.Match("GET", "/api/orders/42")
	for i := 0; i < 100; i++ {
		assert.Same(t, first, table.Match("GET", "/api/orders/42"))
	}
}

func TestDuplicateBreakerRejected(t *testing.T) {
	_, err := NewTable([]*Rule{{
		ID:         "a",
		PathPrefix: "/a",
		Upstream:   "svc",
		BreakerName: "shared",
	}, {
		ID:         "b",
		PathPrefix: "/b",
		Upstream:   "svc",
		BreakerName: "shared",
	}})
	assert.Error(t, err)
}

func TestSwapKeepsOldTableOnError(t *testing.T) {
	rt, err := New(testRules())
	require.NoError(t, err)

	err = rt.Swap([]*Rule{{ID: "broken", PathPrefix: "no-slash", Upstream: "svc"}})
	require.Error(t, err)

	r := rt.Get().Match("GET", "/api/users/1")
	require.NotNil(t, r)
	assert.Equal(t, "users", r.ID)
}
