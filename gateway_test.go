package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modacart/gateway/discovery"
	"github.com/modacart/gateway/routing"
)

func TestUpstreamsDeduplicated(t *testing.T) {
	services := upstreams([]*routing.Rule{
		{ID: "products", Upstream: "catalog"},
		{ID: "product-search", Upstream: "catalog"},
		{ID: "orders", Upstream: "orders"},
	})

	assert.Equal(t, []string{"catalog", "orders"}, services)
}

func TestCreateRegistry(t *testing.T) {
	reg, err := createRegistry(Options{
		StaticEndpoints: map[string][]string{"catalog": {"http://10.0.0.1:8080"}},
	})
	require.NoError(t, err)
	assert.IsType(t, &discovery.StaticRegistry{}, reg)

	reg, err = createRegistry(Options{DiscoveryDomain: "cluster.local"})
	require.NoError(t, err)
	assert.IsType(t, &discovery.SRVRegistry{}, reg)

	_, err = createRegistry(Options{})
	assert.Error(t, err)
}

func TestCreateTokenValidator(t *testing.T) {
	protected := []*routing.Rule{{ID: "orders", Upstream: "orders", RequireAuth: true}}

	// no protected routes, no validator needed
	v, closeV, err := createTokenValidator(Options{
		Routes: []*routing.Rule{{ID: "products", Upstream: "catalog"}},
	})
	require.NoError(t, err)
	assert.Nil(t, v)
	closeV()

	// protected routes require keys
	_, _, err = createTokenValidator(Options{Routes: protected})
	assert.Error(t, err)

	v, closeV, err = createTokenValidator(Options{Routes: protected, TokenKeys: "secret"})
	require.NoError(t, err)
	require.NotNil(t, v)
	closeV()
}
