package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRegistryLookup(t *testing.T) {
	reg, err := NewStaticRegistry(map[string][]string{
		"user-service":    {"http://10.0.0.1:8080", "https://users.internal"},
		"product-catalog": {"http://10.0.0.3:9090"},
	})
	require.NoError(t, err)

	instances, err := reg.Lookup(context.Background(), "user-service")
	require.NoError(t, err)
	require.Len(t, instances, 2)

	assert.Equal(t, "10.0.0.1", instances[0].Host)
	assert.Equal(t, 8080, instances[0].Port)
	assert.Equal(t, "http", instances[0].Scheme)
	assert.True(t, instances[0].Healthy)

	assert.Equal(t, "users.internal", instances[1].Host)
	assert.Equal(t, 443, instances[1].Port)
	assert.Equal(t, "https", instances[1].Scheme)
}

func TestStaticRegistryUnknownService(t *testing.T) {
	reg, err := NewStaticRegistry(nil)
	require.NoError(t, err)

	instances, err := reg.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestStaticRegistryRejectsBadEndpoint(t *testing.T) {
	_, err := NewStaticRegistry(map[string][]string{
		"user-service": {"ftp://10.0.0.1:21"},
	})
	assert.Error(t, err)
}
