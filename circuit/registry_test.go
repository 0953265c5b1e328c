package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySharesBreakerByName(t *testing.T) {
	r := NewRegistry(BreakerSettings{})

	a := r.Get(BreakerSettings{Name: "orders"})
	b := r.Get(BreakerSettings{Name: "orders"})
	c := r.Get(BreakerSettings{Name: "payments"})

	require.NotNil(t, a)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestRegistryAppliesDefaults(t *testing.T) {
	r := NewRegistry(BreakerSettings{MinRequests: 1, FailureRatio: 0.1})

	b := r.Get(BreakerSettings{Name: "orders"})
	require.NotNil(t, b)

	report(t, b, false)
	assert.Equal(t, StateOpen, b.State())
}

func TestRegistryDisabledOrUnnamed(t *testing.T) {
	r := NewRegistry(BreakerSettings{})

	assert.Nil(t, r.Get(BreakerSettings{Name: "orders", Disabled: true}))
	assert.Nil(t, r.Get(BreakerSettings{}))
}

func TestRegistryRouteOverride(t *testing.T) {
	r := NewRegistry(BreakerSettings{})

	b := r.Get(BreakerSettings{Name: "orders", MinRequests: 1, FailureRatio: 0.1})
	require.NotNil(t, b)

	report(t, b, false)
	assert.Equal(t, StateOpen, b.State())
}
