package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	instances []Instance
	err       error
	calls     int
}

func (r *fakeRegistry) Lookup(context.Context, string) ([]Instance, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}

	return r.instances, nil
}

func twoInstances() []Instance {
	return []Instance{
		{Host: "10.0.0.1", Port: 8080, Scheme: "http", Healthy: true},
		{Host: "10.0.0.2", Port: 8080, Scheme: "http", Healthy: true},
	}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	reg := &fakeRegistry{instances: twoInstances()}
	r := NewResolver(ResolverOptions{Registry: reg, CacheTTL: time.Minute})

	for i := 0; i < 5; i++ {
		instances, err := r.Resolve(context.Background(), "product-catalog")
		require.NoError(t, err)
		assert.Len(t, instances, 2)
	}

	assert.Equal(t, 1, reg.calls)
}

func TestResolveRefreshesStaleSnapshot(t *testing.T) {
	reg := &fakeRegistry{instances: twoInstances()}
	r := NewResolver(ResolverOptions{Registry: reg, CacheTTL: time.Minute})

	now := time.Now()
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), "product-catalog")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	_, err = r.Resolve(context.Background(), "product-catalog")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.calls)
}

func TestResolveNoInstances(t *testing.T) {
	reg := &fakeRegistry{}
	r := NewResolver(ResolverOptions{Registry: reg})

	_, err := r.Resolve(context.Background(), "product-catalog")
	assert.ErrorIs(t, err, ErrNoInstances)
}

func TestResolveServesStaleOnRegistryError(t *testing.T) {
	reg := &fakeRegistry{instances: twoInstances()}
	r := NewResolver(ResolverOptions{Registry: reg, CacheTTL: time.Minute})

	now := time.Now()
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), "product-catalog")
	require.NoError(t, err)

	reg.err = errors.New("registry down")
	now = now.Add(2 * time.Minute)

	instances, err := r.Resolve(context.Background(), "product-catalog")
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestLostInstancesUnhealthyWithinGrace(t *testing.T) {
	reg := &fakeRegistry{instances: twoInstances()}
	r := NewResolver(ResolverOptions{
		Registry:    reg,
		CacheTTL:    time.Minute,
		GracePeriod: 10 * time.Minute,
	})

	now := time.Now()
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), "product-catalog")
	require.NoError(t, err)

	// one instance disappears from the registry
	reg.instances = twoInstances()[:1]
	now = now.Add(2 * time.Minute)

	instances, err := r.Resolve(context.Background(), "product-catalog")
	require.NoError(t, err)
	assert.Len(t, instances, 1, "lost instance must not receive traffic")

	s := r.get("product-catalog")
	require.NotNil(t, s)
	assert.Len(t, s.instances, 2, "lost instance kept during grace period")

	// beyond the grace period it is dropped entirely
	now = now.Add(20 * time.Minute)
	_, err = r.Resolve(context.Background(), "product-catalog")
	require.NoError(t, err)

	s = r.get("product-catalog")
	assert.Len(t, s.instances, 1)
}

func TestSubscriptionUpdatesSnapshot(t *testing.T) {
	reg := &fakeRegistry{instances: twoInstances()}
	r := NewResolver(ResolverOptions{Registry: reg, CacheTTL: time.Minute})

	r.store("product-catalog", twoInstances())

	instances, err := r.Resolve(context.Background(), "product-catalog")
	require.NoError(t, err)
	assert.Len(t, instances, 2)
	assert.Equal(t, 0, reg.calls)
}
