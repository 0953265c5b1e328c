package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ResolverOptions to initialize a Resolver.
type ResolverOptions struct {
	Registry Registry

	// CacheTTL bounds the staleness of served snapshots.
	CacheTTL time.Duration

	// GracePeriod keeps instances that disappeared from the
	// registry around, marked unhealthy, before dropping them.
	GracePeriod time.Duration
}

type snapshot struct {
	instances []Instance
	fetchedAt time.Time
}

// Resolver serves cached instance snapshots per service, refreshing
// them from the registry on stale reads and subscription events.
type Resolver struct {
	registry Registry
	ttl      time.Duration
	grace    time.Duration
	now      func() time.Time

	sf singleflight.Group

	mx        sync.RWMutex
	snapshots map[string]*snapshot
}

// NewResolver initializes a Resolver with the given options.
func NewResolver(o ResolverOptions) *Resolver {
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}

	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}

	return &Resolver{
		registry:  o.Registry,
		ttl:       o.CacheTTL,
		grace:     o.GracePeriod,
		now:       time.Now,
		snapshots: make(map[string]*snapshot),
	}
}

// Resolve returns the healthy instances of the service. It serves from
// the cache within the TTL and refreshes through the registry
// otherwise. An empty result is reported as ErrNoInstances.
func (r *Resolver) Resolve(ctx context.Context, service string) ([]Instance, error) {
	now := r.now()

	s := r.get(service)
	if s == nil || now.Sub(s.fetchedAt) > r.ttl {
		fresh, err := r.refresh(ctx, service)
		if err != nil {
			if s == nil {
				return nil, err
			}

			// better stale than nothing
			log.Warnf("discovery lookup for %s failed, serving stale snapshot: %v", service, err)
		} else {
			s = fresh
		}
	}

	healthy := make([]Instance, 0, len(s.instances))
	for _, in := range s.instances {
		if in.Healthy {
			healthy = append(healthy, in)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoInstances
	}

	return healthy, nil
}

func (r *Resolver) get(service string) *snapshot {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.snapshots[service]
}

func (r *Resolver) refresh(ctx context.Context, service string) (*snapshot, error) {
	v, err, _ := r.sf.Do(service, func() (any, error) {
		instances, err := r.registry.Lookup(ctx, service)
		if err != nil {
			return nil, err
		}

		return r.store(service, instances), nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*snapshot), nil
}

// store merges a fresh registry snapshot over the previous one,
// keeping lost instances unhealthy until the grace period expires.
func (r *Resolver) store(service string, instances []Instance) *snapshot {
	now := r.now()

	fresh := make([]Instance, len(instances))
	seen := make(map[string]struct{}, len(instances))
	for i, in := range instances {
		in.Service = service
		in.LastSeen = now
		fresh[i] = in
		seen[in.key()] = struct{}{}
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	if prev := r.snapshots[service]; prev != nil {
		for _, in := range prev.instances {
			if _, ok := seen[in.key()]; ok {
				continue
			}

			if now.Sub(in.LastSeen) > r.grace {
				continue
			}

			in.Healthy = false
			fresh = append(fresh, in)
		}
	}

	s := &snapshot{instances: fresh, fetchedAt: now}
	r.snapshots[service] = s
	return s
}

// Watch keeps the snapshot of a service warm until the context is
// done. Push-capable registries are subscribed to, others are polled
// on the cache TTL with exponential backoff on errors.
func (r *Resolver) Watch(ctx context.Context, service string) {
	if sub, ok := r.registry.(Subscriber); ok {
		cancel := sub.Subscribe(service, func(instances []Instance) {
			r.store(service, instances)
		})

		go func() {
			<-ctx.Done()
			cancel()
		}()
		return
	}

	go r.poll(ctx, service)
}

func (r *Resolver) poll(ctx context.Context, service string) {
	for {
		_, err := backoff.Retry(ctx, func() (*snapshot, error) {
			return r.refresh(ctx, service)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(r.ttl))
		if err != nil && ctx.Err() == nil {
			log.Errorf("discovery refresh for %s keeps failing: %v", service, err)
		}

		select {
		case <-time.After(r.ttl):
		case <-ctx.Done():
			return
		}
	}
}
