package circuit

import (
	"sync"
	"time"
)

// Registry objects hold the active circuit breakers, ensure
// synchronized access to them, apply the default settings and recycle
// the idle breakers.
type Registry struct {
	defaults      BreakerSettings
	onStateChange func(name, from, to string)
	mx            sync.Mutex
	lookup        map[string]*Breaker
}

// NewRegistry initializes a registry with the provided default
// settings. Individual breaker settings requested through Get() are
// merged over these defaults.
func NewRegistry(defaults BreakerSettings) *Registry {
	return &Registry{
		defaults: defaults.withDefaults(),
		lookup:   make(map[string]*Breaker),
	}
}

// OnStateChange registers a hook called on every breaker state
// transition, e.g. for metrics. Must be set before the first Get().
func (r *Registry) OnStateChange(hook func(name, from, to string)) {
	r.onStateChange = hook
}

func (r *Registry) dropIdle(now time.Time) {
	for name, b := range r.lookup {
		if b.idle(now) {
			delete(r.lookup, name)
		}
	}
}

// Get returns the circuit breaker for the provided settings, keyed by
// the settings' Name. The settings are filled up with the registry
// defaults, and a matching breaker is returned if it exists, or a new
// one is created if not. Disabled settings or an empty name yield nil.
func (r *Registry) Get(s BreakerSettings) *Breaker {
	if s.Disabled || s.Name == "" {
		return nil
	}

	s = s.mergeSettings(r.defaults)

	r.mx.Lock()
	defer r.mx.Unlock()

	now := time.Now()

	b, ok := r.lookup[s.Name]
	if !ok || b.idle(now) || b.settings != s {
		r.dropIdle(now)
		b = newBreaker(s, r.onStateChange)
		r.lookup[s.Name] = b
	}

	b.ts = now
	return b
}
