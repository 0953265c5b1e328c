package circuit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	DefaultWindow         = 20
	DefaultWindowDuration = 10 * time.Second
	DefaultMinRequests    = 10
	DefaultFailureRatio   = 0.5
	DefaultCooldown       = 30 * time.Second
	DefaultHalfOpenProbes = 3
	DefaultIdleTTL        = time.Hour
)

// Breaker state names as they appear in logs and metrics.
const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateHalfOpen = "HALF_OPEN"
)

// BreakerSettings contains the settings of an individual breaker. The
// zero value of a field means "use the default", allowing route-level
// settings to be merged over the configured defaults.
type BreakerSettings struct {
	Name           string        `yaml:"name"`
	Window         int           `yaml:"window-size"`
	WindowDuration time.Duration `yaml:"window-duration"`
	MinRequests    int           `yaml:"min-requests"`
	FailureRatio   float64       `yaml:"failure-ratio"`
	Cooldown       time.Duration `yaml:"cooldown"`
	HalfOpenProbes int           `yaml:"half-open-probes"`
	IdleTTL        time.Duration `yaml:"idle-ttl"`
	Disabled       bool          `yaml:"disabled"`
}

func (to BreakerSettings) mergeSettings(from BreakerSettings) BreakerSettings {
	if to.Window == 0 {
		to.Window = from.Window
	}

	if to.WindowDuration == 0 {
		to.WindowDuration = from.WindowDuration
	}

	if to.MinRequests == 0 {
		to.MinRequests = from.MinRequests
	}

	if to.FailureRatio == 0 {
		to.FailureRatio = from.FailureRatio
	}

	if to.Cooldown == 0 {
		to.Cooldown = from.Cooldown
	}

	if to.HalfOpenProbes == 0 {
		to.HalfOpenProbes = from.HalfOpenProbes
	}

	if to.IdleTTL == 0 {
		to.IdleTTL = from.IdleTTL
	}

	return to
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	return s.mergeSettings(BreakerSettings{
		Window:         DefaultWindow,
		WindowDuration: DefaultWindowDuration,
		MinRequests:    DefaultMinRequests,
		FailureRatio:   DefaultFailureRatio,
		Cooldown:       DefaultCooldown,
		HalfOpenProbes: DefaultHalfOpenProbes,
		IdleTTL:        DefaultIdleTTL,
	})
}

// String returns the string representation of a particular set of settings.
func (s BreakerSettings) String() string {
	if s.Disabled {
		return "disabled"
	}

	ss := []string{"name=" + s.Name}

	if s.Window > 0 {
		ss = append(ss, "window="+strconv.Itoa(s.Window))
	}

	if s.WindowDuration > 0 {
		ss = append(ss, "window-duration="+s.WindowDuration.String())
	}

	if s.MinRequests > 0 {
		ss = append(ss, "min-requests="+strconv.Itoa(s.MinRequests))
	}

	if s.FailureRatio > 0 {
		ss = append(ss, fmt.Sprintf("failure-ratio=%g", s.FailureRatio))
	}

	if s.Cooldown > 0 {
		ss = append(ss, "cooldown="+s.Cooldown.String())
	}

	if s.HalfOpenProbes > 0 {
		ss = append(ss, "half-open-probes="+strconv.Itoa(s.HalfOpenProbes))
	}

	return strings.Join(ss, ",")
}

// Breaker guards a single route rule.
//
// Use the Get() method of the Registry to request fully initialized
// breakers.
type Breaker struct {
	settings BreakerSettings
	ts       time.Time
	mx       sync.Mutex
	sampler  *windowSampler
	probes   map[uint64]*probe
	probeSeq uint64
	gb       *gobreaker.TwoStepCircuitBreaker
}

// probe is an outstanding half-open request whose outcome was not
// reported yet. The underlying gobreaker callback is held so that the
// probe slot can be reclaimed when the outcome is abandoned, e.g. when
// the client disconnected mid-request.
type probe struct {
	issued time.Time
	done   func(bool)
}

func newBreaker(s BreakerSettings, onStateChange func(name, from, to string)) *Breaker {
	b := &Breaker{
		settings: s,
		probes:   make(map[uint64]*probe),
	}

	b.gb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: uint32(s.HalfOpenProbes),
		Timeout:     s.Cooldown,
		ReadyToTrip: func(gobreaker.Counts) bool { return b.readyToTrip() },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infof("circuit breaker %s went from %s to %s", name, stateName(from), stateName(to))

			// outcome callbacks of the previous state are void
			b.clearProbes()

			if to == gobreaker.StateClosed {
				b.resetWindow()
			}

			if onStateChange != nil {
				onStateChange(name, stateName(from), stateName(to))
			}
		},
	})

	return b
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// the threshold is inclusive: ratio exactly at the configured value trips
func (b *Breaker) readyToTrip() bool {
	b.mx.Lock()
	defer b.mx.Unlock()

	if b.sampler == nil {
		return false
	}

	total, failures := b.sampler.stats(time.Now())
	if total < b.settings.MinRequests {
		return false
	}

	open := float64(failures) >= b.settings.FailureRatio*float64(total)
	if open {
		log.Infof("circuit breaker open: %v", b.settings)
		b.sampler = nil
	}

	return open
}

// count the outcomes in closed and half-open state
func (b *Breaker) count(success bool) {
	b.mx.Lock()
	defer b.mx.Unlock()

	if b.sampler == nil {
		b.sampler = newWindowSampler(b.settings.Window, b.settings.WindowDuration)
	}

	b.sampler.tick(time.Now(), !success)
}

func (b *Breaker) resetWindow() {
	b.mx.Lock()
	b.sampler = nil
	b.mx.Unlock()
}

// Allow returns true when the request may proceed, together with a
// callback for reporting the outcome. The callback must be called at
// most once, with the final outcome of the request after retries.
// Requests cancelled by the client must not report at all.
//
// Allow returns false when the breaker is open or the half-open probe
// budget is exhausted, in which case no callback is returned.
//
// A half-open probe whose outcome is never reported gives its slot
// back after the cooldown: it is then treated as failed, the breaker
// reopens and probing starts over, instead of the abandoned slot
// blocking the half-open state forever. Abandoned outcomes never enter
// the sliding window.
func (b *Breaker) Allow() (func(bool), bool) {
	done, err := b.gb.Allow()

	// this error can only indicate that the breaker is not closed
	if err != nil {
		b.expireProbes(time.Now())
		return nil, false
	}

	id := b.trackProbe(done, time.Now())

	return func(success bool) {
		b.untrackProbe(id)
		b.count(success)
		done(success)
	}, true
}

// trackProbe registers an outstanding half-open probe. Requests
// allowed in closed state are not tracked, an abandoned outcome is
// harmless there.
func (b *Breaker) trackProbe(done func(bool), now time.Time) uint64 {
	if b.gb.State() != gobreaker.StateHalfOpen {
		return 0
	}

	b.mx.Lock()
	defer b.mx.Unlock()

	b.probeSeq++
	b.probes[b.probeSeq] = &probe{issued: now, done: done}
	return b.probeSeq
}

func (b *Breaker) untrackProbe(id uint64) {
	if id == 0 {
		return
	}

	b.mx.Lock()
	delete(b.probes, id)
	b.mx.Unlock()
}

func (b *Breaker) clearProbes() {
	b.mx.Lock()
	b.probes = make(map[uint64]*probe)
	b.mx.Unlock()
}

// expireProbes reclaims the slots of half-open probes whose outcome
// was abandoned, by reporting them as failed once they are older than
// the cooldown. The report bypasses the sliding window and only moves
// the breaker back to open, rearming the half-open cycle.
func (b *Breaker) expireProbes(now time.Time) {
	var stale []func(bool)

	b.mx.Lock()
	for id, pr := range b.probes {
		if now.Sub(pr.issued) > b.settings.Cooldown {
			stale = append(stale, pr.done)
			delete(b.probes, id)
		}
	}
	b.mx.Unlock()

	for _, done := range stale {
		done(false)
	}
}

// State returns the current state name of the breaker.
func (b *Breaker) State() string {
	return stateName(b.gb.State())
}

// Name returns the breaker name, typically the guarded rule's id.
func (b *Breaker) Name() string {
	return b.settings.Name
}

func (b *Breaker) idle(now time.Time) bool {
	return now.Sub(b.ts) > b.settings.IdleTTL
}
