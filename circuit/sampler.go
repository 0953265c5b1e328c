package circuit

import "time"

type outcome struct {
	at   time.Time
	fail bool
}

// windowSampler records request outcomes in a sliding window bounded by
// a maximum number of entries and, optionally, a maximum entry age.
type windowSampler struct {
	size     int
	maxAge   time.Duration
	events   []outcome
	failures int
}

func newWindowSampler(size int, maxAge time.Duration) *windowSampler {
	if size <= 0 {
		size = 1
	}

	return &windowSampler{size: size, maxAge: maxAge}
}

func (s *windowSampler) prune(now time.Time) {
	drop := 0
	for drop < len(s.events) {
		e := s.events[drop]
		if len(s.events)-drop <= s.size && (s.maxAge <= 0 || now.Sub(e.at) <= s.maxAge) {
			break
		}

		if e.fail {
			s.failures--
		}
		drop++
	}

	if drop > 0 {
		s.events = append(s.events[:0], s.events[drop:]...)
	}
}

func (s *windowSampler) tick(now time.Time, fail bool) {
	s.events = append(s.events, outcome{at: now, fail: fail})
	if fail {
		s.failures++
	}

	s.prune(now)
}

func (s *windowSampler) stats(now time.Time) (total, failures int) {
	s.prune(now)
	return len(s.events), s.failures
}
