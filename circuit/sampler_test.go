package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSamplerCountsWithinSize(t *testing.T) {
	s := newWindowSampler(3, 0)
	now := time.Now()

	s.tick(now, true)
	s.tick(now, false)
	s.tick(now, true)

	total, failures := s.stats(now)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, failures)
}

func TestSamplerEvictsOldestBeyondSize(t *testing.T) {
	s := newWindowSampler(3, 0)
	now := time.Now()

	s.tick(now, true)
	s.tick(now, false)
	s.tick(now, false)
	s.tick(now, false)

	total, failures := s.stats(now)
	assert.Equal(t, 3, total)
	assert.Equal(t, 0, failures)
}

func TestSamplerExpiresByAge(t *testing.T) {
	s := newWindowSampler(10, 5*time.Millisecond)
	now := time.Now()

	s.tick(now, true)
	s.tick(now, true)

	total, failures := s.stats(now.Add(10 * time.Millisecond))
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, failures)
}
