package control

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SlewRateLimiter bounds how fast a signal may change, in units per second. It is used to ramp
// operator commands so a step input does not become a step acceleration.
type SlewRateLimiter struct {
	clock clock.Clock
	rate  float64

	mu       sync.Mutex
	prev     float64
	prevTime time.Time
}

// NewSlewRateLimiter returns a limiter starting at initial.
func NewSlewRateLimiter(c clock.Clock, rate, initial float64) *SlewRateLimiter {
	return &SlewRateLimiter{clock: c, rate: math.Abs(rate), prev: initial, prevTime: c.Now()}
}

// Calculate moves toward input by at most rate times the time since the last call.
func (s *SlewRateLimiter) Calculate(input float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	maxStep := s.rate * now.Sub(s.prevTime).Seconds()
	s.prev += math.Max(-maxStep, math.Min(maxStep, input-s.prev))
	s.prevTime = now
	return s.prev
}

// Reset jumps the output to value.
func (s *SlewRateLimiter) Reset(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prev = value
	s.prevTime = s.clock.Now()
}
