// Package ratelimit throttles websocket upgrades per client IP with an
// in-process sliding window.
package ratelimit

import (
	"sync"
	"time"
)

// Result describes one limiter decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window frees a slot.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds() + 0.999)
	return max(secs, 1)
}

// SlidingWindow counts events per key over a trailing window. It is not
// shared between instances.
type SlidingWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string][]time.Time
	now     func() time.Time
}

type Option func(*SlidingWindow)

func WithClock(now func() time.Time) Option {
	return func(s *SlidingWindow) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSlidingWindow(limit int, window time.Duration, opts ...Option) *SlidingWindow {
	s := &SlidingWindow{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow records one event for key when under the limit.
func (s *SlidingWindow) Allow(key string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stamps := prune(s.buckets[key], now.Add(-s.window))
	if len(stamps) >= s.limit {
		s.buckets[key] = stamps
		return Result{Limit: s.limit, ResetAt: stamps[0].Add(s.window)}
	}

	stamps = append(stamps, now)
	s.buckets[key] = stamps
	return Result{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - len(stamps),
		ResetAt:   stamps[0].Add(s.window),
	}
}

// Sweep drops keys with no events inside the window.
func (s *SlidingWindow) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.window)
	for key, stamps := range s.buckets {
		if stamps = prune(stamps, cutoff); len(stamps) == 0 {
			delete(s.buckets, key)
		} else {
			s.buckets[key] = stamps
		}
	}
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
