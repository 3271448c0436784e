package service

import (
	"sync"
	"time"
)

// SlidingLimiter enforces a per-key cap over a trailing window: a submission
// is allowed while fewer than burst submissions were accepted within the
// last window. Denied attempts are not recorded, so a throttled client
// recovers as soon as its oldest accepted submission ages out.
type SlidingLimiter struct {
	burst  int
	window time.Duration

	mu      sync.Mutex
	entries map[string][]time.Time

	now func() time.Time
}

func NewSlidingLimiter(burst int, window time.Duration) *SlidingLimiter {
	return &SlidingLimiter{
		burst:   burst,
		window:  window,
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records an attempt for key and reports whether it is within budget.
func (l *SlidingLimiter) Allow(key string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0]
	for _, t := range l.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.burst {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// Prune drops keys with no submissions inside the window. Called
// periodically so idle users do not accumulate.
func (l *SlidingLimiter) Prune() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, times := range l.entries {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.entries, key)
		}
	}
}

// Len reports the number of tracked keys.
func (l *SlidingLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
