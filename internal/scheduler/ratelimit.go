package scheduler

import "time"

// RateLimiter counts dispatches inside a sliding window. It is not safe for
// concurrent use on its own; the Scheduler owns it and serializes access.
type RateLimiter struct {
	limit  int
	window time.Duration
	stamps []time.Time
}

// NewRateLimiter creates a limiter allowing limit dispatches per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window}
}

// RecordDispatch appends a dispatch timestamp.
func (l *RateLimiter) RecordDispatch(now time.Time) {
	l.stamps = append(l.stamps, now)
}

// AvailableSlots prunes timestamps strictly older than the window and returns
// how many dispatches may still start, floored at zero. A dispatch exactly one
// window old still counts. Pruning is idempotent.
func (l *RateLimiter) AvailableSlots(now time.Time) int {
	cutoff := now.Add(-l.window)
	keep := l.stamps[:0]
	for _, ts := range l.stamps {
		if !ts.Before(cutoff) {
			keep = append(keep, ts)
		}
	}
	l.stamps = keep

	slots := l.limit - len(l.stamps)
	if slots < 0 {
		return 0
	}
	return slots
}
