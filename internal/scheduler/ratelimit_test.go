package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(4, time.Minute)

	assert.Equal(t, 4, rl.AvailableSlots(now))

	for i := 0; i < 4; i++ {
		rl.RecordDispatch(now.Add(time.Duration(i) * time.Second))
	}
	assert.Equal(t, 0, rl.AvailableSlots(now.Add(4*time.Second)))

	// Dispatches age out individually as the window slides past them.
	assert.Equal(t, 1, rl.AvailableSlots(now.Add(61*time.Second)))
	assert.Equal(t, 2, rl.AvailableSlots(now.Add(62*time.Second)))
	assert.Equal(t, 4, rl.AvailableSlots(now.Add(2*time.Minute)))
}

func TestRateLimiterBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)

	rl.RecordDispatch(now)

	// A dispatch exactly one window old still counts; only strictly older
	// stamps are pruned.
	assert.Equal(t, 0, rl.AvailableSlots(now.Add(time.Minute-time.Nanosecond)))
	assert.Equal(t, 0, rl.AvailableSlots(now.Add(time.Minute)))
	assert.Equal(t, 1, rl.AvailableSlots(now.Add(time.Minute+time.Nanosecond)))
}

func TestRateLimiterNeverReturnsNegative(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(2, time.Minute)

	for i := 0; i < 5; i++ {
		rl.RecordDispatch(now)
	}
	assert.Equal(t, 0, rl.AvailableSlots(now))
}
