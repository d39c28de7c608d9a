package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)

	assert.Equal(t, base, clock.Now())

	clock.Advance(90 * time.Second)
	assert.Equal(t, base.Add(90*time.Second), clock.Now())
	assert.Equal(t, 90*time.Second, clock.Since(base))

	clock.Set(base)
	assert.Equal(t, base, clock.Now())
}

func TestMockClockSleeps(t *testing.T) {
	t.Parallel()

	clock := NewMockClock(time.Unix(0, 0))
	clock.Sleep(time.Second)
	clock.Sleep(2 * time.Second)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestRealClockSince(t *testing.T) {
	t.Parallel()

	clock := NewClock()
	start := clock.Now()
	assert.GreaterOrEqual(t, clock.Since(start), time.Duration(0))
}
