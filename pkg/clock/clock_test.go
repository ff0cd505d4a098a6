package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewManual(start)

	assert.Equal(t, start, c.Now())

	c.Advance(61 * time.Minute)
	assert.Equal(t, start.Add(61*time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestReal(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	assert.False(t, got.Before(before))
}

func TestMillisRoundTrip(t *testing.T) {
	ts := time.UnixMilli(1700000000123)

	assert.Equal(t, int64(1700000000123), Millis(ts))
	assert.True(t, FromMillis(Millis(ts)).Equal(ts))
	assert.True(t, FromMillis(0).IsZero())
}
