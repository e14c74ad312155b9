package frameclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixed(now time.Duration) func() time.Duration {
	return func() time.Duration { return now }
}

func TestNoInterval(t *testing.T) {
	c := New(0)
	c.now = fixed(100 * time.Second)
	c.Presented(99 * time.Second)

	assert.Equal(t, 100*time.Second, c.NextPresentationTime())
}

func TestNoPresentation(t *testing.T) {
	c := New(16667 * time.Microsecond)
	c.now = fixed(100 * time.Second)

	assert.Equal(t, 100*time.Second, c.NextPresentationTime())
}

func TestPredictsNextInterval(t *testing.T) {
	interval := 16 * time.Millisecond
	c := New(interval)
	c.now = fixed(100 * time.Second)
	c.Presented(100*time.Second - 5*time.Millisecond)

	next := c.NextPresentationTime()
	assert.Equal(t, 100*time.Second-5*time.Millisecond+interval, next)
	assert.Greater(t, next, 100*time.Second)
}

func TestSkipsMissedVBlanks(t *testing.T) {
	interval := 10 * time.Millisecond
	c := New(interval)
	// Three intervals have passed since the last presentation.
	c.Presented(1 * time.Second)
	c.now = fixed(1*time.Second + 35*time.Millisecond)

	// Next must be the first multiple strictly after now, not a stale slot.
	assert.Equal(t, 1*time.Second+40*time.Millisecond, c.NextPresentationTime())
}

func TestEarlyVBlankAdvancesOneInterval(t *testing.T) {
	interval := 10 * time.Millisecond
	c := New(interval)
	c.Presented(2 * time.Second)
	// now is slightly before the recorded presentation
	c.now = fixed(2*time.Second - 1*time.Millisecond)

	next := c.NextPresentationTime()
	assert.Equal(t, 2*time.Second+10*time.Millisecond, next)
}

func TestVeryEarlyVBlankClamps(t *testing.T) {
	interval := 10 * time.Millisecond
	c := New(interval)
	c.Presented(2 * time.Second)
	// now is more than one interval before the recorded presentation
	c.now = fixed(2*time.Second - 25*time.Millisecond)

	next := c.NextPresentationTime()
	assert.Equal(t, 2*time.Second+20*time.Millisecond, next)
}

func TestZeroPresentationIgnored(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.now = fixed(5 * time.Second)
	c.Presented(0)

	assert.Equal(t, 5*time.Second, c.NextPresentationTime())
}

func TestRefreshIntervalUpdate(t *testing.T) {
	c := New(16667 * time.Microsecond)
	assert.Equal(t, 16667*time.Microsecond, c.RefreshInterval())

	c.SetRefreshInterval(6944 * time.Microsecond)
	assert.Equal(t, 6944*time.Microsecond, c.RefreshInterval())
}
