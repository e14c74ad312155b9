// Package frameclock tracks VBlank timing for accurate frame scheduling.
//
// The clock stores the last presentation time and the output refresh
// interval to predict the next VBlank, enabling estimated VBlank timers
// that do not drift the way fixed-interval timers do.
package frameclock

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/ezemtsov/ewm/internal/logger"
)

// Monotonic returns the current CLOCK_MONOTONIC time as a duration since
// boot. Presentation timestamps from the scanout engine use the same clock.
func Monotonic() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
}

// FrameClock predicts the next presentation time for one output
type FrameClock struct {
	lastPresentation time.Duration // zero means unset
	refreshInterval  time.Duration // zero means unknown

	// now is swappable for tests
	now func() time.Duration
}

// New creates a frame clock with the given refresh interval. A zero
// interval means the output's timing is unknown and predictions degrade
// to "now".
func New(refreshInterval time.Duration) *FrameClock {
	return &FrameClock{
		refreshInterval: refreshInterval,
		now:             Monotonic,
	}
}

// RefreshInterval returns the configured refresh interval, zero if unknown
func (c *FrameClock) RefreshInterval() time.Duration {
	return c.refreshInterval
}

// SetRefreshInterval updates the interval after a mode change
func (c *FrameClock) SetRefreshInterval(interval time.Duration) {
	c.refreshInterval = interval
}

// Presented records that a frame was presented at the given time. Zero
// timestamps (no hardware timestamp available) are ignored.
func (c *FrameClock) Presented(presentation time.Duration) {
	if presentation == 0 {
		return
	}
	c.lastPresentation = presentation
}

// NextPresentationTime predicts the next VBlank: the smallest
// lastPresentation + k*refreshInterval strictly greater than now. When now
// is at or before the last presentation (an early VBlank), now is first
// advanced by one interval (or to lastPresentation + interval if still
// behind), so the result is at least one interval after the last
// presentation. Without a last presentation or a refresh interval it
// returns now.
func (c *FrameClock) NextPresentationTime() time.Duration {
	now := c.now()

	if c.refreshInterval == 0 || c.lastPresentation == 0 {
		return now
	}

	last := c.lastPresentation
	interval := c.refreshInterval

	if now <= last {
		// Got an early VBlank.
		origNow := now
		now += interval

		if now < last {
			logger.Warnf("got a 2+ early VBlank: now=%v last_presentation=%v, %v until presentation",
				origNow, last, last-now)
			now = last + interval
		}
	}

	sinceLast := now - last
	toNext := (sinceLast/interval + 1) * interval
	return last + toNext
}
