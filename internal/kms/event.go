package kms

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// DRM event types delivered on the device fd
const (
	eventVBlank       = 0x01
	eventFlipComplete = 0x02
)

// Event is a decoded DRM event
type Event struct {
	// FlipComplete is true for flip-complete events, false for plain
	// vblank events.
	FlipComplete bool
	// UserData is the value passed to PageFlip; the backend stores the
	// CRTC id there.
	UserData uint64
	// Timestamp is the hardware presentation time on CLOCK_MONOTONIC
	Timestamp time.Duration
	Sequence  uint32
	CrtcID    uint32
}

// ReadEvents drains pending events from the device fd. The fd is
// non-blocking; an empty read returns no events and no error.
func (d *Device) ReadEvents() ([]Event, error) {
	buf := make([]byte, 1024)
	n, err := unix.Read(d.Fd(), buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read DRM events: %w", err)
	}

	var events []Event
	for off := 0; off+8 <= n; {
		typ := binary.LittleEndian.Uint32(buf[off:])
		length := int(binary.LittleEndian.Uint32(buf[off+4:]))
		if length < 8 || off+length > n {
			return events, fmt.Errorf("truncated DRM event (type %d, length %d)", typ, length)
		}

		if (typ == eventVBlank || typ == eventFlipComplete) && length >= 32 {
			// struct drm_event_vblank: base(8) user_data(8) tv_sec(4)
			// tv_usec(4) sequence(4) crtc_id(4)
			userData := binary.LittleEndian.Uint64(buf[off+8:])
			tvSec := binary.LittleEndian.Uint32(buf[off+16:])
			tvUsec := binary.LittleEndian.Uint32(buf[off+20:])
			seq := binary.LittleEndian.Uint32(buf[off+24:])
			crtc := binary.LittleEndian.Uint32(buf[off+28:])

			events = append(events, Event{
				FlipComplete: typ == eventFlipComplete,
				UserData:     userData,
				Timestamp:    time.Duration(tvSec)*time.Second + time.Duration(tvUsec)*time.Microsecond,
				Sequence:     seq,
				CrtcID:       crtc,
			})
		}
		off += length
	}
	return events, nil
}
