package input

import (
	"fmt"
	"sync"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/ezemtsov/ewm/internal/logger"
)

// Event is one input event delivered to the main loop
type Event interface {
	isInputEvent()
}

// KeyEvent is a keyboard key press or release. Code is the evdev keycode.
type KeyEvent struct {
	Code     uint32
	Pressed  bool
	TimeMsec uint32
}

// PointerMotion is relative pointer motion from a mouse
type PointerMotion struct {
	DX, DY   float64
	TimeMsec uint32
}

// PointerButton is a pointer button press or release. Code is the evdev
// button code (BTN_LEFT etc.).
type PointerButton struct {
	Code     uint32
	Pressed  bool
	TimeMsec uint32
}

// PointerAxis is a scroll event; positive Value scrolls down/right
type PointerAxis struct {
	Horizontal bool
	Value      float64
	TimeMsec   uint32
}

func (KeyEvent) isInputEvent()      {}
func (PointerMotion) isInputEvent() {}
func (PointerButton) isInputEvent() {}
func (PointerAxis) isInputEvent()   {}

// Devices owns the evdev input devices for the seat and delivers their
// events on a channel drained by the main loop. Suspend and Resume follow
// the session lifecycle: while the session is paused another VT owns the
// devices.
type Devices struct {
	mu        sync.Mutex
	devices   []*evdev.InputDevice
	events    chan Event
	suspended bool
	wg        sync.WaitGroup
}

// NewDevices creates the device pool without opening anything
func NewDevices() *Devices {
	return &Devices{
		events: make(chan Event, 256),
	}
}

// Events returns the channel input events arrive on
func (d *Devices) Events() <-chan Event {
	return d.events
}

// Open scans and opens all keyboard and pointer devices
func (d *Devices) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.devices) > 0 {
		return nil
	}

	devices, err := evdev.ListInputDevices()
	if err != nil {
		return fmt.Errorf("failed to list input devices: %w", err)
	}

	for _, dev := range devices {
		if !isKeyboard(dev) && !isPointer(dev) {
			dev.File.Close()
			continue
		}
		logger.Debugf("Input device: %s (%s)", dev.Name, dev.Fn)
		d.devices = append(d.devices, dev)
		d.wg.Add(1)
		go d.readDevice(dev)
	}

	if len(d.devices) == 0 {
		logger.Warn("No input devices found")
	}
	d.suspended = false
	return nil
}

// Suspend closes all devices (VT switch away)
func (d *Devices) Suspend() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.suspended {
		return
	}
	d.suspended = true
	for _, dev := range d.devices {
		dev.File.Close()
	}
	d.devices = nil
}

// Resume reopens the devices after a VT switch back
func (d *Devices) Resume() error {
	d.mu.Lock()
	suspended := d.suspended
	d.suspended = false
	d.mu.Unlock()

	if !suspended {
		return nil
	}
	return d.Open()
}

// Close shuts the pool down for good
func (d *Devices) Close() {
	d.Suspend()
	d.wg.Wait()
}

func (d *Devices) readDevice(dev *evdev.InputDevice) {
	defer d.wg.Done()

	for {
		ev, err := dev.ReadOne()
		if err != nil {
			// Closed on suspend, unplugged, or a read error; the
			// reader for this device ends either way.
			return
		}

		msec := uint32(ev.Time.Sec*1000 + ev.Time.Usec/1000)

		switch ev.Type {
		case evdev.EV_KEY:
			if ev.Value > 1 {
				continue // key repeat is synthesised by the keyboard state
			}
			pressed := ev.Value == 1
			if ev.Code >= evdev.BTN_MOUSE && ev.Code < evdev.BTN_JOYSTICK {
				d.deliver(PointerButton{Code: uint32(ev.Code), Pressed: pressed, TimeMsec: msec})
			} else {
				d.deliver(KeyEvent{Code: uint32(ev.Code), Pressed: pressed, TimeMsec: msec})
			}
		case evdev.EV_REL:
			switch ev.Code {
			case evdev.REL_X:
				d.deliver(PointerMotion{DX: float64(ev.Value), TimeMsec: msec})
			case evdev.REL_Y:
				d.deliver(PointerMotion{DY: float64(ev.Value), TimeMsec: msec})
			case evdev.REL_WHEEL:
				d.deliver(PointerAxis{Value: -float64(ev.Value), TimeMsec: msec})
			case evdev.REL_HWHEEL:
				d.deliver(PointerAxis{Horizontal: true, Value: float64(ev.Value), TimeMsec: msec})
			}
		}
	}
}

func (d *Devices) deliver(ev Event) {
	select {
	case d.events <- ev:
	default:
		// The main loop is wedged behind a render; dropping input is
		// better than blocking the reader.
	}
}

func isKeyboard(dev *evdev.InputDevice) bool {
	for capType, codes := range dev.Capabilities {
		if capType.Type != evdev.EV_KEY {
			continue
		}
		for _, code := range codes {
			if code.Code == evdev.KEY_A {
				return true
			}
		}
	}
	return false
}

func isPointer(dev *evdev.InputDevice) bool {
	hasRel := false
	hasButton := false
	for capType, codes := range dev.Capabilities {
		switch capType.Type {
		case evdev.EV_REL:
			hasRel = true
		case evdev.EV_KEY:
			for _, code := range codes {
				if code.Code == evdev.BTN_LEFT {
					hasButton = true
				}
			}
		}
	}
	return hasRel && hasButton
}
