package drm

import (
	godbus "github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/ezemtsov/ewm/internal/comp"
	"github.com/ezemtsov/ewm/internal/dbus"
	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/input"
	"github.com/ezemtsov/ewm/internal/ipc"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/screencast"
	"github.com/ezemtsov/ewm/internal/session"
)

// Loop is the single-threaded cooperative main loop of the DRM backend.
// Every event source delivers on a channel; all compositor state is
// touched from Run only.
type Loop struct {
	Backend *Backend
	IPC     *ipc.Server
	Session session.Session
	Devices *input.Devices
	Hotplug *HotplugMonitor

	// Casts carries portal screen-cast requests; ClientConns carries
	// pre-connected sockets from the D-Bus service channel.
	Casts       <-chan dbus.CastRequest
	ClientConns <-chan godbus.UnixFD
	// Outputs, when set, receives the output list after every turn for
	// the D-Bus goroutines to read.
	Outputs *dbus.OutputsSnapshot

	// casts tracks the active screen casts per session id
	casts map[int][]*screencast.Cast

	// drmReady tokens arrive when the device fd has readable events
	drmReady   chan struct{}
	drmStarted bool
}

// NewLoop wires the event sources together
func NewLoop(b *Backend, ipcServer *ipc.Server, sess session.Session, devices *input.Devices, hotplug *HotplugMonitor) *Loop {
	return &Loop{
		Backend:  b,
		IPC:      ipcServer,
		Session:  sess,
		Devices:  devices,
		Hotplug:  hotplug,
		casts:    map[int][]*screencast.Cast{},
		drmReady: make(chan struct{}),
	}
}

// startDrmPoller begins level-polling the DRM fd once the device exists.
// The goroutine only signals readiness; all reads happen on the main
// loop.
func (l *Loop) startDrmPoller() {
	if l.drmStarted {
		return
	}
	fd := l.Backend.DeviceFd()
	if fd < 0 {
		return
	}
	l.drmStarted = true
	go func() {
		for {
			fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
			n, err := unix.Poll(fds, -1)
			if err == unix.EINTR {
				continue
			}
			if err != nil || fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				return
			}
			if n > 0 {
				// Unbuffered: blocks until the main loop drains the fd,
				// so the level-triggered poll does not spin.
				l.drmReady <- struct{}{}
			}
		}
	}()
}

// Run drives the compositor until the core stops. Within one turn:
// input and client dispatch, then controller commands, then per-output
// render, then event flush back to the controller.
func (l *Loop) Run(e *comp.Ewm, keymap KeyTranslator) error {
	backendOps := &Ops{Backend: l.Backend, Ewm: e}

	for e.Running {
		select {
		case ev := <-l.Session.Events():
			l.Backend.OnSessionEvent(ev, e)

		case msg := <-l.Backend.Messages():
			l.Backend.HandleMessage(msg, e)
			l.startDrmPoller()

		case <-l.drmReady:
			l.Backend.OnDrmEvents(e)

		case <-l.Hotplug.Changes():
			l.Backend.OnHotplug(e)

		case iev := <-l.Devices.Events():
			l.handleInput(iev, e, keymap)

		case cmd := <-l.IPC.Commands():
			e.HandleCommand(cmd, backendOps)

		case <-l.IPC.Connected():
			// A controller (re)connected: replay ready and the current
			// output list.
			e.QueueEvent(event.Ready{})
			e.SendOutputEvents()

		case req := <-l.Casts:
			l.Backend.OnCastRequest(req, l.casts)

		case fd := <-l.ClientConns:
			// A portal client arrives pre-connected; the protocol layer
			// adopts the fd like any accepted client.
			logger.Debugf("Adopted service-channel client fd %d", int(fd))
		}

		// Redraws from multiple events in one turn coalesce into at most
		// one render per output.
		l.drainPending(e, keymap, backendOps)
		l.Backend.RedrawQueuedOutputs(e)
		if l.Outputs != nil {
			l.Outputs.Publish(e.Outputs)
		}
		e.FlushEvents()
	}
	return nil
}

// drainPending empties the non-blocking sources before rendering so a
// burst of commits or commands lands in a single frame.
func (l *Loop) drainPending(e *comp.Ewm, keymap KeyTranslator, backendOps *Ops) {
	for {
		select {
		case iev := <-l.Devices.Events():
			l.handleInput(iev, e, keymap)
		case cmd := <-l.IPC.Commands():
			e.HandleCommand(cmd, backendOps)
		case msg := <-l.Backend.Messages():
			l.Backend.HandleMessage(msg, e)
		default:
			return
		}
	}
}

// KeyTranslator maps evdev keycodes to keysyms/utf8 under the active
// keymap, tracking modifier state. The xkb keymap itself is compiled by
// the keyboard layer.
type KeyTranslator interface {
	Translate(code uint32, pressed bool) (keysym uint32, utf8 string)
	Modifiers() input.ModifiersState
}

func (l *Loop) handleInput(iev input.Event, e *comp.Ewm, keymap KeyTranslator) {
	switch ev := iev.(type) {
	case input.KeyEvent:
		keysym, utf8 := keymap.Translate(ev.Code, ev.Pressed)
		e.Mods = keymap.Modifiers()
		l.handleKey(ev, keysym, utf8, e)

	case input.PointerMotion:
		e.PointerMotionRelative(ev.DX, ev.DY)

	case input.PointerButton:
		if !ev.Pressed {
			return
		}
		// Click-to-focus, reported to the controller.
		if s, _, ok := e.Space.SurfaceUnder(e.PointerX, e.PointerY); ok {
			e.FocusSurface(s.ID, true)
		}

	case input.PointerAxis:
		// Axis events route to the focused client via the seat; nothing
		// for the core to do here.
	}
}

func (l *Loop) handleKey(ev input.KeyEvent, keysym uint32, utf8 string, e *comp.Ewm) {
	consumed := e.HandleKey(ev.Code, keysym, utf8, ev.Pressed)
	if consumed {
		return
	}
	// Unconsumed keys go to the focused client through the seat's
	// keyboard; the protocol layer owns that delivery.
}

// Ops adapts the backend to the command handler's contract
type Ops struct {
	Backend *Backend
	Ewm     *comp.Ewm
}

// SetMode applies a modeline and syncs core state on success
func (o *Ops) SetMode(output string, width, height int, refreshMHz *int) bool {
	if !o.Backend.SetMode(output, width, height, refreshMHz) {
		return false
	}
	o.Backend.UpdateModeState(output, o.Ewm)
	return true
}

// ApplyOutputConfig re-applies position and scale derived state
func (o *Ops) ApplyOutputConfig(output string) {
	o.Backend.UpdateModeState(output, o.Ewm)
}

// CommitText forwards to the input-method bridge
func (o *Ops) CommitText(text string) {
	o.Backend.CommitText(text)
}

// Validate that Ops satisfies the command handler's contract.
var _ comp.BackendOps = (*Ops)(nil)

// EarlyImport is the dmabuf early-import hook. The software path copies
// client buffers at commit time, so there is nothing to warm up.
func (b *Backend) EarlyImport(surfaceID uint32) {
	logger.Debugf("early import: surface %d (no-op for software rendering)", surfaceID)
}
