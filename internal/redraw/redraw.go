// Package redraw implements the per-output redraw state machine.
//
// The state machine exists to fix a timing bug class: clearing the redraw
// flag after queue_frame instead of after VBlank loses the second of two
// commits landing in the same frame. The redraw flag is therefore carried
// through WaitingForVBlank and only resolved when the VBlank arrives.
//
// The two estimated-VBlank states are the only ones holding a live timer,
// and every transition that leaves them cancels it. Do not construct them
// without a timer.
package redraw

// Timer is a cancellable timer registration. The output surface that starts
// an estimated-VBlank timer owns the handle through the state value; nothing
// else may cancel it.
type Timer interface {
	Cancel()
}

// State is the redraw state of one output. The set of implementations is
// closed.
type State interface {
	isRedrawState()
}

// Idle: no redraw pending
type Idle struct{}

// Queued: a redraw has been requested but not yet started
type Queued struct{}

// WaitingForVBlank: a frame has been queued to scanout. RedrawNeeded tracks
// whether another redraw was requested while waiting.
type WaitingForVBlank struct {
	RedrawNeeded bool
}

// WaitingForEstimatedVBlank: the last render produced no damage, so no real
// VBlank will fire; a software timer stands in for it.
type WaitingForEstimatedVBlank struct {
	Timer Timer
}

// WaitingForEstimatedVBlankAndQueued: the estimated-VBlank timer is live and
// a new redraw was requested while waiting.
type WaitingForEstimatedVBlankAndQueued struct {
	Timer Timer
}

func (Idle) isRedrawState()                               {}
func (Queued) isRedrawState()                             {}
func (WaitingForVBlank) isRedrawState()                   {}
func (WaitingForEstimatedVBlank) isRedrawState()          {}
func (WaitingForEstimatedVBlankAndQueued) isRedrawState() {}

// QueueRedraw requests a redraw, coalescing with any pending one
func QueueRedraw(s State) State {
	switch s := s.(type) {
	case Idle:
		return Queued{}
	case WaitingForVBlank:
		return WaitingForVBlank{RedrawNeeded: true}
	case WaitingForEstimatedVBlank:
		return WaitingForEstimatedVBlankAndQueued{Timer: s.Timer}
	default:
		// Queued and WaitingForEstimatedVBlankAndQueued are already
		// pending; no-op.
		return s
	}
}

// ShouldRender reports whether the collector/renderer may run for this
// state. Rendering from any other state would duplicate frames.
func ShouldRender(s State) bool {
	switch s.(type) {
	case Queued, WaitingForEstimatedVBlankAndQueued:
		return true
	default:
		return false
	}
}

// FrameQueuedWithDamage transitions after a rendered frame was submitted to
// scanout; a real VBlank will follow.
func FrameQueuedWithDamage() State {
	return WaitingForVBlank{RedrawNeeded: false}
}

// FrameQueuedNoDamage transitions after a render that produced no damage;
// the caller has started an estimated-VBlank timer sized to the refresh
// interval and hands over ownership of it.
func FrameQueuedNoDamage(t Timer) State {
	return WaitingForEstimatedVBlank{Timer: t}
}

// OnVBlank resolves a waiting state when the hardware VBlank arrives.
// Returns the next state and whether a new render must be initiated.
func OnVBlank(s State) (State, bool) {
	switch s := s.(type) {
	case WaitingForVBlank:
		if s.RedrawNeeded {
			return Queued{}, true
		}
		return Idle{}, false
	default:
		// A VBlank for a frame we no longer track (e.g. after a pause
		// reset). Ignore.
		return s, false
	}
}

// OnEstimatedVBlank resolves an estimated-VBlank timer firing. Returns the
// next state and whether a new render must be initiated. The timer has
// already fired, so it is not cancelled here.
func OnEstimatedVBlank(s State) (State, bool) {
	switch s.(type) {
	case WaitingForEstimatedVBlank:
		return Idle{}, false
	case WaitingForEstimatedVBlankAndQueued:
		return Queued{}, true
	default:
		return s, false
	}
}

// OnPause resets the state to Idle for a session pause or output removal,
// cancelling any held timer. While the session is paused no redraw may
// progress and no estimated-VBlank timer may remain registered.
func OnPause(s State) State {
	CancelTimer(s)
	return Idle{}
}

// CancelTimer cancels the timer held by an estimated-VBlank state, if any
func CancelTimer(s State) {
	switch s := s.(type) {
	case WaitingForEstimatedVBlank:
		s.Timer.Cancel()
	case WaitingForEstimatedVBlankAndQueued:
		s.Timer.Cancel()
	}
}
