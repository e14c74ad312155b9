package comp

import (
	"time"

	"github.com/ezemtsov/ewm/internal/config"
	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/frameclock"
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/input"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/redraw"
	"github.com/ezemtsov/ewm/internal/render"
	"github.com/ezemtsov/ewm/internal/screencopy"
)

// DefaultRefreshInterval is used until an output reports real timing
const DefaultRefreshInterval = 16667 * time.Microsecond

// OutputState is the per-output state owned by the core, not the backend:
// any code with access to the core can queue redraws.
type OutputState struct {
	Redraw          redraw.State
	RefreshInterval time.Duration
	Clock           *frameclock.FrameClock

	// LockSurface is the per-output session-lock surface
	LockSurface *Surface

	// FrameCallbacksSent counts delivered frame callbacks (tests)
	FrameCallbacksSent int
}

// NewOutputState creates output state with the given refresh interval
func NewOutputState(refresh time.Duration) *OutputState {
	if refresh == 0 {
		refresh = DefaultRefreshInterval
	}
	return &OutputState{
		Redraw:          redraw.Idle{},
		RefreshInterval: refresh,
		Clock:           frameclock.New(refresh),
	}
}

// LayerSurface is a layer-shell surface attached to an output
type LayerSurface struct {
	Surface *Surface
	Layer   render.Layer
	// Geo is the output-local geometry
	Geo geom.Rect
	// ExclusiveEdge and ExclusiveZone reserve part of the working area:
	// 0 none, 1 top, 2 bottom, 3 left, 4 right.
	ExclusiveEdge int
	ExclusiveZone int
}

// Exclusive edges
const (
	EdgeNone = iota
	EdgeTop
	EdgeBottom
	EdgeLeft
	EdgeRight
)

// Ewm is the compositor core state. Single-owner, main-loop confined.
type Ewm struct {
	Space *Space

	cfg *config.Config

	nextSurfaceID uint32
	surfaces      map[uint32]*Surface

	// surfaceOutputs marks surfaces managed by per-output layout entries
	// (assign-output / prepare-frame), keyed by surface id.
	surfaceOutputs map[uint32]string

	pendingEvents []event.Event
	sink          func(event.Event)

	// Outputs
	Outputs      []event.OutputInfo
	OutputStates map[string]*OutputState
	workingAreas map[string]geom.Rect
	layerShell   map[string][]*LayerSurface
	// OutputConfigs carries controller/config-file supplied output
	// settings, keyed by connector name.
	OutputConfigs map[string]config.OutputConfig

	// Input
	PointerX, PointerY float64
	FocusedID          uint32
	pendingFocus       *uint32
	Intercepted        []input.InterceptedKey
	TextInputIntercept bool
	Xkb                input.XkbState
	Mods               input.ModifiersState

	// Session lock
	Locked    bool
	LockColor render.Color

	// Screenshot request: capture the next frame to this path
	PendingScreenshot string

	// prepare-frame earmarks, consumed by the next new toplevel
	pendingFrameOutputs []string

	// Screencopy queue, drained during the owning output's render pass
	Screencopy *screencopy.Manager

	cursor render.CursorSource

	// Running is cleared by the kill combo or a fatal backend error
	Running bool

	lockColorID uint64
}

// New creates the core state
func New(cfg *config.Config) *Ewm {
	if cfg == nil {
		cfg = config.Get()
	}
	e := &Ewm{
		Space:          NewSpace(),
		cfg:            cfg,
		surfaces:       map[uint32]*Surface{},
		surfaceOutputs: map[uint32]string{},
		OutputStates:   map[string]*OutputState{},
		workingAreas:   map[string]geom.Rect{},
		layerShell:     map[string][]*LayerSurface{},
		OutputConfigs:  map[string]config.OutputConfig{},
		Screencopy:     screencopy.NewManager(),
		LockColor:      render.ColorFromRGB(cfg.LockColor),
		Running:        true,
		lockColorID:    render.NextElementID(),
	}
	for name, oc := range cfg.Outputs {
		e.OutputConfigs[name] = oc
	}
	e.Xkb.Configure(cfg.Xkb.Layouts, cfg.Xkb.Options)
	return e
}

// BackgroundColor returns the frame clear colour
func (e *Ewm) BackgroundColor() render.Color {
	return render.ColorFromRGB(e.cfg.Background)
}

// SetCursor installs the cursor source used by the element collector
func (e *Ewm) SetCursor(c render.CursorSource) {
	e.cursor = c
}

// SetEventSink connects the controller event stream. Queued events are
// flushed by the main loop at the end of each turn.
func (e *Ewm) SetEventSink(sink func(event.Event)) {
	e.sink = sink
}

// QueueEvent queues an event for the controller
func (e *Ewm) QueueEvent(ev event.Event) {
	e.pendingEvents = append(e.pendingEvents, ev)
}

// FlushEvents sends all queued events to the controller
func (e *Ewm) FlushEvents() {
	if e.sink == nil {
		return
	}
	for _, ev := range e.pendingEvents {
		e.sink(ev)
	}
	e.pendingEvents = e.pendingEvents[:0]
}

// PendingEvents exposes the queue for tests
func (e *Ewm) PendingEvents() []event.Event {
	return e.pendingEvents
}

// CreateSurface registers a new toplevel and emits the new event. A
// prepare-frame earmark assigns the surface to that output.
func (e *Ewm) CreateSurface(appID string) *Surface {
	e.nextSurfaceID++
	s := &Surface{
		ID:    e.nextSurfaceID,
		AppID: appID,
	}
	e.surfaces[s.ID] = s

	ev := event.New{ID: s.ID, App: appID}
	if len(e.pendingFrameOutputs) > 0 {
		output := e.pendingFrameOutputs[0]
		e.pendingFrameOutputs = e.pendingFrameOutputs[1:]
		e.surfaceOutputs[s.ID] = output
		ev.Output = output
	}

	// New surfaces sit off-screen until the controller places them.
	e.Space.MapSurface(s, HiddenPos, false)

	e.QueueEvent(ev)
	return s
}

// DestroySurface removes a surface and emits the close event. The id is
// never reused.
func (e *Ewm) DestroySurface(id uint32) {
	s, ok := e.surfaces[id]
	if !ok {
		return
	}
	e.Space.UnmapSurface(s)
	delete(e.surfaces, id)
	delete(e.surfaceOutputs, id)
	if e.FocusedID == id {
		e.FocusedID = 0
	}
	e.QueueEvent(event.Close{ID: id})
	e.QueueRedrawAll()
}

// Surface looks up a surface by id
func (e *Ewm) Surface(id uint32) (*Surface, bool) {
	s, ok := e.surfaces[id]
	return s, ok
}

// UpdateSurfaceInfo records title/app-id changes and notifies the
// controller when something actually changed.
func (e *Ewm) UpdateSurfaceInfo(id uint32, appID, title string) {
	s, ok := e.surfaces[id]
	if !ok {
		return
	}
	if s.AppID == appID && s.Title == title {
		return
	}
	s.AppID = appID
	s.Title = title
	e.QueueEvent(event.Title{ID: id, App: appID, Title: title})
}

// SetFocus records a controller focus request. It is applied before the
// next key event is dispatched.
func (e *Ewm) SetFocus(id uint32) {
	e.pendingFocus = &id
}

// ApplyPendingFocus resolves a controller focus request; called at the
// start of keyboard event handling.
func (e *Ewm) ApplyPendingFocus() {
	if e.pendingFocus == nil {
		return
	}
	id := *e.pendingFocus
	e.pendingFocus = nil
	if _, ok := e.surfaces[id]; ok {
		e.FocusedID = id
	}
}

// FocusSurface moves focus, optionally notifying the controller (clicks
// notify; controller-driven focus does not echo back).
func (e *Ewm) FocusSurface(id uint32, notify bool) {
	if _, ok := e.surfaces[id]; !ok {
		return
	}
	if e.FocusedID == id {
		return
	}
	e.FocusedID = id
	if notify {
		e.QueueEvent(event.Focus{ID: id})
	}
}

// QueueRedrawAll requests a redraw on every output
func (e *Ewm) QueueRedrawAll() {
	for _, st := range e.OutputStates {
		st.Redraw = redraw.QueueRedraw(st.Redraw)
	}
}

// QueueRedraw requests a redraw on one output
func (e *Ewm) QueueRedraw(output string) {
	if st, ok := e.OutputStates[output]; ok {
		st.Redraw = redraw.QueueRedraw(st.Redraw)
	}
}

// AddOutput registers a new output: state, info, working area, and the
// controller notification.
func (e *Ewm) AddOutput(info event.OutputInfo, rect geom.Rect, refresh time.Duration) {
	e.Space.MapOutput(info.Name, rect)
	e.OutputStates[info.Name] = NewOutputState(refresh)
	e.Outputs = append(e.Outputs, info)
	e.workingAreas[info.Name] = geom.Rect{W: rect.W, H: rect.H}
	e.QueueEvent(event.OutputDetected{OutputInfo: info})
}

// RemoveOutput tears an output down: cancel timers, unmap, drop state,
// recalculate, notify.
func (e *Ewm) RemoveOutput(name string) {
	st, ok := e.OutputStates[name]
	if !ok {
		return
	}
	st.Redraw = redraw.OnPause(st.Redraw)
	delete(e.OutputStates, name)
	delete(e.workingAreas, name)
	delete(e.layerShell, name)
	e.Space.UnmapOutput(name)
	for i, info := range e.Outputs {
		if info.Name == name {
			e.Outputs = append(e.Outputs[:i], e.Outputs[i+1:]...)
			break
		}
	}
	e.QueueEvent(event.OutputDisconnected{Name: name})
}

// WorkingArea returns the output-local area left after exclusive zones
func (e *Ewm) WorkingArea(output string) geom.Rect {
	if wa, ok := e.workingAreas[output]; ok {
		return wa
	}
	if geo, ok := e.Space.OutputGeometry(output); ok {
		return geom.Rect{W: geo.W, H: geo.H}
	}
	return geom.Rect{}
}

// AddLayerSurface attaches a layer-shell surface to an output and
// recomputes the working area.
func (e *Ewm) AddLayerSurface(output string, ls *LayerSurface) {
	e.layerShell[output] = append(e.layerShell[output], ls)
	e.recomputeWorkingArea(output)
	e.QueueRedraw(output)
}

// RemoveLayerSurface detaches a layer-shell surface
func (e *Ewm) RemoveLayerSurface(output string, ls *LayerSurface) {
	list := e.layerShell[output]
	for i, have := range list {
		if have == ls {
			e.layerShell[output] = append(list[:i], list[i+1:]...)
			break
		}
	}
	e.recomputeWorkingArea(output)
	e.QueueRedraw(output)
}

// recomputeWorkingArea subtracts exclusive zones from the output rect and
// notifies the controller when the result changed.
func (e *Ewm) recomputeWorkingArea(output string) {
	geo, ok := e.Space.OutputGeometry(output)
	if !ok {
		return
	}
	wa := geom.Rect{W: geo.W, H: geo.H}
	for _, ls := range e.layerShell[output] {
		if ls.ExclusiveZone <= 0 {
			continue
		}
		z := ls.ExclusiveZone
		switch ls.ExclusiveEdge {
		case EdgeTop:
			wa.Y += z
			wa.H -= z
		case EdgeBottom:
			wa.H -= z
		case EdgeLeft:
			wa.X += z
			wa.W -= z
		case EdgeRight:
			wa.W -= z
		}
	}
	if e.workingAreas[output] == wa {
		return
	}
	e.workingAreas[output] = wa
	e.QueueEvent(event.WorkingArea{
		Output: output,
		X:      wa.X, Y: wa.Y,
		Width: wa.W, Height: wa.H,
	})
}

// SetLocked switches session-lock rendering on or off
func (e *Ewm) SetLocked(locked bool) {
	if e.Locked == locked {
		return
	}
	e.Locked = locked
	e.QueueRedrawAll()
}

// PointerMotionRelative moves the pointer by a delta, clamped to the
// global output bounding box, and queues redraws so the cursor tracks.
func (e *Ewm) PointerMotionRelative(dx, dy float64) {
	size := e.Space.OutputSize()
	e.PointerX = clamp(e.PointerX+dx, 0, float64(size.W))
	e.PointerY = clamp(e.PointerY+dy, 0, float64(size.H))
	e.QueueRedrawAll()
}

// WarpPointer moves the pointer to an absolute position
func (e *Ewm) WarpPointer(x, y float64) {
	e.PointerX = x
	e.PointerY = y
	e.QueueRedrawAll()
}

// HandleKey routes one key event: kill combo, pending focus, interception
// table, text-input intercept. Returns true when the key was consumed and
// must not reach the focused client.
func (e *Ewm) HandleKey(keycode uint32, keysym uint32, utf8 string, pressed bool) bool {
	e.ApplyPendingFocus()

	if pressed && input.IsKillCombo(keycode, e.Mods) {
		logger.Info("Kill combo pressed, shutting down")
		e.Running = false
		return true
	}

	if !pressed {
		return false
	}

	for _, k := range e.Intercepted {
		if k.Matches(keysym, e.Mods) {
			ev := event.Key{Keysym: keysym}
			if utf8 != "" {
				ev.UTF8 = utf8
			}
			e.QueueEvent(ev)
			return true
		}
	}

	// With text-input intercept on, printable keys go to the controller
	// instead of the focused client.
	if e.TextInputIntercept && utf8 != "" {
		e.QueueEvent(event.Key{Keysym: keysym, UTF8: utf8})
		return true
	}

	return false
}

// NotifySelectionChanged reports a clipboard selection made by a client;
// the data-device layer calls this with the text it read.
func (e *Ewm) NotifySelectionChanged(text string) {
	e.QueueEvent(event.SelectionChanged{Text: text})
}

// NotifyWorkspaceActivated reports a workspace activation request (e.g.
// a bar widget click) for the controller to act on.
func (e *Ewm) NotifyWorkspaceActivated(output string, tabIndex int) {
	e.QueueEvent(event.ActivateWorkspace{Output: output, TabIndex: tabIndex})
}

// SendFrameCallbacks tells clients that now is a good time to draw: every
// mapped surface with a frame callback is signalled with the output name,
// whichever output the surface is on. Sent after each render and on each
// estimated VBlank so
// clients with animation loops are never starved of cadence.
func (e *Ewm) SendFrameCallbacks(output string) {
	for _, s := range e.Space.Surfaces() {
		if s.FrameCallback != nil {
			s.FrameCallback(output)
		}
	}
	if st, ok := e.OutputStates[output]; ok {
		st.FrameCallbacksSent++
	}
}

// SendOutputEvents replays the full output list to the controller,
// terminated by outputs_complete. Used on controller connect.
func (e *Ewm) SendOutputEvents() {
	for _, info := range e.Outputs {
		e.QueueEvent(event.OutputDetected{OutputInfo: info})
	}
	e.QueueEvent(event.OutputsComplete{})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
