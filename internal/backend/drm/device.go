package drm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ezemtsov/ewm/internal/comp"
	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/input"
	"github.com/ezemtsov/ewm/internal/kms"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/redraw"
	"github.com/ezemtsov/ewm/internal/render"
	"github.com/ezemtsov/ewm/internal/session"
)

// message is an internal main-loop message posted by callbacks and timers
type message interface {
	isDrmMessage()
}

// initializeDrm is posted on the first session activation; DRM setup runs
// on the main loop so event sources register cleanly.
type initializeDrm struct{}

// estimatedVBlank fires when an output's estimated-VBlank timer elapses
type estimatedVBlank struct {
	output string
}

func (initializeDrm) isDrmMessage()   {}
func (estimatedVBlank) isDrmMessage() {}

// pendingInit holds what is needed to bring DRM up once the session
// activates.
type pendingInit struct {
	gpuPath string
	seat    string
}

// deviceState exists only while the session is active and DRM is
// initialised. It is not destroyed on session pause; only DRM master is
// relinquished.
type deviceState struct {
	card    *kms.Device
	gpuFile *os.File
	// renderNode is the node usable for GPU work without master rights;
	// published to clients for their own allocations.
	renderNode string
	// surfaces maps CRTC to output surface; every entry corresponds to a
	// currently connected connector.
	surfaces map[uint32]*OutputSurface
	// formats is the render format set published for dmabuf clients
	formats render.FormatSet
}

// Backend is the DRM backend state
type Backend struct {
	session session.Session
	devices *input.Devices

	dev     *deviceState
	pending *pendingInit
	paused  bool

	renderer *render.Renderer

	// messages is drained by the main loop; timers and deferred init
	// post here instead of touching state from another goroutine.
	messages chan message

	// imCommit forwards controller text to the input-method bridge
	imCommit func(string)
}

// NewBackend creates the backend with DRM initialisation deferred until
// the session activates.
func NewBackend(sess session.Session, devices *input.Devices, gpuPath string) *Backend {
	return &Backend{
		session:  sess,
		devices:  devices,
		pending:  &pendingInit{gpuPath: gpuPath, seat: sess.Seat()},
		renderer: render.New(),
		messages: make(chan message, 64),
	}
}

// Messages returns the internal message channel for the main loop
func (b *Backend) Messages() <-chan message {
	return b.messages
}

// IsInitialized reports whether the DRM device is up
func (b *Backend) IsInitialized() bool {
	return b.dev != nil
}

// DeviceFd returns the DRM device fd for event polling, or -1
func (b *Backend) DeviceFd() int {
	if b.dev == nil {
		return -1
	}
	return b.dev.card.Fd()
}

// SetIMCommit installs the input-method bridge hook
func (b *Backend) SetIMCommit(fn func(string)) {
	b.imCommit = fn
}

// CommitText implements comp.BackendOps
func (b *Backend) CommitText(text string) {
	if b.imCommit == nil {
		logger.Warn("im-commit received but no IM relay connected")
		return
	}
	b.imCommit(text)
}

// OnSessionEvent handles a session notification. The first activation
// posts the deferred initialisation message; later ones resume.
func (b *Backend) OnSessionEvent(ev session.Event, e *comp.Ewm) {
	switch ev.Kind {
	case session.Pause:
		logger.Info("Session paused (VT switch away)")
		b.pause(e)
	case session.Activate:
		logger.Info("Session activated")
		if b.dev == nil && b.pending != nil {
			logger.Info("First session activation - triggering DRM init")
			b.messages <- initializeDrm{}
		} else {
			b.resume(e)
		}
	}
}

// HandleMessage processes one internal message on the main loop
func (b *Backend) HandleMessage(msg message, e *comp.Ewm) {
	switch m := msg.(type) {
	case initializeDrm:
		if err := b.initialize(e); err != nil {
			logger.Warnf("Failed to initialize DRM: %v", err)
		}
	case estimatedVBlank:
		b.onEstimatedVBlank(m.output, e)
	}
}

// pause suspends input, drops DRM master, cancels every estimated-VBlank
// timer and resets every redraw state to Idle. No redraw may progress
// while paused.
func (b *Backend) pause(e *comp.Ewm) {
	b.devices.Suspend()
	if b.dev != nil {
		if err := b.dev.card.DropMaster(); err != nil {
			logger.Debugf("DropMaster on pause: %v", err)
		}
		for _, st := range e.OutputStates {
			st.Redraw = redraw.OnPause(st.Redraw)
		}
	}
	b.paused = true
}

// resume re-acquires DRM master and queues a redraw on every output.
// Master re-acquisition failure is non-fatal; the next activate retries.
func (b *Backend) resume(e *comp.Ewm) {
	b.paused = false
	if err := b.devices.Resume(); err != nil {
		logger.Warnf("Error resuming input devices: %v", err)
	}

	if b.dev == nil {
		return
	}
	if err := b.dev.card.SetMaster(); err != nil {
		logger.Warnf("Error activating DRM device: %v", err)
	} else {
		logger.Info("DRM device activated successfully (DRM master acquired)")
	}
	for _, surface := range b.dev.surfaces {
		surface.tracker.Reset()
		surface.modesetDone = false
	}
	// Hotplugs that happened while paused were deferred; catch up now.
	b.ScanConnectors(e)
	for _, st := range e.OutputStates {
		st.Redraw = redraw.QueueRedraw(st.Redraw)
	}
}

// initialize opens the GPU via the session (granting DRM master), scans
// connectors and creates the initial outputs. Must run after session
// activation.
func (b *Backend) initialize(e *comp.Ewm) error {
	if b.pending == nil {
		return fmt.Errorf("DRM already initialized")
	}
	pending := b.pending
	b.pending = nil

	logger.Info("Initializing DRM device (session is now active)")

	gpuFile, err := b.session.OpenDevice(pending.gpuPath)
	if err != nil {
		return fmt.Errorf("failed to open GPU %s: %w", pending.gpuPath, err)
	}

	card := kms.FromFile(gpuFile, pending.gpuPath)
	if err := card.SetMaster(); err != nil {
		// logind grants master with the fd; direct sessions need the
		// explicit ioctl. Either way a failure here is retried on the
		// next activate.
		logger.Debugf("SetMaster at init: %v", err)
	}

	// The software renderer accepts the whole linear set.
	formats := render.FormatSet{
		{Code: render.FourccXrgb8888, Modifier: render.ModifierLinear},
		{Code: render.FourccArgb8888, Modifier: render.ModifierLinear},
		{Code: render.FourccXrgb8888, Modifier: render.ModifierInvalid},
		{Code: render.FourccArgb8888, Modifier: render.ModifierInvalid},
	}

	renderNode := renderNodeFor(pending.gpuPath)
	logger.Infof("Render node: %s", renderNode)

	b.dev = &deviceState{
		card:       card,
		gpuFile:    gpuFile,
		renderNode: renderNode,
		surfaces:   map[uint32]*OutputSurface{},
		formats:    formats,
	}

	b.ScanConnectors(e)
	logger.Info("DRM initialization complete")

	return nil
}

// RenderNode returns the device's render node path, empty before init
func (b *Backend) RenderNode() string {
	if b.dev == nil {
		return ""
	}
	return b.dev.renderNode
}

// renderNodeFor maps a card node to its render node via sysfs; falls back
// to the card node itself when the driver exposes none.
func renderNodeFor(cardPath string) string {
	base := filepath.Base(cardPath) // card0
	pattern := fmt.Sprintf("/sys/class/drm/%s/device/drm/renderD*", base)
	if matches, err := filepath.Glob(pattern); err == nil && len(matches) > 0 {
		return filepath.Join("/dev/dri", filepath.Base(matches[0]))
	}
	return cardPath
}

// PrimaryGPUPath picks the first card node on the seat
func PrimaryGPUPath() (string, error) {
	matches, err := filepath.Glob("/dev/dri/card*")
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no GPU found under /dev/dri")
	}
	sort.Strings(matches)
	return matches[0], nil
}

// ScanConnectors diffs the connector state against the live surfaces,
// producing disconnects before connects, then recalculates the output
// bounding box.
func (b *Backend) ScanConnectors(e *comp.Ewm) {
	if b.dev == nil {
		return
	}

	res, err := b.dev.card.GetResources()
	if err != nil {
		logger.Warnf("Error scanning connectors: %v", err)
		return
	}

	connected := map[uint32]*kms.Connector{}
	for _, id := range res.Connectors {
		conn, err := b.dev.card.GetConnector(id)
		if err != nil {
			logger.Warnf("Error probing connector %d: %v", id, err)
			continue
		}
		if conn.Connected() && len(conn.Modes) > 0 {
			connected[id] = conn
		}
	}

	// Process disconnections first.
	for crtc, surface := range b.dev.surfaces {
		if _, still := connected[surface.Connector]; !still {
			logger.Infof("Connector disconnected: %s", surface.Name)
			b.disconnectOutput(crtc, e)
		}
	}

	// Then new connections.
	have := map[uint32]bool{}
	for _, surface := range b.dev.surfaces {
		have[surface.Connector] = true
	}
	for id, conn := range connected {
		if have[id] {
			continue
		}
		crtc, ok := b.pickCrtc(res, conn)
		if !ok {
			logger.Warnf("Connector %s has no available CRTC", conn.Name())
			continue
		}
		logger.Infof("Connector connected: %s", conn.Name())
		if err := b.connectOutput(conn, crtc, e); err != nil {
			logger.Warnf("Failed to connect output %s: %v", conn.Name(), err)
		}
	}
}

// pickCrtc finds a free CRTC reachable from one of the connector's
// encoders.
func (b *Backend) pickCrtc(res *kms.Resources, conn *kms.Connector) (uint32, bool) {
	used := map[uint32]bool{}
	for crtc := range b.dev.surfaces {
		used[crtc] = true
	}

	for _, encID := range conn.Encoders {
		enc, err := b.dev.card.GetEncoder(encID)
		if err != nil {
			continue
		}
		for i, crtc := range res.Crtcs {
			if used[crtc] {
				continue
			}
			if enc.PossibleCrtcs&(1<<uint(i)) != 0 {
				return crtc, true
			}
		}
	}
	return 0, false
}

// connectOutput creates the output surface and registers the output with
// the core: preferred mode, auto- or config-driven position, redraw
// queued.
func (b *Backend) connectOutput(conn *kms.Connector, crtc uint32, e *comp.Ewm) error {
	mode := b.chooseMode(conn, e)
	if mode == nil {
		return fmt.Errorf("no mode available")
	}

	logger.Infof("Connecting display: %s %dx%d@%dmHz",
		conn.Name(), mode.HDisplay, mode.VDisplay, mode.RefreshMHz())

	surface, err := newOutputSurface(b.dev.card, conn, crtc, *mode, b.dev.formats)
	if err != nil {
		// Per-output hotplug error: drop this connector, others continue.
		return err
	}

	name := conn.Name()
	rect := b.placementFor(name, surface.Size(), e)

	modes := make([]event.OutputMode, len(conn.Modes))
	for i := range conn.Modes {
		m := &conn.Modes[i]
		modes[i] = event.OutputMode{
			Width:     int(m.HDisplay),
			Height:    int(m.VDisplay),
			Refresh:   m.RefreshMHz(),
			Preferred: m.Preferred(),
		}
	}

	info := event.OutputInfo{
		Name:     name,
		Make:     "Unknown",
		Model:    "Unknown",
		WidthMM:  int(conn.MmWidth),
		HeightMM: int(conn.MmHeight),
		X:        rect.X,
		Y:        rect.Y,
		Scale:    e.OutputScale(name),
		Modes:    modes,
	}

	b.dev.surfaces[crtc] = surface
	e.AddOutput(info, rect, surface.RefreshInterval())
	e.QueueRedraw(name)

	logger.Infof("Mapped output %s at position (%d, %d), size %dx%d",
		name, rect.X, rect.Y, rect.W, rect.H)
	return nil
}

// chooseMode honours a configured mode, falling back to the preferred one
func (b *Backend) chooseMode(conn *kms.Connector, e *comp.Ewm) *kms.ModeInfo {
	if oc, ok := e.OutputConfigs[conn.Name()]; ok && oc.Width != nil && oc.Height != nil {
		if m := findMode(conn, *oc.Width, *oc.Height, oc.Refresh); m != nil {
			return m
		}
		logger.Warnf("Configured mode %dx%d not found on %s", *oc.Width, *oc.Height, conn.Name())
	}
	return conn.PreferredMode()
}

// placementFor applies a configured position or appends horizontally
func (b *Backend) placementFor(name string, size geom.Size, e *comp.Ewm) geom.Rect {
	if oc, ok := e.OutputConfigs[name]; ok && oc.X != nil && oc.Y != nil {
		return geom.NewRect(geom.Point{X: *oc.X, Y: *oc.Y}, size)
	}
	return geom.NewRect(geom.Point{X: e.Space.OutputSize().W, Y: 0}, size)
}

// disconnectOutput destroys a surface after cancelling pending timers and
// unmapping the output.
func (b *Backend) disconnectOutput(crtc uint32, e *comp.Ewm) {
	surface, ok := b.dev.surfaces[crtc]
	if !ok {
		return
	}
	delete(b.dev.surfaces, crtc)
	name := surface.Name
	// RemoveOutput cancels any estimated-VBlank timer via the FSM reset.
	e.RemoveOutput(name)
	surface.Destroy()
	logger.Infof("Output disconnected: %s", name)
}

// OnHotplug rescans after a udev change event. While paused the scan is
// deferred: it will happen on resume, and no CRTC is touched meanwhile.
func (b *Backend) OnHotplug(e *comp.Ewm) {
	if b.paused || b.dev == nil {
		return
	}
	b.ScanConnectors(e)
	e.QueueRedrawAll()
}

// surfaceByName finds an output surface by connector name
func (b *Backend) surfaceByName(name string) (*OutputSurface, uint32, bool) {
	if b.dev == nil {
		return nil, 0, false
	}
	for crtc, s := range b.dev.surfaces {
		if s.Name == name {
			return s, crtc, true
		}
	}
	return nil, 0, false
}

// SetMode implements comp.BackendOps: apply a new modeline by name
func (b *Backend) SetMode(output string, width, height int, refreshMHz *int) bool {
	surface, _, ok := b.surfaceByName(output)
	if !ok {
		logger.Warnf("Output not found: %s", output)
		return false
	}

	conn, err := b.dev.card.GetConnector(surface.Connector)
	if err != nil {
		logger.Warnf("Failed to get connector info for %s: %v", output, err)
		return false
	}

	mode := findMode(conn, width, height, refreshMHz)
	if mode == nil {
		logger.Warnf("No matching mode found for %dx%d on %s", width, height, output)
		return false
	}

	logger.Infof("Setting mode for %s: %dx%d@%dmHz", output, mode.HDisplay, mode.VDisplay, mode.RefreshMHz())
	if err := surface.UseMode(*mode); err != nil {
		logger.Warnf("Failed to set mode: %v", err)
		return false
	}
	return true
}

// findMode picks the connector mode matching the size, preferring the
// requested refresh rate, then the highest.
func findMode(conn *kms.Connector, width, height int, refreshMHz *int) *kms.ModeInfo {
	var best *kms.ModeInfo
	bestScore := -1
	for i := range conn.Modes {
		m := &conn.Modes[i]
		if int(m.HDisplay) != width || int(m.VDisplay) != height {
			continue
		}
		score := m.RefreshMHz()
		if refreshMHz != nil {
			diff := m.RefreshMHz() - *refreshMHz
			if diff < 0 {
				diff = -diff
			}
			if diff < 2000 {
				score += 1_000_000
			}
		}
		if score > bestScore {
			best = m
			bestScore = score
		}
	}
	return best
}

// UpdateModeState syncs core output state with a surface's current mode
func (b *Backend) UpdateModeState(output string, e *comp.Ewm) {
	surface, _, ok := b.surfaceByName(output)
	if !ok {
		return
	}
	geo, ok := e.Space.OutputGeometry(output)
	if !ok {
		return
	}
	size := surface.Size()
	e.Space.MapOutput(output, geom.NewRect(geo.Loc(), size))
	if st, ok := e.OutputStates[output]; ok {
		st.RefreshInterval = surface.RefreshInterval()
		st.Clock = surface.Clock
		st.Redraw = redraw.QueueRedraw(st.Redraw)
	}
	for i := range e.Outputs {
		if e.Outputs[i].Name == output {
			// Mode list order is stable; only the live geometry changes.
			e.Outputs[i].X = geo.X
			e.Outputs[i].Y = geo.Y
		}
	}
}

// Close tears the device down for good
func (b *Backend) Close() {
	if b.dev == nil {
		return
	}
	for crtc, surface := range b.dev.surfaces {
		surface.Destroy()
		delete(b.dev.surfaces, crtc)
	}
	b.session.CloseDevice(b.dev.gpuFile)
	b.dev = nil
}

// timerHandle adapts time.Timer to the redraw FSM's Timer. The handle
// lives inside the state value that needs to cancel it.
type timerHandle struct {
	timer *time.Timer
}

func (t *timerHandle) Cancel() {
	t.timer.Stop()
}
