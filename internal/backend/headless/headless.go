// Package headless is the software backend for testing without DRM
// master: virtual outputs, the same collector and redraw machinery, no
// hardware.
package headless

import (
	"fmt"
	"strings"
	"time"

	"github.com/ezemtsov/ewm/internal/comp"
	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/redraw"
	"github.com/ezemtsov/ewm/internal/render"
)

// virtualRefresh is the fixed refresh of virtual outputs
const virtualRefresh = 16667 * time.Microsecond

// VirtualOutput is one deterministic software output
type VirtualOutput struct {
	Name   string
	Size   geom.Size
	Target *render.Image

	tracker *render.DamageTracker
	// RenderCount supports test assertions on redraw behaviour
	RenderCount int
}

// Backend drives virtual outputs entirely in software
type Backend struct {
	outputs  map[string]*VirtualOutput
	renderer *render.Renderer
}

// NewBackend creates an empty headless backend
func NewBackend() *Backend {
	return &Backend{
		outputs:  map[string]*VirtualOutput{},
		renderer: render.New(),
	}
}

// AddOutput creates a virtual output at 60Hz. Position comes from the
// stored output config, or appends horizontally like the DRM path.
func (b *Backend) AddOutput(name string, width, height int, e *comp.Ewm) {
	pos := geom.Point{X: e.Space.OutputSize().W, Y: 0}
	if oc, ok := e.OutputConfigs[name]; ok && oc.X != nil && oc.Y != nil {
		pos = geom.Point{X: *oc.X, Y: *oc.Y}
	}
	rect := geom.NewRect(pos, geom.Size{W: width, H: height})

	info := event.OutputInfo{
		Name:  name,
		Make:  "EWM",
		Model: "Virtual",
		X:     rect.X,
		Y:     rect.Y,
		Scale: e.OutputScale(name),
		Modes: []event.OutputMode{{
			Width: width, Height: height, Refresh: 60000, Preferred: true,
		}},
	}

	b.outputs[name] = &VirtualOutput{
		Name:    name,
		Size:    geom.Size{W: width, H: height},
		Target:  render.NewImage(width, height, render.FourccXrgb8888),
		tracker: render.NewDamageTracker(),
	}
	e.AddOutput(info, rect, virtualRefresh)

	logger.Infof("Added virtual output: %s (%dx%d) at (%d, %d)", name, width, height, rect.X, rect.Y)
}

// RemoveOutput destroys a virtual output
func (b *Backend) RemoveOutput(name string, e *comp.Ewm) {
	if _, ok := b.outputs[name]; !ok {
		return
	}
	delete(b.outputs, name)
	e.RemoveOutput(name)
	logger.Infof("Removed virtual output: %s", name)
}

// Output returns a virtual output for assertions
func (b *Backend) Output(name string) *VirtualOutput {
	return b.outputs[name]
}

// RenderCount returns how many frames an output has rendered
func (b *Backend) RenderCount(name string) int {
	if o, ok := b.outputs[name]; ok {
		return o.RenderCount
	}
	return 0
}

// HasQueuedRedraws reports whether any output wants a render
func (b *Backend) HasQueuedRedraws(e *comp.Ewm) bool {
	for name := range b.outputs {
		if st, ok := e.OutputStates[name]; ok && redraw.ShouldRender(st.Redraw) {
			return true
		}
	}
	return false
}

// RedrawQueuedOutputs renders every queued output. Virtual outputs have
// no VBlank at all, so a rendered frame completes immediately and the
// FSM returns to Idle; clients still get their frame callbacks.
func (b *Backend) RedrawQueuedOutputs(e *comp.Ewm) {
	var queued []string
	for name := range b.outputs {
		if st, ok := e.OutputStates[name]; ok && redraw.ShouldRender(st.Redraw) {
			queued = append(queued, name)
		}
	}
	for _, name := range queued {
		b.renderOutput(name, e)
	}
}

func (b *Backend) renderOutput(name string, e *comp.Ewm) {
	out, ok := b.outputs[name]
	if !ok {
		return
	}
	st, ok := e.OutputStates[name]
	if !ok {
		return
	}

	scale := e.OutputScale(name)
	elements := e.CollectForOutput(name, true)

	if _, err := b.renderer.RenderElements(out.Target, geom.TransformNormal, scale, elements, e.BackgroundColor(), out.tracker); err != nil {
		logger.Warnf("Error rendering virtual output %s: %v", name, err)
		st.Redraw = redraw.Idle{}
		return
	}

	out.RenderCount++
	st.Redraw = redraw.Idle{}

	e.SendFrameCallbacks(name)

	e.Screencopy.ProcessForOutput(b.renderer, name, elements, scale, geom.TransformNormal, e.BackgroundColor())
}

// SetMode implements comp.BackendOps. Virtual outputs have fixed sizes;
// mode changes are unsupported.
func (b *Backend) SetMode(output string, width, height int, refreshMHz *int) bool {
	logger.Warnf("Mode changes are not supported on virtual output %s", output)
	return false
}

// ApplyOutputConfig applies scale/position/enabled for a live virtual
// output. Scale and position already live in core state; the damage
// tracker resets so the next frame repaints at the new settings.
func (b *Backend) ApplyOutputConfig(output string) {
	if out, ok := b.outputs[output]; ok {
		out.tracker.Reset()
	}
}

// CommitText implements comp.BackendOps; headless runs carry no
// input-method bridge.
func (b *Backend) CommitText(text string) {
	logger.Debugf("im-commit ignored on headless backend: %q", text)
}

var _ comp.BackendOps = (*Backend)(nil)

// ParseOutputSpec parses "1920x1080,1280x720" into sizes
func ParseOutputSpec(spec string) ([]geom.Size, error) {
	var sizes []geom.Size
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var w, h int
		if _, err := fmt.Sscanf(part, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
			return nil, fmt.Errorf("invalid output size %q", part)
		}
		sizes = append(sizes, geom.Size{W: w, H: h})
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no output sizes in %q", spec)
	}
	return sizes, nil
}
