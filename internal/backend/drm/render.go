package drm

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"time"

	"github.com/ezemtsov/ewm/internal/comp"
	"github.com/ezemtsov/ewm/internal/frameclock"
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/redraw"
	"github.com/ezemtsov/ewm/internal/render"
)

// RedrawQueuedOutputs renders every output whose FSM is in a queued state
func (b *Backend) RedrawQueuedOutputs(e *comp.Ewm) {
	if b.dev == nil {
		return
	}
	var queued []uint32
	for crtc, surface := range b.dev.surfaces {
		if st, ok := e.OutputStates[surface.Name]; ok && redraw.ShouldRender(st.Redraw) {
			queued = append(queued, crtc)
		}
	}
	for _, crtc := range queued {
		b.renderOutput(crtc, e)
	}
}

// HasQueuedRedraws reports whether any output wants a render
func (b *Backend) HasQueuedRedraws(e *comp.Ewm) bool {
	if b.dev == nil {
		return false
	}
	for _, surface := range b.dev.surfaces {
		if st, ok := e.OutputStates[surface.Name]; ok && redraw.ShouldRender(st.Redraw) {
			return true
		}
	}
	return false
}

// renderOutput runs one output through collect → render → queue/estimate,
// then serves pending screencopies from the same element list.
func (b *Backend) renderOutput(crtc uint32, e *comp.Ewm) {
	surface, ok := b.dev.surfaces[crtc]
	if !ok {
		return
	}
	st, ok := e.OutputStates[surface.Name]
	if !ok {
		return
	}

	// Only a queued state may render; anything else would duplicate
	// frames.
	if !redraw.ShouldRender(st.Redraw) {
		return
	}
	if b.paused {
		logger.Debugf("Skipping render: session paused")
		return
	}

	scale := e.OutputScale(surface.Name)
	elements := e.CollectForOutput(surface.Name, true)

	outcome, err := surface.Render(b.renderer, elements, scale, e.BackgroundColor())
	if err != nil {
		// Per-frame render error: log, reset to Idle, keep running. The
		// next commit or hotplug re-queues.
		logger.Warnf("Error rendering frame on %s: %v", surface.Name, err)
		st.Redraw = redraw.Idle{}
		return
	}

	if !outcome.Empty {
		if err := surface.QueueFrame(); err != nil {
			logger.Warnf("Error queueing frame on %s: %v", surface.Name, err)
			st.Redraw = redraw.Idle{}
		} else {
			st.Redraw = redraw.FrameQueuedWithDamage()
		}
	} else {
		// No damage: schedule an estimated VBlank so clients still get
		// their frame callbacks on cadence.
		st.Redraw = redraw.FrameQueuedNoDamage(b.startEstimatedVBlank(surface))
	}

	b.afterRender(surface.Name, elements, scale, e)
}

// afterRender handles the post-render obligations: frame callbacks and
// screencopy (which the headless backend also performs) and pending
// screenshots (which only this backend writes).
func (b *Backend) afterRender(output string, elements []render.Element, scale float64, e *comp.Ewm) {
	e.SendFrameCallbacks(output)

	e.Screencopy.ProcessForOutput(b.renderer, output, elements, scale, geom.TransformNormal, e.BackgroundColor())

	if e.PendingScreenshot != "" {
		path := e.PendingScreenshot
		e.PendingScreenshot = ""
		if err := writeScreenshot(path, b.renderer, elements, e.OutputSizePhysical(output), scale, e.BackgroundColor()); err != nil {
			logger.Warnf("Screenshot failed: %v", err)
		} else {
			logger.Infof("Screenshot written to %s", path)
		}
	}
}

// startEstimatedVBlank arms the software VBlank for one output. The
// returned handle is owned by the FSM state value; firing posts a message
// drained by the main loop.
func (b *Backend) startEstimatedVBlank(surface *OutputSurface) redraw.Timer {
	name := surface.Name
	d := surface.EstimatedVBlankDuration()

	// The frame clock tightens the estimate when it knows the last real
	// presentation time.
	if next := surface.Clock.NextPresentationTime(); next > 0 {
		if now := frameclock.Monotonic(); next > now && next-now < d {
			d = next - now
		}
	}

	t := time.AfterFunc(d, func() {
		b.messages <- estimatedVBlank{output: name}
	})
	return &timerHandle{timer: t}
}

// onEstimatedVBlank resolves the timer firing: idle or render again
func (b *Backend) onEstimatedVBlank(output string, e *comp.Ewm) {
	st, ok := e.OutputStates[output]
	if !ok {
		return
	}
	next, renderAgain := redraw.OnEstimatedVBlank(st.Redraw)
	st.Redraw = next

	if renderAgain {
		if _, crtc, ok := b.surfaceByName(output); ok {
			b.renderOutput(crtc, e)
		}
	} else {
		// Static frame: clients still get their callbacks.
		e.SendFrameCallbacks(output)
	}
}

// OnDrmEvents drains and applies pending DRM events from the device fd
func (b *Backend) OnDrmEvents(e *comp.Ewm) {
	if b.dev == nil {
		return
	}
	events, err := b.dev.card.ReadEvents()
	if err != nil {
		logger.Warnf("Error reading DRM events: %v", err)
		return
	}
	for _, ev := range events {
		if !ev.FlipComplete {
			continue
		}
		crtc := uint32(ev.UserData)
		b.onVBlank(crtc, ev.Timestamp, e)
	}
}

// onVBlank acknowledges the submission and advances the FSM; if a redraw
// was requested while waiting, exactly one render follows.
func (b *Backend) onVBlank(crtc uint32, timestamp time.Duration, e *comp.Ewm) {
	surface, ok := b.dev.surfaces[crtc]
	if !ok {
		return
	}
	surface.OnSubmitted(timestamp)

	st, ok := e.OutputStates[surface.Name]
	if !ok {
		return
	}
	next, renderAgain := redraw.OnVBlank(st.Redraw)
	st.Redraw = next

	if renderAgain {
		b.renderOutput(crtc, e)
	}
}

// writeScreenshot encodes the element list into a PNG at the given path
func writeScreenshot(path string, renderer *render.Renderer, elements []render.Element, size geom.Size, scale float64, clear render.Color) error {
	if size.Empty() {
		size = geom.Size{W: 1, H: 1}
	}
	target := render.NewImage(size.W, size.H, render.FourccXrgb8888)
	if _, err := renderer.RenderElements(target, geom.TransformNormal, scale, elements, clear, nil); err != nil {
		return err
	}

	img := image.NewRGBA(image.Rect(0, 0, size.W, size.H))
	for y := 0; y < size.H; y++ {
		for x := 0; x < size.W; x++ {
			off := y*target.Stride + x*4
			img.SetRGBA(x, y, color.RGBA{
				R: target.Data[off+2],
				G: target.Data[off+1],
				B: target.Data[off],
				A: 0xff,
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
