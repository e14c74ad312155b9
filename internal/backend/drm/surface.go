// Package drm is the KMS backend: it owns the DRM device, scans
// connectors, renders per-output frames into scanout buffers, and paces
// them against real and estimated VBlanks.
package drm

import (
	"fmt"
	"time"

	"github.com/ezemtsov/ewm/internal/frameclock"
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/kms"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/render"
)

// estimatedVBlankFloor prevents runaway timers on outputs reporting
// nonsense refresh rates.
const estimatedVBlankFloor = time.Millisecond

// OutputSurface wraps a CRTC/connector pair and its scanout buffers into a
// render-one-frame operation. Lifecycle is 1:1 with the connector's
// output.
type OutputSurface struct {
	Name      string
	Crtc      uint32
	Connector uint32
	Mode      kms.ModeInfo

	Clock *frameclock.FrameClock

	dev     *kms.Device
	buffers [2]*kms.DumbBuffer
	images  [2]*render.Image
	back    int
	// modesetDone is false until the first frame lights the CRTC up with
	// a full modeset; page flips take over from there.
	modesetDone bool
	tracker     *render.DamageTracker
	formats     render.FormatSet
}

// newOutputSurface allocates double-buffered scanout for the mode. The
// allocator is created with the full filtered render-format set first; on
// failure the no-modifier subset is retried before giving up on the
// connector.
func newOutputSurface(dev *kms.Device, connector *kms.Connector, crtc uint32, mode kms.ModeInfo, formats render.FormatSet) (*OutputSurface, error) {
	s := &OutputSurface{
		Name:      connector.Name(),
		Crtc:      crtc,
		Connector: connector.ID,
		Mode:      mode,
		dev:       dev,
		tracker:   render.NewDamageTracker(),
		formats:   render.FilterRenderFormats(formats),
	}

	if err := s.allocateBuffers(); err != nil {
		// Retry with the linear-only subset; some display engines cannot
		// scan out the full set.
		logger.Warnf("Error creating scanout buffers for %s, retrying with no-modifier formats: %v", s.Name, err)
		s.formats = render.NoModifierSubset(formats)
		if err := s.allocateBuffers(); err != nil {
			return nil, fmt.Errorf("failed to create scanout for %s: %w", s.Name, err)
		}
	}

	s.Clock = frameclock.New(s.RefreshInterval())
	return s, nil
}

func (s *OutputSurface) allocateBuffers() error {
	w := uint32(s.Mode.HDisplay)
	h := uint32(s.Mode.VDisplay)
	for i := range s.buffers {
		buf, err := s.dev.CreateDumbBuffer(w, h, uint32(render.FourccXrgb8888))
		if err != nil {
			s.releaseBuffers()
			return err
		}
		s.buffers[i] = buf
		s.images[i] = &render.Image{
			Width:  int(w),
			Height: int(h),
			Stride: int(buf.Pitch),
			Format: render.FourccXrgb8888,
			Data:   buf.Data,
		}
	}
	return nil
}

func (s *OutputSurface) releaseBuffers() {
	for i, buf := range s.buffers {
		if buf != nil {
			buf.Destroy()
			s.buffers[i] = nil
			s.images[i] = nil
		}
	}
}

// RefreshInterval derives the frame interval from the current mode
func (s *OutputSurface) RefreshInterval() time.Duration {
	mhz := s.Mode.RefreshMHz()
	if mhz <= 0 {
		return 16667 * time.Microsecond
	}
	return time.Duration(uint64(time.Second) * 1000 / uint64(mhz))
}

// EstimatedVBlankDuration sizes the estimated-VBlank timer: the refresh
// interval, floored at 1ms.
func (s *OutputSurface) EstimatedVBlankDuration() time.Duration {
	d := s.RefreshInterval()
	if d < estimatedVBlankFloor {
		d = estimatedVBlankFloor
	}
	return d
}

// Size returns the mode size in physical pixels
func (s *OutputSurface) Size() geom.Size {
	return geom.Size{W: int(s.Mode.HDisplay), H: int(s.Mode.VDisplay)}
}

// Render composites the element list into the back buffer, clearing to
// clear first. An Empty outcome means nothing changed: the caller takes
// the estimated-VBlank path instead of queueing the frame.
func (s *OutputSurface) Render(renderer *render.Renderer, elements []render.Element, scale float64, clear render.Color) (render.Outcome, error) {
	target := s.images[s.back]
	if target == nil {
		return render.Outcome{}, fmt.Errorf("no scanout buffer for %s", s.Name)
	}
	return renderer.RenderElements(target, geom.TransformNormal, scale, elements, clear, s.tracker)
}

// QueueFrame submits the back buffer to scanout; a VBlank event carrying
// the CRTC id follows.
func (s *OutputSurface) QueueFrame() error {
	fb := s.buffers[s.back].FB

	if !s.modesetDone {
		if err := s.dev.SetCrtc(s.Crtc, fb, []uint32{s.Connector}, &s.Mode); err != nil {
			return err
		}
		s.modesetDone = true
		// A full modeset presents immediately without a flip event; the
		// caller treats it as submitted and waits for the next flip.
	}

	if err := s.dev.PageFlip(s.Crtc, fb, uint64(s.Crtc)); err != nil {
		return err
	}
	s.back = 1 - s.back
	return nil
}

// OnSubmitted acknowledges the prior submission; called from the VBlank
// event. The hardware timestamp feeds the frame clock.
func (s *OutputSurface) OnSubmitted(timestamp time.Duration) {
	s.Clock.Presented(timestamp)
}

// UseMode applies a new modeline: reallocate scanout, reset damage, update
// the frame clock.
func (s *OutputSurface) UseMode(mode kms.ModeInfo) error {
	s.releaseBuffers()
	s.Mode = mode
	s.modesetDone = false
	if err := s.allocateBuffers(); err != nil {
		return fmt.Errorf("failed to reallocate scanout for %s: %w", s.Name, err)
	}
	s.tracker.Reset()
	s.Clock.SetRefreshInterval(s.RefreshInterval())
	return nil
}

// Destroy releases the surface's buffers
func (s *OutputSurface) Destroy() {
	s.releaseBuffers()
}
