// Package screencopy renders output frames into client-supplied buffers.
// Requests queue against the manager and are drained during the render
// pass of their output, reusing the exact element list of the on-screen
// frame so capture matches display.
package screencopy

import (
	"fmt"

	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/render"
)

// Dmabuf is a client dmabuf destination. The render target view is mapped
// by the buffer import layer; Submit completes the protocol request once
// the sync point signals.
type Dmabuf struct {
	Width, Height int
	// Target is the importer's CPU view of the buffer
	Target *render.Image
}

// Shm is a client shared-memory destination, XRGB8888 with stride = w*4
type Shm struct {
	Width, Height int
	Stride        int
	// Data is the mapped shm region
	Data []byte
}

// Request is one pending screencopy
type Request struct {
	Output string
	// Dmabuf xor Shm is set
	Dmabuf *Dmabuf
	Shm    *Shm
	// Region restricts the capture; nil captures the whole output
	Region *geom.Rect
	// WithDamage requests damage reporting with the completion
	WithDamage bool

	// Done is invoked on success with the damage rects (nil unless
	// WithDamage); Fail on error. Either ends the protocol request.
	Done func(damage []geom.Rect)
	Fail func()
}

// Manager queues screencopy requests per output
type Manager struct {
	pending []*Request
}

// NewManager creates an empty queue
func NewManager() *Manager {
	return &Manager{}
}

// Queue adds a request; it is served after the next render of its output
func (m *Manager) Queue(r *Request) {
	m.pending = append(m.pending, r)
}

// HasPending reports whether any request waits for the given output
func (m *Manager) HasPending(output string) bool {
	for _, r := range m.pending {
		if r.Output == output {
			return true
		}
	}
	return false
}

// take removes and returns all requests for one output
func (m *Manager) take(output string) []*Request {
	var taken, rest []*Request
	for _, r := range m.pending {
		if r.Output == output {
			taken = append(taken, r)
		} else {
			rest = append(rest, r)
		}
	}
	m.pending = rest
	return taken
}

// ProcessForOutput drains the queue for an output that just rendered,
// using the same element list and ordering as the on-screen frame.
// Failed requests are dropped; the client sees the protocol-level
// cancellation through Fail.
func (m *Manager) ProcessForOutput(
	renderer *render.Renderer,
	output string,
	elements []render.Element,
	scale float64,
	transform geom.Transform,
	clear render.Color,
) {
	pending := m.take(output)
	if len(pending) == 0 {
		return
	}

	for _, req := range pending {
		captureElements := elements
		if req.Region != nil {
			// Translate so the region's top-left becomes (0,0) in the
			// destination.
			origin := geom.PointToPhysical(scale, req.Region.Loc())
			captureElements = render.Relocate(elements, geom.Point{X: -origin.X, Y: -origin.Y})
		}

		var err error
		var size geom.Size
		switch {
		case req.Dmabuf != nil:
			size = geom.Size{W: req.Dmabuf.Width, H: req.Dmabuf.Height}
			err = renderToDmabuf(renderer, req.Dmabuf, captureElements, scale, transform, clear)
		case req.Shm != nil:
			size = geom.Size{W: req.Shm.Width, H: req.Shm.Height}
			err = renderToShm(renderer, req.Shm, captureElements, scale, transform, clear)
		default:
			err = fmt.Errorf("screencopy request without a destination buffer")
		}

		if err != nil {
			logger.Warnf("Error rendering for screencopy: %v", err)
			if req.Fail != nil {
				req.Fail()
			}
			continue
		}

		var damage []geom.Rect
		if req.WithDamage {
			// Conservative: report the full destination as damaged.
			damage = []geom.Rect{{W: size.W, H: size.H}}
		}
		if req.Done != nil {
			req.Done(damage)
		}
	}
}

// renderToDmabuf renders straight into the dmabuf's target view
func renderToDmabuf(
	renderer *render.Renderer,
	buf *Dmabuf,
	elements []render.Element,
	scale float64,
	transform geom.Transform,
	clear render.Color,
) error {
	if buf.Target == nil ||
		buf.Target.Width != buf.Width || buf.Target.Height != buf.Height {
		return fmt.Errorf("invalid buffer size")
	}
	_, err := renderer.RenderElements(buf.Target, transform, scale, elements, clear, nil)
	if err != nil {
		return fmt.Errorf("error rendering to dmabuf: %w", err)
	}
	return nil
}

// renderToShm renders into an intermediate texture at the destination's
// size and format, then copies into the shm region.
func renderToShm(
	renderer *render.Renderer,
	buf *Shm,
	elements []render.Element,
	scale float64,
	transform geom.Transform,
	clear render.Color,
) error {
	if buf.Stride != buf.Width*4 ||
		len(buf.Data) != buf.Stride*buf.Height {
		return fmt.Errorf("invalid buffer format or size")
	}

	texture := render.NewImage(buf.Width, buf.Height, render.FourccXrgb8888)
	if _, err := renderer.RenderElements(texture, transform, scale, elements, clear, nil); err != nil {
		return fmt.Errorf("error rendering to texture: %w", err)
	}

	copy(buf.Data, texture.Data)
	return nil
}
