// Package comp holds the compositor core state: the surface registry, the
// global space, per-output redraw state, and the controller command
// handling. All of it is confined to the main loop.
package comp

import (
	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/render"
)

// Popup is one popup in a surface's popup subtree
type Popup struct {
	Buffer *render.Image
	Commit uint64
	// Offset is the popup position relative to the parent's geometry
	Offset geom.Point
	// GeometryOrigin accounts for the popup's shadow margins
	GeometryOrigin geom.Point
	Size           geom.Size

	elementID uint64
}

// RenderElements implements render.SurfaceSource for a popup
func (p *Popup) RenderElements(loc geom.Point, scale float64) []render.Element {
	if p.Buffer == nil {
		return nil
	}
	if p.elementID == 0 {
		p.elementID = render.NextElementID()
	}
	return []render.Element{
		render.NewSurfaceElement(p.elementID, p.Commit, p.Buffer, loc, nil),
	}
}

// Surface is a client window. IDs are monotonic and never reused; exactly
// one close event is emitted per id ever announced with a new event.
type Surface struct {
	ID    uint32
	AppID string
	Title string

	// Buffer is the currently committed client buffer
	Buffer *render.Image
	// Commit increments on every buffer commit, driving damage tracking
	Commit uint64
	// Opaque lists the client-declared opaque region (surface-local)
	Opaque []geom.Rect

	// GeometryOrigin is the xdg geometry origin within the surface
	GeometryOrigin geom.Point
	// Size is the current toplevel size
	Size geom.Size

	// Views are the per-editor-window placements supplied by the
	// controller; nil when unmanaged.
	Views []event.SurfaceView

	Popups []*Popup

	// PendingConfigureSize is the size requested of the client but not
	// yet committed
	PendingConfigureSize geom.Size

	// CloseRequested is set when the controller asked the toplevel to
	// close; the client acts on it and the surface goes away on its own.
	CloseRequested bool

	// FrameCallback, when set by the protocol layer, delivers the
	// "good time to draw" signal for frames presented on an output.
	FrameCallback func(output string)

	elementID uint64
}

// RenderElements implements render.SurfaceSource
func (s *Surface) RenderElements(loc geom.Point, scale float64) []render.Element {
	if s.Buffer == nil {
		return nil
	}
	if s.elementID == 0 {
		s.elementID = render.NextElementID()
	}
	return []render.Element{
		render.NewSurfaceElement(s.elementID, s.Commit, s.Buffer, loc, s.Opaque),
	}
}

// Attach commits a new buffer to the surface
func (s *Surface) Attach(buf *render.Image) {
	s.Buffer = buf
	s.Commit++
	if buf != nil {
		s.Size = geom.Size{W: buf.Width, H: buf.Height}
	}
}

// ActiveView returns the view in the selected editor window, falling back
// to the first view.
func (s *Surface) ActiveView() *event.SurfaceView {
	for i := range s.Views {
		if s.Views[i].Active {
			return &s.Views[i]
		}
	}
	if len(s.Views) > 0 {
		return &s.Views[0]
	}
	return nil
}
