package render

import (
	"fmt"

	"github.com/ezemtsov/ewm/internal/geom"
)

// Frame is an in-progress render into a target image
type Frame struct {
	target *Image
	// bounds is the drawable area after inverting the output transform
	bounds geom.Rect
}

// FillRect fills dst with a colour, restricted to the damage rects (which
// are relative to dst's origin).
func (f *Frame) FillRect(c Color, dst geom.Rect, damage []geom.Rect) error {
	r := uint32(c.R*255 + 0.5)
	g := uint32(c.G*255 + 0.5)
	b := uint32(c.B*255 + 0.5)
	a := uint32(c.A*255 + 0.5)

	for _, d := range damage {
		area := dst.Intersect(d.Translate(dst.Loc())).Intersect(f.bounds)
		if area.Empty() {
			continue
		}
		for y := area.Y; y < area.Y+area.H; y++ {
			row := f.target.Data[y*f.target.Stride:]
			for x := area.X; x < area.X+area.W; x++ {
				px := row[x*4 : x*4+4]
				if a >= 255 {
					px[0] = byte(b)
					px[1] = byte(g)
					px[2] = byte(r)
					px[3] = 0xff
				} else {
					px[0] = blend(byte(b), px[0], a)
					px[1] = blend(byte(g), px[1], a)
					px[2] = blend(byte(r), px[2], a)
					px[3] = 0xff
				}
			}
		}
	}
	return nil
}

// DrawImage samples src from the image into dst on the target, restricted
// to damage rects relative to dst's origin. Nearest-neighbour scaling.
func (f *Frame) DrawImage(img *Image, src, dst geom.Rect, damage []geom.Rect) error {
	if src.Empty() || dst.Empty() {
		return nil
	}
	hasAlpha := img.Format == FourccArgb8888 || img.Format == FourccAbgr8888
	swapRB := img.Format == FourccXbgr8888 || img.Format == FourccAbgr8888

	for _, d := range damage {
		area := dst.Intersect(d.Translate(dst.Loc())).Intersect(f.bounds)
		if area.Empty() {
			continue
		}
		for y := area.Y; y < area.Y+area.H; y++ {
			srcY := src.Y + (y-dst.Y)*src.H/dst.H
			if srcY < 0 || srcY >= img.Height {
				continue
			}
			srcRow := img.Data[srcY*img.Stride:]
			dstRow := f.target.Data[y*f.target.Stride:]
			for x := area.X; x < area.X+area.W; x++ {
				srcX := src.X + (x-dst.X)*src.W/dst.W
				if srcX < 0 || srcX >= img.Width {
					continue
				}
				sp := srcRow[srcX*4 : srcX*4+4]
				dp := dstRow[x*4 : x*4+4]

				b, g, r, al := sp[0], sp[1], sp[2], sp[3]
				if swapRB {
					b, r = r, b
				}
				if !hasAlpha {
					al = 0xff
				}
				switch {
				case al == 0:
				case al == 0xff:
					dp[0], dp[1], dp[2], dp[3] = b, g, r, 0xff
				default:
					dp[0] = blend(b, dp[0], uint32(al))
					dp[1] = blend(g, dp[1], uint32(al))
					dp[2] = blend(r, dp[2], uint32(al))
					dp[3] = 0xff
				}
			}
		}
	}
	return nil
}

// blend composites a premultiplied source channel over dst
func blend(src, dst byte, alpha uint32) byte {
	return byte(uint32(src) + uint32(dst)*(255-alpha)/255)
}

// Outcome reports what a render produced
type Outcome struct {
	// Empty is true when nothing changed since the previous frame on this
	// target: the FSM takes the no-damage branch and schedules an
	// estimated VBlank instead of a scanout.
	Empty bool
}

type trackedElement struct {
	id     uint64
	commit uint64
	geo    geom.Rect
}

// DamageTracker compares successive element lists for one target to decide
// whether a frame produced damage. The very first frame always has damage:
// the clear itself is visible.
type DamageTracker struct {
	last    []trackedElement
	primed  bool
}

// NewDamageTracker creates a tracker for one output or capture target
func NewDamageTracker() *DamageTracker {
	return &DamageTracker{}
}

func (t *DamageTracker) observe(elements []Element, scale float64) bool {
	current := make([]trackedElement, len(elements))
	for i, e := range elements {
		current[i] = trackedElement{id: e.ID(), commit: e.CommitCounter(), geo: e.Geometry(scale)}
	}

	damaged := !t.primed || len(current) != len(t.last)
	if !damaged {
		for i := range current {
			if current[i] != t.last[i] {
				damaged = true
				break
			}
		}
	}
	t.last = current
	t.primed = true
	return damaged
}

// Reset forces the next frame to be treated as damaged (mode change,
// session resume).
func (t *DamageTracker) Reset() {
	t.primed = false
	t.last = nil
}

// Renderer composites element lists into images. It is single-owner: the
// device manager holds it and loans it per call.
type Renderer struct{}

// New creates a software renderer
func New() *Renderer {
	return &Renderer{}
}

// RenderElements draws elements (given front-to-back) into target, clearing
// to clear first. The tracker decides whether anything changed; when
// nothing did, the target is left untouched and Empty is reported.
func (r *Renderer) RenderElements(
	target *Image,
	transform geom.Transform,
	scale float64,
	elements []Element,
	clear Color,
	tracker *DamageTracker,
) (Outcome, error) {
	if tracker != nil && !tracker.observe(elements, scale) {
		return Outcome{Empty: true}, nil
	}

	size := transform.TransformSize(geom.Size{W: target.Width, H: target.Height})
	bounds := geom.Rect{W: size.W, H: size.H}
	if bounds.W != target.Width || bounds.H != target.Height {
		// Rotated outputs render in pre-transform orientation; the target
		// must already be sized accordingly.
		return Outcome{}, fmt.Errorf("target size %dx%d does not match transformed size %dx%d",
			target.Width, target.Height, bounds.W, bounds.H)
	}

	frame := &Frame{target: target, bounds: bounds}
	if err := frame.FillRect(clear, bounds, []geom.Rect{{W: bounds.W, H: bounds.H}}); err != nil {
		return Outcome{}, err
	}

	// Draw back-to-front; the list arrives front-to-back. Regions covered
	// by an opaque element closer to the viewer are skipped.
	for i := len(elements) - 1; i >= 0; i-- {
		e := elements[i]
		dst := e.Geometry(scale)
		visible := dst.Intersect(bounds)
		if visible.Empty() {
			continue
		}

		damage := subtractOpaque(visible, opaqueAbove(elements[:i], scale))
		if len(damage) == 0 {
			continue
		}
		// Damage rects are relative to dst.
		rel := make([]geom.Rect, len(damage))
		for j, d := range damage {
			rel[j] = d.Translate(geom.Point{X: -dst.X, Y: -dst.Y})
		}
		if err := e.Draw(frame, e.Src(), dst, rel); err != nil {
			return Outcome{}, fmt.Errorf("error drawing element: %w", err)
		}
	}

	return Outcome{Empty: false}, nil
}

// opaqueAbove collects the opaque regions of the elements in front of the
// one being drawn.
func opaqueAbove(front []Element, scale float64) []geom.Rect {
	var out []geom.Rect
	for _, e := range front {
		geo := e.Geometry(scale)
		for _, r := range e.OpaqueRegion(scale) {
			out = append(out, r.Translate(geo.Loc()))
		}
	}
	return out
}

// subtractOpaque returns the parts of area not covered by any opaque rect.
// Exact region subtraction is overkill for a handful of rects: a fully
// covered area yields nil, anything else yields the area itself.
func subtractOpaque(area geom.Rect, opaque []geom.Rect) []geom.Rect {
	for _, o := range opaque {
		if o.Intersect(area) == area {
			return nil
		}
	}
	return []geom.Rect{area}
}
