package render

import (
	"sync/atomic"

	"github.com/ezemtsov/ewm/internal/geom"
)

// Image is a CPU pixel buffer in XRGB8888 (byte order B, G, R, X) with an
// alpha channel honoured when the format is ARGB8888.
type Image struct {
	Width  int
	Height int
	Stride int // bytes per row, Width*4 unless padded
	Format Fourcc
	Data   []byte
}

// NewImage allocates a tightly packed image
func NewImage(w, h int, format Fourcc) *Image {
	return &Image{
		Width:  w,
		Height: h,
		Stride: w * 4,
		Format: format,
		Data:   make([]byte, w*h*4),
	}
}

// Bounds returns the image rectangle at (0,0)
func (img *Image) Bounds() geom.Rect {
	return geom.Rect{W: img.Width, H: img.Height}
}

var elementIDs atomic.Uint64

// NextElementID allocates a process-unique element identity, used by the
// damage tracker to recognise elements across frames.
func NextElementID() uint64 {
	return elementIDs.Add(1)
}

// Element is one renderable item of a frame. Ordering within a frame is
// strictly front-to-back as fed to the renderer.
type Element interface {
	// ID identifies the element across frames
	ID() uint64
	// CommitCounter increments whenever the element's content changes
	CommitCounter() uint64
	// Geometry is the destination rectangle in physical output coordinates
	Geometry(scale float64) geom.Rect
	// Src is the source rectangle inside the element's buffer
	Src() geom.Rect
	// Transform is the buffer's transform
	Transform() geom.Transform
	// OpaqueRegion lists fully opaque rects relative to the geometry origin,
	// in physical coordinates
	OpaqueRegion(scale float64) []geom.Rect
	// Draw composites src into dst on the frame, restricted to damage
	Draw(f *Frame, src, dst geom.Rect, damage []geom.Rect) error
}

// SurfaceElement renders a client surface buffer
type SurfaceElement struct {
	id     uint64
	commit uint64
	buffer *Image
	// loc is the element position in physical output coordinates
	loc    geom.Point
	opaque []geom.Rect // logical, relative to the surface origin
}

// NewSurfaceElement wraps a committed client buffer placed at loc (physical
// coordinates). The commit counter ties damage tracking to surface commits.
func NewSurfaceElement(id, commit uint64, buffer *Image, loc geom.Point, opaque []geom.Rect) *SurfaceElement {
	return &SurfaceElement{id: id, commit: commit, buffer: buffer, loc: loc, opaque: opaque}
}

func (e *SurfaceElement) ID() uint64            { return e.id }
func (e *SurfaceElement) CommitCounter() uint64 { return e.commit }

func (e *SurfaceElement) Geometry(scale float64) geom.Rect {
	return geom.Rect{
		X: e.loc.X,
		Y: e.loc.Y,
		W: geom.ToPhysicalPreciseRound(scale, e.buffer.Width),
		H: geom.ToPhysicalPreciseRound(scale, e.buffer.Height),
	}
}

func (e *SurfaceElement) Src() geom.Rect {
	return e.buffer.Bounds()
}

func (e *SurfaceElement) Transform() geom.Transform {
	return geom.TransformNormal
}

func (e *SurfaceElement) OpaqueRegion(scale float64) []geom.Rect {
	if e.buffer.Format == FourccXrgb8888 || e.buffer.Format == FourccXbgr8888 {
		// No alpha channel: the whole buffer is opaque.
		return []geom.Rect{e.Geometry(scale).Translate(geom.Point{X: -e.loc.X, Y: -e.loc.Y})}
	}
	out := make([]geom.Rect, len(e.opaque))
	for i, r := range e.opaque {
		out[i] = geom.RectToPhysical(scale, r)
	}
	return out
}

func (e *SurfaceElement) Draw(f *Frame, src, dst geom.Rect, damage []geom.Rect) error {
	return f.DrawImage(e.buffer, src, dst, damage)
}

// Buffer returns the underlying client buffer (screenshot encoding)
func (e *SurfaceElement) Buffer() *Image {
	return e.buffer
}

// MemoryElement renders a compositor-owned memory buffer (the cursor)
type MemoryElement struct {
	id     uint64
	commit uint64
	buffer *Image
	loc    geom.Point
}

// NewMemoryElement places a memory buffer at loc (physical coordinates)
func NewMemoryElement(id, commit uint64, buffer *Image, loc geom.Point) *MemoryElement {
	return &MemoryElement{id: id, commit: commit, buffer: buffer, loc: loc}
}

func (e *MemoryElement) ID() uint64            { return e.id }
func (e *MemoryElement) CommitCounter() uint64 { return e.commit }

func (e *MemoryElement) Geometry(scale float64) geom.Rect {
	return geom.Rect{X: e.loc.X, Y: e.loc.Y, W: e.buffer.Width, H: e.buffer.Height}
}

func (e *MemoryElement) Src() geom.Rect {
	return e.buffer.Bounds()
}

func (e *MemoryElement) Transform() geom.Transform {
	return geom.TransformNormal
}

func (e *MemoryElement) OpaqueRegion(float64) []geom.Rect {
	return nil
}

func (e *MemoryElement) Draw(f *Frame, src, dst geom.Rect, damage []geom.Rect) error {
	return f.DrawImage(e.buffer, src, dst, damage)
}

// Color is a premultiplied RGBA colour
type Color struct {
	R, G, B, A float64
}

// ColorFromRGB builds an opaque colour from 0xRRGGBB
func ColorFromRGB(rgb uint32) Color {
	return Color{
		R: float64((rgb>>16)&0xff) / 255,
		G: float64((rgb>>8)&0xff) / 255,
		B: float64(rgb&0xff) / 255,
		A: 1,
	}
}

// SolidColorElement renders a filled rectangle (lock backdrop, background)
type SolidColorElement struct {
	id     uint64
	color  Color
	geo    geom.Rect // physical
}

// NewSolidColorElement fills geo (physical coordinates) with color
func NewSolidColorElement(id uint64, color Color, geo geom.Rect) *SolidColorElement {
	return &SolidColorElement{id: id, color: color, geo: geo}
}

func (e *SolidColorElement) ID() uint64            { return e.id }
func (e *SolidColorElement) CommitCounter() uint64 { return 0 }

func (e *SolidColorElement) Geometry(float64) geom.Rect {
	return e.geo
}

func (e *SolidColorElement) Src() geom.Rect {
	return geom.Rect{W: e.geo.W, H: e.geo.H}
}

func (e *SolidColorElement) Transform() geom.Transform {
	return geom.TransformNormal
}

func (e *SolidColorElement) OpaqueRegion(float64) []geom.Rect {
	if e.color.A >= 1 {
		return []geom.Rect{{W: e.geo.W, H: e.geo.H}}
	}
	return nil
}

func (e *SolidColorElement) Draw(f *Frame, _, dst geom.Rect, damage []geom.Rect) error {
	return f.FillRect(e.color, dst, damage)
}

// RelocatedElement shifts another element by a fixed physical offset.
// Screencopy region capture translates every element by the negated region
// origin so the region's top-left becomes (0,0) in the destination.
type RelocatedElement struct {
	Element
	Offset geom.Point
}

func (e RelocatedElement) Geometry(scale float64) geom.Rect {
	return e.Element.Geometry(scale).Translate(e.Offset)
}

func (e RelocatedElement) Draw(f *Frame, src, dst geom.Rect, damage []geom.Rect) error {
	return e.Element.Draw(f, src, dst, damage)
}

// Relocate wraps elements with a shared offset
func Relocate(elements []Element, offset geom.Point) []Element {
	out := make([]Element, len(elements))
	for i, e := range elements {
		out[i] = RelocatedElement{Element: e, Offset: offset}
	}
	return out
}
