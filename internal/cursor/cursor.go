// Package cursor provides the fallback cursor image for the DRM backend,
// where no host compositor draws a pointer for us.
package cursor

import (
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/render"
)

const (
	cursorWidth  = 24
	cursorHeight = 24

	hotspotX = 1
	hotspotY = 1
)

// Buffer is a compositor-owned cursor image rendered as a memory element
type Buffer struct {
	image *render.Image
	id    uint64
}

// New creates the fallback left_ptr style cursor
func New() *Buffer {
	return &Buffer{
		image: drawArrow(),
		id:    render.NextElementID(),
	}
}

// Hotspot returns the click point relative to the image's top-left
func (b *Buffer) Hotspot() geom.Point {
	return geom.Point{X: hotspotX, Y: hotspotY}
}

// Element returns the cursor render element at the given physical position
func (b *Buffer) Element(loc geom.Point) render.Element {
	return render.NewMemoryElement(b.id, 0, b.image, loc)
}

// drawArrow rasterises a white arrow with a black outline. Row y spans
// the triangle edge; the classic left_ptr silhouette.
func drawArrow() *render.Image {
	img := render.NewImage(cursorWidth, cursorHeight, render.FourccArgb8888)

	set := func(x, y int, b, g, r, a byte) {
		if x < 0 || x >= cursorWidth || y < 0 || y >= cursorHeight {
			return
		}
		off := y*img.Stride + x*4
		img.Data[off] = b
		img.Data[off+1] = g
		img.Data[off+2] = r
		img.Data[off+3] = a
	}

	for y := 0; y < cursorHeight-4; y++ {
		// Triangle: width grows with y until the tail notch
		width := y * 2 / 3
		if y > 12 {
			width = 8 - (y - 12)
		}
		for x := 0; x <= width; x++ {
			if x == 0 || x == width || y == cursorHeight-5 {
				set(x, y, 0, 0, 0, 0xff) // outline
			} else {
				set(x, y, 0xff, 0xff, 0xff, 0xff)
			}
		}
	}
	return img
}
