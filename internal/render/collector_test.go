package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezemtsov/ewm/internal/geom"
)

// markerElement records where the collector placed it
type markerElement struct {
	name string
	loc  geom.Point
	size geom.Size
}

func (e *markerElement) ID() uint64                         { return 0 }
func (e *markerElement) CommitCounter() uint64              { return 0 }
func (e *markerElement) Src() geom.Rect                     { return geom.Rect{W: e.size.W, H: e.size.H} }
func (e *markerElement) Transform() geom.Transform          { return geom.TransformNormal }
func (e *markerElement) OpaqueRegion(float64) []geom.Rect   { return nil }
func (e *markerElement) Geometry(scale float64) geom.Rect {
	return geom.NewRect(e.loc, e.size)
}
func (e *markerElement) Draw(f *Frame, src, dst geom.Rect, damage []geom.Rect) error {
	return nil
}

// markerSource emits a single named marker element
type markerSource struct {
	name string
	size geom.Size
}

func (s *markerSource) RenderElements(loc geom.Point, scale float64) []Element {
	return []Element{&markerElement{name: s.name, loc: loc, size: s.size}}
}

type markerCursor struct {
	hotspot geom.Point
}

func (c *markerCursor) Hotspot() geom.Point { return c.hotspot }
func (c *markerCursor) Element(loc geom.Point) Element {
	return &markerElement{name: "cursor", loc: loc, size: geom.Size{W: 64, H: 64}}
}

func names(elements []Element) []string {
	out := make([]string, len(elements))
	for i, e := range elements {
		out[i] = e.(*markerElement).name
	}
	return out
}

func locOf(t *testing.T, elements []Element, name string) geom.Point {
	t.Helper()
	for _, e := range elements {
		m := e.(*markerElement)
		if m.name == name {
			return m.loc
		}
	}
	t.Fatalf("element %q not collected", name)
	return geom.Point{}
}

func src(name string, w, h int) *markerSource {
	return &markerSource{name: name, size: geom.Size{W: w, H: h}}
}

func view1080(pos geom.Point) *OutputView {
	return &OutputView{
		Pos:           pos,
		Size:          geom.Size{W: 1920, H: 1080},
		Scale:         1,
		WorkingArea:   geom.Rect{W: 1920, H: 1080},
		IncludeCursor: true,
	}
}

func TestOrderingFrontToBack(t *testing.T) {
	scene := &Scene{
		PointerX: 500, PointerY: 500,
		Cursor: &markerCursor{hotspot: geom.Point{X: 1, Y: 1}},
		Windows: []*Window{
			{
				ID:       1,
				Source:   src("window", 300, 300),
				Location: geom.Point{X: 100, Y: 100},
				Size:     geom.Size{W: 300, H: 300},
				Popups: []Popup{
					{Source: src("popup", 80, 60), Size: geom.Size{W: 80, H: 60}},
				},
			},
		},
	}
	view := view1080(geom.Point{})
	view.Layers[LayerOverlay] = []LayerEntry{{Source: src("overlay", 1920, 30), Geo: geom.Rect{W: 1920, H: 30}}}
	view.Layers[LayerTop] = []LayerEntry{{Source: src("top", 1920, 30), Geo: geom.Rect{W: 1920, H: 30}}}
	view.Layers[LayerBottom] = []LayerEntry{{Source: src("bottom", 1920, 30), Geo: geom.Rect{W: 1920, H: 30}}}
	view.Layers[LayerBackground] = []LayerEntry{{Source: src("background", 1920, 1080), Geo: geom.Rect{W: 1920, H: 1080}}}

	elements := CollectForOutput(scene, view)

	assert.Equal(t,
		[]string{"cursor", "overlay", "top", "popup", "window", "bottom", "background"},
		names(elements))
}

func TestLayerStackingReversed(t *testing.T) {
	scene := &Scene{}
	view := view1080(geom.Point{})
	// Stacking order bottom-first: "older" below "newer". Front-to-back
	// collection must emit "newer" first.
	view.Layers[LayerOverlay] = []LayerEntry{
		{Source: src("older", 100, 100), Geo: geom.Rect{W: 100, H: 100}},
		{Source: src("newer", 100, 100), Geo: geom.Rect{W: 100, H: 100}},
	}

	elements := CollectForOutput(scene, view)
	assert.Equal(t, []string{"newer", "older"}, names(elements))
}

// Two outputs, one window spanning the seam.
func TestWindowSpanningTwoOutputs(t *testing.T) {
	win := &Window{
		ID:       1,
		Source:   src("window", 300, 300),
		Location: geom.Point{X: 1800, Y: 100},
		Size:     geom.Size{W: 300, H: 300},
	}
	scene := &Scene{
		PointerX: 500, PointerY: 500,
		Cursor:  &markerCursor{hotspot: geom.Point{X: 1, Y: 1}},
		Windows: []*Window{win},
	}

	o1 := view1080(geom.Point{X: 0, Y: 0})
	o2 := view1080(geom.Point{X: 1920, Y: 0})

	e1 := CollectForOutput(scene, o1)
	e2 := CollectForOutput(scene, o2)

	// O1 sees the window at its global location and the cursor.
	assert.Equal(t, geom.Point{X: 1800, Y: 100}, locOf(t, e1, "window"))
	assert.Equal(t, geom.Point{X: 499, Y: 499}, locOf(t, e1, "cursor"))

	// O2 sees the window translated by -output_pos, and no cursor.
	assert.Equal(t, geom.Point{X: -120, Y: 100}, locOf(t, e2, "window"))
	for _, name := range names(e2) {
		assert.NotEqual(t, "cursor", name)
	}
}

func TestWindowOutsideOutputSkipped(t *testing.T) {
	scene := &Scene{
		Windows: []*Window{{
			ID:       1,
			Source:   src("window", 100, 100),
			Location: geom.Point{X: 5000, Y: 0},
			Size:     geom.Size{W: 100, H: 100},
		}},
	}
	elements := CollectForOutput(scene, view1080(geom.Point{}))
	assert.Empty(t, elements)
}

// Pointer exactly on the right edge belongs to the next output by the
// half-open convention.
func TestCursorBoundaryHalfOpen(t *testing.T) {
	scene := &Scene{
		PointerX: 1920, PointerY: 0,
		Cursor: &markerCursor{hotspot: geom.Point{X: 1, Y: 1}},
	}

	e1 := CollectForOutput(scene, view1080(geom.Point{X: 0, Y: 0}))
	assert.Empty(t, names(e1))

	e2 := CollectForOutput(scene, view1080(geom.Point{X: 1920, Y: 0}))
	require.Len(t, e2, 1)
	assert.Equal(t, "cursor", e2[0].(*markerElement).name)
	assert.Equal(t, geom.Point{X: -1, Y: -1}, e2[0].(*markerElement).loc)
}

// Controller layout entries are authoritative: no intersection test, and
// frame-local coordinates are translated by the working-area origin.
func TestLayoutEntriesAuthoritative(t *testing.T) {
	scene := &Scene{
		Windows: []*Window{{
			ID:      1,
			Source:  src("managed", 200, 200),
			Managed: true,
			// Parked off-screen: must still be emitted via the layout
			// entry below.
			Location: geom.Point{X: -10000, Y: -10000},
			Size:     geom.Size{W: 200, H: 200},
		}},
	}
	view := view1080(geom.Point{})
	view.WorkingArea = geom.Rect{X: 0, Y: 30, W: 1920, H: 1050}
	view.LayoutEntries = []LayoutEntry{
		{Source: src("managed", 200, 200), X: 10, Y: 20},
	}

	elements := CollectForOutput(scene, view)
	require.Len(t, elements, 1)
	assert.Equal(t, geom.Point{X: 10, Y: 50}, elements[0].(*markerElement).loc)
}

// Popup position: window_location + window_geometry_origin + popup_offset -
// popup_geometry_origin, clipped against the output.
func TestPopupPlacementAndClipping(t *testing.T) {
	win := &Window{
		ID:             1,
		Source:         src("window", 400, 400),
		Location:       geom.Point{X: 100, Y: 100},
		GeometryOrigin: geom.Point{X: 10, Y: 10},
		Size:           geom.Size{W: 400, H: 400},
		Popups: []Popup{
			{
				Source:         src("popup", 80, 60),
				Offset:         geom.Point{X: 50, Y: 40},
				GeometryOrigin: geom.Point{X: 5, Y: 5},
				Size:           geom.Size{W: 80, H: 60},
			},
			{
				Source: src("far-popup", 80, 60),
				Offset: geom.Point{X: 10000, Y: 0},
				Size:   geom.Size{W: 80, H: 60},
			},
		},
	}
	scene := &Scene{Windows: []*Window{win}}

	elements := CollectForOutput(scene, view1080(geom.Point{}))

	assert.Equal(t, geom.Point{X: 155, Y: 145}, locOf(t, elements, "popup"))
	assert.Equal(t, []string{"popup", "window"}, names(elements))
}

func TestScaleTranslation(t *testing.T) {
	scene := &Scene{
		PointerX: 100, PointerY: 100,
		Cursor: &markerCursor{hotspot: geom.Point{X: 1, Y: 1}},
	}
	view := view1080(geom.Point{})
	view.Scale = 2

	elements := CollectForOutput(scene, view)
	require.Len(t, elements, 1)
	// (100-1) logical * 2 = 198 physical
	assert.Equal(t, geom.Point{X: 198, Y: 198}, elements[0].(*markerElement).loc)
}

func TestSessionLockedRendersOnlyLock(t *testing.T) {
	scene := &Scene{
		Locked:      true,
		LockSurface: src("lock", 1920, 1080),
		LockColor:   Color{A: 1},
		Windows: []*Window{{
			ID:       1,
			Source:   src("window", 300, 300),
			Location: geom.Point{X: 0, Y: 0},
			Size:     geom.Size{W: 300, H: 300},
		}},
	}
	view := view1080(geom.Point{})
	view.Layers[LayerOverlay] = []LayerEntry{{Source: src("overlay", 100, 100), Geo: geom.Rect{W: 100, H: 100}}}

	elements := CollectForOutput(scene, view)
	require.Len(t, elements, 2)
	assert.Equal(t, "lock", elements[0].(*markerElement).name)
	_, isSolid := elements[1].(*SolidColorElement)
	assert.True(t, isSolid, "lock backdrop is a solid colour element")
}

func TestSessionLockedWithoutLockSurface(t *testing.T) {
	scene := &Scene{Locked: true, LockColor: Color{A: 1}}
	elements := CollectForOutput(scene, view1080(geom.Point{}))
	require.Len(t, elements, 1)
	_, isSolid := elements[0].(*SolidColorElement)
	assert.True(t, isSolid)
}
