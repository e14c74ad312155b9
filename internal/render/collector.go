package render

import (
	"github.com/ezemtsov/ewm/internal/geom"
)

// SurfaceSource yields the render elements of one surface tree placed at a
// physical location. The compositor core implements it for client
// surfaces; tests implement it directly.
type SurfaceSource interface {
	RenderElements(loc geom.Point, scale float64) []Element
}

// CursorSource yields the cursor element and its hotspot
type CursorSource interface {
	Hotspot() geom.Point
	Element(loc geom.Point) Element
}

// Layer is a layer-shell tier
type Layer int

const (
	LayerBackground Layer = iota
	LayerBottom
	LayerTop
	LayerOverlay
)

// LayerEntry is a layer surface with its output-local geometry, listed in
// stacking order (bottom first).
type LayerEntry struct {
	Source SurfaceSource
	Geo    geom.Rect
}

// Popup is one popup in a toplevel's popup subtree
type Popup struct {
	Source SurfaceSource
	// Offset is the popup position relative to the parent's geometry
	Offset geom.Point
	// GeometryOrigin is the popup's own geometry origin (shadow margins)
	GeometryOrigin geom.Point
	Size           geom.Size
}

// Window is a mapped toplevel
type Window struct {
	ID     uint32
	Source SurfaceSource
	// Location is the window position in global logical space
	Location geom.Point
	// GeometryOrigin is the toplevel's geometry origin within its surface
	GeometryOrigin geom.Point
	Size           geom.Size
	Popups         []Popup
	// Managed windows are placed by controller layout entries and skipped
	// by the intersection pass.
	Managed bool
}

// LayoutEntry is one controller-declared placement on a specific output.
// Coordinates are frame-local: relative to the output's working area.
type LayoutEntry struct {
	Source SurfaceSource
	X, Y   int
}

// Scene is the renderable state of the compositor for one frame, assembled
// by the core and shared by every output's collection pass.
type Scene struct {
	Locked      bool
	LockSurface SurfaceSource // may be nil while the lock client starts up
	LockColor   Color
	LockColorID uint64

	PointerX, PointerY float64
	Cursor             CursorSource

	Windows []*Window
}

// OutputView is the per-output half of a collection: geometry, scale, and
// the output-scoped layer/layout state.
type OutputView struct {
	// Pos and Size are the output's rectangle in global logical space
	Pos  geom.Point
	Size geom.Size
	// Scale is the output's fractional scale
	Scale float64
	// Layers holds the output's layer surfaces per tier in stacking order
	Layers [4][]LayerEntry
	// LayoutEntries are the controller-declared windows for this output
	LayoutEntries []LayoutEntry
	// WorkingArea is the output-local area left after exclusive zones
	WorkingArea geom.Rect
	// IncludeCursor disables the cursor for capture paths that exclude it
	IncludeCursor bool
}

// CollectForOutput produces the ordered element list for one output,
// front to back: cursor, overlay, top, popups, managed windows, unmanaged
// windows, bottom, background. Screencopy and screencast reuse the same
// list so capture matches display exactly.
func CollectForOutput(scene *Scene, view *OutputView) []Element {
	var elements []Element

	// While the session is locked only the lock surface and an opaque
	// backdrop are visible; everything else is skipped.
	if scene.Locked {
		if scene.LockSurface != nil {
			elements = append(elements, scene.LockSurface.RenderElements(geom.Point{}, view.Scale)...)
		}
		backdrop := geom.Rect{
			W: geom.ToPhysicalPreciseRound(view.Scale, view.Size.W),
			H: geom.ToPhysicalPreciseRound(view.Scale, view.Size.H),
		}
		elements = append(elements, NewSolidColorElement(scene.LockColorID, scene.LockColor, backdrop))
		return elements
	}

	outputRect := geom.NewRect(view.Pos, view.Size)

	// 1. Cursor, iff the pointer is on this output (half-open bounds)
	if view.IncludeCursor && scene.Cursor != nil {
		pointer := geom.Point{X: int(scene.PointerX), Y: int(scene.PointerY)}
		if outputRect.Contains(pointer) {
			hotspot := scene.Cursor.Hotspot()
			local := geom.Point{
				X: pointer.X - hotspot.X - view.Pos.X,
				Y: pointer.Y - hotspot.Y - view.Pos.Y,
			}
			elements = append(elements, scene.Cursor.Element(geom.PointToPhysical(view.Scale, local)))
		}
	}

	// 2. Overlay layer, 3. Top layer (stacking order reversed: front first)
	elements = appendLayer(elements, view, LayerOverlay)
	elements = appendLayer(elements, view, LayerTop)

	// Popups are spliced in here, after the top layer, so overlays cover
	// them.
	popupInsert := len(elements)

	// 5. Controller-declared windows: authoritative, no intersection test.
	// Frame-local coordinates are translated by the working-area origin.
	for _, entry := range view.LayoutEntries {
		local := geom.Point{
			X: view.WorkingArea.X + entry.X,
			Y: view.WorkingArea.Y + entry.Y,
		}
		elements = append(elements, entry.Source.RenderElements(geom.PointToPhysical(view.Scale, local), view.Scale)...)
	}

	// 6. Unmanaged windows whose global rectangle intersects this output
	for _, win := range scene.Windows {
		if win.Managed {
			continue
		}
		winRect := geom.NewRect(win.Location, win.Size)
		if !outputRect.Overlaps(winRect) {
			continue
		}
		local := win.Location.Sub(view.Pos)
		elements = append(elements, win.Source.RenderElements(geom.PointToPhysical(view.Scale, local), view.Scale)...)
	}

	// 7. Bottom layer, 8. Background layer
	elements = appendLayer(elements, view, LayerBottom)
	elements = appendLayer(elements, view, LayerBackground)

	// 4. Popups of toplevels, clipped to the output
	var popups []Element
	for _, win := range scene.Windows {
		for _, p := range win.Popups {
			loc := win.Location.
				Add(win.GeometryOrigin).
				Add(p.Offset).
				Sub(p.GeometryOrigin)
			popupRect := geom.NewRect(loc, p.Size)
			if !outputRect.Overlaps(popupRect) {
				continue
			}
			local := loc.Sub(view.Pos)
			popups = append(popups, p.Source.RenderElements(geom.PointToPhysical(view.Scale, local), view.Scale)...)
		}
	}
	if len(popups) > 0 {
		elements = append(elements[:popupInsert],
			append(popups, elements[popupInsert:]...)...)
	}

	return elements
}

// appendLayer appends one tier's surfaces front-to-back. The layer list is
// in stacking order (bottom first), so it is walked in reverse.
func appendLayer(elements []Element, view *OutputView, layer Layer) []Element {
	entries := view.Layers[layer]
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		loc := geom.PointToPhysical(view.Scale, entry.Geo.Loc())
		elements = append(elements, entry.Source.RenderElements(loc, view.Scale)...)
	}
	return elements
}
