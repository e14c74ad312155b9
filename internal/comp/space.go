package comp

import (
	"github.com/ezemtsov/ewm/internal/geom"
)

// HiddenPos is the off-screen sentinel for surfaces the controller hid
var HiddenPos = geom.Point{X: -10000, Y: -10000}

// Space maps surfaces and outputs into the global logical coordinate
// space. Surfaces are kept in stacking order, bottom first.
type Space struct {
	stacking  []*Surface
	positions map[uint32]geom.Point

	outputs      []string
	outputGeo    map[string]geom.Rect
}

// NewSpace creates an empty space
func NewSpace() *Space {
	return &Space{
		positions: map[uint32]geom.Point{},
		outputGeo: map[string]geom.Rect{},
	}
}

// MapSurface places a surface at pos, optionally raising it to the top
func (sp *Space) MapSurface(s *Surface, pos geom.Point, raise bool) {
	if _, mapped := sp.positions[s.ID]; !mapped {
		sp.stacking = append(sp.stacking, s)
	} else if raise {
		sp.Raise(s)
	}
	sp.positions[s.ID] = pos
}

// Raise moves a mapped surface to the top of the stacking order
func (sp *Space) Raise(s *Surface) {
	for i, other := range sp.stacking {
		if other == s {
			sp.stacking = append(append(sp.stacking[:i:i], sp.stacking[i+1:]...), s)
			return
		}
	}
}

// UnmapSurface removes a surface from the space
func (sp *Space) UnmapSurface(s *Surface) {
	delete(sp.positions, s.ID)
	for i, other := range sp.stacking {
		if other == s {
			sp.stacking = append(sp.stacking[:i], sp.stacking[i+1:]...)
			return
		}
	}
}

// SurfaceLocation returns a surface's global position
func (sp *Space) SurfaceLocation(s *Surface) (geom.Point, bool) {
	pos, ok := sp.positions[s.ID]
	return pos, ok
}

// Surfaces returns the stacking order, bottom first
func (sp *Space) Surfaces() []*Surface {
	return sp.stacking
}

// SurfaceUnder returns the topmost surface containing the point and the
// point translated into that surface's local space.
func (sp *Space) SurfaceUnder(x, y float64) (*Surface, geom.Point, bool) {
	p := geom.Point{X: int(x), Y: int(y)}
	for i := len(sp.stacking) - 1; i >= 0; i-- {
		s := sp.stacking[i]
		pos := sp.positions[s.ID]
		if geom.NewRect(pos, s.Size).Contains(p) {
			return s, p.Sub(pos), true
		}
	}
	return nil, geom.Point{}, false
}

// MapOutput places an output's rectangle into the global space
func (sp *Space) MapOutput(name string, rect geom.Rect) {
	if _, ok := sp.outputGeo[name]; !ok {
		sp.outputs = append(sp.outputs, name)
	}
	sp.outputGeo[name] = rect
}

// UnmapOutput removes an output from the space
func (sp *Space) UnmapOutput(name string) {
	delete(sp.outputGeo, name)
	for i, n := range sp.outputs {
		if n == name {
			sp.outputs = append(sp.outputs[:i], sp.outputs[i+1:]...)
			return
		}
	}
}

// Outputs returns the mapped output names in mapping order
func (sp *Space) Outputs() []string {
	return sp.outputs
}

// OutputGeometry returns an output's global rectangle
func (sp *Space) OutputGeometry(name string) (geom.Rect, bool) {
	geo, ok := sp.outputGeo[name]
	return geo, ok
}

// OutputAt returns the output whose rectangle contains the point, by the
// half-open convention.
func (sp *Space) OutputAt(x, y float64) (string, bool) {
	p := geom.Point{X: int(x), Y: int(y)}
	for _, name := range sp.outputs {
		if sp.outputGeo[name].Contains(p) {
			return name, true
		}
	}
	return "", false
}

// OutputSize returns the bounding box of all live output rectangles
func (sp *Space) OutputSize() geom.Size {
	var bounds geom.Rect
	for _, geo := range sp.outputGeo {
		bounds = bounds.Union(geo)
	}
	return geom.Size{W: bounds.X + bounds.W, H: bounds.Y + bounds.H}
}
