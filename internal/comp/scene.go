package comp

import (
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/render"
)

// BuildScene assembles the renderable state shared by every output's
// collection pass this frame.
func (e *Ewm) BuildScene() *render.Scene {
	scene := &render.Scene{
		Locked:      e.Locked,
		LockColor:   e.LockColor,
		LockColorID: e.lockColorID,
		PointerX:    e.PointerX,
		PointerY:    e.PointerY,
		Cursor:      e.cursor,
	}

	for _, s := range e.Space.Surfaces() {
		loc, _ := e.Space.SurfaceLocation(s)
		win := &render.Window{
			ID:             s.ID,
			Source:         s,
			Location:       loc,
			GeometryOrigin: s.GeometryOrigin,
			Size:           s.Size,
			Managed:        e.surfaceOutputs[s.ID] != "",
		}
		for _, p := range s.Popups {
			win.Popups = append(win.Popups, render.Popup{
				Source:         p,
				Offset:         p.Offset,
				GeometryOrigin: p.GeometryOrigin,
				Size:           p.Size,
			})
		}
		scene.Windows = append(scene.Windows, win)
	}

	return scene
}

// OutputViewFor builds the per-output half of a collection pass
func (e *Ewm) OutputViewFor(output string, includeCursor bool) *render.OutputView {
	geo, ok := e.Space.OutputGeometry(output)
	if !ok {
		return nil
	}

	view := &render.OutputView{
		Pos:           geo.Loc(),
		Size:          geo.Size(),
		Scale:         e.OutputScale(output),
		WorkingArea:   e.WorkingArea(output),
		IncludeCursor: includeCursor,
	}

	for _, ls := range e.layerShell[output] {
		view.Layers[ls.Layer] = append(view.Layers[ls.Layer], render.LayerEntry{
			Source: ls.Surface,
			Geo:    ls.Geo,
		})
	}

	// Controller-declared windows for this output: every view of every
	// surface assigned here becomes an authoritative entry with
	// frame-local coordinates. Stacking order keeps entries stable.
	for _, s := range e.Space.Surfaces() {
		if e.surfaceOutputs[s.ID] != output {
			continue
		}
		if len(s.Views) == 0 {
			// assign-output without views: fullscreen on the output
			view.LayoutEntries = append(view.LayoutEntries, render.LayoutEntry{
				Source: s, X: 0, Y: 0,
			})
			continue
		}
		for _, v := range s.Views {
			view.LayoutEntries = append(view.LayoutEntries, render.LayoutEntry{
				Source: s, X: v.X, Y: v.Y,
			})
		}
	}

	return view
}

// SceneForLockedOutput wires the per-output lock surface into the scene.
// Lock surfaces differ per output, so the collector is handed a scene
// variant during a locked render.
func (e *Ewm) SceneForLockedOutput(scene *render.Scene, output string) *render.Scene {
	if !e.Locked {
		return scene
	}
	st, ok := e.OutputStates[output]
	if !ok || st.LockSurface == nil {
		return scene
	}
	locked := *scene
	locked.LockSurface = st.LockSurface
	return &locked
}

// OutputScale returns the output's configured fractional scale
func (e *Ewm) OutputScale(output string) float64 {
	if oc, ok := e.OutputConfigs[output]; ok && oc.Scale != nil && *oc.Scale > 0 {
		return *oc.Scale
	}
	return 1
}

// CollectForOutput runs the element collector for one output
func (e *Ewm) CollectForOutput(output string, includeCursor bool) []render.Element {
	view := e.OutputViewFor(output, includeCursor)
	if view == nil {
		return nil
	}
	scene := e.SceneForLockedOutput(e.BuildScene(), output)
	return render.CollectForOutput(scene, view)
}

// OutputSizePhysical returns the output's size in physical pixels
func (e *Ewm) OutputSizePhysical(output string) geom.Size {
	geo, ok := e.Space.OutputGeometry(output)
	if !ok {
		return geom.Size{}
	}
	scale := e.OutputScale(output)
	return geom.Size{
		W: geom.ToPhysicalPreciseRound(scale, geo.W),
		H: geom.ToPhysicalPreciseRound(scale, geo.H),
	}
}
