package comp

import (
	"github.com/ezemtsov/ewm/internal/config"
	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/ipc"
	"github.com/ezemtsov/ewm/internal/logger"
)

// BackendOps is the slice of the backend the command handler needs:
// hardware-touching operations the core cannot perform itself.
type BackendOps interface {
	// SetMode applies a modeline on an output; returns false when the
	// output or mode was not found or the change failed.
	SetMode(output string, width, height int, refreshMHz *int) bool
	// ApplyOutputConfig re-applies position/scale/enabled for an output
	ApplyOutputConfig(output string)
	// CommitText forwards text to the input-method bridge
	CommitText(text string)
}

// HandleCommand processes one controller command. Within a loop turn,
// command processing happens after client dispatch and before the render
// pass, so a command's effects land in the frame of the same turn.
func (e *Ewm) HandleCommand(cmd ipc.Command, backend BackendOps) {
	switch c := cmd.(type) {
	case *ipc.Layout:
		s, ok := e.surfaces[c.ID]
		if !ok {
			return
		}
		e.Space.MapSurface(s, geom.Point{X: c.X, Y: c.Y}, true)
		s.PendingConfigureSize = geom.Size{W: c.W, H: c.H}
		delete(e.surfaceOutputs, c.ID)
		e.QueueRedrawAll()
		logger.Infof("Layout surface %d at (%d, %d) %dx%d", c.ID, c.X, c.Y, c.W, c.H)

	case *ipc.Views:
		s, ok := e.surfaces[c.ID]
		if !ok {
			return
		}
		s.Views = c.Views
		if v := s.ActiveView(); v != nil {
			e.Space.MapSurface(s, geom.Point{X: v.X, Y: v.Y}, true)
			s.PendingConfigureSize = geom.Size{W: v.W, H: v.H}
		}
		e.QueueRedrawAll()

	case *ipc.Hide:
		s, ok := e.surfaces[c.ID]
		if !ok {
			return
		}
		e.Space.MapSurface(s, HiddenPos, false)
		s.Views = nil
		delete(e.surfaceOutputs, c.ID)
		e.QueueRedrawAll()
		logger.Infof("Hide surface %d", c.ID)

	case *ipc.Close:
		s, ok := e.surfaces[c.ID]
		if !ok {
			return
		}
		s.CloseRequested = true
		logger.Infof("Close surface %d (sent close request)", c.ID)

	case *ipc.Focus:
		if _, ok := e.surfaces[c.ID]; ok {
			e.SetFocus(c.ID)
			logger.Infof("Focus surface %d", c.ID)
		}

	case *ipc.WarpPointer:
		e.WarpPointer(c.X, c.Y)

	case *ipc.Screenshot:
		target := c.Path
		if target == "" {
			target = "/tmp/ewm-screenshot.png"
		}
		logger.Infof("Screenshot requested: %s", target)
		e.PendingScreenshot = target
		e.QueueRedrawAll()

	case *ipc.InterceptKeys:
		e.Intercepted = c.Keys
		logger.Infof("Intercepted keys set: %d entries", len(c.Keys))

	case *ipc.ConfigureOutput:
		e.handleConfigureOutput(c, backend)

	case *ipc.AssignOutput:
		geo, ok := e.Space.OutputGeometry(c.Output)
		if !ok {
			logger.Warnf("Output not found: %s", c.Output)
			return
		}
		s, ok := e.surfaces[c.ID]
		if !ok {
			logger.Warnf("Surface not found: %d", c.ID)
			return
		}
		e.Space.MapSurface(s, geo.Loc(), true)
		s.PendingConfigureSize = geo.Size()
		s.Views = nil
		e.surfaceOutputs[c.ID] = c.Output
		e.QueueRedrawAll()
		logger.Infof("Assigned surface %d to output %s at (%d, %d) %dx%d",
			c.ID, c.Output, geo.X, geo.Y, geo.W, geo.H)

	case *ipc.PrepareFrame:
		e.pendingFrameOutputs = append(e.pendingFrameOutputs, c.Output)
		logger.Infof("Prepared frame for output %s", c.Output)

	case *ipc.ConfigureXkb:
		if !e.Xkb.Configure(c.Layouts, c.Options) {
			logger.Warn("No valid layouts in configure-xkb")
			return
		}
		logger.Infof("Configured XKB layouts: %v, options: %q", e.Xkb.LayoutNames, c.Options)
		e.QueueEvent(event.Layouts{Layouts: e.Xkb.LayoutNames, Current: 0})

	case *ipc.SwitchLayout:
		idx, ok := e.Xkb.Switch(c.Layout)
		if !ok {
			logger.Warnf("Layout %q not found. Available: %v", c.Layout, e.Xkb.LayoutNames)
			return
		}
		logger.Infof("Switched to layout: %s (index %d)", c.Layout, idx)
		e.QueueEvent(event.LayoutSwitched{Layout: c.Layout, Index: idx})

	case *ipc.GetLayouts:
		e.QueueEvent(event.Layouts{Layouts: e.Xkb.LayoutNames, Current: e.Xkb.Current})

	case *ipc.ImCommit:
		if backend != nil {
			backend.CommitText(c.Text)
		}

	case *ipc.TextInputIntercept:
		logger.Infof("Text input intercept: %v", c.Enabled)
		e.TextInputIntercept = c.Enabled
	}
}

func (e *Ewm) handleConfigureOutput(c *ipc.ConfigureOutput, backend BackendOps) {
	geo, found := e.Space.OutputGeometry(c.Name)
	if !found {
		logger.Warnf("Output not found: %s", c.Name)
		return
	}

	// Merge into the stored config so hotplug re-applies it.
	oc := e.OutputConfigs[c.Name]
	if c.X != nil {
		oc.X = c.X
	}
	if c.Y != nil {
		oc.Y = c.Y
	}
	if c.Width != nil {
		oc.Width = c.Width
	}
	if c.Height != nil {
		oc.Height = c.Height
	}
	if c.Refresh != nil {
		oc.Refresh = c.Refresh
	}
	if c.Scale != nil {
		oc.Scale = c.Scale
	}
	if c.Enabled != nil {
		oc.Enabled = c.Enabled
	}
	e.OutputConfigs[c.Name] = oc

	if c.Enabled != nil && !*c.Enabled {
		e.Space.UnmapOutput(c.Name)
		logger.Infof("Disabled output %s", c.Name)
		e.QueueRedrawAll()
		return
	}

	if c.Width != nil && c.Height != nil && backend != nil {
		backend.SetMode(c.Name, *c.Width, *c.Height, c.Refresh)
		if g, ok := e.Space.OutputGeometry(c.Name); ok {
			geo = g
		}
	}

	if c.X != nil || c.Y != nil {
		newGeo := geo
		if c.X != nil {
			newGeo.X = *c.X
		}
		if c.Y != nil {
			newGeo.Y = *c.Y
		}
		e.Space.MapOutput(c.Name, newGeo)
		for i := range e.Outputs {
			if e.Outputs[i].Name == c.Name {
				e.Outputs[i].X = newGeo.X
				e.Outputs[i].Y = newGeo.Y
			}
		}
		geo = newGeo
		logger.Infof("Configured output %s at (%d, %d)", c.Name, newGeo.X, newGeo.Y)
	}

	if backend != nil {
		backend.ApplyOutputConfig(c.Name)
	}

	scale := e.OutputScale(c.Name)
	e.QueueEvent(event.OutputConfigChanged{
		Name:    c.Name,
		Width:   geo.W,
		Height:  geo.H,
		Refresh: refreshOrZero(oc),
		X:       geo.X,
		Y:       geo.Y,
		Scale:   scale,
	})
	e.QueueRedrawAll()
}

func refreshOrZero(oc config.OutputConfig) int {
	if oc.Refresh != nil {
		return *oc.Refresh
	}
	return 0
}
