package drm

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ezemtsov/ewm/internal/dbus"
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/kms"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/render"
	"github.com/ezemtsov/ewm/internal/screencast"
)

// dumbAllocator satisfies the screencast allocator over the device's
// dumb-buffer path: always linear, one plane.
type dumbAllocator struct {
	dev *kms.Device
}

func (a *dumbAllocator) Allocate(size geom.Size, format render.Fourcc, modifiers []render.Modifier) (*screencast.AllocatedBuffer, error) {
	supported := false
	for _, m := range modifiers {
		if m == render.ModifierLinear || m == render.ModifierInvalid {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("only linear buffers are available")
	}

	buf, err := a.dev.CreateDumbBuffer(uint32(size.W), uint32(size.H), uint32(format))
	if err != nil {
		return nil, err
	}
	fd, err := buf.ExportDmabuf()
	if err != nil {
		buf.Destroy()
		return nil, err
	}

	return &screencast.AllocatedBuffer{
		Size:     size,
		Modifier: render.ModifierLinear,
		PlaneFDs: []int{fd},
		Release: func() {
			unix.Close(fd)
			buf.Destroy()
		},
	}, nil
}

// OnCastRequest serves a portal screen-cast request: negotiate a format
// against the device allocator and register the cast, or tear a session's
// casts down.
func (b *Backend) OnCastRequest(req dbus.CastRequest, casts map[int][]*screencast.Cast) {
	if req.Stop {
		for _, cast := range casts[req.SessionID] {
			cast.Stop()
		}
		delete(casts, req.SessionID)
		logger.Infof("Screen cast session %d stopped", req.SessionID)
		return
	}
	if !req.Start {
		return
	}
	if b.dev == nil {
		logger.Warn("Screen cast requested before DRM initialization")
		return
	}

	surface, _, ok := b.surfaceByName(req.Output)
	if !ok {
		logger.Warnf("Screen cast requested for unknown output %s", req.Output)
		return
	}

	alloc := &dumbAllocator{dev: b.dev.card}
	fixated, params, err := screencast.Negotiate(alloc, screencast.ProposedFormat{
		Size:       surface.Size(),
		Format:     render.FourccXrgb8888,
		Modifiers:  []render.Modifier{render.ModifierLinear},
		DontFixate: true,
	})
	if err != nil {
		logger.Warnf("Screen cast negotiation failed: %v", err)
		return
	}

	cast := screencast.NewCast(req.SessionID, req.Output, *fixated, alloc)
	casts[req.SessionID] = append(casts[req.SessionID], cast)
	logger.Infof("Screen cast started on %s: %dx%d, %d-%d buffers, %d plane(s)",
		req.Output, fixated.Size.W, fixated.Size.H, params.MinBuffers, params.MaxBuffers, params.Blocks)

	if req.NodeAdded != nil {
		// The embedded stream exporter numbers nodes by session id.
		req.NodeAdded(uint32(req.SessionID))
	}
}
