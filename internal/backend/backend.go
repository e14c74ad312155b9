package backend

import (
	"github.com/ezemtsov/ewm/internal/comp"

	"github.com/ezemtsov/ewm/internal/backend/drm"
	"github.com/ezemtsov/ewm/internal/backend/headless"
)

// Backend unifies the DRM and headless backends behind one contract. The
// set is closed: a two-variant struct keeps the boundary auditable
// instead of an open interface.
type Backend struct {
	drm      *drm.Backend
	headless *headless.Backend
}

// FromDrm wraps the DRM backend
func FromDrm(b *drm.Backend) *Backend {
	return &Backend{drm: b}
}

// FromHeadless wraps the headless backend
func FromHeadless(b *headless.Backend) *Backend {
	return &Backend{headless: b}
}

// IsDrm reports whether this is the DRM backend
func (b *Backend) IsDrm() bool {
	return b.drm != nil
}

// Drm returns the DRM backend, nil for headless
func (b *Backend) Drm() *drm.Backend {
	return b.drm
}

// Headless returns the headless backend, nil for DRM
func (b *Backend) Headless() *headless.Backend {
	return b.headless
}

// RedrawQueuedOutputs processes all outputs that have queued redraws
func (b *Backend) RedrawQueuedOutputs(e *comp.Ewm) {
	switch {
	case b.drm != nil:
		b.drm.RedrawQueuedOutputs(e)
	case b.headless != nil:
		b.headless.RedrawQueuedOutputs(e)
	}
}

// HasQueuedRedraws reports whether any output has a redraw queued
func (b *Backend) HasQueuedRedraws(e *comp.Ewm) bool {
	switch {
	case b.drm != nil:
		return b.drm.HasQueuedRedraws(e)
	case b.headless != nil:
		return b.headless.HasQueuedRedraws(e)
	}
	return false
}

// EarlyImport performs early buffer import for a surface; no-op on
// headless.
func (b *Backend) EarlyImport(surfaceID uint32) {
	if b.drm != nil {
		b.drm.EarlyImport(surfaceID)
	}
}
