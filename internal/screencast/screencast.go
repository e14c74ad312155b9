// Package screencast implements the buffer-format negotiation core for
// PipeWire screen casting. The PipeWire loop itself is an external
// collaborator behind StreamTransport; this package decides formats,
// modifiers and buffer parameters, which is where the correctness lives.
package screencast

import (
	"fmt"

	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/render"
)

// Buffer counts requested from the stream
const (
	MinBuffers = 2
	MaxBuffers = 16
)

// AllocatedBuffer is a trial- or stream-allocated GPU buffer
type AllocatedBuffer struct {
	Size geom.Size
	// Modifier is the actual layout chosen by the allocator, which may
	// differ from the requested one.
	Modifier render.Modifier
	// PlaneFDs carries one dmabuf fd per plane
	PlaneFDs []int
	// Release returns the buffer to the allocator
	Release func()
}

// Allocator creates GPU buffers with modifier constraints. The DRM
// backend provides one over its allocator; tests provide fakes.
type Allocator interface {
	// Allocate creates a buffer of the size and format, restricted to
	// the given modifiers (empty means implicit/linear).
	Allocate(size geom.Size, format render.Fourcc, modifiers []render.Modifier) (*AllocatedBuffer, error)
}

// ProposedFormat is the format pod received on param_changed
type ProposedFormat struct {
	Size      geom.Size
	Format    render.Fourcc
	Modifiers []render.Modifier
	// DontFixate is set when the modifier choice still carries the
	// don't-fixate flag and must be resolved by trial allocation.
	DontFixate bool
}

// FixatedFormat is the negotiation result sent back to the stream
type FixatedFormat struct {
	Size       geom.Size
	Format     render.Fourcc
	Modifier   render.Modifier
	PlaneCount int
}

// BufferParams is the buffer-parameter pod following format fixation
type BufferParams struct {
	MinBuffers int
	MaxBuffers int
	// Blocks equals the plane count discovered by trial allocation
	Blocks int
}

// FindPreferredModifier makes one trial allocation restricted to the
// offered modifier list (the allocator picks among them) and returns the
// allocation's real modifier and plane count.
func FindPreferredModifier(alloc Allocator, size geom.Size, format render.Fourcc, modifiers []render.Modifier) (render.Modifier, int, error) {
	buf, err := alloc.Allocate(size, format, modifiers)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to allocate test buffer: %w", err)
	}
	defer release(buf)

	return buf.Modifier, len(buf.PlaneFDs), nil
}

// Negotiate performs the two-phase format negotiation of param_changed.
// With DontFixate set, a modifier is picked by trial allocation and the
// fixated format must be offered back to the stream before buffer
// parameters. With a fixated modifier, a single trial allocation learns
// the plane count and buffer parameters follow directly.
func Negotiate(alloc Allocator, proposed ProposedFormat) (*FixatedFormat, *BufferParams, error) {
	modifiers := proposed.Modifiers
	if len(modifiers) == 0 {
		modifiers = []render.Modifier{render.ModifierInvalid}
	}

	modifier, planes, err := FindPreferredModifier(alloc, proposed.Size, proposed.Format, modifiers)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't find preferred modifier: %w", err)
	}
	logger.Debugf("Found modifier: %#x, plane_count: %d", uint64(modifier), planes)

	fixated := &FixatedFormat{
		Size:       proposed.Size,
		Format:     proposed.Format,
		Modifier:   modifier,
		PlaneCount: planes,
	}
	params := &BufferParams{
		MinBuffers: MinBuffers,
		MaxBuffers: MaxBuffers,
		Blocks:     planes,
	}
	return fixated, params, nil
}

// Cast is one active screen-cast stream
type Cast struct {
	SessionID int
	Output    string
	Format    FixatedFormat

	alloc   Allocator
	buffers map[uint32]*AllocatedBuffer
}

// NewCast creates a cast once negotiation completed
func NewCast(sessionID int, output string, format FixatedFormat, alloc Allocator) *Cast {
	return &Cast{
		SessionID: sessionID,
		Output:    output,
		Format:    format,
		alloc:     alloc,
		buffers:   map[uint32]*AllocatedBuffer{},
	}
}

// AddBuffer allocates a dmabuf for a stream buffer slot and returns the
// per-plane fds to publish into its data slots.
func (c *Cast) AddBuffer(bufferID uint32) ([]int, error) {
	buf, err := c.alloc.Allocate(c.Format.Size, c.Format.Format, []render.Modifier{c.Format.Modifier})
	if err != nil {
		return nil, fmt.Errorf("failed to allocate stream buffer: %w", err)
	}
	if len(buf.PlaneFDs) != c.Format.PlaneCount {
		release(buf)
		return nil, fmt.Errorf("allocator produced %d planes, negotiated %d", len(buf.PlaneFDs), c.Format.PlaneCount)
	}
	c.buffers[bufferID] = buf
	return buf.PlaneFDs, nil
}

// RemoveBuffer releases the dmabuf behind a stream buffer slot
func (c *Cast) RemoveBuffer(bufferID uint32) {
	if buf, ok := c.buffers[bufferID]; ok {
		release(buf)
		delete(c.buffers, bufferID)
	}
}

// Stop releases every buffer
func (c *Cast) Stop() {
	for id, buf := range c.buffers {
		release(buf)
		delete(c.buffers, id)
	}
}

func release(buf *AllocatedBuffer) {
	if buf.Release != nil {
		buf.Release()
	}
}

// StreamTransport adapts the external PipeWire loop: a pollable fd
// iterated with zero duration on each wakeup, never from another thread.
type StreamTransport interface {
	// Fd is the pollable descriptor registered with the main loop
	Fd() int
	// Iterate runs one zero-duration loop step after the fd fired
	Iterate() error
}
