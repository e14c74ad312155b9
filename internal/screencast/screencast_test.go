package screencast

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/render"
)

// fakeAllocator succeeds for a configured set of modifiers, reporting a
// fixed plane count.
type fakeAllocator struct {
	supported map[render.Modifier]int // modifier -> planes
	allocs    int
	released  int
}

func (a *fakeAllocator) Allocate(size geom.Size, format render.Fourcc, modifiers []render.Modifier) (*AllocatedBuffer, error) {
	for _, m := range modifiers {
		planes, ok := a.supported[m]
		if !ok {
			continue
		}
		a.allocs++
		fds := make([]int, planes)
		for i := range fds {
			fds[i] = 100 + a.allocs*10 + i
		}
		return &AllocatedBuffer{
			Size:     size,
			Modifier: m,
			PlaneFDs: fds,
			Release:  func() { a.released++ },
		}, nil
	}
	return nil, fmt.Errorf("no supported modifier offered")
}

func TestNegotiateDontFixate(t *testing.T) {
	alloc := &fakeAllocator{supported: map[render.Modifier]int{
		render.ModifierLinear: 1,
	}}

	proposed := ProposedFormat{
		Size:       geom.Size{W: 1920, H: 1080},
		Format:     render.FourccXrgb8888,
		Modifiers:  []render.Modifier{0x0100000000000004, render.ModifierLinear},
		DontFixate: true,
	}

	fixated, params, err := Negotiate(alloc, proposed)
	require.NoError(t, err)

	assert.Equal(t, render.ModifierLinear, fixated.Modifier)
	assert.Equal(t, 1, fixated.PlaneCount)
	assert.Equal(t, &BufferParams{MinBuffers: 2, MaxBuffers: 16, Blocks: 1}, params)
	assert.Equal(t, 1, alloc.released, "trial allocation is released")
}

func TestNegotiateFixatedModifierLearnsPlaneCount(t *testing.T) {
	alloc := &fakeAllocator{supported: map[render.Modifier]int{
		0x0100000000000004: 2, // a CCS-style two-plane layout
	}}

	proposed := ProposedFormat{
		Size:      geom.Size{W: 1280, H: 720},
		Format:    render.FourccXrgb8888,
		Modifiers: []render.Modifier{0x0100000000000004},
	}

	fixated, params, err := Negotiate(alloc, proposed)
	require.NoError(t, err)
	assert.Equal(t, 2, fixated.PlaneCount)
	assert.Equal(t, 2, params.Blocks)
}

func TestNegotiateNoModifierListFallsBackToImplicit(t *testing.T) {
	alloc := &fakeAllocator{supported: map[render.Modifier]int{
		render.ModifierInvalid: 1,
	}}

	_, params, err := Negotiate(alloc, ProposedFormat{
		Size:   geom.Size{W: 640, H: 480},
		Format: render.FourccXrgb8888,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, params.Blocks)
}

func TestNegotiateAllocationFailure(t *testing.T) {
	alloc := &fakeAllocator{supported: map[render.Modifier]int{}}
	_, _, err := Negotiate(alloc, ProposedFormat{
		Size:      geom.Size{W: 64, H: 64},
		Format:    render.FourccXrgb8888,
		Modifiers: []render.Modifier{render.ModifierLinear},
	})
	assert.Error(t, err)
}

func TestCastBufferLifecycle(t *testing.T) {
	alloc := &fakeAllocator{supported: map[render.Modifier]int{
		render.ModifierLinear: 1,
	}}
	cast := NewCast(1, "eDP-1", FixatedFormat{
		Size:       geom.Size{W: 800, H: 600},
		Format:     render.FourccXrgb8888,
		Modifier:   render.ModifierLinear,
		PlaneCount: 1,
	}, alloc)

	fds, err := cast.AddBuffer(0)
	require.NoError(t, err)
	assert.Len(t, fds, 1)

	_, err = cast.AddBuffer(1)
	require.NoError(t, err)

	cast.RemoveBuffer(0)
	assert.Equal(t, 1, alloc.released)

	cast.Stop()
	assert.Equal(t, 2, alloc.released)
}

func TestCastPlaneCountMismatch(t *testing.T) {
	alloc := &fakeAllocator{supported: map[render.Modifier]int{
		render.ModifierLinear: 3,
	}}
	cast := NewCast(1, "eDP-1", FixatedFormat{
		Size:       geom.Size{W: 800, H: 600},
		Format:     render.FourccXrgb8888,
		Modifier:   render.ModifierLinear,
		PlaneCount: 1,
	}, alloc)

	_, err := cast.AddBuffer(0)
	assert.Error(t, err)
	assert.Equal(t, 1, alloc.released, "mismatched buffer is released")
}
