package headless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezemtsov/ewm/internal/comp"
	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/ipc"
	"github.com/ezemtsov/ewm/internal/redraw"
	"github.com/ezemtsov/ewm/internal/render"
	"github.com/ezemtsov/ewm/internal/screencopy"
)

func setup(t *testing.T) (*Backend, *comp.Ewm) {
	t.Helper()
	e := comp.New(nil)
	b := NewBackend()
	b.AddOutput("Virtual-1", 1920, 1080, e)
	return b, e
}

func commitBuffer(s *comp.Surface, w, h int) {
	img := render.NewImage(w, h, render.FourccXrgb8888)
	for i := range img.Data {
		img.Data[i] = 0xff
	}
	s.Attach(img)
}

func TestAddOutputRegistersState(t *testing.T) {
	b, e := setup(t)

	assert.NotNil(t, b.Output("Virtual-1"))
	assert.NotNil(t, e.OutputStates["Virtual-1"])
	assert.Equal(t, geom.Size{W: 1920, H: 1080}, e.Space.OutputSize())

	var detected bool
	for _, ev := range e.PendingEvents() {
		if _, ok := ev.(event.OutputDetected); ok {
			detected = true
		}
	}
	assert.True(t, detected)
}

func TestSecondOutputAppendsHorizontally(t *testing.T) {
	b, e := setup(t)
	b.AddOutput("Virtual-2", 1280, 720, e)

	geo, ok := e.Space.OutputGeometry("Virtual-2")
	require.True(t, ok)
	assert.Equal(t, geom.Rect{X: 1920, Y: 0, W: 1280, H: 720}, geo)
}

// Scenario: two commits in one loop turn produce one render.
func TestTwoCommitsOneRender(t *testing.T) {
	b, e := setup(t)
	s := e.CreateSurface("foot")
	e.HandleCommand(&ipc.Layout{ID: s.ID, X: 0, Y: 0, W: 100, H: 100}, b)
	b.RedrawQueuedOutputs(e)
	before := b.RenderCount("Virtual-1")

	// Two commits before the next turn's render.
	commitBuffer(s, 100, 100)
	e.QueueRedrawAll()
	commitBuffer(s, 100, 100)
	e.QueueRedrawAll()

	b.RedrawQueuedOutputs(e)
	assert.Equal(t, before+1, b.RenderCount("Virtual-1"), "commits coalesce into one render")
	assert.IsType(t, redraw.Idle{}, e.OutputStates["Virtual-1"].Redraw)
}

func TestRenderSendsFrameCallbacks(t *testing.T) {
	b, e := setup(t)
	s := e.CreateSurface("foot")
	commitBuffer(s, 64, 64)

	called := 0
	s.FrameCallback = func(output string) { called++ }

	e.QueueRedrawAll()
	b.RedrawQueuedOutputs(e)
	assert.Equal(t, 1, called)
}

func TestNoQueuedOutputsNoRender(t *testing.T) {
	b, e := setup(t)
	before := b.RenderCount("Virtual-1")
	b.RedrawQueuedOutputs(e)
	b.RedrawQueuedOutputs(e)
	assert.Equal(t, before, b.RenderCount("Virtual-1"))
	assert.False(t, b.HasQueuedRedraws(e))
}

func TestRenderedPixelsMatchPlacement(t *testing.T) {
	b, e := setup(t)
	s := e.CreateSurface("foot")
	commitBuffer(s, 50, 50)
	e.HandleCommand(&ipc.Layout{ID: s.ID, X: 100, Y: 100, W: 50, H: 50}, b)

	b.RedrawQueuedOutputs(e)

	target := b.Output("Virtual-1").Target
	inside := target.Data[120*target.Stride+120*4+2]
	assert.Equal(t, byte(0xff), inside, "surface pixels land at the laid-out position")
}

// Screencopy drains during the owning output's render pass and matches
// the on-screen frame.
func TestScreencopyDuringRender(t *testing.T) {
	b, e := setup(t)
	s := e.CreateSurface("foot")
	commitBuffer(s, 50, 50)
	e.HandleCommand(&ipc.Layout{ID: s.ID, X: 0, Y: 0, W: 50, H: 50}, b)

	shm := &screencopy.Shm{Width: 1920, Height: 1080, Stride: 1920 * 4, Data: make([]byte, 1920*4*1080)}
	completed := false
	e.Screencopy.Queue(&screencopy.Request{
		Output: "Virtual-1",
		Shm:    shm,
		Done:   func([]geom.Rect) { completed = true },
	})

	b.RedrawQueuedOutputs(e)

	require.True(t, completed)
	target := b.Output("Virtual-1").Target
	assert.Equal(t, target.Data[10*target.Stride+10*4], shm.Data[10*1920*4+10*4],
		"capture matches display exactly")
}

func TestModeChangeUnsupported(t *testing.T) {
	b, _ := setup(t)
	assert.False(t, b.SetMode("Virtual-1", 1280, 720, nil))
}

func TestRemoveOutput(t *testing.T) {
	b, e := setup(t)
	b.AddOutput("Virtual-2", 1280, 720, e)
	b.RemoveOutput("Virtual-2", e)

	assert.Nil(t, b.Output("Virtual-2"))
	_, ok := e.Space.OutputGeometry("Virtual-2")
	assert.False(t, ok)
	assert.Equal(t, geom.Size{W: 1920, H: 1080}, e.Space.OutputSize())
}

func TestParseOutputSpec(t *testing.T) {
	sizes, err := ParseOutputSpec("1920x1080,1280x720")
	require.NoError(t, err)
	assert.Equal(t, []geom.Size{{W: 1920, H: 1080}, {W: 1280, H: 720}}, sizes)

	_, err = ParseOutputSpec("bogus")
	assert.Error(t, err)
	_, err = ParseOutputSpec("")
	assert.Error(t, err)
}
