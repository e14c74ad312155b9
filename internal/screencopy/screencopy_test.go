package screencopy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezemtsov/ewm/internal/geom"
	"github.com/ezemtsov/ewm/internal/render"
)

func redBuffer(w, h int) *render.Image {
	img := render.NewImage(w, h, render.FourccXrgb8888)
	for i := 0; i < len(img.Data); i += 4 {
		img.Data[i+2] = 0xff
		img.Data[i+3] = 0xff
	}
	return img
}

func redElement(x, y, w, h int) render.Element {
	return render.NewSurfaceElement(render.NextElementID(), 1, redBuffer(w, h), geom.Point{X: x, Y: y}, nil)
}

func pixelR(img *render.Image, x, y int) byte {
	return img.Data[y*img.Stride+x*4+2]
}

func TestQueueAndDrainPerOutput(t *testing.T) {
	m := NewManager()
	m.Queue(&Request{Output: "eDP-1", Shm: &Shm{Width: 4, Height: 4, Stride: 16, Data: make([]byte, 64)}})

	assert.True(t, m.HasPending("eDP-1"))
	assert.False(t, m.HasPending("HDMI-A-1"))

	m.ProcessForOutput(render.New(), "HDMI-A-1", nil, 1, geom.TransformNormal, render.Color{})
	assert.True(t, m.HasPending("eDP-1"), "other output's render must not drain this queue")

	m.ProcessForOutput(render.New(), "eDP-1", nil, 1, geom.TransformNormal, render.Color{})
	assert.False(t, m.HasPending("eDP-1"))
}

func TestShmCapture(t *testing.T) {
	m := NewManager()
	done := false
	shm := &Shm{Width: 8, Height: 8, Stride: 32, Data: make([]byte, 32*8)}
	m.Queue(&Request{
		Output: "eDP-1",
		Shm:    shm,
		Done:   func(damage []geom.Rect) { done = true; assert.Nil(t, damage) },
		Fail:   func() { t.Fatal("capture failed") },
	})

	elements := []render.Element{redElement(2, 2, 4, 4)}
	m.ProcessForOutput(render.New(), "eDP-1", elements, 1, geom.TransformNormal, render.Color{})

	require.True(t, done)
	assert.Equal(t, byte(0xff), shm.Data[3*32+3*4+2], "red pixel inside the element")
	assert.Equal(t, byte(0), shm.Data[0*32+0*4+2], "clear outside the element")
}

func TestRegionTranslation(t *testing.T) {
	// Element at (100,100); capturing region (100,100,8x8) must land it
	// at the destination origin.
	m := NewManager()
	dst := &Dmabuf{Width: 8, Height: 8, Target: render.NewImage(8, 8, render.FourccXrgb8888)}
	region := geom.Rect{X: 100, Y: 100, W: 8, H: 8}
	m.Queue(&Request{Output: "eDP-1", Dmabuf: dst, Region: &region})

	elements := []render.Element{redElement(100, 100, 4, 4)}
	m.ProcessForOutput(render.New(), "eDP-1", elements, 1, geom.TransformNormal, render.Color{})

	assert.Equal(t, byte(0xff), pixelR(dst.Target, 0, 0))
	assert.Equal(t, byte(0xff), pixelR(dst.Target, 3, 3))
	assert.Equal(t, byte(0), pixelR(dst.Target, 5, 5))
}

func TestWithDamageReportsFullRect(t *testing.T) {
	m := NewManager()
	var got []geom.Rect
	m.Queue(&Request{
		Output:     "eDP-1",
		Shm:        &Shm{Width: 4, Height: 4, Stride: 16, Data: make([]byte, 64)},
		WithDamage: true,
		Done:       func(damage []geom.Rect) { got = damage },
	})

	m.ProcessForOutput(render.New(), "eDP-1", nil, 1, geom.TransformNormal, render.Color{})
	assert.Equal(t, []geom.Rect{{W: 4, H: 4}}, got)
}

func TestInvalidBufferDropsRequest(t *testing.T) {
	m := NewManager()
	failed := false
	m.Queue(&Request{
		Output: "eDP-1",
		Shm:    &Shm{Width: 4, Height: 4, Stride: 13, Data: make([]byte, 52)},
		Done:   func([]geom.Rect) { t.Fatal("must not complete") },
		Fail:   func() { failed = true },
	})

	m.ProcessForOutput(render.New(), "eDP-1", nil, 1, geom.TransformNormal, render.Color{})
	assert.True(t, failed)
	assert.False(t, m.HasPending("eDP-1"), "failed requests are dropped")
}
