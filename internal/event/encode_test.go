package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, e Event) map[string]any {
	t.Helper()
	raw, err := Encode(e)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), raw[len(raw)-1], "events are newline-delimited")

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestEncodeTagOnly(t *testing.T) {
	m := decode(t, Ready{})
	assert.Equal(t, map[string]any{"event": "ready"}, m)
}

func TestEncodeWithFields(t *testing.T) {
	m := decode(t, New{ID: 3, App: "foot"})
	assert.Equal(t, "new", m["event"])
	assert.Equal(t, float64(3), m["id"])
	assert.Equal(t, "foot", m["app"])
	_, hasOutput := m["output"]
	assert.False(t, hasOutput, "empty output is omitted")
}

func TestEncodeNewWithOutput(t *testing.T) {
	m := decode(t, New{ID: 7, App: "emacs", Output: "HDMI-A-1"})
	assert.Equal(t, "HDMI-A-1", m["output"])
}

func TestEncodeOutputDetected(t *testing.T) {
	info := OutputInfo{
		Name: "eDP-1", Make: "ACME", Model: "Panel",
		WidthMM: 290, HeightMM: 160, X: 0, Y: 0, Scale: 1.5, Transform: 0,
		Modes: []OutputMode{{Width: 1920, Height: 1080, Refresh: 60000, Preferred: true}},
	}
	m := decode(t, OutputDetected{OutputInfo: info})
	assert.Equal(t, "output_detected", m["event"])
	assert.Equal(t, "eDP-1", m["name"])
	modes := m["modes"].([]any)
	require.Len(t, modes, 1)
	assert.Equal(t, float64(60000), modes[0].(map[string]any)["refresh"])
}

func TestEncodeWorkingArea(t *testing.T) {
	m := decode(t, WorkingArea{Output: "eDP-1", X: 0, Y: 30, Width: 1920, Height: 1050})
	assert.Equal(t, "working_area", m["event"])
	assert.Equal(t, float64(30), m["y"])
}
