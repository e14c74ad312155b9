package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLayout(t *testing.T) {
	cmd, err := Decode([]byte(`{"cmd":"layout","id":3,"x":10,"y":20,"w":800,"h":600}`))
	require.NoError(t, err)
	layout, ok := cmd.(*Layout)
	require.True(t, ok)
	assert.Equal(t, uint32(3), layout.ID)
	assert.Equal(t, 800, layout.W)
}

func TestDecodeViews(t *testing.T) {
	cmd, err := Decode([]byte(`{"cmd":"views","id":2,"views":[{"x":0,"y":0,"w":960,"h":1080,"active":true},{"x":960,"y":0,"w":960,"h":1080,"active":false}]}`))
	require.NoError(t, err)
	views := cmd.(*Views)
	require.Len(t, views.Views, 2)
	assert.True(t, views.Views[0].Active)
}

func TestDecodeConfigureOutputPartial(t *testing.T) {
	cmd, err := Decode([]byte(`{"cmd":"configure-output","name":"HDMI-A-1","x":0,"y":1080}`))
	require.NoError(t, err)
	co := cmd.(*ConfigureOutput)
	require.NotNil(t, co.X)
	assert.Equal(t, 1080, *co.Y)
	assert.Nil(t, co.Width, "absent fields stay nil")
	assert.Nil(t, co.Enabled)
}

func TestDecodeInterceptKeys(t *testing.T) {
	cmd, err := Decode([]byte(`{"cmd":"intercept-keys","keys":[{"key":"left","super":true},{"key":120,"ctrl":true}]}`))
	require.NoError(t, err)
	ik := cmd.(*InterceptKeys)
	require.Len(t, ik.Keys, 2)
	assert.True(t, ik.Keys[0].Logo)
	assert.True(t, ik.Keys[1].Ctrl)
}

func TestDecodeScreenshotWithoutPath(t *testing.T) {
	cmd, err := Decode([]byte(`{"cmd":"screenshot"}`))
	require.NoError(t, err)
	assert.Equal(t, "", cmd.(*Screenshot).Path)
}

func TestDecodeGetLayouts(t *testing.T) {
	cmd, err := Decode([]byte(`{"cmd":"get-layouts"}`))
	require.NoError(t, err)
	assert.IsType(t, &GetLayouts{}, cmd)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{`))
	assert.Error(t, err, "malformed JSON")

	_, err = Decode([]byte(`{"cmd":"reboot"}`))
	assert.Error(t, err, "unknown command")

	_, err = Decode([]byte(`{"cmd":"layout","id":"three"}`))
	assert.Error(t, err, "wrong payload type")
}
