package drm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezemtsov/ewm/internal/kms"
)

func testConnector() *kms.Connector {
	return &kms.Connector{
		Modes: []kms.ModeInfo{
			{HDisplay: 1920, VDisplay: 1080, VRefresh: 60, Type: kms.ModeTypePreferred},
			{HDisplay: 1920, VDisplay: 1080, VRefresh: 144},
			{HDisplay: 1920, VDisplay: 1080, VRefresh: 120},
			{HDisplay: 1280, VDisplay: 720, VRefresh: 60},
		},
	}
}

func TestFindModePrefersRequestedRefresh(t *testing.T) {
	conn := testConnector()

	refresh := 120000
	m := findMode(conn, 1920, 1080, &refresh)
	require.NotNil(t, m)
	assert.Equal(t, uint32(120), m.VRefresh)
}

func TestFindModeHighestRefreshWithoutRequest(t *testing.T) {
	conn := testConnector()

	m := findMode(conn, 1920, 1080, nil)
	require.NotNil(t, m)
	assert.Equal(t, uint32(144), m.VRefresh)
}

func TestFindModeNoMatch(t *testing.T) {
	conn := testConnector()
	assert.Nil(t, findMode(conn, 2560, 1440, nil))
}

func TestEstimatedVBlankDurationFloor(t *testing.T) {
	s := &OutputSurface{Mode: kms.ModeInfo{VRefresh: 60}}
	assert.Equal(t, s.RefreshInterval(), s.EstimatedVBlankDuration())

	// A bogus 10kHz mode must not produce a sub-millisecond timer.
	fast := &OutputSurface{Mode: kms.ModeInfo{VRefresh: 10000}}
	assert.Equal(t, time.Millisecond, fast.EstimatedVBlankDuration())
}

func TestIsDrmChange(t *testing.T) {
	msg := []byte("change@/devices/pci0000:00/drm/card0\x00ACTION=change\x00SUBSYSTEM=drm\x00DEVNAME=dri/card0\x00")
	assert.True(t, isDrmChange(msg))

	msg = []byte("add@/devices/usb1\x00ACTION=add\x00SUBSYSTEM=usb\x00")
	assert.False(t, isDrmChange(msg))

	msg = []byte("ACTION=change\x00SUBSYSTEM=usb\x00")
	assert.False(t, isDrmChange(msg))
}
