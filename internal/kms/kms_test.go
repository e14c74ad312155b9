package kms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mode(w, h uint16, clock uint32, htotal, vtotal uint16, name string) ModeInfo {
	m := ModeInfo{
		Clock:    clock,
		HDisplay: w, HTotal: htotal,
		VDisplay: h, VTotal: vtotal,
	}
	copy(m.RawName[:], name)
	return m
}

func TestModeName(t *testing.T) {
	m := mode(1920, 1080, 148500, 2200, 1125, "1920x1080")
	assert.Equal(t, "1920x1080", m.Name())
}

func TestRefreshFromPixelClock(t *testing.T) {
	// Classic 1080p60: 148.5MHz / (2200*1125) = 60Hz exactly.
	m := mode(1920, 1080, 148500, 2200, 1125, "1920x1080")
	assert.Equal(t, 60000, m.RefreshMHz())
}

func TestRefreshFallbackToVRefresh(t *testing.T) {
	m := ModeInfo{VRefresh: 75}
	assert.Equal(t, 75000, m.RefreshMHz())
}

func TestPreferredFlag(t *testing.T) {
	m := ModeInfo{Type: ModeTypePreferred}
	assert.True(t, m.Preferred())
	empty := ModeInfo{}
	assert.False(t, empty.Preferred())
}

func TestConnectorName(t *testing.T) {
	c := Connector{Type: 11, TypeID: 1}
	assert.Equal(t, "HDMI-A-1", c.Name())

	c = Connector{Type: 14, TypeID: 2}
	assert.Equal(t, "eDP-2", c.Name())

	c = Connector{Type: 99, TypeID: 1}
	assert.Equal(t, "Unknown99-1", c.Name())
}

func TestPreferredMode(t *testing.T) {
	c := Connector{Modes: []ModeInfo{
		mode(1280, 720, 74250, 1650, 750, "1280x720"),
		{HDisplay: 1920, VDisplay: 1080, Type: ModeTypePreferred, VRefresh: 60},
	}}
	m := c.PreferredMode()
	assert.Equal(t, uint16(1920), m.HDisplay)

	c = Connector{Modes: []ModeInfo{mode(1280, 720, 74250, 1650, 750, "1280x720")}}
	assert.Equal(t, uint16(1280), c.PreferredMode().HDisplay)

	assert.Nil(t, (&Connector{}).PreferredMode())
}
