package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXkbConfigure(t *testing.T) {
	var x XkbState

	assert.True(t, x.Configure("us, de ,ru", "ctrl:nocaps"))
	assert.Equal(t, []string{"us", "de", "ru"}, x.LayoutNames)
	assert.Equal(t, 0, x.Current)
	assert.Equal(t, "ctrl:nocaps", x.Options)

	assert.False(t, x.Configure(" , ", ""))
}

func TestXkbSwitch(t *testing.T) {
	var x XkbState
	x.Configure("us,de", "")

	idx, ok := x.Switch("de")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, x.Current)

	_, ok = x.Switch("fr")
	assert.False(t, ok)
	assert.Equal(t, 1, x.Current)
}
