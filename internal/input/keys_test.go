package input

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIDUnmarshal(t *testing.T) {
	var k KeyID
	require.NoError(t, json.Unmarshal([]byte(`65361`), &k))
	assert.Equal(t, uint32(KeysymLeft), k.ToKeysym())

	require.NoError(t, json.Unmarshal([]byte(`"left"`), &k))
	assert.Equal(t, "left", k.Named)
	assert.Equal(t, uint32(KeysymLeft), k.ToKeysym())

	assert.Error(t, json.Unmarshal([]byte(`{}`), &k))
}

func TestNamedKeys(t *testing.T) {
	cases := map[string]uint32{
		"left":      KeysymLeft,
		"right":     KeysymRight,
		"up":        KeysymUp,
		"down":      KeysymDown,
		"f1":        KeysymF1,
		"f12":       KeysymF1 + 11,
		"return":    KeysymReturn,
		"tab":       KeysymTab,
		"escape":    KeysymEscape,
		"backspace": KeysymBackspace,
	}
	for name, want := range cases {
		assert.Equal(t, want, KeyID{Named: name}.ToKeysym(), "key %q", name)
	}
	assert.Equal(t, uint32(0), KeyID{Named: "bogus"}.ToKeysym())
}

func TestInterceptedKeyMatches(t *testing.T) {
	k := InterceptedKey{Key: KeyID{Keysym: 'a'}, Ctrl: true}

	assert.True(t, k.Matches('a', ModifiersState{Ctrl: true}))
	assert.False(t, k.Matches('a', ModifiersState{}))
	assert.False(t, k.Matches('b', ModifiersState{Ctrl: true}))
}

func TestInterceptedKeyLetterCase(t *testing.T) {
	// Table installs lowercase 'x'; shift produces uppercase 'X'. The
	// entry still matches: shift is what made the case.
	k := InterceptedKey{Key: KeyID{Keysym: 'x'}, Logo: true}
	assert.True(t, k.Matches('X', ModifiersState{Logo: true, Shift: true}))
	assert.True(t, k.Matches('x', ModifiersState{Logo: true}))
}

func TestInterceptedKeyUnknownName(t *testing.T) {
	k := InterceptedKey{Key: KeyID{Named: "bogus"}}
	assert.False(t, k.Matches('a', ModifiersState{}))
}

func TestKillCombo(t *testing.T) {
	mods := ModifiersState{Ctrl: true, Logo: true}
	assert.True(t, IsKillCombo(14, mods))
	assert.True(t, IsKillCombo(22, mods))
	assert.False(t, IsKillCombo(14, ModifiersState{Ctrl: true}))
	assert.False(t, IsKillCombo(14, ModifiersState{Logo: true}))
	assert.False(t, IsKillCombo(30, mods))
}
