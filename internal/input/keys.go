// Package input handles keyboard/pointer routing glue: intercepted keys,
// keyboard modifiers, the kill combo, and xkb layout bookkeeping.
package input

import (
	"encoding/json"
	"fmt"

	"github.com/ezemtsov/ewm/internal/logger"
)

// XKB keysyms for the named keys the controller may intercept
const (
	KeysymLeft      = 0xff51
	KeysymUp        = 0xff52
	KeysymRight     = 0xff53
	KeysymDown      = 0xff54
	KeysymHome      = 0xff50
	KeysymEnd       = 0xff57
	KeysymPrior     = 0xff55
	KeysymNext      = 0xff56
	KeysymInsert    = 0xff63
	KeysymDelete    = 0xffff
	KeysymF1        = 0xffbe
	KeysymReturn    = 0xff0d
	KeysymTab       = 0xff09
	KeysymEscape    = 0xff1b
	KeysymBackspace = 0xff08

	keysymUpperA = 0x41
	keysymUpperZ = 0x5a
	keysymLowerA = 0x61
)

// ModifiersState is the current modifier state of the keyboard
type ModifiersState struct {
	Ctrl  bool
	Alt   bool
	Shift bool
	Logo  bool
}

// KeyID identifies a key either by raw keysym or by name
type KeyID struct {
	Keysym uint32
	Named  string
}

// UnmarshalJSON accepts either an integer keysym or a key name string
func (k *KeyID) UnmarshalJSON(raw []byte) error {
	var sym uint32
	if err := json.Unmarshal(raw, &sym); err == nil {
		k.Keysym = sym
		return nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		k.Named = name
		return nil
	}
	return fmt.Errorf("key must be a keysym or a name, got %s", raw)
}

// ToKeysym resolves the key to a keysym, mapping names. Returns 0 for
// unknown names.
func (k KeyID) ToKeysym() uint32 {
	if k.Named == "" {
		return k.Keysym
	}
	switch k.Named {
	case "left":
		return KeysymLeft
	case "right":
		return KeysymRight
	case "up":
		return KeysymUp
	case "down":
		return KeysymDown
	case "home":
		return KeysymHome
	case "end":
		return KeysymEnd
	case "prior":
		return KeysymPrior
	case "next":
		return KeysymNext
	case "insert":
		return KeysymInsert
	case "delete":
		return KeysymDelete
	case "f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9", "f10", "f11", "f12":
		var n uint32
		fmt.Sscanf(k.Named, "f%d", &n)
		return KeysymF1 + n - 1
	case "return":
		return KeysymReturn
	case "tab":
		return KeysymTab
	case "escape":
		return KeysymEscape
	case "backspace":
		return KeysymBackspace
	default:
		logger.Warnf("Unknown key name: %s", k.Named)
		return 0
	}
}

// InterceptedKey is a key + required modifiers installed by the controller
type InterceptedKey struct {
	Key   KeyID `json:"key"`
	Ctrl  bool  `json:"ctrl"`
	Alt   bool  `json:"alt"`
	Shift bool  `json:"shift"`
	Logo  bool  `json:"super"`
}

// Matches reports whether this entry matches the given keysym and
// modifiers. Letters match case-insensitively and ignore the shift
// requirement, since shift is what produced the case.
func (k InterceptedKey) Matches(keysym uint32, mods ModifiersState) bool {
	target := k.Key.ToKeysym()
	if target == 0 {
		return false
	}

	isUpperLetter := keysym >= keysymUpperA && keysym <= keysymUpperZ
	keysymMatch := target == keysym ||
		(isUpperLetter && target == keysym-keysymUpperA+keysymLowerA)

	return keysymMatch &&
		k.Ctrl == mods.Ctrl &&
		k.Alt == mods.Alt &&
		(k.Shift == mods.Shift || isUpperLetter) &&
		k.Logo == mods.Logo
}

// Evdev keycodes for Backspace: 14 on the kernel's keyboard page, 22 with
// the X11 offset applied.
const (
	backspaceEvdev = 14
	backspaceX11   = 22
)

// IsKillCombo reports whether this key event is Super+Ctrl+Backspace, the
// clean-shutdown combo.
func IsKillCombo(keycode uint32, mods ModifiersState) bool {
	return (keycode == backspaceEvdev || keycode == backspaceX11) && mods.Ctrl && mods.Logo
}
