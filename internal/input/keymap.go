package input

// Keymap translates evdev keycodes into keysyms and UTF-8 under a builtin
// US layout, tracking modifier state. It stands in until the keyboard
// layer compiles a real xkb map for the configured layouts; keysym values
// match XKB so the interception tables work unchanged.
type Keymap struct {
	mods ModifiersState
}

// evdev modifier keycodes
const (
	codeLeftCtrl   = 29
	codeLeftShift  = 42
	codeRightShift = 54
	codeLeftAlt    = 56
	codeRightCtrl  = 97
	codeRightAlt   = 100
	codeLeftMeta   = 125
	codeRightMeta  = 126
)

// usLower maps evdev keycodes to unshifted characters
var usLower = map[uint32]rune{
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5', 7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	12: '-', 13: '=',
	16: 'q', 17: 'w', 18: 'e', 19: 'r', 20: 't', 21: 'y', 22: 'u', 23: 'i', 24: 'o', 25: 'p',
	26: '[', 27: ']',
	30: 'a', 31: 's', 32: 'd', 33: 'f', 34: 'g', 35: 'h', 36: 'j', 37: 'k', 38: 'l',
	39: ';', 40: '\'', 41: '`',
	44: 'z', 45: 'x', 46: 'c', 47: 'v', 48: 'b', 49: 'n', 50: 'm',
	51: ',', 52: '.', 53: '/', 43: '\\',
	57: ' ',
}

// usUpper maps evdev keycodes to shifted characters
var usUpper = map[uint32]rune{
	2: '!', 3: '@', 4: '#', 5: '$', 6: '%', 7: '^', 8: '&', 9: '*', 10: '(', 11: ')',
	12: '_', 13: '+',
	16: 'Q', 17: 'W', 18: 'E', 19: 'R', 20: 'T', 21: 'Y', 22: 'U', 23: 'I', 24: 'O', 25: 'P',
	26: '{', 27: '}',
	30: 'A', 31: 'S', 32: 'D', 33: 'F', 34: 'G', 35: 'H', 36: 'J', 37: 'K', 38: 'L',
	39: ':', 40: '"', 41: '~',
	44: 'Z', 45: 'X', 46: 'C', 47: 'V', 48: 'B', 49: 'N', 50: 'M',
	51: '<', 52: '>', 53: '?', 43: '|',
	57: ' ',
}

// special maps evdev keycodes to non-character keysyms
var special = map[uint32]uint32{
	1:   KeysymEscape,
	14:  KeysymBackspace,
	15:  KeysymTab,
	28:  KeysymReturn,
	102: KeysymHome,
	103: KeysymUp,
	104: KeysymPrior,
	105: KeysymLeft,
	106: KeysymRight,
	107: KeysymEnd,
	108: KeysymDown,
	109: KeysymNext,
	110: KeysymInsert,
	111: KeysymDelete,
}

// NewKeymap creates a keymap with no modifiers held
func NewKeymap() *Keymap {
	return &Keymap{}
}

// Modifiers returns the current modifier state
func (k *Keymap) Modifiers() ModifiersState {
	return k.mods
}

// Translate resolves one key event to a keysym and UTF-8 string. Modifier
// keys update state and yield no keysym.
func (k *Keymap) Translate(code uint32, pressed bool) (uint32, string) {
	switch code {
	case codeLeftCtrl, codeRightCtrl:
		k.mods.Ctrl = pressed
		return 0, ""
	case codeLeftShift, codeRightShift:
		k.mods.Shift = pressed
		return 0, ""
	case codeLeftAlt, codeRightAlt:
		k.mods.Alt = pressed
		return 0, ""
	case codeLeftMeta, codeRightMeta:
		k.mods.Logo = pressed
		return 0, ""
	}

	if sym, ok := special[code]; ok {
		return sym, ""
	}

	// Function keys F1..F10 are contiguous from 59.
	if code >= 59 && code <= 68 {
		return KeysymF1 + (code - 59), ""
	}
	if code == 87 || code == 88 { // F11, F12
		return KeysymF1 + 10 + (code - 87), ""
	}

	table := usLower
	if k.mods.Shift {
		table = usUpper
	}
	if r, ok := table[code]; ok {
		// Latin-1 keysyms equal their character codes.
		if k.mods.Ctrl || k.mods.Alt || k.mods.Logo {
			return uint32(r), ""
		}
		return uint32(r), string(r)
	}
	return 0, ""
}
