package input

import (
	"strings"
)

// XkbState tracks the configured keyboard layouts and the active one. The
// actual keymap compilation lives with the keyboard device; this is the
// name bookkeeping the controller drives.
type XkbState struct {
	LayoutNames []string
	Current     int
	Options     string
}

// Configure replaces the layout list from a comma-separated string. Returns
// false when no valid layout names were supplied.
func (x *XkbState) Configure(layouts, options string) bool {
	names := []string{}
	for _, s := range strings.Split(layouts, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			names = append(names, s)
		}
	}
	if len(names) == 0 {
		return false
	}
	x.LayoutNames = names
	x.Current = 0
	x.Options = options
	return true
}

// Switch activates a named layout. Returns its index and whether it was
// found.
func (x *XkbState) Switch(layout string) (int, bool) {
	for i, name := range x.LayoutNames {
		if name == layout {
			x.Current = i
			return i, true
		}
	}
	return 0, false
}
