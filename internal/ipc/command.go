// Package ipc implements the controller socket: newline-delimited JSON
// commands in, events out, over a Unix domain socket.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/input"
)

// Command is implemented by every controller command
type Command interface {
	isCommand()
}

// Layout places a single surface at an absolute position and size
type Layout struct {
	ID uint32 `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
	W  int    `json:"w"`
	H  int    `json:"h"`
}

// Views supplies the per-editor-window placements of a surface
type Views struct {
	ID    uint32              `json:"id"`
	Views []event.SurfaceView `json:"views"`
}

// Hide moves a surface off-screen
type Hide struct {
	ID uint32 `json:"id"`
}

// Close sends a close request to a toplevel
type Close struct {
	ID uint32 `json:"id"`
}

// Focus moves keyboard focus to a surface
type Focus struct {
	ID uint32 `json:"id"`
}

// WarpPointer moves the pointer to an absolute position
type WarpPointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Screenshot captures the next frame to a file
type Screenshot struct {
	Path string `json:"path"`
}

// InterceptKeys installs the key-interception table
type InterceptKeys struct {
	Keys []input.InterceptedKey `json:"keys"`
}

// ConfigureOutput changes mode, position, scale or enabled state
type ConfigureOutput struct {
	Name    string   `json:"name"`
	X       *int     `json:"x"`
	Y       *int     `json:"y"`
	Width   *int     `json:"width"`
	Height  *int     `json:"height"`
	Refresh *int     `json:"refresh"`
	Scale   *float64 `json:"scale"`
	Enabled *bool    `json:"enabled"`
}

// AssignOutput places a surface fullscreen on a named output
type AssignOutput struct {
	ID     uint32 `json:"id"`
	Output string `json:"output"`
}

// PrepareFrame earmarks the next new toplevel for an output
type PrepareFrame struct {
	Output string `json:"output"`
}

// ConfigureXkb reloads the keyboard map
type ConfigureXkb struct {
	Layouts string `json:"layouts"`
	Options string `json:"options"`
}

// SwitchLayout activates a named xkb layout
type SwitchLayout struct {
	Layout string `json:"layout"`
}

// GetLayouts requests the current layout list
type GetLayouts struct{}

// ImCommit commits text via the input-method bridge
type ImCommit struct {
	Text string `json:"text"`
}

// TextInputIntercept routes printable keys to the controller
type TextInputIntercept struct {
	Enabled bool `json:"enabled"`
}

func (Layout) isCommand()             {}
func (Views) isCommand()              {}
func (Hide) isCommand()               {}
func (Close) isCommand()              {}
func (Focus) isCommand()              {}
func (WarpPointer) isCommand()        {}
func (Screenshot) isCommand()         {}
func (InterceptKeys) isCommand()      {}
func (ConfigureOutput) isCommand()    {}
func (AssignOutput) isCommand()       {}
func (PrepareFrame) isCommand()       {}
func (ConfigureXkb) isCommand()       {}
func (SwitchLayout) isCommand()       {}
func (GetLayouts) isCommand()         {}
func (ImCommit) isCommand()           {}
func (TextInputIntercept) isCommand() {}

// Decode parses one command line. The "cmd" tag selects the concrete type;
// unknown tags and malformed payloads are errors the caller logs and skips.
func Decode(line []byte) (Command, error) {
	var probe struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, fmt.Errorf("malformed command line: %w", err)
	}

	into := func(c Command) (Command, error) {
		if err := json.Unmarshal(line, c); err != nil {
			return nil, fmt.Errorf("malformed %q payload: %w", probe.Cmd, err)
		}
		return c, nil
	}

	switch probe.Cmd {
	case "layout":
		return into(&Layout{})
	case "views":
		return into(&Views{})
	case "hide":
		return into(&Hide{})
	case "close":
		return into(&Close{})
	case "focus":
		return into(&Focus{})
	case "warp-pointer":
		return into(&WarpPointer{})
	case "screenshot":
		return into(&Screenshot{})
	case "intercept-keys":
		return into(&InterceptKeys{})
	case "configure-output":
		return into(&ConfigureOutput{})
	case "assign-output":
		return into(&AssignOutput{})
	case "prepare-frame":
		return into(&PrepareFrame{})
	case "configure-xkb":
		return into(&ConfigureXkb{})
	case "switch-layout":
		return into(&SwitchLayout{})
	case "get-layouts":
		return into(&GetLayouts{})
	case "im-commit":
		return into(&ImCommit{})
	case "text-input-intercept":
		return into(&TextInputIntercept{})
	default:
		return nil, fmt.Errorf("unknown command %q", probe.Cmd)
	}
}
