// Package dbus serves the org.gnome.Mutter.* interfaces that
// xdg-desktop-portal uses for screen casting and monitor enumeration.
// Each interface runs on its own connection; all compositor-affecting
// requests arrive via channels drained by the main loop.
package dbus

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/logger"
)

// nameFlags: the active session always takes over from previous
// instances, and never queues behind one.
const nameFlags = dbus.NameFlagAllowReplacement | dbus.NameFlagReplaceExisting | dbus.NameFlagDoNotQueue

// OutputsSnapshot is the thread-safe view of the output list shared with
// the D-Bus goroutines. The main loop publishes; interfaces read.
type OutputsSnapshot struct {
	mu      sync.Mutex
	outputs []event.OutputInfo
}

// NewOutputsSnapshot creates an empty snapshot
func NewOutputsSnapshot() *OutputsSnapshot {
	return &OutputsSnapshot{}
}

// Publish replaces the snapshot
func (s *OutputsSnapshot) Publish(outputs []event.OutputInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append([]event.OutputInfo(nil), outputs...)
}

// Get returns a copy of the snapshot
func (s *OutputsSnapshot) Get() []event.OutputInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.OutputInfo(nil), s.outputs...)
}

// Servers holds the per-interface connections; they must stay alive for
// the exported objects to be reachable.
type Servers struct {
	displayConfig  *dbus.Conn
	screenCast     *dbus.Conn
	serviceChannel *dbus.Conn
}

// Start brings up all three interfaces. A name grab failure disables the
// affected interface only; the compositor runs without it.
func Start(outputs *OutputsSnapshot, casts chan<- CastRequest, clientConns chan<- dbus.UnixFD) *Servers {
	s := &Servers{}

	if conn, err := startServiceChannel(clientConns); err != nil {
		logger.Warnf("Failed to start D-Bus interface %s: %v", serviceChannelName, err)
	} else {
		s.serviceChannel = conn
	}

	if conn, err := startDisplayConfig(outputs); err != nil {
		logger.Warnf("Failed to start D-Bus interface %s: %v", displayConfigName, err)
	} else {
		s.displayConfig = conn
	}

	if conn, err := startScreenCast(outputs, casts); err != nil {
		logger.Warnf("Failed to start D-Bus interface %s: %v", screenCastName, err)
	} else {
		s.screenCast = conn
	}

	logger.Info("D-Bus servers started")
	return s
}

// Close drops all connections
func (s *Servers) Close() {
	for _, conn := range []*dbus.Conn{s.displayConfig, s.screenCast, s.serviceChannel} {
		if conn != nil {
			conn.Close()
		}
	}
}

// connectAndRequestName opens a session-bus connection and grabs a
// well-known name with the replacement flags.
func connectAndRequestName(name string) (*dbus.Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(name, nameFlags)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("name %s is owned and not replaceable", name)
	}
	logger.Infof("Started D-Bus interface: %s", name)
	return conn, nil
}
