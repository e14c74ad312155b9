package session

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Direct is the fallback session for running as root on a bare VT with no
// logind: devices are opened directly and the session is permanently
// active. It still sends the initial Activate so the deferred DRM
// initialisation path is the same for both backends.
type Direct struct {
	events chan Event
}

// NewDirect creates a direct-access session
func NewDirect() (*Direct, error) {
	if os.Geteuid() != 0 {
		return nil, fmt.Errorf("direct session requires root (no logind session found)")
	}
	s := &Direct{events: make(chan Event, 1)}
	s.events <- Event{Kind: Activate}
	return s, nil
}

func (s *Direct) Seat() string {
	return "seat0"
}

func (s *Direct) IsActive() bool {
	return true
}

func (s *Direct) Events() <-chan Event {
	return s.events
}

func (s *Direct) OpenDevice(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
}

func (s *Direct) CloseDevice(f *os.File) error {
	return f.Close()
}

func (s *Direct) Close() error {
	return nil
}
