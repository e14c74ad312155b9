package session

import (
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/ezemtsov/ewm/internal/logger"
)

const (
	login1Dest        = "org.freedesktop.login1"
	login1ManagerPath = "/org/freedesktop/login1"
	login1ManagerIfc  = "org.freedesktop.login1.Manager"
	login1SessionIfc  = "org.freedesktop.login1.Session"
)

// Logind is a session backed by systemd-logind over the system bus. It
// takes control of the session, opens devices via TakeDevice (which grants
// DRM master to the active VT), and translates PauseDevice/ResumeDevice
// signals into session events.
type Logind struct {
	conn        *dbus.Conn
	sessionPath dbus.ObjectPath
	seat        string

	mu      sync.Mutex
	active  bool
	devices map[string]uint64 // path -> rdev, for ReleaseDevice

	events  chan Event
	signals chan *dbus.Signal
	done    chan struct{}
}

// NewLogind connects to logind and takes control of the calling process's
// session.
func NewLogind() (*Logind, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	manager := conn.Object(login1Dest, login1ManagerPath)

	var sessionPath dbus.ObjectPath
	if err := manager.Call(login1ManagerIfc+".GetSession", 0, "auto").Store(&sessionPath); err != nil {
		// Older logind: resolve by PID.
		if err := manager.Call(login1ManagerIfc+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&sessionPath); err != nil {
			return nil, fmt.Errorf("failed to find logind session: %w", err)
		}
	}

	session := conn.Object(login1Dest, sessionPath)

	var seat struct {
		ID   string
		Path dbus.ObjectPath
	}
	if prop, err := session.GetProperty(login1SessionIfc + ".Seat"); err == nil {
		prop.Store(&seat)
	}
	if seat.ID == "" {
		seat.ID = "seat0"
	}

	var active bool
	if prop, err := session.GetProperty(login1SessionIfc + ".Active"); err == nil {
		prop.Store(&active)
	}

	if err := session.Call(login1SessionIfc+".TakeControl", 0, false).Err; err != nil {
		return nil, fmt.Errorf("failed to take control of session %s: %w", sessionPath, err)
	}

	s := &Logind{
		conn:        conn,
		sessionPath: sessionPath,
		seat:        seat.ID,
		active:      active,
		devices:     map[string]uint64{},
		events:      make(chan Event, 8),
		signals:     make(chan *dbus.Signal, 16),
		done:        make(chan struct{}),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(sessionPath),
		dbus.WithMatchInterface(login1SessionIfc),
	); err != nil {
		return nil, fmt.Errorf("failed to subscribe to session signals: %w", err)
	}
	conn.Signal(s.signals)
	go s.pumpSignals()

	logger.Infof("logind session opened: %s (seat %s, active %v)", sessionPath, seat.ID, active)
	return s, nil
}

func (s *Logind) Seat() string {
	return s.seat
}

func (s *Logind) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Logind) Events() <-chan Event {
	return s.events
}

// OpenDevice opens a device through logind TakeDevice
func (s *Logind) OpenDevice(path string) (*os.File, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	major := unix.Major(uint64(st.Rdev))
	minor := unix.Minor(uint64(st.Rdev))

	session := s.conn.Object(login1Dest, s.sessionPath)
	var fd dbus.UnixFD
	var inactive bool
	if err := session.Call(login1SessionIfc+".TakeDevice", 0, major, minor).Store(&fd, &inactive); err != nil {
		return nil, fmt.Errorf("failed to take device %s: %w", path, err)
	}

	unix.SetNonblock(int(fd), true)

	s.mu.Lock()
	s.devices[path] = uint64(st.Rdev)
	s.mu.Unlock()

	return os.NewFile(uintptr(fd), path), nil
}

// CloseDevice releases a device back to logind
func (s *Logind) CloseDevice(f *os.File) error {
	s.mu.Lock()
	rdev, ok := s.devices[f.Name()]
	delete(s.devices, f.Name())
	s.mu.Unlock()

	if ok {
		session := s.conn.Object(login1Dest, s.sessionPath)
		major := unix.Major(rdev)
		minor := unix.Minor(rdev)
		if err := session.Call(login1SessionIfc+".ReleaseDevice", 0, major, minor).Err; err != nil {
			logger.Warnf("failed to release device %s: %v", f.Name(), err)
		}
	}
	return f.Close()
}

// Close releases session control
func (s *Logind) Close() error {
	close(s.done)
	session := s.conn.Object(login1Dest, s.sessionPath)
	session.Call(login1SessionIfc+".ReleaseControl", 0)
	return s.conn.Close()
}

// pumpSignals translates logind device signals into session events. A
// PauseDevice of type "pause" must be acked with PauseDeviceComplete or
// logind force-revokes after a timeout.
func (s *Logind) pumpSignals() {
	for {
		select {
		case <-s.done:
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			switch sig.Name {
			case login1SessionIfc + ".PauseDevice":
				if len(sig.Body) < 3 {
					continue
				}
				major, _ := sig.Body[0].(uint32)
				minor, _ := sig.Body[1].(uint32)
				pauseType, _ := sig.Body[2].(string)
				logger.Debugf("PauseDevice %d:%d (%s)", major, minor, pauseType)

				if pauseType == "pause" {
					session := s.conn.Object(login1Dest, s.sessionPath)
					session.Call(login1SessionIfc+".PauseDeviceComplete", 0, major, minor)
				}

				s.mu.Lock()
				wasActive := s.active
				s.active = false
				s.mu.Unlock()
				if wasActive {
					s.events <- Event{Kind: Pause}
				}

			case login1SessionIfc + ".ResumeDevice":
				s.mu.Lock()
				wasActive := s.active
				s.active = true
				s.mu.Unlock()
				if !wasActive {
					s.events <- Event{Kind: Activate}
				}
			}
		}
	}
}
