package drm

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ezemtsov/ewm/internal/logger"
)

// HotplugMonitor watches kernel uevents for DRM connector changes. Change
// notifications arrive on a channel drained by the main loop; the reader
// goroutine never touches compositor state.
type HotplugMonitor struct {
	fd      int
	changes chan struct{}
	done    chan struct{}
}

// NewHotplugMonitor opens the kobject-uevent netlink socket
func NewHotplugMonitor() (*HotplugMonitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("failed to open uevent socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: 1, // kernel uevent multicast group
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind uevent socket: %w", err)
	}

	m := &HotplugMonitor{
		fd:      fd,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go m.read()
	return m, nil
}

// Changes delivers one token per relevant uevent burst
func (m *HotplugMonitor) Changes() <-chan struct{} {
	return m.changes
}

// Close stops the monitor
func (m *HotplugMonitor) Close() {
	close(m.done)
	unix.Close(m.fd)
}

func (m *HotplugMonitor) read() {
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(m.fd, buf)
		if err != nil {
			select {
			case <-m.done:
			default:
				logger.Debugf("uevent read ended: %v", err)
			}
			return
		}
		if !isDrmChange(buf[:n]) {
			continue
		}
		// Coalesce: one pending token is enough to trigger a rescan.
		select {
		case m.changes <- struct{}{}:
		default:
		}
	}
}

// isDrmChange matches "change" events on the drm subsystem
func isDrmChange(msg []byte) bool {
	fields := bytes.Split(msg, []byte{0})
	change, drm := false, false
	for _, f := range fields {
		switch {
		case bytes.Equal(f, []byte("ACTION=change")):
			change = true
		case bytes.Equal(f, []byte("SUBSYSTEM=drm")):
			drm = true
		}
	}
	return change && drm
}
