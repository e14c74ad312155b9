package dbus

import (
	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/ezemtsov/ewm/internal/logger"
)

const (
	serviceChannelName = "org.gnome.Mutter.ServiceChannel"
	serviceChannelPath = "/org/gnome/Mutter/ServiceChannel"
)

// serviceChannel hands pre-connected Wayland sockets to trusted clients
// (the xdg-desktop-portal process), bypassing the public socket.
type serviceChannel struct {
	clientConns chan<- dbus.UnixFD
}

// OpenWaylandServiceConnection returns one end of a fresh socketpair; the
// other end is queued for the compositor to accept as a client.
func (s *serviceChannel) OpenWaylandServiceConnection(serviceType uint32) (dbus.UnixFD, *dbus.Error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, dbus.MakeFailedError(err)
	}

	logger.Debugf("ServiceChannel connection opened (type %d)", serviceType)
	s.clientConns <- dbus.UnixFD(fds[0])
	return dbus.UnixFD(fds[1]), nil
}

func startServiceChannel(clientConns chan<- dbus.UnixFD) (*dbus.Conn, error) {
	conn, err := connectAndRequestName(serviceChannelName)
	if err != nil {
		return nil, err
	}

	sc := &serviceChannel{clientConns: clientConns}
	if err := conn.Export(sc, serviceChannelPath, serviceChannelName); err != nil {
		conn.Close()
		return nil, err
	}
	exportIntrospection(conn, serviceChannelPath, serviceChannelName, sc)
	return conn, nil
}
