package dbus

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/ezemtsov/ewm/internal/logger"
)

const (
	screenCastName = "org.gnome.Mutter.ScreenCast"
	screenCastPath = "/org/gnome/Mutter/ScreenCast"

	sessionIfc = "org.gnome.Mutter.ScreenCast.Session"
	streamIfc  = "org.gnome.Mutter.ScreenCast.Stream"
)

// CastRequest is a screen-cast request handed to the compositor. The
// D-Bus goroutine never touches compositor state; the main loop drains
// these.
type CastRequest struct {
	// Start begins casting the named output for a session
	Start bool
	// Stop tears the session down
	Stop      bool
	SessionID int
	Output    string
	// NodeAdded reports the PipeWire node id back once the stream is up
	NodeAdded func(nodeID uint32)
}

// screenCast serves session creation for xdg-desktop-portal
type screenCast struct {
	mu       sync.Mutex
	conn     *dbus.Conn
	outputs  *OutputsSnapshot
	casts    chan<- CastRequest
	nextID   int
	sessions map[dbus.ObjectPath]*castSession
}

type castSession struct {
	parent  *screenCast
	id      int
	path    dbus.ObjectPath
	streams []*castStream
}

type castStream struct {
	session *castSession
	path    dbus.ObjectPath
	output  string
}

// CreateSession makes a new screen-cast session object
func (sc *screenCast) CreateSession(properties map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.nextID++
	session := &castSession{
		parent: sc,
		id:     sc.nextID,
		path:   dbus.ObjectPath(fmt.Sprintf("%s/Session/u%d", screenCastPath, sc.nextID)),
	}
	sc.sessions[session.path] = session

	if err := sc.conn.Export(session, session.path, sessionIfc); err != nil {
		return "/", dbus.MakeFailedError(err)
	}
	exportIntrospection(sc.conn, session.path, sessionIfc, session)

	logger.Infof("ScreenCast session created: %s", session.path)
	return session.path, nil
}

// RecordMonitor adds a stream for one connector to the session
func (s *castSession) RecordMonitor(connector string, properties map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
	sc := s.parent
	sc.mu.Lock()
	defer sc.mu.Unlock()

	found := false
	for _, info := range sc.outputs.Get() {
		if info.Name == connector {
			found = true
			break
		}
	}
	if !found {
		return "/", dbus.MakeFailedError(fmt.Errorf("unknown connector %q", connector))
	}

	stream := &castStream{
		session: s,
		path:    dbus.ObjectPath(fmt.Sprintf("%s/Stream/u%d", s.path, len(s.streams)+1)),
		output:  connector,
	}
	s.streams = append(s.streams, stream)

	if err := sc.conn.Export(stream, stream.path, streamIfc); err != nil {
		return "/", dbus.MakeFailedError(err)
	}
	exportIntrospection(sc.conn, stream.path, streamIfc, stream)

	return stream.path, nil
}

// Start begins casting every stream of the session
func (s *castSession) Start() *dbus.Error {
	sc := s.parent
	for _, stream := range s.streams {
		stream := stream
		sc.casts <- CastRequest{
			Start:     true,
			SessionID: s.id,
			Output:    stream.output,
			NodeAdded: func(nodeID uint32) {
				// The portal waits on PipeWireStreamAdded to learn the
				// node it should connect to.
				if err := sc.conn.Emit(stream.path, streamIfc+".PipeWireStreamAdded", nodeID); err != nil {
					logger.Warnf("Failed to emit PipeWireStreamAdded: %v", err)
				}
			},
		}
	}
	return nil
}

// Stop tears the session down
func (s *castSession) Stop() *dbus.Error {
	sc := s.parent
	sc.casts <- CastRequest{Stop: true, SessionID: s.id}

	sc.mu.Lock()
	delete(sc.sessions, s.path)
	sc.mu.Unlock()

	sc.conn.Emit(s.path, sessionIfc+".Closed")
	return nil
}

func exportIntrospection(conn *dbus.Conn, path dbus.ObjectPath, ifc string, obj interface{}) {
	node := &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{{
			Name:    ifc,
			Methods: introspect.Methods(obj),
		}},
	}
	conn.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable")
}

func startScreenCast(outputs *OutputsSnapshot, casts chan<- CastRequest) (*dbus.Conn, error) {
	conn, err := connectAndRequestName(screenCastName)
	if err != nil {
		return nil, err
	}

	sc := &screenCast{
		conn:     conn,
		outputs:  outputs,
		casts:    casts,
		sessions: map[dbus.ObjectPath]*castSession{},
	}
	if err := conn.Export(sc, screenCastPath, screenCastName); err != nil {
		conn.Close()
		return nil, err
	}
	exportIntrospection(conn, screenCastPath, screenCastName, sc)
	return conn, nil
}
