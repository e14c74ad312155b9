package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/logger"
)

// SocketName is the controller socket filename
const SocketName = "ewm.sock"

// SocketPath returns the controller socket path, using XDG_RUNTIME_DIR if
// available.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, SocketName)
	}
	return filepath.Join("/tmp", SocketName)
}

// Server accepts controller connections and decodes commands. A single
// controller is expected: a new connection replaces the previous one.
// Decoded commands are delivered on Commands() and drained by the main
// loop; the server never touches compositor state itself.
type Server struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	conn       net.Conn
	commands   chan Command
	connected  chan struct{}
	cancel     context.CancelFunc
	group      errgroup.Group
	running    bool
}

// NewServer creates a server for the given socket path; an empty path
// selects the default location.
func NewServer(socketPath string) *Server {
	if socketPath == "" {
		socketPath = SocketPath()
	}
	return &Server{
		socketPath: socketPath,
		commands:   make(chan Command, 64),
		connected:  make(chan struct{}, 1),
	}
}

// Commands returns the channel the main loop drains
func (s *Server) Commands() <-chan Command {
	return s.commands
}

// Connected signals once per controller connection so the main loop can
// replay ready and the output list.
func (s *Server) Connected() <-chan struct{} {
	return s.connected
}

// Start binds the socket and begins accepting connections
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.group.Go(func() error {
		s.acceptConnections(ctx)
		return nil
	})

	logger.Infof("Controller socket listening at %s", s.socketPath)
	return nil
}

// Stop closes the listener and any live connection
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
	s.group.Wait()
	s.mu.Lock()
	os.RemoveAll(s.socketPath)
}

func (s *Server) acceptConnections(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warnf("IPC accept error: %v", err)
				continue
			}
		}

		logger.Info("Controller connected")

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()

		select {
		case s.connected <- struct{}{}:
		default:
		}

		s.group.Go(func() error {
			s.readCommands(ctx, conn)
			return nil
		})
	}
}

func (s *Server) readCommands(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cmd, err := Decode(line)
		if err != nil {
			// A bad line never closes the socket.
			logger.Warnf("IPC decode error: %v", err)
			continue
		}
		select {
		case s.commands <- cmd:
		case <-ctx.Done():
			return
		}
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	logger.Info("Controller disconnected")
}

// SendEvent serialises an event to the connected controller. Events posted
// before a controller connects are dropped; the controller learns current
// state from the output events replayed on connect by the caller.
func (s *Server) SendEvent(e event.Event) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return
	}

	raw, err := event.Encode(e)
	if err != nil {
		logger.Warnf("failed to encode %s event: %v", e.Tag(), err)
		return
	}
	if _, err := conn.Write(raw); err != nil {
		logger.Warnf("failed to write %s event: %v", e.Tag(), err)
	}
}
