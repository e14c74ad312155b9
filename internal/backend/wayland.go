// Package backend unifies the DRM and headless backends behind one
// contract and owns the main-loop entry points.
package backend

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ezemtsov/ewm/internal/logger"
)

// WaylandSocket is the compositor's listening socket. Protocol dispatch
// for accepted clients is delegated to the protocol layer; the core only
// owns the socket lifecycle.
type WaylandSocket struct {
	Name     string
	Path     string
	listener *net.UnixListener
}

// CreateWaylandSocket binds the socket under XDG_RUNTIME_DIR. Failure is
// fatal at init: a compositor without a socket serves nobody.
func CreateWaylandSocket(name string) (*WaylandSocket, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return nil, fmt.Errorf("XDG_RUNTIME_DIR is not set")
	}

	path := filepath.Join(runtimeDir, name)
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind Wayland socket %s: %w", path, err)
	}

	logger.Infof("Wayland socket: %s", path)
	return &WaylandSocket{Name: name, Path: path, listener: listener}, nil
}

// Accept hands the next client connection to the protocol layer
func (s *WaylandSocket) Accept() (*net.UnixConn, error) {
	return s.listener.AcceptUnix()
}

// Close removes the socket
func (s *WaylandSocket) Close() {
	s.listener.Close()
	os.RemoveAll(s.Path)
}

// SpawnController starts the controller process with WAYLAND_DISPLAY
// pointing at us. EWM_INIT names a file the controller auto-loads.
func SpawnController(program string, args []string, socketName string) (*exec.Cmd, error) {
	cmd := exec.Command(program, args...)
	cmd.Env = append(os.Environ(), "WAYLAND_DISPLAY="+socketName)
	if initFile := os.Getenv("EWM_INIT"); initFile != "" {
		cmd.Env = append(cmd.Env, "EWM_INIT="+initFile)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", program, err)
	}
	logger.Infof("Spawned controller: %s (pid %d)", program, cmd.Process.Pid)
	return cmd, nil
}
