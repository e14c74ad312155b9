package backend

import (
	"fmt"

	"github.com/ezemtsov/ewm/internal/backend/drm"
	"github.com/ezemtsov/ewm/internal/backend/headless"
	"github.com/ezemtsov/ewm/internal/comp"
	"github.com/ezemtsov/ewm/internal/config"
	"github.com/ezemtsov/ewm/internal/cursor"
	"github.com/ezemtsov/ewm/internal/dbus"
	"github.com/ezemtsov/ewm/internal/event"
	"github.com/ezemtsov/ewm/internal/input"
	"github.com/ezemtsov/ewm/internal/ipc"
	"github.com/ezemtsov/ewm/internal/logger"
	"github.com/ezemtsov/ewm/internal/session"

	godbus "github.com/godbus/dbus/v5"
)

// RunOptions configures a compositor run
type RunOptions struct {
	Config *config.Config
	// Controller is the program (+args) spawned once the compositor is
	// up, with WAYLAND_DISPLAY pointing at us.
	Controller []string
	// HeadlessOutputs is the WxH list for the headless backend
	HeadlessOutputs string
}

// RunDrm runs the compositor standalone on a TTY. Fatal initialisation
// errors propagate; everything past init is logged and survived.
func RunDrm(opts RunOptions) error {
	logger.Info("Starting EWM with DRM backend")

	if _, err := logger.SetupFileLogging(); err != nil {
		logger.Warnf("File logging unavailable: %v", err)
	}

	sess, err := session.New()
	if err != nil {
		return fmt.Errorf("failed to create session: %w. Are you running from a TTY?", err)
	}
	defer sess.Close()
	logger.Infof("session opened, seat: %s, active: %v", sess.Seat(), sess.IsActive())

	gpuPath, err := drm.PrimaryGPUPath()
	if err != nil {
		return err
	}
	logger.Infof("Primary GPU: %s", gpuPath)

	socket, err := CreateWaylandSocket(opts.Config.SocketName)
	if err != nil {
		return err
	}
	defer socket.Close()

	e := comp.New(opts.Config)
	e.SetCursor(cursor.New())

	ipcServer := ipc.NewServer(opts.Config.IPCSocket)
	if err := ipcServer.Start(); err != nil {
		return fmt.Errorf("failed to start controller socket: %w", err)
	}
	defer ipcServer.Stop()
	e.SetEventSink(ipcServer.SendEvent)

	devices := input.NewDevices()
	if err := devices.Open(); err != nil {
		logger.Warnf("Input device setup failed: %v", err)
	}
	defer devices.Close()

	hotplug, err := drm.NewHotplugMonitor()
	if err != nil {
		return fmt.Errorf("failed to start hotplug monitor: %w", err)
	}
	defer hotplug.Close()

	b := drm.NewBackend(sess, devices, gpuPath)
	defer b.Close()

	// D-Bus portal interfaces are optional; their requests arrive on
	// channels the caller is free to ignore when they fail to start.
	outputsSnapshot := dbus.NewOutputsSnapshot()
	castRequests := make(chan dbus.CastRequest, 8)
	clientConns := make(chan godbus.UnixFD, 8)
	dbusServers := dbus.Start(outputsSnapshot, castRequests, clientConns)
	defer dbusServers.Close()

	if len(opts.Controller) > 0 {
		if _, err := SpawnController(opts.Controller[0], opts.Controller[1:], socket.Name); err != nil {
			logger.Warnf("Controller spawn failed: %v", err)
		}
	}

	loop := drm.NewLoop(b, ipcServer, sess, devices, hotplug)
	loop.Casts = castRequests
	loop.ClientConns = clientConns
	loop.Outputs = outputsSnapshot
	return loop.Run(e, input.NewKeymap())
}

// RunHeadless runs with virtual outputs, no hardware access. Used by CI
// and by nested debugging sessions.
func RunHeadless(opts RunOptions) error {
	logger.Info("Starting EWM with headless backend")

	sizes, err := headless.ParseOutputSpec(opts.HeadlessOutputs)
	if err != nil {
		return err
	}

	socket, err := CreateWaylandSocket(opts.Config.SocketName)
	if err != nil {
		return err
	}
	defer socket.Close()

	e := comp.New(opts.Config)
	e.SetCursor(cursor.New())

	ipcServer := ipc.NewServer(opts.Config.IPCSocket)
	if err := ipcServer.Start(); err != nil {
		return fmt.Errorf("failed to start controller socket: %w", err)
	}
	defer ipcServer.Stop()
	e.SetEventSink(ipcServer.SendEvent)

	b := headless.NewBackend()
	for i, size := range sizes {
		b.AddOutput(fmt.Sprintf("Virtual-%d", i+1), size.W, size.H, e)
	}

	if len(opts.Controller) > 0 {
		if _, err := SpawnController(opts.Controller[0], opts.Controller[1:], socket.Name); err != nil {
			logger.Warnf("Controller spawn failed: %v", err)
		}
	}

	e.QueueRedrawAll()

	for e.Running {
		b.RedrawQueuedOutputs(e)
		e.FlushEvents()

		select {
		case cmd := <-ipcServer.Commands():
			e.HandleCommand(cmd, b)
		case <-ipcServer.Connected():
			e.QueueEvent(event.Ready{})
			e.SendOutputEvents()
		}

		// Coalesce a burst of commands into one render.
	drain:
		for {
			select {
			case cmd := <-ipcServer.Commands():
				e.HandleCommand(cmd, b)
			default:
				break drain
			}
		}
	}
	return nil
}
