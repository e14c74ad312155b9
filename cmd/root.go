package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ezemtsov/ewm/internal/backend"
	"github.com/ezemtsov/ewm/internal/config"
	"github.com/ezemtsov/ewm/internal/logger"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	flagHeadless        bool
	flagHeadlessOutputs string
	flagSocket          string
	flagLogLevel        string

	rootCmd = &cobra.Command{
		Use:   "ewm [PROGRAM [ARGS...]]",
		Short: "EWM - editor-driven Wayland compositor",
		Long: `EWM is a Wayland compositor driven by an external window-management
controller (a text editor process acting as layout authority). The compositor
owns the display pipeline; the controller decides where client surfaces go.

Run from a TTY for the DRM backend. When DISPLAY or WAYLAND_DISPLAY is set,
EWM is nested inside another session and a windowed backend must be used.`,
		SilenceUsage: true,
		RunE:         runCompositor,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.Flags().BoolVar(&flagHeadless, "headless", false, "run with virtual outputs instead of DRM (no hardware access)")
	rootCmd.Flags().StringVar(&flagHeadlessOutputs, "headless-outputs", "1920x1080", "virtual output sizes for --headless, comma separated WxH")
	rootCmd.Flags().StringVar(&flagSocket, "socket", "", "Wayland socket name, overriding socket_name / EWM_SOCKET_NAME (default wayland-ewm); WAYLAND_DISPLAY is not used as the socket name")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
}

func runCompositor(cmd *cobra.Command, args []string) error {
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Get()

	if flagLogLevel != "" {
		logger.SetLevel(flagLogLevel)
	} else if cfg.LogLevel != "" {
		logger.SetLevel(cfg.LogLevel)
	}

	if flagSocket != "" {
		cfg.SocketName = flagSocket
	}

	opts := backend.RunOptions{
		Config:     cfg,
		Controller: args,
	}

	if flagHeadless {
		opts.HeadlessOutputs = flagHeadlessOutputs
		return backend.RunHeadless(opts)
	}

	// DISPLAY or WAYLAND_DISPLAY means we are nested inside another session;
	// DRM master is unobtainable there.
	if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
		return fmt.Errorf("running nested (DISPLAY/WAYLAND_DISPLAY set); use --headless or run from a TTY")
	}

	return backend.RunDrm(opts)
}
