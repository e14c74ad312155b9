// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the compositor configuration
type Config struct {
	// SocketName is the Wayland socket name. WAYLAND_DISPLAY in the
	// environment overrides it for nested detection only; the listening
	// socket is always created under XDG_RUNTIME_DIR.
	SocketName string `mapstructure:"socket_name"`

	// IPCSocket overrides the controller socket path
	IPCSocket string `mapstructure:"ipc_socket"`

	LogLevel string `mapstructure:"log_level"`

	// Background is the frame clear colour as 0xRRGGBB
	Background uint32 `mapstructure:"background"`

	// LockColor is the session-lock backdrop colour as 0xRRGGBB
	LockColor uint32 `mapstructure:"lock_color"`

	Xkb XkbConfig `mapstructure:"xkb"`

	// Outputs maps connector names to a fixed configuration. Outputs
	// without an entry are auto-laid-out horizontally.
	Outputs map[string]OutputConfig `mapstructure:"outputs"`
}

// XkbConfig contains the default keyboard map
type XkbConfig struct {
	Layouts string `mapstructure:"layouts"`
	Options string `mapstructure:"options"`
}

// OutputConfig is a per-connector configuration entry
type OutputConfig struct {
	X       *int     `mapstructure:"x"`
	Y       *int     `mapstructure:"y"`
	Width   *int     `mapstructure:"width"`
	Height  *int     `mapstructure:"height"`
	Refresh *int     `mapstructure:"refresh"` // mHz
	Scale   *float64 `mapstructure:"scale"`
	Enabled *bool    `mapstructure:"enabled"`
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		SocketName: "wayland-ewm",
		IPCSocket:  "",
		LogLevel:   "",
		Background: 0x1a1a1a,
		LockColor:  0x000000,
		Xkb: XkbConfig{
			Layouts: "us",
			Options: "",
		},
		Outputs: map[string]OutputConfig{},
	}

	cfg *Config
)

// Init loads the configuration from ~/.config/ewm/ewm.toml, applying
// defaults for anything missing. A missing file is not an error.
func Init() error {
	viper.SetConfigName("ewm")
	viper.SetConfigType("toml")

	if configDir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(configDir, "ewm"))
	}
	viper.AddConfigPath(".")

	viper.SetDefault("socket_name", DefaultConfig.SocketName)
	viper.SetDefault("ipc_socket", DefaultConfig.IPCSocket)
	viper.SetDefault("log_level", DefaultConfig.LogLevel)
	viper.SetDefault("background", DefaultConfig.Background)
	viper.SetDefault("lock_color", DefaultConfig.LockColor)
	viper.SetDefault("xkb.layouts", DefaultConfig.Xkb.Layouts)
	viper.SetDefault("xkb.options", DefaultConfig.Xkb.Options)

	viper.SetEnvPrefix("EWM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	c := Config{}
	if err := viper.Unmarshal(&c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg = &c
	return nil
}

// Get returns the loaded configuration, loading defaults if Init was
// never called (tests).
func Get() *Config {
	if cfg == nil {
		c := DefaultConfig
		cfg = &c
	}
	return cfg
}

// Set replaces the loaded configuration (tests)
func Set(c *Config) {
	cfg = c
}
