package dbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	displayConfigName = "org.gnome.Mutter.DisplayConfig"
	displayConfigPath = "/org/gnome/Mutter/DisplayConfig"
)

// monitorSpec is (connector, vendor, product, serial)
type monitorSpec struct {
	Connector string
	Vendor    string
	Product   string
	Serial    string
}

// monitorMode mirrors mutter's (s i i d d ad a{sv}) mode tuple
type monitorMode struct {
	ID         string
	Width      int32
	Height     int32
	Refresh    float64
	Scale      float64
	Scales     []float64
	Properties map[string]dbus.Variant
}

type monitor struct {
	Spec       monitorSpec
	Modes      []monitorMode
	Properties map[string]dbus.Variant
}

type logicalMonitor struct {
	X         int32
	Y         int32
	Scale     float64
	Transform uint32
	Primary   bool
	Monitors  []monitorSpec
	Properties map[string]dbus.Variant
}

// displayConfig serves GetCurrentState for the portal's monitor picker
type displayConfig struct {
	outputs *OutputsSnapshot
	serial  uint32
}

// GetCurrentState returns the monitor layout in mutter's schema
func (d *displayConfig) GetCurrentState() (uint32, []monitor, []logicalMonitor, map[string]dbus.Variant, *dbus.Error) {
	d.serial++

	var monitors []monitor
	var logical []logicalMonitor
	for _, info := range d.outputs.Get() {
		spec := monitorSpec{
			Connector: info.Name,
			Vendor:    info.Make,
			Product:   info.Model,
			Serial:    "0x00000000",
		}

		var modes []monitorMode
		for _, m := range info.Modes {
			props := map[string]dbus.Variant{}
			if m.Preferred {
				props["is-preferred"] = dbus.MakeVariant(true)
				props["is-current"] = dbus.MakeVariant(true)
			}
			modes = append(modes, monitorMode{
				ID:         modeID(m.Width, m.Height, m.Refresh),
				Width:      int32(m.Width),
				Height:     int32(m.Height),
				Refresh:    float64(m.Refresh) / 1000,
				Scale:      info.Scale,
				Scales:     []float64{1, 1.25, 1.5, 2},
				Properties: props,
			})
		}

		monitors = append(monitors, monitor{
			Spec:  spec,
			Modes: modes,
			Properties: map[string]dbus.Variant{
				"display-name": dbus.MakeVariant(info.Name),
			},
		})
		logical = append(logical, logicalMonitor{
			X:         int32(info.X),
			Y:         int32(info.Y),
			Scale:     info.Scale,
			Transform: uint32(info.Transform),
			Primary:   len(logical) == 0,
			Monitors:  []monitorSpec{spec},
			Properties: map[string]dbus.Variant{},
		})
	}

	props := map[string]dbus.Variant{
		"supports-mirroring":       dbus.MakeVariant(false),
		"supports-changing-layout": dbus.MakeVariant(false),
	}
	return d.serial, monitors, logical, props, nil
}

func modeID(w, h, refreshMHz int) string {
	return fmt.Sprintf("%dx%d@%d", w, h, refreshMHz)
}

func startDisplayConfig(outputs *OutputsSnapshot) (*dbus.Conn, error) {
	conn, err := connectAndRequestName(displayConfigName)
	if err != nil {
		return nil, err
	}

	dc := &displayConfig{outputs: outputs}
	if err := conn.Export(dc, displayConfigPath, displayConfigName); err != nil {
		conn.Close()
		return nil, err
	}
	node := &introspect.Node{
		Name: displayConfigPath,
		Interfaces: []introspect.Interface{{
			Name:    displayConfigName,
			Methods: introspect.Methods(dc),
		}},
	}
	conn.Export(introspect.NewIntrospectable(node), displayConfigPath,
		"org.freedesktop.DBus.Introspectable")
	return conn, nil
}
