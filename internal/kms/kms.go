// Package kms is a thin Go layer over the DRM/KMS ioctl interface: master
// management, connector probing, dumb-buffer allocation, mode setting and
// page flips. Only the subset the compositor uses is covered.
package kms

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl direction bits (linux asm-generic)
const (
	iocWrite = 1
	iocRead  = 2

	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	drmIoctlBase = 'd'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | drmIoctlBase<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func io(nr uintptr) uintptr {
	return ioc(0, nr, 0)
}

func iowr(nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, nr, size)
}

// DRM ioctl request numbers
const (
	nrSetMaster       = 0x1e
	nrDropMaster      = 0x1f
	nrModeGetRes      = 0xa0
	nrModeSetCrtc     = 0xa2
	nrModeGetEncoder  = 0xa6
	nrModeGetConn     = 0xa7
	nrModePageFlip    = 0xb0
	nrModeCreateDumb  = 0xb2
	nrModeMapDumb     = 0xb3
	nrModeDestroyDumb = 0xb4
	nrModeAddFB2      = 0xb8
	nrModeRmFB        = 0xaf
	nrPrimeHandleToFD = 0x2d
)

// Connection states reported for a connector
const (
	ConnectionConnected    = 1
	ConnectionDisconnected = 2
	ConnectionUnknown      = 3
)

// DRM_MODE_TYPE_PREFERRED marks the panel's native mode
const ModeTypePreferred = 1 << 3

// DRM_MODE_PAGE_FLIP_EVENT requests a flip-complete event on the fd
const PageFlipEvent = 0x1

type modeCardRes struct {
	fbIDPtr        uint64
	crtcIDPtr      uint64
	connectorIDPtr uint64
	encoderIDPtr   uint64
	countFBs       uint32
	countCrtcs     uint32
	countConns     uint32
	countEncoders  uint32
	minWidth       uint32
	maxWidth       uint32
	minHeight      uint32
	maxHeight      uint32
}

// ModeInfo mirrors drm_mode_modeinfo
type ModeInfo struct {
	Clock      uint32
	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16
	VRefresh   uint32
	Flags      uint32
	Type       uint32
	RawName    [32]byte
}

// Name returns the modeline name (e.g. "1920x1080")
func (m *ModeInfo) Name() string {
	for i, b := range m.RawName {
		if b == 0 {
			return string(m.RawName[:i])
		}
	}
	return string(m.RawName[:])
}

// Preferred reports whether this is the connector's preferred mode
func (m *ModeInfo) Preferred() bool {
	return m.Type&ModeTypePreferred != 0
}

// RefreshMHz returns the vertical refresh in millihertz, computed from the
// pixel clock for sub-Hz precision, falling back to the rounded field.
func (m *ModeInfo) RefreshMHz() int {
	if m.Clock > 0 && m.HTotal > 0 && m.VTotal > 0 {
		num := uint64(m.Clock) * 1_000_000
		den := uint64(m.HTotal) * uint64(m.VTotal)
		if m.Flags&0x10 != 0 { // DRM_MODE_FLAG_INTERLACE
			num *= 2
		}
		return int(num / den)
	}
	return int(m.VRefresh) * 1000
}

type modeGetConnector struct {
	encodersPtr     uint64
	modesPtr        uint64
	propsPtr        uint64
	propValuesPtr   uint64
	countModes      uint32
	countProps      uint32
	countEncoders   uint32
	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32
	connection      uint32
	mmWidth         uint32
	mmHeight        uint32
	subpixel        uint32
	pad             uint32
}

type modeGetEncoder struct {
	encoderID      uint32
	encoderType    uint32
	crtcID         uint32
	possibleCrtcs  uint32
	possibleClones uint32
}

type modeCrtc struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x                uint32
	y                uint32
	gammaSize        uint32
	modeValid        uint32
	mode             ModeInfo
}

type modeCreateDumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type modeMapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type modeDestroyDumb struct {
	handle uint32
}

type modeFBCmd2 struct {
	fbID        uint32
	width       uint32
	height      uint32
	pixelFormat uint32
	flags       uint32
	handles     [4]uint32
	pitches     [4]uint32
	offsets     [4]uint32
	modifier    [4]uint64
}

type modePageFlip struct {
	crtcID   uint32
	fbID     uint32
	flags    uint32
	reserved uint32
	userData uint64
}

// Device wraps an open DRM device node
type Device struct {
	file *os.File
	path string
}

// Open opens the DRM device at path without acquiring master; master is
// handled by the session provider.
func Open(path string) (*Device, error) {
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open DRM device %s: %w", path, err)
	}
	return &Device{file: file, path: path}, nil
}

// FromFile wraps a device fd obtained from the session provider
func FromFile(file *os.File, path string) *Device {
	return &Device{file: file, path: path}
}

// Fd returns the raw device fd, readable for DRM events
func (d *Device) Fd() int {
	return int(d.file.Fd())
}

// Path returns the device node path
func (d *Device) Path() string {
	return d.path
}

// Close closes the device node
func (d *Device) Close() error {
	return d.file.Close()
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), req, uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		return errno
	}
}

// SetMaster acquires DRM master on the device
func (d *Device) SetMaster() error {
	if err := d.ioctl(io(nrSetMaster), nil); err != nil {
		return fmt.Errorf("failed to acquire DRM master: %w", err)
	}
	return nil
}

// DropMaster relinquishes DRM master (session pause)
func (d *Device) DropMaster() error {
	if err := d.ioctl(io(nrDropMaster), nil); err != nil {
		return fmt.Errorf("failed to drop DRM master: %w", err)
	}
	return nil
}

// Resources enumerates the device's KMS objects
type Resources struct {
	Connectors []uint32
	Crtcs      []uint32
	Encoders   []uint32
}

// GetResources fetches the current resource lists. DRM requires the usual
// two-call pattern: query counts, allocate, query again.
func (d *Device) GetResources() (*Resources, error) {
	for {
		var res modeCardRes
		if err := d.ioctl(iowr(nrModeGetRes, unsafe.Sizeof(res)), unsafe.Pointer(&res)); err != nil {
			return nil, fmt.Errorf("failed to get DRM resources: %w", err)
		}

		counts := res
		connectors := make([]uint32, max(1, res.countConns))
		crtcs := make([]uint32, max(1, res.countCrtcs))
		encoders := make([]uint32, max(1, res.countEncoders))
		res.connectorIDPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
		res.crtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
		res.encoderIDPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
		res.fbIDPtr = 0
		res.countFBs = 0

		if err := d.ioctl(iowr(nrModeGetRes, unsafe.Sizeof(res)), unsafe.Pointer(&res)); err != nil {
			return nil, fmt.Errorf("failed to get DRM resources: %w", err)
		}

		// A hotplug between the two calls grows the counts; retry.
		if res.countConns > counts.countConns ||
			res.countCrtcs > counts.countCrtcs ||
			res.countEncoders > counts.countEncoders {
			continue
		}

		return &Resources{
			Connectors: connectors[:res.countConns],
			Crtcs:      crtcs[:res.countCrtcs],
			Encoders:   encoders[:res.countEncoders],
		}, nil
	}
}

// Connector describes one probed connector
type Connector struct {
	ID         uint32
	Type       uint32
	TypeID     uint32
	Connection uint32
	MmWidth    uint32
	MmHeight   uint32
	EncoderID  uint32
	Encoders   []uint32
	Modes      []ModeInfo
}

// Connected reports whether a display is attached
func (c *Connector) Connected() bool {
	return c.Connection == ConnectionConnected
}

// connectorTypeNames maps DRM connector types to their conventional names
var connectorTypeNames = map[uint32]string{
	1:  "VGA",
	2:  "DVI-I",
	3:  "DVI-D",
	4:  "DVI-A",
	5:  "Composite",
	6:  "SVIDEO",
	7:  "LVDS",
	8:  "Component",
	9:  "DIN",
	10: "DP",
	11: "HDMI-A",
	12: "HDMI-B",
	13: "TV",
	14: "eDP",
	15: "Virtual",
	16: "DSI",
	17: "DPI",
	18: "Writeback",
	19: "SPI",
	20: "USB",
}

// Name returns the stable connector name, e.g. "HDMI-A-1"
func (c *Connector) Name() string {
	name, ok := connectorTypeNames[c.Type]
	if !ok {
		name = fmt.Sprintf("Unknown%d", c.Type)
	}
	return fmt.Sprintf("%s-%d", name, c.TypeID)
}

// PreferredMode picks the preferred mode, falling back to the first
func (c *Connector) PreferredMode() *ModeInfo {
	for i := range c.Modes {
		if c.Modes[i].Preferred() {
			return &c.Modes[i]
		}
	}
	if len(c.Modes) > 0 {
		return &c.Modes[0]
	}
	return nil
}

// GetConnector probes a connector, forcing a fresh probe of its modes
func (d *Device) GetConnector(id uint32) (*Connector, error) {
	for {
		probe := modeGetConnector{connectorID: id}
		if err := d.ioctl(iowr(nrModeGetConn, unsafe.Sizeof(probe)), unsafe.Pointer(&probe)); err != nil {
			return nil, fmt.Errorf("failed to probe connector %d: %w", id, err)
		}

		counts := probe
		modes := make([]ModeInfo, max(1, probe.countModes))
		encoders := make([]uint32, max(1, probe.countEncoders))
		full := modeGetConnector{
			connectorID:   id,
			countModes:    probe.countModes,
			countEncoders: probe.countEncoders,
			modesPtr:      uint64(uintptr(unsafe.Pointer(&modes[0]))),
			encodersPtr:   uint64(uintptr(unsafe.Pointer(&encoders[0]))),
		}
		if err := d.ioctl(iowr(nrModeGetConn, unsafe.Sizeof(full)), unsafe.Pointer(&full)); err != nil {
			return nil, fmt.Errorf("failed to probe connector %d: %w", id, err)
		}
		if full.countModes > counts.countModes || full.countEncoders > counts.countEncoders {
			continue
		}

		return &Connector{
			ID:         id,
			Type:       full.connectorType,
			TypeID:     full.connectorTypeID,
			Connection: full.connection,
			MmWidth:    full.mmWidth,
			MmHeight:   full.mmHeight,
			EncoderID:  full.encoderID,
			Encoders:   encoders[:full.countEncoders],
			Modes:      modes[:full.countModes],
		}, nil
	}
}

// Encoder describes one encoder
type Encoder struct {
	ID            uint32
	CrtcID        uint32
	PossibleCrtcs uint32
}

// GetEncoder fetches one encoder
func (d *Device) GetEncoder(id uint32) (*Encoder, error) {
	enc := modeGetEncoder{encoderID: id}
	if err := d.ioctl(iowr(nrModeGetEncoder, unsafe.Sizeof(enc)), unsafe.Pointer(&enc)); err != nil {
		return nil, fmt.Errorf("failed to get encoder %d: %w", id, err)
	}
	return &Encoder{ID: id, CrtcID: enc.crtcID, PossibleCrtcs: enc.possibleCrtcs}, nil
}

// SetCrtc performs a full modeset on a CRTC
func (d *Device) SetCrtc(crtc uint32, fb uint32, connectors []uint32, mode *ModeInfo) error {
	req := modeCrtc{
		crtcID: crtc,
		fbID:   fb,
	}
	if len(connectors) > 0 {
		req.setConnectorsPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
		req.countConnectors = uint32(len(connectors))
	}
	if mode != nil {
		req.mode = *mode
		req.modeValid = 1
	}
	if err := d.ioctl(iowr(nrModeSetCrtc, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("failed to set CRTC %d: %w", crtc, err)
	}
	return nil
}

// PageFlip queues a flip to fb on crtc; a flip-complete event carrying
// userData is delivered on the device fd at the next VBlank.
func (d *Device) PageFlip(crtc uint32, fb uint32, userData uint64) error {
	req := modePageFlip{
		crtcID:   crtc,
		fbID:     fb,
		flags:    PageFlipEvent,
		userData: userData,
	}
	if err := d.ioctl(iowr(nrModePageFlip, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("failed to queue page flip on CRTC %d: %w", crtc, err)
	}
	return nil
}
