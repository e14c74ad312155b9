package kms

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DumbBuffer is a CPU-mapped scanout buffer. The software renderer draws
// into Data; AddFB2 makes it a framebuffer the CRTC can present.
type DumbBuffer struct {
	dev    *Device
	Handle uint32
	FB     uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Size   uint64
	Data   []byte
}

// CreateDumbBuffer allocates and maps a 32bpp dumb buffer and attaches a
// framebuffer object with the given format.
func (d *Device) CreateDumbBuffer(width, height uint32, format uint32) (*DumbBuffer, error) {
	create := modeCreateDumb{
		width:  width,
		height: height,
		bpp:    32,
	}
	if err := d.ioctl(iowr(nrModeCreateDumb, unsafe.Sizeof(create)), unsafe.Pointer(&create)); err != nil {
		return nil, fmt.Errorf("failed to create dumb buffer %dx%d: %w", width, height, err)
	}

	buf := &DumbBuffer{
		dev:    d,
		Handle: create.handle,
		Width:  width,
		Height: height,
		Pitch:  create.pitch,
		Size:   create.size,
	}

	fb := modeFBCmd2{
		width:       width,
		height:      height,
		pixelFormat: format,
		handles:     [4]uint32{create.handle},
		pitches:     [4]uint32{create.pitch},
	}
	if err := d.ioctl(iowr(nrModeAddFB2, unsafe.Sizeof(fb)), unsafe.Pointer(&fb)); err != nil {
		buf.destroyHandle()
		return nil, fmt.Errorf("failed to add framebuffer: %w", err)
	}
	buf.FB = fb.fbID

	mapReq := modeMapDumb{handle: create.handle}
	if err := d.ioctl(iowr(nrModeMapDumb, unsafe.Sizeof(mapReq)), unsafe.Pointer(&mapReq)); err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("failed to map dumb buffer: %w", err)
	}

	data, err := unix.Mmap(d.Fd(), int64(mapReq.offset), int(create.size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("failed to mmap dumb buffer: %w", err)
	}
	buf.Data = data

	return buf, nil
}

type primeHandle struct {
	handle uint32
	flags  uint32
	fd     int32
}

// ExportDmabuf exports the buffer's handle as a dmabuf fd for zero-copy
// sharing (screen casting).
func (b *DumbBuffer) ExportDmabuf() (int, error) {
	req := primeHandle{
		handle: b.Handle,
		flags:  unix.O_CLOEXEC | unix.O_RDWR,
	}
	if err := b.dev.ioctl(iowr(nrPrimeHandleToFD, unsafe.Sizeof(req)), unsafe.Pointer(&req)); err != nil {
		return -1, fmt.Errorf("failed to export dmabuf: %w", err)
	}
	return int(req.fd), nil
}

// Destroy unmaps the buffer and releases the framebuffer and handle
func (b *DumbBuffer) Destroy() {
	if b.Data != nil {
		unix.Munmap(b.Data)
		b.Data = nil
	}
	if b.FB != 0 {
		fbID := b.FB
		b.dev.ioctl(iowr(nrModeRmFB, unsafe.Sizeof(fbID)), unsafe.Pointer(&fbID))
		b.FB = 0
	}
	b.destroyHandle()
}

func (b *DumbBuffer) destroyHandle() {
	if b.Handle != 0 {
		destroy := modeDestroyDumb{handle: b.Handle}
		b.dev.ioctl(iowr(nrModeDestroyDumb, unsafe.Sizeof(destroy)), unsafe.Pointer(&destroy))
		b.Handle = 0
	}
}
