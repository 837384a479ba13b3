//go:build linux

package capture

import (
	"bytes"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl requests, identical on every Linux architecture since neither
// struct carries pointers.
const (
	vidiocQuerycap = 0x80685600
	vidiocEnumFmt  = 0xc0405602
)

const (
	capVideoCapture  = 0x00000001
	capDeviceCaps    = 0x80000000
	bufTypeCapture   = 1
	fmtFlagEmulated  = 0x0002
	maxFormatEntries = 64
)

// Compile-time struct size assertions.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
)

type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

type v4l2Fmtdesc struct {
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelformat uint32
	mbusCode    uint32
	reserved    [3]uint32
}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func query(path string, r *Report) error {
	fd, err := openDevice(path)
	if err != nil {
		return err
	}
	defer closeDevice(fd)

	var c v4l2Capability
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&c)); err != nil {
		return fmt.Errorf("VIDIOC_QUERYCAP: %w", err)
	}
	r.Driver = cstr(c.driver[:])
	r.Card = cstr(c.card[:])
	r.BusInfo = cstr(c.busInfo[:])

	caps := c.capabilities
	if caps&capDeviceCaps != 0 {
		caps = c.deviceCaps
	}
	r.Capture = caps&capVideoCapture != 0
	if !r.Capture {
		return nil
	}

	for i := uint32(0); i < maxFormatEntries; i++ {
		d := v4l2Fmtdesc{index: i, typ: bufTypeCapture}
		if err := ioctl(fd, vidiocEnumFmt, unsafe.Pointer(&d)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				break
			}
			return fmt.Errorf("VIDIOC_ENUM_FMT %d: %w", i, err)
		}
		r.Formats = append(r.Formats, Format{
			FourCC:   FourCC(d.pixelformat),
			Name:     cstr(d.description[:]),
			Emulated: d.flags&fmtFlagEmulated != 0,
		})
	}
	return nil
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
