//go:build unix

package capture

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func statDevice(path string) (DeviceInfo, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return DeviceInfo{}, notFound(path, err)
	}
	if uint32(st.Mode)&unix.S_IFMT != unix.S_IFCHR {
		return DeviceInfo{}, fmt.Errorf("%w: %s", ErrNotCharDevice, path)
	}
	rdev := uint64(st.Rdev)
	return DeviceInfo{
		Path:  path,
		Major: unix.Major(rdev),
		Minor: unix.Minor(rdev),
	}, nil
}

func openDevice(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}

func closeDevice(fd int) {
	_ = unix.Close(fd)
}
