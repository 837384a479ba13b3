// Package capture checks that a capture device can feed the pipeline.
package capture

import (
	"errors"
	"fmt"
	"os"
)

// Device check errors.
var (
	ErrDeviceNotFound = errors.New("capture device not found")
	ErrNotCharDevice  = errors.New("not a character device")
	ErrDeviceOpen     = errors.New("capture device cannot be opened")
	ErrNotSupported   = errors.New("device queries not supported on this platform")
)

// DeviceInfo describes a capture device node.
type DeviceInfo struct {
	Path  string `json:"path"`
	Major uint32 `json:"major"`
	Minor uint32 `json:"minor"`
}

// Format is one pixel format the device can produce.
type Format struct {
	FourCC   string `json:"fourcc"`
	Name     string `json:"name"`
	Emulated bool   `json:"emulated"`
}

// Report is the result of probing a device.
type Report struct {
	DeviceInfo
	Driver   string   `json:"driver,omitempty"`
	Card     string   `json:"card,omitempty"`
	BusInfo  string   `json:"bus_info,omitempty"`
	Capture  bool     `json:"capture"`
	Formats  []Format `json:"formats,omitempty"`
	QueryErr string   `json:"query_error,omitempty"`
}

// Check verifies that path exists, is a character device and can be
// opened for reading and writing.
func Check(path string) (DeviceInfo, error) {
	info, err := statDevice(path)
	if err != nil {
		return DeviceInfo{}, err
	}
	fd, err := openDevice(path)
	if err != nil {
		return info, fmt.Errorf("%w: %s: %w", ErrDeviceOpen, path, err)
	}
	closeDevice(fd)
	return info, nil
}

// Probe checks path and, where the platform allows, queries the driver
// for its identity and pixel formats. Query failures are reported in the
// result rather than as an error, so non-V4L2 character devices still
// pass.
func Probe(path string) (*Report, error) {
	info, err := Check(path)
	if err != nil {
		return nil, err
	}
	report := &Report{DeviceInfo: info}
	if qerr := query(path, report); qerr != nil {
		report.QueryErr = qerr.Error()
	}
	return report, nil
}

func notFound(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
	}
	return fmt.Errorf("stat %s: %w", path, err)
}

// FourCC converts a 4-byte pixel format to a human-readable string.
func FourCC(format uint32) string {
	return string([]byte{
		byte(format),
		byte(format >> 8),
		byte(format >> 16),
		byte(format >> 24),
	})
}
