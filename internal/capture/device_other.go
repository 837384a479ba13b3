//go:build !unix

package capture

func statDevice(path string) (DeviceInfo, error) {
	return DeviceInfo{}, ErrNotSupported
}

func openDevice(string) (int, error) { return -1, ErrNotSupported }

func closeDevice(int) {}

func query(string, *Report) error { return ErrNotSupported }
