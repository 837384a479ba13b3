//go:build unix && !linux

package capture

func query(string, *Report) error { return ErrNotSupported }
