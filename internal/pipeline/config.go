package pipeline

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrInvalidConfig is wrapped by every StreamConfig validation failure.
var ErrInvalidConfig = errors.New("invalid stream config")

// Reference capture and encode settings.
const (
	DefaultDevice    = "/dev/video0"
	DefaultWidth     = 1280
	DefaultHeight    = 720
	DefaultFramerate = 15
	DefaultGOPSize   = 15
	DefaultBitrate   = 1000000
)

// StreamConfig describes what to capture and how to encode it.
// It is a value type and is never mutated after construction.
type StreamConfig struct {
	Device    string `toml:"device" json:"device"`
	Width     int    `toml:"width" json:"width"`
	Height    int    `toml:"height" json:"height"`
	Framerate int    `toml:"framerate" json:"framerate"`
	GOPSize   int    `toml:"gop_size" json:"gop_size"`
	Bitrate   int    `toml:"bitrate" json:"bitrate"`
}

// DefaultStreamConfig returns the reference configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Device:    DefaultDevice,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Framerate: DefaultFramerate,
		GOPSize:   DefaultGOPSize,
		Bitrate:   DefaultBitrate,
	}
}

// Validate reports every invalid field. Values are never clamped.
func (c StreamConfig) Validate() error {
	var err error
	if c.Device == "" {
		err = multierr.Append(err, fmt.Errorf("%w: device is empty", ErrInvalidConfig))
	}
	if c.Width <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: width must be positive, got %d", ErrInvalidConfig, c.Width))
	}
	if c.Height <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: height must be positive, got %d", ErrInvalidConfig, c.Height))
	}
	if c.Framerate <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: framerate must be positive, got %d", ErrInvalidConfig, c.Framerate))
	}
	if c.GOPSize < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: gop size must be at least 1, got %d", ErrInvalidConfig, c.GOPSize))
	}
	if c.Bitrate <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: bitrate must be positive, got %d", ErrInvalidConfig, c.Bitrate))
	}
	return err
}

// Resolution returns the frame size in WxH form.
func (c StreamConfig) Resolution() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}
