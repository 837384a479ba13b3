package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/smazurov/rtspcam/internal/ffmpeg"
	"github.com/smazurov/rtspcam/internal/logging"
	"github.com/smazurov/rtspcam/internal/media"
	"github.com/smazurov/rtspcam/internal/overlay"
	"github.com/smazurov/rtspcam/internal/pipeline"
)

// ErrInvalidOptions is wrapped by every Options validation failure.
var ErrInvalidOptions = errors.New("invalid options")

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"rtspcam.toml"`

	// Server settings
	ServerHost string `help:"HTTP API listen host" default:"" toml:"server.host" env:"SERVER_HOST"`
	ServerPort int    `help:"HTTP API port, 0 disables the API" default:"8090" toml:"server.port" env:"SERVER_PORT"`

	// RTSP settings
	RTSPHost    string `help:"Address the RTSP server binds" default:"0.0.0.0" toml:"rtsp.host" env:"RTSP_HOST"`
	RTSPService string `help:"RTSP port" default:"8554" toml:"rtsp.service" env:"RTSP_SERVICE"`
	RTSPMount   string `help:"Mount path of the camera stream" default:"/main" toml:"rtsp.mount" env:"RTSP_MOUNT"`

	// Stream settings
	StreamDevice    string `help:"Capture device" default:"/dev/video0" toml:"stream.device" env:"STREAM_DEVICE"`
	StreamWidth     int    `help:"Frame width" default:"1280" toml:"stream.width" env:"STREAM_WIDTH"`
	StreamHeight    int    `help:"Frame height" default:"720" toml:"stream.height" env:"STREAM_HEIGHT"`
	StreamFramerate int    `help:"Frames per second" default:"15" toml:"stream.framerate" env:"STREAM_FRAMERATE"`
	StreamGOPSize   int    `help:"Frames between keyframes" default:"15" toml:"stream.gop_size" env:"STREAM_GOP_SIZE" name:"stream-gop-size"`
	StreamBitrate   int    `help:"Target bitrate in bit/s" default:"1000000" toml:"stream.bitrate" env:"STREAM_BITRATE"`

	// Overlay settings
	OverlayEnabled  bool   `help:"Draw the wall-clock overlay" default:"true" toml:"overlay.enabled" env:"OVERLAY_ENABLED"`
	OverlayFormat   string `help:"Overlay format (datetime, time)" default:"datetime" toml:"overlay.format" env:"OVERLAY_FORMAT"`
	OverlayInterval string `help:"Overlay refresh interval" default:"1s" toml:"overlay.interval" env:"OVERLAY_INTERVAL"`

	// Pipeline settings
	PipelineEager           bool     `help:"Start the pipeline at startup and keep it running" default:"false" toml:"pipeline.eager" env:"PIPELINE_EAGER"`
	PipelineLinger          string   `help:"Keep the pipeline running this long after the last viewer leaves" default:"0s" toml:"pipeline.linger" env:"PIPELINE_LINGER"`
	PipelineBinary          string   `help:"ffmpeg executable" default:"ffmpeg" toml:"pipeline.binary" env:"PIPELINE_BINARY"`
	PipelineEncoder         string   `help:"H.264 encoder" default:"libx264" toml:"pipeline.encoder" env:"PIPELINE_ENCODER"`
	PipelineTestSource      bool     `help:"Use a test pattern instead of the capture device" default:"false" toml:"pipeline.test_source" env:"PIPELINE_TEST_SOURCE"`
	PipelineSkipDeviceCheck bool     `help:"Do not check the capture device at startup" default:"false" toml:"pipeline.skip_device_check" env:"PIPELINE_SKIP_DEVICE_CHECK"`
	PipelineInputOptions    string   `help:"Comma-separated ffmpeg input options" default:"" toml:"pipeline.ffmpeg_options" env:"PIPELINE_FFMPEG_OPTIONS"`
	PipelineProducerTimeout string   `help:"How long a viewer waits for the pipeline to publish" default:"10s" toml:"pipeline.producer_timeout" env:"PIPELINE_PRODUCER_TIMEOUT"`
	PipelineProgress        bool     `help:"Collect ffmpeg progress metrics" default:"true" toml:"pipeline.progress" env:"PIPELINE_PROGRESS"`
	PipelineLogLevel        string   `help:"ffmpeg log level" default:"info" toml:"pipeline.log_level" env:"PIPELINE_LOG_LEVEL"`

	// Auth settings
	AuthUsername string `help:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Feature settings
	FeaturesTallyLED     bool   `help:"Drive a board LED as tally light" default:"false" toml:"features.tally_led" env:"FEATURES_TALLY_LED" name:"features-tally-led"`
	FeaturesTallyLEDName string `help:"LED the tally drives, empty picks the first" default:"" toml:"features.tally_led_name" env:"FEATURES_TALLY_LED_NAME" name:"features-tally-led-name"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingMedia     string `help:"Media factory logging level" default:"" toml:"logging.media" env:"LOGGING_MEDIA"`
	LoggingOverlay   string `help:"Overlay logging level" default:"" toml:"logging.overlay" env:"LOGGING_OVERLAY"`
	LoggingPipeline  string `help:"Pipeline runtime logging level" default:"" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingFFmpeg    string `help:"ffmpeg output logging level" default:"" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG" name:"logging-ffmpeg"`
	LoggingStreaming string `help:"Streaming server logging level" default:"" toml:"logging.streaming" env:"LOGGING_STREAMING"`
	LoggingWebRTC    string `help:"WebRTC logging level" default:"" toml:"logging.webrtc" env:"LOGGING_WEBRTC" name:"logging-webrtc"`
	LoggingAPI       string `help:"API logging level" default:"" toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig    string `help:"Config watcher logging level" default:"" toml:"logging.config" env:"LOGGING_CONFIG"`
}

// Defaults returns the options every `default` tag describes.
func Defaults() Options {
	return Options{
		Config:                  "rtspcam.toml",
		ServerPort:              8090,
		RTSPHost:                "0.0.0.0",
		RTSPService:             "8554",
		RTSPMount:               "/main",
		StreamDevice:            pipeline.DefaultDevice,
		StreamWidth:             pipeline.DefaultWidth,
		StreamHeight:            pipeline.DefaultHeight,
		StreamFramerate:         pipeline.DefaultFramerate,
		StreamGOPSize:           pipeline.DefaultGOPSize,
		StreamBitrate:           pipeline.DefaultBitrate,
		OverlayEnabled:          true,
		OverlayFormat:           "datetime",
		OverlayInterval:         "1s",
		PipelineLinger:          "0s",
		PipelineBinary:          ffmpeg.DefaultBinary,
		PipelineEncoder:         ffmpeg.DefaultEncoder,
		PipelineProducerTimeout: "10s",
		PipelineProgress:        true,
		PipelineLogLevel:        "info",
		LoggingLevel:            "info",
		LoggingFormat:           "text",
	}
}

// Logging returns the logging configuration. Empty module levels inherit
// the global level.
func (o *Options) Logging() logging.Config {
	modules := make(map[string]string)
	for module, level := range map[string]string{
		"media":     o.LoggingMedia,
		"overlay":   o.LoggingOverlay,
		"pipeline":  o.LoggingPipeline,
		"ffmpeg":    o.LoggingFFmpeg,
		"streaming": o.LoggingStreaming,
		"webrtc":    o.LoggingWebRTC,
		"api":       o.LoggingAPI,
		"config":    o.LoggingConfig,
	} {
		if level != "" {
			modules[module] = level
		}
	}
	return logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		Modules: modules,
	}
}

// StreamConfig returns the capture and encode settings.
func (o *Options) StreamConfig() pipeline.StreamConfig {
	return pipeline.StreamConfig{
		Device:    o.StreamDevice,
		Width:     o.StreamWidth,
		Height:    o.StreamHeight,
		Framerate: o.StreamFramerate,
		GOPSize:   o.StreamGOPSize,
		Bitrate:   o.StreamBitrate,
	}
}

// Features returns the pipeline feature switches.
func (o *Options) Features() pipeline.Features {
	return pipeline.Features{Overlay: o.OverlayEnabled}
}

// Mount returns the normalized mount path.
func (o *Options) Mount() string {
	return media.NormalizeMount(o.RTSPMount)
}

// RTSPAddr is the address the RTSP server listens on.
func (o *Options) RTSPAddr() string {
	return net.JoinHostPort(o.RTSPHost, o.RTSPService)
}

// HTTPAddr is the address the HTTP API listens on, or "" when disabled.
func (o *Options) HTTPAddr() string {
	if o.ServerPort == 0 {
		return ""
	}
	return net.JoinHostPort(o.ServerHost, strconv.Itoa(o.ServerPort))
}

// OverlayRefresh parses OverlayInterval.
func (o *Options) OverlayRefresh() (time.Duration, error) {
	return parseDuration("overlay.interval", o.OverlayInterval, false)
}

// Linger parses PipelineLinger.
func (o *Options) Linger() (time.Duration, error) {
	return parseDuration("pipeline.linger", o.PipelineLinger, true)
}

// ProducerTimeout parses PipelineProducerTimeout.
func (o *Options) ProducerTimeout() (time.Duration, error) {
	return parseDuration("pipeline.producer_timeout", o.PipelineProducerTimeout, false)
}

// Formatter returns the overlay formatter.
func (o *Options) Formatter() (overlay.Formatter, error) {
	f, err := overlay.ParseFormat(o.OverlayFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: overlay.format: %w", ErrInvalidOptions, err)
	}
	return f, nil
}

// InputOptions parses PipelineInputOptions.
func (o *Options) InputOptions() ([]ffmpeg.OptionType, error) {
	var names []string
	for _, name := range strings.Split(o.PipelineInputOptions, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	opts, err := ffmpeg.ParseOptions(names)
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline.ffmpeg_options: %w", ErrInvalidOptions, err)
	}
	return opts, nil
}

// Validate reports every invalid option together.
func (o *Options) Validate() error {
	err := o.StreamConfig().Validate()

	if _, perr := strconv.ParseUint(o.RTSPService, 10, 16); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: rtsp.service must be a port number, got %q", ErrInvalidOptions, o.RTSPService))
	}
	if o.ServerPort < 0 || o.ServerPort > 65535 {
		err = multierr.Append(err, fmt.Errorf("%w: server.port out of range: %d", ErrInvalidOptions, o.ServerPort))
	}
	if o.Mount() == "/" {
		err = multierr.Append(err, fmt.Errorf("%w: rtsp.mount is empty", ErrInvalidOptions))
	}
	if _, ferr := o.Formatter(); ferr != nil {
		err = multierr.Append(err, ferr)
	}
	if _, derr := o.OverlayRefresh(); derr != nil {
		err = multierr.Append(err, derr)
	}
	if _, derr := o.Linger(); derr != nil {
		err = multierr.Append(err, derr)
	}
	if _, derr := o.ProducerTimeout(); derr != nil {
		err = multierr.Append(err, derr)
	}
	if _, oerr := o.InputOptions(); oerr != nil {
		err = multierr.Append(err, oerr)
	}
	if (o.AuthUsername == "") != (o.AuthPassword == "") {
		err = multierr.Append(err, fmt.Errorf("%w: auth.username and auth.password must be set together", ErrInvalidOptions))
	}
	return err
}

// PipelineChanged reports whether o and other would build different
// pipelines, so that a reload must replace the mounted factory.
func (o *Options) PipelineChanged(other *Options) bool {
	if o.StreamConfig() != other.StreamConfig() || o.Features() != other.Features() {
		return true
	}
	return o.Mount() != other.Mount() || o.PipelineEager != other.PipelineEager || o.PipelineLinger != other.PipelineLinger
}

// RestartRequired lists the settings that differ between o and other but
// are only read at startup.
func (o *Options) RestartRequired(other *Options) []string {
	var keys []string
	check := func(key string, changed bool) {
		if changed {
			keys = append(keys, key)
		}
	}
	check("server.host", o.ServerHost != other.ServerHost)
	check("server.port", o.ServerPort != other.ServerPort)
	check("rtsp.host", o.RTSPHost != other.RTSPHost)
	check("rtsp.service", o.RTSPService != other.RTSPService)
	check("overlay.format", o.OverlayFormat != other.OverlayFormat)
	check("overlay.interval", o.OverlayInterval != other.OverlayInterval)
	check("pipeline.binary", o.PipelineBinary != other.PipelineBinary)
	check("pipeline.encoder", o.PipelineEncoder != other.PipelineEncoder)
	check("pipeline.test_source", o.PipelineTestSource != other.PipelineTestSource)
	check("pipeline.ffmpeg_options", o.PipelineInputOptions != other.PipelineInputOptions)
	check("pipeline.producer_timeout", o.PipelineProducerTimeout != other.PipelineProducerTimeout)
	check("pipeline.progress", o.PipelineProgress != other.PipelineProgress)
	check("pipeline.log_level", o.PipelineLogLevel != other.PipelineLogLevel)
	check("features.tally_led", o.FeaturesTallyLED != other.FeaturesTallyLED || o.FeaturesTallyLEDName != other.FeaturesTallyLEDName)
	check("auth", o.AuthUsername != other.AuthUsername || o.AuthPassword != other.AuthPassword)
	return keys
}

func parseDuration(key, value string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidOptions, key, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidOptions, key, value)
	}
	return d, nil
}
