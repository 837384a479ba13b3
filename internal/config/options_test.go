package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/rtspcam/internal/pipeline"
)

func TestDefaultsAreValid(t *testing.T) {
	opts := Defaults()
	if err := opts.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if opts.StreamConfig() != pipeline.DefaultStreamConfig() {
		t.Errorf("expected reference stream config, got %+v", opts.StreamConfig())
	}
	if !opts.Features().Overlay {
		t.Error("expected overlay enabled by default")
	}
	if opts.RTSPAddr() != "0.0.0.0:8554" {
		t.Errorf("expected 0.0.0.0:8554, got %s", opts.RTSPAddr())
	}
	if opts.Mount() != "/main" {
		t.Errorf("expected /main, got %s", opts.Mount())
	}
}

func TestOptionsFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtspcam.toml")
	content := `
[rtsp]
service = "9554"
mount = "cam"

[stream]
device = "/dev/video2"
width = 640
height = 480
gop_size = 30

[overlay]
format = "time"

[pipeline]
linger = "5s"
ffmpeg_options = ["low_latency"]

[logging]
media = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := Defaults()
	opts.Config = path
	if err := LoadConfig(&opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.RTSPAddr() != "0.0.0.0:9554" {
		t.Errorf("expected 0.0.0.0:9554, got %s", opts.RTSPAddr())
	}
	if opts.Mount() != "/cam" {
		t.Errorf("expected /cam, got %s", opts.Mount())
	}
	sc := opts.StreamConfig()
	if sc.Device != "/dev/video2" || sc.Width != 640 || sc.Height != 480 || sc.GOPSize != 30 {
		t.Errorf("unexpected stream config %+v", sc)
	}
	if sc.Framerate != pipeline.DefaultFramerate {
		t.Errorf("expected default framerate kept, got %d", sc.Framerate)
	}
	linger, err := opts.Linger()
	if err != nil || linger != 5*time.Second {
		t.Errorf("expected 5s linger, got %v (%v)", linger, err)
	}
	if f, err := opts.Formatter(); err != nil || f.Name() != "time" {
		t.Errorf("expected time formatter, got %v (%v)", f, err)
	}
	if in, err := opts.InputOptions(); err != nil || len(in) != 1 || in[0] != "low_latency" {
		t.Errorf("expected [low_latency], got %v (%v)", in, err)
	}
	if got := opts.Logging().Modules["media"]; got != "debug" {
		t.Errorf("expected media=debug, got %q", got)
	}
	if _, ok := opts.Logging().Modules["api"]; ok {
		t.Error("expected unset module levels to be omitted")
	}
}

func TestOptionsEnvOverride(t *testing.T) {
	t.Setenv("RTSPCAM_STREAM_BITRATE", "2500000")
	t.Setenv("RTSPCAM_OVERLAY_ENABLED", "false")

	opts := Defaults()
	opts.Config = ""
	if err := LoadConfig(&opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.StreamBitrate != 2500000 {
		t.Errorf("expected bitrate 2500000, got %d", opts.StreamBitrate)
	}
	if opts.Features().Overlay {
		t.Error("expected overlay disabled")
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		want   string
	}{
		{"zero width", func(o *Options) { o.StreamWidth = 0 }, "width"},
		{"bad port", func(o *Options) { o.RTSPService = "rtsp" }, "rtsp.service"},
		{"empty mount", func(o *Options) { o.RTSPMount = "/" }, "rtsp.mount"},
		{"bad format", func(o *Options) { o.OverlayFormat = "epoch" }, "overlay.format"},
		{"zero interval", func(o *Options) { o.OverlayInterval = "0s" }, "overlay.interval"},
		{"bad linger", func(o *Options) { o.PipelineLinger = "soon" }, "pipeline.linger"},
		{"negative linger", func(o *Options) { o.PipelineLinger = "-1s" }, "pipeline.linger"},
		{"bad timeout", func(o *Options) { o.PipelineProducerTimeout = "0s" }, "pipeline.producer_timeout"},
		{"unknown ffmpeg option", func(o *Options) { o.PipelineInputOptions = "low_latency,nope" }, "pipeline.ffmpeg_options"},
		{"half auth", func(o *Options) { o.AuthUsername = "admin" }, "auth"},
		{"server port", func(o *Options) { o.ServerPort = 70000 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Defaults()
			tt.modify(&opts)
			err := opts.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestOptionsValidateReportsAll(t *testing.T) {
	opts := Defaults()
	opts.StreamWidth = -1
	opts.PipelineLinger = "later"

	err := opts.Validate()
	if !errors.Is(err, pipeline.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig in %v", err)
	}
	if !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions in %v", err)
	}
}

func TestLingerZeroAllowed(t *testing.T) {
	opts := Defaults()
	d, err := opts.Linger()
	if err != nil {
		t.Fatalf("expected zero linger to parse, got %v", err)
	}
	if d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
}

func TestPipelineChanged(t *testing.T) {
	base := Defaults()

	same := Defaults()
	same.LoggingLevel = "debug"
	same.AuthUsername = "admin"
	if base.PipelineChanged(&same) {
		t.Error("expected logging and auth changes to keep the pipeline")
	}

	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"bitrate", func(o *Options) { o.StreamBitrate = 2000000 }},
		{"overlay", func(o *Options) { o.OverlayEnabled = false }},
		{"eager", func(o *Options) { o.PipelineEager = true }},
		{"mount", func(o *Options) { o.RTSPMount = "/side" }},
	}
	for _, tt := range tests {
		other := Defaults()
		tt.modify(&other)
		if !base.PipelineChanged(&other) {
			t.Errorf("%s: expected pipeline change", tt.name)
		}
	}
}

func TestRestartRequired(t *testing.T) {
	base := Defaults()

	other := Defaults()
	other.StreamBitrate = 2000000
	other.LoggingLevel = "debug"
	if keys := base.RestartRequired(&other); len(keys) != 0 {
		t.Errorf("expected no restart keys, got %v", keys)
	}

	other.RTSPService = "9554"
	other.OverlayFormat = "time"
	other.PipelineInputOptions = "genpts"
	keys := base.RestartRequired(&other)
	want := []string{"rtsp.service", "overlay.format", "pipeline.ffmpeg_options"}
	if !slices.Equal(keys, want) {
		t.Errorf("expected %v, got %v", want, keys)
	}
}
