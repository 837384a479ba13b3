package ffmpeg

import (
	"slices"
	"strings"
	"testing"

	"github.com/smazurov/rtspcam/internal/pipeline"
)

func defaultParams(t *testing.T, features pipeline.Features, opts RenderOptions) *Params {
	t.Helper()
	desc := pipeline.Build(pipeline.DefaultStreamConfig(), features)
	p, err := FromDescription(desc, opts)
	if err != nil {
		t.Fatalf("FromDescription failed: %v", err)
	}
	return p
}

func hasPair(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestFromDescription(t *testing.T) {
	p := defaultParams(t, pipeline.Features{Overlay: true}, RenderOptions{
		TextFile:  "/tmp/overlay.txt",
		OutputURL: "rtsp://127.0.0.1:8554/pipeline-1",
	})

	if p.DevicePath != "/dev/video0" || p.InputFormat != "mjpeg" {
		t.Errorf("expected /dev/video0 mjpeg input, got %s %s", p.DevicePath, p.InputFormat)
	}
	if p.Width != 1280 || p.Height != 720 || p.FPS != 15 {
		t.Errorf("expected 1280x720@15, got %dx%d@%d", p.Width, p.Height, p.FPS)
	}
	if p.GOP != 15 || p.Bitrate != 1000000 || p.BFrames != 0 {
		t.Errorf("expected gop 15 bitrate 1000000 bframes 0, got %d %d %d", p.GOP, p.Bitrate, p.BFrames)
	}
	if p.Profile != "high" || p.Level != "4.2" || p.MinQP != 26 || !p.RepeatHeads {
		t.Errorf("unexpected encoder constants: %+v", p)
	}
	if p.Font != "Monospace" || p.FontSize != 12 {
		t.Errorf("expected Monospace 12, got %s %d", p.Font, p.FontSize)
	}
	if p.Encoder != DefaultEncoder {
		t.Errorf("expected default encoder, got %s", p.Encoder)
	}
}

func TestFromDescriptionRequiresTextFile(t *testing.T) {
	desc := pipeline.Build(pipeline.DefaultStreamConfig(), pipeline.Features{Overlay: true})
	if _, err := FromDescription(desc, RenderOptions{}); err == nil {
		t.Error("expected error for overlay without text file")
	}
	if _, err := FromDescription(pipeline.Description{}, RenderOptions{}); err == nil {
		t.Error("expected error for empty description")
	}
}

func TestBuildArgsWithOverlay(t *testing.T) {
	p := defaultParams(t, pipeline.Features{Overlay: true}, RenderOptions{
		TextFile:  "/run/rtspcam/overlay.txt",
		OutputURL: "rtsp://127.0.0.1:8554/pipeline-1",
		Options:   []OptionType{OptionThreadQueue1024},
	})
	args := BuildArgs("", p)

	if args[0] != DefaultBinary {
		t.Errorf("expected %s, got %s", DefaultBinary, args[0])
	}
	for _, pair := range [][2]string{
		{"-f", "v4l2"},
		{"-input_format", "mjpeg"},
		{"-video_size", "1280x720"},
		{"-framerate", "15"},
		{"-i", "/dev/video0"},
		{"-thread_queue_size", "1024"},
		{"-c:v", "libx264"},
		{"-g", "15"},
		{"-b:v", "1000000"},
		{"-bf", "0"},
		{"-profile:v", "high"},
		{"-level:v", "4.2"},
		{"-qmin", "26"},
		{"-bsf:v", "dump_extra"},
		{"-rtsp_transport", "tcp"},
	} {
		if !hasPair(args, pair[0], pair[1]) {
			t.Errorf("expected %s %s in %v", pair[0], pair[1], args)
		}
	}
	if args[len(args)-1] != "rtsp://127.0.0.1:8554/pipeline-1" {
		t.Errorf("expected output URL last, got %s", args[len(args)-1])
	}

	vf := args[slices.Index(args, "-vf")+1]
	for _, want := range []string{
		"format=yuv420p",
		`drawtext=textfile=/run/rtspcam/overlay.txt`,
		"reload=1",
		"font=Monospace",
		"fontsize=12",
		"x=w-text_w-10",
		"y=h-text_h-10",
	} {
		if !strings.Contains(vf, want) {
			t.Errorf("expected filter to contain %q, got %q", want, vf)
		}
	}
	if strings.Contains(vf, "box=1") {
		t.Errorf("expected no shaded background, got %q", vf)
	}
}

func TestBuildArgsWithoutOverlay(t *testing.T) {
	p := defaultParams(t, pipeline.Features{}, RenderOptions{OutputURL: "rtsp://127.0.0.1:8554/x"})
	args := BuildArgs("/usr/bin/ffmpeg", p)
	if strings.Contains(strings.Join(args, " "), "drawtext") {
		t.Errorf("expected no drawtext, got %v", args)
	}
}

func TestBuildArgsProgress(t *testing.T) {
	p := defaultParams(t, pipeline.Features{}, RenderOptions{
		OutputURL:   "rtsp://127.0.0.1:8554/x",
		ProgressURL: "unix:///tmp/rtspcam-x.sock",
	})
	args := BuildArgs("ffmpeg", p)
	if !hasPair(args, "-progress", "unix:///tmp/rtspcam-x.sock") {
		t.Errorf("expected -progress, got %v", args)
	}

	p.ProgressURL = ""
	if slices.Contains(BuildArgs("ffmpeg", p), "-progress") {
		t.Error("expected no -progress without a URL")
	}
}

func TestBuildArgsTestSourceAndHardwareEncoder(t *testing.T) {
	p := defaultParams(t, pipeline.Features{}, RenderOptions{
		OutputURL:  "rtsp://127.0.0.1:8554/x",
		TestSource: true,
		Encoder:    "h264_v4l2m2m",
	})
	args := BuildArgs("", p)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-f lavfi -i testsrc2=size=1280x720:rate=15") {
		t.Errorf("expected test source input, got %s", joined)
	}
	if strings.Contains(joined, "/dev/video0") {
		t.Errorf("expected device to be unused, got %s", joined)
	}
	if strings.Contains(joined, "zerolatency") {
		t.Errorf("expected no software tuning for hardware encoder, got %s", joined)
	}
}

func TestEscapeFilterValue(t *testing.T) {
	if got := escapeFilterValue(`C:\a,b's`); got != `C\:\\a\,b\'s` {
		t.Errorf("unexpected escape: %s", got)
	}
}

func TestCommand(t *testing.T) {
	got := Command([]string{"ffmpeg", "-vf", "drawtext=font=Monospace:x=w-10", "it's"})
	want := `ffmpeg -vf drawtext=font=Monospace:x=w-10 'it'\''s'`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[info] Stream mapping:", "info", "Stream mapping:"},
		{"[error] Could not open device", "error", "Could not open device"},
		{"[h264 @ 0x55d0] [warning] non-existing PPS", "warning", "[h264 @ 0x55d0] non-existing PPS"},
		{"[verbose] probing", "debug", "probing"},
		{"[panic] abort", "fatal", "abort"},
		{"frame=  100 fps= 15", "info", "frame=  100 fps= 15"},
		{"[rtsp @ 0x1] no level here", "info", "[rtsp @ 0x1] no level here"},
		{"[", "info", "["},
	}

	for _, tt := range tests {
		level, msg := ParseLogLevel(tt.line)
		if level != tt.wantLevel || msg != tt.wantMsg {
			t.Errorf("ParseLogLevel(%q): expected (%q, %q), got (%q, %q)", tt.line, tt.wantLevel, tt.wantMsg, level, msg)
		}
	}
}

func TestParseOptions(t *testing.T) {
	got, err := ParseOptions([]string{"wallclock_ts", "thread_queue_4096"})
	if err != nil {
		t.Fatalf("ParseOptions failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 options, got %v", got)
	}

	tests := [][]string{
		{"no_such_option"},
		{"thread_queue_1024", "thread_queue_4096"},
		{"genpts", "wallclock_ts"},
	}
	for _, names := range tests {
		if _, err := ParseOptions(names); err == nil {
			t.Errorf("expected error for %v", names)
		}
	}

	if err := ValidateOptions(DefaultOptions()); err != nil {
		t.Errorf("expected defaults to be valid, got %v", err)
	}
}

func TestInputArgs(t *testing.T) {
	args := inputArgs([]OptionType{OptionGeneratePTS, OptionIgnoreDTS, OptionLowLatency})
	if !hasPair(args, "-fflags", "+genpts+igndts+nobuffer") {
		t.Errorf("expected combined fflags, got %v", args)
	}
	if !hasPair(args, "-flags", "+low_delay") {
		t.Errorf("expected low_delay flag, got %v", args)
	}
}
