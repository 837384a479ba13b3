package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/rtspcam/internal/pipeline"
)

// Params holds everything needed to render one ffmpeg invocation. It is
// derived from a pipeline description plus backend settings.
type Params struct {
	// Input
	DevicePath  string
	InputFormat string // mjpeg, yuyv422
	Width       int
	Height      int
	FPS         int
	TestSource  bool // lavfi test pattern instead of the device
	Options     []OptionType

	// Overlay; empty TextFile means no overlay stage
	TextFile   string
	Font       string
	FontSize   int
	HAlignment string
	VAlignment string
	Shaded     bool

	// Encoder
	Encoder     string // libx264, h264_v4l2m2m
	Bitrate     int    // bits per second
	GOP         int
	BFrames     int
	Profile     string
	Level       string
	MinQP       int
	RepeatHeads bool
	PixelFormat string

	// Output
	OutputURL   string
	LogLevel    string
	ProgressURL string
}

// RenderOptions are the backend settings that do not come from the
// description.
type RenderOptions struct {
	Encoder    string
	TextFile   string
	OutputURL  string
	TestSource bool
	Options    []OptionType
	LogLevel   string
	// ProgressURL receives -progress reports when set.
	ProgressURL string
}

// FromDescription maps the stages of desc onto ffmpeg parameters.
func FromDescription(desc pipeline.Description, opts RenderOptions) (*Params, error) {
	capture, ok := desc.FindKind(pipeline.KindCapture)
	if !ok {
		return nil, errors.New("description has no capture stage")
	}
	encode, ok := desc.FindKind(pipeline.KindEncode)
	if !ok {
		return nil, errors.New("description has no encode stage")
	}
	if _, ok := desc.FindKind(pipeline.KindPayload); !ok {
		return nil, errors.New("description has no payload stage")
	}

	p := &Params{
		DevicePath:  param(capture, "device"),
		InputFormat: param(capture, "input-format"),
		Width:       capture.IntParam("width"),
		Height:      capture.IntParam("height"),
		FPS:         capture.IntParam("framerate"),
		TestSource:  opts.TestSource,
		Options:     opts.Options,

		Encoder:     opts.Encoder,
		Bitrate:     encode.IntParam("bitrate"),
		GOP:         encode.IntParam("gop-size"),
		BFrames:     encode.IntParam("b-frames"),
		Profile:     param(encode, "profile"),
		Level:       param(encode, "level"),
		MinQP:       encode.IntParam("min-qp"),
		RepeatHeads: param(encode, "repeat-sequence-header") == "true",
		PixelFormat: "yuv420p",

		OutputURL:   opts.OutputURL,
		LogLevel:    opts.LogLevel,
		ProgressURL: opts.ProgressURL,
	}
	if p.Encoder == "" {
		p.Encoder = DefaultEncoder
	}
	if p.LogLevel == "" {
		p.LogLevel = "info"
	}
	if decode, ok := desc.FindKind(pipeline.KindDecode); ok && param(decode, "format") != "I420" {
		p.PixelFormat = strings.ToLower(param(decode, "format"))
	}

	if overlay, ok := desc.FindKind(pipeline.KindOverlay); ok {
		if opts.TextFile == "" {
			return nil, errors.New("overlay stage needs a text file")
		}
		p.TextFile = opts.TextFile
		p.HAlignment = param(overlay, "halignment")
		p.VAlignment = param(overlay, "valignment")
		p.Shaded = param(overlay, "shaded-background") == "true"
		font, size, err := parseFontDesc(param(overlay, "font-desc"))
		if err != nil {
			return nil, err
		}
		p.Font, p.FontSize = font, size
	}
	return p, nil
}

// parseFontDesc splits a Pango style "Family, Size" description.
func parseFontDesc(desc string) (string, int, error) {
	if desc == "" {
		return "Monospace", 12, nil
	}
	family, size, found := strings.Cut(desc, ",")
	if !found {
		return strings.TrimSpace(desc), 12, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(size))
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("invalid font size in %q", desc)
	}
	return strings.TrimSpace(family), n, nil
}

func param(n pipeline.Node, key string) string {
	v, _ := n.Param(key)
	return v
}
