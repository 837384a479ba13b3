package pipeline

import (
	"fmt"
	"strconv"
)

// Well-known element names.
const (
	// OverlayElementName is the name the overlay stage is given so it can be
	// located wherever it sits in the graph.
	OverlayElementName = "text_overlay"
	// OutputPadName is the payloader the transport binds to.
	OutputPadName = "pay0"
	// PayloadType is the RTP payload type of the output.
	PayloadType = 96
)

// Fixed encoder settings.
const (
	encoderBFrames    = 0
	encoderProfile    = "high"
	encoderLevel      = "4.2"
	encoderMinQP      = 26
	overlayFont       = "Monospace, 12"
	overlayHAlignment = "right"
	overlayVAlignment = "bottom"
)

// Features toggles optional stages. They are fixed at startup.
type Features struct {
	Overlay bool
}

// Build turns a stream config into a pipeline description. It is pure:
// the same inputs always produce structurally identical descriptions.
// Validating cfg is the caller's job.
func Build(cfg StreamConfig, features Features) Description {
	framerate := strconv.Itoa(cfg.Framerate)

	stages := []Node{
		{
			Kind:    KindCapture,
			Element: "v4l2src",
			Params: []Param{
				{"device", cfg.Device},
				{"width", strconv.Itoa(cfg.Width)},
				{"height", strconv.Itoa(cfg.Height)},
				{"framerate", framerate},
				{"input-format", "mjpeg"},
				{"do-timestamp", "true"},
			},
			Caps: fmt.Sprintf("image/jpeg,width=%d,height=%d,framerate=%d/1", cfg.Width, cfg.Height, cfg.Framerate),
		},
		{
			Kind: KindBin,
			Name: "normalize",
			Children: []Node{
				{Kind: KindParse, Element: "jpegparse"},
				{
					Kind:    KindDecode,
					Element: "v4l2jpegdec",
					Params: []Param{
						{"framerate", framerate},
						{"format", "I420"},
					},
					Caps: fmt.Sprintf("video/x-raw,framerate=%d/1,format=I420", cfg.Framerate),
				},
			},
		},
	}

	if features.Overlay {
		stages = append(stages, Node{
			Kind:    KindOverlay,
			Element: "textoverlay",
			Name:    OverlayElementName,
			Params: []Param{
				{"halignment", overlayHAlignment},
				{"valignment", overlayVAlignment},
				{"font-desc", overlayFont},
				{"shaded-background", "false"},
			},
		})
	}

	stages = append(stages,
		Node{
			Kind:    KindEncode,
			Element: "v4l2h264enc",
			Params: []Param{
				{"gop-size", strconv.Itoa(cfg.GOPSize)},
				{"i-frame-period", strconv.Itoa(cfg.GOPSize)},
				{"bitrate", strconv.Itoa(cfg.Bitrate)},
				{"b-frames", strconv.Itoa(encoderBFrames)},
				{"profile", encoderProfile},
				{"level", encoderLevel},
				{"min-qp", strconv.Itoa(encoderMinQP)},
				{"repeat-sequence-header", "true"},
			},
			Caps: "video/x-h264,stream-format=byte-stream,alignment=au,profile=high,level=(string)4.2",
		},
		Node{Kind: KindParse, Element: "h264parse"},
		Node{
			Kind:    KindPayload,
			Element: "rtph264pay",
			Name:    OutputPadName,
			Params:  []Param{{"pt", strconv.Itoa(PayloadType)}},
		},
	)

	return Description{Root: Node{Kind: KindBin, Children: stages}}
}
