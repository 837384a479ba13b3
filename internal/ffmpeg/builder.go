package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultBinary is the ffmpeg executable looked up in PATH.
const DefaultBinary = "ffmpeg"

// DefaultEncoder is the H.264 encoder used when none is configured.
const DefaultEncoder = "libx264"

// overlayMargin is the distance in pixels between the text and the frame edge.
const overlayMargin = 10

// BuildArgs renders p as an argv, binary first.
func BuildArgs(binary string, p *Params) []string {
	if binary == "" {
		binary = DefaultBinary
	}
	args := []string{binary, "-hide_banner", "-nostdin", "-loglevel", "level+" + p.LogLevel}
	if p.ProgressURL != "" {
		args = append(args, "-progress", p.ProgressURL, "-stats_period", "1")
	}

	size := fmt.Sprintf("%dx%d", p.Width, p.Height)
	fps := strconv.Itoa(p.FPS)
	if p.TestSource {
		args = append(args, "-re", "-f", "lavfi", "-i", "testsrc2=size="+size+":rate="+fps)
	} else {
		args = append(args, "-f", "v4l2")
		args = append(args, inputArgs(p.Options)...)
		if p.InputFormat != "" {
			args = append(args, "-input_format", p.InputFormat)
		}
		args = append(args, "-video_size", size, "-framerate", fps, "-i", p.DevicePath)
	}

	if filters := videoFilters(p); filters != "" {
		args = append(args, "-vf", filters)
	}

	args = append(args, "-c:v", p.Encoder)
	if p.Profile != "" {
		args = append(args, "-profile:v", p.Profile)
	}
	if p.Level != "" {
		args = append(args, "-level:v", p.Level)
	}
	if p.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(p.Bitrate), "-maxrate", strconv.Itoa(p.Bitrate), "-bufsize", strconv.Itoa(p.Bitrate))
	}
	if p.GOP > 0 {
		args = append(args, "-g", strconv.Itoa(p.GOP), "-keyint_min", strconv.Itoa(p.GOP))
	}
	args = append(args, "-bf", strconv.Itoa(p.BFrames))
	if p.MinQP > 0 {
		args = append(args, "-qmin", strconv.Itoa(p.MinQP))
	}
	if !isHardwareEncoder(p.Encoder) {
		args = append(args, "-preset", "veryfast", "-tune", "zerolatency", "-sc_threshold", "0")
	}
	if p.RepeatHeads {
		args = append(args, "-bsf:v", "dump_extra")
	}
	args = append(args, "-an")

	if strings.HasPrefix(p.OutputURL, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp", "-f", "rtsp", p.OutputURL)
	} else {
		args = append(args, "-f", "mpegts", p.OutputURL)
	}
	return args
}

// Command renders args as a single shell-safe string for display.
func Command(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func videoFilters(p *Params) string {
	chain := []string{"format=" + p.PixelFormat}
	if p.TextFile != "" {
		chain = append(chain, drawtext(p))
	}
	return strings.Join(chain, ",")
}

// drawtext renders the overlay stage. reload=1 makes ffmpeg re-read the
// text file on every frame.
func drawtext(p *Params) string {
	opts := []string{
		"textfile=" + escapeFilterValue(p.TextFile),
		"reload=1",
		"font=" + escapeFilterValue(p.Font),
		"fontsize=" + strconv.Itoa(p.FontSize),
		"fontcolor=white",
		"x=" + alignX(p.HAlignment),
		"y=" + alignY(p.VAlignment),
	}
	if p.Shaded {
		opts = append(opts, "box=1", "boxcolor=black@0.5", "boxborderw=4")
	}
	return "drawtext=" + strings.Join(opts, ":")
}

func alignX(h string) string {
	switch h {
	case "left":
		return strconv.Itoa(overlayMargin)
	case "center":
		return "(w-text_w)/2"
	default:
		return "w-text_w-" + strconv.Itoa(overlayMargin)
	}
}

func alignY(v string) string {
	switch v {
	case "top":
		return strconv.Itoa(overlayMargin)
	case "center":
		return "(h-text_h)/2"
	default:
		return "h-text_h-" + strconv.Itoa(overlayMargin)
	}
}

// escapeFilterValue escapes the characters that are special inside a
// filtergraph option value.
func escapeFilterValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`, `[`, `\[`, `]`, `\]`, `;`, `\;`)
	return r.Replace(v)
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isHardwareEncoder(encoder string) bool {
	for _, suffix := range []string{"_v4l2m2m", "_vaapi", "_nvenc", "_qsv", "_rkmpp", "_videotoolbox", "_amf"} {
		if strings.HasSuffix(encoder, suffix) {
			return true
		}
	}
	return false
}
