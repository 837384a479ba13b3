package ffmpeg

import "strings"

// ParseLogLevel splits a line printed with "-loglevel level+<lvl>" into its
// level and message. Lines look like "[info] msg" or, for component
// output, "[h264 @ 0x55d0] [warning] msg"; the component prefix is kept.
// Lines without a level are reported at info.
func ParseLogLevel(line string) (level, msg string) {
	if level, rest, ok := cutLevel(line); ok {
		return level, rest
	}

	if !strings.HasPrefix(line, "[") {
		return "info", line
	}
	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}
	component, rest := line[:end+2], line[end+2:]
	if level, rest, ok := cutLevel(rest); ok {
		return level, component + rest
	}
	return "info", line
}

func cutLevel(s string) (level, rest string, ok bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	end := strings.Index(s, "] ")
	if end == -1 {
		return "", s, false
	}
	switch lvl := s[1:end]; lvl {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		if lvl == "panic" {
			lvl = "fatal"
		}
		if lvl == "verbose" {
			lvl = "debug"
		}
		return lvl, s[end+2:], true
	}
	return "", s, false
}
