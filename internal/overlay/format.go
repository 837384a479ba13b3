package overlay

import (
	"fmt"
	"strings"
	"time"
)

// Formatter renders a wall-clock instant as overlay text.
type Formatter interface {
	Name() string
	Format(t time.Time) string
}

type layoutFormatter struct {
	name   string
	layout string
}

func (f layoutFormatter) Name() string              { return f.name }
func (f layoutFormatter) Format(t time.Time) string { return t.Format(f.layout) }

// Built-in formatters.
var (
	// DateTime renders "2006-01-02 15:04:05".
	DateTime Formatter = layoutFormatter{name: "datetime", layout: time.DateTime}
	// TimeOnly renders "15:04:05".
	TimeOnly Formatter = layoutFormatter{name: "time", layout: time.TimeOnly}
)

// ParseFormat returns the formatter registered under name. An empty name
// selects DateTime.
func ParseFormat(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "datetime", "date-time":
		return DateTime, nil
	case "time", "time-only", "timeonly":
		return TimeOnly, nil
	default:
		return nil, fmt.Errorf("unknown overlay format %q (want datetime or time)", name)
	}
}
