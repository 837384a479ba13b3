package ffmpeg

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// OptionType is an input behaviour flag that can be enabled in config.
type OptionType string

// Input options.
const (
	OptionGeneratePTS        OptionType = "genpts"
	OptionIgnoreDTS          OptionType = "igndts"
	OptionIgnoreErrors       OptionType = "ignore_err"
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionThreadQueue1024    OptionType = "thread_queue_1024"
	OptionThreadQueue4096    OptionType = "thread_queue_4096"
	OptionLowLatency         OptionType = "low_latency"
)

// Option describes one flag.
type Option struct {
	Key            OptionType   `json:"key"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Default        bool         `json:"default"`
	ExclusiveGroup string       `json:"exclusive_group,omitempty"`
	ConflictsWith  []OptionType `json:"conflicts_with,omitempty"`
}

// AllOptions lists every supported flag.
var AllOptions = []Option{
	{
		Key:           OptionGeneratePTS,
		Name:          "Generate PTS",
		Description:   "Generate presentation timestamps for inputs without them",
		ConflictsWith: []OptionType{OptionWallclockTimestamp},
	},
	{
		Key:         OptionIgnoreDTS,
		Name:        "Ignore DTS",
		Description: "Ignore decode timestamps from the capture device",
	},
	{
		Key:         OptionIgnoreErrors,
		Name:        "Ignore Errors",
		Description: "Keep decoding through corrupt MJPEG frames",
	},
	{
		Key:           OptionWallclockTimestamp,
		Name:          "Wallclock Timestamps",
		Description:   "Stamp frames with the wall clock on capture",
		Default:       true,
		ConflictsWith: []OptionType{OptionGeneratePTS},
	},
	{
		Key:            OptionThreadQueue1024,
		Name:           "Large Thread Queue",
		Description:    "Use a 1024 packet input queue",
		Default:        true,
		ExclusiveGroup: "thread_queue",
	},
	{
		Key:            OptionThreadQueue4096,
		Name:           "Extra Large Thread Queue",
		Description:    "Use a 4096 packet input queue for slow devices",
		ExclusiveGroup: "thread_queue",
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency Mode",
		Description: "Flush packets immediately and disable delay",
	},
}

// GetOptionByKey returns the option named key, or nil.
func GetOptionByKey(key OptionType) *Option {
	for i := range AllOptions {
		if AllOptions[i].Key == key {
			return &AllOptions[i]
		}
	}
	return nil
}

// DefaultOptions returns the flags enabled when config names none.
func DefaultOptions() []OptionType {
	var out []OptionType
	for _, o := range AllOptions {
		if o.Default {
			out = append(out, o.Key)
		}
	}
	return out
}

// ParseOptions converts config strings to flags and validates them.
func ParseOptions(names []string) ([]OptionType, error) {
	var (
		out []OptionType
		err error
	)
	for _, name := range names {
		key := OptionType(strings.TrimSpace(name))
		if GetOptionByKey(key) == nil {
			err = multierr.Append(err, fmt.Errorf("unknown ffmpeg option %q", name))
			continue
		}
		out = append(out, key)
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateOptions(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateOptions reports every exclusive group violation and conflict.
func ValidateOptions(selected []OptionType) error {
	var err error

	groups := make(map[string][]string)
	set := make(map[OptionType]bool, len(selected))
	for _, key := range selected {
		set[key] = true
		if o := GetOptionByKey(key); o != nil && o.ExclusiveGroup != "" {
			groups[o.ExclusiveGroup] = append(groups[o.ExclusiveGroup], o.Name)
		}
	}
	for group, names := range groups {
		if len(names) > 1 {
			err = multierr.Append(err, fmt.Errorf("options %s are mutually exclusive (%s)", strings.Join(names, ", "), group))
		}
	}

	for _, key := range selected {
		o := GetOptionByKey(key)
		if o == nil {
			continue
		}
		for _, c := range o.ConflictsWith {
			// report each pair once
			if set[c] && key < c {
				err = multierr.Append(err, fmt.Errorf("option %q conflicts with %q", key, c))
			}
		}
	}
	return err
}

// inputArgs renders the flags that precede the capture input.
func inputArgs(options []OptionType) []string {
	var args, fflags []string
	for _, o := range options {
		switch o {
		case OptionGeneratePTS:
			fflags = append(fflags, "+genpts")
		case OptionIgnoreDTS:
			fflags = append(fflags, "+igndts")
		case OptionIgnoreErrors:
			args = append(args, "-err_detect", "ignore_err")
		case OptionWallclockTimestamp:
			args = append(args, "-use_wallclock_as_timestamps", "1")
		case OptionThreadQueue1024:
			args = append(args, "-thread_queue_size", "1024")
		case OptionThreadQueue4096:
			args = append(args, "-thread_queue_size", "4096")
		case OptionLowLatency:
			fflags = append(fflags, "+nobuffer")
			args = append(args, "-flags", "+low_delay")
		}
	}
	if len(fflags) > 0 {
		args = append(args, "-fflags", strings.Join(fflags, ""))
	}
	return args
}
