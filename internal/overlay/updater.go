package overlay

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/smazurov/rtspcam/internal/logging"
	"github.com/smazurov/rtspcam/internal/pipeline"
)

// TextProperty is the overlay element property the updater writes.
const TextProperty = "text"

// DefaultInterval is the tick period when Options.Interval is zero.
const DefaultInterval = time.Second

// Source yields the current overlay reference of every mount. A nil
// reference means the mount has no live overlay right now.
type Source interface {
	Overlays() map[string]*pipeline.ElementRef
}

// SourceFunc adapts a function to Source.
type SourceFunc func() map[string]*pipeline.ElementRef

// Overlays implements Source.
func (f SourceFunc) Overlays() map[string]*pipeline.ElementRef { return f() }

// Skip reasons reported to a Recorder.
const (
	SkipStale  = "stale"
	SkipFailed = "failed"
)

// Recorder observes the outcome of every write attempt.
type Recorder interface {
	OverlayWritten(mount string)
	OverlaySkipped(mount, reason string)
}

// Options configures an Updater.
type Options struct {
	// Source lists the overlays to stamp (required).
	Source Source
	// Formatter renders the timestamp. Defaults to DateTime.
	Formatter Formatter
	// Interval between ticks. Defaults to DefaultInterval.
	Interval time.Duration
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// Recorder is optional.
	Recorder Recorder
	// Logger defaults to slog.Default().
	Logger logging.Logger
}

// Updater periodically writes the current time into every live overlay.
// It runs independently of viewers: with no pipeline instantiated a tick
// finds nothing to write and does nothing.
type Updater struct {
	source    Source
	formatter Formatter
	interval  time.Duration
	clock     func() time.Time
	recorder  Recorder
	logger    logging.Logger
}

// NewUpdater creates an updater. It panics without a Source.
func NewUpdater(opts Options) *Updater {
	if opts.Source == nil {
		panic("overlay: Options.Source is required")
	}
	u := &Updater{
		source:    opts.Source,
		formatter: opts.Formatter,
		interval:  opts.Interval,
		clock:     opts.Clock,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
	}
	if u.formatter == nil {
		u.formatter = DateTime
	}
	if u.interval <= 0 {
		u.interval = DefaultInterval
	}
	if u.clock == nil {
		u.clock = time.Now
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	return u
}

// Formatter returns the formatter in use.
func (u *Updater) Formatter() Formatter { return u.formatter }

// Text formats the current time.
func (u *Updater) Text() string { return u.formatter.Format(u.clock()) }

// Run ticks until ctx is cancelled. Individual write failures never stop
// the loop.
func (u *Updater) Run(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.logger.Debug("Overlay updater started", "interval", u.interval, "format", u.formatter.Name())
	for {
		select {
		case <-ctx.Done():
			u.logger.Debug("Overlay updater stopped")
			return
		case <-ticker.C:
			u.Tick()
		}
	}
}

// Tick stamps every live overlay once and returns how many writes landed.
func (u *Updater) Tick() int {
	overlays := u.source.Overlays()
	if len(overlays) == 0 {
		return 0
	}

	text := u.Text()
	written := 0
	for _, mount := range slices.Sorted(maps.Keys(overlays)) {
		ref := overlays[mount]
		if ref == nil {
			continue
		}
		if u.write(mount, ref, text) {
			written++
		}
	}
	return written
}

// Stamp writes the current time into a single overlay. It is used to
// prime a freshly configured pipeline.
func (u *Updater) Stamp(mount string, ref *pipeline.ElementRef) error {
	if ref == nil {
		return nil
	}
	err := ref.Set(TextProperty, u.Text())
	u.record(mount, err)
	return err
}

func (u *Updater) write(mount string, ref *pipeline.ElementRef, text string) bool {
	err := ref.Set(TextProperty, text)
	u.record(mount, err)
	switch {
	case err == nil:
		return true
	case errors.Is(err, pipeline.ErrStaleElement):
		u.logger.Debug("Skipping overlay of destroyed pipeline", "mount", mount)
	default:
		u.logger.Warn("Failed to update overlay", "mount", mount, "error", err)
	}
	return false
}

func (u *Updater) record(mount string, err error) {
	if u.recorder == nil {
		return
	}
	switch {
	case err == nil:
		u.recorder.OverlayWritten(mount)
	case errors.Is(err, pipeline.ErrStaleElement):
		u.recorder.OverlaySkipped(mount, SkipStale)
	default:
		u.recorder.OverlaySkipped(mount, SkipFailed)
	}
}
