package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"github.com/smazurov/rtspcam/internal/logging"
	"github.com/smazurov/rtspcam/internal/metrics/collectors"
	"github.com/smazurov/rtspcam/internal/pipeline"
	"github.com/smazurov/rtspcam/internal/process"
)

// ErrExited is reported to a pipeline whose ffmpeg process stopped on its
// own with a zero exit code.
var ErrExited = errors.New("ffmpeg exited")

// textProperty is the overlay property bound to the drawtext file.
const textProperty = "text"

// BackendOptions configures a Backend.
type BackendOptions struct {
	// Binary is the ffmpeg executable. Defaults to DefaultBinary.
	Binary string
	// Encoder is the H.264 encoder. Defaults to DefaultEncoder.
	Encoder string
	// PublishURL maps a pipeline stream id to the URL ffmpeg publishes to
	// (required).
	PublishURL func(streamID string) string
	// TextDir holds the overlay text files. Defaults to os.TempDir().
	TextDir string
	// TestSource replaces the capture device with a test pattern.
	TestSource bool
	// Options are input flags.
	Options []OptionType
	// LogLevel is passed to ffmpeg. Defaults to info.
	LogLevel string
	// Logger for backend operations. Defaults to slog.Default().
	Logger logging.Logger
	// ProcessLogger receives ffmpeg output. Defaults to Logger.
	ProcessLogger logging.Logger
	// Progress collects ffmpeg -progress reports into metrics.
	Progress bool
}

type graph struct {
	handle   *pipeline.Handle
	args     []string
	text     *TextFile
	progress *collectors.ProgressCollector
}

// Backend runs pipelines as ffmpeg subprocesses publishing to the RTSP
// server. It implements pipeline.Backend.
type Backend struct {
	opts   BackendOptions
	logger logging.Logger
	pool   process.Pool

	mu     sync.Mutex
	graphs map[string]*graph
}

// NewBackend creates a backend. It panics without PublishURL.
func NewBackend(opts BackendOptions) *Backend {
	if opts.PublishURL == nil {
		panic("ffmpeg: BackendOptions.PublishURL is required")
	}
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Encoder == "" {
		opts.Encoder = DefaultEncoder
	}
	if opts.TextDir == "" {
		opts.TextDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ProcessLogger == nil {
		opts.ProcessLogger = opts.Logger
	}

	b := &Backend{
		opts:   opts,
		logger: opts.Logger,
		graphs: make(map[string]*graph),
	}
	b.pool = process.NewPool(&process.PoolOptions{
		CommandProvider: b.command,
		OnStateChange:   b.stateChanged,
		ConfigureProcess: func(_ string, proc *process.Process) {
			proc.SetLogParser(opts.ProcessLogger, ParseLogLevel)
		},
		Logger: opts.Logger,
	})
	return b
}

// Render returns the ffmpeg argv for desc as it would run for streamID.
// The overlay text file path is a placeholder.
func (b *Backend) Render(desc pipeline.Description, streamID string) ([]string, error) {
	params, err := FromDescription(desc, b.renderOptions(streamID))
	if err != nil {
		return nil, err
	}
	return BuildArgs(b.opts.Binary, params), nil
}

func (b *Backend) renderOptions(streamID string) RenderOptions {
	opts := RenderOptions{
		Encoder:    b.opts.Encoder,
		TextFile:   b.textPath(streamID),
		OutputURL:  b.opts.PublishURL(streamID),
		TestSource: b.opts.TestSource,
		Options:    b.opts.Options,
		LogLevel:   b.opts.LogLevel,
	}
	if b.opts.Progress {
		opts.ProgressURL = "unix://" + b.progressPath(streamID)
	}
	return opts
}

func (b *Backend) textPath(streamID string) string {
	return filepath.Join(b.opts.TextDir, "rtspcam-"+streamID+".txt")
}

func (b *Backend) progressPath(streamID string) string {
	return filepath.Join(b.opts.TextDir, "rtspcam-"+streamID+".sock")
}

// Prepare renders the command and binds overlay writes to the drawtext
// text file.
func (b *Backend) Prepare(h *pipeline.Handle) error {
	id := h.StreamID()
	args, err := b.Render(h.Description(), id)
	if err != nil {
		return err
	}

	var overlays []*pipeline.Element
	for _, e := range h.Elements() {
		if e.Kind() == pipeline.KindOverlay {
			overlays = append(overlays, e)
		}
	}
	if len(overlays) > 1 {
		return fmt.Errorf("pipeline %s has %d overlays, drawtext supports one", id, len(overlays))
	}

	g := &graph{handle: h, args: args}
	if len(overlays) == 1 {
		text, err := NewTextFile(b.textPath(id), "")
		if err != nil {
			return err
		}
		g.text = text
		overlays[0].Bind(textProperty, text.Write)
	}
	if b.opts.Progress {
		g.progress = collectors.NewProgressCollector(b.progressPath(id), id, b.logger)
		if err := g.progress.Start(context.Background()); err != nil {
			if g.text != nil {
				err = multierr.Append(err, g.text.Remove())
			}
			return err
		}
	}

	b.mu.Lock()
	b.graphs[id] = g
	b.mu.Unlock()
	b.logger.Debug("Pipeline prepared", "stream", id, "command", Command(args))
	return nil
}

// Play starts the ffmpeg process.
func (b *Backend) Play(h *pipeline.Handle) error {
	return b.pool.Start(h.StreamID())
}

// Stop terminates the ffmpeg process and removes the text file.
func (b *Backend) Stop(h *pipeline.Handle) error {
	id := h.StreamID()
	err := b.pool.Stop(id)

	b.mu.Lock()
	g := b.graphs[id]
	delete(b.graphs, id)
	b.mu.Unlock()

	if g != nil && g.text != nil {
		err = multierr.Append(err, g.text.Remove())
	}
	if g != nil && g.progress != nil {
		err = multierr.Append(err, g.progress.Stop())
	}
	return err
}

// Status returns the process status of a pipeline.
func (b *Backend) Status(h *pipeline.Handle) *process.Info {
	return b.pool.GetStatus(h.StreamID())
}

// Close stops every process.
func (b *Backend) Close() {
	b.pool.StopAll()
}

func (b *Backend) command(id string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.graphs[id]
	if !ok {
		return nil, fmt.Errorf("pipeline %s was not prepared", id)
	}
	return g.args, nil
}

// stateChanged turns an exit that nobody asked for into Handle.Finish.
func (b *Backend) stateChanged(id string, oldState, newState process.State, err error) {
	if oldState != process.StateRunning {
		return
	}
	if newState != process.StateIdle && newState != process.StateError {
		return
	}

	b.mu.Lock()
	g := b.graphs[id]
	b.mu.Unlock()
	if g == nil {
		return
	}
	if err == nil {
		err = ErrExited
	}
	g.handle.Finish(err)
}
