package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/rtspcam/internal/events"
	"github.com/smazurov/rtspcam/internal/logging"
	"github.com/smazurov/rtspcam/internal/pipeline"
)

// ErrFactoryClosed is returned by Acquire after Close.
var ErrFactoryClosed = errors.New("media factory closed")

// DefaultRestartDelay is how long an eager factory waits before bringing
// back a pipeline that exited on its own.
const DefaultRestartDelay = 2 * time.Second

// PrimeFunc writes initial text into a freshly located overlay so the
// first frame never shows a placeholder. It must not block.
type PrimeFunc func(mount string, ref *pipeline.ElementRef) error

// Options configures a Factory.
type Options struct {
	// Eager instantiates the pipeline at construction and keeps it warm
	// with no clients attached.
	Eager bool
	// Linger keeps a pipeline alive for this long after its last client
	// leaves. Zero tears it down immediately.
	Linger time.Duration
	// RestartDelay applies to eager factories only.
	RestartDelay time.Duration
	// Prime is called from the configured callback when an overlay exists.
	Prime PrimeFunc
	// Events receives lifecycle events (optional).
	Events events.Publisher
	// Logger defaults to slog.Default().
	Logger logging.Logger
}

// Factory produces the media for one mount point. Every client of the
// mount shares a single pipeline instance; the factory instantiates it on
// first use and destroys it when the last client releases it.
type Factory struct {
	mount    string
	cfg      pipeline.StreamConfig
	features pipeline.Features
	desc     pipeline.Description
	runtime  *pipeline.Runtime
	opts     Options
	logger   logging.Logger

	overlay atomic.Pointer[pipeline.ElementRef]

	mu      sync.Mutex
	current *Media
	linger  *time.Timer
	restart *time.Timer
	retired bool
	closed  bool
}

// NewFactory validates cfg and creates a shared factory for mount. Nothing
// is instantiated unless opts.Eager is set.
func NewFactory(mount string, cfg pipeline.StreamConfig, features pipeline.Features, rt *pipeline.Runtime, opts Options) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, errors.New("media factory requires a pipeline runtime")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}

	f := &Factory{
		mount:    NormalizeMount(mount),
		cfg:      cfg,
		features: features,
		desc:     pipeline.Build(cfg, features),
		runtime:  rt,
		opts:     opts,
		logger:   opts.Logger,
	}

	if opts.Eager {
		f.mu.Lock()
		_, err := f.ensureLocked()
		f.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("start %s: %w", f.mount, err)
		}
	}
	return f, nil
}

// Mount returns the mount path.
func (f *Factory) Mount() string { return f.mount }

// Shared reports whether clients share one pipeline. Always true.
func (f *Factory) Shared() bool { return true }

// Config returns the stream configuration.
func (f *Factory) Config() pipeline.StreamConfig { return f.cfg }

// Features returns the feature flags the description was built with.
func (f *Factory) Features() pipeline.Features { return f.features }

// Description returns the pipeline description.
func (f *Factory) Description() pipeline.Description { return f.desc }

// Overlay returns a snapshot of the current overlay reference, or nil
// when no live pipeline has one.
func (f *Factory) Overlay() *pipeline.ElementRef { return f.overlay.Load() }

// Acquire returns the shared media, instantiating the pipeline if none is
// running. Each successful Acquire must be paired with a Release.
func (f *Factory) Acquire(ctx context.Context) (*Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFactoryClosed
	}
	m, err := f.ensureLocked()
	if err != nil {
		return nil, err
	}
	if f.linger != nil {
		f.linger.Stop()
		f.linger = nil
	}
	m.clients++
	f.logger.Debug("Media acquired", "mount", f.mount, "handle", m.handle.ID(), "clients", m.clients)
	return m, nil
}

// Release drops one client. When the last client leaves, the pipeline is
// torn down unless the factory keeps it warm.
func (f *Factory) Release(m *Media) {
	if m == nil {
		return
	}

	f.mu.Lock()
	if m.clients == 0 {
		f.mu.Unlock()
		f.logger.Warn("Media released more often than acquired", "mount", f.mount, "handle", m.handle.ID())
		return
	}
	m.clients--
	f.logger.Debug("Media released", "mount", f.mount, "handle", m.handle.ID(), "clients", m.clients)

	if m.clients > 0 {
		f.mu.Unlock()
		return
	}

	if m != f.current {
		f.mu.Unlock()
		f.destroy(m)
		return
	}

	switch {
	case f.closed || f.retired:
	case f.opts.Eager:
		f.mu.Unlock()
		return
	case f.opts.Linger > 0:
		f.linger = time.AfterFunc(f.opts.Linger, func() { f.expire(m) })
		f.mu.Unlock()
		return
	}

	f.current = nil
	f.mu.Unlock()
	f.destroy(m)
}

// Clients returns the number of clients attached to the current media.
func (f *Factory) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return 0
	}
	return f.current.clients
}

// Current returns the running media, or nil.
func (f *Factory) Current() *Media {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Retire stops the factory from keeping its pipeline warm. The pipeline
// is destroyed now if idle, otherwise when its last client leaves. New
// clients may still acquire until Close.
func (f *Factory) Retire() {
	f.mu.Lock()
	f.retired = true
	f.stopTimersLocked()
	m := f.current
	if m == nil || m.clients > 0 {
		f.mu.Unlock()
		return
	}
	f.current = nil
	f.mu.Unlock()
	f.destroy(m)
}

// Close destroys the running pipeline regardless of attached clients and
// rejects further Acquire calls.
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.stopTimersLocked()
	m := f.current
	f.current = nil
	f.mu.Unlock()

	if m == nil {
		return nil
	}
	return f.destroy(m)
}

// CloseIdle closes the factory if no pipeline is running and reports
// whether the factory is closed.
func (f *Factory) CloseIdle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return true
	}
	if f.current != nil {
		return false
	}
	f.closed = true
	f.stopTimersLocked()
	return true
}

// OnConfigured stores the overlay of a freshly built pipeline and primes
// its text. It runs before the pipeline plays.
func (f *Factory) OnConfigured(h *pipeline.Handle) {
	ref := pipeline.Locate(h, pipeline.OverlayElementName)
	f.overlay.Store(ref)

	if ref == nil {
		if f.features.Overlay {
			f.logger.Warn("Overlay element not found, timestamp disabled", "mount", f.mount, "handle", h.ID())
		}
	} else if f.opts.Prime != nil {
		if err := f.opts.Prime(f.mount, ref); err != nil {
			f.logger.Warn("Failed to prime overlay", "mount", f.mount, "handle", h.ID(), "error", err)
		}
	}

	f.publish(events.PipelineConfiguredEvent{
		Mount:           f.mount,
		HandleID:        h.ID(),
		OverlayAttached: ref != nil,
		Timestamp:       now(),
	})
}

// OnTeardown forgets the overlay if it belongs to h. A reference into a
// newer pipeline is left alone.
func (f *Factory) OnTeardown(h *pipeline.Handle) {
	if ref := f.overlay.Load(); ref != nil && ref.Handle() == h {
		f.overlay.CompareAndSwap(ref, nil)
	}
	f.publish(events.PipelineTeardownEvent{
		Mount:     f.mount,
		HandleID:  h.ID(),
		Timestamp: now(),
	})
}

// ensureLocked returns the current media, instantiating it if needed.
func (f *Factory) ensureLocked() (*Media, error) {
	if f.current != nil {
		return f.current, nil
	}

	h, err := f.runtime.Instantiate(f.mount, f.desc, f)
	if err != nil {
		return nil, err
	}
	m := &Media{factory: f, handle: h}
	f.current = m

	f.logger.Info("Shared pipeline instantiated", "mount", f.mount, "handle", h.ID())
	f.publish(events.PipelineInstantiatedEvent{Mount: f.mount, HandleID: h.ID(), Timestamp: now()})

	go f.watch(m)
	return m, nil
}

// watch reacts to the pipeline stopping on its own.
func (f *Factory) watch(m *Media) {
	<-m.handle.Done()

	f.mu.Lock()
	wasCurrent := f.current == m
	if wasCurrent {
		f.current = nil
	}
	restart := wasCurrent && f.opts.Eager && !f.closed && !f.retired
	f.mu.Unlock()

	err := m.handle.Err()
	if !m.destroyed.Load() {
		f.logger.Warn("Pipeline exited", "mount", f.mount, "handle", m.handle.ID(), "error", err)
		ev := events.PipelineExitedEvent{Mount: f.mount, HandleID: m.handle.ID(), Timestamp: now()}
		if err != nil {
			ev.Error = err.Error()
		}
		f.publish(ev)
	}
	f.destroy(m)

	if restart {
		f.mu.Lock()
		f.restart = time.AfterFunc(f.opts.RestartDelay, f.revive)
		f.mu.Unlock()
	}
}

func (f *Factory) revive() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restart = nil
	if f.closed || f.retired {
		return
	}
	if _, err := f.ensureLocked(); err != nil {
		f.logger.Error("Failed to restart pipeline", "mount", f.mount, "error", err)
		f.restart = time.AfterFunc(f.opts.RestartDelay, f.revive)
	}
}

// expire runs when the linger period elapses.
func (f *Factory) expire(m *Media) {
	f.mu.Lock()
	if f.current != m || m.clients > 0 {
		f.mu.Unlock()
		return
	}
	f.current = nil
	f.linger = nil
	f.mu.Unlock()
	f.destroy(m)
}

func (f *Factory) destroy(m *Media) error {
	m.destroyed.Store(true)
	err := f.runtime.Destroy(m.handle, f)
	if err != nil {
		f.logger.Warn("Failed to stop pipeline", "mount", f.mount, "handle", m.handle.ID(), "error", err)
	}
	return err
}

func (f *Factory) stopTimersLocked() {
	if f.linger != nil {
		f.linger.Stop()
		f.linger = nil
	}
	if f.restart != nil {
		f.restart.Stop()
		f.restart = nil
	}
}

func (f *Factory) publish(ev events.Event) {
	if f.opts.Events != nil {
		f.opts.Events.Publish(ev)
	}
}

func now() string { return time.Now().Format(time.RFC3339) }

// Media is one shared pipeline instance together with its client count.
type Media struct {
	factory   *Factory
	handle    *pipeline.Handle
	clients   int
	destroyed atomic.Bool
}

// Mount returns the mount path the media serves.
func (m *Media) Mount() string { return m.factory.mount }

// Handle returns the running pipeline.
func (m *Media) Handle() *pipeline.Handle { return m.handle }

// StreamID names the stream the pipeline publishes.
func (m *Media) StreamID() string { return m.handle.StreamID() }

// Release hands the media back to its factory.
func (m *Media) Release() { m.factory.Release(m) }
