// Package server wires the RTSP service together: one shared media factory
// per mount, the overlay updater, the RTSP and WebRTC front ends and the
// HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/smazurov/rtspcam/internal/api"
	"github.com/smazurov/rtspcam/internal/capture"
	"github.com/smazurov/rtspcam/internal/config"
	"github.com/smazurov/rtspcam/internal/events"
	"github.com/smazurov/rtspcam/internal/ffmpeg"
	"github.com/smazurov/rtspcam/internal/led"
	"github.com/smazurov/rtspcam/internal/logging"
	"github.com/smazurov/rtspcam/internal/media"
	"github.com/smazurov/rtspcam/internal/metrics"
	"github.com/smazurov/rtspcam/internal/metrics/exporters"
	"github.com/smazurov/rtspcam/internal/overlay"
	"github.com/smazurov/rtspcam/internal/pipeline"
	"github.com/smazurov/rtspcam/internal/streaming"
)

var (
	// ErrStarted is returned by Start on a running Runtime.
	ErrStarted = errors.New("runtime already started")
	// ErrStopped is returned once Stop was called.
	ErrStopped = errors.New("runtime stopped")
)

// reloadableModules get their level reapplied on every config reload.
var reloadableModules = []string{
	"main", "media", "overlay", "pipeline", "ffmpeg",
	"streaming", "webrtc", "api", "config", "led",
}

// Options are the process-level collaborators of a Runtime. Zero values
// select the production behavior.
type Options struct {
	// Stdout receives the readiness banner. Defaults to os.Stdout.
	Stdout io.Writer
	// Registerer and Gatherer back the Prometheus metrics. Default to the
	// global registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Backend replaces the ffmpeg backend.
	Backend pipeline.Backend
	// Notify reports service state. Defaults to systemd sd_notify.
	Notify func(state string)
	// Command carries the CLI flags that survive config reloads.
	Command *cobra.Command
	// Watch reloads the config file on change.
	Watch bool
	// LEDController replaces board detection for the tally light.
	LEDController led.Controller
}

// Runtime is one running RTSP service.
type Runtime struct {
	opts   Options
	logger *slog.Logger

	bus          *events.Bus
	metrics      *metrics.Metrics
	unsubMetrics func()
	backend      pipeline.Backend
	ffmpeg       *ffmpeg.Backend
	pipelines    *pipeline.Runtime
	mounts       *media.MountPoints
	updater      *overlay.Updater
	hub          *streaming.Hub
	sessions     *streaming.Sessions
	rtsp         *streaming.Server
	webrtc       *streaming.WebRTCManager
	stats        *exporters.StatsExporter
	tally        *led.Tally
	api          *api.Server
	watcher      *config.Watcher[config.Options]

	cancel      context.CancelFunc
	updaterDone chan struct{}

	mu      sync.Mutex
	base    config.Options
	current config.Options
	retired []*media.Factory
	started bool
	stopped bool
}

// New validates cfg and builds every component. Nothing listens and no
// pipeline runs until Start.
func New(cfg config.Options, opts Options) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Notify == nil {
		opts.Notify = sdNotify
	}

	r := &Runtime{
		opts:    opts,
		logger:  logging.GetLogger("main"),
		base:    cfg,
		current: cfg,
	}

	if opts.Backend == nil && !cfg.PipelineTestSource && !cfg.PipelineSkipDeviceCheck {
		info, err := capture.Check(cfg.StreamDevice)
		if err != nil {
			return nil, err
		}
		r.logger.Info("Capture device found", "device", info.Path, "major", info.Major, "minor", info.Minor)
	}

	r.bus = events.New()
	r.metrics = metrics.New(opts.Registerer)
	r.unsubMetrics = r.metrics.Subscribe(r.bus)

	timeout, _ := cfg.ProducerTimeout()
	r.hub = streaming.NewHub(logging.GetLogger("streaming"))
	r.sessions = streaming.NewSessions(r.hub, streaming.ResolverFunc(r.attach), streaming.SessionOptions{
		ProducerTimeout: timeout,
		Events:          r.bus,
		Logger:          logging.GetLogger("streaming"),
	})
	r.rtsp = streaming.NewServer(r.sessions, logging.GetLogger("streaming"))
	r.webrtc = streaming.NewWebRTCManager(r.sessions, streaming.WebRTCConfig{}, logging.GetLogger("webrtc"))

	r.backend = opts.Backend
	if r.backend == nil {
		inputOpts, _ := cfg.InputOptions()
		r.ffmpeg = ffmpeg.NewBackend(ffmpeg.BackendOptions{
			Binary:        cfg.PipelineBinary,
			Encoder:       cfg.PipelineEncoder,
			PublishURL:    r.rtsp.PublishURL,
			TestSource:    cfg.PipelineTestSource,
			Options:       inputOpts,
			LogLevel:      cfg.PipelineLogLevel,
			Logger:        logging.GetLogger("pipeline"),
			ProcessLogger: logging.GetLogger("ffmpeg"),
			Progress:      cfg.PipelineProgress,
		})
		r.backend = r.ffmpeg
	}
	r.pipelines = pipeline.NewRuntime(r.backend, logging.GetLogger("pipeline"))
	r.mounts = media.NewMountPoints()

	formatter, _ := cfg.Formatter()
	interval, _ := cfg.OverlayRefresh()
	r.updater = overlay.NewUpdater(overlay.Options{
		Source:    overlay.SourceFunc(r.overlays),
		Formatter: formatter,
		Interval:  interval,
		Recorder:  r.metrics,
		Logger:    logging.GetLogger("overlay"),
	})
	r.stats = exporters.NewStatsExporter(r.bus)

	if cfg.FeaturesTallyLED {
		ctrl := opts.LEDController
		if ctrl == nil {
			ctrl = led.New(logging.GetLogger("led"))
		}
		r.tally = led.NewTally(ctrl, cfg.FeaturesTallyLEDName, r.bus, logging.GetLogger("led"))
	}

	if addr := cfg.HTTPAddr(); addr != "" {
		apiOpts := &api.Options{
			AuthUsername:      cfg.AuthUsername,
			AuthPassword:      cfg.AuthPassword,
			Mounts:            r.mounts,
			MountURL:          r.URL,
			EventBus:          r.bus,
			WebRTC:            r.webrtc,
			PrometheusHandler: exporters.HandlerFor(opts.Gatherer),
		}
		if r.ffmpeg != nil {
			apiOpts.Renderer = r.ffmpeg
		}
		r.api = api.NewServer(apiOpts)
	}
	return r, nil
}

func (r *Runtime) attach(ctx context.Context, mount string) (streaming.Lease, error) {
	m, err := r.mounts.Acquire(ctx, mount)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// overlays lists the overlay of every mounted factory plus those of
// retired factories still serving viewers, keyed "<mount>@<handle>".
// Retired factories found idle are closed and dropped.
func (r *Runtime) overlays() map[string]*pipeline.ElementRef {
	out := r.mounts.Overlays()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneRetiredLocked()
	for _, f := range r.retired {
		if ref := f.Overlay(); ref != nil {
			out[fmt.Sprintf("%s@%d", f.Mount(), ref.Handle().ID())] = ref
		}
	}
	return out
}

func (r *Runtime) pruneRetiredLocked() {
	r.retired = slices.DeleteFunc(r.retired, (*media.Factory).CloseIdle)
}

func (r *Runtime) newFactory(cfg *config.Options) (*media.Factory, error) {
	linger, err := cfg.Linger()
	if err != nil {
		return nil, err
	}
	return media.NewFactory(cfg.Mount(), cfg.StreamConfig(), cfg.Features(), r.pipelines, media.Options{
		Eager:  cfg.PipelineEager,
		Linger: linger,
		Prime:  r.updater.Stamp,
		Events: r.bus,
		Logger: logging.GetLogger("media"),
	})
}

// Start binds the RTSP listener, mounts the shared factory and reports
// readiness. A bind failure is fatal.
func (r *Runtime) Start() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if r.started {
		r.mu.Unlock()
		return ErrStarted
	}
	r.started = true
	cfg := r.current
	r.mu.Unlock()

	if err := r.start(&cfg); err != nil {
		return multierr.Append(err, r.Stop())
	}

	fmt.Fprintf(r.opts.Stdout, "RTSP server is ready at %s\n", r.URL(cfg.Mount()))
	r.opts.Notify(daemon.SdNotifyReady)
	return nil
}

func (r *Runtime) start(cfg *config.Options) error {
	if r.tally != nil {
		r.tally.Start()
	}
	if err := r.rtsp.Start(cfg.RTSPAddr()); err != nil {
		return fmt.Errorf("start rtsp server: %w", err)
	}

	f, err := r.newFactory(cfg)
	if err != nil {
		return err
	}
	if err := r.mounts.Add(f); err != nil {
		return multierr.Append(err, f.Close())
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.updaterDone = make(chan struct{})
	go func() {
		defer close(r.updaterDone)
		r.updater.Run(ctx)
	}()
	r.stats.Start(ctx)

	if r.api != nil {
		if err := r.api.Start(cfg.HTTPAddr()); err != nil {
			return fmt.Errorf("start api server: %w", err)
		}
	}

	if r.opts.Watch && cfg.Config != "" {
		w := config.NewConfigWatcher(cfg.Config, r.load, logging.GetLogger("config"))
		w.OnReload(func(next config.Options) {
			if err := r.Reload(next); err != nil {
				r.logger.Error("Config reload rejected", "error", err)
			}
		})
		if err := w.Start(); err != nil {
			r.logger.Warn("Config watcher unavailable", "path", cfg.Config, "error", err)
		} else {
			r.mu.Lock()
			r.watcher = w
			r.mu.Unlock()
		}
	}
	return nil
}

// load re-reads the config file on top of the startup options so that
// flags given on the command line keep precedence.
func (r *Runtime) load(path string) (config.Options, error) {
	r.mu.Lock()
	next := r.base
	r.mu.Unlock()
	next.Config = path
	if err := config.LoadConfig(&next, r.opts.Command); err != nil {
		return config.Options{}, err
	}
	return next, nil
}

// Reload applies next. Log levels change in place. A changed pipeline
// replaces the mounted factory: clients of the old one keep their stream
// until they leave, new clients get the new pipeline.
func (r *Runtime) Reload(next config.Options) error {
	if err := next.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	old, err := r.reloadLocked(next)
	r.mu.Unlock()

	// Retire may wait for an idle pipeline to stop.
	if old != nil {
		old.Retire()
	}
	return err
}

func (r *Runtime) reloadLocked(next config.Options) (*media.Factory, error) {
	if r.stopped {
		return nil, ErrStopped
	}
	r.pruneRetiredLocked()

	logCfg := next.Logging()
	for _, module := range reloadableModules {
		level, ok := logCfg.Modules[module]
		if !ok {
			level = logCfg.Level
		}
		logging.SetModuleLevel(module, level)
	}

	prev := r.current
	if keys := prev.RestartRequired(&next); len(keys) > 0 {
		r.logger.Warn("Config changes take effect after restart", "keys", keys)
	}
	if !prev.PipelineChanged(&next) {
		r.current = next
		return nil, nil
	}

	f, err := r.newFactory(&next)
	if err != nil {
		return nil, err
	}

	var old *media.Factory
	if next.Mount() == prev.Mount() {
		old = r.mounts.Replace(f)
	} else {
		old, _ = r.mounts.Remove(prev.Mount())
		if err := r.mounts.Add(f); err != nil {
			if old != nil {
				_ = r.mounts.Add(old)
			}
			return nil, multierr.Append(err, f.Close())
		}
	}
	if old != nil {
		r.retired = append(r.retired, old)
	}
	r.current = next

	r.logger.Info("Pipeline configuration reloaded", "mount", f.Mount(), "config", f.Config())
	r.bus.Publish(events.ConfigReloadedEvent{
		Mounts:    []string{f.Mount()},
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return old, nil
}

// Stop tears everything down in reverse order of Start. Safe to call more
// than once.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	started := r.started
	watcher := r.watcher
	retired := r.retired
	r.retired = nil
	r.mu.Unlock()

	var err error
	if watcher != nil {
		err = multierr.Append(err, watcher.Stop())
	}
	if r.api != nil && r.api.Addr() != nil {
		err = multierr.Append(err, r.api.Stop())
	}
	if r.rtsp.Addr() != nil {
		err = multierr.Append(err, r.rtsp.Stop())
	}
	r.webrtc.Stop()

	err = multierr.Append(err, r.mounts.CloseAll())
	for _, f := range retired {
		err = multierr.Append(err, f.Close())
	}

	if r.cancel != nil {
		r.cancel()
		<-r.updaterDone
	}
	r.stats.Stop()
	if r.tally != nil && started {
		r.tally.Stop()
	}
	r.unsubMetrics()
	if r.ffmpeg != nil {
		r.ffmpeg.Close()
	}

	if started {
		r.opts.Notify(daemon.SdNotifyStopping)
	}
	if err != nil {
		r.logger.Warn("Shutdown finished with errors", "error", err)
	}
	return err
}

// URL is the address viewers use for mount.
func (r *Runtime) URL(mount string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url(mount)
}

func (r *Runtime) url(mount string) string {
	port := r.base.RTSPService
	if addr, ok := r.rtsp.Addr().(*net.TCPAddr); ok {
		port = strconv.Itoa(addr.Port)
	}
	return "rtsp://" + net.JoinHostPort(advertisedHost(r.base.RTSPHost), port) + media.NormalizeMount(mount)
}

// advertisedHost maps a wildcard bind address to loopback, which viewers
// on the same machine can open.
func advertisedHost(host string) string {
	if host == "" {
		return "127.0.0.1"
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		if ip.To4() == nil {
			return "::1"
		}
		return "127.0.0.1"
	}
	return host
}

// Mounts exposes the mount table.
func (r *Runtime) Mounts() *media.MountPoints { return r.mounts }

// Sessions exposes the viewer sessions.
func (r *Runtime) Sessions() *streaming.Sessions { return r.sessions }

// Bus exposes the event bus.
func (r *Runtime) Bus() *events.Bus { return r.bus }

// RTSPAddr is the bound RTSP address, or nil before Start.
func (r *Runtime) RTSPAddr() net.Addr { return r.rtsp.Addr() }

// APIAddr is the bound HTTP address, or nil when the API is disabled.
func (r *Runtime) APIAddr() net.Addr {
	if r.api == nil {
		return nil
	}
	return r.api.Addr()
}

func sdNotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logging.GetLogger("main").Debug("sd_notify failed", "error", err)
	}
}
