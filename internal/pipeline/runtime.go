package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/smazurov/rtspcam/internal/logging"
)

// Listener receives lifecycle callbacks for pipelines it asked for.
type Listener interface {
	// OnConfigured runs synchronously after the graph is built and before it
	// starts playing. It must not block.
	OnConfigured(h *Handle)
	// OnTeardown runs before the graph is invalidated and stopped.
	OnTeardown(h *Handle)
}

// Backend executes instantiated graphs.
type Backend interface {
	// Prepare allocates resources and binds property sinks. No frames may be
	// produced yet.
	Prepare(h *Handle) error
	// Play starts producing frames. The backend calls h.Finish when the
	// graph stops on its own.
	Play(h *Handle) error
	// Stop halts the graph and releases everything Prepare allocated.
	Stop(h *Handle) error
}

// Runtime instantiates descriptions on a backend and drives the lifecycle
// callbacks around it.
type Runtime struct {
	backend      Backend
	logger       logging.Logger
	nextID       atomic.Uint64
	active       atomic.Int64
	instantiated atomic.Uint64
}

// NewRuntime creates a runtime on top of backend.
func NewRuntime(backend Backend, logger logging.Logger) *Runtime {
	return &Runtime{backend: backend, logger: logger}
}

// Instantiate builds and starts a graph from desc. The configured callback
// has returned before the backend is told to play.
func (r *Runtime) Instantiate(label string, desc Description, l Listener) (*Handle, error) {
	h := newHandle(r.nextID.Add(1), label, desc)

	if err := r.backend.Prepare(h); err != nil {
		h.invalidate()
		h.setState(StateStopped)
		return nil, fmt.Errorf("prepare pipeline %d: %w", h.id, err)
	}
	h.setState(StateReady)

	if l != nil {
		l.OnConfigured(h)
	}

	if err := r.backend.Play(h); err != nil {
		if l != nil {
			l.OnTeardown(h)
		}
		h.invalidate()
		if stopErr := r.backend.Stop(h); stopErr != nil {
			r.logger.Warn("Failed to release pipeline after play error", "id", h.id, "error", stopErr)
		}
		h.setState(StateStopped)
		return nil, fmt.Errorf("play pipeline %d: %w", h.id, err)
	}
	h.setState(StatePlaying)

	r.active.Add(1)
	r.instantiated.Add(1)
	r.logger.Info("Pipeline playing", "id", h.id, "label", label)
	return h, nil
}

// Destroy tears a graph down. The teardown callback runs first, then every
// reference into the graph is invalidated, then the backend stops it.
// Destroying twice is a no-op. Done is closed once Destroy returns.
func (r *Runtime) Destroy(h *Handle, l Listener) error {
	var err error
	h.destroyOnce.Do(func() {
		if l != nil {
			l.OnTeardown(h)
		}
		h.invalidate()
		err = r.backend.Stop(h)
		h.setState(StateStopped)
		h.Finish(nil)
		r.active.Add(-1)
		r.logger.Info("Pipeline destroyed", "id", h.id, "label", h.label)
	})
	return err
}

// Active returns the number of graphs currently instantiated.
func (r *Runtime) Active() int { return int(r.active.Load()) }

// Instantiated returns how many graphs were ever started.
func (r *Runtime) Instantiated() uint64 { return r.instantiated.Load() }
