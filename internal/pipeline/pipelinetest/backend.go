// Package pipelinetest provides an in-memory pipeline backend for tests.
package pipelinetest

import (
	"sync"

	"github.com/smazurov/rtspcam/internal/pipeline"
)

// Write is one property write that reached a running graph.
type Write struct {
	HandleID uint64
	Element  string
	Key      string
	Value    string
}

// Backend records what a real backend would have done. The first frame of
// every graph is rendered synchronously in Play, capturing the overlay
// text at that moment.
type Backend struct {
	PrepareErr error
	PlayErr    error
	// StopHook runs at the start of every Stop, outside the backend lock.
	StopHook func(h *pipeline.Handle)

	mu          sync.Mutex
	playing     map[uint64]*pipeline.Handle
	firstFrames map[uint64]string
	writes      []Write
	stopped     int
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		playing:     make(map[uint64]*pipeline.Handle),
		firstFrames: make(map[uint64]string),
	}
}

// Prepare binds a recording sink to every overlay's text property.
func (b *Backend) Prepare(h *pipeline.Handle) error {
	if b.PrepareErr != nil {
		return b.PrepareErr
	}
	id := h.ID()
	for _, e := range h.Elements() {
		if e.Kind() != pipeline.KindOverlay {
			continue
		}
		name := e.Name()
		e.Bind("text", func(value string) error {
			b.mu.Lock()
			b.writes = append(b.writes, Write{HandleID: id, Element: name, Key: "text", Value: value})
			b.mu.Unlock()
			return nil
		})
	}
	return nil
}

// Play renders the first frame and marks the graph as running.
func (b *Backend) Play(h *pipeline.Handle) error {
	if b.PlayErr != nil {
		return b.PlayErr
	}
	var text string
	for _, e := range h.Elements() {
		if e.Kind() == pipeline.KindOverlay {
			text, _ = e.Property("text")
		}
	}
	b.mu.Lock()
	b.playing[h.ID()] = h
	b.firstFrames[h.ID()] = text
	b.mu.Unlock()
	return nil
}

// Stop forgets the graph.
func (b *Backend) Stop(h *pipeline.Handle) error {
	if b.StopHook != nil {
		b.StopHook(h)
	}
	b.mu.Lock()
	delete(b.playing, h.ID())
	b.stopped++
	b.mu.Unlock()
	return nil
}

// Crash makes a running graph stop on its own.
func (b *Backend) Crash(id uint64, err error) {
	b.mu.Lock()
	h := b.playing[id]
	b.mu.Unlock()
	if h != nil {
		h.Finish(err)
	}
}

// Playing returns the number of graphs currently running.
func (b *Backend) Playing() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.playing)
}

// Stopped returns how many graphs were stopped.
func (b *Backend) Stopped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// FirstFrame returns the overlay text of the first frame of graph id.
func (b *Backend) FirstFrame(id uint64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	text, ok := b.firstFrames[id]
	return text, ok
}

// Writes returns a copy of every recorded write.
func (b *Backend) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Write, len(b.writes))
	copy(out, b.writes)
	return out
}

// Reset clears recorded writes.
func (b *Backend) Reset() {
	b.mu.Lock()
	b.writes = nil
	b.mu.Unlock()
}
