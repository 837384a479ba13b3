package led

import (
	"sync"

	"github.com/smazurov/rtspcam/internal/events"
	"github.com/smazurov/rtspcam/internal/logging"
)

// Tally shows on an LED whether the camera is live: solid while at least
// one viewer watches, blinking while a pipeline runs with nobody watching,
// off otherwise.
type Tally struct {
	controller Controller
	name       string
	bus        *events.Bus
	logger     logging.Logger

	mu        sync.Mutex
	viewers   int
	pipelines int
	pattern   string
	unsubs    []func()
}

// NewTally drives the LED called name. An empty name picks the first LED
// the controller offers.
func NewTally(controller Controller, name string, bus *events.Bus, logger logging.Logger) *Tally {
	if name == "" {
		if available := controller.Available(); len(available) > 0 {
			name = available[0]
		}
	}
	return &Tally{
		controller: controller,
		name:       name,
		bus:        bus,
		logger:     logger,
	}
}

// Name is the LED the tally drives.
func (t *Tally) Name() string { return t.name }

// Start switches the LED off and begins following session and pipeline
// events.
func (t *Tally) Start() {
	t.mu.Lock()
	t.applyLocked()
	t.unsubs = []func(){
		t.bus.Subscribe(func(events.SessionOpenedEvent) { t.update(1, 0) }),
		t.bus.Subscribe(func(events.SessionClosedEvent) { t.update(-1, 0) }),
		t.bus.Subscribe(func(events.PipelineInstantiatedEvent) { t.update(0, 1) }),
		t.bus.Subscribe(func(events.PipelineTeardownEvent) { t.update(0, -1) }),
	}
	t.mu.Unlock()
	t.logger.Info("Tally LED started", "led", t.name)
}

// Stop unsubscribes and switches the LED off.
func (t *Tally) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil
	t.viewers, t.pipelines = 0, 0
	t.applyLocked()
}

// Pattern is the pattern last applied.
func (t *Tally) Pattern() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pattern
}

func (t *Tally) update(viewers, pipelines int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Events of different types may arrive out of order.
	t.viewers = max(t.viewers+viewers, 0)
	t.pipelines = max(t.pipelines+pipelines, 0)
	t.applyLocked()
}

func (t *Tally) applyLocked() {
	pattern := PatternOff
	switch {
	case t.viewers > 0:
		pattern = PatternSolid
	case t.pipelines > 0:
		pattern = PatternBlink
	}
	if pattern == t.pattern || t.name == "" {
		return
	}
	if err := t.controller.Set(t.name, pattern); err != nil {
		t.logger.Warn("Failed to set tally LED", "led", t.name, "pattern", pattern, "error", err)
		return
	}
	t.pattern = pattern
	t.logger.Debug("Tally LED updated", "led", t.name, "pattern", pattern, "viewers", t.viewers)
}
