package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/rtspcam/internal/events"
)

// Metrics counts pipeline lifecycles, viewer sessions and overlay writes.
// Lifecycle and session numbers come from the event bus; overlay numbers
// are recorded directly by the updater.
type Metrics struct {
	pipelinesInstantiated *prometheus.CounterVec
	pipelinesActive       *prometheus.GaugeVec
	pipelineExits         *prometheus.CounterVec
	overlayAttached       *prometheus.GaugeVec
	sessionsTotal         *prometheus.CounterVec
	sessionsActive        *prometheus.GaugeVec
	configReloads         prometheus.Counter
	overlayWrites         *prometheus.CounterVec
	overlaySkips          *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		pipelinesInstantiated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "instantiated_total",
			Help:      "Shared pipelines instantiated per mount",
		}, []string{"mount"}),
		pipelinesActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "active",
			Help:      "Shared pipelines currently running per mount",
		}, []string{"mount"}),
		pipelineExits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "unexpected_exits_total",
			Help:      "Pipelines that stopped without being torn down",
		}, []string{"mount"}),
		overlayAttached: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "attached",
			Help:      "1 when the running pipeline of a mount has an overlay element",
		}, []string{"mount"}),
		sessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "opened_total",
			Help:      "Viewer sessions opened",
		}, []string{"mount", "transport"}),
		sessionsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Viewer sessions currently open",
		}, []string{"mount", "transport"}),
		configReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Configuration reloads that replaced at least one mount",
		}),
		overlayWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "writes_total",
			Help:      "Overlay text writes that reached a pipeline",
		}, []string{"mount"}),
		overlaySkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "skips_total",
			Help:      "Overlay ticks skipped per reason",
		}, []string{"mount", "reason"}),
	}
}

// Subscribe feeds the collectors from bus and returns the unsubscribe
// function.
func (m *Metrics) Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.PipelineInstantiatedEvent) {
			m.pipelinesInstantiated.WithLabelValues(e.Mount).Inc()
			m.pipelinesActive.WithLabelValues(e.Mount).Inc()
		}),
		bus.Subscribe(func(e events.PipelineConfiguredEvent) {
			v := 0.0
			if e.OverlayAttached {
				v = 1
			}
			m.overlayAttached.WithLabelValues(e.Mount).Set(v)
		}),
		bus.Subscribe(func(e events.PipelineTeardownEvent) {
			m.pipelinesActive.WithLabelValues(e.Mount).Dec()
			m.overlayAttached.WithLabelValues(e.Mount).Set(0)
		}),
		bus.Subscribe(func(e events.PipelineExitedEvent) {
			m.pipelineExits.WithLabelValues(e.Mount).Inc()
		}),
		bus.Subscribe(func(e events.SessionOpenedEvent) {
			m.sessionsTotal.WithLabelValues(e.Mount, e.Transport).Inc()
			m.sessionsActive.WithLabelValues(e.Mount, e.Transport).Inc()
		}),
		bus.Subscribe(func(e events.SessionClosedEvent) {
			m.sessionsActive.WithLabelValues(e.Mount, e.Transport).Dec()
		}),
		bus.Subscribe(func(events.ConfigReloadedEvent) {
			m.configReloads.Inc()
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// OverlayWritten counts one successful overlay write.
func (m *Metrics) OverlayWritten(mount string) {
	m.overlayWrites.WithLabelValues(mount).Inc()
}

// OverlaySkipped counts one skipped overlay write.
func (m *Metrics) OverlaySkipped(mount, reason string) {
	m.overlaySkips.WithLabelValues(mount, reason).Inc()
}
