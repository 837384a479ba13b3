package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/rtspcam/internal/events"
	"github.com/smazurov/rtspcam/internal/overlay"
)

var _ overlay.Recorder = (*Metrics)(nil)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMetricsFollowEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())
	bus := events.New()
	unsub := m.Subscribe(bus)
	defer unsub()

	bus.Publish(events.PipelineInstantiatedEvent{Mount: "/main", HandleID: 1})
	bus.Publish(events.PipelineConfiguredEvent{Mount: "/main", HandleID: 1, OverlayAttached: true})
	bus.Publish(events.SessionOpenedEvent{Mount: "/main", Transport: "rtsp"})
	bus.Publish(events.SessionOpenedEvent{Mount: "/main", Transport: "rtsp"})

	waitFor(t, "instantiation", func() bool {
		return testutil.ToFloat64(m.pipelinesInstantiated.WithLabelValues("/main")) == 1
	})
	waitFor(t, "overlay attached", func() bool {
		return testutil.ToFloat64(m.overlayAttached.WithLabelValues("/main")) == 1
	})
	waitFor(t, "two sessions", func() bool {
		return testutil.ToFloat64(m.sessionsActive.WithLabelValues("/main", "rtsp")) == 2
	})

	bus.Publish(events.SessionClosedEvent{Mount: "/main", Transport: "rtsp"})
	bus.Publish(events.PipelineTeardownEvent{Mount: "/main", HandleID: 1})
	bus.Publish(events.PipelineExitedEvent{Mount: "/main", HandleID: 2})
	bus.Publish(events.ConfigReloadedEvent{Mounts: []string{"/main"}})

	waitFor(t, "session close", func() bool {
		return testutil.ToFloat64(m.sessionsActive.WithLabelValues("/main", "rtsp")) == 1
	})
	waitFor(t, "teardown", func() bool {
		return testutil.ToFloat64(m.pipelinesActive.WithLabelValues("/main")) == 0 &&
			testutil.ToFloat64(m.overlayAttached.WithLabelValues("/main")) == 0
	})
	waitFor(t, "exit", func() bool {
		return testutil.ToFloat64(m.pipelineExits.WithLabelValues("/main")) == 1
	})
	waitFor(t, "reload", func() bool {
		return testutil.ToFloat64(m.configReloads) == 1
	})

	if got := testutil.ToFloat64(m.sessionsTotal.WithLabelValues("/main", "rtsp")); got != 2 {
		t.Errorf("expected 2 sessions opened, got %v", got)
	}
}

func TestMetricsOverlayRecorder(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OverlayWritten("/main")
	m.OverlayWritten("/main")
	m.OverlaySkipped("/main", overlay.SkipStale)

	if got := testutil.ToFloat64(m.overlayWrites.WithLabelValues("/main")); got != 2 {
		t.Errorf("expected 2 writes, got %v", got)
	}
	if got := testutil.ToFloat64(m.overlaySkips.WithLabelValues("/main", overlay.SkipStale)); got != 1 {
		t.Errorf("expected 1 stale skip, got %v", got)
	}
	if got := testutil.ToFloat64(m.overlaySkips.WithLabelValues("/main", overlay.SkipFailed)); got != 0 {
		t.Errorf("expected 0 failed skips, got %v", got)
	}
}
