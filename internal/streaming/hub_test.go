package streaming

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProducer struct {
	mu      sync.Mutex
	tracks  []*core.Receiver
	stopped int
}

func newFakeProducer() *fakeProducer {
	media := &core.Media{
		Kind:      core.KindVideo,
		Direction: core.DirectionRecvonly,
		Codecs:    []*core.Codec{{Name: core.CodecH264, ClockRate: 90000, PayloadType: 96}},
	}
	return &fakeProducer{tracks: []*core.Receiver{core.NewReceiver(media, media.Codecs[0])}}
}

func (p *fakeProducer) Tracks() []*core.Receiver { return p.tracks }

func (p *fakeProducer) Stop() error {
	p.mu.Lock()
	p.stopped++
	p.mu.Unlock()
	return nil
}

func (p *fakeProducer) Stopped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type fakeConsumer struct {
	mu      sync.Mutex
	tracks  int
	stopped int
}

func (c *fakeConsumer) GetMedias() []*core.Media { return nil }

func (c *fakeConsumer) AddTrack(_ *core.Media, _ *core.Codec, _ *core.Receiver) error {
	c.mu.Lock()
	c.tracks++
	c.mu.Unlock()
	return nil
}

func (c *fakeConsumer) Stop() error {
	c.mu.Lock()
	c.stopped++
	c.mu.Unlock()
	return nil
}

func (c *fakeConsumer) counts() (tracks, stopped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracks, c.stopped
}

func TestWaitProducerAlreadyPresent(t *testing.T) {
	hub := NewHub(testLogger())
	prod := newFakeProducer()
	hub.AddProducer("pipeline-1", prod)

	got, err := hub.WaitProducer(context.Background(), "pipeline-1")
	if err != nil {
		t.Fatalf("WaitProducer failed: %v", err)
	}
	if got != prod {
		t.Error("expected the registered producer")
	}
}

func TestWaitProducerWakesOnAdd(t *testing.T) {
	hub := NewHub(testLogger())
	prod := newFakeProducer()

	done := make(chan error, 1)
	go func() {
		_, err := hub.WaitProducer(context.Background(), "pipeline-1")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for hub.Waiting("pipeline-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("waiter never registered")
		}
		time.Sleep(time.Millisecond)
	}

	hub.AddProducer("pipeline-1", prod)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected producer, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
	if hub.Waiting("pipeline-1") != 0 {
		t.Errorf("expected no waiters, got %d", hub.Waiting("pipeline-1"))
	}
}

func TestWaitProducerTimeout(t *testing.T) {
	hub := NewHub(testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := hub.WaitProducer(ctx, "pipeline-9")
	if !errors.Is(err, ErrProducerTimeout) {
		t.Fatalf("expected ErrProducerTimeout, got %v", err)
	}
	if hub.Waiting("pipeline-9") != 0 {
		t.Errorf("expected waiter to be dropped, got %d", hub.Waiting("pipeline-9"))
	}
}

func TestWireConsumerAddsAllTracks(t *testing.T) {
	hub := NewHub(testLogger())
	cons := &fakeConsumer{}

	if err := hub.WireConsumer("pipeline-1", "/main", cons); !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}

	hub.AddProducer("pipeline-1", newFakeProducer())
	if err := hub.WireConsumer("pipeline-1", "/main", cons); err != nil {
		t.Fatalf("WireConsumer failed: %v", err)
	}
	if tracks, _ := cons.counts(); tracks != 1 {
		t.Errorf("expected 1 track, got %d", tracks)
	}
	if hub.Consumers("pipeline-1") != 1 {
		t.Errorf("expected 1 consumer, got %d", hub.Consumers("pipeline-1"))
	}

	hub.UnwireConsumer("pipeline-1", cons)
	if hub.Consumers("pipeline-1") != 0 {
		t.Errorf("expected 0 consumers, got %d", hub.Consumers("pipeline-1"))
	}
}

func TestRemoveProducerStopsConsumers(t *testing.T) {
	hub := NewHub(testLogger())
	prod := newFakeProducer()
	hub.AddProducer("pipeline-1", prod)

	var notified sync.WaitGroup
	notified.Add(1)
	hub.SetOnProducerReplaced(func(streamID string) {
		if streamID != "pipeline-1" {
			t.Errorf("expected pipeline-1, got %s", streamID)
		}
		notified.Done()
	})

	a, b := &fakeConsumer{}, &fakeConsumer{}
	_ = hub.WireConsumer("pipeline-1", "/main", a)
	_ = hub.WireConsumer("pipeline-1", "/main", b)

	hub.RemoveProducer("pipeline-1")
	notified.Wait()

	if prod.Stopped() != 1 {
		t.Errorf("expected producer stopped once, got %d", prod.Stopped())
	}
	for i, c := range []*fakeConsumer{a, b} {
		if _, stopped := c.counts(); stopped != 1 {
			t.Errorf("consumer %d: expected stopped once, got %d", i, stopped)
		}
	}
	if hub.HasProducer("pipeline-1") {
		t.Error("expected producer to be gone")
	}
}

func TestAddProducerReplacesExisting(t *testing.T) {
	hub := NewHub(testLogger())
	first, second := newFakeProducer(), newFakeProducer()
	cons := &fakeConsumer{}

	hub.AddProducer("pipeline-1", first)
	_ = hub.WireConsumer("pipeline-1", "/main", cons)
	hub.AddProducer("pipeline-1", second)

	if first.Stopped() != 1 {
		t.Errorf("expected old producer stopped, got %d", first.Stopped())
	}
	if _, stopped := cons.counts(); stopped != 1 {
		t.Errorf("expected consumer of old producer stopped, got %d", stopped)
	}
	if hub.GetProducer("pipeline-1") != second {
		t.Error("expected new producer to be registered")
	}
}

func TestListStreamsSorted(t *testing.T) {
	hub := NewHub(testLogger())
	hub.AddProducer("pipeline-2", newFakeProducer())
	hub.AddProducer("pipeline-1", newFakeProducer())

	got := hub.ListStreams()
	if len(got) != 2 || got[0] != "pipeline-1" || got[1] != "pipeline-2" {
		t.Errorf("expected [pipeline-1 pipeline-2], got %v", got)
	}

	hub.Stop()
	if len(hub.ListStreams()) != 0 {
		t.Error("expected no streams after Stop")
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr     string
		expected bool
	}{
		{"127.0.0.1:40000", true},
		{"[::1]:40000", true},
		{"192.168.1.20:40000", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := isLoopback(tt.addr); got != tt.expected {
			t.Errorf("isLoopback(%q): expected %v, got %v", tt.addr, tt.expected, got)
		}
	}
}
