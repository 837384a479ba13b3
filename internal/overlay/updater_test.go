package overlay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/rtspcam/internal/pipeline"
	"github.com/smazurov/rtspcam/internal/pipeline/pipelinetest"
)

var noon = time.Date(2024, 3, 9, 12, 0, 5, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingRecorder struct {
	mu      sync.Mutex
	written map[string]int
	skipped map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{written: map[string]int{}, skipped: map[string]int{}}
}

func (r *countingRecorder) OverlayWritten(mount string) {
	r.mu.Lock()
	r.written[mount]++
	r.mu.Unlock()
}

func (r *countingRecorder) OverlaySkipped(_, reason string) {
	r.mu.Lock()
	r.skipped[reason]++
	r.mu.Unlock()
}

func instantiate(t *testing.T, rt *pipeline.Runtime, overlay bool) (*pipeline.Handle, *pipeline.ElementRef) {
	t.Helper()
	desc := pipeline.Build(pipeline.DefaultStreamConfig(), pipeline.Features{Overlay: overlay})
	h, err := rt.Instantiate("/main", desc, nil)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	return h, pipeline.Locate(h, pipeline.OverlayElementName)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"", "2024-03-09 12:00:05", true},
		{"datetime", "2024-03-09 12:00:05", true},
		{"TIME", "12:00:05", true},
		{"epoch", "", false},
	}

	for _, tt := range tests {
		f, err := ParseFormat(tt.input)
		if (err == nil) != tt.ok {
			t.Errorf("ParseFormat(%q): expected ok=%v, got %v", tt.input, tt.ok, err)
			continue
		}
		if f != nil && f.Format(noon) != tt.want {
			t.Errorf("ParseFormat(%q): expected %q, got %q", tt.input, tt.want, f.Format(noon))
		}
	}
}

func TestTickWritesEveryLiveOverlay(t *testing.T) {
	backend := pipelinetest.New()
	rt := pipeline.NewRuntime(backend, testLogger())
	_, ref := instantiate(t, rt, true)

	rec := newCountingRecorder()
	u := NewUpdater(Options{
		Source:    SourceFunc(func() map[string]*pipeline.ElementRef { return map[string]*pipeline.ElementRef{"/main": ref, "/idle": nil} }),
		Formatter: TimeOnly,
		Clock:     func() time.Time { return noon },
		Recorder:  rec,
		Logger:    testLogger(),
	})

	if n := u.Tick(); n != 1 {
		t.Fatalf("expected 1 write, got %d", n)
	}
	if v, _ := ref.Get(TextProperty); v != "12:00:05" {
		t.Errorf("expected overlay text 12:00:05, got %q", v)
	}
	if rec.written["/main"] != 1 {
		t.Errorf("expected one recorded write, got %v", rec.written)
	}
	if len(backend.Writes()) != 1 {
		t.Errorf("expected backend to see one write, got %v", backend.Writes())
	}
}

func TestTickWithNoPipeline(t *testing.T) {
	u := NewUpdater(Options{
		Source: SourceFunc(func() map[string]*pipeline.ElementRef { return nil }),
		Logger: testLogger(),
	})
	for range 3 {
		if n := u.Tick(); n != 0 {
			t.Errorf("expected no writes, got %d", n)
		}
	}
}

func TestTickSkipsStaleReference(t *testing.T) {
	backend := pipelinetest.New()
	rt := pipeline.NewRuntime(backend, testLogger())
	h, ref := instantiate(t, rt, true)

	if err := rt.Destroy(h, nil); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	backend.Reset()

	rec := newCountingRecorder()
	u := NewUpdater(Options{
		Source:   SourceFunc(func() map[string]*pipeline.ElementRef { return map[string]*pipeline.ElementRef{"/main": ref} }),
		Recorder: rec,
		Logger:   testLogger(),
	})

	if n := u.Tick(); n != 0 {
		t.Errorf("expected no writes to a destroyed pipeline, got %d", n)
	}
	if len(backend.Writes()) != 0 {
		t.Errorf("expected backend untouched, got %v", backend.Writes())
	}
	if rec.skipped[SkipStale] != 1 {
		t.Errorf("expected one stale skip, got %v", rec.skipped)
	}
}

func TestTickContinuesAfterWriteFailure(t *testing.T) {
	backend := pipelinetest.New()
	rt := pipeline.NewRuntime(backend, testLogger())
	broken, brokenRef := instantiate(t, rt, true)
	_, goodRef := instantiate(t, rt, true)

	for _, e := range broken.Elements() {
		if e.Kind() == pipeline.KindOverlay {
			e.Bind(TextProperty, func(string) error { return errors.New("read-only file system") })
		}
	}

	rec := newCountingRecorder()
	u := NewUpdater(Options{
		Source: SourceFunc(func() map[string]*pipeline.ElementRef {
			return map[string]*pipeline.ElementRef{"/a": brokenRef, "/b": goodRef}
		}),
		Recorder: rec,
		Logger:   testLogger(),
	})

	if n := u.Tick(); n != 1 {
		t.Errorf("expected the healthy overlay to be written, got %d writes", n)
	}
	if rec.skipped[SkipFailed] != 1 {
		t.Errorf("expected one failed skip, got %v", rec.skipped)
	}
}

func TestStampNilReference(t *testing.T) {
	u := NewUpdater(Options{
		Source: SourceFunc(func() map[string]*pipeline.ElementRef { return nil }),
		Logger: testLogger(),
	})
	if err := u.Stamp("/main", nil); err != nil {
		t.Errorf("expected nil reference to be ignored, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	var mu sync.Mutex
	ticks := 0
	u := NewUpdater(Options{
		Source: SourceFunc(func() map[string]*pipeline.ElementRef {
			mu.Lock()
			ticks++
			mu.Unlock()
			return nil
		}),
		Interval: 5 * time.Millisecond,
		Logger:   testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		u.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if ticks == 0 {
		t.Error("expected at least one tick before cancel")
	}
}

func TestNewUpdaterDefaults(t *testing.T) {
	u := NewUpdater(Options{Source: SourceFunc(func() map[string]*pipeline.ElementRef { return nil })})
	if u.interval != DefaultInterval {
		t.Errorf("expected default interval %v, got %v", DefaultInterval, u.interval)
	}
	if u.Formatter() != DateTime {
		t.Errorf("expected DateTime formatter, got %s", u.Formatter().Name())
	}
}

func TestFormatsNeverMix(t *testing.T) {
	full := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
	short := regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)

	for _, instant := range []time.Time{
		noon,
		time.Date(1999, 12, 31, 23, 59, 59, 999_999_999, time.UTC),
		time.Date(2030, 1, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600)),
	} {
		if got := DateTime.Format(instant); !full.MatchString(got) {
			t.Errorf("expected YYYY-MM-DD HH:MM:SS, got %q", got)
		}
		if got := TimeOnly.Format(instant); !short.MatchString(got) {
			t.Errorf("expected HH:MM:SS, got %q", got)
		}
	}
}
