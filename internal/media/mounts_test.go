package media_test

import (
	"errors"
	"testing"

	"github.com/smazurov/rtspcam/internal/media"
	"github.com/smazurov/rtspcam/internal/pipeline"
)

func TestNormalizeMount(t *testing.T) {
	tests := map[string]string{
		"main":    "/main",
		"/main":   "/main",
		"/main/":  "/main",
		" cam/a ": "/cam/a",
		"":        "/",
	}
	for input, want := range tests {
		if got := media.NormalizeMount(input); got != want {
			t.Errorf("NormalizeMount(%q): expected %q, got %q", input, want, got)
		}
	}
}

func TestMountPoints(t *testing.T) {
	fx := newFixture(t)
	f := fx.factory(t, pipeline.Features{Overlay: true}, media.Options{})

	if err := fx.mounts.Add(f); !errors.Is(err, media.ErrMountExists) {
		t.Errorf("expected ErrMountExists, got %v", err)
	}

	got, err := fx.mounts.Lookup("main")
	if err != nil || got != f {
		t.Errorf("expected lookup to find factory, got %v, %v", got, err)
	}
	if _, err := fx.mounts.Lookup("/other"); !errors.Is(err, media.ErrMountNotFound) {
		t.Errorf("expected ErrMountNotFound, got %v", err)
	}

	if paths := fx.mounts.Paths(); len(paths) != 1 || paths[0] != "/main" {
		t.Errorf("expected [/main], got %v", paths)
	}

	overlays := fx.mounts.Overlays()
	if ref, ok := overlays["/main"]; !ok || ref != nil {
		t.Errorf("expected idle mount to report a nil overlay, got %v", overlays)
	}

	replacement, err := media.NewFactory("/main", pipeline.DefaultStreamConfig(), pipeline.Features{}, fx.runtime, media.Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	if old := fx.mounts.Replace(replacement); old != f {
		t.Error("expected Replace to return the previous factory")
	}

	if err := fx.mounts.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	if len(fx.mounts.Paths()) != 0 {
		t.Error("expected empty table after CloseAll")
	}
	if _, err := fx.mounts.Remove("/main"); !errors.Is(err, media.ErrMountNotFound) {
		t.Errorf("expected ErrMountNotFound, got %v", err)
	}
}
