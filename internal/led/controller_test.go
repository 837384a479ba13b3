package led

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNoopController(t *testing.T) {
	ctrl := newNoop(testLogger())

	if err := ctrl.Set("user", PatternSolid); err != nil {
		t.Errorf("Set() returned error: %v", err)
	}
	if names := ctrl.Available(); len(names) != 0 {
		t.Errorf("Available() = %v, want empty slice", names)
	}
}

func TestSysfsController_Available(t *testing.T) {
	tests := []struct {
		name string
		leds map[string]string
		want []string
	}{
		{"NanoPC-T6 LEDs", map[string]string{"user": "usr_led", "system": "sys_led"}, []string{"system", "user"}},
		{"Orange Pi LEDs", map[string]string{"green": "green_led", "blue": "blue_led"}, []string{"blue", "green"}},
		{"No LEDs", map[string]string{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newSysfs(t.TempDir(), tt.leds).Available()
			if !slices.Equal(got, tt.want) {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSysfsController_Set(t *testing.T) {
	tests := []struct {
		pattern    string
		trigger    string
		brightness string
	}{
		{PatternSolid, "none", "1"},
		{PatternBlink, "heartbeat", "1"},
		{PatternOff, "none", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			root := t.TempDir()
			if err := os.Mkdir(filepath.Join(root, "usr_led"), 0o755); err != nil {
				t.Fatal(err)
			}
			ctrl := newSysfs(root, map[string]string{"user": "usr_led"})

			if err := ctrl.Set("user", tt.pattern); err != nil {
				t.Fatalf("Set() returned error: %v", err)
			}
			trigger, _ := os.ReadFile(filepath.Join(root, "usr_led", "trigger"))
			if string(trigger) != tt.trigger {
				t.Errorf("expected trigger %q, got %q", tt.trigger, trigger)
			}
			brightness, _ := os.ReadFile(filepath.Join(root, "usr_led", "brightness"))
			if string(brightness) != tt.brightness {
				t.Errorf("expected brightness %q, got %q", tt.brightness, brightness)
			}
		})
	}
}

func TestSysfsController_SetErrors(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "usr_led"), 0o755); err != nil {
		t.Fatal(err)
	}
	ctrl := newSysfs(root, map[string]string{"user": "usr_led", "system": "sys_led"})

	if err := ctrl.Set("nonexistent", PatternSolid); err == nil {
		t.Error("expected error for unknown LED")
	}
	if err := ctrl.Set("system", PatternSolid); err == nil {
		t.Error("expected error for LED missing from sysfs")
	}
	if err := ctrl.Set("user", "strobe"); err == nil {
		t.Error("expected error for unknown pattern")
	}
}
