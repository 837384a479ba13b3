package media

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/smazurov/rtspcam/internal/pipeline"
)

// Mount table errors.
var (
	ErrMountExists   = errors.New("mount point already registered")
	ErrMountNotFound = errors.New("mount point not found")
)

// NormalizeMount returns p with exactly one leading slash and no trailing
// slash, so "main", "/main" and "/main/" name the same mount.
func NormalizeMount(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	return path.Clean("/" + strings.Trim(p, "/"))
}

// MountPoints maps mount paths to factories.
type MountPoints struct {
	mu        sync.RWMutex
	factories map[string]*Factory
}

// NewMountPoints creates an empty mount table.
func NewMountPoints() *MountPoints {
	return &MountPoints{factories: make(map[string]*Factory)}
}

// Add registers f under its mount path.
func (m *MountPoints) Add(f *Factory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.factories[f.Mount()]; ok {
		return fmt.Errorf("%w: %s", ErrMountExists, f.Mount())
	}
	m.factories[f.Mount()] = f
	return nil
}

// Replace registers f in place of the factory currently mounted at the
// same path and returns the previous one, or nil.
func (m *MountPoints) Replace(f *Factory) *Factory {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.factories[f.Mount()]
	m.factories[f.Mount()] = f
	return old
}

// Remove unregisters the factory at mount and returns it.
func (m *MountPoints) Remove(mount string) (*Factory, error) {
	mount = NormalizeMount(mount)
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.factories[mount]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMountNotFound, mount)
	}
	delete(m.factories, mount)
	return f, nil
}

// Lookup returns the factory serving mount.
func (m *MountPoints) Lookup(mount string) (*Factory, error) {
	mount = NormalizeMount(mount)
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.factories[mount]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMountNotFound, mount)
	}
	return f, nil
}

// Acquire looks mount up and acquires its shared media.
func (m *MountPoints) Acquire(ctx context.Context, mount string) (*Media, error) {
	f, err := m.Lookup(mount)
	if err != nil {
		return nil, err
	}
	return f.Acquire(ctx)
}

// Paths returns the registered mount paths in sorted order.
func (m *MountPoints) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.factories))
}

// Factories returns the registered factories ordered by mount path.
func (m *MountPoints) Factories() []*Factory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Factory, 0, len(m.factories))
	for _, p := range slices.Sorted(maps.Keys(m.factories)) {
		out = append(out, m.factories[p])
	}
	return out
}

// Overlays snapshots the overlay reference of every mount. Mounts without
// a live overlay map to nil.
func (m *MountPoints) Overlays() map[string]*pipeline.ElementRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*pipeline.ElementRef, len(m.factories))
	for p, f := range m.factories {
		out[p] = f.Overlay()
	}
	return out
}

// CloseAll closes every factory and empties the table.
func (m *MountPoints) CloseAll() error {
	m.mu.Lock()
	factories := m.factories
	m.factories = make(map[string]*Factory)
	m.mu.Unlock()

	var err error
	for _, p := range slices.Sorted(maps.Keys(factories)) {
		if cerr := factories[p].Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", p, cerr))
		}
	}
	return err
}
