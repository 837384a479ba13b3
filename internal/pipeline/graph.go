package pipeline

import (
	"errors"
	"strconv"
	"sync"
)

// ErrStaleElement is returned when a reference outlives its pipeline.
var ErrStaleElement = errors.New("element belongs to a destroyed pipeline")

// State is the lifecycle state of an instantiated pipeline.
type State string

// Pipeline states.
const (
	StateNull     State = "null"     // elements created, backend not prepared
	StateReady    State = "ready"    // prepared, configured callback may run
	StatePlaying  State = "playing"  // producing frames
	StateStopped  State = "stopped"  // torn down
	StateFinished State = "finished" // backend exited on its own
)

// PropertySink receives property values written to an element. Backends
// bind sinks to make writes visible to the running graph. A sink must
// replace the whole value at once.
type PropertySink func(value string) error

// Element is a running instance of a description node.
type Element struct {
	kind     Kind
	typ      string
	name     string
	children []*Element

	mu    sync.Mutex
	props map[string]string
	sinks map[string]PropertySink
}

func newElement(n Node) *Element {
	e := &Element{
		kind:  n.Kind,
		typ:   n.Element,
		name:  n.Name,
		props: make(map[string]string, len(n.Params)),
		sinks: make(map[string]PropertySink),
	}
	for _, p := range n.Params {
		e.props[p.Key] = p.Value
	}
	for _, c := range n.Children {
		e.children = append(e.children, newElement(c))
	}
	return e
}

// Kind returns the element's role.
func (e *Element) Kind() Kind { return e.kind }

// Type returns the element type, e.g. "textoverlay".
func (e *Element) Type() string { return e.typ }

// Name returns the element name, possibly empty.
func (e *Element) Name() string { return e.name }

// Children returns the elements of a bin.
func (e *Element) Children() []*Element { return e.children }

// Property returns the last value set for key.
func (e *Element) Property(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[key]
	return v, ok
}

// Bind routes future writes of key to sink. Backends call this while
// preparing a pipeline, before the configured callback runs.
func (e *Element) Bind(key string, sink PropertySink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks[key] = sink
}

func (e *Element) set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sink, ok := e.sinks[key]; ok {
		if err := sink(value); err != nil {
			return err
		}
	}
	e.props[key] = value
	return nil
}

// Handle is an instantiated pipeline. The Runtime that created it owns its
// lifetime; references into it stay safe to use after it is destroyed.
type Handle struct {
	id    uint64
	label string
	desc  Description
	root  *Element

	mu    sync.RWMutex
	alive bool
	state State

	destroyOnce sync.Once
	done        chan struct{}
	finishOnce  sync.Once
	err         error
}

func newHandle(id uint64, label string, desc Description) *Handle {
	return &Handle{
		id:    id,
		label: label,
		desc:  desc,
		root:  newElement(desc.Root),
		alive: true,
		state: StateNull,
		done:  make(chan struct{}),
	}
}

// ID returns the runtime-unique instance id.
func (h *Handle) ID() uint64 { return h.id }

// Label returns the label given at instantiation, usually the mount path.
func (h *Handle) Label() string { return h.label }

// StreamID names the stream the running graph publishes. Transports use
// it to find the graph's output.
func (h *Handle) StreamID() string { return "pipeline-" + strconv.FormatUint(h.id, 10) }

// Description returns the description the graph was built from.
func (h *Handle) Description() Description { return h.desc }

// Root returns the top-level bin.
func (h *Handle) Root() *Element { return h.root }

// Alive reports whether the graph has not been destroyed yet.
func (h *Handle) Alive() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.alive
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// invalidate marks the graph dead. It waits for in-flight property writes,
// after which no reference can reach the elements again.
func (h *Handle) invalidate() {
	h.mu.Lock()
	h.alive = false
	h.mu.Unlock()
}

// Finish is called by a backend when the graph stops on its own, for
// example when the encoder process exits. Only the first call counts.
func (h *Handle) Finish(err error) {
	h.finishOnce.Do(func() {
		h.mu.Lock()
		h.err = err
		if h.state == StatePlaying {
			h.state = StateFinished
		}
		h.mu.Unlock()
		close(h.done)
	})
}

// Done is closed once the backend reports the graph has stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the error passed to Finish.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Elements returns every element in the graph, parents first.
func (h *Handle) Elements() []*Element {
	var out []*Element
	var walk func(e *Element)
	walk = func(e *Element) {
		out = append(out, e)
		for _, c := range e.children {
			walk(c)
		}
	}
	walk(h.root)
	return out
}

// ElementRef is a non-owning, liveness-checked reference to an element.
// Writes through it fail with ErrStaleElement once the owning pipeline is
// destroyed, and never race with the destruction itself.
type ElementRef struct {
	handle *Handle
	elem   *Element
}

// Handle returns the pipeline the element lives in.
func (r *ElementRef) Handle() *Handle { return r.handle }

// Name returns the referenced element's name.
func (r *ElementRef) Name() string { return r.elem.name }

// Alive reports whether the owning pipeline is still alive.
func (r *ElementRef) Alive() bool { return r.handle.Alive() }

// Set writes a property while holding the pipeline alive.
func (r *ElementRef) Set(key, value string) error {
	r.handle.mu.RLock()
	defer r.handle.mu.RUnlock()
	if !r.handle.alive {
		return ErrStaleElement
	}
	return r.elem.set(key, value)
}

// Get reads a property of a live element.
func (r *ElementRef) Get(key string) (string, error) {
	r.handle.mu.RLock()
	defer r.handle.mu.RUnlock()
	if !r.handle.alive {
		return "", ErrStaleElement
	}
	v, _ := r.elem.Property(key)
	return v, nil
}
