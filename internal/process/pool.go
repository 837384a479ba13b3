package process

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/rtspcam/internal/logging"
)

// stopTimeout bounds how long Stop waits for a process to exit.
const stopTimeout = 15 * time.Second

// Pool manages named processes.
type Pool interface {
	// Start starts a process by ID. Returns error if already running.
	Start(id string) error

	// Stop stops a process by ID and waits for it to exit.
	Stop(id string) error

	// GetStatus returns process info. Returns idle state if not found.
	GetStatus(id string) *Info

	// IsRunning checks if a process is currently running.
	IsRunning(id string) bool

	// StopAll stops every process.
	StopAll()
}

type managedProcess struct {
	proc      *Process
	id        string
	state     State
	startedAt time.Time
	lastError error
	cancel    context.CancelFunc
	done      chan struct{}
}

type pool struct {
	opts      PoolOptions
	processes map[string]*managedProcess
	mu        sync.RWMutex
	logger    logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPool creates a new process pool. It panics without a CommandProvider.
func NewPool(opts *PoolOptions) Pool {
	if opts == nil || opts.CommandProvider == nil {
		panic("PoolOptions with CommandProvider is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	var logger logging.Logger = slog.Default()
	if opts.Logger != nil {
		logger = opts.Logger
	}

	return &pool{
		opts:      *opts,
		processes: make(map[string]*managedProcess),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts a process by ID.
func (p *pool) Start(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if mp, exists := p.processes[id]; exists {
		if mp.state == StateRunning || mp.state == StateStarting {
			return fmt.Errorf("process %s already running", id)
		}
	}

	args, err := p.opts.CommandProvider(id)
	if err != nil {
		return fmt.Errorf("failed to generate command: %w", err)
	}

	ctx, cancel := context.WithCancel(p.ctx)
	mp := &managedProcess{
		id:        id,
		proc:      NewProcess(id, args, p.logger),
		state:     StateStarting,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if p.opts.ConfigureProcess != nil {
		p.opts.ConfigureProcess(id, mp.proc)
	}
	p.processes[id] = mp

	p.notifyStateChange(id, StateIdle, StateStarting, nil)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(mp.done)
		p.runProcess(ctx, mp)
	}()
	return nil
}

func (p *pool) runProcess(ctx context.Context, mp *managedProcess) {
	p.mu.Lock()
	oldState := mp.state
	if oldState == StateStarting {
		mp.state = StateRunning
	}
	p.mu.Unlock()
	if oldState == StateStarting {
		p.notifyStateChange(mp.id, oldState, StateRunning, nil)
	}

	exitCode := mp.proc.Run()

	p.mu.Lock()
	oldState = mp.state
	switch {
	case ctx.Err() != nil || oldState == StateStopping:
		mp.state = StateIdle
	case exitCode != 0:
		mp.state = StateError
		mp.lastError = fmt.Errorf("process exited with code %d", exitCode)
		p.logger.Error("Process crashed", "id", mp.id, "exit_code", exitCode)
	default:
		mp.state = StateIdle
	}
	newState := mp.state
	lastErr := mp.lastError
	p.mu.Unlock()

	p.notifyStateChange(mp.id, oldState, newState, lastErr)
	p.logger.Info("Process stopped", "id", mp.id, "exit_code", exitCode)
}

// Stop stops a process by ID.
func (p *pool) Stop(id string) error {
	p.mu.Lock()
	mp, exists := p.processes[id]
	if !exists {
		p.mu.Unlock()
		return nil
	}
	if mp.state != StateRunning && mp.state != StateStarting {
		delete(p.processes, id)
		p.mu.Unlock()
		return nil
	}

	oldState := mp.state
	mp.state = StateStopping
	p.mu.Unlock()

	p.notifyStateChange(id, oldState, StateStopping, nil)
	p.logger.Debug("Stopping process", "id", id)

	mp.cancel()
	mp.proc.Shutdown()

	var err error
	select {
	case <-mp.done:
	case <-time.After(stopTimeout):
		err = fmt.Errorf("process %s did not stop within %s", id, stopTimeout)
	}

	p.mu.Lock()
	delete(p.processes, id)
	p.mu.Unlock()
	return err
}

// GetStatus returns process info.
func (p *pool) GetStatus(id string) *Info {
	p.mu.RLock()
	defer p.mu.RUnlock()

	mp, exists := p.processes[id]
	if !exists {
		return &Info{ID: id, State: StateIdle}
	}
	return &Info{
		ID:        id,
		State:     mp.state,
		PID:       mp.proc.PID(),
		StartedAt: mp.startedAt,
		LastError: mp.lastError,
	}
}

// IsRunning checks if a process is currently running.
func (p *pool) IsRunning(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	mp, exists := p.processes[id]
	return exists && mp.state == StateRunning
}

// StopAll stops every process and waits for them to exit.
func (p *pool) StopAll() {
	p.cancel()

	p.mu.RLock()
	ids := make([]string, 0, len(p.processes))
	for id := range p.processes {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	for _, id := range ids {
		if err := p.Stop(id); err != nil {
			p.logger.Warn("Failed to stop process", "id", id, "error", err)
		}
	}

	p.wg.Wait()
}

func (p *pool) notifyStateChange(id string, oldState, newState State, err error) {
	if p.opts.OnStateChange != nil {
		p.opts.OnStateChange(id, oldState, newState, err)
	}
}
