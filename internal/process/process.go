package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/rtspcam/internal/logging"
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser extracts a level and message from one line of process output.
type LogParser func(line string) (level, msg string)

// ExitKilled is the exit code reported after a forced kill.
const ExitKilled = 137

// Process runs one subprocess until it exits or is shut down.
type Process struct {
	id              string
	args            []string
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser      // nil = every line at info
	outputHandler   OutputHandler
	ctx             context.Context
	cancel          context.CancelFunc
	gracefulTimeout time.Duration // SIGINT to SIGKILL
	killTimeout     time.Duration // SIGKILL to giving up

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewProcess creates a process for argv args. Nothing runs until Run.
func NewProcess(id string, args []string, logger logging.Logger) *Process {
	ctx, cancel := context.WithCancel(context.Background())
	return &Process{
		id:              id,
		args:            args,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// ID returns the process id given at creation.
func (p *Process) ID() string { return p.id }

// Args returns the argv the process runs.
func (p *Process) Args() []string { return p.args }

// SetLogParser sets the logger and parser used for process output.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetOutputHandler forwards every output line to h.
func (p *Process) SetOutputHandler(h OutputHandler) {
	p.outputHandler = h
}

// PID returns the operating system pid, or 0 before start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Shutdown asks Run to stop the subprocess: SIGINT first, SIGKILL after
// the graceful timeout.
func (p *Process) Shutdown() {
	p.cancel()
}

// Run starts the subprocess and blocks until it exits or Shutdown is
// called. It returns the exit code.
func (p *Process) Run() int {
	processDone, outputDone, err := p.start()
	if err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "error", err)
		return 1
	}
	defer func() {
		<-outputDone
		<-outputDone
	}()

	select {
	case <-p.ctx.Done():
		p.sendStopSignal()
		return p.waitForExit(processDone)
	case processErr := <-processDone:
		exitCode := exitCodeFromError(processErr)
		if processErr != nil && exitCode == 1 {
			p.logger.Error("Process exited with error", "id", p.id, "error", processErr)
		}
		return exitCode
	}
}

func (p *Process) start() (<-chan error, <-chan struct{}, error) {
	if len(p.args) == 0 {
		return nil, nil, errors.New("empty command")
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "binary", p.args[0])

	outputDone := make(chan struct{}, 2)
	go func() {
		p.streamOutput(stdout, "stdout")
		outputDone <- struct{}{}
	}()
	go func() {
		p.streamOutput(stderr, "stderr")
		outputDone <- struct{}{}
	}()

	processDone := make(chan error, 1)
	go func() {
		processDone <- cmd.Wait()
	}()
	return processDone, outputDone, nil
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func (p *Process) sendStopSignal() {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	p.logger.Debug("Sending SIGINT to process", "id", p.id, "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		p.logger.Warn("Failed to send SIGINT", "id", p.id, "error", err)
	}
}

func (p *Process) waitForExit(processDone <-chan error) int {
	select {
	case err := <-processDone:
		return exitCodeFromError(err)
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("Failed to kill process", "id", p.id, "error", err)
	}

	select {
	case <-processDone:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
	}
	return ExitKilled
}

func (p *Process) streamOutput(reader io.Reader, source string) {
	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg, "id", p.id)
		case "warning":
			logger.Warn(msg, "id", p.id)
		case "debug", "trace":
			logger.Debug(msg, "id", p.id)
		default:
			logger.Info(msg, "id", p.id)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}
