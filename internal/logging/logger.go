package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is satisfied by *slog.Logger. Packages accept it instead of the
// concrete type so tests can pass any slog-compatible logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type registry struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	global      slog.LevelVar
	out         io.Writer
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
		out:     os.Stdout,
	}
}

// Initialize applies config to the default logger and to every module
// logger, including ones handed out before Initialize was called.
func Initialize(config Config) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.config = config
	reg.initialized = true

	global, ok := parseLevel(config.Level)
	if !ok {
		global = slog.LevelInfo
	}
	reg.global.Set(global)

	for module, levelVar := range reg.levels {
		levelVar.Set(reg.moduleLevel(module))
		reg.loggers[module] = slog.New(reg.handler(levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(reg.handler(&reg.global)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	reg.mu.RLock()
	logger, ok := reg.loggers[module]
	reg.mu.RUnlock()
	if ok {
		return logger
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if logger, ok := reg.loggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(reg.moduleLevel(module))
	logger = slog.New(reg.handler(levelVar)).With("module", module)
	reg.loggers[module] = logger
	reg.levels[module] = levelVar
	return logger
}

// SetModuleLevel changes a module's level at runtime.
func SetModuleLevel(module, level string) bool {
	parsed, ok := parseLevel(level)
	if !ok {
		return false
	}
	GetLogger(module)
	reg.mu.RLock()
	reg.levels[module].Set(parsed)
	reg.mu.RUnlock()
	return true
}

// moduleLevel resolves the level for module. Caller holds the lock.
func (r *registry) moduleLevel(module string) slog.Level {
	if !r.initialized {
		return slog.LevelInfo
	}
	if s, ok := r.config.Modules[module]; ok {
		if l, ok := parseLevel(s); ok {
			return l
		}
	}
	return r.global.Level()
}

// handler builds the output chain: stdout when something is attached to it,
// plus the systemd journal when it is reachable.
func (r *registry) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if r.initialized && r.config.Format == "json" {
		stdout = slog.NewJSONHandler(r.out, opts)
	} else {
		stdout = slog.NewTextHandler(r.out, opts)
	}

	var handlers []slog.Handler
	if r.out != os.Stdout || isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if r.out == os.Stdout && IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	switch len(handlers) {
	case 0:
		return stdout
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// isStdoutAvailable reports whether stdout goes to a terminal, pipe, socket
// or regular file rather than /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
