package process

import "github.com/smazurov/rtspcam/internal/logging"

// CommandProvider returns the argv to run for a process id.
type CommandProvider func(id string) (args []string, err error)

// StateChangeCallback is called on every state transition. err is set
// when a running process failed.
type StateChangeCallback func(id string, oldState, newState State, err error)

// Configurer adjusts a Process before it starts.
type Configurer func(id string, proc *Process)

// PoolOptions configures a new Pool.
type PoolOptions struct {
	// CommandProvider generates the command for a given process ID (required).
	CommandProvider CommandProvider

	// OnStateChange is called when process state transitions (optional).
	OnStateChange StateChangeCallback

	// ConfigureProcess allows customization of the Process before start (optional).
	ConfigureProcess Configurer

	// Logger for pool operations. If nil, uses slog.Default().
	Logger logging.Logger
}
