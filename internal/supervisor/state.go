// Package supervisor manages the lifecycle of individual instrument component processes.
package supervisor

// State represents the current state of a supervised component.
// Components launch exactly once per session, so states only ever move
// forward: Starting -> Running -> one of the terminal states.
type State int

const (
	// StateStarting is the initial state while the process is being spawned.
	// A spawn failure leaves the component here with a recorded error.
	StateStarting State = iota

	// StateRunning indicates the component process is actively running.
	StateRunning

	// StateExitedOK indicates the process exited on its own with code 0.
	StateExitedOK

	// StateExitedError indicates the process exited on its own with a
	// non-zero code.
	StateExitedError

	// StateTerminated indicates the process exited after a graceful
	// terminate request from the launcher.
	StateTerminated

	// StateKilled indicates the process ignored the grace period and had
	// to be force-killed.
	StateKilled
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExitedOK:
		return "exited_ok"
	case StateExitedError:
		return "exited_error"
	case StateTerminated:
		return "terminated"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// IsActive returns true if the component still has a live process.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning
}

// IsTerminal returns true once the process has been reaped. Terminal
// states never change.
func (s State) IsTerminal() bool {
	return s == StateExitedOK || s == StateExitedError || s == StateTerminated || s == StateKilled
}

// ExitedOnOwn returns true for self-initiated exits, as opposed to exits
// caused by a launcher terminate or kill.
func (s State) ExitedOnOwn() bool {
	return s == StateExitedOK || s == StateExitedError
}
