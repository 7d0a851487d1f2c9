// Package process provides abstractions for running external processes.
package process

import (
	"os/exec"
)

// Runner creates executable commands for instrument components.
// This interface allows the supervisor to be process-agnostic.
type Runner interface {
	// BuildCommand returns a ready-to-start command for this component.
	// The command must NOT be started yet: the supervisor owns output
	// wiring, process-group setup, and the actual Start call.
	BuildCommand() (*exec.Cmd, error)

	// Name returns the component name.
	Name() string

	// CommandString returns the full command line for logging and the
	// session manifest.
	CommandString() string
}
