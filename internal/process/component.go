package process

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
)

// ComponentRunner builds commands from a resolved component descriptor.
// Descriptors carry fully substituted argument lists, so building a
// command is a direct translation with no templating left to do.
type ComponentRunner struct {
	descriptor config.ComponentDescriptor
	workDir    string
}

// NewComponentRunner creates a runner for the given descriptor.
// workDir is the working directory for the spawned process; empty means
// the child inherits the launcher's.
func NewComponentRunner(descriptor config.ComponentDescriptor, workDir string) *ComponentRunner {
	return &ComponentRunner{
		descriptor: descriptor,
		workDir:    workDir,
	}
}

// Name returns the component name.
func (r *ComponentRunner) Name() string {
	return r.descriptor.Name
}

// Descriptor returns the descriptor this runner was built from.
func (r *ComponentRunner) Descriptor() config.ComponentDescriptor {
	return r.descriptor
}

// Required reports whether a launch failure of this component should
// abort the whole session.
func (r *ComponentRunner) Required() bool {
	return r.descriptor.Required
}

// StartupDelay returns how long the launcher should wait after starting
// this component before starting the next one.
func (r *ComponentRunner) StartupDelay() time.Duration {
	return r.descriptor.StartupDelay
}

// BuildCommand returns an unstarted exec.Cmd for this component.
func (r *ComponentRunner) BuildCommand() (*exec.Cmd, error) {
	if strings.TrimSpace(r.descriptor.Command) == "" {
		return nil, fmt.Errorf("component %q has an empty command", r.descriptor.Name)
	}

	cmd := exec.Command(r.descriptor.Command, r.descriptor.Args...)
	if r.workDir != "" {
		cmd.Dir = r.workDir
	}
	return cmd, nil
}

// CommandString returns the full command line for display purposes.
func (r *ComponentRunner) CommandString() string {
	if len(r.descriptor.Args) == 0 {
		return r.descriptor.Command
	}
	return r.descriptor.Command + " " + strings.Join(r.descriptor.Args, " ")
}
