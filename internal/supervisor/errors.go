package supervisor

import (
	"fmt"
	"time"
)

// LaunchError reports a component whose process could not be spawned.
// Required components abort the session; non-required ones are logged and
// skipped.
type LaunchError struct {
	Component string
	Required  bool
	Err       error
}

func (e *LaunchError) Error() string {
	if e.Required {
		return fmt.Sprintf("required component %s failed to launch: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("component %s failed to launch: %v", e.Component, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// UnexpectedExit records a component that terminated on its own while the
// session was still running. It is reported once per component; the
// session keeps running.
type UnexpectedExit struct {
	Component string
	ExitCode  int
	At        time.Time
}

func (e *UnexpectedExit) Error() string {
	return fmt.Sprintf("component %s has terminated (exit code: %d)", e.Component, e.ExitCode)
}

// ShutdownTimeout reports a component that was still alive when the grace
// period expired and had to be force-killed.
type ShutdownTimeout struct {
	Component string
	Grace     time.Duration
}

func (e *ShutdownTimeout) Error() string {
	return fmt.Sprintf("component %s did not exit within %s grace period, killed", e.Component, e.Grace)
}
