package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-instrument-rig/internal/logging"
)

// ProcessBuilder creates executable commands for components.
// This interface allows the supervisor to be decoupled from the concrete
// instrument scripts, which also makes it testable with fake processes.
type ProcessBuilder interface {
	// BuildCommand returns a ready-to-start command for this component.
	BuildCommand() (*exec.Cmd, error)

	// Name returns the component name.
	Name() string

	// CommandString returns the full command line for display purposes.
	CommandString() string
}

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the component state changes.
	OnStateChange func(component string, oldState, newState State)

	// OnStart is called when a component process starts.
	OnStart func(component string, pid int)

	// OnExit is called when a component process exits, for any reason.
	OnExit func(component string, exitCode int, uptime time.Duration)
}

// Supervisor manages the lifecycle of a single component process.
// Unlike a daemon supervisor it never restarts: each component is spawned
// exactly once per session, observed until it exits, and torn down by the
// shutdown controller when the session ends.
type Supervisor struct {
	name       string
	required   bool
	builder    ProcessBuilder
	sessionDir string
	logger     *slog.Logger
	callbacks  Callbacks

	// State management
	state     State
	stateMu   sync.RWMutex
	launchErr error
	exitCode  int
	uptime    time.Duration
	startTime time.Time
	pid       int

	// Current process and its log capture
	cmd     *exec.Cmd
	capture *logging.OutputCapture
	cmdMu   sync.Mutex

	// Why the process exited, recorded before the signal is sent so the
	// wait goroutine can label the terminal state correctly.
	termRequested atomic.Bool
	killRequested atomic.Bool

	// Closed when the wait goroutine has reaped the process.
	exited chan struct{}
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Builder ProcessBuilder

	// Required marks components whose launch failure aborts the session.
	Required bool

	// SessionDir is where the component's stdout/stderr logs are written.
	SessionDir string

	Logger    *slog.Logger
	Callbacks Callbacks
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		name:       cfg.Builder.Name(),
		required:   cfg.Required,
		builder:    cfg.Builder,
		sessionDir: cfg.SessionDir,
		logger:     logger,
		callbacks:  cfg.Callbacks,
		state:      StateStarting,
		exited:     make(chan struct{}),
	}
}

// Launch spawns the component process exactly once.
// On success the process runs in its own process group with stdout and
// stderr captured to log files in the session directory, and a goroutine
// waits for it to exit. On failure the supervisor stays in StateStarting
// with the error recorded, and a *LaunchError is returned.
func (s *Supervisor) Launch() error {
	capture, err := logging.NewOutputCapture(s.sessionDir, s.name)
	if err != nil {
		return s.failLaunch(err)
	}

	cmd, err := s.builder.BuildCommand()
	if err != nil {
		capture.Close()
		return s.failLaunch(err)
	}

	cmd.Stdout = capture.Stdout()
	cmd.Stderr = capture.Stderr()

	// Set process group so terminate/kill reach the component's own
	// children (the capture scripts fork ffmpeg and friends).
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	s.cmdMu.Lock()
	s.cmd = cmd
	s.capture = capture
	s.cmdMu.Unlock()

	s.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		s.cmdMu.Lock()
		s.cmd = nil
		s.capture = nil
		s.cmdMu.Unlock()
		capture.Close()
		return s.failLaunch(err)
	}

	pid := cmd.Process.Pid
	s.stateMu.Lock()
	s.pid = pid
	s.stateMu.Unlock()
	s.setState(StateRunning)

	s.logger.Info("component_started",
		"component", s.name,
		"pid", pid,
		"command", s.builder.CommandString(),
	)

	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(s.name, pid)
	}

	go s.wait(cmd, capture)

	return nil
}

// failLaunch records a spawn failure and wraps it for the caller.
func (s *Supervisor) failLaunch(err error) error {
	s.stateMu.Lock()
	s.launchErr = err
	s.stateMu.Unlock()

	s.logger.Error("component_launch_failed",
		"component", s.name,
		"required", s.required,
		"error", err,
	)

	return &LaunchError{
		Component: s.name,
		Required:  s.required,
		Err:       err,
	}
}

// wait reaps the process and records its terminal state.
func (s *Supervisor) wait(cmd *exec.Cmd, capture *logging.OutputCapture) {
	waitErr := cmd.Wait()
	uptime := time.Since(s.startTime)
	exitCode := extractExitCode(waitErr)

	capture.Close()

	s.cmdMu.Lock()
	s.cmd = nil
	s.cmdMu.Unlock()

	// Label the exit by its cause. Children typically catch SIGTERM and
	// flush before exiting 0, so the request flags, not the exit code,
	// decide between self-exit and launcher-initiated shutdown.
	var final State
	switch {
	case s.killRequested.Load():
		final = StateKilled
	case s.termRequested.Load():
		final = StateTerminated
	case exitCode == 0:
		final = StateExitedOK
	default:
		final = StateExitedError
	}

	s.stateMu.Lock()
	s.exitCode = exitCode
	s.uptime = uptime
	s.stateMu.Unlock()
	s.setState(final)

	s.logger.Info("component_exited",
		"component", s.name,
		"exit_code", exitCode,
		"uptime", uptime.String(),
		"state", final.String(),
	)

	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(s.name, exitCode, uptime)
	}

	close(s.exited)
}

// Terminate sends SIGTERM to the component's process group.
// It does not wait: callers broadcast terminates to every component first
// and then wait against a shared deadline.
func (s *Supervisor) Terminate() {
	s.termRequested.Store(true)
	if s.signalGroup(syscall.SIGTERM) {
		s.logger.Info("component_terminate", "component", s.name, "pid", s.PID())
	}
}

// Kill sends SIGKILL to the component's process group. Used only after
// the grace period expires.
func (s *Supervisor) Kill() {
	s.killRequested.Store(true)
	if s.signalGroup(syscall.SIGKILL) {
		s.logger.Warn("component_killed", "component", s.name, "pid", s.PID())
	}
}

// signalGroup delivers a signal to the whole process group, falling back
// to the process itself if the group lookup fails. Returns false if there
// is no live process to signal.
func (s *Supervisor) signalGroup(sig syscall.Signal) bool {
	s.cmdMu.Lock()
	cmd := s.cmd
	s.cmdMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return false
	}

	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		syscall.Kill(-pgid, sig)
	} else {
		cmd.Process.Signal(sig)
	}
	return true
}

// WaitExit blocks until the process has been reaped or the context
// expires. Returns nil if the process exited, or the context error.
func (s *Supervisor) WaitExit(ctx context.Context) error {
	select {
	case <-s.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exited returns a channel closed once the process has been reaped.
// A component that never spawned has a channel that never closes; check
// State() first.
func (s *Supervisor) Exited() <-chan struct{} {
	return s.exited
}

// State returns the current state of the component.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(s.name, oldState, newState)
	}
}

// Name returns the component name.
func (s *Supervisor) Name() string {
	return s.name
}

// Required reports whether a launch failure of this component aborts the
// whole session.
func (s *Supervisor) Required() bool {
	return s.required
}

// CommandString returns the full command line of the component.
func (s *Supervisor) CommandString() string {
	return s.builder.CommandString()
}

// PID returns the process ID, or 0 if the process never spawned.
func (s *Supervisor) PID() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.pid
}

// StartedAt returns when the process was spawned. Zero if it never was.
func (s *Supervisor) StartedAt() time.Time {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.pid == 0 {
		return time.Time{}
	}
	return s.startTime
}

// ExitCode returns the recorded exit code. ok is false until the process
// has actually exited.
func (s *Supervisor) ExitCode() (code int, ok bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if !s.state.IsTerminal() {
		return 0, false
	}
	return s.exitCode, true
}

// Err returns the spawn error for components that never launched.
func (s *Supervisor) Err() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.launchErr
}

// Uptime returns how long the process has been running, or its final
// runtime once it has exited. Zero if it never spawned.
func (s *Supervisor) Uptime() time.Duration {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	switch {
	case s.state == StateRunning:
		return time.Since(s.startTime)
	case s.state.IsTerminal():
		return s.uptime
	default:
		return 0
	}
}

// Counts returns the component's captured output accounting. Zero values
// if the process never spawned.
func (s *Supervisor) Counts() logging.CaptureCounts {
	s.cmdMu.Lock()
	capture := s.capture
	s.cmdMu.Unlock()

	if capture == nil {
		return logging.CaptureCounts{}
	}
	return capture.Counts()
}

// LogPaths returns the stdout and stderr log file paths, or empty strings
// if the process never spawned.
func (s *Supervisor) LogPaths() (stdout, stderr string) {
	s.cmdMu.Lock()
	capture := s.capture
	s.cmdMu.Unlock()

	if capture == nil {
		return "", ""
	}
	return capture.StdoutPath(), capture.StderrPath()
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
