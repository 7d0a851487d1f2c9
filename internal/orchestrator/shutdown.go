package orchestrator

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
)

// Phase is the shutdown controller's lifecycle phase.
type Phase int32

const (
	// PhaseArmed means the session is running and stop triggers are live.
	PhaseArmed Phase = iota

	// PhaseStopping means a stop was accepted and teardown is under way.
	PhaseStopping

	// PhaseDone means every component has been reaped.
	PhaseDone
)

// String returns the phase label used in logs and metrics.
func (p Phase) String() string {
	switch p {
	case PhaseArmed:
		return "armed"
	case PhaseStopping:
		return "stopping"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Stop reasons reported in logs and the exit summary.
const (
	ReasonKeypress  = "operator keypress"
	ReasonConsole   = "console input"
	ReasonAllExited = "all components exited"
	ReasonCancelled = "context cancelled"
)

// StopRequest is one stop trigger. Every source (signal handler, dashboard
// keypress, console reader, all-exited detection) posts the same type to
// the same channel, so the control loop has a single place to select on.
type StopRequest struct {
	Reason string
}

// ShutdownController fans stop triggers from any goroutine into a single
// channel and tracks the session's shutdown phase.
type ShutdownController struct {
	phase    atomic.Int32
	requests chan StopRequest
	logger   *slog.Logger
}

// NewShutdownController creates a controller in PhaseArmed.
func NewShutdownController(logger *slog.Logger) *ShutdownController {
	if logger == nil {
		logger = slog.Default()
	}

	return &ShutdownController{
		requests: make(chan StopRequest, 8),
		logger:   logger,
	}
}

// RequestStop posts a stop trigger. Safe from any goroutine and never
// blocks; once the buffer is full the session is already stopping and
// further requests are dropped.
func (c *ShutdownController) RequestStop(reason string) {
	select {
	case c.requests <- StopRequest{Reason: reason}:
	default:
	}
}

// Requests returns the trigger channel for select loops.
func (c *ShutdownController) Requests() <-chan StopRequest {
	return c.requests
}

// Phase returns the current lifecycle phase.
func (c *ShutdownController) Phase() Phase {
	return Phase(c.phase.Load())
}

// SetPhase advances the phase. Transitions are forward-only; attempts to
// move backward are ignored.
func (c *ShutdownController) SetPhase(next Phase) {
	for {
		current := c.phase.Load()
		if int32(next) <= current {
			return
		}
		if c.phase.CompareAndSwap(current, int32(next)) {
			return
		}
	}
}

// Stopping reports whether a stop has been accepted.
func (c *ShutdownController) Stopping() bool {
	return c.Phase() != PhaseArmed
}

// WatchSignals installs SIGINT/SIGTERM handlers that post stop requests.
// The returned function removes the handlers.
func (c *ShutdownController) WatchSignals() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				c.logger.Info("received_signal", "signal", sig.String())
				c.RequestStop("signal: " + sig.String())
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// WatchConsole reads lines from r and posts a stop request on the first
// stop line: plain Enter, "q", "s", "quit" or "stop", case-insensitive.
// Used when the dashboard is disabled. The reader goroutine exits after the
// first accepted line or on EOF, so a piped-in /dev/null does not spin.
func (c *ShutdownController) WatchConsole(r io.Reader) {
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "", "q", "s", "quit", "stop":
				c.RequestStop(ReasonConsole)
				return
			}
		}
	}()
}
