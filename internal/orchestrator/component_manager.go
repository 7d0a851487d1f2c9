package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
	"github.com/randomizedcoder/go-instrument-rig/internal/process"
	"github.com/randomizedcoder/go-instrument-rig/internal/supervisor"
)

// Shutdown means reported per component after teardown.
const (
	MeansGraceful = "graceful"
	MeansForced   = "forced"
)

// killReapTimeout bounds the post-SIGKILL reap wait. SIGKILL cannot be
// caught, so this only covers scheduler lag and uninterruptible sleeps.
const killReapTimeout = 5 * time.Second

// ShutdownRecord describes how one component came down during teardown.
type ShutdownRecord struct {
	Name     string
	Means    string // MeansGraceful or MeansForced
	ExitCode int
}

// LaunchFailure records a component whose process never spawned.
type LaunchFailure struct {
	Index    int
	Name     string
	Required bool
	Err      error
}

// ManagerCallbacks contains optional callbacks for manager events.
type ManagerCallbacks struct {
	// OnLaunched is called after a component process starts, in launch
	// order, before the post-launch settle delay.
	OnLaunched func(index int, sup *supervisor.Supervisor)

	// OnLaunchFailed is called when a component fails to spawn.
	OnLaunchFailed func(failure LaunchFailure)

	// OnStateChange is called when any component changes state.
	OnStateChange func(component string, oldState, newState supervisor.State)

	// OnExit is called when a component process exits, for any reason.
	OnExit func(component string, exitCode int, uptime time.Duration)
}

// ManagerConfig holds configuration for the ComponentManager.
type ManagerConfig struct {
	// SessionDir receives the per-component stdout/stderr logs.
	SessionDir string

	// WorkDir is the working directory component commands run in. The
	// capture scripts write into data/, plots/ and recordings/ relative
	// to it.
	WorkDir string

	// GracePeriod bounds the teardown wait between the terminate broadcast
	// and the kill pass.
	GracePeriod time.Duration

	Scheduler *LaunchScheduler
	Logger    *slog.Logger
	Callbacks ManagerCallbacks
}

// ComponentManager owns the ordered set of component supervisors: launch
// in declared order with settle delays, exit observation, and the
// graceful-then-forced teardown.
type ComponentManager struct {
	sessionDir  string
	workDir     string
	gracePeriod time.Duration
	scheduler   *LaunchScheduler
	logger      *slog.Logger
	callbacks   ManagerCallbacks

	// Supervisors in launch order. Only successfully spawned components
	// are registered; failures go to the failures list.
	mu          sync.RWMutex
	supervisors []*supervisor.Supervisor
	failures    []LaunchFailure

	activeCount atomic.Int64

	// Set when teardown begins so exit observers can tell a requested
	// shutdown from a mid-session death.
	tearingDown atomic.Bool

	teardownOnce sync.Once
	records      []ShutdownRecord
}

// NewComponentManager creates a new ComponentManager.
func NewComponentManager(cfg ManagerConfig) *ComponentManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = NewLaunchScheduler(false, logger)
	}

	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = 10 * time.Second
	}

	return &ComponentManager{
		sessionDir:  cfg.SessionDir,
		workDir:     cfg.WorkDir,
		gracePeriod: grace,
		scheduler:   scheduler,
		logger:      logger,
		callbacks:   cfg.Callbacks,
	}
}

// LaunchAll starts every component in declared order, waiting out each
// descriptor's startup delay before the next launch. A required
// component's spawn failure tears down everything already running and
// returns the *supervisor.LaunchError; non-required failures are recorded
// and skipped without their settle delay. Returns the context error if the
// bringup is cancelled, with everything already launched torn down.
func (m *ComponentManager) LaunchAll(ctx context.Context, components []config.ComponentDescriptor) error {
	for i, desc := range components {
		select {
		case <-ctx.Done():
			m.Teardown()
			return ctx.Err()
		default:
		}

		runner := process.NewComponentRunner(desc, m.workDir)
		sup := supervisor.New(supervisor.Config{
			Builder:    runner,
			Required:   desc.Required,
			SessionDir: m.sessionDir,
			Logger:     m.logger,
			Callbacks: supervisor.Callbacks{
				OnStateChange: m.handleStateChange,
				OnExit:        m.handleExit,
			},
		})

		m.logger.Info("launching_component",
			"index", i+1,
			"total", len(components),
			"component", desc.Name,
			"command", sup.CommandString(),
			"required", desc.Required,
		)

		if err := sup.Launch(); err != nil {
			failure := LaunchFailure{
				Index:    i,
				Name:     desc.Name,
				Required: desc.Required,
				Err:      err,
			}
			m.mu.Lock()
			m.failures = append(m.failures, failure)
			m.mu.Unlock()

			if m.callbacks.OnLaunchFailed != nil {
				m.callbacks.OnLaunchFailed(failure)
			}

			if desc.Required {
				m.logger.Error("required_component_failed",
					"component", desc.Name,
					"error", err,
				)
				m.Teardown()
				return err
			}

			m.logger.Warn("component_launch_failed",
				"component", desc.Name,
				"required", false,
				"error", err,
			)
			continue
		}

		m.mu.Lock()
		m.supervisors = append(m.supervisors, sup)
		m.mu.Unlock()

		if m.callbacks.OnLaunched != nil {
			m.callbacks.OnLaunched(i, sup)
		}

		// Settle time before the next launch. The last component has
		// nothing after it to wait for.
		if i < len(components)-1 {
			if err := m.scheduler.Wait(ctx, desc.Name, desc.StartupDelay); err != nil {
				m.Teardown()
				return err
			}
		}
	}

	return nil
}

// Teardown stops every running component: terminate broadcast to all
// first, one shared grace deadline, then a kill pass for the stragglers.
// Idempotent; later calls return the first run's records.
func (m *ComponentManager) Teardown() []ShutdownRecord {
	m.teardownOnce.Do(func() {
		m.records = m.teardown()
	})
	return m.records
}

func (m *ComponentManager) teardown() []ShutdownRecord {
	m.tearingDown.Store(true)

	m.mu.RLock()
	sups := make([]*supervisor.Supervisor, len(m.supervisors))
	copy(sups, m.supervisors)
	m.mu.RUnlock()

	// Components that already exited on their own need no escalation.
	var running []*supervisor.Supervisor
	for _, sup := range sups {
		if sup.State().IsActive() {
			running = append(running, sup)
		}
	}
	if len(running) == 0 {
		return nil
	}

	m.logger.Info("teardown_started",
		"running", len(running),
		"grace_period", m.gracePeriod.String(),
	)

	// Every component receives the graceful request before any kill is
	// considered, so a slow first component cannot starve the others of
	// their chance to exit cleanly.
	for _, sup := range running {
		sup.Terminate()
	}

	// One shared deadline for the whole set, not per component.
	graceCtx, cancel := context.WithTimeout(context.Background(), m.gracePeriod)
	defer cancel()

	records := make([]ShutdownRecord, 0, len(running))
	var stragglers []*supervisor.Supervisor
	for _, sup := range running {
		if err := sup.WaitExit(graceCtx); err != nil {
			stragglers = append(stragglers, sup)
			continue
		}

		code, _ := sup.ExitCode()
		records = append(records, ShutdownRecord{
			Name:     sup.Name(),
			Means:    MeansGraceful,
			ExitCode: code,
		})
	}

	for _, sup := range stragglers {
		timeout := &supervisor.ShutdownTimeout{
			Component: sup.Name(),
			Grace:     m.gracePeriod,
		}
		m.logger.Warn("component_grace_expired", "error", timeout.Error())

		sup.Kill()

		reapCtx, cancelReap := context.WithTimeout(context.Background(), killReapTimeout)
		if err := sup.WaitExit(reapCtx); err != nil {
			m.logger.Error("component_unreaped",
				"component", sup.Name(),
				"error", err,
			)
		}
		cancelReap()

		code, _ := sup.ExitCode()
		records = append(records, ShutdownRecord{
			Name:     sup.Name(),
			Means:    MeansForced,
			ExitCode: code,
		})
	}

	m.logger.Info("teardown_complete",
		"graceful", len(running)-len(stragglers),
		"forced", len(stragglers),
	)

	return records
}

// handleStateChange tracks the running count and forwards the event.
func (m *ComponentManager) handleStateChange(component string, oldState, newState supervisor.State) {
	wasRunning := oldState == supervisor.StateRunning
	isRunning := newState == supervisor.StateRunning

	if !wasRunning && isRunning {
		m.activeCount.Add(1)
	} else if wasRunning && !isRunning {
		m.activeCount.Add(-1)
	}

	if m.callbacks.OnStateChange != nil {
		m.callbacks.OnStateChange(component, oldState, newState)
	}
}

func (m *ComponentManager) handleExit(component string, exitCode int, uptime time.Duration) {
	if m.callbacks.OnExit != nil {
		m.callbacks.OnExit(component, exitCode, uptime)
	}
}

// Supervisors returns the launched supervisors in launch order.
func (m *ComponentManager) Supervisors() []*supervisor.Supervisor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*supervisor.Supervisor, len(m.supervisors))
	copy(out, m.supervisors)
	return out
}

// Failures returns the components that never spawned.
func (m *ComponentManager) Failures() []LaunchFailure {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]LaunchFailure, len(m.failures))
	copy(out, m.failures)
	return out
}

// ActiveCount returns the number of currently running components.
func (m *ComponentManager) ActiveCount() int {
	return int(m.activeCount.Load())
}

// LaunchedCount returns how many components spawned successfully.
func (m *ComponentManager) LaunchedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.supervisors)
}

// AllExited reports whether nothing is left running: every launched
// component has reached a terminal state. Vacuously true when nothing
// launched, so callers should only consult it after the launch phase.
func (m *ComponentManager) AllExited() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sup := range m.supervisors {
		if !sup.State().IsTerminal() {
			return false
		}
	}
	return true
}

// TearingDown reports whether teardown has begun.
func (m *ComponentManager) TearingDown() bool {
	return m.tearingDown.Load()
}
