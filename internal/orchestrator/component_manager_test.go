package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
	"github.com/randomizedcoder/go-instrument-rig/internal/supervisor"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Component descriptors backed by real commands so the full spawn, signal
// and reap path is exercised.

func echoComponent(name string) config.ComponentDescriptor {
	return config.ComponentDescriptor{
		Name:    name,
		Command: "echo",
		Args:    []string{"ready"},
	}
}

func sleepComponent(name string, required bool) config.ComponentDescriptor {
	return config.ComponentDescriptor{
		Name:     name,
		Command:  "sleep",
		Args:     []string{"30"},
		Required: required,
	}
}

func missingComponent(name string, required bool) config.ComponentDescriptor {
	return config.ComponentDescriptor{
		Name:     name,
		Command:  "/nonexistent/instrument/binary",
		Required: required,
	}
}

// stubbornComponent ignores SIGTERM, forcing the kill pass.
func stubbornComponent(name string) config.ComponentDescriptor {
	return config.ComponentDescriptor{
		Name:    name,
		Command: "bash",
		Args:    []string{"-c", `trap "" TERM; while true; do sleep 1; done`},
	}
}

func newTestManager(t *testing.T, grace time.Duration, callbacks ManagerCallbacks) *ComponentManager {
	t.Helper()
	logger := newTestLogger()
	return NewComponentManager(ManagerConfig{
		SessionDir:  t.TempDir(),
		GracePeriod: grace,
		Scheduler:   NewLaunchScheduler(true, logger),
		Logger:      logger,
		Callbacks:   callbacks,
	})
}

func launchAll(t *testing.T, m *ComponentManager, components []config.ComponentDescriptor) {
	t.Helper()
	if err := m.LaunchAll(context.Background(), components); err != nil {
		t.Fatalf("LaunchAll() error = %v", err)
	}
}

// =============================================================================
// Tests: Launch Ordering
// =============================================================================

func TestComponentManager_LaunchAll_Order(t *testing.T) {
	var (
		mu       sync.Mutex
		launched []string
		indexes  []int
	)

	m := newTestManager(t, time.Second, ManagerCallbacks{
		OnLaunched: func(index int, sup *supervisor.Supervisor) {
			mu.Lock()
			launched = append(launched, sup.Name())
			indexes = append(indexes, index)
			mu.Unlock()
		},
	})
	t.Cleanup(func() { m.Teardown() })

	components := []config.ComponentDescriptor{
		sleepComponent("Thermal Camera", false),
		sleepComponent("Power Supply", true),
		sleepComponent("Oscilloscope", true),
	}
	launchAll(t, m, components)

	mu.Lock()
	defer mu.Unlock()

	want := []string{"Thermal Camera", "Power Supply", "Oscilloscope"}
	if len(launched) != len(want) {
		t.Fatalf("launched %d components, want %d", len(launched), len(want))
	}
	for i, name := range want {
		if launched[i] != name {
			t.Errorf("launch order[%d] = %q, want %q", i, launched[i], name)
		}
		if indexes[i] != i {
			t.Errorf("launch index[%d] = %d, want %d", i, indexes[i], i)
		}
	}

	if m.LaunchedCount() != 3 {
		t.Errorf("LaunchedCount() = %d, want 3", m.LaunchedCount())
	}
	if m.ActiveCount() != 3 {
		t.Errorf("ActiveCount() = %d, want 3", m.ActiveCount())
	}
	if m.AllExited() {
		t.Error("AllExited() = true with three live components")
	}
}

func TestComponentManager_LaunchAll_PIDsAssigned(t *testing.T) {
	m := newTestManager(t, time.Second, ManagerCallbacks{})
	t.Cleanup(func() { m.Teardown() })

	launchAll(t, m, []config.ComponentDescriptor{
		sleepComponent("Power Supply", true),
		sleepComponent("Oscilloscope", true),
	})

	seen := make(map[int]bool)
	for _, sup := range m.Supervisors() {
		pid := sup.PID()
		if pid <= 0 {
			t.Errorf("component %s PID = %d, want > 0", sup.Name(), pid)
		}
		if seen[pid] {
			t.Errorf("PID %d assigned twice", pid)
		}
		seen[pid] = true
	}
}

// =============================================================================
// Tests: Launch Failures
// =============================================================================

func TestComponentManager_RequiredLaunchFailure_Aborts(t *testing.T) {
	var (
		mu       sync.Mutex
		failures []LaunchFailure
	)

	m := newTestManager(t, time.Second, ManagerCallbacks{
		OnLaunchFailed: func(failure LaunchFailure) {
			mu.Lock()
			failures = append(failures, failure)
			mu.Unlock()
		},
	})

	err := m.LaunchAll(context.Background(), []config.ComponentDescriptor{
		sleepComponent("Thermal Camera", false),
		missingComponent("Power Supply", true),
		sleepComponent("Oscilloscope", true),
	})
	if err == nil {
		t.Fatal("LaunchAll() error = nil, want launch error")
	}

	var launchErr *supervisor.LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("LaunchAll() error type = %T, want *supervisor.LaunchError", err)
	}
	if !launchErr.Required {
		t.Error("LaunchError.Required = false, want true")
	}
	if launchErr.Component != "Power Supply" {
		t.Errorf("LaunchError.Component = %q, want %q", launchErr.Component, "Power Supply")
	}

	// The component after the failed one must never launch, and the one
	// before it must be torn down.
	if m.LaunchedCount() != 1 {
		t.Errorf("LaunchedCount() = %d, want 1", m.LaunchedCount())
	}
	if !m.AllExited() {
		t.Error("AllExited() = false, want launched components torn down")
	}
	if !m.TearingDown() {
		t.Error("TearingDown() = false after an aborted bringup")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failures) != 1 {
		t.Fatalf("OnLaunchFailed called %d times, want 1", len(failures))
	}
	if failures[0].Index != 1 || failures[0].Name != "Power Supply" || !failures[0].Required {
		t.Errorf("failure = %+v, want index 1, Power Supply, required", failures[0])
	}
}

func TestComponentManager_OptionalLaunchFailure_Continues(t *testing.T) {
	m := newTestManager(t, time.Second, ManagerCallbacks{})
	t.Cleanup(func() { m.Teardown() })

	err := m.LaunchAll(context.Background(), []config.ComponentDescriptor{
		missingComponent("Thermal Camera", false),
		sleepComponent("Power Supply", true),
		sleepComponent("Oscilloscope", true),
	})
	if err != nil {
		t.Fatalf("LaunchAll() error = %v, want nil for optional failure", err)
	}

	if m.LaunchedCount() != 2 {
		t.Errorf("LaunchedCount() = %d, want 2", m.LaunchedCount())
	}
	if m.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", m.ActiveCount())
	}

	failures := m.Failures()
	if len(failures) != 1 {
		t.Fatalf("Failures() len = %d, want 1", len(failures))
	}
	if failures[0].Name != "Thermal Camera" || failures[0].Required {
		t.Errorf("failure = %+v, want optional Thermal Camera", failures[0])
	}
}

func TestComponentManager_LaunchAll_CancelledBeforeStart(t *testing.T) {
	m := newTestManager(t, time.Second, ManagerCallbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.LaunchAll(ctx, []config.ComponentDescriptor{
		sleepComponent("Power Supply", true),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("LaunchAll() error = %v, want context.Canceled", err)
	}
	if m.LaunchedCount() != 0 {
		t.Errorf("LaunchedCount() = %d, want 0", m.LaunchedCount())
	}
}

// =============================================================================
// Tests: Teardown
// =============================================================================

func TestComponentManager_Teardown_GracefulAndForced(t *testing.T) {
	m := newTestManager(t, 500*time.Millisecond, ManagerCallbacks{})

	// Stubborn first: the broadcast must still reach the sleeper before
	// any kill, so it comes down gracefully while the stubborn one burns
	// the grace period.
	launchAll(t, m, []config.ComponentDescriptor{
		stubbornComponent("Stubborn Scope"),
		sleepComponent("Power Supply", true),
	})

	// Give bash a moment to install its trap before signalling.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	records := m.Teardown()
	elapsed := time.Since(start)

	if len(records) != 2 {
		t.Fatalf("Teardown() returned %d records, want 2", len(records))
	}

	byName := make(map[string]ShutdownRecord)
	for _, rec := range records {
		byName[rec.Name] = rec
	}

	if rec := byName["Power Supply"]; rec.Means != MeansGraceful {
		t.Errorf("Power Supply means = %q, want %q", rec.Means, MeansGraceful)
	} else if rec.ExitCode != 143 {
		t.Errorf("Power Supply exit code = %d, want 143 (SIGTERM)", rec.ExitCode)
	}

	if rec := byName["Stubborn Scope"]; rec.Means != MeansForced {
		t.Errorf("Stubborn Scope means = %q, want %q", rec.Means, MeansForced)
	} else if rec.ExitCode != 137 {
		t.Errorf("Stubborn Scope exit code = %d, want 137 (SIGKILL)", rec.ExitCode)
	}

	// One shared grace deadline, not one per component.
	if elapsed > 5*time.Second {
		t.Errorf("Teardown() took %v, want well under the per-component worst case", elapsed)
	}

	if !m.AllExited() {
		t.Error("AllExited() = false after teardown")
	}
	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d after teardown, want 0", m.ActiveCount())
	}
}

func TestComponentManager_Teardown_SharedGraceDeadline(t *testing.T) {
	const grace = 400 * time.Millisecond
	m := newTestManager(t, grace, ManagerCallbacks{})

	launchAll(t, m, []config.ComponentDescriptor{
		stubbornComponent("Stubborn A"),
		stubbornComponent("Stubborn B"),
	})
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	records := m.Teardown()
	elapsed := time.Since(start)

	for _, rec := range records {
		if rec.Means != MeansForced {
			t.Errorf("%s means = %q, want %q", rec.Name, rec.Means, MeansForced)
		}
	}

	// Two stragglers must share one grace window; sequential per-component
	// waits would take at least twice the grace.
	if elapsed >= 2*grace {
		t.Errorf("Teardown() took %v with two stragglers, want < %v (shared deadline)", elapsed, 2*grace)
	}
}

func TestComponentManager_Teardown_Idempotent(t *testing.T) {
	m := newTestManager(t, time.Second, ManagerCallbacks{})

	launchAll(t, m, []config.ComponentDescriptor{
		sleepComponent("Power Supply", true),
	})

	first := m.Teardown()
	second := m.Teardown()

	if len(first) != 1 {
		t.Fatalf("first Teardown() returned %d records, want 1", len(first))
	}
	if len(second) != len(first) {
		t.Errorf("second Teardown() returned %d records, want %d", len(second), len(first))
	}
	if second[0] != first[0] {
		t.Errorf("second Teardown() record = %+v, want %+v", second[0], first[0])
	}
}

func TestComponentManager_Teardown_NothingLaunched(t *testing.T) {
	m := newTestManager(t, time.Second, ManagerCallbacks{})

	records := m.Teardown()
	if len(records) != 0 {
		t.Errorf("Teardown() returned %d records with nothing launched, want 0", len(records))
	}
	if !m.TearingDown() {
		t.Error("TearingDown() = false after Teardown()")
	}
}

func TestComponentManager_Teardown_AlreadyExited(t *testing.T) {
	exited := make(chan string, 1)
	m := newTestManager(t, time.Second, ManagerCallbacks{
		OnExit: func(component string, exitCode int, uptime time.Duration) {
			exited <- component
		},
	})

	launchAll(t, m, []config.ComponentDescriptor{
		echoComponent("Quick Probe"),
	})

	select {
	case name := <-exited:
		if name != "Quick Probe" {
			t.Errorf("OnExit component = %q, want %q", name, "Quick Probe")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echo to exit")
	}

	// Nothing left running, so teardown has no one to escalate against.
	records := m.Teardown()
	if len(records) != 0 {
		t.Errorf("Teardown() returned %d records for an already-exited set, want 0", len(records))
	}
}

// =============================================================================
// Tests: Exit Observation
// =============================================================================

func TestComponentManager_AllExited_AfterSelfExit(t *testing.T) {
	m := newTestManager(t, time.Second, ManagerCallbacks{})

	launchAll(t, m, []config.ComponentDescriptor{
		echoComponent("Quick Probe"),
	})

	deadline := time.Now().Add(5 * time.Second)
	for !m.AllExited() {
		if time.Now().After(deadline) {
			t.Fatal("AllExited() never became true after the component exited")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if m.TearingDown() {
		t.Error("TearingDown() = true, a self-exit is not a teardown")
	}
}

func TestComponentManager_StateChangeCallback(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []supervisor.State
	)

	m := newTestManager(t, time.Second, ManagerCallbacks{
		OnStateChange: func(component string, oldState, newState supervisor.State) {
			mu.Lock()
			transitions = append(transitions, newState)
			mu.Unlock()
		},
	})

	launchAll(t, m, []config.ComponentDescriptor{
		sleepComponent("Power Supply", true),
	})
	m.Teardown()

	mu.Lock()
	defer mu.Unlock()

	if len(transitions) < 2 {
		t.Fatalf("saw %d state changes, want at least 2: %v", len(transitions), transitions)
	}
	if transitions[0] != supervisor.StateRunning {
		t.Errorf("first transition = %v, want StateRunning", transitions[0])
	}
	if last := transitions[len(transitions)-1]; last != supervisor.StateTerminated {
		t.Errorf("last transition = %v, want StateTerminated", last)
	}
}
