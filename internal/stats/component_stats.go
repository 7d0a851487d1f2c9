// Package stats provides per-component and session-wide statistics for
// instrument test sessions.
//
// This file implements ComponentStats, the mailbox between the component
// manager's monitor loop and the dashboard: the manager stores supervisor
// state, capture counters and proc-scraper resources here; readers take
// lock-free snapshots.
package stats

import (
	"math"
	"sync/atomic"
	"time"
)

// StatePending is the state of a component that has not been launched yet
// (waiting on a predecessor's startup delay). Once launched, states mirror
// the supervisor's: starting, running, exited_ok, exited_error, terminated,
// killed.
const StatePending = "pending"

// ComponentStats holds per-component statistics.
//
// Thread-safe: all mutable fields are atomics. Byte and line counters are
// absolute totals (stored, not incremented) because the output capture
// exposes monotonic totals.
type ComponentStats struct {
	Name     string
	Required bool

	// Launch identity
	startTime atomic.Value // time.Time
	pid       atomic.Int64

	// Supervisor state mirror (written by the monitor loop)
	state     atomic.Value // string
	exitCode  atomic.Int64
	exitValid atomic.Bool
	uptime    atomic.Int64 // time.Duration as nanoseconds

	// Output capture totals (absolute)
	stdoutBytes atomic.Int64
	stderrBytes atomic.Int64
	stdoutLines atomic.Int64
	stderrLines atomic.Int64

	// Resources from the proc scraper
	cpuPercent    atomic.Uint64 // math.Float64bits
	cpuPercentP50 atomic.Uint64 // math.Float64bits
	rssBytes      atomic.Int64
}

// NewComponentStats creates stats for a component in the pending state.
func NewComponentStats(name string, required bool) *ComponentStats {
	s := &ComponentStats{
		Name:     name,
		Required: required,
	}
	s.state.Store(StatePending)
	return s
}

// --- Launch / State ---

// OnLaunch records the process identity once the component starts.
func (s *ComponentStats) OnLaunch(pid int, at time.Time) {
	s.pid.Store(int64(pid))
	s.startTime.Store(at)
}

// SetState stores the supervisor state string.
func (s *ComponentStats) SetState(state string) {
	s.state.Store(state)
}

// GetState returns the last stored state.
func (s *ComponentStats) GetState() string {
	v := s.state.Load()
	if v == nil {
		return StatePending
	}
	return v.(string)
}

// SetExit records the final exit code.
func (s *ComponentStats) SetExit(code int) {
	s.exitCode.Store(int64(code))
	s.exitValid.Store(true)
}

// ExitCode returns the exit code and whether the component has exited.
func (s *ComponentStats) ExitCode() (int, bool) {
	return int(s.exitCode.Load()), s.exitValid.Load()
}

// SetUptime stores the current (or final) uptime.
func (s *ComponentStats) SetUptime(d time.Duration) {
	s.uptime.Store(int64(d))
}

// Uptime returns the last stored uptime.
func (s *ComponentStats) Uptime() time.Duration {
	return time.Duration(s.uptime.Load())
}

// PID returns the process ID, or 0 before launch.
func (s *ComponentStats) PID() int {
	return int(s.pid.Load())
}

// StartedAt returns the launch time, or the zero time before launch.
func (s *ComponentStats) StartedAt() time.Time {
	v := s.startTime.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}

// --- Output Capture ---

// UpdateCapture stores the capture totals. Values are absolute.
func (s *ComponentStats) UpdateCapture(stdoutBytes, stderrBytes, stdoutLines, stderrLines int64) {
	s.stdoutBytes.Store(stdoutBytes)
	s.stderrBytes.Store(stderrBytes)
	s.stdoutLines.Store(stdoutLines)
	s.stderrLines.Store(stderrLines)
}

// OutputBytes returns total captured bytes across both streams.
func (s *ComponentStats) OutputBytes() int64 {
	return s.stdoutBytes.Load() + s.stderrBytes.Load()
}

// --- Resources ---

// UpdateResources stores the latest proc-scraper sample.
func (s *ComponentStats) UpdateResources(cpuPercent, cpuPercentP50 float64, rssBytes int64) {
	s.cpuPercent.Store(math.Float64bits(cpuPercent))
	s.cpuPercentP50.Store(math.Float64bits(cpuPercentP50))
	s.rssBytes.Store(rssBytes)
}

// CPUPercent returns the latest CPU usage sample.
func (s *ComponentStats) CPUPercent() float64 {
	return math.Float64frombits(s.cpuPercent.Load())
}

// --- Summary ---

// Summary is a point-in-time snapshot of one component.
type Summary struct {
	Name     string
	Required bool
	State    string
	PID      int

	StartedAt time.Time
	Uptime    time.Duration

	ExitCode  int
	ExitValid bool

	StdoutBytes int64
	StderrBytes int64
	StdoutLines int64
	StderrLines int64

	CPUPercent    float64
	CPUPercentP50 float64
	RSSBytes      int64
}

// GetSummary returns a snapshot of all key metrics.
func (s *ComponentStats) GetSummary() Summary {
	code, valid := s.ExitCode()

	return Summary{
		Name:          s.Name,
		Required:      s.Required,
		State:         s.GetState(),
		PID:           s.PID(),
		StartedAt:     s.StartedAt(),
		Uptime:        s.Uptime(),
		ExitCode:      code,
		ExitValid:     valid,
		StdoutBytes:   s.stdoutBytes.Load(),
		StderrBytes:   s.stderrBytes.Load(),
		StdoutLines:   s.stdoutLines.Load(),
		StderrLines:   s.stderrLines.Load(),
		CPUPercent:    s.CPUPercent(),
		CPUPercentP50: math.Float64frombits(s.cpuPercentP50.Load()),
		RSSBytes:      s.rssBytes.Load(),
	}
}
