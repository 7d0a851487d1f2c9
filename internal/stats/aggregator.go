// Package stats provides per-component and session-wide statistics for
// instrument test sessions.
//
// This file implements StatsAggregator which aggregates metrics across all
// components:
// - Component counts by state (pending, active, exited)
// - Output capture totals and rates
// - Artifact counts
// - Uptime spread
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// AggregatedStats holds metrics across all components.
//
// This is a snapshot - values are computed at the time of Aggregate() call.
type AggregatedStats struct {
	// Timestamp when this snapshot was taken
	Timestamp time.Time

	// Component counts
	TotalComponents   int
	PendingComponents int
	ActiveComponents  int
	ExitedComponents  int
	RequiredDown      int // required components in a terminal state

	// Output capture totals
	TotalStdoutBytes int64
	TotalStderrBytes int64
	TotalOutputBytes int64
	TotalStdoutLines int64
	TotalStderrLines int64

	// Rates (bytes per second)
	OutputRate        float64 // calculated from session start
	InstantOutputRate float64 // calculated from last snapshot

	// Artifacts observed by the watcher
	ArtifactsCreated int64

	// Uptime spread across launched components
	MinUptime time.Duration
	MaxUptime time.Duration
	AvgUptime time.Duration

	// Per-component summaries in launch order
	PerComponent []Summary
}

// StatsAggregator aggregates stats from all components.
//
// Thread-safe: all methods can be called concurrently.
type StatsAggregator struct {
	mu         sync.RWMutex
	components map[string]*ComponentStats
	order      []string // launch order, for stable display
	startTime  time.Time

	// For rate calculations (using atomic.Value for lock-free access)
	prevSnapshot atomic.Value // *rateSnapshot

	// Artifact count from the watcher (absolute)
	artifacts atomic.Int64
}

// rateSnapshot holds values for calculating instantaneous rates.
type rateSnapshot struct {
	timestamp   time.Time
	outputBytes int64
}

// NewStatsAggregator creates a new aggregator.
func NewStatsAggregator() *StatsAggregator {
	agg := &StatsAggregator{
		components: make(map[string]*ComponentStats),
		startTime:  time.Now(),
	}
	// Initialize atomic.Value with initial snapshot
	agg.prevSnapshot.Store(&rateSnapshot{
		timestamp: time.Now(),
	})
	return agg
}

// AddComponent registers a component for aggregation. Registration order is
// preserved for display.
func (a *StatsAggregator) AddComponent(stats *ComponentStats) {
	a.mu.Lock()
	if _, exists := a.components[stats.Name]; !exists {
		a.order = append(a.order, stats.Name)
	}
	a.components[stats.Name] = stats
	a.mu.Unlock()
}

// GetComponent returns the ComponentStats for a specific component.
func (a *StatsAggregator) GetComponent(name string) *ComponentStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.components[name]
}

// ComponentCount returns the number of registered components.
func (a *StatsAggregator) ComponentCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.components)
}

// SetArtifacts stores the absolute artifact count from the watcher.
func (a *StatsAggregator) SetArtifacts(n int64) {
	a.artifacts.Store(n)
}

// Artifacts returns the current artifact count.
func (a *StatsAggregator) Artifacts() int64 {
	return a.artifacts.Load()
}

// Aggregate computes aggregated statistics across all components.
//
// This creates a snapshot of current metrics. The returned struct is
// safe to use after the call returns.
func (a *StatsAggregator) Aggregate() *AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := time.Now()
	elapsed := now.Sub(a.startTime).Seconds()

	// Get previous snapshot for rate calculations (lock-free)
	var prev *rateSnapshot
	if p := a.prevSnapshot.Load(); p != nil {
		prev = p.(*rateSnapshot)
	}

	result := &AggregatedStats{
		Timestamp:        now,
		TotalComponents:  len(a.components),
		ArtifactsCreated: a.artifacts.Load(),
		PerComponent:     make([]Summary, 0, len(a.components)),
	}

	// Accumulators
	var totalUptime time.Duration
	var launchedCount int

	for _, name := range a.order {
		c := a.components[name]
		summary := c.GetSummary()
		result.PerComponent = append(result.PerComponent, summary)

		switch classifyState(summary.State) {
		case stateClassPending:
			result.PendingComponents++
		case stateClassActive:
			result.ActiveComponents++
		case stateClassExited:
			result.ExitedComponents++
			if summary.Required {
				result.RequiredDown++
			}
		}

		// Capture totals
		result.TotalStdoutBytes += summary.StdoutBytes
		result.TotalStderrBytes += summary.StderrBytes
		result.TotalStdoutLines += summary.StdoutLines
		result.TotalStderrLines += summary.StderrLines

		// Uptime spread (only components that launched)
		if !summary.StartedAt.IsZero() {
			launchedCount++
			totalUptime += summary.Uptime
			if result.MinUptime == 0 || summary.Uptime < result.MinUptime {
				result.MinUptime = summary.Uptime
			}
			if summary.Uptime > result.MaxUptime {
				result.MaxUptime = summary.Uptime
			}
		}
	}

	result.TotalOutputBytes = result.TotalStdoutBytes + result.TotalStderrBytes

	// Calculate rates from start time
	if elapsed > 0 {
		result.OutputRate = float64(result.TotalOutputBytes) / elapsed
	}

	// Calculate instantaneous rate from previous snapshot
	if prev != nil {
		snapElapsed := now.Sub(prev.timestamp).Seconds()
		if snapElapsed > 0 {
			result.InstantOutputRate = float64(result.TotalOutputBytes-prev.outputBytes) / snapElapsed
		}
	}

	// Average uptime
	if launchedCount > 0 {
		result.AvgUptime = totalUptime / time.Duration(launchedCount)
	}

	// Update previous snapshot for next rate calculation (lock-free)
	a.prevSnapshot.Store(&rateSnapshot{
		timestamp:   now,
		outputBytes: result.TotalOutputBytes,
	})

	return result
}

// StartTime returns when the aggregator was created.
func (a *StatsAggregator) StartTime() time.Time {
	return a.startTime
}

// Elapsed returns the duration since the aggregator was created.
func (a *StatsAggregator) Elapsed() time.Duration {
	return time.Since(a.startTime)
}

// ForEachComponent calls the provided function for each component in launch
// order. The function is called while holding the read lock.
func (a *StatsAggregator) ForEachComponent(fn func(stats *ComponentStats)) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, name := range a.order {
		fn(a.components[name])
	}
}

// GetAllSummaries returns summaries for all components in launch order.
func (a *StatsAggregator) GetAllSummaries() []Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	summaries := make([]Summary, 0, len(a.components))
	for _, name := range a.order {
		summaries = append(summaries, a.components[name].GetSummary())
	}
	return summaries
}

// =============================================================================
// State Classification
// =============================================================================

type stateClass int

const (
	stateClassPending stateClass = iota
	stateClassActive
	stateClassExited
)

// classifyState buckets a supervisor state string. The strings mirror
// supervisor.State.String() values.
func classifyState(state string) stateClass {
	switch state {
	case StatePending:
		return stateClassPending
	case "starting", "running":
		return stateClassActive
	default:
		// exited_ok, exited_error, terminated, killed
		return stateClassExited
	}
}
