// Package timeseries provides time-windowed activity tracking for a test
// session.
//
// This is an internal library designed for simplicity and testability.
// It tracks cumulative capture-log output and artifact creations, and
// computes rolling rates over configurable time windows (10s, 60s, 300s).
// A running session whose 10s output rate drops to zero is the earliest
// visible sign of a wedged instrument.
//
// Thread-safe: SetOutputBytes()/ArtifactCreated() use atomics, GetStats()
// acquires a read lock. Memory: ~10KB for 300 samples (5 minute window at
// 1 sample/sec).
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (5 minutes at 1 sample/sec)
	ringBufferSize = 300

	// Window durations for rolling rates
	window10s  = 10 * time.Second
	window60s  = 60 * time.Second
	window300s = 300 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample represents a point-in-time snapshot of cumulative activity.
type sample struct {
	timestamp   time.Time
	outputBytes int64
	artifacts   int64
}

// ActivityTracker tracks cumulative component output and artifact file
// creations, and computes rolling rates over configurable time windows.
//
// Usage:
//
//	tracker := NewActivityTracker()
//	tracker.SetOutputBytes(total) // Called per monitor tick with summed capture counts
//	tracker.ArtifactCreated()     // Called by the artifact watcher (thread-safe, lock-free)
//	// ... periodic sampling (e.g., every 1s via ticker)
//	tracker.RecordSample()
//	// ... get stats for TUI/Prometheus
//	stats := tracker.GetStats()
type ActivityTracker struct {
	// Cumulative counters (atomic for lock-free writers)
	outputBytes atomic.Int64
	artifacts   atomic.Int64

	// Ring buffer of samples for rolling rate calculation
	samples  []sample
	writeIdx int // Next write position in ring buffer
	mu       sync.RWMutex

	// Start time for overall rate calculation
	startTime time.Time

	// Clock for testability
	clock Clock
}

// ActivityStats contains computed rolling rates at a point in time.
type ActivityStats struct {
	// OutputBytes is the cumulative capture-log bytes across all components
	OutputBytes int64

	// Artifacts is the number of artifact files created since start
	Artifacts int64

	// Rolling output rates (bytes per second)
	OutputRate10s  float64
	OutputRate60s  float64
	OutputRate300s float64

	// OutputRateOverall is the average output rate since tracking started
	OutputRateOverall float64

	// ArtifactRate60s is artifact creations per minute over the last 60s
	ArtifactRate60s float64
}

// NewActivityTracker creates a new tracker with real clock.
func NewActivityTracker() *ActivityTracker {
	return NewActivityTrackerWithClock(realClock{})
}

// NewActivityTrackerWithClock creates a tracker with custom clock for testing.
func NewActivityTrackerWithClock(clock Clock) *ActivityTracker {
	now := clock.Now()
	t := &ActivityTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	// Record initial sample at t=0 with zero activity
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// SetOutputBytes records the current total capture-log byte count.
// The captures report absolute counts, so this stores rather than adds.
// Thread-safe and lock-free.
func (t *ActivityTracker) SetOutputBytes(n int64) {
	if n >= 0 {
		t.outputBytes.Store(n)
	}
}

// ArtifactCreated increments the artifact creation count.
// Thread-safe and lock-free. Call once per new artifact file.
func (t *ActivityTracker) ArtifactCreated() {
	t.artifacts.Add(1)
}

// RecordSample records the current cumulative counters with a timestamp.
// Call this periodically (e.g., every 1 second via ticker).
// Thread-safe (acquires write lock on ring buffer only).
func (t *ActivityTracker) RecordSample() {
	now := t.clock.Now()
	newSample := sample{
		timestamp:   now,
		outputBytes: t.outputBytes.Load(),
		artifacts:   t.artifacts.Load(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringBufferSize {
		// Buffer not yet full - append
		t.samples = append(t.samples, newSample)
	} else {
		// Buffer full - overwrite oldest
		t.samples[t.writeIdx] = newSample
		t.writeIdx = (t.writeIdx + 1) % ringBufferSize
	}
}

// GetStats computes and returns current activity statistics.
// Thread-safe (acquires read lock). Always returns valid data
// (never returns "no data" - uses available history).
func (t *ActivityTracker) GetStats() ActivityStats {
	now := t.clock.Now()
	currentBytes := t.outputBytes.Load()
	currentArtifacts := t.artifacts.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := ActivityStats{
		OutputBytes: currentBytes,
		Artifacts:   currentArtifacts,
	}

	// Overall output rate since start
	elapsed := now.Sub(t.startTime).Seconds()
	if elapsed > 0 {
		stats.OutputRateOverall = float64(currentBytes) / elapsed
	}

	// Rolling rates for each window
	stats.OutputRate10s = t.rateOverWindow(now, currentBytes, window10s, outputOf)
	stats.OutputRate60s = t.rateOverWindow(now, currentBytes, window60s, outputOf)
	stats.OutputRate300s = t.rateOverWindow(now, currentBytes, window300s, outputOf)

	// Artifact rate is reported per minute; per second would round to
	// zero for anything but a runaway recorder.
	stats.ArtifactRate60s = t.rateOverWindow(now, currentArtifacts, window60s, artifactsOf) * 60

	return stats
}

func outputOf(s *sample) int64    { return s.outputBytes }
func artifactsOf(s *sample) int64 { return s.artifacts }

// rateOverWindow calculates the per-second rate of one counter over the
// specified window. Must be called with mu held (at least RLock).
func (t *ActivityTracker) rateOverWindow(now time.Time, current int64, window time.Duration, value func(*sample) int64) float64 {
	base := t.windowBase(now, window)
	if base == nil {
		return 0
	}

	delta := current - value(base)
	actualElapsed := now.Sub(base.timestamp).Seconds()

	if actualElapsed <= 0 {
		return 0 // Avoid division by zero
	}

	return float64(delta) / actualElapsed
}

// windowBase finds the sample closest to (but not after) the start of the
// window, falling back to the oldest retained sample.
// Must be called with mu held.
func (t *ActivityTracker) windowBase(now time.Time, window time.Duration) *sample {
	if len(t.samples) == 0 {
		return nil
	}

	targetTime := now.Add(-window)

	var best *sample
	var bestDiff time.Duration = -1

	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(targetTime) {
			continue // Sample is within the window, skip
		}
		diff := targetTime.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}

	if best == nil {
		best = t.oldestSample()
	}
	return best
}

// oldestSample returns the oldest sample in the ring buffer.
// Must be called with mu held.
func (t *ActivityTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}

	if len(t.samples) < ringBufferSize {
		// Buffer not full yet - oldest is at index 0
		return &t.samples[0]
	}

	// Buffer full - oldest is at writeIdx (next to be overwritten)
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
// Thread-safe.
func (t *ActivityTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.outputBytes.Store(0)
	t.artifacts.Store(0)
	t.samples = t.samples[:0]
	t.samples = append(t.samples, sample{timestamp: now})
	t.writeIdx = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring buffer.
// Useful for testing.
func (t *ActivityTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
