// Package metrics provides Prometheus metrics for go-instrument-rig.
//
// All metrics are aggregate or keyed by component name. Cardinality is
// bounded by the descriptor list (a handful of instruments per rig), so
// per-component labels are always enabled.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Panel 1: Session Overview
// =============================================================================

var (
	rigSessionInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rig_session_info",
			Help: "Information about the test session (value always 1)",
		},
		[]string{"version", "session_id", "category"},
	)

	rigSessionComponents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rig_session_components",
			Help: "Components listed in the session plan",
		},
	)

	rigActiveComponents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rig_session_active_components",
			Help: "Components currently running",
		},
	)

	rigSessionElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rig_session_elapsed_seconds",
			Help: "Seconds since the session started",
		},
	)

	rigSessionPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rig_session_phase",
			Help: "Session shutdown phase (value 1 for the current phase)",
		},
		[]string{"phase"}, // "armed" | "stopping" | "done"
	)
)

// =============================================================================
// Panel 2: Launches & Exits
// =============================================================================

var (
	rigLaunchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rig_component_launches_total",
			Help: "Total component process launches",
		},
	)

	rigLaunchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rig_component_launch_failures_total",
			Help: "Component launch failures by requirement",
		},
		[]string{"required"}, // "true" | "false"
	)

	rigExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rig_component_exits_total",
			Help: "Component exits by exit code category",
		},
		[]string{"category"}, // "success", "error", "signal"
	)

	rigUnexpectedExitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rig_component_unexpected_exits_total",
			Help: "Components that exited before shutdown was requested",
		},
	)

	rigForcedKillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rig_component_forced_kills_total",
			Help: "Components killed after the termination grace period",
		},
	)
)

// =============================================================================
// Panel 3: Output Capture & Artifacts
// =============================================================================

var (
	rigCaptureBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rig_capture_bytes_total",
			Help: "Bytes captured from component output",
		},
		[]string{"stream"}, // "stdout" | "stderr"
	)

	rigCaptureLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rig_capture_lines_total",
			Help: "Lines captured from component output",
		},
		[]string{"stream"},
	)

	rigArtifactsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rig_artifacts_created_total",
			Help: "Data files observed in instrument output directories",
		},
	)

	rigOutputBytesPerSec = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rig_output_bytes_per_second",
			Help: "Component output capture rate over the last 10 seconds",
		},
	)

	rigArtifactsPerMinute = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rig_artifacts_per_minute",
			Help: "Artifact creation rate over the last 60 seconds",
		},
	)
)

// =============================================================================
// Panel 4: Per-Component State & Resources
// =============================================================================

var (
	rigComponentUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rig_component_up",
			Help: "Whether the component process is running (1) or not (0)",
		},
		[]string{"component"},
	)

	rigComponentUptimeSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rig_component_uptime_seconds",
			Help: "Seconds since the component process started",
		},
		[]string{"component"},
	)

	rigComponentCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rig_component_cpu_percent",
			Help: "Component process CPU usage (percent of one core)",
		},
		[]string{"component"},
	)

	rigComponentRSSBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rig_component_memory_rss_bytes",
			Help: "Component process resident set size",
		},
		[]string{"component"},
	)
)

// =============================================================================
// Panel 5: Shutdown
// =============================================================================

var (
	rigShutdownGraceSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rig_shutdown_grace_seconds",
			Help: "Configured termination grace period",
		},
	)

	rigShutdownDurationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rig_shutdown_duration_seconds",
			Help: "Time from shutdown trigger to all components stopped",
		},
	)
)

// =============================================================================
// Collector
// =============================================================================

// Collector manages all Prometheus metrics for a test session.
type Collector struct {
	// Configuration
	sessionID  string
	category   string
	components int

	// Timing
	startTime time.Time

	// Internal tracking for delta calculations
	mu              sync.Mutex
	prevStdoutBytes int64
	prevStderrBytes int64
	prevStdoutLines int64
	prevStderrLines int64
	prevArtifacts   int64

	// For summary generation
	peakActive      int
	totalLaunches   int64
	launchFailures  int64
	unexpectedExits int64
	forcedKills     int64
	exitCodes       map[int]int64
	uptimes         []time.Duration
	currentPhase    string
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version      string
	SessionID    string
	Category     string
	Components   int
	GraceTimeout time.Duration
}

// NewCollector creates a new metrics collector.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		sessionID:  cfg.SessionID,
		category:   cfg.Category,
		components: cfg.Components,
		startTime:  time.Now(),
		exitCodes:  make(map[int]int64),
		uptimes:    make([]time.Duration, 0, cfg.Components),
	}

	registry.MustRegister(
		// Panel 1: Session Overview
		rigSessionInfo,
		rigSessionComponents,
		rigActiveComponents,
		rigSessionElapsedSeconds,
		rigSessionPhase,

		// Panel 2: Launches & Exits
		rigLaunchesTotal,
		rigLaunchFailuresTotal,
		rigExitsTotal,
		rigUnexpectedExitsTotal,
		rigForcedKillsTotal,

		// Panel 3: Output Capture & Artifacts
		rigCaptureBytesTotal,
		rigCaptureLinesTotal,
		rigArtifactsCreatedTotal,
		rigOutputBytesPerSec,
		rigArtifactsPerMinute,

		// Panel 4: Per-Component State & Resources
		rigComponentUp,
		rigComponentUptimeSeconds,
		rigComponentCPUPercent,
		rigComponentRSSBytes,

		// Panel 5: Shutdown
		rigShutdownGraceSeconds,
		rigShutdownDurationSeconds,
	)

	// Set initial values
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	rigSessionInfo.WithLabelValues(version, cfg.SessionID, cfg.Category).Set(1)
	rigSessionComponents.Set(float64(cfg.Components))
	rigShutdownGraceSeconds.Set(cfg.GraceTimeout.Seconds())

	return c
}

// =============================================================================
// Update Methods
// =============================================================================

// ActivityUpdate holds capture and artifact totals for updating metrics.
// This is a subset of timeseries.ActivityStats to avoid circular imports.
// Byte, line and artifact fields are absolute totals; the collector computes
// deltas internally.
type ActivityUpdate struct {
	ActiveComponents int

	StdoutBytes int64
	StderrBytes int64
	StdoutLines int64
	StderrLines int64

	ArtifactsCreated int64

	OutputRate10s  float64
	ArtifactRate1m float64
}

// RecordActivity updates session-level metrics from aggregated totals.
func (c *Collector) RecordActivity(u *ActivityUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// --- Panel 1: Session Overview ---
	rigActiveComponents.Set(float64(u.ActiveComponents))
	if u.ActiveComponents > c.peakActive {
		c.peakActive = u.ActiveComponents
	}
	rigSessionElapsedSeconds.Set(time.Since(c.startTime).Seconds())

	// --- Panel 3: Output Capture & Artifacts ---
	// Calculate deltas and add to counters
	stdoutBytesDelta := u.StdoutBytes - c.prevStdoutBytes
	stderrBytesDelta := u.StderrBytes - c.prevStderrBytes
	stdoutLinesDelta := u.StdoutLines - c.prevStdoutLines
	stderrLinesDelta := u.StderrLines - c.prevStderrLines
	artifactsDelta := u.ArtifactsCreated - c.prevArtifacts

	if stdoutBytesDelta > 0 {
		rigCaptureBytesTotal.WithLabelValues("stdout").Add(float64(stdoutBytesDelta))
	}
	if stderrBytesDelta > 0 {
		rigCaptureBytesTotal.WithLabelValues("stderr").Add(float64(stderrBytesDelta))
	}
	if stdoutLinesDelta > 0 {
		rigCaptureLinesTotal.WithLabelValues("stdout").Add(float64(stdoutLinesDelta))
	}
	if stderrLinesDelta > 0 {
		rigCaptureLinesTotal.WithLabelValues("stderr").Add(float64(stderrLinesDelta))
	}
	if artifactsDelta > 0 {
		rigArtifactsCreatedTotal.Add(float64(artifactsDelta))
	}

	c.prevStdoutBytes = u.StdoutBytes
	c.prevStderrBytes = u.StderrBytes
	c.prevStdoutLines = u.StdoutLines
	c.prevStderrLines = u.StderrLines
	c.prevArtifacts = u.ArtifactsCreated

	rigOutputBytesPerSec.Set(u.OutputRate10s)
	rigArtifactsPerMinute.Set(u.ArtifactRate1m)
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// ComponentLaunched records a successful component launch.
func (c *Collector) ComponentLaunched() {
	rigLaunchesTotal.Inc()

	c.mu.Lock()
	c.totalLaunches++
	c.mu.Unlock()
}

// LaunchFailed records a component that could not be launched.
func (c *Collector) LaunchFailed(required bool) {
	if required {
		rigLaunchFailuresTotal.WithLabelValues("true").Inc()
	} else {
		rigLaunchFailuresTotal.WithLabelValues("false").Inc()
	}

	c.mu.Lock()
	c.launchFailures++
	c.mu.Unlock()
}

// RecordExit records a component process exit. Exits observed before
// shutdown was requested are counted as unexpected.
func (c *Collector) RecordExit(exitCode int, uptime time.Duration, expected bool) {
	// Categorize exit code
	category := "error"
	if exitCode == 0 {
		category = "success"
	} else if exitCode > 128 {
		category = "signal"
	}
	rigExitsTotal.WithLabelValues(category).Inc()

	if !expected {
		rigUnexpectedExitsTotal.Inc()
	}

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.uptimes = append(c.uptimes, uptime)
	if !expected {
		c.unexpectedExits++
	}
	c.mu.Unlock()
}

// ForcedKill records a component that had to be killed after the grace period.
func (c *Collector) ForcedKill() {
	rigForcedKillsTotal.Inc()

	c.mu.Lock()
	c.forcedKills++
	c.mu.Unlock()
}

// SetPhase records the shutdown controller phase. The previous phase gauge
// is zeroed so only one phase reads 1 at a time.
func (c *Collector) SetPhase(phase string) {
	c.mu.Lock()
	prev := c.currentPhase
	c.currentPhase = phase
	c.mu.Unlock()

	if prev != "" && prev != phase {
		rigSessionPhase.WithLabelValues(prev).Set(0)
	}
	rigSessionPhase.WithLabelValues(phase).Set(1)
}

// SetActiveCount updates the active component count.
func (c *Collector) SetActiveCount(count int) {
	rigActiveComponents.Set(float64(count))

	c.mu.Lock()
	if count > c.peakActive {
		c.peakActive = count
	}
	c.mu.Unlock()
}

// SetComponentUp updates the per-component running gauge.
func (c *Collector) SetComponentUp(name string, up bool) {
	if up {
		rigComponentUp.WithLabelValues(name).Set(1)
	} else {
		rigComponentUp.WithLabelValues(name).Set(0)
	}
}

// SetComponentUptime updates the per-component uptime gauge.
func (c *Collector) SetComponentUptime(name string, uptime time.Duration) {
	rigComponentUptimeSeconds.WithLabelValues(name).Set(uptime.Seconds())
}

// RecordResources updates per-component resource gauges from the proc scraper.
func (c *Collector) RecordResources(name string, cpuPercent float64, rssBytes int64) {
	rigComponentCPUPercent.WithLabelValues(name).Set(cpuPercent)
	rigComponentRSSBytes.WithLabelValues(name).Set(float64(rssBytes))
}

// SetShutdownDuration records how long shutdown took once all components stopped.
func (c *Collector) SetShutdownDuration(d time.Duration) {
	rigShutdownDurationSeconds.Set(d.Seconds())
}

// =============================================================================
// Cleanup Methods
// =============================================================================

// RemoveComponent removes per-component gauges for a component that will not
// run again this session.
func (c *Collector) RemoveComponent(name string) {
	rigComponentUp.DeleteLabelValues(name)
	rigComponentUptimeSeconds.DeleteLabelValues(name)
	rigComponentCPUPercent.DeleteLabelValues(name)
	rigComponentRSSBytes.DeleteLabelValues(name)
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration        time.Duration
	Components      int
	PeakActive      int
	TotalLaunches   int64
	LaunchFailures  int64
	UnexpectedExits int64
	ForcedKills     int64
	ExitCodes       map[int]int64
	UptimeP50       time.Duration
	UptimeP95       time.Duration
	UptimeP99       time.Duration
}

// GenerateSummary creates a summary of the session.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:        time.Since(c.startTime),
		Components:      c.components,
		PeakActive:      c.peakActive,
		TotalLaunches:   c.totalLaunches,
		LaunchFailures:  c.launchFailures,
		UnexpectedExits: c.unexpectedExits,
		ForcedKills:     c.forcedKills,
		ExitCodes:       make(map[int]int64),
	}

	// Copy exit codes
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}

	// Calculate percentiles
	if len(c.uptimes) > 0 {
		sorted := make([]time.Duration, len(c.uptimes))
		copy(sorted, c.uptimes)
		sortDurations(sorted)

		s.UptimeP50 = percentile(sorted, 0.50)
		s.UptimeP95 = percentile(sorted, 0.95)
		s.UptimeP99 = percentile(sorted, 0.99)
	}

	return s
}

// PeakActive returns the peak active component count.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}

// TotalLaunches returns the total number of component launches.
func (c *Collector) TotalLaunches() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalLaunches
}

// UnexpectedExits returns the number of components that exited on their own.
func (c *Collector) UnexpectedExits() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unexpectedExits
}

// SessionID returns the session identifier this collector was created for.
func (c *Collector) SessionID() string {
	return c.sessionID
}

// =============================================================================
// Helper Functions
// =============================================================================

// sortDurations sorts a slice of durations in place.
func sortDurations(d []time.Duration) {
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && d[j] < d[j-1]; j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}

// percentile returns the value at the given percentile (0.0-1.0).
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
