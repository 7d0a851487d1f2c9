package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/procfs"
)

// ComponentResources contains sampled /proc statistics for one component
// process.
type ComponentResources struct {
	Name string
	PID  int

	CPUPercent    float64 // since previous sample (percent of one core)
	CPUPercentP50 float64 // P50 (median) over rolling window
	CPUPercentMax float64 // Max over rolling window
	RSSBytes      int64
	VSZBytes      int64
	NumThreads    int

	WindowSeconds int // Window size in seconds (for display)

	// Metadata
	LastUpdate time.Time
	Healthy    bool
	Error      string
}

// ProcScraper samples /proc for each registered component process.
// Uses atomic.Value for lock-free resource reads.
type ProcScraper struct {
	fs       procfs.FS
	interval time.Duration
	logger   *slog.Logger

	// Atomic storage (lock-free reads)
	resources atomic.Value // map[string]ComponentResources

	// Registered components and per-component rate state
	mu      sync.Mutex
	targets map[string]*procTarget

	windowSize time.Duration
	lastClean  time.Time
}

// procTarget holds per-component sampling state.
type procTarget struct {
	pid      int
	prevCPU  float64 // cumulative CPU seconds at last sample
	prevTime time.Time
	sampled  bool // first sample has no rate

	digest  *tdigest.TDigest
	samples []cpuSample

	last ComponentResources
}

// cpuSample represents a single CPU usage sample with timestamp.
type cpuSample struct {
	value float64
	time  time.Time
}

// NewProcScraper creates a new per-component resource scraper.
// Returns nil if /proc is not available (feature disabled).
func NewProcScraper(interval, windowSize time.Duration, logger *slog.Logger) *ProcScraper {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		if logger != nil {
			logger.Debug("proc_scraper_disabled", "error", err)
		}
		return nil // Feature disabled
	}

	// Clamp window size for safety
	if windowSize < 10*time.Second {
		windowSize = 10 * time.Second
	}
	if windowSize > 300*time.Second {
		windowSize = 300 * time.Second
	}

	s := &ProcScraper{
		fs:         fs,
		interval:   interval,
		logger:     logger,
		targets:    make(map[string]*procTarget),
		windowSize: windowSize,
		lastClean:  time.Now(),
	}

	// Initialize with empty resources
	s.resources.Store(make(map[string]ComponentResources))

	return s
}

// Register adds a component process to the sample set.
// Safe to call while Run is active.
func (s *ProcScraper) Register(name string, pid int) {
	if s == nil {
		return // Feature disabled
	}

	s.mu.Lock()
	s.targets[name] = &procTarget{
		pid:    pid,
		digest: tdigest.NewWithCompression(100),
	}
	s.mu.Unlock()
}

// Unregister removes a component from the sample set. Its last sampled
// values are dropped from subsequent snapshots.
func (s *ProcScraper) Unregister(name string) {
	if s == nil {
		return // Feature disabled
	}

	s.mu.Lock()
	delete(s.targets, name)
	s.mu.Unlock()
}

// Run starts the scraper loop. Blocks until ctx is cancelled.
func (s *ProcScraper) Run(ctx context.Context) {
	if s == nil {
		return // Feature disabled
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial sample
	s.sampleAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleAll()
		}
	}
}

// GetResources returns the current per-component resources keyed by
// component name (thread-safe, lock-free).
func (s *ProcScraper) GetResources() map[string]ComponentResources {
	if s == nil {
		return nil // Feature disabled
	}

	ptr := s.resources.Load()
	if ptr == nil {
		return nil
	}

	// Return a copy to avoid race conditions
	stored := ptr.(map[string]ComponentResources)
	out := make(map[string]ComponentResources, len(stored))
	for name, res := range stored {
		out[name] = res
	}
	return out
}

// sampleAll reads /proc for every registered target and publishes a new
// resource snapshot.
func (s *ProcScraper) sampleAll() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]ComponentResources, len(s.targets))
	for name, target := range s.targets {
		snapshot[name] = s.sampleTarget(name, target, now)
	}

	s.lastClean = now

	// Atomic store (lock-free reads elsewhere)
	s.resources.Store(snapshot)
}

// sampleTarget samples a single process. On read failure (typically the
// process has exited) the last known values are preserved and the entry is
// marked unhealthy.
func (s *ProcScraper) sampleTarget(name string, target *procTarget, now time.Time) ComponentResources {
	res := target.last
	res.Name = name
	res.PID = target.pid
	res.WindowSeconds = int(s.windowSize.Seconds())
	res.LastUpdate = now

	proc, err := s.fs.Proc(target.pid)
	if err != nil {
		res.Healthy = false
		res.Error = fmt.Sprintf("proc read failed: %v", err)
		if s.logger != nil {
			s.logger.Debug("proc_scrape_error", "component", name, "pid", target.pid, "error", err)
		}
		target.last = res
		return res
	}

	stat, err := proc.Stat()
	if err != nil {
		res.Healthy = false
		res.Error = fmt.Sprintf("stat read failed: %v", err)
		if s.logger != nil {
			s.logger.Debug("proc_scrape_error", "component", name, "pid", target.pid, "error", err)
		}
		target.last = res
		return res
	}

	cpu := stat.CPUTime()
	res.RSSBytes = int64(stat.ResidentMemory())
	res.VSZBytes = int64(stat.VirtualMemory())
	res.NumThreads = int(stat.NumThreads)
	res.Healthy = true
	res.Error = ""

	// CPU percent needs a previous sample
	if target.sampled {
		deltaTime := now.Sub(target.prevTime).Seconds()
		if deltaTime > 0 {
			pct := (cpu - target.prevCPU) / deltaTime * 100
			if pct < 0 {
				pct = 0
			}
			res.CPUPercent = pct

			// Add to rolling window
			target.digest.Add(pct, 1)
			target.samples = append(target.samples, cpuSample{value: pct, time: now})
			// Trigger cleanup if needed (every 10s or when >20 samples)
			if len(target.samples) > 20 || now.Sub(s.lastClean) > 10*time.Second {
				s.cleanupCPUWindow(target, now)
			}
		}
	}
	target.prevCPU = cpu
	target.prevTime = now
	target.sampled = true

	// Rolling window percentiles
	if len(target.samples) > 0 {
		res.CPUPercentP50 = target.digest.Quantile(0.50)
		maxPct := target.samples[0].value
		for _, sample := range target.samples {
			if sample.value > maxPct {
				maxPct = sample.value
			}
		}
		res.CPUPercentMax = maxPct
	}

	target.last = res
	return res
}

// cleanupCPUWindow removes samples older than window and rebuilds T-Digest.
// Only rebuilds the T-Digest when samples actually expire.
func (s *ProcScraper) cleanupCPUWindow(target *procTarget, now time.Time) {
	cutoff := now.Add(-s.windowSize)

	valid := make([]cpuSample, 0, len(target.samples))
	expiredCount := 0
	for _, sample := range target.samples {
		if sample.time.After(cutoff) {
			valid = append(valid, sample)
		} else {
			expiredCount++
		}
	}

	if expiredCount > 0 {
		target.digest = tdigest.NewWithCompression(100)
		for _, sample := range valid {
			target.digest.Add(sample.value, 1)
		}
	}

	target.samples = valid
}
