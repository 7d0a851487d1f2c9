package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newTestRegistry creates a new registry for isolated testing.
func newTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// newTestCollector creates a collector with a test registry.
func newTestCollector(cfg CollectorConfig) (*Collector, *prometheus.Registry) {
	registry := newTestRegistry()
	c := NewCollectorWithRegistry(cfg, registry)
	return c, registry
}

// =============================================================================
// Tests: NewCollector
// =============================================================================

func TestNewCollector(t *testing.T) {
	tests := []struct {
		name string
		cfg  CollectorConfig
	}{
		{
			name: "basic config",
			cfg: CollectorConfig{
				Version:      "1.0",
				SessionID:    "20251015_123456_UTC_gan_test_1",
				Category:     "amplifier_test",
				Components:   3,
				GraceTimeout: 10 * time.Second,
			},
		},
		{
			name: "single component",
			cfg: CollectorConfig{
				SessionID:  "20251015_083000_UTC",
				Category:   "general",
				Components: 1,
			},
		},
		{
			name: "empty version falls back to dev",
			cfg: CollectorConfig{
				SessionID:  "20251015_090000_UTC_smoke",
				Category:   "general",
				Components: 2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector(tt.cfg)

			if c == nil {
				t.Fatal("NewCollector returned nil")
			}
			if c.components != tt.cfg.Components {
				t.Errorf("components = %d, want %d", c.components, tt.cfg.Components)
			}
			if c.SessionID() != tt.cfg.SessionID {
				t.Errorf("SessionID() = %q, want %q", c.SessionID(), tt.cfg.SessionID)
			}
		})
	}
}

// =============================================================================
// Tests: RecordActivity
// =============================================================================

func TestCollector_RecordActivity(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC_gan_test_1",
		Category:   "amplifier_test",
		Components: 3,
	})

	u := &ActivityUpdate{
		ActiveComponents: 3,
		StdoutBytes:      4096,
		StderrBytes:      512,
		StdoutLines:      100,
		StderrLines:      8,
		ArtifactsCreated: 5,
		OutputRate10s:    409.6,
		ArtifactRate1m:   2.0,
	}

	// Should not panic
	c.RecordActivity(u)

	// Verify peak active was updated
	if c.peakActive != 3 {
		t.Errorf("peakActive = %d, want 3", c.peakActive)
	}
}

func TestCollector_RecordActivity_Deltas(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC_gan_test_1",
		Category:   "amplifier_test",
		Components: 3,
	})

	// First update
	c.RecordActivity(&ActivityUpdate{
		StdoutBytes:      1000,
		StderrBytes:      100,
		ArtifactsCreated: 2,
	})

	// Verify prev values stored
	if c.prevStdoutBytes != 1000 {
		t.Errorf("prevStdoutBytes = %d, want 1000", c.prevStdoutBytes)
	}
	if c.prevArtifacts != 2 {
		t.Errorf("prevArtifacts = %d, want 2", c.prevArtifacts)
	}

	// Second update with higher totals
	c.RecordActivity(&ActivityUpdate{
		StdoutBytes:      2500,
		StderrBytes:      150,
		ArtifactsCreated: 4,
	})

	// Verify prev values updated
	if c.prevStdoutBytes != 2500 {
		t.Errorf("prevStdoutBytes = %d, want 2500", c.prevStdoutBytes)
	}
	if c.prevStderrBytes != 150 {
		t.Errorf("prevStderrBytes = %d, want 150", c.prevStderrBytes)
	}
	if c.prevArtifacts != 4 {
		t.Errorf("prevArtifacts = %d, want 4", c.prevArtifacts)
	}
}

// =============================================================================
// Tests: Event Recording
// =============================================================================

func TestCollector_ComponentLaunched(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 3,
	})

	c.ComponentLaunched()
	c.ComponentLaunched()
	c.ComponentLaunched()

	if c.TotalLaunches() != 3 {
		t.Errorf("TotalLaunches() = %d, want 3", c.TotalLaunches())
	}
}

func TestCollector_LaunchFailed(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 3,
	})

	c.LaunchFailed(true)
	c.LaunchFailed(false)

	c.mu.Lock()
	if c.launchFailures != 2 {
		t.Errorf("launchFailures = %d, want 2", c.launchFailures)
	}
	c.mu.Unlock()
}

func TestCollector_RecordExit(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		uptime   time.Duration
		expected bool
	}{
		{"success expected", 0, 30 * time.Minute, true},
		{"error unexpected", 1, 5 * time.Minute, false},
		{"signal SIGTERM", 143, 10 * time.Minute, true},
		{"signal SIGKILL", 137, 1 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector(CollectorConfig{
				SessionID:  "20251015_123456_UTC",
				Category:   "general",
				Components: 3,
			})

			c.RecordExit(tt.exitCode, tt.uptime, tt.expected)

			c.mu.Lock()
			if c.exitCodes[tt.exitCode] != 1 {
				t.Errorf("exitCodes[%d] = %d, want 1", tt.exitCode, c.exitCodes[tt.exitCode])
			}
			if len(c.uptimes) != 1 {
				t.Errorf("uptimes length = %d, want 1", len(c.uptimes))
			}
			wantUnexpected := int64(0)
			if !tt.expected {
				wantUnexpected = 1
			}
			if c.unexpectedExits != wantUnexpected {
				t.Errorf("unexpectedExits = %d, want %d", c.unexpectedExits, wantUnexpected)
			}
			c.mu.Unlock()
		})
	}
}

func TestCollector_ForcedKill(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 3,
	})

	c.ForcedKill()
	c.ForcedKill()

	c.mu.Lock()
	if c.forcedKills != 2 {
		t.Errorf("forcedKills = %d, want 2", c.forcedKills)
	}
	c.mu.Unlock()
}

func TestCollector_SetPhase(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 3,
	})

	c.SetPhase("armed")
	c.mu.Lock()
	if c.currentPhase != "armed" {
		t.Errorf("currentPhase = %q, want %q", c.currentPhase, "armed")
	}
	c.mu.Unlock()

	c.SetPhase("stopping")
	c.SetPhase("done")
	c.mu.Lock()
	if c.currentPhase != "done" {
		t.Errorf("currentPhase = %q, want %q", c.currentPhase, "done")
	}
	c.mu.Unlock()
}

func TestCollector_SetActiveCount(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 5,
	})

	c.SetActiveCount(3)
	if c.PeakActive() != 3 {
		t.Errorf("PeakActive() = %d, want 3", c.PeakActive())
	}

	c.SetActiveCount(5)
	if c.PeakActive() != 5 {
		t.Errorf("PeakActive() = %d, want 5", c.PeakActive())
	}

	// Lower count shouldn't change peak
	c.SetActiveCount(2)
	if c.PeakActive() != 5 {
		t.Errorf("PeakActive() = %d, want 5 (peak)", c.PeakActive())
	}
}

func TestCollector_PerComponentGauges(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 2,
	})

	// Should not panic
	c.SetComponentUp("thermal_camera", true)
	c.SetComponentUptime("thermal_camera", 90*time.Second)
	c.RecordResources("thermal_camera", 12.5, 64<<20)
	c.SetComponentUp("thermal_camera", false)
	c.RemoveComponent("thermal_camera")
}

func TestCollector_SetShutdownDuration(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 2,
	})

	// Should not panic
	c.SetShutdownDuration(2 * time.Second)
}

// =============================================================================
// Tests: GenerateSummary
// =============================================================================

func TestCollector_GenerateSummary(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC_gan_test_1",
		Category:   "amplifier_test",
		Components: 3,
	})

	// Simulate some activity
	c.ComponentLaunched()
	c.ComponentLaunched()
	c.ComponentLaunched()
	c.LaunchFailed(false)
	c.SetActiveCount(3)
	c.RecordExit(0, 30*time.Minute, true)
	c.RecordExit(1, 10*time.Minute, false)
	c.RecordExit(143, 45*time.Minute, true)
	c.ForcedKill()

	// Wait a tiny bit for duration
	time.Sleep(10 * time.Millisecond)

	summary := c.GenerateSummary()

	if summary.Components != 3 {
		t.Errorf("Components = %d, want 3", summary.Components)
	}
	if summary.PeakActive != 3 {
		t.Errorf("PeakActive = %d, want 3", summary.PeakActive)
	}
	if summary.TotalLaunches != 3 {
		t.Errorf("TotalLaunches = %d, want 3", summary.TotalLaunches)
	}
	if summary.LaunchFailures != 1 {
		t.Errorf("LaunchFailures = %d, want 1", summary.LaunchFailures)
	}
	if summary.UnexpectedExits != 1 {
		t.Errorf("UnexpectedExits = %d, want 1", summary.UnexpectedExits)
	}
	if summary.ForcedKills != 1 {
		t.Errorf("ForcedKills = %d, want 1", summary.ForcedKills)
	}
	if summary.Duration < 10*time.Millisecond {
		t.Errorf("Duration = %v, want >= 10ms", summary.Duration)
	}
	if summary.ExitCodes[0] != 1 {
		t.Errorf("ExitCodes[0] = %d, want 1", summary.ExitCodes[0])
	}
	if summary.ExitCodes[143] != 1 {
		t.Errorf("ExitCodes[143] = %d, want 1", summary.ExitCodes[143])
	}
	if summary.UptimeP50 != 30*time.Minute {
		t.Errorf("UptimeP50 = %v, want 30m", summary.UptimeP50)
	}
}

func TestCollector_GenerateSummary_Empty(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 2,
	})

	summary := c.GenerateSummary()

	if summary.TotalLaunches != 0 {
		t.Errorf("TotalLaunches = %d, want 0", summary.TotalLaunches)
	}
	if summary.PeakActive != 0 {
		t.Errorf("PeakActive = %d, want 0", summary.PeakActive)
	}
	if len(summary.ExitCodes) != 0 {
		t.Errorf("ExitCodes length = %d, want 0", len(summary.ExitCodes))
	}
	if summary.UptimeP50 != 0 {
		t.Errorf("UptimeP50 = %v, want 0", summary.UptimeP50)
	}
}

// =============================================================================
// Tests: Helper Functions
// =============================================================================

func TestSortDurations(t *testing.T) {
	tests := []struct {
		name   string
		input  []time.Duration
		expect []time.Duration
	}{
		{
			name:   "empty",
			input:  []time.Duration{},
			expect: []time.Duration{},
		},
		{
			name:   "single",
			input:  []time.Duration{time.Second},
			expect: []time.Duration{time.Second},
		},
		{
			name:   "already sorted",
			input:  []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
			expect: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		},
		{
			name:   "reverse",
			input:  []time.Duration{3 * time.Second, 2 * time.Second, time.Second},
			expect: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		},
		{
			name:   "mixed",
			input:  []time.Duration{5 * time.Second, time.Second, 3 * time.Second, 2 * time.Second, 4 * time.Second},
			expect: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second, 5 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := make([]time.Duration, len(tt.input))
			copy(input, tt.input)
			sortDurations(input)

			for i, v := range input {
				if v != tt.expect[i] {
					t.Errorf("sortDurations result[%d] = %v, want %v", i, v, tt.expect[i])
				}
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []time.Duration
		p      float64
		expect time.Duration
	}{
		{
			name:   "empty",
			sorted: []time.Duration{},
			p:      0.5,
			expect: 0,
		},
		{
			name:   "single",
			sorted: []time.Duration{time.Second},
			p:      0.5,
			expect: time.Second,
		},
		{
			name:   "p50 of 3",
			sorted: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
			p:      0.5,
			expect: 2 * time.Second,
		},
		{
			name:   "p99 of 3",
			sorted: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
			p:      0.99,
			expect: 2 * time.Second, // idx = int(2 * 0.99) = 1
		},
		{
			name:   "p0 of 3",
			sorted: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
			p:      0.0,
			expect: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := percentile(tt.sorted, tt.p)
			if result != tt.expect {
				t.Errorf("percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, result, tt.expect)
			}
		})
	}
}

// =============================================================================
// Tests: Thread Safety
// =============================================================================

func TestCollector_ThreadSafety(t *testing.T) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 5,
	})

	done := make(chan bool)

	// Concurrent RecordActivity
	for i := 0; i < 5; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				c.RecordActivity(&ActivityUpdate{
					ActiveComponents: id,
					StdoutBytes:      int64(j * 100),
					StderrBytes:      int64(j * 10),
					ArtifactsCreated: int64(j),
				})
			}
			done <- true
		}(i)
	}

	// Concurrent event recording
	for i := 0; i < 5; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.ComponentLaunched()
				c.RecordExit(0, time.Second, true)
				c.SetActiveCount(j)
				c.RecordResources("thermal_camera", float64(j), int64(j)<<10)
				c.SetPhase("armed")
			}
			done <- true
		}()
	}

	// Concurrent reads
	for i := 0; i < 5; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = c.PeakActive()
				_ = c.TotalLaunches()
				_ = c.UnexpectedExits()
				_ = c.GenerateSummary()
			}
			done <- true
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 15; i++ {
		<-done
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkCollector_RecordActivity(b *testing.B) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 3,
	})

	u := &ActivityUpdate{
		ActiveComponents: 3,
		StdoutBytes:      1 << 20,
		StderrBytes:      1 << 10,
		StdoutLines:      10000,
		StderrLines:      100,
		ArtifactsCreated: 50,
		OutputRate10s:    1024.0,
		ArtifactRate1m:   3.0,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.RecordActivity(u)
	}
}

func BenchmarkCollector_GenerateSummary(b *testing.B) {
	c, _ := newTestCollector(CollectorConfig{
		SessionID:  "20251015_123456_UTC",
		Category:   "general",
		Components: 3,
	})

	// Add some data
	for i := 0; i < 100; i++ {
		c.ComponentLaunched()
		c.RecordExit(0, time.Duration(i)*time.Minute, true)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.GenerateSummary()
	}
}
