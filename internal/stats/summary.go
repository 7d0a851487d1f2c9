// Package stats provides per-component and session-wide statistics for
// instrument test sessions.
//
// This file implements the exit summary formatter which displays final
// component status and session totals at program exit.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// SessionID identifies the session (timestamp id plus optional label)
	SessionID string

	// SessionDir is the directory the session wrote its artifacts to
	SessionDir string

	// Duration is the total run duration
	Duration time.Duration

	// StopReason describes what ended the session (signal, keypress,
	// all components exited)
	StopReason string

	// MetricsAddr is the Prometheus metrics endpoint address, if enabled
	MetricsAddr string

	// ShutdownMeans maps component name to how teardown brought it down
	// ("graceful" or "forced"). Components that exited before teardown
	// are absent.
	ShutdownMeans map[string]string

	// ExitCodes is a map of exit codes to counts (from metrics.Collector)
	ExitCodes map[int]int64

	// Lifecycle counters (from metrics.Collector)
	TotalLaunches   int64
	LaunchFailures  int64
	UnexpectedExits int64
	ForcedKills     int64
	PeakActive      int64

	// UptimeP50, UptimeP95, UptimeP99 are uptime percentiles
	UptimeP50 time.Duration
	UptimeP95 time.Duration
	UptimeP99 time.Duration
}

// FormatExitSummary formats aggregated stats for display at program exit.
//
// The summary includes:
// - Run information (session id, directory, duration, stop reason)
// - Final per-component status with exit codes and shutdown means
// - Output capture totals
// - Uptime percentiles
// - Lifecycle counters and exit code distribution
func FormatExitSummary(stats *AggregatedStats, cfg SummaryConfig) string {
	if stats == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                        go-instrument-rig Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	// Run info
	if cfg.SessionID != "" {
		fmt.Fprintf(&b, "Session:                %s\n", cfg.SessionID)
	}
	if cfg.SessionDir != "" {
		fmt.Fprintf(&b, "Directory:              %s\n", cfg.SessionDir)
	}
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Components:             %d declared, %d launched\n", stats.TotalComponents, cfg.TotalLaunches)
	if cfg.StopReason != "" {
		fmt.Fprintf(&b, "Stop Reason:            %s\n", cfg.StopReason)
	}
	b.WriteString("\n")

	// Per-component final status
	if len(stats.PerComponent) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                              Component Status\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  %-20s %-13s %5s  %-9s %10s\n", "Component", "State", "Exit", "Shutdown", "Uptime")
		b.WriteString("  " + strings.Repeat("─", 62) + "\n")
		for _, c := range stats.PerComponent {
			exit := "-"
			if c.ExitValid {
				exit = fmt.Sprintf("%d", c.ExitCode)
			}
			means := cfg.ShutdownMeans[c.Name]
			if means == "" {
				means = "-"
			}
			uptime := "-"
			if !c.StartedAt.IsZero() {
				uptime = FormatDuration(c.Uptime)
			}
			fmt.Fprintf(&b, "  %-20s %-13s %5s  %-9s %10s\n",
				c.Name, c.State, exit, means, uptime)
		}
		b.WriteString("\n")
	}

	// Output capture
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                              Output Capture\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Stdout:               %s  (%s lines)\n",
		FormatBytes(stats.TotalStdoutBytes),
		FormatNumber(stats.TotalStdoutLines),
	)
	fmt.Fprintf(&b, "  Stderr:               %s  (%s lines)\n",
		FormatBytes(stats.TotalStderrBytes),
		FormatNumber(stats.TotalStderrLines),
	)
	fmt.Fprintf(&b, "  Average Rate:         %s/s\n", FormatBytes(int64(stats.OutputRate)))
	fmt.Fprintf(&b, "  Artifacts Created:    %d\n\n", stats.ArtifactsCreated)

	// Uptime distribution (from metrics.Collector)
	if cfg.UptimeP50 > 0 || cfg.UptimeP95 > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                            Uptime Distribution\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatDuration(cfg.UptimeP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatDuration(cfg.UptimeP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatDuration(cfg.UptimeP99))
		b.WriteString("\n")
	}

	// Lifecycle
	if cfg.TotalLaunches > 0 || cfg.LaunchFailures > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                Lifecycle\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  Launches:             %d\n", cfg.TotalLaunches)
		fmt.Fprintf(&b, "  Launch Failures:      %d\n", cfg.LaunchFailures)
		fmt.Fprintf(&b, "  Unexpected Exits:     %d\n", cfg.UnexpectedExits)
		fmt.Fprintf(&b, "  Forced Kills:         %d\n", cfg.ForcedKills)
		b.WriteString("\n")
	}

	// Exit codes (from metrics.Collector)
	if len(cfg.ExitCodes) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                Exit Codes\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			count := cfg.ExitCodes[code]
			label := exitCodeLabel(code)
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, label, count)
		}
		b.WriteString("\n")
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                        go-instrument-rig Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	if cfg.SessionID != "" {
		fmt.Fprintf(&b, "Session:                %s\n", cfg.SessionID)
	}
	fmt.Fprintf(&b, "Run Duration:           %s\n\n", FormatDuration(cfg.Duration))

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
