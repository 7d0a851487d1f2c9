// Package main provides the rig-session CLI entry point.
//
// rig-session launches a coordinated set of test instruments (power
// supply logger, oscilloscope capture, thermal camera) as child
// processes, supervises them for the duration of a test session, and
// tears the whole set down on request. Each session gets a timestamped
// directory under the base dir where components and the post-run
// organizer deposit artifacts.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
	"github.com/randomizedcoder/go-instrument-rig/internal/logging"
	"github.com/randomizedcoder/go-instrument-rig/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/rig-session
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "-version", "--version", "version":
			fmt.Printf("rig-session %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When the TUI owns the terminal, logs would corrupt the display.
	// Send them to io.Discard; the dashboard surfaces the same state.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", cfg.LogLevel)
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"category", cfg.Category,
		"power_config", cfg.PowerConfig,
		"scope_config", cfg.ScopeConfig,
		"capture_device", cfg.CaptureDevice,
		"grace_period", cfg.GracePeriod,
		"metrics_addr", cfg.MetricsAddr,
		"tui", cfg.TUIEnabled,
	)

	printBanner(cfg)

	orch := orchestrator.New(cfg, logger, version)
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return 1
	}

	return 0
}

// printBanner prints a startup banner with the session configuration.
func printBanner(cfg *config.Config) {
	thermal := "device " + cfg.CaptureDevice
	if config.IsSkipSentinel(cfg.CaptureDevice) {
		thermal = "disabled"
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                       rig-session                         ║")
	fmt.Println("║          Multi-Instrument Test Session Launcher           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Category:     %s\n", cfg.Category)
	fmt.Printf("  Power:        %s\n", cfg.PowerConfig)
	fmt.Printf("  Scope:        %s\n", cfg.ScopeConfig)
	fmt.Printf("  Thermal:      %s\n", thermal)
	fmt.Printf("  Base Dir:     %s\n", cfg.BaseDir)
	fmt.Printf("  Grace Period: %s\n", cfg.GracePeriod)
	if cfg.MetricsEnabled() {
		fmt.Printf("  Metrics:      http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
}
