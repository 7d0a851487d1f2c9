package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses the session launcher's command-line flags and positional
// arguments and returns a Config. The returned Config is non-nil even on
// error so callers can still render usage from it.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `rig-session - multi-instrument test session orchestrator

Usage:
  rig-session [flags] <power_config> <scope_config> [capture_device]

Arguments:
  power_config    Power-supply monitor config file (resolved against -config-base)
  scope_config    Oscilloscope capture config file (resolved against -config-base)
  capture_device  Webcam/thermal capture device index (default "0").
                  One of "no", "n", "none", "skip" disables the thermal camera.

Session Flags:
`)
		printFlagCategory([]string{"label", "base-dir", "category"})

		fmt.Fprintf(os.Stderr, "\nLaunch Plan:\n")
		printFlagCategory([]string{"config-base", "plan"})

		fmt.Fprintf(os.Stderr, "\nSupervision:\n")
		printFlagCategory([]string{"grace-period", "poll-interval", "skip-startup-delays"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "v", "log-format", "log-level"})

		fmt.Fprintf(os.Stderr, "\nDashboard:\n")
		printFlagCategory([]string{"tui", "watch"})

		fmt.Fprintf(os.Stderr, "\nSafety & Diagnostics:\n")
		printFlagCategory([]string{"skip-preflight"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # Full three-instrument session, webcam on device 1
  rig-session config/ltc_board.json config/scope_lt.json 1

  # Skip the thermal camera, label the run
  rig-session -label beam_window_2 config/ltc_board.json config/scope_lt.json skip

  # Headless run with metrics exposition
  rig-session -tui=false -metrics :9091 config/ltc_board.json config/scope_lt.json

`)
	}

	// Session identity
	flag.StringVar(&cfg.Label, "label", cfg.Label, "Operator label appended to the session directory name")
	flag.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "Base directory for session output")
	flag.StringVar(&cfg.Category, "category", cfg.Category, "Test category (subdirectory under -base-dir)")

	// Launch plan
	flag.StringVar(&cfg.ConfigBase, "config-base", cfg.ConfigBase, "Directory relative config paths resolve against")
	flag.StringVar(&cfg.PlanPath, "plan", cfg.PlanPath, "TOML launch plan file (default: built-in three-instrument plan)")

	// Supervision
	flag.DurationVar(&cfg.GracePeriod, "grace-period", cfg.GracePeriod, "Wait after a graceful terminate before force-killing")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Liveness poll interval")
	flag.BoolVar(&cfg.SkipStartupDelays, "skip-startup-delays", cfg.SkipStartupDelays,
		"Skip hardware-initialization waits between launches (operator override)")

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (e.g. :9091, empty = disabled)")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	// Dashboard
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard (use -tui=false to disable)")
	flag.BoolVar(&cfg.WatchEnabled, "watch", cfg.WatchEnabled, "Watch the session directory for artifact activity")

	// Safety & Diagnostics
	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Parse
	flag.Parse()

	// Positional arguments: power config, scope config, optional capture device
	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		return cfg, fmt.Errorf("expected <power_config> <scope_config> [capture_device], got %d argument(s)", len(args))
	}
	if len(args) > 3 {
		flag.Usage()
		return cfg, fmt.Errorf("unexpected extra arguments: %s", strings.Join(args[3:], " "))
	}
	cfg.PowerConfig = args[0]
	cfg.ScopeConfig = args[1]
	if len(args) == 3 {
		cfg.CaptureDevice = args[2]
	}

	return cfg, nil
}

// ParseOrganizeFlags parses the artifact organizer's command-line flags and
// its session-name positional argument. As with ParseFlags, the returned
// Config is non-nil even on error.
func ParseOrganizeFlags() (*Config, error) {
	cfg := DefaultConfig()

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `rig-organize - collect a finished session's artifacts into its directory

Usage:
  rig-organize [flags] <session_directory_name>

Arguments:
  session_directory_name  Name of an existing session directory under
                          <base-dir>/<category> (e.g. 20260825_143000_UTC_run1)

Collection Flags:
`)
		printFlagCategory([]string{"base-dir", "category", "search-root", "plan"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"log-format", "log-level"})

		fmt.Fprintf(os.Stderr, `
Examples:
  rig-organize 20260825_143000
  rig-organize -search-root /data/rig 20260825_143000_UTC_beam_window_2

`)
	}

	flag.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "Base directory session output lives under")
	flag.StringVar(&cfg.Category, "category", cfg.Category, "Test category (subdirectory under -base-dir)")
	flag.StringVar(&cfg.SearchRoot, "search-root", cfg.SearchRoot, "Directory the well-known artifact source dirs live under")
	flag.StringVar(&cfg.PlanPath, "plan", cfg.PlanPath, "TOML launch plan file supplying collection rules")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return cfg, fmt.Errorf("expected <session_directory_name>")
	}
	if len(args) > 1 {
		flag.Usage()
		return cfg, fmt.Errorf("unexpected extra arguments: %s", strings.Join(args[1:], " "))
	}
	cfg.SessionName = args[0]

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
