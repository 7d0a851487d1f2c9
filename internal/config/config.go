// Package config provides configuration management for go-instrument-rig.
package config

import "time"

// Config holds all configuration options for the session launcher and the
// artifact organizer. Each binary populates the subset it parses flags for.
type Config struct {
	// Session identity
	Label    string `json:"label"`
	BaseDir  string `json:"base_dir"`
	Category string `json:"category"`

	// Instrument inputs (positional arguments)
	PowerConfig   string `json:"power_config"`
	ScopeConfig   string `json:"scope_config"`
	CaptureDevice string `json:"capture_device"`

	// Launch plan
	ConfigBase string `json:"config_base"`
	PlanPath   string `json:"plan_path"` // empty = built-in plan

	// Supervision
	GracePeriod       time.Duration `json:"grace_period"`
	PollInterval      time.Duration `json:"poll_interval"`
	SkipStartupDelays bool          `json:"skip_startup_delays"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = exposition server disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`

	// Dashboard / session-directory activity
	TUIEnabled   bool `json:"tui_enabled"`
	WatchEnabled bool `json:"watch_enabled"`

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight"`

	// Organizer
	SearchRoot  string `json:"search_root"`
	SessionName string `json:"session_name"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Session identity
		BaseDir:  "test_sessions",
		Category: "radiation_test",

		// Instrument inputs
		CaptureDevice: "0",

		// Launch plan
		ConfigBase: ".",

		// Supervision
		GracePeriod:  10 * time.Second,
		PollInterval: 100 * time.Millisecond,

		// Observability
		MetricsAddr: "", // Disabled unless requested
		Verbose:     false,
		LogFormat:   "text",
		LogLevel:    "info",

		// Dashboard
		TUIEnabled:   true,
		WatchEnabled: true,

		// Organizer
		SearchRoot: ".",
	}
}

// MetricsEnabled reports whether the Prometheus exposition server should run.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsAddr != ""
}
