package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the session launcher's configuration for errors and
// inconsistencies. Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateShared(cfg)...)

	// Instrument configs are required
	if cfg.PowerConfig == "" {
		errs = append(errs, ValidationError{
			Field:   "power_config",
			Message: "power-supply config path is required",
		})
	}
	if cfg.ScopeConfig == "" {
		errs = append(errs, ValidationError{
			Field:   "scope_config",
			Message: "oscilloscope config path is required",
		})
	}

	// Timing bounds
	if cfg.GracePeriod <= 0 {
		errs = append(errs, ValidationError{
			Field:   "grace_period",
			Message: "must be positive",
		})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: "must be positive",
		})
	}
	// A poll interval longer than the grace period would miss exits during shutdown
	if cfg.PollInterval > 0 && cfg.GracePeriod > 0 && cfg.PollInterval > cfg.GracePeriod {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: fmt.Sprintf("must not exceed grace_period (%v), got %v", cfg.GracePeriod, cfg.PollInterval),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateOrganize checks the artifact organizer's configuration.
func ValidateOrganize(cfg *Config) error {
	var errs []error

	errs = append(errs, validateShared(cfg)...)

	if cfg.SessionName == "" {
		errs = append(errs, ValidationError{
			Field:   "session_name",
			Message: "session directory name is required",
		})
	}
	if cfg.SearchRoot == "" {
		errs = append(errs, ValidationError{
			Field:   "search_root",
			Message: "must not be empty",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateShared covers the fields both binaries use.
func validateShared(cfg *Config) []error {
	var errs []error

	if cfg.BaseDir == "" {
		errs = append(errs, ValidationError{
			Field:   "base_dir",
			Message: "must not be empty",
		})
	}

	// Category becomes a single path element under base_dir
	if cfg.Category == "" {
		errs = append(errs, ValidationError{
			Field:   "category",
			Message: "must not be empty",
		})
	} else if strings.ContainsAny(cfg.Category, `/\`) {
		errs = append(errs, ValidationError{
			Field:   "category",
			Message: fmt.Sprintf("must not contain path separators (got %q)", cfg.Category),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	return errs
}
