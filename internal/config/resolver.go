package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// skipSentinels are the capture-device values that disable the thermal
// camera, matched case-insensitively.
var skipSentinels = map[string]bool{
	"no":   true,
	"n":    true,
	"none": true,
	"skip": true,
}

// IsSkipSentinel reports whether the capture-device argument disables
// thermal capture.
func IsSkipSentinel(value string) bool {
	return skipSentinels[strings.ToLower(strings.TrimSpace(value))]
}

// ConfigurationError reports a required input file that is missing or
// unusable. It is fatal before launch; no partial session is created.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config file not found: %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ResolvedInputs is the validated, canonicalized set of inputs one session
// launches with. Paths are absolute and verified to exist.
type ResolvedInputs struct {
	PowerConfig    string
	ScopeConfig    string
	CaptureDevice  string
	ThermalEnabled bool
	Label          string
}

// Resolve canonicalizes the instrument config paths against the config base
// directory and verifies each exists as a regular file. It fails with a
// *ConfigurationError naming the first missing file and performs no
// filesystem writes. Repeated calls on the same inputs return the same
// resolved paths.
func Resolve(cfg *Config) (*ResolvedInputs, error) {
	power, err := resolveFile(cfg.ConfigBase, cfg.PowerConfig)
	if err != nil {
		return nil, err
	}
	scope, err := resolveFile(cfg.ConfigBase, cfg.ScopeConfig)
	if err != nil {
		return nil, err
	}

	return &ResolvedInputs{
		PowerConfig:    power,
		ScopeConfig:    scope,
		CaptureDevice:  cfg.CaptureDevice,
		ThermalEnabled: !IsSkipSentinel(cfg.CaptureDevice),
		Label:          cfg.Label,
	}, nil
}

// resolveFile makes path absolute (relative paths resolve against base) and
// verifies it is an existing regular file.
func resolveFile(base, path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", &ConfigurationError{Path: p, Err: err}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", &ConfigurationError{Path: abs, Err: err}
	}
	if info.IsDir() {
		return "", &ConfigurationError{Path: abs, Err: errors.New("is a directory, not a config file")}
	}

	return abs, nil
}
