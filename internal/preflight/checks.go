// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// minFreeDiskBytes is the recommended headroom for a capture session.
// Oscilloscope CSVs and thermal recordings grow fast.
const minFreeDiskBytes = 1 << 30

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Config holds the inputs the checks run against.
type Config struct {
	// Components is the launch plan's component table, before placeholder
	// substitution. Commands are checked as-is.
	Components []config.ComponentDescriptor

	// Resolved carries the instrument config paths and the thermal toggle.
	// Components needing the capture device are skipped when thermal
	// capture is disabled, matching what will actually launch.
	Resolved *config.ResolvedInputs

	// BaseDir is the session root that must be writable.
	BaseDir string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(cfg Config) *Result {
	components := launchable(cfg)

	result := &Result{
		Checks: make([]Check, 0, len(components)+5),
		Passed: true,
	}

	// Every distinct command must resolve before anything is launched.
	seen := make(map[string]bool)
	for _, desc := range components {
		if seen[desc.Command] {
			continue
		}
		seen[desc.Command] = true

		check := checkCommand(desc.Command)
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			result.Passed = false
		}
	}

	if cfg.Resolved != nil {
		configCheck := checkConfigFiles(cfg.Resolved)
		result.Checks = append(result.Checks, configCheck)
		if !configCheck.Passed {
			result.Passed = false
		}
	}

	rootCheck := checkSessionRoot(cfg.BaseDir)
	result.Checks = append(result.Checks, rootCheck)
	if !rootCheck.Passed {
		result.Passed = false
	}

	fdCheck := checkFileDescriptors(len(components))
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	procCheck := checkProcessLimit(len(components))
	result.Checks = append(result.Checks, procCheck)
	if !procCheck.Passed {
		result.Passed = false
	}

	// Disk space check (warning only)
	diskCheck := checkDiskSpace(cfg.BaseDir)
	result.Checks = append(result.Checks, diskCheck)
	// Don't fail on disk warning

	return result
}

// launchable filters out components that will not launch this session:
// with thermal capture disabled, anything that needs the capture device
// is dropped from the plan, so it is not checked either.
func launchable(cfg Config) []config.ComponentDescriptor {
	if cfg.Resolved == nil || cfg.Resolved.ThermalEnabled {
		return cfg.Components
	}

	out := make([]config.ComponentDescriptor, 0, len(cfg.Components))
	for _, desc := range cfg.Components {
		if desc.UsesCaptureDevice() {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// checkCommand verifies an instrument command resolves in PATH.
func checkCommand(command string) Check {
	if strings.TrimSpace(command) == "" {
		return Check{
			Name:    "command",
			Passed:  false,
			Message: "empty command in launch plan",
		}
	}

	path, err := exec.LookPath(command)
	if err != nil {
		return Check{
			Name:    "command",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", command, err),
		}
	}

	return Check{
		Name:    "command",
		Passed:  true,
		Message: fmt.Sprintf("%s found at %s", command, path),
	}
}

// checkConfigFiles verifies the resolved instrument configs are readable,
// not just present. Resolution only stats them.
func checkConfigFiles(resolved *config.ResolvedInputs) Check {
	paths := []string{resolved.PowerConfig, resolved.ScopeConfig}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return Check{
				Name:    "config_files",
				Passed:  false,
				Message: fmt.Sprintf("cannot read %s: %v", p, err),
			}
		}
		f.Close()
	}

	return Check{
		Name:    "config_files",
		Passed:  true,
		Message: fmt.Sprintf("%d instrument configs readable", len(paths)),
	}
}

// checkSessionRoot verifies the session base directory can be created and
// written to, by actually writing a probe file.
func checkSessionRoot(base string) Check {
	if base == "" {
		return Check{
			Name:    "session_root",
			Passed:  false,
			Message: "no session base directory configured",
		}
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return Check{
			Name:    "session_root",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", base, err),
		}
	}

	probe, err := os.CreateTemp(base, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "session_root",
			Passed:  false,
			Message: fmt.Sprintf("%s not writable: %v", base, err),
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	abs, err := filepath.Abs(base)
	if err != nil {
		abs = base
	}
	return Check{
		Name:    "session_root",
		Passed:  true,
		Message: fmt.Sprintf("writable at %s", abs),
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(components int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Each component needs ~20 FDs (pipes, capture logs, instrument
	// sockets) plus launcher overhead (metrics server, logging, watcher).
	required := components*20 + 100
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d components)", actual, required, components),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(components int) Check {
	// Each component is its own process group; the capture scripts fork
	// workers of their own, so leave generous headroom.
	required := components*10 + 50

	// Read soft limit from /proc/self/limits
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	// Parse "Max processes" line
	actual := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "Max processes") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				if fields[3] == "unlimited" {
					actual = 1000000
				} else {
					fmt.Sscanf(fields[3], "%d", &actual)
				}
			}
			break
		}
	}

	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// checkDiskSpace warns when the session root's filesystem is low on space.
func checkDiskSpace(base string) Check {
	if base == "" {
		base = "."
	}

	// The base dir may not exist yet; probe the nearest existing parent.
	probe := base
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(probe, &stat); err != nil {
		return Check{
			Name:    "disk_space",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	free := uint64(stat.Bavail) * uint64(stat.Bsize)

	return Check{
		Name:    "disk_space",
		Passed:  true, // Don't fail on this
		Warning: free < minFreeDiskBytes,
		Message: fmt.Sprintf("%.1f GB free (recommend at least %.1f GB)", float64(free)/1e9, float64(minFreeDiskBytes)/1e9),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "command":
		return "install the missing instrument tooling or fix PATH"
	case "config_files":
		return "check the -power-config and -scope-config paths"
	case "session_root":
		return "check permissions on the session base directory (-base-dir)"
	default:
		return "see documentation"
	}
}
