package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
)

func writeTestConfig(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("channel,range\n1,10\n"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func testResolved(t *testing.T) *config.ResolvedInputs {
	t.Helper()
	dir := t.TempDir()
	return &config.ResolvedInputs{
		PowerConfig:    writeTestConfig(t, dir, "power.csv"),
		ScopeConfig:    writeTestConfig(t, dir, "scope.csv"),
		CaptureDevice:  "0",
		ThermalEnabled: true,
	}
}

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})

	t.Run("passed_with_message_only", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Message: "all good",
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "all good") {
			t.Error("Should contain message")
		}
	})
}

func TestRunAll_AllResolvable(t *testing.T) {
	result := RunAll(Config{
		Components: []config.ComponentDescriptor{
			{Name: "Power Supply", Command: "echo", Args: []string{"power"}},
			{Name: "Oscilloscope", Command: "echo", Args: []string{"scope"}},
		},
		Resolved: testResolved(t),
		BaseDir:  t.TempDir(),
	})

	if result == nil {
		t.Fatal("RunAll returned nil")
	}
	if !result.Passed {
		for _, check := range result.Checks {
			if !check.Passed {
				t.Errorf("unexpected failure: %s", check.String())
			}
		}
	}

	// Two components sharing one command produce one command check.
	commandChecks := 0
	for _, check := range result.Checks {
		if check.Name == "command" {
			commandChecks++
		}
	}
	if commandChecks != 1 {
		t.Errorf("got %d command checks for a shared command, want 1", commandChecks)
	}
}

func TestRunAll_MissingCommand(t *testing.T) {
	result := RunAll(Config{
		Components: []config.ComponentDescriptor{
			{Name: "Power Supply", Command: "/nonexistent/instrument/binary"},
		},
		Resolved: testResolved(t),
		BaseDir:  t.TempDir(),
	})

	if result.Passed {
		t.Error("Result should fail when a command cannot be resolved")
	}

	found := false
	for _, check := range result.Checks {
		if check.Name == "command" {
			found = true
			if check.Passed {
				t.Error("command check should fail for a missing binary")
			}
			if !strings.Contains(check.Message, "not found") {
				t.Errorf("Message should mention 'not found': %s", check.Message)
			}
		}
	}
	if !found {
		t.Error("Expected command check in results")
	}
}

func TestRunAll_ThermalDisabledSkipsCaptureComponent(t *testing.T) {
	resolved := testResolved(t)
	resolved.ThermalEnabled = false

	result := RunAll(Config{
		Components: []config.ComponentDescriptor{
			{Name: "Thermal Camera", Command: "/nonexistent/recorder", Args: []string{"{capture_device}"}},
			{Name: "Oscilloscope", Command: "echo"},
		},
		Resolved: resolved,
		BaseDir:  t.TempDir(),
	})

	// The camera will not launch, so its missing binary must not fail the
	// checks.
	if !result.Passed {
		for _, check := range result.Checks {
			if !check.Passed {
				t.Errorf("unexpected failure: %s", check.String())
			}
		}
	}
}

func TestRunAll_UnreadableConfig(t *testing.T) {
	resolved := testResolved(t)
	resolved.ScopeConfig = filepath.Join(t.TempDir(), "deleted.csv")

	result := RunAll(Config{
		Components: []config.ComponentDescriptor{{Name: "Oscilloscope", Command: "echo"}},
		Resolved:   resolved,
		BaseDir:    t.TempDir(),
	})

	if result.Passed {
		t.Error("Result should fail when an instrument config is unreadable")
	}

	found := false
	for _, check := range result.Checks {
		if check.Name == "config_files" {
			found = true
			if check.Passed {
				t.Error("config_files check should fail")
			}
		}
	}
	if !found {
		t.Error("Expected config_files check in results")
	}
}

func TestRunAll_FileDescriptorCheck(t *testing.T) {
	result := RunAll(Config{
		Components: []config.ComponentDescriptor{{Name: "Oscilloscope", Command: "echo"}},
		Resolved:   testResolved(t),
		BaseDir:    t.TempDir(),
	})

	found := false
	for _, check := range result.Checks {
		if check.Name == "file_descriptors" {
			found = true
			if check.Actual <= 0 {
				t.Errorf("Actual FD limit should be positive: %d", check.Actual)
			}
			if check.Required <= 0 {
				t.Errorf("Required FD count should be positive: %d", check.Required)
			}
		}
	}
	if !found {
		t.Error("Expected file_descriptors check in results")
	}
}

func TestRunAll_ProcessLimitCheck(t *testing.T) {
	result := RunAll(Config{
		Components: []config.ComponentDescriptor{{Name: "Oscilloscope", Command: "echo"}},
		Resolved:   testResolved(t),
		BaseDir:    t.TempDir(),
	})

	found := false
	for _, check := range result.Checks {
		if check.Name == "process_limit" {
			found = true
			// Either passes with actual value or is a warning (non-Linux)
			if !check.Passed && !check.Warning {
				t.Errorf("Process limit should either pass or be a warning: %s", check.Message)
			}
		}
	}
	if !found {
		t.Error("Expected process_limit check in results")
	}
}

func TestRunAll_DiskSpaceNeverFails(t *testing.T) {
	result := RunAll(Config{
		Components: []config.ComponentDescriptor{{Name: "Oscilloscope", Command: "echo"}},
		Resolved:   testResolved(t),
		BaseDir:    t.TempDir(),
	})

	found := false
	for _, check := range result.Checks {
		if check.Name == "disk_space" {
			found = true
			// This check should never fail (only warn)
			if !check.Passed {
				t.Errorf("Disk space check should always pass (warn at most): %s", check.Message)
			}
		}
	}
	if !found {
		t.Error("Expected disk_space check in results")
	}
}

func TestCheckSessionRoot(t *testing.T) {
	t.Run("creates_missing_dir", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "sessions", "nested")
		check := checkSessionRoot(base)
		if !check.Passed {
			t.Errorf("checkSessionRoot should create and pass: %s", check.Message)
		}
		if _, err := os.Stat(base); err != nil {
			t.Errorf("base dir not created: %v", err)
		}
	})

	t.Run("empty_base", func(t *testing.T) {
		check := checkSessionRoot("")
		if check.Passed {
			t.Error("empty base should fail")
		}
	})

	t.Run("no_probe_left_behind", func(t *testing.T) {
		base := t.TempDir()
		checkSessionRoot(base)

		entries, err := os.ReadDir(base)
		if err != nil {
			t.Fatalf("reading base: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("probe file left behind: %v", entries)
		}
	})
}

func TestCheckCommand_EdgeCases(t *testing.T) {
	t.Run("empty_command", func(t *testing.T) {
		check := checkCommand("")
		if check.Passed {
			t.Error("Empty command should fail")
		}
	})

	t.Run("directory_as_command", func(t *testing.T) {
		check := checkCommand("/tmp")
		if check.Passed {
			t.Error("Directory as command should fail")
		}
	})
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	// Verify required scales with component count
	check1 := checkFileDescriptors(1)
	check10 := checkFileDescriptors(10)
	check100 := checkFileDescriptors(100)

	if check10.Required <= check1.Required {
		t.Error("Required FDs should increase with more components")
	}
	if check100.Required <= check10.Required {
		t.Error("Required FDs should increase with more components")
	}
}

func TestSuggestFix(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{"file_descriptors", "ulimit -n"},
		{"process_limit", "ulimit -u"},
		{"command", "PATH"},
		{"config_files", "-power-config"},
		{"session_root", "-base-dir"},
		{"unknown", "documentation"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fix := suggestFix(tc.name)
			if !strings.Contains(fix, tc.expected) {
				t.Errorf("suggestFix(%q) = %q, should contain %q", tc.name, fix, tc.expected)
			}
		})
	}
}

func TestResult_Passed(t *testing.T) {
	t.Run("all_pass", func(t *testing.T) {
		result := &Result{
			Checks: []Check{
				{Name: "a", Passed: true},
				{Name: "b", Passed: true},
			},
			Passed: true,
		}
		if !result.Passed {
			t.Error("Result with all passing checks should pass")
		}
	})

	t.Run("one_fail", func(t *testing.T) {
		result := &Result{
			Checks: []Check{
				{Name: "a", Passed: true},
				{Name: "b", Passed: false},
			},
			Passed: false,
		}
		if result.Passed {
			t.Error("Result with one failing check should fail")
		}
	})

	t.Run("warning_only", func(t *testing.T) {
		result := &Result{
			Checks: []Check{
				{Name: "a", Passed: true, Warning: true},
			},
			Passed: true,
		}
		// Warnings don't cause failure
		if !result.Passed {
			t.Error("Result with only warnings should pass")
		}
	})
}

// TestPrintResults just verifies no panic - output goes to stdout
func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "test1", Passed: true, Message: "ok"},
			{Name: "test2", Passed: false, Required: 100, Actual: 50},
		},
		Passed: false,
	}

	// Should not panic
	PrintResults(result)
}
