package session

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ManifestName is the plain-text session-info file written into every
// session directory at launch.
const ManifestName = "test_manifest.txt"

const (
	bannerLine  = "======================================================================"
	sectionLine = "----------------------------------------------------------------------"
)

// ManifestInfo carries everything the manifest header records at launch.
type ManifestInfo struct {
	SessionID      string
	Dir            string
	Label          string
	StartedAt      time.Time
	PowerConfig    string
	ScopeConfig    string
	CaptureDevice  string
	ThermalEnabled bool
}

// ComponentStatus is one line of the completion block: a component name and
// a human-readable final status.
type ComponentStatus struct {
	Name   string
	Detail string
}

// Manifest is the append-only session-info file. Launch records and the
// completion block are appended by the launcher's control goroutine; it is
// not safe for concurrent writers.
type Manifest struct {
	path string
}

// WriteManifest creates test_manifest.txt in the session directory with the
// header sections and returns a Manifest for later appends.
func WriteManifest(info ManifestInfo) (*Manifest, error) {
	var b strings.Builder

	b.WriteString(bannerLine + "\n")
	b.WriteString("TEST SESSION MANIFEST\n")
	b.WriteString(bannerLine + "\n\n")

	fmt.Fprintf(&b, "Test Start Time (UTC): %s\n", info.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Test Folder: %s\n", info.SessionID)
	if info.Label != "" {
		fmt.Fprintf(&b, "Test Label: %s\n", info.Label)
	}
	b.WriteString("\n")

	b.WriteString("CONFIGURATION FILES:\n")
	b.WriteString(sectionLine + "\n")
	fmt.Fprintf(&b, "Power Supply Config: %s\n", info.PowerConfig)
	fmt.Fprintf(&b, "  Basename: %s\n", filepath.Base(info.PowerConfig))
	fmt.Fprintf(&b, "Oscilloscope Config: %s\n", info.ScopeConfig)
	fmt.Fprintf(&b, "  Basename: %s\n", filepath.Base(info.ScopeConfig))
	if info.ThermalEnabled {
		fmt.Fprintf(&b, "Capture Device: %s\n", info.CaptureDevice)
	} else {
		fmt.Fprintf(&b, "Capture Device: disabled (%s)\n", info.CaptureDevice)
	}
	b.WriteString("\n")

	b.WriteString("SYSTEM INFORMATION:\n")
	b.WriteString(sectionLine + "\n")
	fmt.Fprintf(&b, "Runtime: %s\n", runtime.Version())
	fmt.Fprintf(&b, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if host, err := os.Hostname(); err == nil {
		fmt.Fprintf(&b, "Hostname: %s\n", host)
	}
	b.WriteString("\n")

	b.WriteString("NOTES:\n")
	b.WriteString(sectionLine + "\n")
	b.WriteString("- Each subsystem writes its own output; artifacts are collected after the run\n")
	b.WriteString("- Stop the session from the dashboard (q) or with Ctrl+C in the launcher\n")
	b.WriteString("- If one system crashes, others continue running\n")
	b.WriteString("\n")

	b.WriteString("LAUNCHED SYSTEMS:\n")
	b.WriteString(sectionLine + "\n")

	path := filepath.Join(info.Dir, ManifestName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	return &Manifest{path: path}, nil
}

// Path returns the manifest file location.
func (m *Manifest) Path() string {
	return m.path
}

// AppendLaunch records one successfully launched component.
func (m *Manifest) AppendLaunch(index int, name, command string, pid int, stdoutLog, stderrLog string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s\n", index, name)
	fmt.Fprintf(&b, "   Command: %s\n", command)
	fmt.Fprintf(&b, "   PID: %d\n", pid)
	fmt.Fprintf(&b, "   Logs: %s / %s\n\n", filepath.Base(stdoutLog), filepath.Base(stderrLog))
	return m.append(b.String())
}

// AppendLaunchFailure records a component that could not be spawned.
func (m *Manifest) AppendLaunchFailure(index int, name string, required bool, launchErr error) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s\n", index, name)
	if required {
		fmt.Fprintf(&b, "   LAUNCH FAILED (required): %v\n\n", launchErr)
	} else {
		fmt.Fprintf(&b, "   LAUNCH FAILED (non-required, session continues): %v\n\n", launchErr)
	}
	return m.append(b.String())
}

// AppendCompletion records the end of the session and each component's final
// status.
func (m *Manifest) AppendCompletion(endedAt time.Time, duration time.Duration, statuses []ComponentStatus) error {
	var b strings.Builder

	b.WriteString("\n" + bannerLine + "\n")
	b.WriteString("TEST COMPLETION\n")
	b.WriteString(bannerLine + "\n\n")
	fmt.Fprintf(&b, "Test End Time (UTC): %s\n", endedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Total Duration: %.1f seconds (%.1f minutes)\n\n", duration.Seconds(), duration.Minutes())

	b.WriteString("PROCESS STATUS:\n")
	b.WriteString(sectionLine + "\n")
	for _, st := range statuses {
		fmt.Fprintf(&b, "%s: %s\n", st.Name, st.Detail)
	}

	return m.append(b.String())
}

func (m *Manifest) append(text string) error {
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append manifest: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("append manifest: %w", err)
	}
	return nil
}
