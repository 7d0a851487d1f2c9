package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// OutputCapture owns the stdout/stderr log files for one child process.
// The orchestrator never interprets child output: capture is a plain tee
// into per-component files plus byte/line accounting for the dashboard
// and the exit summary.
type OutputCapture struct {
	component string
	stdout    *countingFile
	stderr    *countingFile
}

// CaptureCounts is a snapshot of how much output a child has produced.
type CaptureCounts struct {
	StdoutBytes int64
	StdoutLines int64
	StderrBytes int64
	StderrLines int64
}

// NewOutputCapture creates stdout/stderr log files for a component inside
// dir. File names follow the `<component>_stdout.log` convention, with the
// component name lowercased and snake_cased.
func NewOutputCapture(dir, component string) (*OutputCapture, error) {
	base := ComponentFileName(component)

	stdout, err := newCountingFile(filepath.Join(dir, base+"_stdout.log"))
	if err != nil {
		return nil, fmt.Errorf("create stdout log: %w", err)
	}

	stderr, err := newCountingFile(filepath.Join(dir, base+"_stderr.log"))
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("create stderr log: %w", err)
	}

	return &OutputCapture{
		component: component,
		stdout:    stdout,
		stderr:    stderr,
	}, nil
}

// Component returns the human component name this capture belongs to.
func (c *OutputCapture) Component() string { return c.component }

// Stdout returns the writer to attach to the child's stdout.
func (c *OutputCapture) Stdout() io.Writer { return c.stdout }

// Stderr returns the writer to attach to the child's stderr.
func (c *OutputCapture) Stderr() io.Writer { return c.stderr }

// StdoutPath returns the path of the stdout log file.
func (c *OutputCapture) StdoutPath() string { return c.stdout.path }

// StderrPath returns the path of the stderr log file.
func (c *OutputCapture) StderrPath() string { return c.stderr.path }

// Counts returns the current output accounting. Safe to call while the
// child is still writing.
func (c *OutputCapture) Counts() CaptureCounts {
	return CaptureCounts{
		StdoutBytes: c.stdout.bytes.Load(),
		StdoutLines: c.stdout.lines.Load(),
		StderrBytes: c.stderr.bytes.Load(),
		StderrLines: c.stderr.lines.Load(),
	}
}

// Close closes both log files. Safe to call more than once.
func (c *OutputCapture) Close() error {
	err1 := c.stdout.Close()
	err2 := c.stderr.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// ComponentFileName converts a human component name to the snake_case base
// used for its log files: "Thermal Camera" -> "thermal_camera".
func ComponentFileName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// countingFile is an *os.File wrapper that tracks bytes and newline counts.
// Writes pass straight through; no buffering, so children's output survives
// a forced kill of the orchestrator.
type countingFile struct {
	path  string
	file  *os.File
	bytes atomic.Int64
	lines atomic.Int64
}

func newCountingFile(path string) (*countingFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &countingFile{path: path, file: f}, nil
}

// Write implements io.Writer.
func (f *countingFile) Write(p []byte) (int, error) {
	n, err := f.file.Write(p)
	if n > 0 {
		f.bytes.Add(int64(n))
		f.lines.Add(int64(bytes.Count(p[:n], []byte{'\n'})))
	}
	return n, err
}

// Close closes the underlying file. Safe to call more than once.
func (f *countingFile) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
