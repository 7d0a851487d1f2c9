// Package session owns test-session identity, lifecycle status, and the
// session output directory.
package session

import (
	"strings"
	"sync"
	"time"
)

// Status represents the lifecycle state of a test session.
type Status int

const (
	// StatusInitializing is the initial state before any component launches.
	StatusInitializing Status = iota

	// StatusRunning indicates at least one component has been launched.
	StatusRunning

	// StatusShuttingDown indicates teardown is in progress.
	StatusShuttingDown

	// StatusCompleted indicates the session ended normally.
	StatusCompleted

	// StatusFailed indicates the session aborted before a normal shutdown.
	StatusFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusRunning:
		return "running"
	case StatusShuttingDown:
		return "shutting_down"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the session has finished, one way or the other.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session identifies one test run anchored to a single timestamped output
// directory.
type Session struct {
	ID        string
	Dir       string
	StartedAt time.Time

	mu     sync.Mutex
	status Status
}

// New returns a Session in StatusInitializing.
func New(id, dir string, startedAt time.Time) *Session {
	return &Session{
		ID:        id,
		Dir:       dir,
		StartedAt: startedAt,
		status:    StatusInitializing,
	}
}

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus advances the lifecycle status. Once the session reaches a
// terminal status it never changes again; late transitions are ignored.
func (s *Session) SetStatus(next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return
	}
	if next < s.status {
		return
	}
	s.status = next
}

// idTimeLayout is second-precision UTC, e.g. 20260825_143000.
const idTimeLayout = "20060102_150405"

// NewID derives a session identifier from t at second precision. With an
// operator label the id becomes 20060102_150405_UTC_<label>; without one it
// is the bare timestamp.
func NewID(t time.Time, label string) string {
	id := t.UTC().Format(idTimeLayout)
	if clean := SanitizeLabel(label); clean != "" {
		id += "_UTC_" + clean
	}
	return id
}

// SanitizeLabel reduces an operator label to filesystem-safe characters:
// letters, digits, dot, underscore and dash. Runs of other characters
// collapse to a single underscore.
func SanitizeLabel(label string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// DatePrefix returns the YYYYMMDD prefix of a session id: the substring
// before the first underscore. Artifact matching is by this coarse prefix,
// so two sessions on the same UTC date match the same loose files.
func DatePrefix(sessionID string) string {
	if i := strings.IndexByte(sessionID, '_'); i >= 0 {
		return sessionID[:i]
	}
	return sessionID
}
