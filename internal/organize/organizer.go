// Package organize moves per-session instrument artifacts from the shared
// capture directories into the session directory tree.
package organize

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
	"github.com/randomizedcoder/go-instrument-rig/internal/session"
)

// ErrSessionNotFound reports that the named session directory does not
// exist under the configured base/category.
var ErrSessionNotFound = errors.New("session directory not found")

// Warning records a single artifact that could not be organized. Warnings
// never abort a run: every remaining artifact is still processed.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("skipped %s: %v", w.Path, w.Err)
}

// MovedFile records one artifact placed into a category directory.
type MovedFile struct {
	Category string
	Name     string
}

// Result summarizes an organize run.
type Result struct {
	SessionDir string
	Moved      []MovedFile
	Warnings   []Warning
}

// MovedCount returns the total number of files moved.
func (r *Result) MovedCount() int {
	return len(r.Moved)
}

// MovedByCategory groups moved file names by their category, preserving
// move order within each category.
func (r *Result) MovedByCategory() map[string][]string {
	out := make(map[string][]string)
	for _, m := range r.Moved {
		out[m.Category] = append(out[m.Category], m.Name)
	}
	return out
}

// Config holds configuration for an Organizer.
type Config struct {
	// SearchRoot is the directory the capture scripts write into; the
	// collect rules' source directories are resolved against it.
	SearchRoot string

	// SessionDir is the session directory artifacts are moved into.
	SessionDir string

	Rules  []config.CollectRule
	Logger *slog.Logger

	// Now is the clock used for the summary timestamp. Defaults to
	// time.Now.
	Now func() time.Time
}

// Organizer collects a finished session's artifacts. Matching is by date:
// an artifact belongs to the session when its name contains the session
// id's leading date token.
type Organizer struct {
	searchRoot string
	sessionDir string
	rules      []config.CollectRule
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an Organizer.
func New(cfg Config) *Organizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Organizer{
		searchRoot: cfg.SearchRoot,
		sessionDir: cfg.SessionDir,
		rules:      cfg.Rules,
		logger:     logger,
		now:        now,
	}
}

// Run organizes all matching artifacts into the session directory and
// writes the TEST_SUMMARY.txt index.
//
// The only fatal error is a missing session directory. Everything else
// (unreadable sources, collisions, cross-device failures) is recorded as
// a warning and the run continues: after a long capture session, moving
// most artifacts beats losing all of them to one bad file.
func (o *Organizer) Run() (*Result, error) {
	info, err := os.Stat(o.sessionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, o.sessionDir)
		}
		return nil, fmt.Errorf("stat session directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSessionNotFound, o.sessionDir)
	}

	sessionName := filepath.Base(o.sessionDir)
	datePrefix := session.DatePrefix(sessionName)

	result := &Result{SessionDir: o.sessionDir}

	for _, rule := range o.rules {
		o.collectRule(rule, datePrefix, result)
	}

	if err := o.writeSummary(sessionName, result); err != nil {
		result.Warnings = append(result.Warnings, Warning{
			Path: filepath.Join(o.sessionDir, SummaryName),
			Err:  err,
		})
	}

	for _, w := range result.Warnings {
		o.logger.Warn("organize_warning", "path", w.Path, "error", w.Err)
	}

	return result, nil
}

// collectRule processes one collect rule: ensures the category directory
// exists, finds date-matched artifacts under the rule's source directory,
// and moves them newest-first.
func (o *Organizer) collectRule(rule config.CollectRule, datePrefix string, result *Result) {
	categoryDir := filepath.Join(o.sessionDir, rule.Category)
	if err := os.MkdirAll(categoryDir, 0o755); err != nil {
		result.Warnings = append(result.Warnings, Warning{Path: categoryDir, Err: err})
		return
	}

	srcDir := filepath.Join(o.searchRoot, rule.SourceDir)
	if _, err := os.Stat(srcDir); err != nil {
		// Absent capture directories are normal: not every instrument
		// runs in every session.
		return
	}

	for _, pattern := range rule.Patterns {
		matches, err := filepath.Glob(filepath.Join(srcDir, pattern))
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{Path: pattern, Err: err})
			continue
		}

		for _, match := range sortByModTimeDesc(matches) {
			if !strings.Contains(filepath.Base(match), datePrefix) {
				continue
			}
			if rule.GroupDirs {
				o.flattenGroupDir(match, categoryDir, rule.Category, result)
			} else {
				o.moveArtifact(match, categoryDir, rule.Category, result)
			}
		}
	}
}

// moveArtifact moves a single regular file into the category directory.
func (o *Organizer) moveArtifact(src, categoryDir, category string, result *Result) {
	info, err := os.Lstat(src)
	if err != nil {
		result.Warnings = append(result.Warnings, Warning{Path: src, Err: err})
		return
	}
	if info.IsDir() {
		// Only group rules collect directories.
		return
	}

	name := filepath.Base(src)
	dst := filepath.Join(categoryDir, name)

	if err := moveFile(src, dst); err != nil {
		result.Warnings = append(result.Warnings, Warning{Path: src, Err: err})
		return
	}

	o.logger.Info("artifact_moved", "file", name, "category", category)
	result.Moved = append(result.Moved, MovedFile{Category: category, Name: name})
}

// flattenGroupDir moves every entry of a recording group directory flat
// into the category directory, then removes the group directory if it is
// empty. The rmdir is best-effort: a leftover entry just leaves the
// group directory behind.
func (o *Organizer) flattenGroupDir(groupDir, categoryDir, category string, result *Result) {
	info, err := os.Lstat(groupDir)
	if err != nil {
		result.Warnings = append(result.Warnings, Warning{Path: groupDir, Err: err})
		return
	}
	if !info.IsDir() {
		return
	}

	entries, err := os.ReadDir(groupDir)
	if err != nil {
		result.Warnings = append(result.Warnings, Warning{Path: groupDir, Err: err})
		return
	}

	for _, entry := range entries {
		src := filepath.Join(groupDir, entry.Name())
		dst := filepath.Join(categoryDir, entry.Name())

		if err := moveFile(src, dst); err != nil {
			result.Warnings = append(result.Warnings, Warning{Path: src, Err: err})
			continue
		}

		o.logger.Info("artifact_moved", "file", entry.Name(), "category", category)
		result.Moved = append(result.Moved, MovedFile{Category: category, Name: entry.Name()})
	}

	if err := os.Remove(groupDir); err == nil {
		o.logger.Info("group_dir_removed", "dir", filepath.Base(groupDir))
	}
}

// sortByModTimeDesc orders paths newest-first. Paths that cannot be
// statted sort last.
func sortByModTimeDesc(paths []string) []string {
	type fileTime struct {
		path    string
		modTime time.Time
	}

	files := make([]fileTime, 0, len(paths))
	for _, p := range paths {
		var mt time.Time
		if info, err := os.Lstat(p); err == nil {
			mt = info.ModTime()
		}
		files = append(files, fileTime{path: p, modTime: mt})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out
}

// moveFile renames src to dst, refusing to clobber an existing dst and
// falling back to copy-then-remove when the source and destination live
// on different filesystems.
func moveFile(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("destination already exists")
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		return copyThenRemove(src, dst)
	}
	return err
}

// copyThenRemove implements a cross-device move for regular files,
// preserving the source's modification time so mtime-based tooling keeps
// working on the organized copy.
func copyThenRemove(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("cannot move directory across filesystems")
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	os.Chtimes(dst, time.Now(), info.ModTime())
	return os.Remove(src)
}
