// Package watch observes the capture directories for new artifact files
// while a session runs.
//
// The capture scripts write into shared directories (data/, plots/,
// recordings/) that only get collected into the session directory after
// the run. Watching them live gives the dashboard and metrics an
// artifact count without interpreting any instrument output.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
)

// ArtifactWatcher counts artifact files created during a session.
// A file counts when its name contains the session's date token, or when
// it appears inside a recording group directory that matched.
type ArtifactWatcher struct {
	searchRoot string
	sourceDirs map[string]bool
	datePrefix string
	onCreate   func(path string)
	logger     *slog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// groupDirs tracks matched recording directories added at runtime.
	// Touched only by the watch goroutine.
	groupDirs map[string]bool

	created atomic.Int64
}

// Config holds configuration for an ArtifactWatcher.
type Config struct {
	// SearchRoot is the directory the capture scripts write into.
	SearchRoot string

	// Rules supply the source directories to watch.
	Rules []config.CollectRule

	// DatePrefix is the session id's leading date token.
	DatePrefix string

	// OnCreate is called once per counted artifact. Optional.
	OnCreate func(path string)

	Logger *slog.Logger
}

// New creates an ArtifactWatcher. Call Start to begin watching.
func New(cfg Config) *ArtifactWatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sourceDirs := make(map[string]bool, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		sourceDirs[filepath.Clean(filepath.Join(cfg.SearchRoot, rule.SourceDir))] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ArtifactWatcher{
		searchRoot: filepath.Clean(cfg.SearchRoot),
		sourceDirs: sourceDirs,
		datePrefix: cfg.DatePrefix,
		onCreate:   cfg.OnCreate,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		groupDirs:  make(map[string]bool),
	}
}

// Start begins watching the search root and every capture directory that
// already exists. Directories the scripts create later are picked up from
// the root watch.
func (w *ArtifactWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(w.searchRoot); err != nil {
		watcher.Close()
		return err
	}

	for dir := range w.sourceDirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("artifact_watch_add_failed", "dir", dir, "error", err)
		}
	}

	w.logger.Info("artifact_watcher_started",
		"root", w.searchRoot,
		"dirs", len(w.sourceDirs),
		"date_prefix", w.datePrefix,
	)

	go w.watch()
	return nil
}

// Stop stops watching and waits for the event loop to drain.
func (w *ArtifactWatcher) Stop() error {
	w.cancel()
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	<-w.done
	return err
}

// Created returns how many artifacts have been counted so far.
func (w *ArtifactWatcher) Created() int64 {
	return w.created.Load()
}

// watch is the main loop that listens for filesystem events.
func (w *ArtifactWatcher) watch() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("artifact_watcher_stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				w.handleCreate(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("artifact_watcher_error", "error", err)
		}
	}
}

// handleCreate classifies one created path: source directories and
// matched group directories get added to the watch, matching files get
// counted.
func (w *ArtifactWatcher) handleCreate(path string) {
	path = filepath.Clean(path)

	info, err := os.Lstat(path)
	if err != nil {
		// Gone already; short-lived temp files are not artifacts.
		return
	}

	if info.IsDir() {
		switch {
		case w.sourceDirs[path]:
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("artifact_watch_add_failed", "dir", path, "error", err)
			}
		case w.sourceDirs[filepath.Dir(path)] && strings.Contains(filepath.Base(path), w.datePrefix):
			// A recording group directory: its contents count even
			// though the file names carry no date.
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("artifact_watch_add_failed", "dir", path, "error", err)
				return
			}
			w.groupDirs[path] = true
		}
		return
	}

	parent := filepath.Dir(path)
	name := filepath.Base(path)

	switch {
	case w.groupDirs[parent]:
		w.count(path)
	case w.sourceDirs[parent] && strings.Contains(name, w.datePrefix):
		w.count(path)
	}
}

func (w *ArtifactWatcher) count(path string) {
	n := w.created.Add(1)
	w.logger.Debug("artifact_created", "path", path, "total", n)
	if w.onCreate != nil {
		w.onCreate(path)
	}
}
