// Package main provides the rig-organize CLI entry point.
//
// rig-organize collects the artifacts a finished test session left
// scattered around the working tree (scope captures, power logs,
// thermal recordings) and moves them into the session's directory,
// sorted into per-category subdirectories. Files are matched by the
// session's date prefix, so only artifacts from the same day are
// picked up. A TEST_SUMMARY.txt inventory is written at the end.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
	"github.com/randomizedcoder/go-instrument-rig/internal/logging"
	"github.com/randomizedcoder/go-instrument-rig/internal/organize"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/rig-organize
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "-version", "--version", "version":
			fmt.Printf("rig-organize %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseOrganizeFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		printRecentSessions(filepath.Join(cfg.BaseDir, cfg.Category))
		return 1
	}

	logger := logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	logging.SetDefault(logger)

	if err := config.ValidateOrganize(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	plan, err := config.LoadPlanOrDefault(cfg.PlanPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plan error: %v\n", err)
		return 1
	}

	sessionDir := filepath.Join(cfg.BaseDir, cfg.Category, cfg.SessionName)

	logger.Info("starting",
		"version", version,
		"session", cfg.SessionName,
		"session_dir", sessionDir,
		"search_root", cfg.SearchRoot,
	)

	org := organize.New(organize.Config{
		SearchRoot: cfg.SearchRoot,
		SessionDir: sessionDir,
		Rules:      plan.Collect,
		Logger:     logger,
	})

	result, err := org.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, organize.ErrSessionNotFound) {
			printRecentSessions(filepath.Join(cfg.BaseDir, cfg.Category))
		}
		return 1
	}

	printResult(result)
	return 0
}

// printRecentSessions helps the operator recover from a missing or
// mistyped session name by listing what actually exists.
func printRecentSessions(categoryDir string) {
	sessions, err := organize.ListRecentSessions(categoryDir, 10)
	if err != nil || len(sessions) == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "\nRecent sessions under %s:\n", categoryDir)
	for _, name := range sessions {
		fmt.Fprintf(os.Stderr, "  %s\n", name)
	}
}

// printResult prints a per-category breakdown of what was collected.
func printResult(result *organize.Result) {
	if result.MovedCount() == 0 {
		fmt.Printf("No artifacts found for %s\n", filepath.Base(result.SessionDir))
	} else {
		fmt.Printf("Collected %d artifacts into %s\n", result.MovedCount(), result.SessionDir)

		byCategory := result.MovedByCategory()
		categories := make([]string, 0, len(byCategory))
		for category := range byCategory {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		for _, category := range categories {
			fmt.Printf("  %-20s %d\n", category+":", len(byCategory[category]))
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("%d files could not be moved:\n", len(result.Warnings))
		for _, w := range result.Warnings {
			fmt.Printf("  %s: %v\n", w.Path, w.Err)
		}
	}

	fmt.Printf("Summary written to %s\n", filepath.Join(result.SessionDir, organize.SummaryName))
}
