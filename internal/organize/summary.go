package organize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SummaryName is the file written at the session root after organizing.
const SummaryName = "TEST_SUMMARY.txt"

var bannerLine = strings.Repeat("=", 70)

// writeSummary writes the TEST_SUMMARY.txt index: run metadata, the
// category layout, and a listing of every file now present in each
// category directory (not just the ones this run moved, so re-running
// the organizer refreshes the index).
func (o *Organizer) writeSummary(sessionName string, result *Result) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", bannerLine)
	fmt.Fprintf(&b, "TEST SESSION SUMMARY\n")
	fmt.Fprintf(&b, "%s\n\n", bannerLine)
	fmt.Fprintf(&b, "Test Directory: %s\n", sessionName)
	fmt.Fprintf(&b, "Files Organized: %s\n", o.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Total Files Moved: %d\n\n", result.MovedCount())

	fmt.Fprintf(&b, "Session Directory Structure:\n")
	for _, rule := range o.rules {
		fmt.Fprintf(&b, "  %s/ - %s from %s/\n",
			rule.Category, strings.Join(rule.Patterns, ", "), rule.SourceDir)
	}
	b.WriteString("\n")

	for _, rule := range o.rules {
		fmt.Fprintf(&b, "%s:\n", categoryHeading(rule.Category))

		names, err := listCategoryFiles(filepath.Join(o.sessionDir, rule.Category))
		if err != nil {
			fmt.Fprintf(&b, "  (unreadable: %v)\n\n", err)
			continue
		}
		if len(names) == 0 {
			fmt.Fprintf(&b, "  (none)\n")
		}
		for _, name := range names {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s\n", bannerLine)
	fmt.Fprintf(&b, "Test files organized successfully\n")
	fmt.Fprintf(&b, "%s\n", bannerLine)

	return os.WriteFile(filepath.Join(o.sessionDir, SummaryName), []byte(b.String()), 0o644)
}

// listCategoryFiles returns the file names in a category directory in
// name order.
func listCategoryFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// categoryHeading turns a category directory name into a summary heading:
// "oscilloscope_data" -> "Oscilloscope Data".
func categoryHeading(category string) string {
	words := strings.Split(category, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
