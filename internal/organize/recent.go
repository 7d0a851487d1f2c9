package organize

import (
	"os"
	"sort"
)

// ListRecentSessions returns up to limit session directory names under
// root, newest first. Session ids start with a UTC timestamp, so reverse
// name order is newest-first without touching mtimes.
func ListRecentSessions(root string, limit int) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}
