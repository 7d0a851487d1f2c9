package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// SnapshotName is the metrics file written into the session directory when
// the session completes.
const SnapshotName = "metrics_snapshot.prom"

// SnapshotStats describes what a written snapshot contains.
type SnapshotStats struct {
	Families int
	Samples  int
}

// WriteSnapshot gathers all metrics from the gatherer and writes them to
// path in Prometheus text exposition format. The file records the final
// state of every counter and gauge alongside the session's other artifacts.
func WriteSnapshot(gatherer prometheus.Gatherer, path string) (SnapshotStats, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return SnapshotStats{}, fmt.Errorf("gather metrics: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return SnapshotStats{}, fmt.Errorf("create snapshot: %w", err)
	}

	enc := expfmt.NewEncoder(f, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			f.Close()
			return SnapshotStats{}, fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}

	if err := f.Close(); err != nil {
		return SnapshotStats{}, fmt.Errorf("close snapshot: %w", err)
	}
	return countSamples(families), nil
}

// WriteSessionSnapshot writes the snapshot into the session directory and
// returns the full path.
func WriteSessionSnapshot(gatherer prometheus.Gatherer, sessionDir string) (string, SnapshotStats, error) {
	path := filepath.Join(sessionDir, SnapshotName)
	stats, err := WriteSnapshot(gatherer, path)
	if err != nil {
		return "", SnapshotStats{}, err
	}
	return path, stats, nil
}

func countSamples(families []*dto.MetricFamily) SnapshotStats {
	stats := SnapshotStats{Families: len(families)}
	for _, mf := range families {
		stats.Samples += len(mf.GetMetric())
	}
	return stats
}
