package runlog

import (
	"fmt"
	"os"
	"path/filepath"
)

// RunDir is the on-disk layout of one run:
// <outputs>/runs/<run-id>/{reports,runlog,snapshots,debug}.
type RunDir struct {
	Root      string
	Reports   string
	Runlog    string
	Snapshots string
	Debug     string
}

// EventsPath returns the JSONL event stream path.
func (d RunDir) EventsPath() string { return filepath.Join(d.Runlog, "events.jsonl") }

// IndexPath returns the derived index path.
func (d RunDir) IndexPath() string { return filepath.Join(d.Runlog, "index.json") }

// SnapshotPath returns the snapshot file path for an iteration.
func (d RunDir) SnapshotPath(iteration int) string {
	return filepath.Join(d.Snapshots, fmt.Sprintf("iter_%d.json", iteration))
}

// ReportPath returns the final artifact path.
func (d RunDir) ReportPath() string { return filepath.Join(d.Reports, "final_report.md") }

// EnsureRunDir creates the run directory tree.
func EnsureRunDir(outputs, runID string) (RunDir, error) {
	root := filepath.Join(outputs, "runs", runID)
	d := RunDir{
		Root:      root,
		Reports:   filepath.Join(root, "reports"),
		Runlog:    filepath.Join(root, "runlog"),
		Snapshots: filepath.Join(root, "snapshots"),
		Debug:     filepath.Join(root, "debug"),
	}
	for _, dir := range []string{d.Reports, d.Runlog, d.Snapshots, d.Debug} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return RunDir{}, fmt.Errorf("create run dir: %w", err)
		}
	}
	return d, nil
}

// OpenRunDir returns the layout of an existing run without creating
// anything.
func OpenRunDir(outputs, runID string) (RunDir, error) {
	root := filepath.Join(outputs, "runs", runID)
	if _, err := os.Stat(root); err != nil {
		return RunDir{}, fmt.Errorf("run %s not found under %s: %w", runID, outputs, err)
	}
	return RunDir{
		Root:      root,
		Reports:   filepath.Join(root, "reports"),
		Runlog:    filepath.Join(root, "runlog"),
		Snapshots: filepath.Join(root, "snapshots"),
		Debug:     filepath.Join(root, "debug"),
	}, nil
}
