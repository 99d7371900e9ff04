package runlog

import (
	"encoding/json"
	"os"
	"sort"
	"time"
)

// IterationEntry summarizes one iteration's slice of the event
// stream.
type IterationEntry struct {
	Iteration int `json:"iteration"`
	StartSeq  int `json:"start_seq"`
	EndSeq    int `json:"end_seq"`
	Events    int `json:"events"`
	Errors    int `json:"errors"`
}

// ErrorEntry points at an error event.
type ErrorEntry struct {
	Seq       int    `json:"seq"`
	Iteration int    `json:"iteration"`
	Phase     string `json:"phase"`
	Summary   string `json:"summary,omitempty"`
}

// SnapshotEntry points at a checkpoint file.
type SnapshotEntry struct {
	Iteration int    `json:"iteration"`
	Path      string `json:"path"`
}

// Index is the derived per-run summary, rebuilt from the event
// stream at finalize.
type Index struct {
	RunID       string           `json:"run_id"`
	Status      string           `json:"status"`
	Iterations  []IterationEntry `json:"iterations"`
	Errors      []ErrorEntry     `json:"errors,omitempty"`
	Snapshots   []SnapshotEntry  `json:"snapshots,omitempty"`
	EventCount  int              `json:"event_count"`
	ErrorCount  int              `json:"error_count"`
	Degraded    []string         `json:"degraded,omitempty"`
	FinalizedAt time.Time        `json:"finalized_at"`
}

// BuildIndex derives the index from an ordered event stream.
func BuildIndex(runID, status string, events []Event, snapshots []SnapshotEntry, degraded []string) Index {
	idx := Index{
		RunID:       runID,
		Status:      status,
		Snapshots:   snapshots,
		Degraded:    degraded,
		EventCount:  len(events),
		FinalizedAt: time.Now().UTC(),
	}

	byIteration := make(map[int]*IterationEntry)
	for _, ev := range events {
		entry, ok := byIteration[ev.Iteration]
		if !ok {
			entry = &IterationEntry{Iteration: ev.Iteration, StartSeq: ev.Seq, EndSeq: ev.Seq}
			byIteration[ev.Iteration] = entry
		}
		if ev.Seq < entry.StartSeq {
			entry.StartSeq = ev.Seq
		}
		if ev.Seq > entry.EndSeq {
			entry.EndSeq = ev.Seq
		}
		entry.Events++
		if ev.Status == StatusError {
			entry.Errors++
			idx.ErrorCount++
			idx.Errors = append(idx.Errors, ErrorEntry{
				Seq:       ev.Seq,
				Iteration: ev.Iteration,
				Phase:     ev.Phase,
				Summary:   ev.Summary,
			})
		}
	}

	for _, entry := range byIteration {
		idx.Iterations = append(idx.Iterations, *entry)
	}
	sort.Slice(idx.Iterations, func(i, j int) bool {
		return idx.Iterations[i].Iteration < idx.Iterations[j].Iteration
	})
	return idx
}

// WriteIndex persists the index as pretty-printed JSON.
func WriteIndex(path string, idx Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return &TrackerError{Op: "marshal index", Cause: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &TrackerError{Op: "write index", Cause: err}
	}
	return nil
}

// ReadIndex loads a previously written index.
func ReadIndex(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Index{}, &TrackerError{Op: "read index", Cause: err}
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, &TrackerError{Op: "parse index", Cause: err}
	}
	return idx, nil
}
