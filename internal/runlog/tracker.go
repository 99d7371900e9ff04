package runlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/runloop/internal/state"
)

// Tracker owns one run's on-disk artifacts: event stream, snapshots,
// debug payloads, index, and the final report. All operations are
// best-effort; failures are remembered as degradations and surfaced
// at completion instead of aborting the loop.
type Tracker struct {
	runID    string
	dir      RunDir
	writer   *Writer
	verbose  bool
	degraded []string
	snaps    []SnapshotEntry
}

// NewTracker creates the run directory tree and opens the event
// stream. startSeq continues a resumed run's event numbering.
func NewTracker(outputs, runID string, startSeq int, verbose bool) (*Tracker, error) {
	dir, err := EnsureRunDir(outputs, runID)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(dir.EventsPath(), startSeq)
	if err != nil {
		return nil, err
	}
	return &Tracker{runID: runID, dir: dir, writer: w, verbose: verbose}, nil
}

// Dir exposes the run directory layout.
func (t *Tracker) Dir() RunDir { return t.dir }

// Record appends one event, stamping run id and timestamp. Returns
// the assigned seq, or -1 when the event could not be persisted (the
// failure itself is remembered as a degradation).
func (t *Tracker) Record(ev Event) int {
	ev.RunID = t.runID
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	seq := t.writer.Write(ev)
	if seq == -1 {
		t.degrade(fmt.Sprintf("event %s/%s not persisted", ev.Phase, ev.Status))
	}
	return seq
}

// Checkpoint writes the context snapshot for an iteration. A failed
// checkpoint becomes a degraded event, never an error to the loop.
func (t *Tracker) Checkpoint(c *state.Context, iteration int) {
	data, err := c.Snapshot()
	if err == nil {
		err = os.WriteFile(t.dir.SnapshotPath(iteration), data, 0o644)
	}
	if err != nil {
		terr := &TrackerError{Op: fmt.Sprintf("checkpoint iteration %d", iteration), Cause: err}
		slog.Warn("checkpoint failed", "iteration", iteration, "error", err)
		t.degrade(terr.Error())
		t.Record(Event{
			Iteration: iteration,
			Phase:     PhaseDegraded,
			Status:    StatusError,
			Summary:   terr.Error(),
		})
		return
	}
	t.snaps = append(t.snaps, SnapshotEntry{Iteration: iteration, Path: t.dir.SnapshotPath(iteration)})
	t.Record(Event{
		Iteration: iteration,
		Phase:     PhaseSnapshot,
		Status:    StatusOK,
		Summary:   filepath.Base(t.dir.SnapshotPath(iteration)),
	})
}

// WriteArtifact writes the final report from the terminal context.
// Partial artifacts carry an annotation header.
func (t *Tracker) WriteArtifact(content string, partial bool) (string, error) {
	if partial {
		content = "> Partial result: the run ended before producing a final answer.\n\n" + content
	}
	path := t.dir.ReportPath()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		terr := &TrackerError{Op: "write artifact", Cause: err}
		t.degrade(terr.Error())
		return "", terr
	}
	return path, nil
}

// WriteDebug stores a raw payload under debug/. Only active in
// verbose mode.
func (t *Tracker) WriteDebug(name, payload string) {
	if !t.verbose {
		return
	}
	path := filepath.Join(t.dir.Debug, name)
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		slog.Warn("debug payload not written", "name", name, "error", err)
	}
}

// Degraded lists the persistence failures accumulated during the
// run.
func (t *Tracker) Degraded() []string {
	if t.writer.Failures() > 0 && len(t.degraded) == 0 {
		t.degrade(fmt.Sprintf("%d events not persisted", t.writer.Failures()))
	}
	out := make([]string, len(t.degraded))
	copy(out, t.degraded)
	return out
}

// Finalize rebuilds the index from the persisted event stream and
// closes the writer.
func (t *Tracker) Finalize(status string) error {
	events, err := ReadEvents(t.dir.EventsPath())
	if err != nil {
		slog.Warn("finalize: event stream partially readable", "error", err)
	}
	idx := BuildIndex(t.runID, status, events, t.snaps, t.Degraded())
	if err := WriteIndex(t.dir.IndexPath(), idx); err != nil {
		t.degrade(err.Error())
	}
	return t.writer.Close()
}

func (t *Tracker) degrade(msg string) {
	t.degraded = append(t.degraded, msg)
}
