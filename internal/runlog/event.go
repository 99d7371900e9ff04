// Package runlog implements the tracker: an append-only JSONL event
// stream per run, per-iteration context snapshots, the derived run
// index, and the final artifact. Tracker failures degrade the run's
// observability, never its execution.
package runlog

import (
	"fmt"
	"time"
)

// Phases of one loop iteration, in execution order.
const (
	PhaseBuild      = "build"
	PhaseRoute      = "route"
	PhaseExecute    = "execute"
	PhaseHandle     = "handle"
	PhaseWriteBack  = "write_back"
	PhaseSnapshot   = "snapshot"
	PhaseTransition = "transition"
	PhaseConfig     = "config"
	PhaseDegraded   = "degraded"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Event is one structured record per phase transition. Seq is
// assigned by the writer and totals-orders events within a run.
type Event struct {
	Seq       int                    `json:"seq"`
	RunID     string                 `json:"run_id"`
	Iteration int                    `json:"iteration"`
	Phase     string                 `json:"phase"`
	Status    string                 `json:"status"`
	Summary   string                 `json:"summary,omitempty"`
	TS        time.Time              `json:"ts"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// TrackerError reports a tracker persistence failure. It is recorded
// and surfaced at run completion, never thrown mid-loop.
type TrackerError struct {
	Op    string
	Cause error
}

func (e *TrackerError) Error() string {
	return fmt.Sprintf("tracker %s: %v", e.Op, e.Cause)
}

func (e *TrackerError) Unwrap() error { return e.Cause }
