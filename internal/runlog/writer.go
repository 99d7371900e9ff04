package runlog

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
)

// Writer appends events to a JSONL stream with best-effort
// durability. Write never fails upward: persistence errors are
// logged, counted, and reported through Failures.
type Writer struct {
	mu       sync.Mutex
	f        *os.File
	buf      *bufio.Writer
	seq      int
	failures int
}

// NewWriter opens (or creates) the event stream for appending. The
// starting seq continues after any events already in the file.
func NewWriter(path string, startSeq int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &TrackerError{Op: "open event stream", Cause: err}
	}
	return &Writer{f: f, buf: bufio.NewWriter(f), seq: startSeq}, nil
}

// Write assigns the next seq, appends the event, and flushes.
// Returns the assigned seq, or -1 when persistence failed.
func (w *Writer) Write(ev Event) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	ev.Seq = w.seq

	line, err := json.Marshal(ev)
	if err != nil {
		w.failures++
		slog.Warn("runlog: marshal event failed", "phase", ev.Phase, "error", err)
		return -1
	}
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		w.failures++
		slog.Warn("runlog: append event failed", "phase", ev.Phase, "error", err)
		return -1
	}
	if err := w.buf.Flush(); err != nil {
		w.failures++
		slog.Warn("runlog: flush failed", "error", err)
		return -1
	}
	// fsync is best-effort; losing the tail on power loss is
	// acceptable, blocking the loop is not.
	_ = w.f.Sync()
	return ev.Seq
}

// Seq returns the last assigned sequence number.
func (w *Writer) Seq() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Failures returns the count of events that could not be persisted.
func (w *Writer) Failures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures
}

// Close flushes and closes the stream.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return &TrackerError{Op: "flush event stream", Cause: err}
	}
	if err := w.f.Close(); err != nil {
		return &TrackerError{Op: "close event stream", Cause: err}
	}
	return nil
}

// ReadEvents loads all events from a JSONL stream in order.
// Unparseable lines are skipped; a torn final line must not make a
// run unreadable.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &TrackerError{Op: "open event stream", Cause: err}
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			slog.Warn("runlog: skipping unparseable event line", "error", err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, &TrackerError{Op: "scan event stream", Cause: err}
	}
	return events, nil
}
