// Package runstore persists the run index: one row per run for
// listing, status queries, and resume lookup. Standalone mode uses
// SQLite; managed mode uses Postgres.
package runstore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one run's index row.
type Record struct {
	ID           string    `json:"id"`
	ParentRunID  string    `json:"parent_run_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Status       string    `json:"status"`
	Iterations   int       `json:"iterations"`
	Task         string    `json:"task,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
}

// Store is the run index contract.
type Store interface {
	SaveRun(ctx context.Context, rec Record) error
	UpdateStatus(ctx context.Context, id, status string, iterations int, artifactPath string) error
	GetRun(ctx context.Context, id string) (Record, bool, error)
	ListRuns(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// GenNewID generates a new UUID v7 (time-ordered) run identifier.
func GenNewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func timeFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// Open picks the backend: a Postgres DSN selects managed mode,
// otherwise the SQLite file at dbPath is used.
func Open(postgresDSN, dbPath string) (Store, error) {
	if postgresDSN != "" {
		return NewPGStore(postgresDSN)
	}
	return NewSQLiteStore(dbPath)
}
