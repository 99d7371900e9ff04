package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the standalone-mode run index.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the run index database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("run store opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			parent_run_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			iterations INTEGER NOT NULL DEFAULT 0,
			task TEXT NOT NULL DEFAULT '',
			artifact_path TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, parent_run_id, created_at, status, iterations, task, artifact_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ParentRunID, rec.CreatedAt.Unix(), rec.Status, rec.Iterations, rec.Task, rec.ArtifactPath)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, status string, iterations int, artifactPath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, iterations = ?, artifact_path = ? WHERE id = ?`,
		status, iterations, artifactPath, id)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent_run_id, created_at, status, iterations, task, artifact_path FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_run_id, created_at, status, iterations, task, artifact_path
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (Record, error) {
	var rec Record
	var createdAt int64
	err := row.Scan(&rec.ID, &rec.ParentRunID, &createdAt, &rec.Status, &rec.Iterations, &rec.Task, &rec.ArtifactPath)
	if err != nil {
		return Record{}, err
	}
	rec.CreatedAt = timeFromUnix(createdAt)
	return rec, nil
}
