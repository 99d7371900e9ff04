package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore is the managed-mode run index.
type PGStore struct {
	db *sql.DB
}

// NewPGStore connects to Postgres and ensures the runs table.
func NewPGStore(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PGStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("postgres run store connected", "dsn_len", len(dsn))
	return s, nil
}

func (s *PGStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		parent_run_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		iterations INTEGER NOT NULL DEFAULT 0,
		task TEXT NOT NULL DEFAULT '',
		artifact_path TEXT NOT NULL DEFAULT ''
	)`)
	return err
}

func (s *PGStore) SaveRun(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, parent_run_id, created_at, status, iterations, task, artifact_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   iterations = EXCLUDED.iterations,
		   artifact_path = EXCLUDED.artifact_path`,
		rec.ID, rec.ParentRunID, rec.CreatedAt, rec.Status, rec.Iterations, rec.Task, rec.ArtifactPath)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id, status string, iterations int, artifactPath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = $1, iterations = $2, artifact_path = $3 WHERE id = $4`,
		status, iterations, artifactPath, id)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	return nil
}

func (s *PGStore) GetRun(ctx context.Context, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent_run_id, created_at, status, iterations, task, artifact_path FROM runs WHERE id = $1`, id)
	var rec Record
	err := row.Scan(&rec.ID, &rec.ParentRunID, &rec.CreatedAt, &rec.Status, &rec.Iterations, &rec.Task, &rec.ArtifactPath)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, true, nil
}

func (s *PGStore) ListRuns(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_run_id, created_at, status, iterations, task, artifact_path
		 FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ParentRunID, &rec.CreatedAt, &rec.Status, &rec.Iterations, &rec.Task, &rec.ArtifactPath); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) Close() error { return s.db.Close() }
