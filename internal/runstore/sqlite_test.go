package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := Record{
		ID:        GenNewID(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Status:    "running",
		Task:      "summarize URL X",
	}
	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.GetRun(ctx, rec.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != "running" || got.Task != "summarize URL X" {
		t.Errorf("got = %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestGetRunMissing(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("missing run reported as found")
	}
}

func TestUpdateStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := GenNewID()
	if err := s.SaveRun(ctx, Record{ID: id, CreatedAt: time.Now(), Status: "running"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, id, "succeeded", 3, "/tmp/report.md"); err != nil {
		t.Fatal(err)
	}

	got, _, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "succeeded" || got.Iterations != 3 || got.ArtifactPath != "/tmp/report.md" {
		t.Errorf("got = %+v", got)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		err := s.SaveRun(ctx, Record{
			ID:        GenNewID(),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    "succeeded",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d", len(runs))
	}
	if !runs[0].CreatedAt.After(runs[1].CreatedAt) {
		t.Error("runs not ordered newest first")
	}
}
