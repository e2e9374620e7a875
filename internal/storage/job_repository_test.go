package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestRepo(t *testing.T) *JobRepository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewJobRepository(db)
}

func record(id string) *JobRecord {
	return &JobRecord{
		ID:        id,
		Filename:  "talk.mp3",
		Model:     "large-v3",
		Device:    "cuda",
		Precision: "float16",
		Language:  "en",
	}
}

func TestRecordAndGet(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Record(ctx, record("job-1")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := repo.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("record not found")
	}
	if got.Status != "queued" {
		t.Errorf("status = %q, want queued", got.Status)
	}
	if got.Filename != "talk.mp3" || got.Model != "large-v3" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Error("fresh record should have no start/completion stamps")
	}
}

func TestGetMissing(t *testing.T) {
	repo := openTestRepo(t)

	got, err := repo.GetByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

func TestStatusTransitions(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Record(ctx, record("job-1")); err != nil {
		t.Fatal(err)
	}

	if err := repo.MarkRunning(ctx, "job-1"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	got, _ := repo.GetByID(ctx, "job-1")
	if got.Status != "running" || got.StartedAt == nil {
		t.Errorf("after MarkRunning: %+v", got)
	}

	if err := repo.MarkError(ctx, "job-1", "ffmpeg conversion failed"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	got, _ = repo.GetByID(ctx, "job-1")
	if got.Status != "error" || got.Error != "ffmpeg conversion failed" || got.CompletedAt == nil {
		t.Errorf("after MarkError: %+v", got)
	}
}

func TestListAndCount(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Record(ctx, record(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.MarkRunning(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkDone(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	recent, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 3 {
		t.Errorf("ListRecent returned %d records, want 3", len(recent))
	}

	queued, err := repo.ListByStatus(ctx, "queued", 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(queued) != 2 {
		t.Errorf("ListByStatus(queued) returned %d, want 2", len(queued))
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	byStatus := make(map[string]int64)
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	if byStatus["queued"] != 2 || byStatus["done"] != 1 {
		t.Errorf("counts = %v", byStatus)
	}
}
