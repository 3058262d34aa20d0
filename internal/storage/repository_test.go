package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"goalplanner/internal/core"
	"goalplanner/internal/store"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, *time.Time) {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "goals.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	return repo, &now
}

func sample(id string) core.Goal {
	return core.Goal{
		ID:           id,
		Name:         "Goal " + id,
		Category:     "Travel",
		TargetAmount: core.MoneyFromInt(1000),
		SavedAmount:  core.MustParseMoney("12.34"),
		Deadline:     core.NewDate(2026, 1, 1),
		CreatedAt:    core.NewDate(2025, 1, 1),
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	empty, err := repo.LoadSnapshot(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty snapshot, got %v %v", empty, err)
	}

	if err := repo.SaveSnapshot(ctx, []core.Goal{sample("b"), sample("a")}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.SaveSnapshot(ctx, []core.Goal{sample("c"), sample("b"), sample("a")}); err != nil {
		t.Fatalf("save again: %v", err)
	}
	goals, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(goals) != 3 || goals[0].ID != "c" || goals[2].ID != "a" {
		t.Fatalf("order not preserved: %+v", goals)
	}
	if !goals[1].SavedAmount.Equal(core.MustParseMoney("12.34")) || goals[1].Deadline != core.NewDate(2026, 1, 1) {
		t.Fatalf("fields not preserved: %+v", goals[1])
	}
}

func TestRecordAndDequeue(t *testing.T) {
	repo, now := newTestRepo(t)
	ctx := context.Background()

	saved := core.MoneyFromInt(50)
	entries := []store.Entry{
		{Op: store.OpCreate, GoalID: "local-1", Goal: sample("local-1")},
		{Op: store.OpDeposit, GoalID: "local-1", Patch: core.Patch{SavedAmount: &saved}},
		{Op: store.OpUpdate, GoalID: "7", Goal: sample("7")},
	}
	for _, e := range entries {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("record %s: %v", e.Op, err)
		}
	}

	batch, err := repo.DequeueSyncBatch(ctx, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(batch) != 2 || batch[0].Operation != "create" || batch[1].GoalID != "7" {
		t.Fatalf("the deposit must wait for the create: %+v", batch)
	}

	e, err := batch[0].Entry()
	if err != nil || e.Goal.Name != "Goal local-1" {
		t.Fatalf("decode entry: %+v %v", e, err)
	}

	// Create went through: remap and complete, the deposit becomes due.
	if err := repo.RemapGoalID(ctx, "local-1", "99"); err != nil {
		t.Fatalf("remap: %v", err)
	}
	if err := repo.MarkSyncComplete(ctx, batch[0].ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.IncrementSyncAttempt(ctx, batch[1].ID, "boom", now.Add(time.Minute)); err != nil {
		t.Fatalf("increment: %v", err)
	}

	batch, err = repo.DequeueSyncBatch(ctx, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(batch) != 1 || batch[0].Operation != "deposit" || batch[0].GoalID != "99" {
		t.Fatalf("expected remapped deposit only, got %+v", batch)
	}
	e, _ = batch[0].Entry()
	if e.GoalID != "99" || e.Patch.SavedAmount == nil || !e.Patch.SavedAmount.Equal(saved) {
		t.Fatalf("unexpected deposit entry %+v", e)
	}

	stats, err := repo.GetSyncQueueStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 2 || stats.Completed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDeleteDiscardsUnsyncedGoal(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_ = repo.Record(ctx, store.Entry{Op: store.OpCreate, GoalID: "local-1", Goal: sample("local-1")})
	_ = repo.Record(ctx, store.Entry{Op: store.OpPatch, GoalID: "local-1"})
	if err := repo.Record(ctx, store.Entry{Op: store.OpDelete, GoalID: "local-1"}); err != nil {
		t.Fatalf("record delete: %v", err)
	}

	batch, err := repo.DequeueSyncBatch(ctx, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("nothing should be left to replay, got %+v", batch)
	}
}

func TestDiscardAndPendingGoalIDs(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_ = repo.Record(ctx, store.Entry{Op: store.OpPatch, GoalID: "2"})
	_ = repo.Record(ctx, store.Entry{Op: store.OpCreate, GoalID: "local-1", Goal: sample("local-1")})
	_ = repo.Record(ctx, store.Entry{Op: store.OpDeposit, GoalID: "2"})

	ids, err := repo.PendingGoalIDs(ctx)
	if err != nil {
		t.Fatalf("pending ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != "2" || ids[1] != "local-1" {
		t.Fatalf("pending ids = %v, want [2 local-1]", ids)
	}

	if err := repo.Discard(ctx, "local-1"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	ids, _ = repo.PendingGoalIDs(ctx)
	if len(ids) != 1 || ids[0] != "2" {
		t.Fatalf("pending ids after discard = %v, want [2]", ids)
	}
	batch, _ := repo.DequeueSyncBatch(ctx, 10)
	if len(batch) != 1 || batch[0].GoalID != "2" {
		t.Fatalf("discarded create must not be replayed, got %+v", batch)
	}
}

func TestFailRetryCleanup(t *testing.T) {
	repo, now := newTestRepo(t)
	ctx := context.Background()

	_ = repo.Record(ctx, store.Entry{Op: store.OpDelete, GoalID: "1"})
	batch, _ := repo.DequeueSyncBatch(ctx, 10)
	if len(batch) != 1 {
		t.Fatalf("expected one entry, got %d", len(batch))
	}

	if err := repo.MarkSyncProcessing(ctx, batch[0].ID); err != nil {
		t.Fatalf("processing: %v", err)
	}
	if err := repo.ResetStaleProcessing(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := repo.MarkSyncFailed(ctx, batch[0].ID, "gave up"); err != nil {
		t.Fatalf("failed: %v", err)
	}
	if batch, _ := repo.DequeueSyncBatch(ctx, 10); len(batch) != 0 {
		t.Fatalf("failed entries are not dequeued")
	}

	n, err := repo.RetryFailedSyncs(ctx)
	if err != nil || n != 1 {
		t.Fatalf("retry: %d %v", n, err)
	}
	batch, _ = repo.DequeueSyncBatch(ctx, 10)
	if len(batch) != 1 || batch[0].Attempts != 0 {
		t.Fatalf("expected a fresh entry, got %+v", batch)
	}

	_ = repo.MarkSyncComplete(ctx, batch[0].ID)
	*now = now.Add(48 * time.Hour)
	if err := repo.CleanupCompletedSyncs(ctx, now.Add(-24*time.Hour)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	stats, _ := repo.GetSyncQueueStats(ctx)
	if stats.Completed != 0 {
		t.Fatalf("completed entry should be cleaned up: %+v", stats)
	}
}

func TestRecordRejectsUnknownOperation(t *testing.T) {
	repo, _ := newTestRepo(t)
	if err := repo.Record(context.Background(), store.Entry{Op: store.OpLoad}); err == nil {
		t.Fatal("expected error for load entry")
	}
}
