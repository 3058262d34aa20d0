package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"goalplanner/internal/core"
	"goalplanner/internal/store"

	_ "modernc.org/sqlite"
)

var (
	_ store.Journal       = (*SQLiteRepository)(nil)
	_ store.SnapshotSaver = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Record implements store.Journal. A delete of a goal whose create never
// reached the remote service cancels everything queued for it instead.
func (r *SQLiteRepository) Record(ctx context.Context, e store.Entry) error {
	if !e.Op.IsValid() {
		return fmt.Errorf("record sync entry: unsupported operation %q", e.Op)
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode sync entry: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)
	now := r.now().UnixMilli()

	if e.Op == store.OpDelete {
		unsynced, err := q.HasPendingCreate(ctx, e.GoalID)
		if err != nil {
			return fmt.Errorf("check pending create: %w", err)
		}
		if unsynced {
			if err := q.DiscardGoalSyncs(ctx, e.GoalID, now); err != nil {
				return fmt.Errorf("discard goal syncs: %w", err)
			}
			slog.InfoContext(ctx, "Discarded unsynced goal mutations", "goal_id", e.GoalID)
			return tx.Commit()
		}
	}

	id, err := q.EnqueueSync(ctx, EnqueueSyncParams{
		Operation: string(e.Op),
		GoalID:    e.GoalID,
		Payload:   string(payload),
		Now:       now,
	})
	if err != nil {
		return fmt.Errorf("enqueue sync: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync entry: %w", err)
	}

	slog.InfoContext(ctx, "Queued goal mutation for sync",
		"queue_id", id,
		"operation", string(e.Op),
		"goal_id", e.GoalID)
	return nil
}

// Discard implements store.Journal. Entries already being replayed are left
// alone.
func (r *SQLiteRepository) Discard(ctx context.Context, goalID string) error {
	if err := r.queries.DiscardGoalSyncs(ctx, goalID, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("discard goal syncs: %w", err)
	}
	return nil
}

// PendingGoalIDs implements store.Journal, in queue order.
func (r *SQLiteRepository) PendingGoalIDs(ctx context.Context) ([]string, error) {
	ids, err := r.queries.PendingGoalIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending goal ids: %w", err)
	}
	return ids, nil
}

// Entry decodes the journaled mutation. GoalID comes from the row, which
// RemapGoalID may have rewritten.
func (i SyncQueue) Entry() (store.Entry, error) {
	var e store.Entry
	if err := json.Unmarshal([]byte(i.Payload), &e); err != nil {
		return store.Entry{}, fmt.Errorf("decode sync entry %d: %w", i.ID, err)
	}
	e.Op = store.OpKind(i.Operation)
	e.GoalID = i.GoalID
	return e, nil
}

// DequeueSyncBatch returns up to limit entries that are due now.
func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncQueue, error) {
	items, err := r.queries.DequeueSyncBatch(ctx, r.now().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) MarkSyncProcessing(ctx context.Context, id int64) error {
	if err := r.queries.MarkSyncProcessing(ctx, id, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("mark sync processing: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncComplete(ctx context.Context, id int64) error {
	if err := r.queries.MarkSyncComplete(ctx, id, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("mark sync complete: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, lastError string) error {
	if err := r.queries.MarkSyncFailed(ctx, id, lastError, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("mark sync failed: %w", err)
	}
	slog.WarnContext(ctx, "Sync entry marked as failed", "queue_id", id)
	return nil
}

// IncrementSyncAttempt puts the entry back in the queue, due at next.
func (r *SQLiteRepository) IncrementSyncAttempt(ctx context.Context, id int64, lastError string, next time.Time) error {
	if err := r.queries.IncrementSyncAttempt(ctx, id, lastError, next.UnixMilli(), r.now().UnixMilli()); err != nil {
		return fmt.Errorf("increment sync attempt: %w", err)
	}
	return nil
}

// RemapGoalID points unfinished entries for oldID at newID.
func (r *SQLiteRepository) RemapGoalID(ctx context.Context, oldID, newID string) error {
	n, err := r.queries.RemapGoalID(ctx, newID, oldID, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("remap goal id: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Remapped queued goal mutations", "old_id", oldID, "new_id", newID, "count", n)
	}
	return nil
}

// ResetStaleProcessing requeues entries left in processing by a crash.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	n, err := r.queries.ResetStaleProcessing(ctx, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale sync entries", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) CleanupCompletedSyncs(ctx context.Context, before time.Time) error {
	n, err := r.queries.CleanupCompletedSyncs(ctx, before.UnixMilli())
	if err != nil {
		return fmt.Errorf("cleanup completed syncs: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed sync entries", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) (int64, error) {
	n, err := r.queries.RetryFailedSyncs(ctx, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("retry failed syncs: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) GetSyncQueueStats(ctx context.Context) (*GetSyncQueueStatsRow, error) {
	stats, err := r.queries.GetSyncQueueStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get sync queue stats: %w", err)
	}
	return &stats, nil
}

// SaveSnapshot implements store.SnapshotSaver. The previous snapshot is
// replaced atomically.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, goals []core.Goal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	if err := q.ClearSnapshot(ctx); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	now := r.now().UnixMilli()
	for i, g := range goals {
		b, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("encode goal %s: %w", g.ID, err)
		}
		if err := q.InsertSnapshotRow(ctx, SnapshotRow{Position: int64(i), ID: g.ID, Payload: string(b)}, now); err != nil {
			return fmt.Errorf("insert snapshot row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	slog.DebugContext(ctx, "Goal snapshot saved", "count", len(goals))
	return nil
}

// LoadSnapshot returns the last saved collection; empty when none was saved.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) ([]core.Goal, error) {
	rows, err := r.queries.ListSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshot: %w", err)
	}
	goals := make([]core.Goal, 0, len(rows))
	for _, row := range rows {
		var g core.Goal
		if err := json.Unmarshal([]byte(row.Payload), &g); err != nil {
			return nil, fmt.Errorf("decode snapshot goal %s: %w", row.ID, err)
		}
		goals = append(goals, g)
	}
	return goals, nil
}
