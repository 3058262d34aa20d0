package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type SyncQueue struct {
	ID            int64
	Operation     string
	GoalID        string
	Payload       string
	Status        string
	Attempts      int64
	LastError     sql.NullString
	NextAttemptAt int64
	CreatedAt     int64
	UpdatedAt     int64
}

type GetSyncQueueStatsRow struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

type SnapshotRow struct {
	Position int64
	ID       string
	Payload  string
}

const enqueueSync = `
INSERT INTO sync_queue (operation, goal_id, payload, status, attempts, next_attempt_at, created_at, updated_at)
VALUES (?, ?, ?, 'pending', 0, ?, ?, ?)
`

type EnqueueSyncParams struct {
	Operation string
	GoalID    string
	Payload   string
	Now       int64
}

func (q *Queries) EnqueueSync(ctx context.Context, arg EnqueueSyncParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, enqueueSync, arg.Operation, arg.GoalID, arg.Payload, arg.Now, arg.Now, arg.Now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const hasPendingCreate = `
SELECT COUNT(*) FROM sync_queue
WHERE goal_id = ? AND operation = 'create' AND status IN ('pending', 'failed')
`

func (q *Queries) HasPendingCreate(ctx context.Context, goalID string) (bool, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, hasPendingCreate, goalID).Scan(&n)
	return n > 0, err
}

const discardGoalSyncs = `
UPDATE sync_queue SET status = 'completed', last_error = 'discarded: goal deleted before sync', updated_at = ?
WHERE goal_id = ? AND status IN ('pending', 'failed')
`

func (q *Queries) DiscardGoalSyncs(ctx context.Context, goalID string, now int64) error {
	_, err := q.db.ExecContext(ctx, discardGoalSyncs, now, goalID)
	return err
}

const pendingGoalIDs = `
SELECT goal_id FROM sync_queue
WHERE status IN ('pending', 'processing')
GROUP BY goal_id
ORDER BY MIN(id)
`

func (q *Queries) PendingGoalIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, pendingGoalIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Entries queued behind an unfinished entry for the same goal wait for it.
const dequeueSyncBatch = `
SELECT q.id, q.operation, q.goal_id, q.payload, q.status, q.attempts, q.last_error, q.next_attempt_at, q.created_at, q.updated_at
FROM sync_queue q
WHERE q.status = 'pending' AND q.next_attempt_at <= ?
  AND NOT EXISTS (
    SELECT 1 FROM sync_queue p
    WHERE p.goal_id = q.goal_id AND p.id < q.id AND p.status IN ('pending', 'processing')
  )
ORDER BY q.id
LIMIT ?
`

func (q *Queries) DequeueSyncBatch(ctx context.Context, now, limit int64) ([]SyncQueue, error) {
	rows, err := q.db.QueryContext(ctx, dequeueSyncBatch, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SyncQueue
	for rows.Next() {
		var i SyncQueue
		if err := rows.Scan(
			&i.ID,
			&i.Operation,
			&i.GoalID,
			&i.Payload,
			&i.Status,
			&i.Attempts,
			&i.LastError,
			&i.NextAttemptAt,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markSyncProcessing = `
UPDATE sync_queue SET status = 'processing', updated_at = ? WHERE id = ?
`

func (q *Queries) MarkSyncProcessing(ctx context.Context, id, now int64) error {
	_, err := q.db.ExecContext(ctx, markSyncProcessing, now, id)
	return err
}

const markSyncComplete = `
UPDATE sync_queue SET status = 'completed', last_error = NULL, updated_at = ? WHERE id = ?
`

func (q *Queries) MarkSyncComplete(ctx context.Context, id, now int64) error {
	_, err := q.db.ExecContext(ctx, markSyncComplete, now, id)
	return err
}

const markSyncFailed = `
UPDATE sync_queue SET status = 'failed', attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?
`

func (q *Queries) MarkSyncFailed(ctx context.Context, id int64, lastError string, now int64) error {
	_, err := q.db.ExecContext(ctx, markSyncFailed, lastError, now, id)
	return err
}

const incrementSyncAttempt = `
UPDATE sync_queue
SET status = 'pending', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
WHERE id = ?
`

func (q *Queries) IncrementSyncAttempt(ctx context.Context, id int64, lastError string, nextAttemptAt, now int64) error {
	_, err := q.db.ExecContext(ctx, incrementSyncAttempt, lastError, nextAttemptAt, now, id)
	return err
}

const remapGoalID = `
UPDATE sync_queue SET goal_id = ?, updated_at = ? WHERE goal_id = ? AND status != 'completed'
`

func (q *Queries) RemapGoalID(ctx context.Context, newID, oldID string, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, remapGoalID, newID, now, oldID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resetStaleProcessing = `
UPDATE sync_queue SET status = 'pending', updated_at = ? WHERE status = 'processing'
`

func (q *Queries) ResetStaleProcessing(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetStaleProcessing, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const cleanupCompletedSyncs = `
DELETE FROM sync_queue WHERE status = 'completed' AND updated_at < ?
`

func (q *Queries) CleanupCompletedSyncs(ctx context.Context, before int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, cleanupCompletedSyncs, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const retryFailedSyncs = `
UPDATE sync_queue SET status = 'pending', attempts = 0, next_attempt_at = ?, updated_at = ? WHERE status = 'failed'
`

func (q *Queries) RetryFailedSyncs(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, retryFailedSyncs, now, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getSyncQueueStats = `
SELECT
    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM sync_queue
`

func (q *Queries) GetSyncQueueStats(ctx context.Context) (GetSyncQueueStatsRow, error) {
	var i GetSyncQueueStatsRow
	err := q.db.QueryRowContext(ctx, getSyncQueueStats).Scan(
		&i.Pending,
		&i.Processing,
		&i.Completed,
		&i.Failed,
	)
	return i, err
}

const clearSnapshot = `DELETE FROM goal_snapshot`

func (q *Queries) ClearSnapshot(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, clearSnapshot)
	return err
}

const insertSnapshotRow = `
INSERT INTO goal_snapshot (position, id, payload, saved_at) VALUES (?, ?, ?, ?)
`

func (q *Queries) InsertSnapshotRow(ctx context.Context, arg SnapshotRow, savedAt int64) error {
	_, err := q.db.ExecContext(ctx, insertSnapshotRow, arg.Position, arg.ID, arg.Payload, savedAt)
	return err
}

const listSnapshot = `
SELECT position, id, payload FROM goal_snapshot ORDER BY position
`

func (q *Queries) ListSnapshot(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SnapshotRow
	for rows.Next() {
		var i SnapshotRow
		if err := rows.Scan(&i.Position, &i.ID, &i.Payload); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
