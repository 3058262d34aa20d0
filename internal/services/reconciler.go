package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"goalplanner/internal/core"
	"goalplanner/internal/remote"
	"goalplanner/internal/storage"
	"goalplanner/internal/store"
)

// ReconcilerConfig holds configuration for the reconciler
type ReconcilerConfig struct {
	// PollInterval is how often to check for due entries (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of entries replayed per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before an entry is marked failed (default: 5)
	MaxRetries int

	// BaseBackoff is the delay after the first failure; it doubles per attempt (default: 1s)
	BaseBackoff time.Duration

	// MaxBackoff caps the retry delay (default: 5m)
	MaxBackoff time.Duration

	// CleanupInterval is how often to clean up completed entries (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed entries must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		PollInterval:    30 * time.Second,
		BatchSize:       10,
		MaxRetries:      5,
		BaseBackoff:     time.Second,
		MaxBackoff:      5 * time.Minute,
		CleanupInterval: time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// Queue is the journal side the reconciler drains.
type Queue interface {
	DequeueSyncBatch(ctx context.Context, limit int64) ([]storage.SyncQueue, error)
	MarkSyncProcessing(ctx context.Context, id int64) error
	MarkSyncComplete(ctx context.Context, id int64) error
	MarkSyncFailed(ctx context.Context, id int64, lastError string) error
	IncrementSyncAttempt(ctx context.Context, id int64, lastError string, next time.Time) error
	RemapGoalID(ctx context.Context, oldID, newID string) error
	ResetStaleProcessing(ctx context.Context) error
	CleanupCompletedSyncs(ctx context.Context, before time.Time) error
	RetryFailedSyncs(ctx context.Context) (int64, error)
	GetSyncQueueStats(ctx context.Context) (*storage.GetSyncQueueStatsRow, error)
}

// Goals is the part of the store the reconciler reads and rekeys.
type Goals interface {
	Get(id string) (core.Goal, bool)
	Rekey(ctx context.Context, localID string, confirmed core.Goal) error
}

// Reconciler replays mutations that were applied locally while the remote
// service was unavailable.
type Reconciler struct {
	queue  Queue
	remote remote.Client
	goals  Goals
	config ReconcilerConfig
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconciler(queue Queue, rc remote.Client, goals Goals, config ReconcilerConfig) *Reconciler {
	def := DefaultReconcilerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = def.BaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.CleanupAge <= 0 {
		config.CleanupAge = def.CleanupAge
	}
	return &Reconciler{
		queue:  queue,
		remote: rc,
		goals:  goals,
		config: config,
		now:    time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	if err := r.queue.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing entries", "error", err)
	}

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Reconciler started",
		"poll_interval", r.config.PollInterval,
		"batch_size", r.config.BatchSize,
		"max_retries", r.config.MaxRetries)
	return nil
}

// Stop signals the loop and waits for the batch in flight to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Reconciler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	pollTicker := time.NewTicker(r.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(r.config.CleanupInterval)
	defer cleanupTicker.Stop()

	r.ProcessBatch(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			r.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			r.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch replays one batch of due entries and returns how many
// succeeded.
func (r *Reconciler) ProcessBatch(ctx context.Context) int {
	items, err := r.queue.DequeueSyncBatch(ctx, int64(r.config.BatchSize))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue sync batch", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Replaying sync batch", "count", len(items))

	done := 0
	for _, item := range items {
		select {
		case <-r.stopCh:
			return done
		case <-ctx.Done():
			return done
		default:
		}

		if err := r.queue.MarkSyncProcessing(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark entry as processing", "queue_id", item.ID, "error", err)
			continue
		}

		if err := r.replay(ctx, item); err != nil {
			r.handleFailure(ctx, item, err)
			continue
		}
		r.handleSuccess(ctx, item)
		done++
	}
	return done
}

var errUnknownOperation = errors.New("unknown operation")

func (r *Reconciler) replay(ctx context.Context, item storage.SyncQueue) error {
	e, err := item.Entry()
	if err != nil {
		return err
	}

	switch e.Op {
	case store.OpCreate:
		return r.replayCreate(ctx, e)
	case store.OpUpdate:
		g := e.Goal
		if current, ok := r.goals.Get(e.GoalID); ok {
			g = current
		}
		_, err := r.remote.Replace(ctx, e.GoalID, g)
		return err
	case store.OpPatch:
		// Only the fields the edit touched, at their current local values:
		// later direct writes to them must not be rolled back.
		p := e.Patch
		if current, ok := r.goals.Get(e.GoalID); ok {
			p = p.Rebase(current)
		}
		_, err := r.remote.Patch(ctx, e.GoalID, p)
		return err
	case store.OpDeposit:
		// Send the current local total so that deposits made while this
		// entry waited are not overwritten by an older value.
		p := e.Patch
		if current, ok := r.goals.Get(e.GoalID); ok {
			saved := current.SavedAmount
			p = core.Patch{SavedAmount: &saved}
		}
		_, err := r.remote.Patch(ctx, e.GoalID, p)
		return err
	case store.OpDelete:
		err := r.remote.Delete(ctx, e.GoalID)
		if remote.IsNotFound(err) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("%w: %s", errUnknownOperation, e.Op)
	}
}

func (r *Reconciler) replayCreate(ctx context.Context, e store.Entry) error {
	g := e.Goal
	current, held := r.goals.Get(e.GoalID)
	if held {
		g = current
	}
	confirmed, err := r.remote.Create(ctx, core.Draft{
		Name:         g.Name,
		Category:     g.Category,
		TargetAmount: g.TargetAmount,
		Deadline:     g.Deadline,
		CreatedAt:    g.CreatedAt,
	})
	if err != nil {
		return err
	}

	// Entries queued after the create still carry the local id.
	if err := r.queue.RemapGoalID(ctx, e.GoalID, confirmed.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to remap queued entries", "goal_id", e.GoalID, "error", err)
	}
	switch err := r.goals.Rekey(ctx, e.GoalID, confirmed); {
	case err == nil:
	case errors.Is(err, store.ErrGoalNotFound) && held:
		// Removed locally while the create was in flight.
		if derr := r.remote.Delete(ctx, confirmed.ID); derr != nil && !remote.IsNotFound(derr) {
			slog.ErrorContext(ctx, "Failed to delete goal removed during sync", "goal_id", confirmed.ID, "error", derr)
		}
		slog.InfoContext(ctx, "Deferred goal create undone", "local_id", e.GoalID, "goal_id", confirmed.ID)
		return nil
	case !errors.Is(err, store.ErrGoalNotFound):
		slog.ErrorContext(ctx, "Failed to rekey goal", "goal_id", e.GoalID, "error", err)
	}
	slog.InfoContext(ctx, "Deferred goal create synced", "local_id", e.GoalID, "goal_id", confirmed.ID)
	return nil
}

func (r *Reconciler) handleSuccess(ctx context.Context, item storage.SyncQueue) {
	if err := r.queue.MarkSyncComplete(ctx, item.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync complete", "queue_id", item.ID, "error", err)
		return
	}
	slog.InfoContext(ctx, "Replayed goal mutation",
		"queue_id", item.ID,
		"operation", item.Operation,
		"goal_id", item.GoalID)
}

// handleFailure schedules a retry with exponential backoff, or marks the
// entry failed once MaxRetries attempts were made. Entries that can never
// succeed fail immediately.
func (r *Reconciler) handleFailure(ctx context.Context, item storage.SyncQueue, processErr error) {
	attempt := item.Attempts + 1
	slog.WarnContext(ctx, "Replay failed",
		"queue_id", item.ID,
		"operation", item.Operation,
		"goal_id", item.GoalID,
		"attempt", attempt,
		"error", processErr)

	permanent := errors.Is(processErr, errUnknownOperation) || remote.IsNotFound(processErr)
	if permanent || attempt >= int64(r.config.MaxRetries) {
		if err := r.queue.MarkSyncFailed(ctx, item.ID, processErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark sync as failed", "queue_id", item.ID, "error", err)
		}
		slog.ErrorContext(ctx, "Goal mutation failed permanently",
			"queue_id", item.ID,
			"goal_id", item.GoalID,
			"attempts", attempt)
		return
	}

	next := r.now().Add(r.Backoff(attempt))
	if err := r.queue.IncrementSyncAttempt(ctx, item.ID, processErr.Error(), next); err != nil {
		slog.ErrorContext(ctx, "Failed to increment sync attempt", "queue_id", item.ID, "error", err)
	}
}

// Backoff returns the delay before retry number attempt (1-based):
// BaseBackoff * 2^(attempt-1), capped at MaxBackoff.
func (r *Reconciler) Backoff(attempt int64) time.Duration {
	d := r.config.BaseBackoff
	for i := int64(1); i < attempt; i++ {
		d *= 2
		if d >= r.config.MaxBackoff {
			return r.config.MaxBackoff
		}
	}
	if d > r.config.MaxBackoff {
		return r.config.MaxBackoff
	}
	return d
}

func (r *Reconciler) cleanupCompleted(ctx context.Context) {
	cutoff := r.now().Add(-r.config.CleanupAge)
	if err := r.queue.CleanupCompletedSyncs(ctx, cutoff); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed syncs", "error", err)
	}
}

// Stats returns current queue statistics
func (r *Reconciler) Stats(ctx context.Context) (*storage.GetSyncQueueStatsRow, error) {
	return r.queue.GetSyncQueueStats(ctx)
}

// RetryFailed resets all failed entries for another round of attempts.
func (r *Reconciler) RetryFailed(ctx context.Context) (int64, error) {
	return r.queue.RetryFailedSyncs(ctx)
}
