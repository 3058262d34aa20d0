package store

import (
	"context"
	"log/slog"
	"time"
)

// AdvisoryKind names a non-fatal condition raised by a store operation.
type AdvisoryKind string

const (
	// SyncDegraded means the remote call failed and the change was applied
	// locally only.
	SyncDegraded AdvisoryKind = "sync_degraded"
	// GoalNotFound means the operation referenced an id the store does not hold.
	GoalNotFound AdvisoryKind = "goal_not_found"
)

type Advisory struct {
	Kind   AdvisoryKind
	Op     OpKind
	GoalID string
	Err    error
	At     time.Time
}

// Notifier receives advisories. Implementations must not block for long:
// Notify runs on the caller's goroutine after the mutation is committed.
type Notifier interface {
	Notify(ctx context.Context, a Advisory)
}

type NotifierFunc func(ctx context.Context, a Advisory)

func (f NotifierFunc) Notify(ctx context.Context, a Advisory) { f(ctx, a) }

// Notifiers fans an advisory out to every member in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, a Advisory) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, a)
		}
	}
}

// LogNotifier writes advisories as warnings.
func LogNotifier(logger *slog.Logger) Notifier {
	return NotifierFunc(func(ctx context.Context, a Advisory) {
		args := []any{"kind", string(a.Kind), "operation", string(a.Op), "goal_id", a.GoalID}
		if a.Err != nil {
			args = append(args, "error", a.Err)
		}
		logger.WarnContext(ctx, "Goal store advisory", args...)
	})
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Advisory) {}
