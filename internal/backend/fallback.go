package backend

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"goalplanner/internal/core"
	"goalplanner/internal/remote/memory"
)

// SnapshotLoader returns the last server-confirmed collection.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context) ([]core.Goal, error)
}

// Fallback picks the collection Store.Load substitutes when the remote fetch
// fails: the SQLite snapshot if it holds goals, else the seed file. It returns
// nil when neither is available.
func Fallback(ctx context.Context, snapshots SnapshotLoader, seedFile string, logger *slog.Logger) []core.Goal {
	if logger == nil {
		logger = slog.Default()
	}

	if snapshots != nil {
		goals, err := snapshots.LoadSnapshot(ctx)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "Failed to read goal snapshot", "error", err)
		case len(goals) > 0:
			logger.DebugContext(ctx, "Using goal snapshot as load fallback", "count", len(goals))
			return goals
		}
	}

	if seedFile == "" {
		return nil
	}
	goals, err := memory.ReadSeed(seedFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnContext(ctx, "Failed to read seed file", "path", seedFile, "error", err)
		}
		return nil
	}
	if goals == nil {
		goals = []core.Goal{}
	}
	logger.DebugContext(ctx, "Using seed file as load fallback", "path", seedFile, "count", len(goals))
	return goals
}
