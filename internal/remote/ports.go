// Package remote defines the port to the goal persistence service and the
// error taxonomy its adapters report.
package remote

import (
	"context"

	"goalplanner/internal/core"
)

// Client is the outbound port to the persistence service.
// Every method makes a single attempt; callers own retries.
type (
	Client interface {
		Lister
		Creator
		Patcher
		Replacer
		Deleter
	}

	Lister interface {
		FetchAll(ctx context.Context) ([]core.Goal, error)
	}

	Creator interface {
		// Create stores the draft and returns the record with its server id.
		Create(ctx context.Context, d core.Draft) (core.Goal, error)
	}

	Patcher interface {
		Patch(ctx context.Context, id string, p core.Patch) (core.Goal, error)
	}

	Replacer interface {
		Replace(ctx context.Context, id string, g core.Goal) (core.Goal, error)
	}

	Deleter interface {
		Delete(ctx context.Context, id string) error
	}
)
