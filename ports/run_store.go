package ports

import (
	"context"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/statistic"
)

// RunStore defines the interface for estimation run persistence
type RunStore interface {
	// SaveRun persists a completed run with all its result tables
	SaveRun(ctx context.Context, run *statistic.Run) error

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, id core.RunID) (*statistic.Run, error)

	// ListRuns returns recent runs, newest first
	ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, error)

	// DeleteRun removes a run and its results
	DeleteRun(ctx context.Context, id core.RunID) error
}

// RunSummary is the read model for run listings
type RunSummary struct {
	ID          core.RunID
	CreatedAt   string
	Groups      []string
	ResultCount int
}
