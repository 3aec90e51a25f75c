// Package app wires the estimation engine to storage and transport. Services
// here own orchestration concerns (batching, naming, persistence); all
// statistical semantics live in internal/engine and internal/estimate.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/design"
	"github.com/bschneidr/srvyr/domain/statistic"
	"github.com/bschneidr/srvyr/internal"
	"github.com/bschneidr/srvyr/internal/engine"
	"github.com/bschneidr/srvyr/ports"
)

// NamedStatistic pairs a request with the name its result table carries
type NamedStatistic struct {
	Name    string
	Request statistic.Request
}

// BatchRequest asks for several statistics over one grouping of one design
type BatchRequest struct {
	Groups     []string
	Statistics []NamedStatistic
}

// EstimationService runs statistic batches and persists the results
type EstimationService struct {
	engine *engine.Engine
	store  ports.RunStore
	log    *internal.Logger
}

// NewEstimationService creates an estimation service. A nil store disables
// persistence; results are still returned.
func NewEstimationService(eng *engine.Engine, store ports.RunStore, log *internal.Logger) *EstimationService {
	if log == nil {
		log = internal.NewDefaultLogger()
	}
	return &EstimationService{engine: eng, store: store, log: log}
}

// Run computes every statistic in the batch, concurrently, preserving the
// request order in the result. One failing statistic fails the whole run.
func (s *EstimationService) Run(ctx context.Context, d *design.Design, req BatchRequest) (*statistic.Run, error) {
	if len(req.Statistics) == 0 {
		return nil, core.NewInvalidArgumentError("batch contains no statistics")
	}

	run := &statistic.Run{
		ID:        core.NewRunID(),
		CreatedAt: time.Now().UTC(),
		Groups:    req.Groups,
		Results:   make([]statistic.RunResult, len(req.Statistics)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, ns := range req.Statistics {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			table, err := s.engine.Compute(d, req.Groups, ns.Request)
			if err != nil {
				return fmt.Errorf("statistic %q: %w", s.resultName(ns), err)
			}
			run.Results[i] = statistic.RunResult{Name: s.resultName(ns), Table: table}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, run); err != nil {
			return nil, err
		}
		s.log.Info("persisted run %s with %d results", run.ID, len(run.Results))
	}
	return run, nil
}

// GetRun loads a persisted run
func (s *EstimationService) GetRun(ctx context.Context, id core.RunID) (*statistic.Run, error) {
	if s.store == nil {
		return nil, core.ErrRunNotFound
	}
	return s.store.GetRun(ctx, id)
}

// ListRuns lists persisted runs, newest first
func (s *EstimationService) ListRuns(ctx context.Context, limit, offset int) ([]ports.RunSummary, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListRuns(ctx, limit, offset)
}

func (s *EstimationService) resultName(ns NamedStatistic) string {
	if ns.Name != "" {
		return ns.Name
	}
	if ns.Request.Variable == "" {
		return ns.Request.Kind.String()
	}
	return ns.Request.Variable + "_" + ns.Request.Kind.String()
}
