package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/statistic"
	apperrors "github.com/bschneidr/srvyr/internal/errors"
	"github.com/bschneidr/srvyr/ports"
)

// MemoryRunStore is an in-memory RunStore for tests and demo deployments
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[core.RunID]*statistic.Run
}

// NewMemoryRunStore creates an empty in-memory run store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[core.RunID]*statistic.Run)}
}

// SaveRun stores the run; an existing ID is rejected
func (s *MemoryRunStore) SaveRun(ctx context.Context, run *statistic.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return apperrors.InvalidInput(fmt.Sprintf("run %s already exists", run.ID))
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun retrieves a stored run by ID
func (s *MemoryRunStore) GetRun(ctx context.Context, id core.RunID) (*statistic.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("run %s", id))
	}
	return run, nil
}

// ListRuns returns stored runs, newest first
func (s *MemoryRunStore) ListRuns(ctx context.Context, limit, offset int) ([]ports.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*statistic.Run, 0, len(s.runs))
	for _, run := range s.runs {
		all = append(all, run)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if limit <= 0 {
		limit = 50
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}

	summaries := make([]ports.RunSummary, len(all))
	for i, run := range all {
		summaries[i] = ports.RunSummary{
			ID:          run.ID,
			CreatedAt:   run.CreatedAt.Format(time.RFC3339),
			Groups:      run.Groups,
			ResultCount: len(run.Results),
		}
	}
	return summaries, nil
}

// DeleteRun removes a stored run
func (s *MemoryRunStore) DeleteRun(ctx context.Context, id core.RunID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return apperrors.NotFound(fmt.Sprintf("run %s", id))
	}
	delete(s.runs, id)
	return nil
}
