package statistic

import (
	"time"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/frame"
)

// RunResult is one assembled output table with the name it was requested
// under.
type RunResult struct {
	Name  string       `json:"name"`
	Table *frame.Table `json:"table"`
}

// Run records one estimation run: the batch of statistic requests computed
// against a single design, with their assembled outputs.
type Run struct {
	ID        core.RunID  `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Groups    []string    `json:"groups,omitempty"`
	Results   []RunResult `json:"results"`
}
