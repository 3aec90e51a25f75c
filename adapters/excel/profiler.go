package excel

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/ports"
)

// Profile summarizes the numeric columns of a loaded table. Boolean columns
// profile as 0/1; discrete columns are skipped.
func (r *DataReader) Profile(table *frame.Table) ([]ports.ColumnProfile, error) {
	var profiles []ports.ColumnProfile
	for _, name := range table.Names() {
		col, _ := table.Column(name)
		if col.IsDiscrete() {
			continue
		}
		values, err := col.AsFloats()
		if err != nil {
			return nil, err
		}

		observed := make([]float64, 0, len(values))
		missing := 0
		for _, v := range values {
			if math.IsNaN(v) {
				missing++
				continue
			}
			observed = append(observed, v)
		}
		p := ports.ColumnProfile{Name: name, Count: len(observed), Missing: missing}
		if len(observed) > 0 {
			if p.Mean, err = stats.Mean(observed); err != nil {
				return nil, fmt.Errorf("profiling %q: %w", name, err)
			}
			if p.StdDev, err = stats.StandardDeviation(observed); err != nil {
				return nil, fmt.Errorf("profiling %q: %w", name, err)
			}
			if p.Min, err = stats.Min(observed); err != nil {
				return nil, fmt.Errorf("profiling %q: %w", name, err)
			}
			if p.Median, err = stats.Median(observed); err != nil {
				return nil, fmt.Errorf("profiling %q: %w", name, err)
			}
			if p.Max, err = stats.Max(observed); err != nil {
				return nil, fmt.Errorf("profiling %q: %w", name, err)
			}
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
