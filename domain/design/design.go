// Package design models the weighted-sample description a statistic is
// computed against: a variables table plus weights and either
// stratum/cluster metadata or replicate weights, optionally nested as a
// two-phase subsample. A design is read-mostly shared state; the only
// supported "mutation" is WithColumn, which returns a prepared copy so the
// caller-visible design is never touched.
package design

import (
	"fmt"
	"math"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/frame"
)

// Kind tags the design variant the dispatcher branches on.
type Kind int

const (
	Simple Kind = iota
	Replicate
	TwoPhase
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case Simple:
		return "simple"
	case Replicate:
		return "replicate"
	case TwoPhase:
		return "twophase"
	}
	return "unknown"
}

// Spec names the columns of the variables table that carry the sampling
// structure. Empty fields mean the structure is absent (equal weights,
// single stratum, element sampling).
type Spec struct {
	Weights       string
	Strata        string
	IDs           string
	RepWeightCols []string
	RepScale      float64
	DF            float64
}

// Design is an immutable weighted-sample description.
type Design struct {
	kind       Kind
	vars       *frame.Table
	weights    []float64
	strata     []string
	clusters   []string
	repWeights [][]float64
	repScale   float64
	dfOverride float64

	// two-phase only: phase1 carries the full first-phase sample, keep the
	// phase-1 row indices retained in phase 2, with combined weights above.
	phase1 *Design
	keep   []int
}

// View is the flattened estimation-ready form of a design: one weight per
// estimated row, with whatever variance structure the design carries. For
// two-phase designs the view covers only the phase-2 rows.
type View struct {
	Vars       *frame.Table
	Weights    []float64
	Strata     []string
	Clusters   []string
	RepWeights [][]float64
	RepScale   float64
}

// New builds a design from a variables table and a structure spec.
func New(vars *frame.Table, spec Spec) (*Design, error) {
	if vars == nil || vars.NumRows() == 0 {
		return nil, fmt.Errorf("%w: empty variables table", core.ErrDesignShape)
	}
	n := vars.NumRows()

	d := &Design{kind: Simple, vars: vars, dfOverride: spec.DF, repScale: spec.RepScale}

	if spec.Weights != "" {
		col, ok := vars.Column(spec.Weights)
		if !ok {
			return nil, fmt.Errorf("%w: weight column %q", core.ErrMissingVariable, spec.Weights)
		}
		w, err := col.AsFloats()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrDesignShape, err)
		}
		for _, v := range w {
			if v <= 0 || math.IsNaN(v) {
				return nil, fmt.Errorf("%w: weights must be positive", core.ErrDesignShape)
			}
		}
		d.weights = w
	} else {
		d.weights = make([]float64, n)
		for i := range d.weights {
			d.weights[i] = 1
		}
	}

	if spec.Strata != "" {
		col, ok := vars.Column(spec.Strata)
		if !ok {
			return nil, fmt.Errorf("%w: strata column %q", core.ErrMissingVariable, spec.Strata)
		}
		d.strata = col.AsStrings()
	}
	if spec.IDs != "" {
		col, ok := vars.Column(spec.IDs)
		if !ok {
			return nil, fmt.Errorf("%w: cluster column %q", core.ErrMissingVariable, spec.IDs)
		}
		d.clusters = col.AsStrings()
	}

	if len(spec.RepWeightCols) > 0 {
		d.kind = Replicate
		if d.repScale == 0 {
			// JKn-style default when the caller gives none
			d.repScale = float64(len(spec.RepWeightCols)-1) / float64(len(spec.RepWeightCols))
		}
		for _, name := range spec.RepWeightCols {
			col, ok := vars.Column(name)
			if !ok {
				return nil, fmt.Errorf("%w: replicate weight column %q", core.ErrMissingVariable, name)
			}
			rw, err := col.AsFloats()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", core.ErrDesignShape, err)
			}
			d.repWeights = append(d.repWeights, rw)
		}
	}

	return d, nil
}

// NewTwoPhase nests a phase-2 subsample inside a fully specified phase-1
// design. keep flags the phase-1 rows retained in phase 2 and probs gives
// each retained row's phase-2 selection probability, aligned with phase-1
// rows (ignored where keep is false).
func NewTwoPhase(phase1 *Design, keep []bool, probs []float64) (*Design, error) {
	if phase1 == nil {
		return nil, fmt.Errorf("%w: nil phase-1 design", core.ErrDesignShape)
	}
	if phase1.kind == TwoPhase {
		return nil, fmt.Errorf("%w: phase-1 design is already two-phase", core.ErrDesignShape)
	}
	n := phase1.vars.NumRows()
	if len(keep) != n || len(probs) != n {
		return nil, fmt.Errorf("%w: keep/probs length %d/%d, phase-1 rows %d", core.ErrDesignShape, len(keep), len(probs), n)
	}

	d := &Design{kind: TwoPhase, phase1: phase1, dfOverride: phase1.dfOverride}
	for i, k := range keep {
		if !k {
			continue
		}
		if probs[i] <= 0 || probs[i] > 1 {
			return nil, fmt.Errorf("%w: phase-2 probability %g at row %d", core.ErrDesignShape, probs[i], i)
		}
		d.keep = append(d.keep, i)
		d.weights = append(d.weights, phase1.weights[i]/probs[i])
	}
	if len(d.keep) == 0 {
		return nil, fmt.Errorf("%w: empty phase-2 sample", core.ErrDesignShape)
	}
	return d, nil
}

// Kind returns the design variant.
func (d *Design) Kind() Kind { return d.kind }

// Variables returns the table a working column must be attached to: the
// phase-1 sample's table for two-phase designs, the design's own otherwise.
func (d *Design) Variables() *frame.Table {
	if d.kind == TwoPhase {
		return d.phase1.vars
	}
	return d.vars
}

// Rows returns the number of estimated rows (phase-2 size for two-phase).
func (d *Design) Rows() int {
	if d.kind == TwoPhase {
		return len(d.keep)
	}
	return d.vars.NumRows()
}

// DFOverride returns the caller-supplied degrees of freedom, or 0 when the
// default derivation applies.
func (d *Design) DFOverride() float64 { return d.dfOverride }

// WithColumn returns a prepared copy of the design carrying one extra
// working column. The copy shares all row data with the original; for
// two-phase designs the column lands in the nested phase-1 table, which is
// where the estimators look for it. The receiver is never modified.
func (d *Design) WithColumn(c *frame.Column) (*Design, error) {
	if d.kind == TwoPhase {
		inner, err := d.phase1.WithColumn(c)
		if err != nil {
			return nil, err
		}
		copied := *d
		copied.phase1 = inner
		return &copied, nil
	}
	if c.Len() != d.vars.NumRows() {
		return nil, fmt.Errorf("%w: working column %q has %d rows, design has %d",
			core.ErrDesignShape, c.Name, c.Len(), d.vars.NumRows())
	}
	vars := d.vars.ShallowCopy()
	if _, exists := vars.Column(c.Name); exists {
		// Working columns may shadow the column they were derived from.
		if err := vars.ReplaceColumn(c); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrDesignShape, err)
		}
	} else if err := vars.AddColumn(c); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDesignShape, err)
	}
	copied := *d
	copied.vars = vars
	return &copied, nil
}

// EstimationView flattens the design for the estimators. Two-phase designs
// collapse to their phase-2 rows with combined weights and the phase-1
// stratum/cluster labels of those rows.
func (d *Design) EstimationView() *View {
	if d.kind != TwoPhase {
		return &View{
			Vars:       d.vars,
			Weights:    d.weights,
			Strata:     d.strata,
			Clusters:   d.clusters,
			RepWeights: d.repWeights,
			RepScale:   d.repScale,
		}
	}
	v := &View{
		Vars:     d.phase1.vars.Subset(d.keep),
		Weights:  d.weights,
		RepScale: d.phase1.repScale,
	}
	if d.phase1.strata != nil {
		v.Strata = subsetStrings(d.phase1.strata, d.keep)
	}
	if d.phase1.clusters != nil {
		v.Clusters = subsetStrings(d.phase1.clusters, d.keep)
	}
	for _, rw := range d.phase1.repWeights {
		v.RepWeights = append(v.RepWeights, subsetFloats(rw, d.keep))
	}
	return v
}

// Subset returns a new design covering the given estimation-view rows. The
// result is always a flat design: group-wise estimation does not need the
// two-phase nesting once weights are combined.
func (d *Design) Subset(rows []int) *Design {
	v := d.EstimationView()
	out := &Design{
		kind:       Simple,
		vars:       v.Vars.Subset(rows),
		weights:    subsetFloats(v.Weights, rows),
		repScale:   v.RepScale,
		dfOverride: d.dfOverride,
	}
	if v.Strata != nil {
		out.strata = subsetStrings(v.Strata, rows)
	}
	if v.Clusters != nil {
		out.clusters = subsetStrings(v.Clusters, rows)
	}
	for _, rw := range v.RepWeights {
		out.repWeights = append(out.repWeights, subsetFloats(rw, rows))
	}
	if out.repWeights != nil {
		out.kind = Replicate
	}
	return out
}

// ResidualDF returns the design's residual degrees of freedom: replicate
// count minus one for replicate designs, otherwise distinct PSUs minus
// distinct strata over the estimation view.
func (d *Design) ResidualDF() float64 {
	v := d.EstimationView()
	if len(v.RepWeights) > 0 {
		return float64(len(v.RepWeights) - 1)
	}
	n := len(v.Weights)

	strata := make(map[string]struct{})
	psus := make(map[string]struct{})
	for i := 0; i < n; i++ {
		s := ""
		if v.Strata != nil {
			s = v.Strata[i]
		}
		strata[s] = struct{}{}
		c := fmt.Sprintf("row-%d", i)
		if v.Clusters != nil {
			c = v.Clusters[i]
		}
		psus[s+"\x1f"+c] = struct{}{}
	}
	return float64(len(psus) - len(strata))
}

func subsetFloats(values []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}

func subsetStrings(values []string, rows []int) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}
