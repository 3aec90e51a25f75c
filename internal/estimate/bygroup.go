package estimate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/design"
	"github.com/bschneidr/srvyr/domain/frame"
)

// Grouped is the by-group result: one row per observed group combination,
// carrying the grouping columns alongside the per-group fits. It satisfies
// Fitted so the result assembler treats grouped and ungrouped results alike.
type Grouped struct {
	labels    []string
	groupCols []*frame.Column
	fits      []Fitted
}

func (g *Grouped) Labels() []string { return g.labels }
func (g *Grouped) Rows() int        { return len(g.fits) }

// GroupColumns returns one value per group row for each grouping variable.
func (g *Grouped) GroupColumns() []*frame.Column { return g.groupCols }

func (g *Grouped) Coefficients() [][]float64 {
	return g.gather(func(f Fitted) [][]float64 { return f.Coefficients() })
}

func (g *Grouped) StandardErrors() [][]float64 {
	return g.gather(func(f Fitted) [][]float64 { return f.StandardErrors() })
}

func (g *Grouped) ConfidenceInterval(level, df float64) (low, upp [][]float64) {
	low = g.gather(func(f Fitted) [][]float64 {
		l, _ := f.ConfidenceInterval(level, df)
		return l
	})
	upp = g.gather(func(f Fitted) [][]float64 {
		_, u := f.ConfidenceInterval(level, df)
		return u
	})
	return low, upp
}

func (g *Grouped) Variances() [][]float64 {
	return g.gather(func(f Fitted) [][]float64 { return f.Variances() })
}

func (g *Grouped) CVs() [][]float64 {
	return g.gather(func(f Fitted) [][]float64 { return f.CVs() })
}

func (g *Grouped) DesignEffects() ([][]float64, bool) {
	for _, f := range g.fits {
		if _, ok := f.DesignEffects(); !ok {
			return nil, false
		}
	}
	return g.gather(func(f Fitted) [][]float64 {
		d, _ := f.DesignEffects()
		return d
	}), true
}

// PropBounds gathers fixed ci_l/ci_u bounds from the per-group fits. All of
// them carry such bounds whenever the dispatcher routed this result through
// a proportion-style estimator.
func (g *Grouped) PropBounds() (low, upp [][]float64) {
	for _, f := range g.fits {
		if _, ok := f.(ProportionBounds); !ok {
			return nil, nil
		}
	}
	low = g.gather(func(f Fitted) [][]float64 {
		l, _ := f.(ProportionBounds).PropBounds()
		return l
	})
	upp = g.gather(func(f Fitted) [][]float64 {
		_, u := f.(ProportionBounds).PropBounds()
		return u
	})
	return low, upp
}

// gather flattens per-group scalar vectors into [label][group] columns.
func (g *Grouped) gather(accessor func(Fitted) [][]float64) [][]float64 {
	out := make([][]float64, len(g.labels))
	for j := range g.labels {
		out[j] = make([]float64, len(g.fits))
	}
	for i, f := range g.fits {
		vals := accessor(f)
		for j := range g.labels {
			out[j][i] = vals[j][0]
		}
	}
	return out
}

// ByGroup partitions the design's estimation rows by the given grouping
// columns and runs fn on each subset. Group ordering follows factor level
// order where available and lexicographic order otherwise; estimator
// failures propagate unchanged.
func ByGroup(d *design.Design, groups []*frame.Column, fn func(sub *design.Design) (Fitted, error)) (*Grouped, error) {
	if len(groups) == 0 {
		return nil, core.NewInvalidArgumentError("by-group estimation requires at least one grouping column")
	}
	n := d.Rows()
	codes := make([][]int, len(groups))
	levels := make([][]string, len(groups))
	for j, col := range groups {
		if col.Len() != n {
			return nil, fmt.Errorf("%w: grouping column %q has %d rows, design has %d",
				core.ErrDesignShape, col.Name, col.Len(), n)
		}
		codes[j], levels[j] = encodeGroup(col)
	}

	type combo struct {
		key   string
		codes []int
		rows  []int
	}
	seen := make(map[string]*combo)
	var combos []*combo
	for i := 0; i < n; i++ {
		rowCodes := make([]int, len(groups))
		var key strings.Builder
		for j := range groups {
			rowCodes[j] = codes[j][i]
			fmt.Fprintf(&key, "%d\x1f", rowCodes[j])
		}
		c, ok := seen[key.String()]
		if !ok {
			c = &combo{key: key.String(), codes: rowCodes}
			seen[key.String()] = c
			combos = append(combos, c)
		}
		c.rows = append(c.rows, i)
	}
	sort.Slice(combos, func(a, b int) bool {
		for j := range groups {
			if combos[a].codes[j] != combos[b].codes[j] {
				return combos[a].codes[j] < combos[b].codes[j]
			}
		}
		return false
	})

	out := &Grouped{}
	for _, c := range combos {
		fit, err := fn(d.Subset(c.rows))
		if err != nil {
			return nil, err
		}
		out.fits = append(out.fits, fit)
	}
	out.labels = out.fits[0].Labels()

	for j, col := range groups {
		comboCodes := make([]int, len(combos))
		for i, c := range combos {
			comboCodes[i] = c.codes[j]
		}
		if col.Type == frame.Factor {
			out.groupCols = append(out.groupCols, frame.NewFactorFromCodes(col.Name, comboCodes, col.Levels))
		} else {
			values := make([]string, len(combos))
			for i, code := range comboCodes {
				values[i] = levels[j][code]
			}
			out.groupCols = append(out.groupCols, frame.NewText(col.Name, values))
		}
	}
	return out, nil
}

// encodeGroup maps a grouping column to integer codes plus the decoded value
// per code. Factors keep their declared level order; anything else is keyed
// by its string rendering in sorted order.
func encodeGroup(col *frame.Column) ([]int, []string) {
	if col.Type == frame.Factor {
		return col.Codes, col.Levels
	}
	values := col.AsStrings()
	distinct := make(map[string]bool)
	for _, v := range values {
		distinct[v] = true
	}
	ordered := make([]string, 0, len(distinct))
	for v := range distinct {
		ordered = append(ordered, v)
	}
	sort.Strings(ordered)
	index := make(map[string]int, len(ordered))
	for i, v := range ordered {
		index[v] = i
	}
	codes := make([]int, len(values))
	for i, v := range values {
		codes[i] = index[v]
	}
	return codes, ordered
}
