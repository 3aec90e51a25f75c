package engine

import (
	"fmt"

	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/domain/statistic"
)

// reshapeFactor pivots the grouped factor-expansion result from wide (one
// column block per category level of the peeled variable) to long (one row
// per group x level). Grouping columns are replicated once per level, the
// category level is recovered from the column labels and restored as a
// factor in the original level order, and each per-level column set
// collapses into a single "coef"-based column regardless of how many levels
// existed.
func reshapeFactor(wide *frame.Table, groupNames []string, peel string, levels []string, types []statistic.VarType) (*frame.Table, error) {
	g := wide.NumRows()
	k := len(levels)
	out := frame.NewTable()

	// group columns, row-replicated level-count times
	rep := make([]int, 0, g*k)
	for row := 0; row < g; row++ {
		for range levels {
			rep = append(rep, row)
		}
	}
	for _, name := range groupNames {
		col, ok := wide.Column(name)
		if !ok {
			return nil, fmt.Errorf("wide result is missing grouping column %q", name)
		}
		if err := out.AddColumn(col.Subset(rep)); err != nil {
			return nil, err
		}
	}

	// the peeled category, cycling through levels within each group
	codes := make([]int, g*k)
	for row := 0; row < g; row++ {
		for li := range levels {
			codes[row*k+li] = li
		}
	}
	if err := out.AddColumn(frame.NewFactorFromCodes(peel, codes, levels)); err != nil {
		return nil, err
	}

	stack := func(outName string, suffix string) error {
		values := make([]float64, g*k)
		for li, level := range levels {
			col, ok := wide.Column(peel + level + suffix)
			if !ok {
				return fmt.Errorf("wide result is missing column %q", peel+level+suffix)
			}
			for row := 0; row < g; row++ {
				values[row*k+li] = col.Floats[row]
			}
		}
		return out.AddColumn(frame.NewNumeric(outName, values))
	}

	for _, t := range types {
		var err error
		switch t {
		case statistic.TypeGroups:
			// already emitted above
		case statistic.TypeCoef:
			err = stack("coef", "")
		case statistic.TypeSE:
			err = stack("coef_se", "_se")
		case statistic.TypeCI:
			if err = stack("coef_low", "_low"); err != nil {
				return nil, err
			}
			err = stack("coef_upp", "_upp")
		case statistic.TypeVar:
			err = stack("coef_var", "_var")
		case statistic.TypeCV:
			err = stack("coef_cv", "_cv")
		case statistic.TypeDeff:
			err = stack("coef_deff", "_deff")
		default:
			return nil, fmt.Errorf("variance type %q is not supported on the factor path", t)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
