package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/domain/statistic"
	"github.com/bschneidr/srvyr/internal/estimate"
)

// assembleContext carries the per-call knobs the variance blocks need.
type assembleContext struct {
	levels []float64
	df     float64
}

// assemble turns a fitted result into the final rectangular table: one block
// of columns per requested variance type, concatenated in request order.
// Blocks never overlap, so concatenation is plain appending. The fitted
// object is trusted to match the request; a shape mismatch here is a
// dispatcher bug, not a recoverable condition.
func assemble(fit estimate.Fitted, types []statistic.VarType, ctx assembleContext) (*frame.Table, error) {
	labels := fit.Labels()
	out := frame.NewTable()

	addVectors := func(suffix string, values [][]float64) error {
		for j, label := range labels {
			if err := out.AddColumn(frame.NewNumeric(label+suffix, values[j])); err != nil {
				return err
			}
		}
		return nil
	}

	for _, t := range types {
		var err error
		switch t {
		case statistic.TypeGroups:
			gc, ok := fit.(estimate.GroupColumns)
			if !ok {
				return nil, fmt.Errorf("grouping columns requested from an ungrouped result")
			}
			for _, col := range gc.GroupColumns() {
				if err := out.AddColumn(col); err != nil {
					return nil, err
				}
			}
		case statistic.TypeCoef:
			err = addVectors("", fit.Coefficients())
		case statistic.TypeSE:
			err = addVectors("_se", fit.StandardErrors())
		case statistic.TypeCI:
			for _, level := range ctx.levels {
				low, upp := fit.ConfidenceInterval(level, ctx.df)
				lowSuf, uppSuf := ciSuffixes(level, len(ctx.levels) > 1)
				for j, label := range labels {
					if err := out.AddColumn(frame.NewNumeric(label+lowSuf, low[j])); err != nil {
						return nil, err
					}
					if err := out.AddColumn(frame.NewNumeric(label+uppSuf, upp[j])); err != nil {
						return nil, err
					}
				}
			}
		case statistic.TypeCIProp:
			pb, ok := fit.(estimate.ProportionBounds)
			if !ok {
				return nil, fmt.Errorf("ci_l/ci_u bounds requested from an estimator without them")
			}
			low, upp := pb.PropBounds()
			if low == nil {
				return nil, fmt.Errorf("ci_l/ci_u bounds requested from an estimator without them")
			}
			for j, label := range labels {
				if err := out.AddColumn(frame.NewNumeric(label+"_low", low[j])); err != nil {
					return nil, err
				}
				if err := out.AddColumn(frame.NewNumeric(label+"_upp", upp[j])); err != nil {
					return nil, err
				}
			}
		case statistic.TypeVar:
			err = addVectors("_var", fit.Variances())
		case statistic.TypeCV:
			err = addVectors("_cv", fit.CVs())
		case statistic.TypeDeff:
			deff, ok := fit.DesignEffects()
			if !ok {
				return nil, fmt.Errorf("design effect requested from an estimator without one")
			}
			err = addVectors("_deff", deff)
		case statistic.TypeNone:
			// stripped by Request.Normalize; nothing to emit
		default:
			return nil, fmt.Errorf("unhandled variance type %q", t)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// assembleByLevel handles the zero-remaining-groups factor path: the fitted
// result has one label per category level, and those labels become rows. The
// peeled variable's name prefix is stripped from each label and restored as
// an ordered factor.
func assembleByLevel(fit estimate.Fitted, types []statistic.VarType, ctx assembleContext, peel string, peelLevels []string) (*frame.Table, error) {
	labels := fit.Labels()
	out := frame.NewTable()

	flatten := func(values [][]float64) []float64 {
		flat := make([]float64, len(labels))
		for j := range labels {
			flat[j] = values[j][0]
		}
		return flat
	}

	for _, t := range types {
		switch t {
		case statistic.TypeLevels:
			index := make(map[string]int, len(peelLevels))
			for i, l := range peelLevels {
				index[l] = i
			}
			codes := make([]int, len(labels))
			for j, label := range labels {
				code, ok := index[strings.TrimPrefix(label, peel)]
				if !ok {
					return nil, fmt.Errorf("label %q does not match a level of %q", label, peel)
				}
				codes[j] = code
			}
			if err := out.AddColumn(frame.NewFactorFromCodes(peel, codes, peelLevels)); err != nil {
				return nil, err
			}
		case statistic.TypeCoef:
			if err := out.AddColumn(frame.NewNumeric("coef", flatten(fit.Coefficients()))); err != nil {
				return nil, err
			}
		case statistic.TypeSE:
			if err := out.AddColumn(frame.NewNumeric("coef_se", flatten(fit.StandardErrors()))); err != nil {
				return nil, err
			}
		case statistic.TypeCI:
			low, upp := fit.ConfidenceInterval(ctx.levels[0], ctx.df)
			if err := out.AddColumn(frame.NewNumeric("coef_low", flatten(low))); err != nil {
				return nil, err
			}
			if err := out.AddColumn(frame.NewNumeric("coef_upp", flatten(upp))); err != nil {
				return nil, err
			}
		case statistic.TypeVar:
			if err := out.AddColumn(frame.NewNumeric("coef_var", flatten(fit.Variances()))); err != nil {
				return nil, err
			}
		case statistic.TypeCV:
			if err := out.AddColumn(frame.NewNumeric("coef_cv", flatten(fit.CVs()))); err != nil {
				return nil, err
			}
		case statistic.TypeDeff:
			deff, ok := fit.DesignEffects()
			if !ok {
				return nil, fmt.Errorf("design effect requested from an estimator without one")
			}
			if err := out.AddColumn(frame.NewNumeric("coef_deff", flatten(deff))); err != nil {
				return nil, err
			}
		default:
			return nil, core.NewInvalidArgumentError(fmt.Sprintf("variance type %q is not supported on the level-wise path", t))
		}
	}
	return out, nil
}

// ciSuffixes names the two interval columns. A single requested level keeps
// the plain suffixes; multiple levels embed the level as a percentage so the
// pairs stay distinguishable.
func ciSuffixes(level float64, multi bool) (low, upp string) {
	if !multi {
		return "_low", "_upp"
	}
	tag := strconv.FormatFloat(level*100, 'f', -1, 64)
	return "_low" + tag, "_upp" + tag
}
