// Package engine is the statistic dispatch and result-assembly core. Given
// a design, a grouping and a statistic request, it picks exactly one
// computation path, drives the estimation primitives, and normalizes their
// heterogeneous output into one rectangular table.
package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/design"
	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/domain/statistic"
	"github.com/bschneidr/srvyr/internal"
	"github.com/bschneidr/srvyr/internal/estimate"
)

// Engine computes statistics against designs. It is stateless apart from the
// warning channel, and Compute never mutates its design (working columns live
// on prepared copies), so concurrent calls against one design are safe.
type Engine struct {
	log *internal.Logger
}

// New creates an engine reporting recoverable option conflicts through log.
func New(log *internal.Logger) *Engine {
	if log == nil {
		log = internal.NewDefaultLogger()
	}
	return &Engine{log: log}
}

// Compute runs one statistic request and returns the assembled table.
// Validation failures surface before any estimator call; estimator failures
// propagate unchanged.
func (e *Engine) Compute(d *design.Design, groups []string, req statistic.Request) (*frame.Table, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	view := d.EstimationView()
	for _, g := range groups {
		if _, ok := view.Vars.Column(g); !ok {
			return nil, fmt.Errorf("%w: grouping column %q", core.ErrMissingVariable, g)
		}
	}

	switch {
	case req.Kind == statistic.Quantile:
		return e.computeQuantile(d, groups, req)
	case req.Variable == "":
		return e.computeFactor(d, groups, req)
	case req.Proportion:
		return e.computeProportion(d, groups, req)
	default:
		return e.computeStandard(d, groups, req)
	}
}

// computeStandard covers the plain mean/total/ratio paths, grouped or not.
// This is the only path where multiple confidence levels are honored.
func (e *Engine) computeStandard(d *design.Design, groups []string, req statistic.Request) (*frame.Table, error) {
	d2, err := e.resolveMeasured(d, req.Variable)
	if err != nil {
		return nil, err
	}
	if req.Kind == statistic.Ratio {
		if d2, err = e.resolveMeasured(d2, req.Denominator); err != nil {
			return nil, err
		}
	}

	grouped := len(groups) > 0
	levels := req.Levels
	if grouped && len(levels) > 1 {
		levels = e.truncateLevels(levels, "grouped")
	}
	df := e.resolveDF(d, req, false)

	opt := estimate.Options{NADrop: req.NADrop, Deff: req.Deff || wantsDeff(req.VarTypes)}
	statFn := func(sub *design.Design) (estimate.Fitted, error) {
		switch req.Kind {
		case statistic.Total:
			return estimate.Total(sub, []string{req.Variable}, opt)
		case statistic.Ratio:
			return estimate.Ratio(sub, req.Variable, req.Denominator, opt)
		default:
			return estimate.Mean(sub, []string{req.Variable}, opt)
		}
	}

	var fit estimate.Fitted
	types := []statistic.VarType{statistic.TypeCoef}
	if grouped {
		gcols, err := e.groupColumns(d2, groups)
		if err != nil {
			return nil, err
		}
		if fit, err = estimate.ByGroup(d2, gcols, statFn); err != nil {
			return nil, err
		}
		types = append([]statistic.VarType{statistic.TypeGroups}, types...)
	} else if fit, err = statFn(d2); err != nil {
		return nil, err
	}
	types = append(types, req.VarTypes...)

	return assemble(fit, types, assembleContext{levels: levels, df: df})
}

// computeProportion routes proportion-mode means to the dedicated interval
// estimator, whose bounds live under ci_l/ci_u rather than the generic
// interval accessor, and which defines no design effect.
func (e *Engine) computeProportion(d *design.Design, groups []string, req statistic.Request) (*frame.Table, error) {
	d2, err := e.resolveMeasured(d, req.Variable)
	if err != nil {
		return nil, err
	}
	grouped := len(groups) > 0
	levels := req.Levels
	if len(levels) > 1 {
		levels = e.truncateLevels(levels, "proportion")
	}
	df := e.resolveDF(d, req, false)

	userTypes := make([]statistic.VarType, 0, len(req.VarTypes))
	for _, t := range req.VarTypes {
		switch t {
		case statistic.TypeDeff:
			e.log.Warn("design effect is not defined for the proportion interval estimator; dropping deff")
		case statistic.TypeCI:
			userTypes = append(userTypes, statistic.TypeCIProp)
		default:
			userTypes = append(userTypes, t)
		}
	}

	popt := estimate.PropOptions{Level: levels[0], Method: req.ProportionMethod, NADrop: req.NADrop, DF: df}
	propFn := func(sub *design.Design) (estimate.Fitted, error) {
		return estimate.ProportionCI(sub, req.Variable, popt)
	}

	var fit estimate.Fitted
	types := []statistic.VarType{statistic.TypeCoef}
	if grouped {
		gcols, err := e.groupColumns(d2, groups)
		if err != nil {
			return nil, err
		}
		if fit, err = estimate.ByGroup(d2, gcols, propFn); err != nil {
			return nil, err
		}
		types = append([]statistic.VarType{statistic.TypeGroups}, types...)
	} else if fit, err = propFn(d2); err != nil {
		return nil, err
	}
	types = append(types, userTypes...)

	return assemble(fit, types, assembleContext{levels: levels[:1], df: df})
}

// computeQuantile covers quantiles, grouped or not. Quantiles default to the
// normal approximation (infinite df), honor one confidence level, and on the
// grouped path remap the interval tag because the by-group quantile bounds
// come back under ci_l/ci_u.
func (e *Engine) computeQuantile(d *design.Design, groups []string, req statistic.Request) (*frame.Table, error) {
	if req.Variable == "" {
		return nil, core.NewInvalidArgumentError("quantile statistic requires a measured variable")
	}
	d2, err := e.resolveMeasured(d, req.Variable)
	if err != nil {
		return nil, err
	}
	grouped := len(groups) > 0
	levels := req.Levels
	if len(levels) > 1 {
		levels = e.truncateLevels(levels, "quantile")
	}
	df := e.resolveDF(d, req, true)

	alpha := tailAlpha(levels[0])

	qopt := estimate.QuantileOptions{
		Quantiles: req.Quantiles,
		Alpha:     alpha,
		Interval:  req.IntervalType,
		QRule:     req.QRule,
		DF:        df,
		NADrop:    req.NADrop,
	}
	quantFn := func(sub *design.Design) (estimate.Fitted, error) {
		return estimate.Quantile(sub, req.Variable, qopt)
	}

	var fit estimate.Fitted
	types := []statistic.VarType{statistic.TypeCoef}
	userTypes := req.VarTypes
	if grouped {
		remapped := make([]statistic.VarType, 0, len(userTypes))
		for _, t := range userTypes {
			if t == statistic.TypeCI {
				t = statistic.TypeCIProp
			}
			remapped = append(remapped, t)
		}
		userTypes = remapped

		gcols, err := e.groupColumns(d2, groups)
		if err != nil {
			return nil, err
		}
		if fit, err = estimate.ByGroup(d2, gcols, quantFn); err != nil {
			return nil, err
		}
		types = append([]statistic.VarType{statistic.TypeGroups}, types...)
	} else if fit, err = quantFn(d2); err != nil {
		return nil, err
	}
	types = append(types, userTypes...)

	return assemble(fit, types, assembleContext{levels: levels[:1], df: df})
}

// computeFactor covers the no-measured-variable case: the trailing grouping
// variable is expanded into one indicator column per category level, the
// remaining grouping variables (if any) do the actual grouping, and the wide
// per-level result is pivoted back to one row per level.
func (e *Engine) computeFactor(d *design.Design, groups []string, req statistic.Request) (*frame.Table, error) {
	if req.Kind != statistic.Mean && req.Kind != statistic.Total {
		return nil, core.NewInvalidArgumentError(
			fmt.Sprintf("factor expansion supports means and totals, not %s", req.Kind))
	}
	if len(groups) == 0 {
		return nil, core.NewInvalidArgumentError("no measured variable and no grouping to expand")
	}
	peel := groups[len(groups)-1]
	rest := groups[:len(groups)-1]

	peelCol, ok := d.Variables().Column(peel)
	if !ok {
		return nil, fmt.Errorf("%w: grouping column %q", core.ErrMissingVariable, peel)
	}
	levels, codes := e.factorize(peelCol)

	// attach one indicator column per level to a prepared copy
	d2 := d
	indicators := make([]string, len(levels))
	for k, level := range levels {
		values := make([]float64, len(codes))
		for i, c := range codes {
			if c == k {
				values[i] = 1
			}
		}
		indicators[k] = peel + level
		var err error
		if d2, err = d2.WithColumn(frame.NewNumeric(indicators[k], values)); err != nil {
			return nil, err
		}
	}

	levelsCfg := req.Levels
	if len(levelsCfg) > 1 {
		levelsCfg = e.truncateLevels(levelsCfg, "factor expansion")
	}
	df := e.resolveDF(d, req, false)
	opt := estimate.Options{NADrop: req.NADrop, Deff: req.Deff || wantsDeff(req.VarTypes)}
	statFn := func(sub *design.Design) (estimate.Fitted, error) {
		if req.Kind == statistic.Total {
			return estimate.Total(sub, indicators, opt)
		}
		return estimate.Mean(sub, indicators, opt)
	}
	ctx := assembleContext{levels: levelsCfg[:1], df: df}

	if len(rest) == 0 {
		fit, err := statFn(d2)
		if err != nil {
			return nil, err
		}
		types := append([]statistic.VarType{statistic.TypeLevels, statistic.TypeCoef}, req.VarTypes...)
		return assembleByLevel(fit, types, ctx, peel, levels)
	}

	gcols, err := e.groupColumns(d2, rest)
	if err != nil {
		return nil, err
	}
	fit, err := estimate.ByGroup(d2, gcols, statFn)
	if err != nil {
		return nil, err
	}
	types := append([]statistic.VarType{statistic.TypeGroups, statistic.TypeCoef}, req.VarTypes...)
	wide, err := assemble(fit, types, ctx)
	if err != nil {
		return nil, err
	}
	return reshapeFactor(wide, rest, peel, levels, types)
}

// resolveMeasured checks the measured column and returns a design ready for
// estimation: discrete columns are rejected (they belong in the grouping),
// booleans are shadowed by a 0/1 working column on a prepared copy.
func (e *Engine) resolveMeasured(d *design.Design, name string) (*design.Design, error) {
	col, ok := d.Variables().Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrMissingVariable, name)
	}
	if col.IsDiscrete() {
		return nil, fmt.Errorf("%w: %q is %s; group by it instead", core.ErrDiscreteMeasure, name, col.Type)
	}
	if col.Type == frame.Boolean {
		values, err := col.AsFloats()
		if err != nil {
			return nil, err
		}
		return d.WithColumn(frame.NewNumeric(name, values))
	}
	return d, nil
}

// groupColumns pulls the grouping columns out of the estimation view,
// coercing numeric and boolean ones to categories. The estimators key
// categories by text, so the coercion is unavoidable; it is reported as a
// warning because it changes the column's type in the output.
func (e *Engine) groupColumns(d *design.Design, groups []string) ([]*frame.Column, error) {
	view := d.EstimationView()
	out := make([]*frame.Column, len(groups))
	for j, name := range groups {
		col, ok := view.Vars.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: grouping column %q", core.ErrMissingVariable, name)
		}
		if col.Type == frame.Numeric || col.Type == frame.Boolean {
			e.log.Warn("grouping column %q is %s; coercing to categories", name, col.Type)
			levels, codes := e.factorize(col)
			col = frame.NewFactorFromCodes(name, codes, levels)
		}
		out[j] = col
	}
	return out, nil
}

// factorize derives an ordered level set from any column: factors keep their
// declared order, numerics sort by value, everything else sorts by text.
func (e *Engine) factorize(col *frame.Column) (levels []string, codes []int) {
	if col.Type == frame.Factor {
		return col.Levels, col.Codes
	}
	if col.Type == frame.Numeric {
		distinct := make(map[float64]bool)
		for _, v := range col.Floats {
			distinct[v] = true
		}
		ordered := make([]float64, 0, len(distinct))
		for v := range distinct {
			ordered = append(ordered, v)
		}
		sort.Float64s(ordered)
		index := make(map[float64]int, len(ordered))
		levels = make([]string, len(ordered))
		for i, v := range ordered {
			index[v] = i
			levels[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		codes = make([]int, len(col.Floats))
		for i, v := range col.Floats {
			codes[i] = index[v]
		}
		return levels, codes
	}

	values := col.AsStrings()
	distinct := make(map[string]bool)
	for _, v := range values {
		distinct[v] = true
	}
	levels = make([]string, 0, len(distinct))
	for v := range distinct {
		levels = append(levels, v)
	}
	sort.Strings(levels)
	index := make(map[string]int, len(levels))
	for i, v := range levels {
		index[v] = i
	}
	codes = make([]int, len(values))
	for i, v := range values {
		codes[i] = index[v]
	}
	return levels, codes
}

// tailAlpha converts a confidence level into the two-sided tail
// probability, rounded to 7 digits so e.g. level 0.95 lands exactly on
// 0.05 instead of the raw 1-0.95 float.
func tailAlpha(level float64) float64 {
	return math.Round((1-level)*1e7) / 1e7
}

func wantsDeff(types []statistic.VarType) bool {
	for _, t := range types {
		if t == statistic.TypeDeff {
			return true
		}
	}
	return false
}

// truncateLevels enforces the single-confidence-level limitation of the
// grouped, proportion and quantile paths.
func (e *Engine) truncateLevels(levels []float64, path string) []float64 {
	e.log.Warn("multiple confidence levels are only supported on the plain path; the %s path uses %g", path, levels[0])
	return levels[:1]
}

// resolveDF resolves the degrees of freedom for interval construction:
// request override first, then the design's, then the residual default
// (infinite, i.e. the normal approximation, for quantiles).
func (e *Engine) resolveDF(d *design.Design, req statistic.Request, quantile bool) float64 {
	if req.DF >= 0 {
		return req.DF
	}
	if d.DFOverride() > 0 {
		return d.DFOverride()
	}
	if quantile {
		return math.Inf(1)
	}
	return d.ResidualDF()
}
