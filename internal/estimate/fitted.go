// Package estimate implements the weighted-estimation primitives the
// statistic engine dispatches to: design-weighted means, totals, ratios,
// quantiles and proportion confidence intervals, with linearized or
// replicate-weight sampling variance, plus the by-group driver.
package estimate

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bschneidr/srvyr/domain/frame"
)

// Fitted is the capability interface every estimator result implements, so
// the result assembler never branches on which estimator produced it. All
// accessors return one vector per label (measured variable or quantile),
// each holding Rows() values: one for ungrouped results, one per group
// otherwise.
type Fitted interface {
	Labels() []string
	Rows() int
	Coefficients() [][]float64
	StandardErrors() [][]float64
	ConfidenceInterval(level, df float64) (low, upp [][]float64)
	Variances() [][]float64
	CVs() [][]float64
	// DesignEffects reports false when the estimator does not define a
	// design effect (proportion intervals, quantiles) or it was not
	// requested.
	DesignEffects() ([][]float64, bool)
}

// ProportionBounds is implemented by results whose confidence bounds are
// fixed at fit time under ci_l/ci_u (proportion intervals, Woodruff quantile
// intervals) rather than derived from a standard error.
type ProportionBounds interface {
	PropBounds() (low, upp [][]float64)
}

// GroupColumns is implemented by grouped results and returns one column per
// grouping variable, with one value per result row, in the original level
// order.
type GroupColumns interface {
	GroupColumns() []*frame.Column
}

// statResult is the plain linearized result behind Mean, Total and Ratio.
type statResult struct {
	labels    []string
	coefs     []float64
	variances []float64
	deff      []float64 // nil unless requested
}

func (s *statResult) Labels() []string { return s.labels }
func (s *statResult) Rows() int        { return 1 }

func (s *statResult) Coefficients() [][]float64 {
	return wrapScalars(s.coefs)
}

func (s *statResult) StandardErrors() [][]float64 {
	out := make([][]float64, len(s.variances))
	for j, v := range s.variances {
		out[j] = []float64{math.Sqrt(v)}
	}
	return out
}

func (s *statResult) ConfidenceInterval(level, df float64) (low, upp [][]float64) {
	q := critValue(level, df)
	low = make([][]float64, len(s.coefs))
	upp = make([][]float64, len(s.coefs))
	for j := range s.coefs {
		se := math.Sqrt(s.variances[j])
		low[j] = []float64{s.coefs[j] - q*se}
		upp[j] = []float64{s.coefs[j] + q*se}
	}
	return low, upp
}

func (s *statResult) Variances() [][]float64 {
	return wrapScalars(s.variances)
}

func (s *statResult) CVs() [][]float64 {
	out := make([][]float64, len(s.coefs))
	for j := range s.coefs {
		out[j] = []float64{math.Sqrt(s.variances[j]) / s.coefs[j]}
	}
	return out
}

func (s *statResult) DesignEffects() ([][]float64, bool) {
	if s.deff == nil {
		return nil, false
	}
	return wrapScalars(s.deff), true
}

func wrapScalars(values []float64) [][]float64 {
	out := make([][]float64, len(values))
	for j, v := range values {
		out[j] = []float64{v}
	}
	return out
}

// critValue returns the two-sided critical value at the given confidence
// level: Student's t for finite positive df, standard normal otherwise.
func critValue(level, df float64) float64 {
	p := 1 - (1-level)/2
	if math.IsInf(df, 1) || df <= 0 {
		return distuv.Normal{Mu: 0, Sigma: 1}.Quantile(p)
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(p)
}
