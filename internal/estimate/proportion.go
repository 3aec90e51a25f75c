package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/design"
)

// PropOptions configures the proportion confidence-interval estimator.
type PropOptions struct {
	Level  float64
	Method string // "logit", "asin", "beta" or "mean"
	NADrop bool
	DF     float64
}

// proportionResult reports its bounds under ci_l/ci_u semantics: the
// interval is computed on a transformed scale at fit time, so the generic
// coef +/- q*se accessor would be wrong for it.
type proportionResult struct {
	label string
	coef  float64
	se    float64
	low   float64
	upp   float64
}

func (p *proportionResult) Labels() []string { return []string{p.label} }
func (p *proportionResult) Rows() int        { return 1 }

func (p *proportionResult) Coefficients() [][]float64   { return [][]float64{{p.coef}} }
func (p *proportionResult) StandardErrors() [][]float64 { return [][]float64{{p.se}} }

func (p *proportionResult) ConfidenceInterval(level, df float64) (low, upp [][]float64) {
	return [][]float64{{p.low}}, [][]float64{{p.upp}}
}

func (p *proportionResult) PropBounds() (low, upp [][]float64) {
	return [][]float64{{p.low}}, [][]float64{{p.upp}}
}

func (p *proportionResult) Variances() [][]float64 { return [][]float64{{p.se * p.se}} }
func (p *proportionResult) CVs() [][]float64       { return [][]float64{{p.se / p.coef}} }

// DesignEffects always reports false: a design effect is not defined for
// the transformed-scale interval estimators.
func (p *proportionResult) DesignEffects() ([][]float64, bool) { return nil, false }

// ProportionCI estimates a design-weighted proportion of a 0/1 column with a
// confidence interval built on a transformed scale, which behaves better
// than the Wald interval near 0 and 1.
func ProportionCI(d *design.Design, variable string, opt PropOptions) (Fitted, error) {
	v, cols, err := resolveInputs(d, []string{variable}, opt.NADrop)
	if err != nil {
		return nil, err
	}
	y := cols[0]
	for _, val := range y {
		if val != 0 && val != 1 && !math.IsNaN(val) {
			return nil, core.NewEstimatorError("proportion",
				fmt.Errorf("variable %q is not an indicator: value %g", variable, val))
		}
	}
	w := v.Weights
	W := sum(w)

	m := dot(w, y) / W
	var varM float64
	if len(v.RepWeights) > 0 {
		varM = replicateVariance(func(rw []float64) float64 {
			return dot(rw, y) / sum(rw)
		}, m, v.RepWeights, v.RepScale)
	} else {
		u := make([]float64, len(y))
		for i := range y {
			u[i] = w[i] * (y[i] - m) / W
		}
		varM = linVariance(u, v.Strata, v.Clusters)
	}
	se := math.Sqrt(varM)
	q := critValue(opt.Level, opt.DF)
	alpha := 1 - opt.Level

	res := &proportionResult{label: variable, coef: m, se: se}
	if se == 0 || m <= 0 || m >= 1 {
		// Degenerate sample; transforms are undefined, interval collapses.
		res.low, res.upp = m, m
		return res, nil
	}

	switch opt.Method {
	case "logit", "":
		l := math.Log(m / (1 - m))
		seL := se / (m * (1 - m))
		res.low = expit(l - q*seL)
		res.upp = expit(l + q*seL)
	case "asin":
		t := math.Asin(math.Sqrt(m))
		seT := se / (2 * math.Sqrt(m*(1-m)))
		res.low = squaredSin(t - q*seT)
		res.upp = squaredSin(t + q*seT)
	case "beta":
		neff := m * (1 - m) / (se * se)
		res.low = distuv.Beta{Alpha: neff * m, Beta: neff*(1-m) + 1}.Quantile(alpha / 2)
		res.upp = distuv.Beta{Alpha: neff*m + 1, Beta: neff * (1 - m)}.Quantile(1 - alpha/2)
	case "mean":
		res.low = math.Max(m-q*se, 0)
		res.upp = math.Min(m+q*se, 1)
	default:
		return nil, core.NewInvalidArgumentError(fmt.Sprintf("unknown proportion method %q", opt.Method))
	}
	return res, nil
}

func expit(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func squaredSin(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > math.Pi/2 {
		return 1
	}
	s := math.Sin(x)
	return s * s
}
