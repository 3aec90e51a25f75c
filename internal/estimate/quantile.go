package estimate

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/design"
)

// QuantileOptions configures the quantile estimator. Alpha is the two-sided
// tail probability (already rounded by the caller), DF the degrees of
// freedom for the interval's critical value (+Inf for the normal
// approximation).
type QuantileOptions struct {
	Quantiles []float64
	Alpha     float64
	Interval  string // "mean" or "beta"
	QRule     string // "math" or "school"
	DF        float64
	NADrop    bool
}

// quantileResult carries Woodruff bounds fixed at fit time, so it satisfies
// ProportionBounds as well as the generic interval accessor.
type quantileResult struct {
	labels []string
	coefs  []float64
	ses    []float64
	low    []float64
	upp    []float64
}

func (q *quantileResult) Labels() []string { return q.labels }
func (q *quantileResult) Rows() int        { return 1 }

func (q *quantileResult) Coefficients() [][]float64 { return wrapScalars(q.coefs) }

func (q *quantileResult) StandardErrors() [][]float64 { return wrapScalars(q.ses) }

func (q *quantileResult) ConfidenceInterval(level, df float64) (low, upp [][]float64) {
	// Bounds are fixed by the alpha the fit was run with.
	return wrapScalars(q.low), wrapScalars(q.upp)
}

func (q *quantileResult) PropBounds() (low, upp [][]float64) {
	return wrapScalars(q.low), wrapScalars(q.upp)
}

func (q *quantileResult) Variances() [][]float64 {
	out := make([]float64, len(q.ses))
	for j, se := range q.ses {
		out[j] = se * se
	}
	return wrapScalars(out)
}

func (q *quantileResult) CVs() [][]float64 {
	out := make([]float64, len(q.ses))
	for j := range q.ses {
		out[j] = q.ses[j] / q.coefs[j]
	}
	return wrapScalars(out)
}

func (q *quantileResult) DesignEffects() ([][]float64, bool) { return nil, false }

// Quantile computes design-weighted quantiles of one numeric column with
// Woodruff confidence intervals: a bound on the estimated CDF value is
// mapped back through the weighted quantile function.
func Quantile(d *design.Design, variable string, opt QuantileOptions) (Fitted, error) {
	if len(opt.Quantiles) == 0 {
		return nil, core.NewInvalidArgumentError("no quantiles requested")
	}
	v, cols, err := resolveInputs(d, []string{variable}, opt.NADrop)
	if err != nil {
		return nil, err
	}
	y := cols[0]
	w := v.Weights
	W := sum(w)

	order := make([]int, len(y))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return y[order[a]] < y[order[b]] })
	sortedY := make([]float64, len(y))
	cumW := make([]float64, len(y))
	run := 0.0
	for i, idx := range order {
		sortedY[i] = y[idx]
		run += w[idx]
		cumW[i] = run
	}

	level := 1 - opt.Alpha
	zq := critValue(level, opt.DF)

	res := &quantileResult{}
	for _, p := range opt.Quantiles {
		qhat := weightedQuantile(sortedY, cumW, W, p, opt.QRule)

		// CDF-scale standard error at the estimated quantile
		ind := make([]float64, len(y))
		for i := range y {
			if y[i] <= qhat {
				ind[i] = 1
			}
		}
		phat := dot(w, ind) / W
		var varP float64
		if len(v.RepWeights) > 0 {
			varP = replicateVariance(func(rw []float64) float64 {
				return dot(rw, ind) / sum(rw)
			}, phat, v.RepWeights, v.RepScale)
		} else {
			u := make([]float64, len(y))
			for i := range y {
				u[i] = w[i] * (ind[i] - phat) / W
			}
			varP = linVariance(u, v.Strata, v.Clusters)
		}
		seP := math.Sqrt(varP)

		var low, upp, se float64
		if seP == 0 {
			low, upp, se = qhat, qhat, 0
		} else {
			pl, pu, err := cdfBounds(phat, seP, zq, opt)
			if err != nil {
				return nil, err
			}
			low = weightedQuantile(sortedY, cumW, W, pl, opt.QRule)
			upp = weightedQuantile(sortedY, cumW, W, pu, opt.QRule)
			se = (upp - low) / (2 * zq)
		}

		res.labels = append(res.labels, quantileLabel(variable, p))
		res.coefs = append(res.coefs, qhat)
		res.ses = append(res.ses, se)
		res.low = append(res.low, low)
		res.upp = append(res.upp, upp)
	}
	return res, nil
}

// cdfBounds converts the CDF-scale point estimate and standard error into a
// two-sided bound pair according to the requested interval type.
func cdfBounds(phat, seP, zq float64, opt QuantileOptions) (pl, pu float64, err error) {
	switch opt.Interval {
	case "mean", "":
		pl = phat - zq*seP
		pu = phat + zq*seP
	case "beta":
		neff := phat * (1 - phat) / (seP * seP)
		if neff <= 0 || math.IsNaN(neff) {
			return 0, 0, core.NewEstimatorError("quantile", fmt.Errorf("degenerate CDF variance at p=%g", phat))
		}
		pl = distuv.Beta{Alpha: neff * phat, Beta: neff*(1-phat) + 1}.Quantile(opt.Alpha / 2)
		pu = distuv.Beta{Alpha: neff*phat + 1, Beta: neff * (1 - phat)}.Quantile(1 - opt.Alpha/2)
	default:
		return 0, 0, core.NewInvalidArgumentError(fmt.Sprintf("unknown quantile interval type %q", opt.Interval))
	}
	const eps = 1e-7
	return math.Max(pl, eps), math.Min(pu, 1-eps), nil
}

// weightedQuantile evaluates the weighted quantile function at p over
// pre-sorted values with cumulative weights. The "math" rule takes the
// left-continuous inverse CDF; "school" averages adjacent values when the
// target lands exactly on a cumulative-weight boundary.
func weightedQuantile(sortedY, cumW []float64, totalW, p float64, rule string) float64 {
	target := p * totalW
	k := sort.SearchFloat64s(cumW, target)
	if k >= len(sortedY) {
		return sortedY[len(sortedY)-1]
	}
	if rule == "school" && k+1 < len(sortedY) && math.Abs(cumW[k]-target) <= 1e-9*totalW {
		return (sortedY[k] + sortedY[k+1]) / 2
	}
	return sortedY[k]
}

func quantileLabel(variable string, p float64) string {
	return variable + "_q" + strconv.FormatFloat(p*100, 'f', -1, 64)
}
