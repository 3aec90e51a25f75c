package estimate

import (
	"fmt"
	"math"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/design"
)

// Options controls the shared estimator knobs.
type Options struct {
	NADrop bool
	Deff   bool
}

// Mean computes design-weighted means of the named numeric columns with
// their sampling variance. Several columns fit together so the factor
// expansion path gets consistent per-level variances from one call.
func Mean(d *design.Design, vars []string, opt Options) (Fitted, error) {
	v, ys, err := resolveInputs(d, vars, opt.NADrop)
	if err != nil {
		return nil, err
	}
	w := v.Weights
	W := sum(w)

	res := &statResult{labels: vars}
	for _, y := range ys {
		coef := dot(w, y) / W

		var variance float64
		if len(v.RepWeights) > 0 {
			variance = replicateVariance(func(rw []float64) float64 {
				return dot(rw, y) / sum(rw)
			}, coef, v.RepWeights, v.RepScale)
		} else {
			u := make([]float64, len(y))
			for i := range y {
				u[i] = w[i] * (y[i] - coef) / W
			}
			variance = linVariance(u, v.Strata, v.Clusters)
		}

		res.coefs = append(res.coefs, coef)
		res.variances = append(res.variances, variance)
		if opt.Deff {
			srs := weightedS2(w, y, coef) / float64(len(y))
			res.deff = append(res.deff, variance/srs)
		}
	}
	return res, nil
}

// Total computes design-weighted totals of the named numeric columns with
// their sampling variance.
func Total(d *design.Design, vars []string, opt Options) (Fitted, error) {
	v, ys, err := resolveInputs(d, vars, opt.NADrop)
	if err != nil {
		return nil, err
	}
	w := v.Weights
	W := sum(w)

	res := &statResult{labels: vars}
	for _, y := range ys {
		coef := dot(w, y)

		var variance float64
		if len(v.RepWeights) > 0 {
			variance = replicateVariance(func(rw []float64) float64 {
				return dot(rw, y)
			}, coef, v.RepWeights, v.RepScale)
		} else {
			u := make([]float64, len(y))
			for i := range y {
				u[i] = w[i] * y[i]
			}
			variance = linVariance(u, v.Strata, v.Clusters)
		}

		res.coefs = append(res.coefs, coef)
		res.variances = append(res.variances, variance)
		if opt.Deff {
			srs := W * W * weightedS2(w, y, coef/W) / float64(len(y))
			res.deff = append(res.deff, variance/srs)
		}
	}
	return res, nil
}

// Ratio computes the design-weighted ratio of two numeric columns with its
// linearized sampling variance. The result carries the numerator's name as
// its label.
func Ratio(d *design.Design, num, den string, opt Options) (Fitted, error) {
	v, cols, err := resolveInputs(d, []string{num, den}, opt.NADrop)
	if err != nil {
		return nil, err
	}
	y, x := cols[0], cols[1]
	w := v.Weights

	denTotal := dot(w, x)
	if denTotal == 0 {
		return nil, core.NewEstimatorError("ratio", fmt.Errorf("denominator total of %q is zero", den))
	}
	coef := dot(w, y) / denTotal

	var variance float64
	if len(v.RepWeights) > 0 {
		variance = replicateVariance(func(rw []float64) float64 {
			return dot(rw, y) / dot(rw, x)
		}, coef, v.RepWeights, v.RepScale)
	} else {
		u := make([]float64, len(y))
		for i := range y {
			u[i] = w[i] * (y[i] - coef*x[i]) / denTotal
		}
		variance = linVariance(u, v.Strata, v.Clusters)
	}

	res := &statResult{labels: []string{num}, coefs: []float64{coef}, variances: []float64{variance}}
	if opt.Deff {
		W := sum(w)
		xbar := denTotal / W
		z := make([]float64, len(y))
		for i := range y {
			z[i] = y[i] - coef*x[i]
		}
		srs := weightedS2(w, z, 0) / (float64(len(y)) * xbar * xbar)
		res.deff = []float64{variance / srs}
	}
	return res, nil
}

// resolveInputs flattens the design, pulls the named numeric columns and,
// when dropMissing is set, restricts the design to rows complete across all
// of them.
func resolveInputs(d *design.Design, vars []string, dropMissing bool) (*design.View, [][]float64, error) {
	v := d.EstimationView()
	ys, err := numericColumns(v, vars)
	if err != nil {
		return nil, nil, err
	}
	if dropMissing {
		rows := completeRows(ys)
		if len(rows) < len(v.Weights) {
			d = d.Subset(rows)
			v = d.EstimationView()
			if ys, err = numericColumns(v, vars); err != nil {
				return nil, nil, err
			}
		}
	}
	if len(v.Weights) == 0 {
		return nil, nil, core.NewEstimatorError("subset", fmt.Errorf("no rows to estimate over"))
	}
	return v, ys, nil
}

func numericColumns(v *design.View, names []string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for j, name := range names {
		col, ok := v.Vars.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrMissingVariable, name)
		}
		y, err := col.AsFloats()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrDiscreteMeasure, err)
		}
		out[j] = y
	}
	return out, nil
}

func completeRows(cols [][]float64) []int {
	if len(cols) == 0 {
		return nil
	}
	var rows []int
	for i := range cols[0] {
		ok := true
		for _, c := range cols {
			if math.IsNaN(c[i]) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	return rows
}

// linVariance computes the with-replacement stratified cluster variance of
// the total of the linearized values u. Rows without cluster labels are
// their own PSUs; single-PSU strata contribute nothing (certainty units).
func linVariance(u []float64, strata, clusters []string) float64 {
	perStratum := make(map[string]map[string]float64)
	var stratumOrder []string
	for i, ui := range u {
		s := ""
		if strata != nil {
			s = strata[i]
		}
		c := fmt.Sprintf("\x00row-%d", i)
		if clusters != nil {
			c = clusters[i]
		}
		if perStratum[s] == nil {
			perStratum[s] = make(map[string]float64)
			stratumOrder = append(stratumOrder, s)
		}
		perStratum[s][c] += ui
	}

	total := 0.0
	for _, s := range stratumOrder {
		totals := perStratum[s]
		nh := float64(len(totals))
		if nh < 2 {
			continue
		}
		mean := 0.0
		for _, t := range totals {
			mean += t
		}
		mean /= nh
		ss := 0.0
		for _, t := range totals {
			ss += (t - mean) * (t - mean)
		}
		total += nh / (nh - 1) * ss
	}
	return total
}

// replicateVariance recomputes the estimate under each replicate weight set
// and scales the squared deviations from the full-sample estimate.
func replicateVariance(est func(w []float64) float64, theta float64, repWeights [][]float64, scale float64) float64 {
	ss := 0.0
	for _, rw := range repWeights {
		d := est(rw) - theta
		ss += d * d
	}
	return scale * ss
}

// weightedS2 estimates the population unit variance around center, which is
// what the simple-random-sampling denominator of the design effect uses.
func weightedS2(w, y []float64, center float64) float64 {
	W := sum(w)
	if W <= 1 {
		return math.NaN()
	}
	ss := 0.0
	for i := range y {
		ss += w[i] * (y[i] - center) * (y[i] - center)
	}
	return ss / (W - 1)
}

func sum(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
