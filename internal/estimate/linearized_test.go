package estimate

import (
	"math"
	"testing"

	"github.com/bschneidr/srvyr/domain/design"
	"github.com/bschneidr/srvyr/domain/frame"
)

const tol = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func unweightedDesign(t *testing.T, cols ...*frame.Column) *design.Design {
	t.Helper()
	tbl := frame.NewTable()
	for _, c := range cols {
		tbl.MustAddColumn(c)
	}
	d, err := design.New(tbl, design.Spec{})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestMeanUnweighted(t *testing.T) {
	d := unweightedDesign(t, frame.NewNumeric("x", []float64{10, 20, 30}))
	fit, err := Mean(d, []string{"x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := fit.Coefficients()[0][0]; !almostEqual(got, 20) {
		t.Errorf("mean: expected 20, got %g", got)
	}
	// element sampling, single stratum: variance 100/3
	if got := fit.Variances()[0][0]; !almostEqual(got, 100.0/3) {
		t.Errorf("variance: expected %g, got %g", 100.0/3, got)
	}
	if got := fit.StandardErrors()[0][0]; !almostEqual(got, math.Sqrt(100.0/3)) {
		t.Errorf("se: expected %g, got %g", math.Sqrt(100.0/3), got)
	}
	if fit.Rows() != 1 {
		t.Errorf("expected 1 row, got %d", fit.Rows())
	}
}

func TestTotalUnweighted(t *testing.T) {
	d := unweightedDesign(t, frame.NewNumeric("x", []float64{10, 20, 30}))
	fit, err := Total(d, []string{"x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := fit.Coefficients()[0][0]; !almostEqual(got, 60) {
		t.Errorf("total: expected 60, got %g", got)
	}
	if got := fit.Variances()[0][0]; !almostEqual(got, 300) {
		t.Errorf("variance: expected 300, got %g", got)
	}
}

func TestMeanWeighted(t *testing.T) {
	tbl := frame.NewTable()
	tbl.MustAddColumn(frame.NewNumeric("x", []float64{10, 20}))
	tbl.MustAddColumn(frame.NewNumeric("w", []float64{1, 3}))
	d, err := design.New(tbl, design.Spec{Weights: "w"})
	if err != nil {
		t.Fatal(err)
	}
	fit, err := Mean(d, []string{"x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := fit.Coefficients()[0][0]; !almostEqual(got, 17.5) {
		t.Errorf("weighted mean: expected 17.5, got %g", got)
	}
}

func TestRatioExact(t *testing.T) {
	d := unweightedDesign(t,
		frame.NewNumeric("num", []float64{10, 20}),
		frame.NewNumeric("den", []float64{5, 10}))
	fit, err := Ratio(d, "num", "den", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := fit.Coefficients()[0][0]; !almostEqual(got, 2) {
		t.Errorf("ratio: expected 2, got %g", got)
	}
	// residuals y - R*x vanish, so the linearized variance is exactly zero
	if got := fit.Variances()[0][0]; got != 0 {
		t.Errorf("variance: expected 0, got %g", got)
	}
	if fit.Labels()[0] != "num" {
		t.Errorf("ratio label should be the numerator, got %q", fit.Labels()[0])
	}
}

func TestRatioZeroDenominator(t *testing.T) {
	d := unweightedDesign(t,
		frame.NewNumeric("num", []float64{1, 2}),
		frame.NewNumeric("den", []float64{1, -1}))
	if _, err := Ratio(d, "num", "den", Options{}); err == nil {
		t.Error("expected estimator error for zero denominator total")
	}
}

func TestStratifiedClusterVariance(t *testing.T) {
	tbl := frame.NewTable()
	tbl.MustAddColumn(frame.NewNumeric("x", []float64{1, 3, 5, 7}))
	tbl.MustAddColumn(frame.NewText("h", []string{"a", "a", "b", "b"}))
	tbl.MustAddColumn(frame.NewText("psu", []string{"p1", "p2", "p3", "p4"}))
	d, err := design.New(tbl, design.Spec{Strata: "h", IDs: "psu"})
	if err != nil {
		t.Fatal(err)
	}
	fit, err := Total(d, []string{"x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	// per stratum: 2/(2-1) * sum((t - tbar)^2); stratum a: (1,3) -> 4,
	// stratum b: (5,7) -> 4; total 8
	if got := fit.Variances()[0][0]; !almostEqual(got, 8) {
		t.Errorf("stratified variance: expected 8, got %g", got)
	}

	// a single-PSU stratum contributes nothing
	tbl2 := frame.NewTable()
	tbl2.MustAddColumn(frame.NewNumeric("x", []float64{1, 3, 100}))
	tbl2.MustAddColumn(frame.NewText("h", []string{"a", "a", "b"}))
	tbl2.MustAddColumn(frame.NewText("psu", []string{"p1", "p2", "p3"}))
	d2, err := design.New(tbl2, design.Spec{Strata: "h", IDs: "psu"})
	if err != nil {
		t.Fatal(err)
	}
	fit2, err := Total(d2, []string{"x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := fit2.Variances()[0][0]; !almostEqual(got, 4) {
		t.Errorf("certainty stratum should add nothing: expected 4, got %g", got)
	}
}

func TestReplicateVariance(t *testing.T) {
	tbl := frame.NewTable()
	tbl.MustAddColumn(frame.NewNumeric("x", []float64{10, 20}))
	tbl.MustAddColumn(frame.NewNumeric("w", []float64{1, 1}))
	tbl.MustAddColumn(frame.NewNumeric("r1", []float64{2, 0}))
	tbl.MustAddColumn(frame.NewNumeric("r2", []float64{0.5, 1.5}))
	d, err := design.New(tbl, design.Spec{
		Weights:       "w",
		RepWeightCols: []string{"r1", "r2"},
		RepScale:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	fit, err := Mean(d, []string{"x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	// full mean 15; replicate means 10 and 17.5; scale 1
	want := (15-10)*(15-10) + (17.5-15)*(17.5-15)
	if got := fit.Variances()[0][0]; !almostEqual(got, want) {
		t.Errorf("replicate variance: expected %g, got %g", want, got)
	}
}

func TestNADropRestrictsRows(t *testing.T) {
	tbl := frame.NewTable()
	tbl.MustAddColumn(frame.NewNumeric("x", []float64{10, math.NaN(), 30}))
	d, err := design.New(tbl, design.Spec{})
	if err != nil {
		t.Fatal(err)
	}

	fit, err := Mean(d, []string{"x"}, Options{NADrop: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := fit.Coefficients()[0][0]; !almostEqual(got, 20) {
		t.Errorf("na.rm mean: expected 20, got %g", got)
	}

	// without the drop the missing value poisons the estimate
	fit2, err := Mean(d, []string{"x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(fit2.Coefficients()[0][0]) {
		t.Error("expected NaN mean when missing values are kept")
	}
}

func TestDeffNearOneUnderElementSampling(t *testing.T) {
	xs := make([]float64, 100)
	for i := range xs {
		xs[i] = float64(i % 10)
	}
	d := unweightedDesign(t, frame.NewNumeric("x", xs))
	fit, err := Mean(d, []string{"x"}, Options{Deff: true})
	if err != nil {
		t.Fatal(err)
	}
	deff, ok := fit.DesignEffects()
	if !ok {
		t.Fatal("expected design effects")
	}
	if deff[0][0] < 0.9 || deff[0][0] > 1.1 {
		t.Errorf("unweighted element sampling should have deff near 1, got %g", deff[0][0])
	}
}
