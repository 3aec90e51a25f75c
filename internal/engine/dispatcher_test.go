package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/design"
	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/domain/statistic"
)

func testDesign(t *testing.T, cols ...*frame.Column) *design.Design {
	t.Helper()
	tbl := frame.NewTable()
	for _, c := range cols {
		tbl.MustAddColumn(c)
	}
	d, err := design.New(tbl, design.Spec{})
	require.NoError(t, err)
	return d
}

func floats(t *testing.T, tbl *frame.Table, name string) []float64 {
	t.Helper()
	col, ok := tbl.Column(name)
	require.True(t, ok, "missing column %q; have %v", name, tbl.Names())
	require.Equal(t, frame.Numeric, col.Type)
	return col.Floats
}

func TestComputeUngroupedMean(t *testing.T) {
	e := New(nil)
	d := testDesign(t, frame.NewNumeric("x", []float64{10, 20, 30}))

	out, err := e.Compute(d, nil, statistic.NewRequest(statistic.Mean, "x"))
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "x_se"}, out.Names())
	require.Equal(t, 1, out.NumRows())
	assert.InDelta(t, 20, floats(t, out, "x")[0], 1e-9)
	assert.InDelta(t, math.Sqrt(100.0/3), floats(t, out, "x_se")[0], 1e-9)
}

func TestComputeGroupedMean(t *testing.T) {
	e := New(nil)
	d := testDesign(t,
		frame.NewNumeric("x", []float64{10, 20, 30, 40}),
		frame.NewText("g", []string{"A", "A", "B", "B"}),
	)

	out, err := e.Compute(d, []string{"g"}, statistic.NewRequest(statistic.Mean, "x"))
	require.NoError(t, err)

	assert.Equal(t, []string{"g", "x", "x_se"}, out.Names())
	require.Equal(t, 2, out.NumRows())

	g, ok := out.Column("g")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, g.AsStrings())
	assert.InDeltaSlice(t, []float64{15, 35}, floats(t, out, "x"), 1e-9)
	assert.InDeltaSlice(t, []float64{5, 5}, floats(t, out, "x_se"), 1e-9)
}

func TestComputeRatio(t *testing.T) {
	e := New(nil)
	d := testDesign(t,
		frame.NewNumeric("num", []float64{2, 4, 6}),
		frame.NewNumeric("den", []float64{1, 2, 3}),
	)
	req := statistic.NewRequest(statistic.Ratio, "num")
	req.Denominator = "den"

	out, err := e.Compute(d, nil, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"num", "num_se"}, out.Names())
	assert.InDelta(t, 2, floats(t, out, "num")[0], 1e-9)
	assert.Equal(t, 0.0, floats(t, out, "num_se")[0])
}

func TestComputeMultipleLevelsOnPlainPath(t *testing.T) {
	e := New(nil)
	d := testDesign(t, frame.NewNumeric("x", []float64{10, 20, 30, 40, 50}))
	req := statistic.NewRequest(statistic.Mean, "x")
	req.VarTypes = []statistic.VarType{statistic.TypeCI}
	req.Levels = []float64{0.9, 0.95}

	out, err := e.Compute(d, nil, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "x_low90", "x_upp90", "x_low95", "x_upp95"}, out.Names())
	coef := floats(t, out, "x")[0]
	width90 := floats(t, out, "x_upp90")[0] - floats(t, out, "x_low90")[0]
	width95 := floats(t, out, "x_upp95")[0] - floats(t, out, "x_low95")[0]
	assert.Greater(t, width95, width90, "wider interval at the higher level")
	assert.Less(t, floats(t, out, "x_low95")[0], coef)
	assert.Greater(t, floats(t, out, "x_upp95")[0], coef)
}

func TestComputeGroupedTruncatesLevels(t *testing.T) {
	e := New(nil)
	d := testDesign(t,
		frame.NewNumeric("x", []float64{10, 20, 30, 40}),
		frame.NewText("g", []string{"A", "A", "B", "B"}),
	)
	req := statistic.NewRequest(statistic.Mean, "x")
	req.VarTypes = []statistic.VarType{statistic.TypeCI}
	req.Levels = []float64{0.95, 0.9}

	out, err := e.Compute(d, []string{"g"}, req)
	require.NoError(t, err)

	// only the first level survives, so the suffixes stay plain
	assert.Equal(t, []string{"g", "x", "x_low", "x_upp"}, out.Names())
}

func TestComputeFactorUngrouped(t *testing.T) {
	e := New(nil)
	f, err := frame.NewFactor("f", []string{"a", "a", "b", "a"}, []string{"a", "b"})
	require.NoError(t, err)
	d := testDesign(t, f)

	req := statistic.NewRequest(statistic.Mean, "")
	out, err := e.Compute(d, []string{"f"}, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"f", "coef", "coef_se"}, out.Names())
	require.Equal(t, 2, out.NumRows())
	lv, ok := out.Column("f")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, lv.AsStrings())
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, floats(t, out, "coef"), 1e-9)
}

func TestComputeFactorGroupedReshapes(t *testing.T) {
	e := New(nil)
	f, err := frame.NewFactor("f", []string{"a", "a", "b", "a"}, []string{"a", "b"})
	require.NoError(t, err)
	d := testDesign(t, f, frame.NewText("g", []string{"u", "u", "v", "v"}))

	req := statistic.NewRequest(statistic.Mean, "")
	out, err := e.Compute(d, []string{"g", "f"}, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"g", "f", "coef", "coef_se"}, out.Names())
	require.Equal(t, 4, out.NumRows())

	g, _ := out.Column("g")
	lv, _ := out.Column("f")
	assert.Equal(t, []string{"u", "u", "v", "v"}, g.AsStrings())
	assert.Equal(t, []string{"a", "b", "a", "b"}, lv.AsStrings())
	assert.InDeltaSlice(t, []float64{1, 0, 0.5, 0.5}, floats(t, out, "coef"), 1e-9)
}

func TestComputeFactorRejectsRatio(t *testing.T) {
	e := New(nil)
	d := testDesign(t, frame.NewText("g", []string{"a", "b"}))
	req := statistic.NewRequest(statistic.Ratio, "")
	req.Denominator = "g"

	_, err := e.Compute(d, []string{"g"}, req)
	assert.True(t, core.IsInvalidArgument(err), "got %v", err)
}

func TestComputeProportionRemapsInterval(t *testing.T) {
	e := New(nil)
	d := testDesign(t,
		frame.NewNumeric("y", []float64{1, 0, 1, 0, 1, 1}),
		frame.NewText("g", []string{"A", "A", "A", "B", "B", "B"}),
	)
	req := statistic.NewRequest(statistic.Mean, "y")
	req.Proportion = true
	req.VarTypes = []statistic.VarType{statistic.TypeCI, statistic.TypeDeff}

	out, err := e.Compute(d, []string{"g"}, req)
	require.NoError(t, err)

	// ci becomes fixed bounds, deff is dropped with a warning
	assert.Equal(t, []string{"g", "y", "y_low", "y_upp"}, out.Names())
	for i := 0; i < out.NumRows(); i++ {
		low := floats(t, out, "y_low")[i]
		upp := floats(t, out, "y_upp")[i]
		coef := floats(t, out, "y")[i]
		assert.GreaterOrEqual(t, low, 0.0)
		assert.LessOrEqual(t, upp, 1.0)
		assert.LessOrEqual(t, low, coef)
		assert.GreaterOrEqual(t, upp, coef)
	}
}

func TestComputeQuantileGroupedUsesFixedBounds(t *testing.T) {
	e := New(nil)
	d := testDesign(t,
		frame.NewNumeric("x", []float64{1, 2, 3, 4, 5, 6, 7, 8}),
		frame.NewText("g", []string{"A", "A", "A", "A", "B", "B", "B", "B"}),
	)
	req := statistic.NewRequest(statistic.Quantile, "x")
	req.Quantiles = []float64{0.5}
	req.VarTypes = []statistic.VarType{statistic.TypeCI}

	out, err := e.Compute(d, []string{"g"}, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"g", "x_q50", "x_q50_low", "x_q50_upp"}, out.Names())
	require.Equal(t, 2, out.NumRows())
}

func TestComputeQuantileUngrouped(t *testing.T) {
	e := New(nil)
	d := testDesign(t, frame.NewNumeric("x", []float64{5, 3, 1, 4, 2}))
	req := statistic.NewRequest(statistic.Quantile, "x")
	req.Quantiles = []float64{0.5}

	out, err := e.Compute(d, nil, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"x_q50", "x_q50_se"}, out.Names())
	assert.InDelta(t, 3, floats(t, out, "x_q50")[0], 1e-9)
}

func TestComputeRejectsDiscreteMeasured(t *testing.T) {
	e := New(nil)
	d := testDesign(t, frame.NewText("f", []string{"a", "b", "a"}))
	_, err := e.Compute(d, nil, statistic.NewRequest(statistic.Mean, "f"))
	assert.True(t, errors.Is(err, core.ErrDiscreteMeasure), "got %v", err)
}

func TestComputeRejectsMissingVariable(t *testing.T) {
	e := New(nil)
	d := testDesign(t, frame.NewNumeric("x", []float64{1, 2}))

	_, err := e.Compute(d, nil, statistic.NewRequest(statistic.Mean, "nope"))
	assert.True(t, errors.Is(err, core.ErrMissingVariable), "got %v", err)

	_, err = e.Compute(d, []string{"nope"}, statistic.NewRequest(statistic.Mean, "x"))
	assert.True(t, errors.Is(err, core.ErrMissingVariable), "got %v", err)
}

func TestComputeBooleanMeasuredAsIndicator(t *testing.T) {
	e := New(nil)
	d := testDesign(t, frame.NewBool("b", []bool{true, false, true, true}))

	out, err := e.Compute(d, nil, statistic.NewRequest(statistic.Mean, "b"))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, floats(t, out, "b")[0], 1e-9)
}

func TestComputeIsRepeatable(t *testing.T) {
	e := New(nil)
	d := testDesign(t, frame.NewNumeric("x", []float64{5, 3, 1, 4, 2}))
	req := statistic.NewRequest(statistic.Quantile, "x")
	req.Quantiles = []float64{0.5}
	req.VarTypes = []statistic.VarType{statistic.TypeNone, statistic.TypeSE}

	first, err := e.Compute(d, nil, req)
	require.NoError(t, err)
	assert.Equal(t, []statistic.VarType{statistic.TypeNone, statistic.TypeSE}, req.VarTypes,
		"computing must not rewrite the caller's request")

	second, err := e.Compute(d, nil, req)
	require.NoError(t, err)
	assert.Equal(t, first.Names(), second.Names())
	assert.Equal(t, floats(t, first, "x_q50"), floats(t, second, "x_q50"))
	assert.Equal(t, floats(t, first, "x_q50_se"), floats(t, second, "x_q50_se"))
}

func TestTailAlphaRounding(t *testing.T) {
	cases := []struct{ level, alpha float64 }{
		{0.95, 0.05},
		{0.9, 0.1},
		{0.975, 0.025},
		{0.999, 0.001},
	}
	for _, c := range cases {
		assert.Equal(t, c.alpha, tailAlpha(c.level), "level %g", c.level)
	}
}

func TestComputeOverTwoPhaseDesign(t *testing.T) {
	e := New(nil)
	tbl := frame.NewTable()
	tbl.MustAddColumn(frame.NewNumeric("w", []float64{2, 2, 4, 4}))
	tbl.MustAddColumn(frame.NewBool("employed", []bool{true, false, true, false}))
	tbl.MustAddColumn(frame.NewText("g", []string{"a", "a", "b", "b"}))
	phase1, err := design.New(tbl, design.Spec{Weights: "w"})
	require.NoError(t, err)

	d, err := design.NewTwoPhase(phase1,
		[]bool{true, true, true, false},
		[]float64{0.5, 1, 0.5, 0})
	require.NoError(t, err)

	// boolean measured variable forces a working column onto the nested
	// phase-1 table
	out, err := e.Compute(d, []string{"g"}, statistic.NewRequest(statistic.Mean, "employed"))
	require.NoError(t, err)

	assert.Equal(t, []string{"g", "employed", "employed_se"}, out.Names())
	require.Equal(t, 2, out.NumRows())
	g, ok := out.Column("g")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, g.AsStrings())
	// combined weights w/prob: [4, 2, 8]
	assert.InDeltaSlice(t, []float64{4.0 / 6, 1}, floats(t, out, "employed"), 1e-9)
}

func TestComputeDeffVarType(t *testing.T) {
	e := New(nil)
	d := testDesign(t, frame.NewNumeric("x", []float64{1, 2, 3, 4, 5}))
	req := statistic.NewRequest(statistic.Mean, "x")
	req.VarTypes = []statistic.VarType{statistic.TypeSE, statistic.TypeDeff}

	out, err := e.Compute(d, nil, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "x_se", "x_deff"}, out.Names())
	// element sampling with unit weights is simple random sampling
	assert.InDelta(t, 1, floats(t, out, "x_deff")[0], 1e-9)
}
