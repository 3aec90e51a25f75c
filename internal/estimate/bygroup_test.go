package estimate

import (
	"errors"
	"testing"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/design"
	"github.com/bschneidr/srvyr/domain/frame"
)

func TestByGroupMeansFollowLevelOrder(t *testing.T) {
	g, err := frame.NewFactor("g", []string{"b", "b", "a", "a"}, []string{"b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	d := unweightedDesign(t,
		frame.NewNumeric("x", []float64{10, 20, 30, 40}),
		g,
	)

	fit, err := ByGroup(d, []*frame.Column{g}, func(sub *design.Design) (Fitted, error) {
		return Mean(sub, []string{"x"}, Options{})
	})
	if err != nil {
		t.Fatal(err)
	}
	if fit.Rows() != 2 {
		t.Fatalf("expected 2 group rows, got %d", fit.Rows())
	}
	// declared level order puts "b" before "a"
	coefs := fit.Coefficients()[0]
	if !almostEqual(coefs[0], 15) || !almostEqual(coefs[1], 35) {
		t.Errorf("group means: expected [15 35], got %v", coefs)
	}
	cols := fit.GroupColumns()
	if len(cols) != 1 || cols[0].Name != "g" {
		t.Fatalf("unexpected group columns: %v", cols)
	}
	if got := cols[0].AsStrings(); got[0] != "b" || got[1] != "a" {
		t.Errorf("group values: expected [b a], got %v", got)
	}
}

func TestByGroupTextColumnsSortLexicographically(t *testing.T) {
	g := frame.NewText("g", []string{"z", "a", "z", "a"})
	d := unweightedDesign(t,
		frame.NewNumeric("x", []float64{1, 2, 3, 4}),
		g,
	)

	fit, err := ByGroup(d, []*frame.Column{g}, func(sub *design.Design) (Fitted, error) {
		return Mean(sub, []string{"x"}, Options{})
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := fit.GroupColumns()[0].AsStrings(); got[0] != "a" || got[1] != "z" {
		t.Errorf("group order: expected [a z], got %v", got)
	}
	coefs := fit.Coefficients()[0]
	if !almostEqual(coefs[0], 3) || !almostEqual(coefs[1], 2) {
		t.Errorf("group means: expected [3 2], got %v", coefs)
	}
}

func TestByGroupCrossesColumns(t *testing.T) {
	a := frame.NewText("a", []string{"x", "x", "y", "y"})
	b := frame.NewText("b", []string{"p", "q", "p", "q"})
	d := unweightedDesign(t,
		frame.NewNumeric("v", []float64{1, 2, 3, 4}),
		a, b,
	)

	fit, err := ByGroup(d, []*frame.Column{a, b}, func(sub *design.Design) (Fitted, error) {
		return Total(sub, []string{"v"}, Options{})
	})
	if err != nil {
		t.Fatal(err)
	}
	if fit.Rows() != 4 {
		t.Fatalf("expected 4 combinations, got %d", fit.Rows())
	}
	// first grouping column varies slowest
	wantA := []string{"x", "x", "y", "y"}
	wantB := []string{"p", "q", "p", "q"}
	gotA := fit.GroupColumns()[0].AsStrings()
	gotB := fit.GroupColumns()[1].AsStrings()
	for i := range wantA {
		if gotA[i] != wantA[i] || gotB[i] != wantB[i] {
			t.Fatalf("combo %d: got (%s, %s), want (%s, %s)", i, gotA[i], gotB[i], wantA[i], wantB[i])
		}
	}
}

func TestByGroupSkipsUnobservedCombinations(t *testing.T) {
	g, err := frame.NewFactor("g", []string{"a", "a", "a"}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	d := unweightedDesign(t, frame.NewNumeric("x", []float64{1, 2, 3}), g)

	fit, err := ByGroup(d, []*frame.Column{g}, func(sub *design.Design) (Fitted, error) {
		return Mean(sub, []string{"x"}, Options{})
	})
	if err != nil {
		t.Fatal(err)
	}
	if fit.Rows() != 1 {
		t.Errorf("expected only observed levels, got %d rows", fit.Rows())
	}
}

func TestByGroupPropagatesEstimatorErrors(t *testing.T) {
	g := frame.NewText("g", []string{"a", "a", "b", "b"})
	d := unweightedDesign(t,
		frame.NewNumeric("num", []float64{1, 2, 3, 4}),
		frame.NewNumeric("den", []float64{1, 1, 2, -2}),
		g,
	)

	_, err := ByGroup(d, []*frame.Column{g}, func(sub *design.Design) (Fitted, error) {
		return Ratio(sub, "num", "den", Options{})
	})
	if err == nil {
		t.Fatal("expected zero-denominator error from group b")
	}
}

func TestByGroupRequiresGroups(t *testing.T) {
	d := unweightedDesign(t, frame.NewNumeric("x", []float64{1, 2}))
	_, err := ByGroup(d, nil, func(sub *design.Design) (Fitted, error) {
		return Mean(sub, []string{"x"}, Options{})
	})
	if !core.IsInvalidArgument(err) {
		t.Errorf("expected invalid-argument error, got %v", err)
	}
}

func TestByGroupRejectsShapeMismatch(t *testing.T) {
	d := unweightedDesign(t, frame.NewNumeric("x", []float64{1, 2, 3}))
	g := frame.NewText("g", []string{"a", "b"})
	_, err := ByGroup(d, []*frame.Column{g}, func(sub *design.Design) (Fitted, error) {
		return Mean(sub, []string{"x"}, Options{})
	})
	if !errors.Is(err, core.ErrDesignShape) {
		t.Errorf("expected design-shape error, got %v", err)
	}
}
