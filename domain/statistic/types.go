// Package statistic defines the request vocabulary for the statistic engine:
// which statistic to compute, over what, and which variance measures to
// report alongside the point estimate.
package statistic

import (
	"fmt"

	"github.com/bschneidr/srvyr/domain/core"
)

// Kind identifies the statistic being computed.
type Kind int

const (
	Mean Kind = iota
	Total
	Ratio
	Quantile
)

// ParseKind maps a statistic name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "mean":
		return Mean, nil
	case "total":
		return Total, nil
	case "ratio":
		return Ratio, nil
	case "quantile":
		return Quantile, nil
	}
	return 0, core.NewInvalidArgumentError(fmt.Sprintf("unknown statistic kind %q", s))
}

// String returns the statistic name.
func (k Kind) String() string {
	switch k {
	case Mean:
		return "mean"
	case Total:
		return "total"
	case Ratio:
		return "ratio"
	case Quantile:
		return "quantile"
	}
	return "unknown"
}

// VarType tags one block of output columns. The first five are requestable
// by callers; the remainder are attached internally by the dispatcher.
type VarType string

const (
	TypeSE   VarType = "se"
	TypeCI   VarType = "ci"
	TypeVar  VarType = "var"
	TypeCV   VarType = "cv"
	TypeDeff VarType = "deff"

	// TypeNone suppresses variance output; only meaningful for quantiles
	// and stripped before assembly.
	TypeNone VarType = "none"

	// TypeCoef is the implicit point-estimate block, always present.
	TypeCoef VarType = "coef"
	// TypeGroups carries the grouping columns of a grouped result.
	TypeGroups VarType = "grps"
	// TypeLevels carries the category-level column of the ungrouped
	// factor-expansion path.
	TypeLevels VarType = "lvls"
	// TypeCIProp is the confidence-interval block for estimators that
	// report bounds under ci_l/ci_u instead of the generic interval
	// accessor.
	TypeCIProp VarType = "ci_prop"
)

// ParseVarTypes validates a caller-supplied variance-type list, deduplicates
// it preserving order, and defaults to {se} when empty. TypeNone is accepted
// only when forQuantile is set.
func ParseVarTypes(raw []string, forQuantile bool) ([]VarType, error) {
	if len(raw) == 0 {
		return []VarType{TypeSE}, nil
	}
	seen := make(map[VarType]bool)
	var out []VarType
	for _, r := range raw {
		vt := VarType(r)
		switch vt {
		case TypeSE, TypeCI, TypeVar, TypeCV, TypeDeff:
		case TypeNone:
			if !forQuantile {
				return nil, core.NewInvalidArgumentError(`vartype "none" is only supported for quantiles`)
			}
		default:
			return nil, core.NewInvalidArgumentError(fmt.Sprintf("unknown vartype %q", r))
		}
		if !seen[vt] {
			seen[vt] = true
			out = append(out, vt)
		}
	}
	return out, nil
}

// Request is the explicit per-call option record. Zero values mean "use the
// documented default"; NewRequest fills those in.
type Request struct {
	Kind        Kind
	Variable    string // measured column; empty means factor expansion over the trailing grouping variable
	Denominator string // ratio only

	NADrop   bool
	VarTypes []VarType
	Levels   []float64 // confidence levels; only the first is honored outside the plain path

	Proportion       bool
	ProportionMethod string // logit, asin, beta, mean

	Quantiles    []float64
	IntervalType string // mean, beta
	QRule        string // math, school

	Deff bool
	DF   float64 // negative = derive from the design; +Inf = normal approximation
}

// NewRequest builds a request with defaults applied.
func NewRequest(kind Kind, variable string) Request {
	return Request{
		Kind:             kind,
		Variable:         variable,
		VarTypes:         []VarType{TypeSE},
		Levels:           []float64{0.95},
		ProportionMethod: "logit",
		IntervalType:     "mean",
		QRule:            "math",
		DF:               -1,
	}
}

// Normalize fills defaulted fields of a hand-built request in place.
func (r *Request) Normalize() {
	if len(r.VarTypes) == 0 {
		r.VarTypes = []VarType{TypeSE}
	}
	if len(r.Levels) == 0 {
		r.Levels = []float64{0.95}
	}
	if r.ProportionMethod == "" {
		r.ProportionMethod = "logit"
	}
	if r.IntervalType == "" {
		r.IntervalType = "mean"
	}
	if r.QRule == "" {
		r.QRule = "math"
	}
	if r.DF == 0 {
		r.DF = -1
	}
	if r.Kind == Quantile {
		// Quantiles always carry their point estimate; "none" only
		// suppresses the variance blocks. The filtered slice is a fresh
		// allocation so the caller's slice survives intact and the same
		// request can be normalized again.
		kept := make([]VarType, 0, len(r.VarTypes))
		for _, vt := range r.VarTypes {
			if vt != TypeNone {
				kept = append(kept, vt)
			}
		}
		r.VarTypes = kept
	}
}

// Validate rejects structurally invalid requests. It runs before any
// estimator call so a failed request never touches the design.
func (r *Request) Validate() error {
	switch r.Kind {
	case Mean, Total, Ratio, Quantile:
	default:
		return core.NewInvalidArgumentError(fmt.Sprintf("unknown statistic kind %d", r.Kind))
	}
	if r.Kind == Ratio && (r.Variable == "" || r.Denominator == "") {
		return core.NewInvalidArgumentError("ratio requires a numerator and a denominator variable")
	}
	if r.Kind == Quantile {
		if len(r.Quantiles) == 0 {
			return core.NewInvalidArgumentError("quantile statistic requires at least one quantile")
		}
		for _, q := range r.Quantiles {
			if q <= 0 || q >= 1 {
				return core.NewInvalidArgumentError(fmt.Sprintf("quantile %g outside (0, 1)", q))
			}
		}
	}
	for _, vt := range r.VarTypes {
		if vt == TypeNone && r.Kind != Quantile {
			return core.NewInvalidArgumentError(`vartype "none" is only supported for quantiles`)
		}
	}
	for _, l := range r.Levels {
		if l <= 0 || l >= 1 {
			return core.NewInvalidArgumentError(fmt.Sprintf("confidence level %g outside (0, 1)", l))
		}
	}
	if r.Proportion {
		if r.Kind != Mean {
			return fmt.Errorf("%w: proportion mode applies to means only", core.ErrUnsupportedCombo)
		}
		if r.Variable == "" {
			return fmt.Errorf("%w: proportion mode cannot be combined with factor expansion", core.ErrUnsupportedCombo)
		}
		switch r.ProportionMethod {
		case "logit", "asin", "beta", "mean", "":
		default:
			return core.NewInvalidArgumentError(fmt.Sprintf("unknown proportion method %q", r.ProportionMethod))
		}
	}
	return nil
}
