package frame

import (
	"fmt"
	"math"
	"strconv"
)

// ColumnType identifies the storage kind of a column.
type ColumnType int

const (
	Numeric ColumnType = iota
	Text
	Boolean
	Factor
)

// String returns a human-readable column type name.
func (t ColumnType) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case Text:
		return "text"
	case Boolean:
		return "boolean"
	case Factor:
		return "factor"
	}
	return "unknown"
}

// Column is a single named, typed vector. Exactly one of the value slices is
// populated, selected by Type. Factor columns store integer codes into Levels
// so the original level order survives grouping and reshaping.
type Column struct {
	Name   string
	Type   ColumnType
	Floats []float64
	Texts  []string
	Bools  []bool
	Codes  []int
	Levels []string
}

// NewNumeric creates a numeric column.
func NewNumeric(name string, values []float64) *Column {
	return &Column{Name: name, Type: Numeric, Floats: values}
}

// NewText creates a text column.
func NewText(name string, values []string) *Column {
	return &Column{Name: name, Type: Text, Texts: values}
}

// NewBool creates a boolean column.
func NewBool(name string, values []bool) *Column {
	return &Column{Name: name, Type: Boolean, Bools: values}
}

// NewFactor creates a factor column from raw string values and an explicit
// level order. Values not present in levels are rejected.
func NewFactor(name string, values []string, levels []string) (*Column, error) {
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}
	codes := make([]int, len(values))
	for i, v := range values {
		code, ok := index[v]
		if !ok {
			return nil, fmt.Errorf("factor %q: value %q is not a declared level", name, v)
		}
		codes[i] = code
	}
	return &Column{Name: name, Type: Factor, Codes: codes, Levels: levels}, nil
}

// NewFactorFromCodes creates a factor column directly from codes.
func NewFactorFromCodes(name string, codes []int, levels []string) *Column {
	return &Column{Name: name, Type: Factor, Codes: codes, Levels: levels}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	switch c.Type {
	case Numeric:
		return len(c.Floats)
	case Text:
		return len(c.Texts)
	case Boolean:
		return len(c.Bools)
	case Factor:
		return len(c.Codes)
	}
	return 0
}

// IsDiscrete reports whether the column holds categorical-style values
// (factor or text). Discrete columns may be grouped on but never measured.
func (c *Column) IsDiscrete() bool {
	return c.Type == Factor || c.Type == Text
}

// AsFloats returns the column as a float64 vector. Boolean columns coerce to
// 0/1; discrete columns are an error.
func (c *Column) AsFloats() ([]float64, error) {
	switch c.Type {
	case Numeric:
		return c.Floats, nil
	case Boolean:
		out := make([]float64, len(c.Bools))
		for i, b := range c.Bools {
			if b {
				out[i] = 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("column %q is %s, not numeric", c.Name, c.Type)
	}
}

// AsStrings returns the column rendered as strings. Numeric values use the
// shortest round-trip representation so coerced group keys stay stable.
func (c *Column) AsStrings() []string {
	n := c.Len()
	out := make([]string, n)
	switch c.Type {
	case Text:
		copy(out, c.Texts)
	case Factor:
		for i, code := range c.Codes {
			out[i] = c.Levels[code]
		}
	case Boolean:
		for i, b := range c.Bools {
			out[i] = strconv.FormatBool(b)
		}
	case Numeric:
		for i, f := range c.Floats {
			if math.IsNaN(f) {
				out[i] = "NA"
				continue
			}
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
	}
	return out
}

// Subset returns a new column holding the given rows, in order.
func (c *Column) Subset(rows []int) *Column {
	out := &Column{Name: c.Name, Type: c.Type, Levels: c.Levels}
	switch c.Type {
	case Numeric:
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
		}
	case Text:
		out.Texts = make([]string, len(rows))
		for i, r := range rows {
			out.Texts[i] = c.Texts[r]
		}
	case Boolean:
		out.Bools = make([]bool, len(rows))
		for i, r := range rows {
			out.Bools[i] = c.Bools[r]
		}
	case Factor:
		out.Codes = make([]int, len(rows))
		for i, r := range rows {
			out.Codes[i] = c.Codes[r]
		}
	}
	return out
}

// parseFloats converts rendered numeric strings back to floats, honoring the
// "NA" marker written by AsStrings.
func parseFloats(values []string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == "NA" || v == "" {
			out[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", v, err)
		}
		out[i] = f
	}
	return out, nil
}
