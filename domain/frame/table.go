// Package frame provides the lightweight column table used for a design's
// variables and for assembled statistic output. Columns keep their insertion
// order, which is what makes "concatenate blocks in request order" a simple
// append.
package frame

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Table is an ordered collection of equal-length columns.
type Table struct {
	names []string
	cols  map[string]*Column
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{cols: make(map[string]*Column)}
}

// AddColumn appends a column. The first column fixes the row count; later
// columns must match it and names must be unique.
func (t *Table) AddColumn(c *Column) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("column must be non-nil and named")
	}
	if _, exists := t.cols[c.Name]; exists {
		return fmt.Errorf("duplicate column %q", c.Name)
	}
	if len(t.names) > 0 && c.Len() != t.NumRows() {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.NumRows())
	}
	t.names = append(t.names, c.Name)
	t.cols[c.Name] = c
	return nil
}

// MustAddColumn appends a column and panics on shape violations. Reserved for
// internally constructed tables where a mismatch is a programming error.
func (t *Table) MustAddColumn(c *Column) {
	if err := t.AddColumn(c); err != nil {
		panic(err)
	}
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int {
	return len(t.names)
}

// NumRows returns the number of rows (0 for an empty table).
func (t *Table) NumRows() int {
	if len(t.names) == 0 {
		return 0
	}
	return t.cols[t.names[0]].Len()
}

// Subset returns a new table with the given rows, in order. Column values are
// copied so the subset is independent of the source.
func (t *Table) Subset(rows []int) *Table {
	out := NewTable()
	for _, name := range t.names {
		out.MustAddColumn(t.cols[name].Subset(rows))
	}
	return out
}

// ShallowCopy returns a new table sharing the underlying column values.
// Adding a column to the copy never affects the original, which is what the
// prepared-subset contract needs.
func (t *Table) ShallowCopy() *Table {
	out := NewTable()
	out.names = make([]string, len(t.names))
	copy(out.names, t.names)
	for name, c := range t.cols {
		out.cols[name] = c
	}
	return out
}

// ReplaceColumn swaps an existing column for a new one of the same name and
// length, keeping its position.
func (t *Table) ReplaceColumn(c *Column) error {
	old, ok := t.cols[c.Name]
	if !ok {
		return fmt.Errorf("no column %q to replace", c.Name)
	}
	if c.Len() != old.Len() {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), old.Len())
	}
	t.cols[c.Name] = c
	return nil
}

// String renders the table as a compact fixed-width text block.
func (t *Table) String() string {
	if t.NumCols() == 0 {
		return "(empty table)"
	}
	rendered := make([][]string, t.NumCols())
	widths := make([]int, t.NumCols())
	for j, name := range t.names {
		rendered[j] = t.cols[name].AsStrings()
		widths[j] = len(name)
		for _, v := range rendered[j] {
			if len(v) > widths[j] {
				widths[j] = len(v)
			}
		}
	}
	var b strings.Builder
	for j, name := range t.names {
		fmt.Fprintf(&b, "%-*s  ", widths[j], name)
	}
	b.WriteByte('\n')
	for i := 0; i < t.NumRows(); i++ {
		for j := range t.names {
			fmt.Fprintf(&b, "%-*s  ", widths[j], rendered[j][i])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// tableJSON is the column-oriented wire form used for persistence.
type tableJSON struct {
	Names   []string             `json:"names"`
	Types   map[string]string    `json:"types"`
	Strings map[string][]string  `json:"strings,omitempty"`
	Bools   map[string][]bool    `json:"bools,omitempty"`
	Levels  map[string][]string  `json:"levels,omitempty"`
}

// MarshalJSON encodes the table column-by-column. NaN is not representable in
// JSON, so numeric columns round-trip through strings.
func (t *Table) MarshalJSON() ([]byte, error) {
	w := tableJSON{
		Names:   t.Names(),
		Types:   make(map[string]string),
		Strings: make(map[string][]string),
		Bools:   make(map[string][]bool),
		Levels:  make(map[string][]string),
	}
	for _, name := range t.names {
		c := t.cols[name]
		w.Types[name] = c.Type.String()
		switch c.Type {
		case Boolean:
			w.Bools[name] = c.Bools
		case Factor:
			w.Strings[name] = c.AsStrings()
			w.Levels[name] = c.Levels
		default:
			w.Strings[name] = c.AsStrings()
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the column-oriented wire form.
func (t *Table) UnmarshalJSON(data []byte) error {
	var w tableJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = *NewTable()
	for _, name := range w.Names {
		var col *Column
		switch w.Types[name] {
		case "boolean":
			col = NewBool(name, w.Bools[name])
		case "factor":
			fc, err := NewFactor(name, w.Strings[name], w.Levels[name])
			if err != nil {
				return err
			}
			col = fc
		case "numeric":
			floats, err := parseFloats(w.Strings[name])
			if err != nil {
				return fmt.Errorf("column %q: %w", name, err)
			}
			col = NewNumeric(name, floats)
		default:
			col = NewText(name, w.Strings[name])
		}
		if err := t.AddColumn(col); err != nil {
			return err
		}
	}
	return nil
}
