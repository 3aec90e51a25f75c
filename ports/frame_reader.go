package ports

import (
	"context"

	"github.com/bschneidr/srvyr/domain/frame"
)

// FrameReader loads survey data files into tables
type FrameReader interface {
	// ReadTable loads the named file and infers column types
	ReadTable(ctx context.Context, path string) (*frame.Table, error)

	// Profile summarizes the numeric columns of a loaded table
	Profile(table *frame.Table) ([]ColumnProfile, error)
}

// ColumnProfile is a descriptive summary of one numeric column
type ColumnProfile struct {
	Name    string
	Count   int
	Missing int
	Mean    float64
	StdDev  float64
	Min     float64
	Median  float64
	Max     float64
}
