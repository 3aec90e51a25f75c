package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/internal"
)

// DataReader handles reading Excel and CSV survey files into tables
type DataReader struct {
	log *internal.Logger

	// text columns with at most this many distinct values load as factors
	FactorThreshold int
}

// NewDataReader creates a reader that handles both Excel and CSV files
func NewDataReader(log *internal.Logger) *DataReader {
	if log == nil {
		log = internal.NewDefaultLogger()
	}
	return &DataReader{log: log, FactorThreshold: 50}
}

// ReadTable loads the named file and infers column types
func (r *DataReader) ReadTable(ctx context.Context, path string) (*frame.Table, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("data file not found: %s", path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = r.readCSVRows(path)
	case ".xlsx", ".xlsm":
		rows, err = r.readExcelRows(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s must have at least a header row and one data row", filepath.Base(path))
	}

	return r.buildTable(rows)
}

func (r *DataReader) readExcelRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	r.log.Debug("read %d rows from %s sheet %q", len(rows), filepath.Base(path), sheet)
	return rows, nil
}

func (r *DataReader) readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	r.log.Debug("read %d rows from %s", len(rows), filepath.Base(path))
	return rows, nil
}

// buildTable infers a column type from the cells below each header and
// assembles the typed columns into a table. Short rows pad with empty cells.
func (r *DataReader) buildTable(rows [][]string) (*frame.Table, error) {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	n := len(rows) - 1
	table := frame.NewTable()
	for j, name := range headers {
		if name == "" {
			name = "col" + strconv.Itoa(j+1)
		}
		cells := make([]string, n)
		for i := 1; i < len(rows); i++ {
			if j < len(rows[i]) {
				cells[i-1] = strings.TrimSpace(rows[i][j])
			}
		}
		col, err := r.inferColumn(name, cells)
		if err != nil {
			return nil, err
		}
		if err := table.AddColumn(col); err != nil {
			return nil, err
		}
	}
	r.log.Info("loaded table with %d columns, %d rows", table.NumCols(), table.NumRows())
	return table, nil
}

func (r *DataReader) inferColumn(name string, cells []string) (*frame.Column, error) {
	numeric := true
	boolean := true
	for _, c := range cells {
		if isMissingCell(c) {
			continue
		}
		if _, err := strconv.ParseFloat(c, 64); err != nil {
			numeric = false
		}
		switch strings.ToLower(c) {
		case "true", "false", "t", "f":
		default:
			boolean = false
		}
		if !numeric && !boolean {
			break
		}
	}

	if boolean {
		values := make([]bool, len(cells))
		for i, c := range cells {
			switch strings.ToLower(c) {
			case "true", "t":
				values[i] = true
			}
		}
		return frame.NewBool(name, values), nil
	}
	if numeric {
		values := make([]float64, len(cells))
		for i, c := range cells {
			if isMissingCell(c) {
				values[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, i+1, err)
			}
			values[i] = v
		}
		return frame.NewNumeric(name, values), nil
	}

	distinct := make(map[string]bool)
	for _, c := range cells {
		distinct[c] = true
	}
	if len(distinct) <= r.FactorThreshold {
		levels := make([]string, 0, len(distinct))
		for v := range distinct {
			levels = append(levels, v)
		}
		sort.Strings(levels)
		return frame.NewFactor(name, cells, levels)
	}
	return frame.NewText(name, cells), nil
}

func isMissingCell(c string) bool {
	switch c {
	case "", "NA", "N/A", "null", "NULL", "NaN":
		return true
	}
	return false
}
