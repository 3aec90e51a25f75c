package excel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/bschneidr/srvyr/domain/frame"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadTableInfersTypes(t *testing.T) {
	path := writeCSV(t, "weight,region,employed,note\n"+
		"1.5,north,true,first respondent\n"+
		"2.0,south,false,second\n"+
		"NA,north,true,third\n")

	r := NewDataReader(nil)
	tbl, err := r.ReadTable(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.NumRows())
	}

	w, _ := tbl.Column("weight")
	if w.Type != frame.Numeric {
		t.Errorf("weight: expected numeric, got %s", w.Type)
	}
	if !math.IsNaN(w.Floats[2]) {
		t.Errorf("NA cell should parse as missing, got %g", w.Floats[2])
	}

	region, _ := tbl.Column("region")
	if region.Type != frame.Factor {
		t.Errorf("region: expected factor, got %s", region.Type)
	}
	if len(region.Levels) != 2 {
		t.Errorf("region levels: expected 2, got %v", region.Levels)
	}

	employed, _ := tbl.Column("employed")
	if employed.Type != frame.Boolean {
		t.Errorf("employed: expected boolean, got %s", employed.Type)
	}
}

func TestReadTableHighCardinalityIsText(t *testing.T) {
	content := "id\n"
	for i := 0; i < 100; i++ {
		content += "id-" + string(rune('a'+i%26)) + string(rune('a'+i/26)) + "\n"
	}
	path := writeCSV(t, content)

	r := NewDataReader(nil)
	tbl, err := r.ReadTable(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := tbl.Column("id")
	if id.Type != frame.Text {
		t.Errorf("high-cardinality column: expected text, got %s", id.Type)
	}
}

func TestReadTableRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.parquet")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewDataReader(nil)
	if _, err := r.ReadTable(context.Background(), path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestReadTablePadsShortRows(t *testing.T) {
	path := writeCSV(t, "a,b\n1,2\n3\n")
	r := NewDataReader(nil)
	tbl, err := r.ReadTable(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := tbl.Column("b")
	if !math.IsNaN(b.Floats[1]) {
		t.Errorf("padded cell should be missing, got %g", b.Floats[1])
	}
}

func TestProfileSkipsDiscreteColumns(t *testing.T) {
	path := writeCSV(t, "x,region\n1,north\n2,south\n3,north\n4,south\n")
	r := NewDataReader(nil)
	tbl, err := r.ReadTable(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	profiles, err := r.Profile(tbl)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	p := profiles[0]
	if p.Name != "x" || p.Count != 4 || p.Missing != 0 {
		t.Errorf("unexpected profile: %+v", p)
	}
	if p.Mean != 2.5 || p.Min != 1 || p.Max != 4 || p.Median != 2.5 {
		t.Errorf("unexpected profile stats: %+v", p)
	}
}
