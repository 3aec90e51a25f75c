// Package testkit provides synthetic survey fixtures and in-memory adapters
// for tests and demo deployments.
package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/bschneidr/srvyr/domain/design"
	"github.com/bschneidr/srvyr/domain/frame"
)

// SurveyGeneratorConfig configures the synthetic survey generator
type SurveyGeneratorConfig struct {
	Strata         int     `json:"strata"`
	PSUsPerStratum int     `json:"psus_per_stratum"`
	RowsPerPSU     int     `json:"rows_per_psu"`
	Replicates     int     `json:"replicates"`
	MissingRate    float64 `json:"missing_rate"`
	Seed           int64   `json:"seed"`
}

// DefaultSurveyConfig returns sensible defaults for survey generation
func DefaultSurveyConfig() SurveyGeneratorConfig {
	return SurveyGeneratorConfig{
		Strata:         4,
		PSUsPerStratum: 5,
		RowsPerPSU:     10,
		Replicates:     20,
		MissingRate:    0,
		Seed:           42,
	}
}

// SurveyGenerator generates stratified-cluster survey tables
type SurveyGenerator struct {
	config SurveyGeneratorConfig
	rng    *rand.Rand
}

// NewSurveyGenerator creates a survey generator
func NewSurveyGenerator(config SurveyGeneratorConfig) *SurveyGenerator {
	return &SurveyGenerator{config: config, rng: rand.New(rand.NewSource(config.Seed))}
}

// GenerateTable builds a survey table with design columns (weight, stratum,
// psu), a region factor, an income measure, an employed indicator, and a
// hours measure correlated with income.
func (g *SurveyGenerator) GenerateTable() *frame.Table {
	n := g.config.Strata * g.config.PSUsPerStratum * g.config.RowsPerPSU

	weights := make([]float64, 0, n)
	strata := make([]string, 0, n)
	psus := make([]string, 0, n)
	regions := make([]string, 0, n)
	income := make([]float64, 0, n)
	hours := make([]float64, 0, n)
	employed := make([]bool, 0, n)

	regionLevels := []string{"north", "south", "east", "west"}
	for h := 0; h < g.config.Strata; h++ {
		stratumBase := 30000 + float64(h)*8000
		for c := 0; c < g.config.PSUsPerStratum; c++ {
			psuShift := g.rng.NormFloat64() * 2500
			for i := 0; i < g.config.RowsPerPSU; i++ {
				weights = append(weights, 50+g.rng.Float64()*150)
				strata = append(strata, fmt.Sprintf("stratum_%d", h+1))
				psus = append(psus, fmt.Sprintf("psu_%d_%d", h+1, c+1))
				regions = append(regions, regionLevels[g.rng.Intn(len(regionLevels))])

				inc := stratumBase + psuShift + g.rng.NormFloat64()*6000
				if inc < 0 {
					inc = 0
				}
				if g.config.MissingRate > 0 && g.rng.Float64() < g.config.MissingRate {
					inc = math.NaN()
				}
				income = append(income, inc)
				hours = append(hours, 20+inc/2500+g.rng.NormFloat64()*4)
				employed = append(employed, g.rng.Float64() < 0.85)
			}
		}
	}

	table := frame.NewTable()
	table.MustAddColumn(frame.NewNumeric("weight", weights))
	table.MustAddColumn(mustFactor("stratum", strata))
	table.MustAddColumn(mustFactor("psu", psus))
	table.MustAddColumn(mustFactor("region", regions))
	table.MustAddColumn(frame.NewNumeric("income", income))
	table.MustAddColumn(frame.NewNumeric("hours", hours))
	table.MustAddColumn(frame.NewBool("employed", employed))
	return table
}

// GenerateDesign builds the linearized design over a generated table
func (g *SurveyGenerator) GenerateDesign() (*design.Design, error) {
	return design.New(g.GenerateTable(), design.Spec{
		Weights: "weight",
		Strata:  "stratum",
		IDs:     "psu",
	})
}

// GenerateReplicateDesign builds a replicate-weight design: base weights plus
// jackknife-style perturbed replicate columns.
func (g *SurveyGenerator) GenerateReplicateDesign() (*design.Design, error) {
	table := g.GenerateTable()
	wcol, _ := table.Column("weight")
	base := wcol.Floats

	repCols := make([]string, g.config.Replicates)
	for r := 0; r < g.config.Replicates; r++ {
		rep := make([]float64, len(base))
		for i, w := range base {
			rep[i] = w * (1 + 0.1*g.rng.NormFloat64())
			if rep[i] < 1 {
				rep[i] = 1
			}
		}
		name := fmt.Sprintf("repwt_%d", r+1)
		repCols[r] = name
		table.MustAddColumn(frame.NewNumeric(name, rep))
	}

	return design.New(table, design.Spec{
		Weights:       "weight",
		RepWeightCols: repCols,
	})
}

func mustFactor(name string, values []string) *frame.Column {
	seen := make(map[string]bool)
	var levels []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	col, err := frame.NewFactor(name, values, levels)
	if err != nil {
		panic(err)
	}
	return col
}
