package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bschneidr/srvyr/adapters/excel"
	"github.com/bschneidr/srvyr/app"
	"github.com/bschneidr/srvyr/domain/design"
	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/domain/statistic"
	"github.com/bschneidr/srvyr/internal"
	"github.com/bschneidr/srvyr/internal/engine"
	"github.com/bschneidr/srvyr/ui"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "srvyr",
		Short: "Design-weighted survey estimation from the command line",
	}

	rootCmd.AddCommand(
		newDescribeCmd(),
		newEstimateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <data-file>",
		Short: "Profile the numeric columns of a survey file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := internal.NewDefaultLogger()
			reader := excel.NewDataReader(logger)
			table, err := reader.ReadTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			profiles, err := reader.Profile(table)
			if err != nil {
				return err
			}
			fmt.Printf("%-20s %8s %8s %12s %12s %12s %12s %12s\n",
				"column", "n", "missing", "mean", "sd", "min", "median", "max")
			for _, p := range profiles {
				fmt.Printf("%-20s %8d %8d %12.4g %12.4g %12.4g %12.4g %12.4g\n",
					p.Name, p.Count, p.Missing, p.Mean, p.StdDev, p.Min, p.Median, p.Max)
			}
			return nil
		},
	}
}

func newEstimateCmd() *cobra.Command {
	var (
		weights    string
		strata     string
		ids        string
		repCols    []string
		variable   string
		denom      string
		kindName   string
		groups     []string
		vartypes   []string
		levels     []float64
		quantiles  []float64
		proportion bool
		propMethod string
		deff       bool
		naDrop     bool
		markdown   bool
	)

	cmd := &cobra.Command{
		Use:   "estimate <data-file>",
		Short: "Compute a design-weighted statistic over a survey file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := internal.NewDefaultLogger()
			reader := excel.NewDataReader(logger)
			table, err := reader.ReadTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			d, err := design.New(table, design.Spec{
				Weights:       weights,
				Strata:        strata,
				IDs:           ids,
				RepWeightCols: repCols,
			})
			if err != nil {
				return err
			}

			kind, err := statistic.ParseKind(kindName)
			if err != nil {
				return err
			}
			vt, err := statistic.ParseVarTypes(vartypes, kind == statistic.Quantile)
			if err != nil {
				return err
			}

			req := statistic.NewRequest(kind, variable)
			req.Denominator = denom
			req.VarTypes = vt
			req.Proportion = proportion
			req.Deff = deff
			req.NADrop = naDrop
			if len(levels) > 0 {
				req.Levels = levels
			}
			if len(quantiles) > 0 {
				req.Quantiles = quantiles
			}
			if propMethod != "" {
				req.ProportionMethod = propMethod
			}

			name := variable
			if name == "" {
				name = strings.Join(groups, "_")
			}
			svc := app.NewEstimationService(engine.New(logger), nil, logger)
			run, err := svc.Run(context.Background(), d, app.BatchRequest{
				Groups: groups,
				Statistics: []app.NamedStatistic{
					{Name: name + "_" + kindName, Request: req},
				},
			})
			if err != nil {
				return err
			}

			if markdown {
				fmt.Print(ui.RenderMarkdown(run))
				return nil
			}
			for _, res := range run.Results {
				printTable(res.Table)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&weights, "weights", "", "weight column")
	cmd.Flags().StringVar(&strata, "strata", "", "stratum column")
	cmd.Flags().StringVar(&ids, "ids", "", "cluster (PSU) column")
	cmd.Flags().StringSliceVar(&repCols, "rep-weights", nil, "replicate weight columns")
	cmd.Flags().StringVar(&variable, "variable", "", "measured variable (omit for a category breakdown)")
	cmd.Flags().StringVar(&denom, "denominator", "", "ratio denominator variable")
	cmd.Flags().StringVar(&kindName, "kind", "mean", "statistic: mean, total, ratio or quantile")
	cmd.Flags().StringSliceVar(&groups, "by", nil, "grouping columns")
	cmd.Flags().StringSliceVar(&vartypes, "vartype", nil, "variance measures: se, ci, var, cv, deff")
	cmd.Flags().Float64SliceVar(&levels, "level", nil, "confidence levels")
	cmd.Flags().Float64SliceVar(&quantiles, "quantiles", nil, "quantile points in (0,1)")
	cmd.Flags().BoolVar(&proportion, "proportion", false, "use the proportion interval estimator")
	cmd.Flags().StringVar(&propMethod, "prop-method", "", "proportion method: logit, asin, beta or mean")
	cmd.Flags().BoolVar(&deff, "deff", false, "compute design effects")
	cmd.Flags().BoolVar(&naDrop, "na-rm", false, "drop rows with missing values")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "print a markdown report")
	return cmd
}

func printTable(t *frame.Table) {
	fmt.Println(t.String())
}
