package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/inspector"
	"github.com/danthegoodman1/parquetlayout/simulator"
	"github.com/danthegoodman1/parquetlayout/table"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type simulateOptions struct {
	column        string
	samples       int
	value         string
	maxPartitions int
}

func newSimulateCmd() *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate <path> [column]",
		Short: "Predict how many row groups a min/max pruning reader fetches per lookup",
		Long: `Simulate point lookups against the row group statistics of a parquet file
or every parquet file in a directory. The column defaults to QUERY_KEY_COLUMN.
Lookup values are sampled from row group minimums unless --value is given.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.column = utils.QUERY_KEY_COLUMN
			if len(args) > 1 {
				opts.column = args[1]
			}
			if opts.samples < 1 {
				return fmt.Errorf("--samples must be at least 1")
			}
			inputs, err := datastore.ResolveInputs(args[0])
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			out := cmd.OutOrStdout()
			store := datastore.NewDataStore()
			var succeeded, failed int
			for _, input := range inputs {
				if err := simulateFile(cmd.Context(), out, store, input, opts); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %s\n\n", input, err)
					continue
				}
				succeeded++
			}
			printSummary(out, "simulated", succeeded, failed)
			return batchError(failed, len(inputs))
		},
	}
	cmd.Flags().IntVar(&opts.samples, "samples", 1, "lookup values to sample from row group minimums")
	cmd.Flags().StringVar(&opts.value, "value", "", "simulate this lookup value instead of sampling")
	cmd.Flags().IntVar(&opts.maxPartitions, "max-partitions", inspector.DefaultMaxPartitions, "row groups to analyze from the start of the file, negative for all")
	return cmd
}

func simulateFile(ctx context.Context, w io.Writer, store datastore.DataStore, input string, opts simulateOptions) error {
	rep, analysis, err := inspector.Simulate(ctx, store, input, inspector.SimulateOptions{
		Column:        opts.column,
		Samples:       opts.samples,
		Value:         opts.value,
		MaxPartitions: opts.maxPartitions,
		Thresholds:    simulator.DefaultThresholds,
	})
	if err != nil {
		return err
	}
	printAnalysis(w, rep, analysis)
	return nil
}

func printAnalysis(w io.Writer, rep *inspector.Report, a *simulator.Analysis) {
	fmt.Fprintf(w, "== %s\n", rep.Path)
	fmt.Fprintf(w, "column %s: %d of %d row groups analyzed, %s rows total\n",
		rep.Column, a.Partitions, rep.PartitionCount, humanize.Comma(rep.Rows))

	if ratio, ok := a.Overlaps.Ratio(); ok {
		fmt.Fprintf(w, "sortedness: %s (%d of %d adjacent pairs overlap, %.1f%%", a.Sortedness, a.Overlaps.Overlaps, a.Overlaps.Pairs, ratio*100)
		if a.Overlaps.Unknown > 0 {
			fmt.Fprintf(w, ", %d without comparable bounds", a.Overlaps.Unknown)
		}
		fmt.Fprintln(w, ")")
	} else {
		fmt.Fprintf(w, "sortedness: %s (single row group)\n", a.Sortedness)
	}
	if len(a.Overlaps.Overlapping) > 0 {
		fmt.Fprintf(w, "overlapping row groups: %v\n", a.Overlaps.Overlapping)
	}

	if len(a.Fetches) == 0 {
		fmt.Fprintf(w, "[ERROR] no row group has min/max statistics for %s, every lookup fetches every row group\n\n", rep.Column)
		return
	}
	for i, f := range a.Fetches {
		fmt.Fprintf(w, "lookup %s: fetch %d of %d row groups, skip %.1f%% [%s]",
			table.FormatValue(f.Value), f.Fetched, f.Partitions, f.SkipRatio()*100, a.Verdicts[i])
		if f.FilterSkipped > 0 {
			fmt.Fprintf(w, ", %.1f%% with filters", f.FilteredSkipRatio()*100)
		}
		fmt.Fprintln(w)
		if f.NoStatistics > 0 || f.Incomparable > 0 {
			fmt.Fprintf(w, "  fetched without evaluation: %d without statistics, %d incomparable\n", f.NoStatistics, f.Incomparable)
		}
	}
	fmt.Fprintln(w)
}
