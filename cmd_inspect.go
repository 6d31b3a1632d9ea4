package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/inspector"
	"github.com/danthegoodman1/parquetlayout/table"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		column        string
		maxPartitions int
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Report row groups, statistics and filter coverage from parquet footers",
		Long: `Inspect a parquet file, a directory of parquet files or an s3:// object.
Only footers are read. With --column, per-row-group statistics for that column
are listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := datastore.ResolveInputs(args[0])
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			out := cmd.OutOrStdout()
			// keep stdout valid JSON
			status := out
			if asJSON {
				status = cmd.ErrOrStderr()
			}

			store := datastore.NewDataStore()
			var (
				reports []*inspector.Report
				failed  int
			)
			for _, input := range inputs {
				rep, err := inspector.Inspect(cmd.Context(), store, input, inspector.Options{
					Column:        column,
					MaxPartitions: maxPartitions,
				})
				if err != nil {
					failed++
					fmt.Fprintf(status, "FAIL %s: %s\n", input, err)
					continue
				}
				reports = append(reports, rep)
				if !asJSON {
					printReport(out, rep)
				}
			}

			if asJSON {
				b, err := json.MarshalIndent(reports, "", "  ")
				if err != nil {
					return fmt.Errorf("error in json.MarshalIndent: %w", err)
				}
				fmt.Fprintln(out, string(b))
			}
			printSummary(status, "inspected", len(reports), failed)
			return batchError(failed, len(inputs))
		},
	}
	cmd.Flags().StringVar(&column, "column", "", "column to list per-row-group statistics for")
	cmd.Flags().IntVar(&maxPartitions, "max-partitions", inspector.DefaultMaxPartitions, "row groups to list, negative for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print reports as JSON")
	return cmd
}

func printReport(w io.Writer, rep *inspector.Report) {
	fmt.Fprintf(w, "== %s\n", rep.Path)
	fmt.Fprintf(w, "size: %s  rows: %s  row groups: %d  created by: %s  version: %d\n",
		humanize.Bytes(uint64(rep.FileSize)), humanize.Comma(rep.Rows), rep.PartitionCount, rep.CreatedBy, rep.FormatVersion)
	if rep.PartitionCount > 0 {
		fmt.Fprintf(w, "row group rows: avg %s  min %s  max %s\n",
			humanize.Comma(int64(rep.RowGroupRows.Average)), humanize.Comma(rep.RowGroupRows.Min), humanize.Comma(rep.RowGroupRows.Max))
		fmt.Fprintf(w, "bytes: %s uncompressed, %s compressed\n",
			humanize.Bytes(uint64(rep.TotalUncompressedBytes)), humanize.Bytes(uint64(rep.TotalCompressedBytes)))
	}
	if !rep.Flat {
		fmt.Fprintln(w, "schema is nested, leaf columns are shown by dotted path")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tSTATS\tFILTER\tBLOOM")
	for _, c := range rep.Columns {
		typ := c.PhysicalType
		if c.ConvertedType != "" {
			typ += " (" + c.ConvertedType + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Name, typ, yesNo(c.HasStatistics), yesNo(c.HasFilter), yesNo(c.HasBloomFilter))
	}
	tw.Flush()

	if rep.Column != "" && len(rep.Partitions) > 0 {
		fmt.Fprintf(w, "row groups for %s:\n", rep.Column)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tROWS\tMIN\tMAX\tNULLS\tFILTER")
		for _, p := range rep.Partitions {
			lo, hi, nulls := "-", "-", "-"
			if p.Stats.HasBounds() {
				lo, hi = table.FormatValue(p.Stats.Min), table.FormatValue(p.Stats.Max)
			}
			if p.Stats != nil {
				nulls = humanize.Comma(p.Stats.NullCount)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", p.Index, humanize.Comma(p.Rows), lo, hi, nulls, yesNo(p.HasFilter))
		}
		tw.Flush()
		if n := rep.Truncated(); n > 0 {
			fmt.Fprintf(w, "... %d more row groups\n", n)
		}
	}

	for _, r := range rep.Recommendations {
		fmt.Fprintf(w, "[%s] %s\n", strings.ToUpper(r.Level), r.Message)
	}
	fmt.Fprintln(w)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
