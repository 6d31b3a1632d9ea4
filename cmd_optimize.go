package main

import (
	"fmt"
	"io"
	"time"

	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/metastore"
	"github.com/danthegoodman1/parquetlayout/optimizer"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newOptimizeCmd() *cobra.Command {
	cfg := optimizer.DefaultConfig()
	var (
		noDictionary bool
		catalogDSN   string
		migrate      bool
	)
	cmd := &cobra.Command{
		Use:   "optimize <in_dir> <out_dir>",
		Short: "Rewrite every parquet file in a directory sorted, chunked and filtered by the key column",
		Long: `Optimize loads each parquet file in in_dir, sorts it by the key column, splits
it into files of at most --max-rows rows and row groups of at most
--partition-rows rows, and writes each row group with a negative-lookup filter
on the key. A manifest of the written files is kept in out_dir.

Defaults come from QUERY_KEY_COLUMN, MAX_ROWS_PER_OUTPUT_FILE,
MAX_ROWS_PER_PARTITION, FILTER_FPP, COMPRESSION_CODEC, DICTIONARY_ENCODING
and WORKERS. With --catalog-dsn, files are recorded in the layout_files table
under the publish prefix, or the absolute output directory, as namespace.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noDictionary {
				cfg.Dictionary = false
			}
			o, err := optimizer.New(cfg, datastore.NewDataStore())
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if catalogDSN != "" {
				pool, err := openCatalog(cmd.Context(), catalogDSN, migrate)
				if err != nil {
					return err
				}
				meta := metastore.NewCRDBMetaStore(pool, cfg.CatalogNamespace(args[1]))
				defer meta.Shutdown(cmd.Context())
				o.WithMetaStore(meta)
			}

			summary, err := o.Run(cmd.Context(), args[0], args[1])
			if err != nil && summary == nil {
				return err
			}
			out := cmd.OutOrStdout()
			printRun(out, summary)
			if err != nil {
				return err
			}
			return batchError(summary.Failed, len(summary.Results))
		},
	}
	f := cmd.Flags()
	f.IntVar(&cfg.MaxRowsPerOutputFile, "max-rows", cfg.MaxRowsPerOutputFile, "maximum rows per output file")
	f.IntVar(&cfg.MaxRowsPerPartition, "partition-rows", cfg.MaxRowsPerPartition, "maximum rows per row group")
	f.StringVar(&cfg.KeyColumn, "key", cfg.KeyColumn, "column to sort by and build filters for")
	f.Float64Var(&cfg.FilterFPP, "fpp", cfg.FilterFPP, "filter false positive probability")
	f.StringVar(&cfg.CompressionCodec, "codec", cfg.CompressionCodec, "compression codec: uncompressed, snappy, gzip, lz4 or zstd")
	f.BoolVar(&noDictionary, "no-dictionary", !cfg.Dictionary, "disable dictionary encoding")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "files optimized in parallel")
	f.StringVar(&cfg.PublishPrefix, "publish-prefix", cfg.PublishPrefix, "upload outputs to s3://bucket/prefix, or a prefix in S3_BUCKET_NAME")
	f.StringVar(&catalogDSN, "catalog-dsn", "", "record outputs in the CockroachDB layout catalog instead of a manifest file")
	f.BoolVar(&migrate, "migrate", false, "apply catalog migrations before the run")
	return cmd
}

func printRun(w io.Writer, s *optimizer.RunSummary) {
	fmt.Fprintf(w, "run %s\n", s.RunID)
	var rows int64
	var files int
	for _, res := range s.Results {
		if res.Err != nil {
			fmt.Fprintf(w, "FAIL %s: %s\n", res.Input, res.Err)
			for _, out := range res.Outputs {
				fmt.Fprintf(w, "  kept %s (%s rows) written before the failure\n", out.Path, humanize.Comma(out.Rows))
			}
			continue
		}
		if len(res.Outputs) == 0 {
			fmt.Fprintf(w, "OK   %s: empty, nothing written (%s)\n", res.Input, res.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(w, "OK   %s: %s rows into %d files (%s)\n", res.Input, humanize.Comma(res.Rows), len(res.Outputs), res.Duration.Round(time.Millisecond))
		for _, out := range res.Outputs {
			fmt.Fprintf(w, "  %s  %s rows  %d row groups  %s\n", out.Path, humanize.Comma(out.Rows), out.Partitions, humanize.Bytes(uint64(out.Bytes)))
		}
		rows += res.Rows
		files += len(res.Outputs)
	}
	if s.Manifest != "" {
		fmt.Fprintf(w, "manifest: %s\n", s.Manifest)
	}
	printSummary(w, "optimized", s.Succeeded, s.Failed)
	fmt.Fprintf(w, "wrote %s rows into %d files\n", humanize.Comma(rows), files)
}
