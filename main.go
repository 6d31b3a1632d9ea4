package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danthegoodman1/parquetlayout/gologger"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/spf13/cobra"
)

var logger = gologger.NewLogger()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	runID := utils.GenKSortedID("run_")
	ctx = context.WithValue(ctx, gologger.RunIDKey, runID)
	l := logger.With().Str(string(gologger.RunIDKey), runID).Logger()
	ctx = l.WithContext(ctx)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "parquetlayout",
		Short: "Lay out parquet files for pruning-aware point lookups, and audit existing layouts",
		Long: `parquetlayout rewrites parquet files sorted by a lookup key, chunked into
bounded files and row groups, with a negative-lookup filter per row group.

inspect and simulate read only file footers, so they work against large
local or s3:// files without fetching row data.`,
	}
	root.AddCommand(newInspectCmd(), newSimulateCmd(), newOptimizeCmd(), newServeCmd())
	return root
}

// batchError is returned after the summary is printed so the process exits
// non-zero without cobra repeating per-file detail.
func batchError(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d files failed", failed, total)
}

func printSummary(w io.Writer, verb string, succeeded, failed int) {
	fmt.Fprintf(w, "\n%s %d files: %d succeeded, %d failed\n", verb, succeeded+failed, succeeded, failed)
}
