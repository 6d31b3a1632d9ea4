package optimizer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/gologger"
	"github.com/danthegoodman1/parquetlayout/metastore"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type (
	FileResult struct {
		Input    string
		Outputs  []OutputFile
		Rows     int64
		Duration time.Duration
		Err      error
	}

	RunSummary struct {
		RunID     string
		Results   []FileResult
		Succeeded int
		Failed    int
		// Manifest is where entries were recorded, empty when there are none
		Manifest string
	}
)

// Run optimizes every parquet file in inDir into outDir. A failing file is
// recorded in its FileResult and does not stop the batch. Only invocation
// problems, such as an empty input directory, return an error.
func (o *Optimizer) Run(ctx context.Context, inDir, outDir string) (*RunSummary, error) {
	inputs, err := datastore.ResolveInputs(inDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("error in os.MkdirAll: %s %w", err.Error(), utils.ErrWriteFailure)
	}

	summary := &RunSummary{
		RunID:   RunIDFromContext(ctx),
		Results: make([]FileResult, len(inputs)),
	}
	if summary.RunID == "" {
		summary.RunID = utils.GenKSortedID("run_")
		ctx = context.WithValue(ctx, gologger.RunIDKey, summary.RunID)
		l := zerolog.Ctx(ctx).With().Str(string(gologger.RunIDKey), summary.RunID).Logger()
		ctx = l.WithContext(ctx)
	}
	logger := zerolog.Ctx(ctx)

	meta := o.meta
	if meta == nil {
		fms, err := metastore.NewFileMetaStore(ctx, outDir)
		if err != nil {
			return nil, fmt.Errorf("error in NewFileMetaStore: %w", err)
		}
		meta = fms
	}

	logger.Info().Int("files", len(inputs)).Int("workers", o.cfg.Workers).Str("outDir", outDir).Msg("starting optimize run")

	g := &errgroup.Group{}
	g.SetLimit(o.cfg.Workers)
	for i, input := range inputs {
		g.Go(func() error {
			res := &summary.Results[i]
			res.Input = input
			if err := ctx.Err(); err != nil {
				res.Err = err
				return nil
			}
			s := time.Now()
			res.Outputs, res.Err = o.OptimizeFile(ctx, input, outDir)
			res.Duration = time.Since(s)
			for _, out := range res.Outputs {
				res.Rows += out.Rows
			}
			if res.Err != nil {
				logger.Error().Err(res.Err).Str("input", input).Msg("failed to optimize file")
			}
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now().UTC()
	for _, res := range summary.Results {
		if res.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
		// files written before a failure are still valid and get recorded
		for _, out := range res.Outputs {
			err := meta.RecordFile(ctx, metastore.FileEntry{
				Name:       out.Name,
				Source:     res.Input,
				Rows:       out.Rows,
				Partitions: out.Partitions,
				Bytes:      out.Bytes,
				KeyColumn:  o.cfg.KeyColumn,
				KeyMin:     out.KeyMin,
				KeyMax:     out.KeyMax,
				RunID:      summary.RunID,
				CreatedAt:  now,
			})
			if err != nil {
				return summary, fmt.Errorf("error in RecordFile: %w", err)
			}
		}
	}
	if o.meta == nil {
		if err := meta.Shutdown(ctx); err != nil {
			return summary, fmt.Errorf("error writing manifest: %w", err)
		}
	}
	entries, err := meta.ListFiles(ctx)
	if err != nil {
		return summary, fmt.Errorf("error in ListFiles: %w", err)
	}
	if len(entries) > 0 {
		summary.Manifest = meta.Location()
	}

	logger.Info().Int("succeeded", summary.Succeeded).Int("failed", summary.Failed).Msg("optimize run finished")
	return summary, nil
}

// RunIDFromContext returns the run ID the caller attached, if any.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(gologger.RunIDKey).(string)
	return id
}
