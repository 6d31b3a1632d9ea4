package optimizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danthegoodman1/parquetlayout/bloom"
	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/metastore"
	"github.com/danthegoodman1/parquetlayout/parquet_accumulator"
	"github.com/danthegoodman1/parquetlayout/part"
	"github.com/danthegoodman1/parquetlayout/partitioner"
	"github.com/danthegoodman1/parquetlayout/table"
	"github.com/rs/zerolog"
	"github.com/xitongsys/parquet-go/parquet"
)

type (
	Optimizer struct {
		cfg       Config
		codec     parquet.CompressionCodec
		store     datastore.DataStore
		disk      *datastore.DiskDataStore
		publisher Publisher
		// meta replaces the per-directory manifest when set
		meta metastore.MetaStore
	}

	// OutputFile describes one written file and the layout computed for it.
	OutputFile struct {
		Path       string
		Name       string
		Rows       int64
		Partitions int
		Bytes      int64
		KeyMin     any
		KeyMax     any
		Layout     part.Layout
	}
)

// New validates cfg. Inputs are opened through store, outputs always go to
// local disk.
func New(cfg Config, store datastore.DataStore) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := parquet_accumulator.ParseCodec(cfg.CompressionCodec)
	if err != nil {
		return nil, fmt.Errorf("error in ParseCodec: %w", err)
	}
	o := &Optimizer{
		cfg:   cfg,
		codec: codec,
		store: store,
		disk:  datastore.NewDiskDataStore(),
	}
	if cfg.PublishPrefix != "" {
		if o.publisher, err = NewS3Publisher(cfg.PublishPrefix, cfg.PublishTimeout); err != nil {
			return nil, fmt.Errorf("error in NewS3Publisher: %w", err)
		}
	}
	return o, nil
}

func (o *Optimizer) Config() Config {
	return o.cfg
}

// WithPublisher replaces the publisher built from the config.
func (o *Optimizer) WithPublisher(p Publisher) *Optimizer {
	o.publisher = p
	return o
}

// WithMetaStore records outputs in m instead of a manifest in the output
// directory. The caller owns m and shuts it down.
func (o *Optimizer) WithMetaStore(m metastore.MetaStore) *Optimizer {
	o.meta = m
	return o
}

// OptimizeFile loads inputPath and writes its optimized layout into outDir
// under the input's base name.
func (o *Optimizer) OptimizeFile(ctx context.Context, inputPath, outDir string) ([]OutputFile, error) {
	logger := zerolog.Ctx(ctx)
	s := time.Now()
	pf, _, err := o.store.OpenFile(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("error in OpenFile: %w", err)
	}
	defer pf.Close()

	tbl, err := parquet_accumulator.ReadTable(pf)
	if err != nil {
		return nil, fmt.Errorf("error in ReadTable: %w", err)
	}
	logger.Debug().Str("input", inputPath).Int("rows", tbl.NumRows()).Str("loadTime", time.Since(s).String()).Msg("loaded table")

	base := strings.TrimSuffix(filepath.Base(inputPath), datastore.ParquetExt)
	return o.OptimizeTable(ctx, tbl, base, outDir)
}

// OptimizeTable sorts tbl by the key column, chunks it into files and row
// groups, and writes each file atomically. An empty table writes nothing.
func (o *Optimizer) OptimizeTable(ctx context.Context, tbl *table.Table, baseName, outDir string) ([]OutputFile, error) {
	logger := zerolog.Ctx(ctx)
	keyIdx, err := tbl.ColumnIndex(o.cfg.KeyColumn)
	if err != nil {
		return nil, err
	}
	if tbl.NumRows() == 0 {
		logger.Info().Str("base", baseName).Msg("empty table, no output files written")
		return nil, nil
	}

	sorted, err := tbl.SortedBy(o.cfg.KeyColumn)
	if err != nil {
		return nil, fmt.Errorf("error sorting by %s: %w", o.cfg.KeyColumn, err)
	}

	plan, err := partitioner.GetPartitionPlan(baseName, datastore.ParquetExt, sorted.NumRows(), o.cfg.MaxRowsPerOutputFile, o.cfg.MaxRowsPerPartition)
	if err != nil {
		return nil, fmt.Errorf("error in GetPartitionPlan: %w", err)
	}

	var outputs []OutputFile
	for _, fp := range plan.Files {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		chunk := sorted.Slice(fp.Rows.Start, fp.Rows.End)
		out, err := o.writeFile(ctx, chunk, keyIdx, fp, outDir)
		if err != nil {
			return outputs, fmt.Errorf("error writing %s: %w", fp.Name, err)
		}
		logger.Debug().Str("file", out.Path).Int64("rows", out.Rows).Int("partitions", out.Partitions).Msg("wrote output file")
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (o *Optimizer) writeFile(ctx context.Context, chunk *table.Table, keyIdx int, fp partitioner.FilePlan, outDir string) (OutputFile, error) {
	out := OutputFile{
		Path:       filepath.Join(outDir, fp.Name),
		Name:       fp.Name,
		Rows:       int64(chunk.NumRows()),
		Partitions: len(fp.Partitions),
		Layout:     part.Layout{File: filepath.Join(outDir, fp.Name)},
	}
	keyStats, err := part.ComputeStats(chunk, keyIdx)
	if err != nil {
		return out, err
	}
	out.KeyMin, out.KeyMax = keyStats.Min, keyStats.Max

	af, err := o.disk.CreateAtomic(out.Path)
	if err != nil {
		return out, err
	}
	committed := false
	defer func() {
		if !committed {
			af.Abort()
		}
	}()

	opts := parquet_accumulator.WriterOptions{
		Codec:      o.codec,
		Dictionary: o.cfg.Dictionary,
	}
	if parquet_accumulator.SupportsSplitBlock(chunk.Schema[keyIdx]) {
		opts.SplitBlockColumns = []string{o.cfg.KeyColumn}
		opts.SplitBlockFPP = o.cfg.FilterFPP
	}
	w, err := parquet_accumulator.NewWriter(af, chunk.Schema, opts)
	if err != nil {
		return out, err
	}
	for i, r := range fp.Partitions {
		rows := chunk.Slice(r.Start, r.End)
		p, filter, err := o.buildPartition(ctx, rows, keyIdx, i)
		if err != nil {
			return out, err
		}
		idx, err := w.WritePartition(rows.Rows)
		if err != nil {
			return out, err
		}
		if err := w.AttachFilter(o.cfg.KeyColumn, idx, filter); err != nil {
			return out, err
		}
		out.Layout.Partitions = append(out.Layout.Partitions, p)
	}
	if err := w.Close(); err != nil {
		return out, err
	}
	for i, rg := range w.Footer().GetRowGroups() {
		if i >= len(out.Layout.Partitions) {
			break
		}
		out.Layout.Partitions[i].UncompressedBytes = rg.GetTotalByteSize()
		for _, cc := range rg.GetColumns() {
			if md := cc.GetMetaData(); md != nil {
				out.Layout.Partitions[i].CompressedBytes += md.GetTotalCompressedSize()
			}
		}
	}
	if err := af.Commit(); err != nil {
		return out, err
	}
	committed = true

	if info, err := os.Stat(out.Path); err == nil {
		out.Bytes = info.Size()
	}
	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, out.Path, out.Name); err != nil {
			return out, err
		}
	}
	return out, nil
}

// buildPartition computes statistics for every column and the key filter.
// Columns whose values cannot be ordered keep nil statistics.
func (o *Optimizer) buildPartition(ctx context.Context, rows *table.Table, keyIdx, index int) (part.Partition, *bloom.Filter, error) {
	p := part.Partition{
		Index:    index,
		RowCount: int64(rows.NumRows()),
		Stats:    make(map[string]*part.ColumnStats, len(rows.Schema)),
		Filters:  map[string]*bloom.Filter{},
	}
	for i, col := range rows.Schema {
		stats, err := part.ComputeStats(rows, i)
		if err != nil {
			if i == keyIdx {
				return p, nil, err
			}
			zerolog.Ctx(ctx).Debug().Err(err).Str("column", col.Name).Msg("no statistics for column")
			continue
		}
		p.Stats[col.Name] = stats
	}

	keys := make([]any, 0, rows.NumRows())
	for _, row := range rows.Rows {
		keys = append(keys, row[keyIdx])
	}
	filter, _, err := bloom.Build(keys, o.cfg.FilterFPP)
	if err != nil {
		return p, nil, fmt.Errorf("error in bloom.Build: %w", err)
	}
	p.Filters[o.cfg.KeyColumn] = filter
	return p, filter, nil
}
