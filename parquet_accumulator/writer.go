package parquet_accumulator

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/danthegoodman1/parquetlayout/bloom"
	"github.com/danthegoodman1/parquetlayout/table"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

const (
	CreatedBy = "parquetlayout"

	// one marshal goroutine keeps page output byte-identical between runs
	writerParallelism = 1
)

var supportedCodecs = []parquet.CompressionCodec{
	parquet.CompressionCodec_UNCOMPRESSED,
	parquet.CompressionCodec_SNAPPY,
	parquet.CompressionCodec_GZIP,
	parquet.CompressionCodec_LZ4,
	parquet.CompressionCodec_ZSTD,
}

type (
	WriterOptions struct {
		Codec      parquet.CompressionCodec
		Dictionary bool
		// SplitBlockColumns get a standard parquet bloom filter per row group,
		// sized for SplitBlockFPP
		SplitBlockColumns []string
		SplitBlockFPP     float64
	}

	// Writer emits one row group per WritePartition call. Filters are kept in
	// memory and written on Close, split block filters ahead of the footer and
	// AttachFilter filters in the footer key-value metadata.
	Writer struct {
		pw         *writer.CSVWriter
		schema     []table.Column
		opts       WriterOptions
		sbbCols    []int
		rowGroups  int
		kv         []*parquet.KeyValue
		splitBlock []pendingSplitBlock
	}

	pendingSplitBlock struct {
		rowGroup int
		column   int
		filter   *bloom.SplitBlock
	}
)

// ParseCodec accepts codec names case-insensitively, e.g. "zstd" or "SNAPPY".
func ParseCodec(name string) (parquet.CompressionCodec, error) {
	c, err := parquet.CompressionCodecFromString(strings.ToUpper(name))
	if err != nil {
		return 0, fmt.Errorf("unknown compression codec %q", name)
	}
	for _, s := range supportedCodecs {
		if s == c {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unsupported compression codec %q", name)
}

func NewWriter(pf source.ParquetFile, schema []table.Column, opts WriterOptions) (*Writer, error) {
	acc := NewParquetAccumulator(opts.Dictionary)
	for _, col := range schema {
		acc.WriteColumn(col)
	}
	pw, err := writer.NewCSVWriter(acc.GetMetadata(), pf, writerParallelism)
	if err != nil {
		return nil, fmt.Errorf("error in NewCSVWriter: %s %w", err.Error(), utils.ErrWriteFailure)
	}
	// row groups are only cut by WritePartition
	pw.RowGroupSize = math.MaxInt64 / 2
	pw.CompressionType = opts.Codec
	pw.Footer.CreatedBy = utils.Ptr(CreatedBy)

	w := &Writer{pw: pw, schema: schema, opts: opts}
	for _, name := range opts.SplitBlockColumns {
		idx := -1
		for i, col := range schema {
			if col.Name == name {
				idx = i
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("split block filter column %s: %w", name, &utils.ColumnNotFoundError{Column: name, Available: columnNames(schema)})
		}
		if !SupportsSplitBlock(schema[idx]) {
			return nil, fmt.Errorf("split block filter column %s of type %s: %w", name, schema[idx].Type, utils.ErrIncomparableKeyType)
		}
		w.sbbCols = append(w.sbbCols, idx)
	}
	return w, nil
}

// SupportsSplitBlock reports whether col's physical type has a plain encoding
// split block filters hash.
func SupportsSplitBlock(col table.Column) bool {
	return col.Type != parquet.Type_BOOLEAN && col.Type != parquet.Type_INT96
}

func columnNames(schema []table.Column) []string {
	names := make([]string, 0, len(schema))
	for _, col := range schema {
		names = append(names, col.Name)
	}
	return names
}

// WritePartition writes rows as a single row group and returns its index.
func (w *Writer) WritePartition(rows []table.Row) (int, error) {
	counts := newChunkCounts(len(w.schema))
	for i, row := range rows {
		if len(row) != len(w.schema) {
			return 0, fmt.Errorf("row %d has %d values for %d columns: %w", i, len(row), len(w.schema), utils.ErrWriteFailure)
		}
		rec := make([]interface{}, len(row))
		for j, v := range row {
			pv, err := toPhysical(w.schema[j], v)
			if err != nil {
				return 0, fmt.Errorf("row %d: %s %w", i, err.Error(), utils.ErrWriteFailure)
			}
			rec[j] = pv
			counts.add(j, pv)
		}
		if err := w.pw.Write(rec); err != nil {
			return 0, fmt.Errorf("error in Write: %s %w", err.Error(), utils.ErrWriteFailure)
		}
	}
	if err := w.pw.Flush(true); err != nil {
		return 0, fmt.Errorf("error in Flush: %s %w", err.Error(), utils.ErrWriteFailure)
	}
	idx := w.rowGroups
	w.rowGroups++
	// an empty flush adds no row group to the footer
	if len(rows) == 0 || len(w.pw.Footer.RowGroups) != w.rowGroups {
		return idx, nil
	}
	w.patchCounts(w.pw.Footer.RowGroups[idx], counts)
	for _, j := range w.sbbCols {
		sb, err := buildSplitBlock(counts.distinct[j], w.opts.SplitBlockFPP)
		if err != nil {
			return 0, fmt.Errorf("error building split block filter for %s: %w %w", w.schema[j].Name, err, utils.ErrWriteFailure)
		}
		w.splitBlock = append(w.splitBlock, pendingSplitBlock{rowGroup: idx, column: j, filter: sb})
	}
	return idx, nil
}

func buildSplitBlock(distinct map[any]struct{}, fpp float64) (*bloom.SplitBlock, error) {
	n, err := bloom.SplitBlockBytes(int64(len(distinct)), fpp)
	if err != nil {
		return nil, err
	}
	sb, err := bloom.NewSplitBlock(n)
	if err != nil {
		return nil, err
	}
	for v := range distinct {
		if err := sb.Insert(v); err != nil {
			return nil, err
		}
	}
	return sb, nil
}

// chunkCounts tracks null and distinct counts per column of one row group.
type chunkCounts struct {
	nulls    []int64
	distinct []map[any]struct{}
}

func newChunkCounts(cols int) chunkCounts {
	c := chunkCounts{nulls: make([]int64, cols), distinct: make([]map[any]struct{}, cols)}
	for i := range c.distinct {
		c.distinct[i] = map[any]struct{}{}
	}
	return c
}

func (c chunkCounts) add(col int, v any) {
	if v == nil {
		c.nulls[col]++
		return
	}
	c.distinct[col][v] = struct{}{}
}

// patchCounts overwrites the codec's null and distinct counts, which it only
// gets right for all-null chunks. Chunk paths still hold the codec's internal
// names until WriteStop, so chunks are matched by position.
func (w *Writer) patchCounts(rg *parquet.RowGroup, counts chunkCounts) {
	if len(rg.Columns) != len(w.schema) {
		logger.Warn().Int("chunks", len(rg.Columns)).Int("columns", len(w.schema)).Msg("row group chunks do not match schema, keeping codec counts")
		return
	}
	for j, cc := range rg.Columns {
		if cc.MetaData == nil {
			continue
		}
		if cc.MetaData.Statistics == nil {
			cc.MetaData.Statistics = parquet.NewStatistics()
		}
		st := cc.MetaData.Statistics
		st.NullCount = utils.Ptr(counts.nulls[j])
		st.DistinctCount = utils.Ptr(int64(len(counts.distinct[j])))
	}
}

// AttachFilter stores f for column in row group rowGroup.
func (w *Writer) AttachFilter(column string, rowGroup int, f *bloom.Filter) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("error encoding filter for %s row group %d: %w %w", column, rowGroup, err, utils.ErrWriteFailure)
	}
	encoded := base64.StdEncoding.EncodeToString(b)
	w.kv = append(w.kv, &parquet.KeyValue{
		Key:   FilterKey(column, rowGroup),
		Value: &encoded,
	})
	return nil
}

func (w *Writer) RowGroups() int {
	return w.rowGroups
}

// Footer is the file metadata written so far, complete after Close.
func (w *Writer) Footer() *parquet.FileMetaData {
	return w.pw.Footer
}

// Close writes pending split block filters and the footer. It does not close
// the underlying file.
func (w *Writer) Close() error {
	if err := w.writeSplitBlocks(); err != nil {
		return err
	}
	w.pw.Footer.KeyValueMetadata = append(w.pw.Footer.KeyValueMetadata, w.kv...)
	if err := w.pw.WriteStop(); err != nil {
		return fmt.Errorf("error in WriteStop: %s %w", err.Error(), utils.ErrWriteFailure)
	}
	return nil
}

// writeSplitBlocks appends each filter as header plus bitset after the last
// row group and points its column chunk at it. Everything WriteStop writes
// afterwards is placed from pw.Offset, so it has to account for these bytes.
func (w *Writer) writeSplitBlocks() error {
	if len(w.splitBlock) == 0 {
		return nil
	}
	ts := thrift.NewTSerializer()
	ts.Protocol = thrift.NewTCompactProtocolFactory().GetProtocol(ts.Transport)
	for _, p := range w.splitBlock {
		if p.rowGroup >= len(w.pw.Footer.RowGroups) {
			continue
		}
		rg := w.pw.Footer.RowGroups[p.rowGroup]
		if p.column >= len(rg.Columns) || rg.Columns[p.column].MetaData == nil {
			continue
		}
		bitset := p.filter.Bytes()
		header, err := ts.Write(context.Background(), SplitBlockHeader(len(bitset)))
		if err != nil {
			return fmt.Errorf("error serializing bloom filter header: %w %w", err, utils.ErrWriteFailure)
		}
		offset := w.pw.Offset
		for _, b := range [][]byte{header, bitset} {
			if _, err := w.pw.PFile.Write(b); err != nil {
				return fmt.Errorf("error writing bloom filter: %w %w", err, utils.ErrWriteFailure)
			}
			w.pw.Offset += int64(len(b))
		}
		rg.Columns[p.column].MetaData.BloomFilterOffset = &offset
	}
	return nil
}

// SplitBlockHeader describes an uncompressed xxhash split block bitset.
func SplitBlockHeader(numBytes int) *parquet.BloomFilterHeader {
	return &parquet.BloomFilterHeader{
		NumBytes:    int32(numBytes),
		Algorithm:   &parquet.BloomFilterAlgorithm{BLOCK: parquet.NewSplitBlockAlgorithm()},
		Hash:        &parquet.BloomFilterHash{XXHASH: parquet.NewXxHash()},
		Compression: &parquet.BloomFilterCompression{UNCOMPRESSED: parquet.NewUncompressed()},
	}
}

// toPhysical converts v to the Go type the codec expects for col.
func toPhysical(col table.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	bad := func() (any, error) {
		return nil, fmt.Errorf("value %v (%T) does not fit column %s of type %s", v, v, col.Name, col.Type)
	}
	switch col.Type {
	case parquet.Type_BOOLEAN:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case parquet.Type_INT32:
		switch n := v.(type) {
		case int32:
			return n, nil
		case int:
			if n < math.MinInt32 || n > math.MaxInt32 {
				return bad()
			}
			return int32(n), nil
		case int64:
			if n < math.MinInt32 || n > math.MaxInt32 {
				return bad()
			}
			return int32(n), nil
		}
	case parquet.Type_INT64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int32:
			return int64(n), nil
		case int:
			return int64(n), nil
		}
	case parquet.Type_FLOAT:
		switch f := v.(type) {
		case float32:
			return f, nil
		case float64:
			return float32(f), nil
		}
	case parquet.Type_DOUBLE:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
	case parquet.Type_BYTE_ARRAY, parquet.Type_FIXED_LEN_BYTE_ARRAY, parquet.Type_INT96:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return bad()
}
