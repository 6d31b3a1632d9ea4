package parquet_accumulator

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/danthegoodman1/parquetlayout/bloom"
	"github.com/danthegoodman1/parquetlayout/gologger"
	"github.com/danthegoodman1/parquetlayout/part"
	"github.com/danthegoodman1/parquetlayout/table"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
)

const (
	FilterKeyPrefix = "parquetlayout.bloom."

	splitBlockReadBuffer = 64 << 10

	readerParallelism = 4
)

var (
	logger = gologger.NewLogger()
)

func FilterKey(column string, rowGroup int) string {
	return fmt.Sprintf("%s%s.%d", FilterKeyPrefix, column, rowGroup)
}

// ParseFilterKey splits a footer key written by FilterKey. Column names may
// contain dots; the row group is always the last segment.
func ParseFilterKey(key string) (column string, rowGroup int, ok bool) {
	rest, found := strings.CutPrefix(key, FilterKeyPrefix)
	if !found {
		return "", 0, false
	}
	dot := strings.LastIndex(rest, ".")
	if dot <= 0 {
		return "", 0, false
	}
	rg, err := strconv.Atoi(rest[dot+1:])
	if err != nil || rg < 0 {
		return "", 0, false
	}
	return rest[:dot], rg, true
}

// FilterColumns lists the columns that carry a filter in any row group.
func FilterColumns(footer *parquet.FileMetaData) []string {
	seen := map[string]bool{}
	var cols []string
	for _, kv := range footer.GetKeyValueMetadata() {
		col, _, ok := ParseFilterKey(kv.GetKey())
		if ok && !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

// ReadFilters decodes the filters for column, keyed by row group. Filters
// that fail to decode are skipped so the row group is treated as unfiltered.
func ReadFilters(footer *parquet.FileMetaData, column string) map[int]*bloom.Filter {
	filters := map[int]*bloom.Filter{}
	for _, kv := range footer.GetKeyValueMetadata() {
		col, rg, ok := ParseFilterKey(kv.GetKey())
		if !ok || col != column || kv.Value == nil {
			continue
		}
		b, err := base64.StdEncoding.DecodeString(*kv.Value)
		if err != nil {
			logger.Warn().Err(err).Str("key", kv.Key).Msg("skipping filter with bad encoding")
			continue
		}
		f := &bloom.Filter{}
		if err := f.UnmarshalBinary(b); err != nil {
			logger.Warn().Err(err).Str("key", kv.Key).Msg("skipping corrupt filter")
			continue
		}
		filters[rg] = f
	}
	return filters
}

func recoverUnreadable(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("parquet decoder panic: %v %w", r, utils.ErrUnreadableFile)
	}
}

// ReadFooter decodes only the file metadata of pf. No column readers are
// opened, so it also works for files without row groups.
func ReadFooter(pf source.ParquetFile) (footer *parquet.FileMetaData, err error) {
	defer recoverUnreadable(&err)
	pr := &reader.ParquetReader{PFile: pf}
	if err := pr.ReadFooter(); err != nil {
		return nil, fmt.Errorf("error in ReadFooter: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	if pr.Footer == nil || len(pr.Footer.Schema) == 0 {
		return nil, fmt.Errorf("footer has no schema: %w", utils.ErrUnreadableFile)
	}
	return pr.Footer, nil
}

// LeafColumns walks the footer schema. Nested leaves are named by their
// dotted path and make flat false.
func LeafColumns(footer *parquet.FileMetaData) (cols []table.Column, flat bool, err error) {
	elems := footer.GetSchema()
	if len(elems) == 0 {
		return nil, false, fmt.Errorf("footer has no schema: %w", utils.ErrUnreadableFile)
	}
	flat = true
	var walk func(i int, path []string) (int, error)
	walk = func(i int, path []string) (int, error) {
		if i >= len(elems) {
			return 0, fmt.Errorf("schema tree truncated at element %d: %w", i, utils.ErrUnreadableFile)
		}
		el := elems[i]
		p := make([]string, len(path), len(path)+1)
		copy(p, path)
		p = append(p, el.GetName())
		if el.GetNumChildren() == 0 {
			if len(p) > 1 {
				flat = false
			}
			cols = append(cols, table.Column{
				Name:          strings.Join(p, "."),
				Type:          el.GetType(),
				ConvertedType: el.ConvertedType,
				LogicalType:   el.LogicalType,
				Scale:         el.Scale,
				Precision:     el.Precision,
				Length:        el.TypeLength,
			})
			return i + 1, nil
		}
		next := i + 1
		for c := int32(0); c < el.GetNumChildren(); c++ {
			if next, err = walk(next, p); err != nil {
				return 0, err
			}
		}
		return next, nil
	}
	next := 1
	for c := int32(0); c < elems[0].GetNumChildren(); c++ {
		if next, err = walk(next, nil); err != nil {
			return nil, false, err
		}
	}
	return cols, flat, nil
}

// DecodeStatistic reads one plain-encoded statistics value of type t.
func DecodeStatistic(t parquet.Type, b []byte) (any, error) {
	switch t {
	case parquet.Type_BOOLEAN:
		if len(b) < 1 {
			break
		}
		return b[0] != 0, nil
	case parquet.Type_INT32:
		if len(b) != 4 {
			break
		}
		return int32(binary.LittleEndian.Uint32(b)), nil
	case parquet.Type_INT64:
		if len(b) != 8 {
			break
		}
		return int64(binary.LittleEndian.Uint64(b)), nil
	case parquet.Type_FLOAT:
		if len(b) != 4 {
			break
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	case parquet.Type_DOUBLE:
		if len(b) != 8 {
			break
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	default:
		return string(b), nil
	}
	return nil, fmt.Errorf("statistic of %d bytes for %s", len(b), t)
}

// ChunkStats converts the codec statistics of one column chunk. It returns nil
// when the chunk carries none. Bounds that cannot be decoded are left unset.
func ChunkStats(cc *parquet.ColumnChunk) *part.ColumnStats {
	md := cc.GetMetaData()
	if md == nil || md.Statistics == nil {
		return nil
	}
	st := md.Statistics
	minB, maxB := st.MinValue, st.MaxValue
	if minB == nil || maxB == nil {
		minB, maxB = st.Min, st.Max
	}
	stats := &part.ColumnStats{
		NullCount:     st.GetNullCount(),
		DistinctCount: st.DistinctCount,
	}
	if minB == nil || maxB == nil {
		return stats
	}
	minV, err := DecodeStatistic(md.GetType(), minB)
	if err != nil {
		logger.Debug().Err(err).Strs("path", md.PathInSchema).Msg("undecodable min")
		return stats
	}
	maxV, err := DecodeStatistic(md.GetType(), maxB)
	if err != nil {
		logger.Debug().Err(err).Strs("path", md.PathInSchema).Msg("undecodable max")
		return stats
	}
	stats.Min, stats.Max = minV, maxV
	return stats
}

// ReadSplitBlock loads the standard bloom filter of a column chunk. It returns
// nil when the chunk has none.
func ReadSplitBlock(pf source.ParquetFile, cc *parquet.ColumnChunk) (sb *bloom.SplitBlock, err error) {
	defer recoverUnreadable(&err)
	md := cc.GetMetaData()
	if md == nil || md.BloomFilterOffset == nil {
		return nil, nil
	}
	tr := source.ConvertToThriftReader(pf, *md.BloomFilterOffset, splitBlockReadBuffer)
	header := parquet.NewBloomFilterHeader()
	if err := header.Read(context.Background(), thrift.NewTCompactProtocol(tr)); err != nil {
		return nil, fmt.Errorf("error reading bloom filter header: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	if header.Algorithm.GetBLOCK() == nil || header.Hash.GetXXHASH() == nil || header.Compression.GetUNCOMPRESSED() == nil {
		return nil, fmt.Errorf("bloom filter is not an uncompressed xxhash split block filter: %w", utils.ErrUnreadableFile)
	}
	if header.NumBytes <= 0 || header.NumBytes > bloom.MaxSplitBlockBytes {
		return nil, fmt.Errorf("bloom filter of %d bytes: %w", header.NumBytes, utils.ErrUnreadableFile)
	}
	b := make([]byte, header.NumBytes)
	if _, err := io.ReadFull(tr, b); err != nil {
		return nil, fmt.Errorf("error reading bloom filter bitset: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	sb, err = bloom.SplitBlockFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%s %w", err.Error(), utils.ErrUnreadableFile)
	}
	return sb, nil
}

// SplitBlockColumns lists the columns whose chunks point at a standard bloom
// filter in any row group.
func SplitBlockColumns(footer *parquet.FileMetaData) []string {
	seen := map[string]bool{}
	var cols []string
	for _, rg := range footer.GetRowGroups() {
		for _, cc := range rg.GetColumns() {
			md := cc.GetMetaData()
			if md == nil || md.BloomFilterOffset == nil {
				continue
			}
			name := strings.Join(md.PathInSchema, ".")
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// ChunkByName finds the column chunk for a dotted column path.
func ChunkByName(rg *parquet.RowGroup, name string) *parquet.ColumnChunk {
	for _, cc := range rg.GetColumns() {
		if md := cc.GetMetaData(); md != nil && strings.Join(md.PathInSchema, ".") == name {
			return cc
		}
	}
	return nil
}

// ReadTable loads every row of a flat parquet file into memory.
func ReadTable(pf source.ParquetFile) (tbl *table.Table, err error) {
	defer recoverUnreadable(&err)
	footer, err := ReadFooter(pf)
	if err != nil {
		return nil, err
	}
	cols, flat, err := LeafColumns(footer)
	if err != nil {
		return nil, err
	}
	if !flat {
		return nil, fmt.Errorf("nested columns are not supported: %w", utils.ErrUnreadableFile)
	}
	if footer.GetNumRows() == 0 {
		return table.New(cols, nil)
	}

	pr, err := reader.NewParquetColumnReader(pf, readerParallelism)
	if err != nil {
		return nil, fmt.Errorf("error in NewParquetColumnReader: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	defer pr.ReadStop()

	colIdx := make(map[string]int, len(cols))
	for i, col := range cols {
		colIdx[col.Name] = i
	}
	num := pr.GetNumRows()
	rows := make([]table.Row, num)
	for i := range rows {
		rows[i] = make(table.Row, len(cols))
	}
	for _, inPath := range pr.SchemaHandler.ValueColumns {
		exPath := pr.SchemaHandler.InPathToExPath[inPath]
		p := common.StrToPath(exPath)
		idx, ok := colIdx[p[len(p)-1]]
		if !ok {
			return nil, fmt.Errorf("column path %s not in schema: %w", exPath, utils.ErrUnreadableFile)
		}
		values, _, _, err := pr.ReadColumnByPath(exPath, num)
		if err != nil {
			return nil, fmt.Errorf("error in ReadColumnByPath: %s %w", err.Error(), utils.ErrUnreadableFile)
		}
		if int64(len(values)) != num {
			return nil, fmt.Errorf("column %s has %d values for %d rows: %w", exPath, len(values), num, utils.ErrUnreadableFile)
		}
		for r, v := range values {
			rows[r][idx] = v
		}
	}
	return table.New(cols, rows)
}
