package inspector

import (
	"context"
	"fmt"
	"math"

	"github.com/danthegoodman1/parquetlayout/bloom"
	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/gologger"
	"github.com/danthegoodman1/parquetlayout/parquet_accumulator"
	"github.com/danthegoodman1/parquetlayout/part"
	"github.com/danthegoodman1/parquetlayout/table"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/dustin/go-humanize"
	"github.com/xitongsys/parquet-go/parquet"
)

const (
	DefaultMaxPartitions = 10

	// row group sizes outside this band hurt pruning or request counts
	MinRecommendedRowGroupRows = 50_000
	MaxRecommendedRowGroupRows = 500_000
)

var (
	logger = gologger.NewLogger()
)

type (
	Options struct {
		// Column is the column to report statistics for, empty for none
		Column string
		// MaxPartitions caps the partitions listed. Zero means
		// DefaultMaxPartitions, negative means all.
		MaxPartitions int
		LoadFilters   bool
	}

	ColumnInfo struct {
		Name          string `json:"name"`
		PhysicalType  string `json:"physical_type"`
		ConvertedType string `json:"converted_type,omitempty"`
		LogicalType   string `json:"logical_type,omitempty"`
		HasStatistics bool   `json:"has_statistics"`
		HasFilter     bool   `json:"has_filter"`

		// HasBloomFilter is a standard parquet bloom filter engines read
		HasBloomFilter bool `json:"has_bloom_filter"`
	}

	PartitionInfo struct {
		Index             int   `json:"index"`
		Rows              int64 `json:"rows"`
		UncompressedBytes int64 `json:"uncompressed_bytes"`
		CompressedBytes   int64 `json:"compressed_bytes"`
		// Stats without bounds, or nil, is NoStatistics
		Stats     *part.ColumnStats `json:"stats"`
		HasFilter bool              `json:"has_filter"`
		Filter    *bloom.Filter     `json:"-"`
	}

	RowGroupSummary struct {
		Average float64 `json:"average"`
		Min     int64   `json:"min"`
		Max     int64   `json:"max"`
	}

	Recommendation struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}

	Report struct {
		Path                   string           `json:"path"`
		FileSize               int64            `json:"file_size"`
		Rows                   int64            `json:"rows"`
		PartitionCount         int              `json:"partition_count"`
		CreatedBy              string           `json:"created_by"`
		FormatVersion          int32            `json:"format_version"`
		Flat                   bool             `json:"flat"`
		Columns                []ColumnInfo     `json:"columns"`
		Column                 string           `json:"column,omitempty"`
		ColumnType             *table.Column    `json:"-"`
		Partitions             []PartitionInfo  `json:"partitions"`
		RowGroupRows           RowGroupSummary  `json:"row_group_rows"`
		TotalUncompressedBytes int64            `json:"total_uncompressed_bytes"`
		TotalCompressedBytes   int64            `json:"total_compressed_bytes"`
		StatisticsColumns      []string         `json:"statistics_columns"`
		FilterColumns          []string         `json:"filter_columns"`
		BloomFilterColumns     []string         `json:"bloom_filter_columns"`
		Recommendations        []Recommendation `json:"recommendations"`
	}
)

const (
	LevelOK      = "ok"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Inspect reads the footer of the file at path. No row data is fetched.
func Inspect(ctx context.Context, store datastore.DataStore, path string, opts Options) (*Report, error) {
	pf, size, err := store.OpenFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("error in OpenFile: %w", err)
	}
	defer pf.Close()

	footer, err := parquet_accumulator.ReadFooter(pf)
	if err != nil {
		return nil, err
	}
	rep, err := FromFooter(path, size, footer, opts)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("path", path).Int("partitions", rep.PartitionCount).Int64("rows", rep.Rows).Msg("inspected file")
	return rep, nil
}

// FromFooter builds a report from already decoded file metadata.
func FromFooter(path string, size int64, footer *parquet.FileMetaData, opts Options) (*Report, error) {
	cols, flat, err := parquet_accumulator.LeafColumns(footer)
	if err != nil {
		return nil, err
	}
	rep := &Report{
		Path:           path,
		FileSize:       size,
		Rows:           footer.GetNumRows(),
		PartitionCount: len(footer.GetRowGroups()),
		CreatedBy:      footer.GetCreatedBy(),
		FormatVersion:  footer.GetVersion(),
		Flat:           flat,
		Column:         opts.Column,
		FilterColumns:  parquet_accumulator.FilterColumns(footer),

		BloomFilterColumns: parquet_accumulator.SplitBlockColumns(footer),
	}

	if opts.Column != "" {
		names := make([]string, 0, len(cols))
		for i := range cols {
			names = append(names, cols[i].Name)
			if cols[i].Name == opts.Column {
				rep.ColumnType = &cols[i]
			}
		}
		if rep.ColumnType == nil {
			return nil, &utils.ColumnNotFoundError{Column: opts.Column, Available: names}
		}
	}

	var filters map[int]*bloom.Filter
	filterRGs := map[int]bool{}
	if opts.Column != "" && utils.ContainsString(rep.FilterColumns, opts.Column) {
		filters = parquet_accumulator.ReadFilters(footer, opts.Column)
		for rg := range filters {
			filterRGs[rg] = true
		}
	}

	limit := opts.MaxPartitions
	if limit == 0 {
		limit = DefaultMaxPartitions
	}
	minRows, maxRows := int64(math.MaxInt64), int64(0)
	for i, rg := range footer.GetRowGroups() {
		var compressed int64
		for _, cc := range rg.GetColumns() {
			if md := cc.GetMetaData(); md != nil {
				compressed += md.GetTotalCompressedSize()
			}
		}
		rep.TotalUncompressedBytes += rg.GetTotalByteSize()
		rep.TotalCompressedBytes += compressed
		minRows = min(minRows, rg.GetNumRows())
		maxRows = max(maxRows, rg.GetNumRows())

		if limit > 0 && i >= limit {
			continue
		}
		pi := PartitionInfo{
			Index:             i,
			Rows:              rg.GetNumRows(),
			UncompressedBytes: rg.GetTotalByteSize(),
			CompressedBytes:   compressed,
			HasFilter:         filterRGs[i],
		}
		if opts.Column != "" {
			if cc := parquet_accumulator.ChunkByName(rg, opts.Column); cc != nil {
				pi.Stats = parquet_accumulator.ChunkStats(cc)
			}
			if opts.LoadFilters {
				pi.Filter = filters[i]
			}
		}
		rep.Partitions = append(rep.Partitions, pi)
	}
	if rep.PartitionCount > 0 {
		rep.RowGroupRows = RowGroupSummary{
			Average: float64(rep.Rows) / float64(rep.PartitionCount),
			Min:     minRows,
			Max:     maxRows,
		}
	}

	filterSet := map[string]bool{}
	for _, c := range rep.FilterColumns {
		filterSet[c] = true
	}
	var first *parquet.RowGroup
	if rep.PartitionCount > 0 {
		first = footer.RowGroups[0]
	}
	for _, col := range cols {
		ci := ColumnInfo{
			Name:         col.Name,
			PhysicalType: col.Type.String(),
			HasFilter:    filterSet[col.Name],
		}
		if col.ConvertedType != nil {
			ci.ConvertedType = col.ConvertedType.String()
		}
		ci.LogicalType = parquet_accumulator.LogicalTypeName(col.LogicalType)
		ci.HasBloomFilter = utils.ContainsString(rep.BloomFilterColumns, col.Name)
		if first != nil {
			if cc := parquet_accumulator.ChunkByName(first, col.Name); cc != nil && cc.MetaData.Statistics != nil {
				ci.HasStatistics = true
				rep.StatisticsColumns = append(rep.StatisticsColumns, col.Name)
			}
		}
		rep.Columns = append(rep.Columns, ci)
	}

	rep.Recommendations = recommend(rep)
	return rep, nil
}

func recommend(rep *Report) []Recommendation {
	if rep.PartitionCount == 0 {
		return nil
	}
	var recs []Recommendation
	avg := rep.RowGroupRows.Average
	switch {
	case avg < MinRecommendedRowGroupRows:
		recs = append(recs, Recommendation{LevelWarning, fmt.Sprintf("row groups are small (avg %s rows), consider 100,000-200,000 rows per row group", humanize.Comma(int64(avg)))})
	case avg > MaxRecommendedRowGroupRows:
		recs = append(recs, Recommendation{LevelWarning, fmt.Sprintf("row groups are large (avg %s rows), consider 100,000-200,000 rows per row group for better filtering", humanize.Comma(int64(avg)))})
	default:
		recs = append(recs, Recommendation{LevelOK, fmt.Sprintf("row group size is in range (avg %s rows)", humanize.Comma(int64(avg)))})
	}
	if len(rep.StatisticsColumns) == 0 {
		recs = append(recs, Recommendation{LevelError, "no column statistics found, enable statistics when writing"})
	}
	if len(rep.FilterColumns) == 0 && len(rep.BloomFilterColumns) == 0 {
		recs = append(recs, Recommendation{LevelWarning, "no lookup filters found, consider adding filters for query columns"})
	} else if rep.Column != "" && !utils.ContainsString(rep.FilterColumns, rep.Column) && !utils.ContainsString(rep.BloomFilterColumns, rep.Column) {
		recs = append(recs, Recommendation{LevelWarning, fmt.Sprintf("column %s has no lookup filter", rep.Column)})
	}
	return recs
}

// Layout projects the listed partitions onto the requested column.
func (r *Report) Layout() *part.Layout {
	l := &part.Layout{File: r.Path}
	for _, pi := range r.Partitions {
		p := part.Partition{
			Index:             pi.Index,
			RowCount:          pi.Rows,
			UncompressedBytes: pi.UncompressedBytes,
			CompressedBytes:   pi.CompressedBytes,
		}
		if r.Column != "" {
			p.Stats = map[string]*part.ColumnStats{r.Column: pi.Stats}
			if pi.Filter != nil {
				p.Filters = map[string]*bloom.Filter{r.Column: pi.Filter}
			}
		}
		l.Partitions = append(l.Partitions, p)
	}
	return l
}

// Truncated is the number of partitions left out of the listing.
func (r *Report) Truncated() int {
	return r.PartitionCount - len(r.Partitions)
}
