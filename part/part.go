package part

import (
	"github.com/danthegoodman1/parquetlayout/bloom"
	"github.com/danthegoodman1/parquetlayout/table"
)

type (
	// ColumnStats summarizes one column over the rows of one partition.
	// A nil *ColumnStats, or one without bounds, is the NoStatistics condition:
	// it never means the values are null.
	ColumnStats struct {
		Min       any
		Max       any
		NullCount int64
		// DistinctCount is nil when unknown
		DistinctCount *int64
	}

	// Partition is one row group: the smallest independently fetchable unit.
	Partition struct {
		Index             int
		RowCount          int64
		UncompressedBytes int64
		CompressedBytes   int64
		Stats             map[string]*ColumnStats
		Filters           map[string]*bloom.Filter
	}

	// Layout is the ordered partitions of one file, covering all its rows.
	Layout struct {
		File       string
		Partitions []Partition
	}
)

func (s *ColumnStats) HasBounds() bool {
	return s != nil && s.Min != nil && s.Max != nil
}

func (l *Layout) RowCount() int64 {
	var n int64
	for _, p := range l.Partitions {
		n += p.RowCount
	}
	return n
}

// ComputeStats scans column idx of tbl. All-null columns get a null count and
// no bounds.
func ComputeStats(tbl *table.Table, idx int) (*ColumnStats, error) {
	stats := &ColumnStats{}
	distinct := make(map[any]struct{})
	for _, row := range tbl.Rows {
		v := row[idx]
		if v == nil {
			stats.NullCount++
			continue
		}
		distinct[v] = struct{}{}
		if stats.Min == nil {
			stats.Min, stats.Max = v, v
			continue
		}
		c, err := table.Compare(v, stats.Min)
		if err != nil {
			return nil, err
		}
		if c < 0 {
			stats.Min = v
		}
		c, err = table.Compare(v, stats.Max)
		if err != nil {
			return nil, err
		}
		if c > 0 {
			stats.Max = v
		}
	}
	n := int64(len(distinct))
	stats.DistinctCount = &n
	return stats, nil
}
