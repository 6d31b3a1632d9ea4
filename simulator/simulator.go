package simulator

import (
	"errors"
	"fmt"

	"github.com/danthegoodman1/parquetlayout/bloom"
	"github.com/danthegoodman1/parquetlayout/part"
	"github.com/danthegoodman1/parquetlayout/table"
)

type (
	// PartitionBounds is what a pruning reader knows about one partition before
	// fetching it. Stats is nil for NoStatistics; Filter is nil when absent.
	PartitionBounds struct {
		Index  int
		Rows   int64
		Stats  *part.ColumnStats
		Filter *bloom.Filter
	}

	OverlapReport struct {
		// Pairs is the number of adjacent pairs compared
		Pairs       int
		Overlaps    int
		// Unknown pairs had a side without bounds or incomparable bounds
		Unknown     int
		// Overlapping holds the index of the later partition of each overlapping pair
		Overlapping []int
	}

	FetchReport struct {
		Value          any
		Partitions     int
		Fetched        int
		Skipped        int
		// FilterSkipped counts fetched partitions whose filter rules the value out
		FilterSkipped  int
		NoStatistics   int
		Incomparable   int
		FetchedIndexes []int
	}

	Thresholds struct {
		Optimal    float64
		Acceptable float64
	}

	Verdict    string
	Sortedness string

	Analysis struct {
		Partitions int
		Overlaps   OverlapReport
		Sortedness Sortedness
		Fetches    []FetchReport
		Verdicts   []Verdict
	}
)

const (
	VerdictOptimal    Verdict = "optimal"
	VerdictAcceptable Verdict = "acceptable"
	VerdictPoor       Verdict = "poor"

	SortednessTrivial    Sortedness = "trivial"
	SortednessFull       Sortedness = "fully sorted"
	SortednessUnverified Sortedness = "unverified"
	SortednessPartial    Sortedness = "partially sorted"
)

var (
	ErrEmptyInput        = errors.New("no partitions to analyze")
	ErrNullLookup        = errors.New("lookup value must not be null")
	ErrInvalidThresholds = errors.New("thresholds must satisfy 0 <= acceptable <= optimal <= 1")

	DefaultThresholds = Thresholds{Optimal: 0.8, Acceptable: 0.5}
)

// Ratio is overlaps over compared pairs. ok is false with fewer than two
// partitions, where the ratio is undefined.
func (o OverlapReport) Ratio() (ratio float64, ok bool) {
	if o.Pairs == 0 {
		return 0, false
	}
	return float64(o.Overlaps) / float64(o.Pairs), true
}

// SkipRatio is the share of partitions min/max pruning avoids fetching.
func (f FetchReport) SkipRatio() float64 {
	if f.Partitions == 0 {
		return 0
	}
	return float64(f.Skipped) / float64(f.Partitions)
}

// FilteredSkipRatio also counts partitions pruned by their filter.
func (f FetchReport) FilteredSkipRatio() float64 {
	if f.Partitions == 0 {
		return 0
	}
	return float64(f.Skipped+f.FilterSkipped) / float64(f.Partitions)
}

func (t Thresholds) Validate() error {
	if t.Acceptable < 0 || t.Acceptable > t.Optimal || t.Optimal > 1 {
		return ErrInvalidThresholds
	}
	return nil
}

// DetectOverlaps compares each partition with the next one in physical order.
func DetectOverlaps(bounds []PartitionBounds) (OverlapReport, error) {
	if len(bounds) == 0 {
		return OverlapReport{}, ErrEmptyInput
	}
	var rep OverlapReport
	for i := 1; i < len(bounds); i++ {
		rep.Pairs++
		prev, next := bounds[i-1].Stats, bounds[i].Stats
		if !prev.HasBounds() || !next.HasBounds() {
			rep.Unknown++
			continue
		}
		c, err := table.Compare(prev.Max, next.Min)
		if err != nil {
			rep.Unknown++
			continue
		}
		if c > 0 {
			rep.Overlaps++
			rep.Overlapping = append(rep.Overlapping, bounds[i].Index)
		}
	}
	return rep, nil
}

// mustFetch reports whether min <= v <= max. Partitions that cannot be
// evaluated are always fetched.
func mustFetch(stats *part.ColumnStats, v any) (fetch bool, reason error) {
	if !stats.HasBounds() {
		return true, errNoBounds
	}
	lo, err := table.Compare(stats.Min, v)
	if err != nil {
		return true, err
	}
	hi, err := table.Compare(v, stats.Max)
	if err != nil {
		return true, err
	}
	return lo <= 0 && hi <= 0, nil
}

var errNoBounds = errors.New("no bounds")

// SimulateFetch counts the partitions a reader must fetch to look up v.
func SimulateFetch(bounds []PartitionBounds, v any) (FetchReport, error) {
	if len(bounds) == 0 {
		return FetchReport{}, ErrEmptyInput
	}
	if v == nil {
		return FetchReport{}, ErrNullLookup
	}
	rep := FetchReport{Value: v, Partitions: len(bounds)}
	for _, b := range bounds {
		fetch, reason := mustFetch(b.Stats, v)
		switch {
		case errors.Is(reason, errNoBounds):
			rep.NoStatistics++
		case reason != nil:
			rep.Incomparable++
		}
		if !fetch {
			rep.Skipped++
			continue
		}
		rep.Fetched++
		rep.FetchedIndexes = append(rep.FetchedIndexes, b.Index)
		if b.Filter != nil {
			present, err := b.Filter.Test(v)
			if err == nil && !present {
				rep.FilterSkipped++
			}
		}
	}
	return rep, nil
}

// Classify grades a skip ratio. The optimal bound is exclusive, the
// acceptable bound inclusive.
func Classify(skipRatio float64, t Thresholds) Verdict {
	switch {
	case skipRatio > t.Optimal:
		return VerdictOptimal
	case skipRatio >= t.Acceptable:
		return VerdictAcceptable
	default:
		return VerdictPoor
	}
}

func ClassifySortedness(rep OverlapReport) Sortedness {
	switch {
	case rep.Pairs == 0:
		return SortednessTrivial
	case rep.Overlaps > 0:
		return SortednessPartial
	case rep.Unknown > 0:
		return SortednessUnverified
	default:
		return SortednessFull
	}
}

// SampleLookups picks up to n lookup values from partition minimums, starting
// at the middle partition and spreading evenly from there.
func SampleLookups(bounds []PartitionBounds, n int) []any {
	var mins []any
	for _, b := range bounds {
		if b.Stats.HasBounds() {
			mins = append(mins, b.Stats.Min)
		}
	}
	if len(mins) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(mins) {
		n = len(mins)
	}
	mid := len(mins) / 2
	step := float64(len(mins)) / float64(n)
	lookups := make([]any, 0, n)
	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		idx := (mid + int(float64(i)*step)) % len(mins)
		if seen[idx] {
			continue
		}
		seen[idx] = true
		lookups = append(lookups, mins[idx])
	}
	return lookups
}

// Analyze runs overlap detection and one fetch simulation per lookup value.
func Analyze(bounds []PartitionBounds, lookups []any, t Thresholds) (*Analysis, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	overlaps, err := DetectOverlaps(bounds)
	if err != nil {
		return nil, err
	}
	a := &Analysis{
		Partitions: len(bounds),
		Overlaps:   overlaps,
		Sortedness: ClassifySortedness(overlaps),
	}
	for _, v := range lookups {
		rep, err := SimulateFetch(bounds, v)
		if err != nil {
			return nil, fmt.Errorf("error simulating lookup of %v: %w", v, err)
		}
		a.Fetches = append(a.Fetches, rep)
		a.Verdicts = append(a.Verdicts, Classify(rep.SkipRatio(), t))
	}
	return a, nil
}

// BoundsFromLayout projects a layout onto one column.
func BoundsFromLayout(l *part.Layout, column string) []PartitionBounds {
	bounds := make([]PartitionBounds, 0, len(l.Partitions))
	for _, p := range l.Partitions {
		b := PartitionBounds{Index: p.Index, Rows: p.RowCount}
		if p.Stats != nil {
			b.Stats = p.Stats[column]
		}
		if p.Filters != nil {
			b.Filter = p.Filters[column]
		}
		bounds = append(bounds, b)
	}
	return bounds
}
