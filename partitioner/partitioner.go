package partitioner

import (
	"errors"
	"fmt"
)

type (
	// Range is the half-open row interval [Start, End).
	Range struct {
		Start int
		End   int
	}

	// FilePlan is one output file: a contiguous slice of the sorted table and
	// its row groups, with partition ranges relative to the file's first row.
	FilePlan struct {
		Name       string
		Rows       Range
		Partitions []Range
	}

	PartitionPlan struct {
		Files []FilePlan
	}
)

var (
	ErrInvalidSize = errors.New("range size must be positive")
)

func (r Range) Len() int {
	return r.End - r.Start
}

// Split cuts [0, total) into consecutive ranges of at most size rows. The
// boundaries depend only on total and size.
func Split(total, size int) ([]Range, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	var ranges []Range
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges, nil
}

// OutputFileName is <base><ext> for a single chunk and <base>_<i><ext> otherwise.
func OutputFileName(base, ext string, i, chunks int) string {
	if chunks <= 1 {
		return base + ext
	}
	return fmt.Sprintf("%s_%d%s", base, i, ext)
}

// GetPartitionPlan chunks totalRows into files of at most maxRowsPerFile and
// each file into row groups of at most maxRowsPerPartition.
func GetPartitionPlan(base, ext string, totalRows, maxRowsPerFile, maxRowsPerPartition int) (PartitionPlan, error) {
	var plan PartitionPlan
	chunks, err := Split(totalRows, maxRowsPerFile)
	if err != nil {
		return plan, fmt.Errorf("error splitting files: %w", err)
	}
	for i, chunk := range chunks {
		parts, err := Split(chunk.Len(), maxRowsPerPartition)
		if err != nil {
			return plan, fmt.Errorf("error splitting partitions: %w", err)
		}
		plan.Files = append(plan.Files, FilePlan{
			Name:       OutputFileName(base, ext, i, len(chunks)),
			Rows:       chunk,
			Partitions: parts,
		})
	}
	return plan, nil
}
