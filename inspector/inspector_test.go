package inspector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/danthegoodman1/parquetlayout/bloom"
	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/parquet_accumulator"
	"github.com/danthegoodman1/parquetlayout/simulator"
	"github.com/danthegoodman1/parquetlayout/table"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
)

var schema = []table.Column{
	{Name: "origin", Type: parquet.Type_BYTE_ARRAY, ConvertedType: parquet.ConvertedTypePtr(parquet.ConvertedType_UTF8)},
	{Name: "n", Type: parquet.Type_INT32},
}

// writeFile writes one row group per partition with a filter on origin when
// withFilters is set.
func writeFile(t *testing.T, partitions [][]table.Row, withFilters bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.parquet")
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	w, err := parquet_accumulator.NewWriter(fw, schema, parquet_accumulator.WriterOptions{Codec: parquet.CompressionCodec_SNAPPY, Dictionary: true})
	require.NoError(t, err)
	for _, rows := range partitions {
		idx, err := w.WritePartition(rows)
		require.NoError(t, err)
		if !withFilters {
			continue
		}
		keys := make([]any, 0, len(rows))
		for _, r := range rows {
			keys = append(keys, r[0])
		}
		f, _, err := bloom.Build(keys, 0.01)
		require.NoError(t, err)
		require.NoError(t, w.AttachFilter("origin", idx, f))
	}
	require.NoError(t, w.Close())
	require.NoError(t, fw.Close())
	return path
}

func TestInspect(t *testing.T) {
	path := writeFile(t, [][]table.Row{
		{{"a", int32(1)}, {"b", int32(2)}},
		{{"c", int32(3)}, {"e", nil}},
		{{nil, int32(5)}, {nil, int32(6)}},
	}, true)

	rep, err := Inspect(context.Background(), datastore.NewDataStore(), path, Options{Column: "origin", LoadFilters: true})
	require.NoError(t, err)
	require.Equal(t, int64(6), rep.Rows)
	require.Equal(t, 3, rep.PartitionCount)
	require.Equal(t, parquet_accumulator.CreatedBy, rep.CreatedBy)
	require.True(t, rep.Flat)
	require.Greater(t, rep.FileSize, int64(0))
	require.Len(t, rep.Columns, 2)
	require.Equal(t, "BYTE_ARRAY", rep.Columns[0].PhysicalType)
	require.Equal(t, "UTF8", rep.Columns[0].ConvertedType)
	require.True(t, rep.Columns[0].HasFilter)
	require.False(t, rep.Columns[1].HasFilter)
	require.Equal(t, []string{"origin", "n"}, rep.StatisticsColumns)
	require.Equal(t, []string{"origin"}, rep.FilterColumns)
	require.Equal(t, RowGroupSummary{Average: 2, Min: 2, Max: 2}, rep.RowGroupRows)

	require.Len(t, rep.Partitions, 3)
	p := rep.Partitions[1]
	require.Equal(t, int64(2), p.Rows)
	require.Equal(t, "c", p.Stats.Min)
	require.Equal(t, "e", p.Stats.Max)
	require.True(t, p.HasFilter)
	require.NotNil(t, p.Filter)

	// an all-null partition reports its nulls and no bounds
	last := rep.Partitions[2]
	require.False(t, last.Stats.HasBounds())
	require.Equal(t, int64(2), last.Stats.NullCount)

	require.Equal(t, LevelWarning, rep.Recommendations[0].Level)
	require.Len(t, rep.Recommendations, 1)
}

func TestInspectWithoutFiltersOrColumn(t *testing.T) {
	path := writeFile(t, [][]table.Row{{{"a", int32(1)}}}, false)

	rep, err := Inspect(context.Background(), datastore.NewDataStore(), path, Options{})
	require.NoError(t, err)
	require.Empty(t, rep.FilterColumns)
	require.Nil(t, rep.Partitions[0].Stats)
	require.Nil(t, rep.ColumnType)

	var levels []string
	for _, r := range rep.Recommendations {
		levels = append(levels, r.Level)
	}
	require.Equal(t, []string{LevelWarning, LevelWarning}, levels)
}

func TestInspectMaxPartitions(t *testing.T) {
	var partitions [][]table.Row
	for i := 0; i < 12; i++ {
		partitions = append(partitions, []table.Row{{fmt.Sprintf("k%02d", i), int32(i)}})
	}
	path := writeFile(t, partitions, false)
	store := datastore.NewDataStore()

	rep, err := Inspect(context.Background(), store, path, Options{Column: "n"})
	require.NoError(t, err)
	require.Equal(t, 12, rep.PartitionCount)
	require.Len(t, rep.Partitions, DefaultMaxPartitions)
	require.Equal(t, 2, rep.Truncated())
	require.Equal(t, int32(9), rep.Partitions[9].Stats.Max)

	rep, err = Inspect(context.Background(), store, path, Options{Column: "n", MaxPartitions: -1})
	require.NoError(t, err)
	require.Len(t, rep.Partitions, 12)

	rep, err = Inspect(context.Background(), store, path, Options{Column: "n", MaxPartitions: 3})
	require.NoError(t, err)
	require.Len(t, rep.Partitions, 3)
}

func TestInspectEmptyFile(t *testing.T) {
	path := writeFile(t, nil, false)

	rep, err := Inspect(context.Background(), datastore.NewDataStore(), path, Options{Column: "origin"})
	require.NoError(t, err)
	require.Equal(t, int64(0), rep.Rows)
	require.Equal(t, 0, rep.PartitionCount)
	require.Empty(t, rep.Partitions)
	require.Empty(t, rep.Recommendations)
}

func TestInspectErrors(t *testing.T) {
	path := writeFile(t, [][]table.Row{{{"a", int32(1)}}}, false)
	store := datastore.NewDataStore()

	_, err := Inspect(context.Background(), store, path, Options{Column: "nope"})
	require.ErrorIs(t, err, utils.ErrColumnNotFound)
	var cnf *utils.ColumnNotFoundError
	require.True(t, errors.As(err, &cnf))
	require.Equal(t, []string{"origin", "n"}, cnf.Available)

	_, err = Inspect(context.Background(), store, filepath.Join(t.TempDir(), "missing.parquet"), Options{})
	require.ErrorIs(t, err, utils.ErrFileNotFound)
}

func TestLayoutFeedsSimulator(t *testing.T) {
	path := writeFile(t, [][]table.Row{
		{{"a", int32(1)}},
		{{"b", int32(2)}},
		{{"c", int32(3)}},
	}, true)

	rep, err := Inspect(context.Background(), datastore.NewDataStore(), path, Options{Column: "origin", LoadFilters: true})
	require.NoError(t, err)
	bounds := simulator.BoundsFromLayout(rep.Layout(), "origin")
	require.Len(t, bounds, 3)
	require.NotNil(t, bounds[0].Filter)

	a, err := simulator.Analyze(bounds, []any{"a"}, simulator.DefaultThresholds)
	require.NoError(t, err)
	require.Equal(t, 0, a.Overlaps.Overlaps)
	require.Equal(t, 1, a.Fetches[0].Fetched)
	require.Equal(t, 2, a.Fetches[0].Skipped)
}

func TestSimulateFloatLookup(t *testing.T) {
	floatSchema := []table.Column{{Name: "score", Type: parquet.Type_FLOAT}}
	path := filepath.Join(t.TempDir(), "scores.parquet")
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	w, err := parquet_accumulator.NewWriter(fw, floatSchema, parquet_accumulator.WriterOptions{Codec: parquet.CompressionCodec_SNAPPY})
	require.NoError(t, err)
	for _, v := range []float32{0.1, 0.7} {
		idx, err := w.WritePartition([]table.Row{{v}})
		require.NoError(t, err)
		f, _, err := bloom.Build([]any{v}, 0.01)
		require.NoError(t, err)
		require.NoError(t, w.AttachFilter("score", idx, f))
	}
	require.NoError(t, w.Close())
	require.NoError(t, fw.Close())

	// 0.1 has no exact float32 form, the lookup has to round the same way
	rep, a, err := Simulate(context.Background(), datastore.NewDataStore(), path, SimulateOptions{
		Column:     "score",
		Value:      "0.1",
		Thresholds: simulator.DefaultThresholds,
	})
	require.NoError(t, err)
	require.Equal(t, float32(0.1), rep.Partitions[0].Stats.Min)
	require.Len(t, a.Fetches, 1)
	require.Equal(t, 1, a.Fetches[0].Fetched)
	require.Equal(t, 1, a.Fetches[0].Skipped)
	require.Equal(t, 0, a.Fetches[0].FilterSkipped)
	require.Equal(t, []int{0}, a.Fetches[0].FetchedIndexes)
}
