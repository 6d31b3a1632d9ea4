package parquet_accumulator

import (
	"path/filepath"
	"testing"

	"github.com/danthegoodman1/parquetlayout/bloom"
	"github.com/danthegoodman1/parquetlayout/table"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
)

var testSchema = []table.Column{
	{Name: "origin", Type: parquet.Type_BYTE_ARRAY, ConvertedType: parquet.ConvertedTypePtr(parquet.ConvertedType_UTF8)},
	{Name: "hits", Type: parquet.Type_INT64},
	{Name: "score", Type: parquet.Type_DOUBLE},
}

func TestSchemaTags(t *testing.T) {
	a := NewParquetAccumulator(true)
	for _, col := range testSchema {
		a.WriteColumn(col)
	}
	a.WriteColumn(testSchema[0])
	a.WriteColumn(table.Column{Name: "ok", Type: parquet.Type_BOOLEAN})
	a.WriteColumn(table.Column{
		Name:          "price",
		Type:          parquet.Type_FIXED_LEN_BYTE_ARRAY,
		ConvertedType: parquet.ConvertedTypePtr(parquet.ConvertedType_DECIMAL),
		Scale:         utils.Ptr[int32](2),
		Precision:     utils.Ptr[int32](9),
		Length:        utils.Ptr[int32](4),
	})

	require.Equal(t, []string{"origin", "hits", "score", "ok", "price"}, a.GetColumnNames())
	require.Equal(t, []string{
		"name=origin, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL",
		"name=hits, type=INT64, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL",
		"name=score, type=DOUBLE, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL",
		"name=ok, type=BOOLEAN, encoding=PLAIN, repetitiontype=OPTIONAL",
		"name=price, type=FIXED_LEN_BYTE_ARRAY, convertedtype=DECIMAL, scale=2, precision=9, length=4, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL",
	}, a.GetMetadata())

	plain := NewParquetAccumulator(false)
	plain.WriteColumn(testSchema[1])
	require.Equal(t, []string{"name=hits, type=INT64, encoding=PLAIN, repetitiontype=OPTIONAL"}, plain.GetMetadata())
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("zstd")
	require.NoError(t, err)
	require.Equal(t, parquet.CompressionCodec_ZSTD, c)

	c, err = ParseCodec("Snappy")
	require.NoError(t, err)
	require.Equal(t, parquet.CompressionCodec_SNAPPY, c)

	_, err = ParseCodec("lzo")
	require.Error(t, err)
	_, err = ParseCodec("nope")
	require.Error(t, err)
}

func TestFilterKey(t *testing.T) {
	key := FilterKey("a.b", 12)
	require.Equal(t, "parquetlayout.bloom.a.b.12", key)

	col, rg, ok := ParseFilterKey(key)
	require.True(t, ok)
	require.Equal(t, "a.b", col)
	require.Equal(t, 12, rg)

	for _, bad := range []string{"other.key", "parquetlayout.bloom.", "parquetlayout.bloom.col.x", "parquetlayout.bloom..3"} {
		_, _, ok = ParseFilterKey(bad)
		require.False(t, ok, bad)
	}
}

func writeTestFile(t *testing.T, path string, partitions [][]table.Row) {
	t.Helper()
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	w, err := NewWriter(fw, testSchema, WriterOptions{Codec: parquet.CompressionCodec_ZSTD, Dictionary: true})
	require.NoError(t, err)
	for i, rows := range partitions {
		keys := make([]any, 0, len(rows))
		for _, r := range rows {
			keys = append(keys, r[0])
		}
		f, _, err := bloom.Build(keys, 0.01)
		require.NoError(t, err)

		idx, err := w.WritePartition(rows)
		require.NoError(t, err)
		require.Equal(t, i, idx)
		require.NoError(t, w.AttachFilter("origin", idx, f))
	}
	require.Equal(t, len(partitions), w.RowGroups())
	require.NoError(t, w.Close())
	require.NoError(t, fw.Close())
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	partitions := [][]table.Row{
		{{"a", int64(1), 0.5}, {"a", int64(2), nil}, {"b", nil, 1.5}},
		{{"c", int64(3), 2.5}, {"d", int(4), float32(3.5)}},
		{{nil, int64(5), 4.5}},
	}
	writeTestFile(t, path, partitions)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	footer, err := ReadFooter(fr)
	require.NoError(t, err)
	require.Equal(t, CreatedBy, footer.GetCreatedBy())
	require.Len(t, footer.RowGroups, 3)
	require.Equal(t, int64(3), footer.RowGroups[0].NumRows)
	require.Equal(t, int64(2), footer.RowGroups[1].NumRows)
	require.Equal(t, int64(1), footer.RowGroups[2].NumRows)

	cols, flat, err := LeafColumns(footer)
	require.NoError(t, err)
	require.True(t, flat)
	require.Len(t, cols, 3)
	require.Equal(t, "origin", cols[0].Name)
	require.Equal(t, parquet.Type_INT64, cols[1].Type)

	st := ChunkStats(ChunkByName(footer.RowGroups[1], "origin"))
	require.True(t, st.HasBounds())
	require.Equal(t, "c", st.Min)
	require.Equal(t, "d", st.Max)

	st = ChunkStats(ChunkByName(footer.RowGroups[0], "hits"))
	require.True(t, st.HasBounds())
	require.Equal(t, int64(1), st.Min)
	require.Equal(t, int64(2), st.Max)
	require.Equal(t, int64(1), st.NullCount)
	require.Equal(t, int64(2), *st.DistinctCount)

	// partly null chunks count their nulls too
	st = ChunkStats(ChunkByName(footer.RowGroups[0], "score"))
	require.Equal(t, int64(1), st.NullCount)
	require.Equal(t, int64(2), *st.DistinctCount)
	st = ChunkStats(ChunkByName(footer.RowGroups[2], "origin"))
	require.Equal(t, int64(1), st.NullCount)
	require.Equal(t, int64(0), *st.DistinctCount)

	// all-null key in the last partition has no bounds
	require.False(t, ChunkStats(ChunkByName(footer.RowGroups[2], "origin")).HasBounds())
	require.Nil(t, ChunkByName(footer.RowGroups[0], "missing"))

	require.Equal(t, []string{"origin"}, FilterColumns(footer))
	filters := ReadFilters(footer, "origin")
	require.Len(t, filters, 3)
	ok, err := filters[1].Test("c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, ReadFilters(footer, "hits"))

	fr2, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr2.Close()
	tbl, err := ReadTable(fr2)
	require.NoError(t, err)
	require.Equal(t, 6, tbl.NumRows())
	require.Equal(t, table.Row{"a", int64(1), 0.5}, tbl.Rows[0])
	require.Equal(t, table.Row{"a", int64(2), nil}, tbl.Rows[1])
	require.Equal(t, table.Row{"d", int64(4), 3.5}, tbl.Rows[4])
	require.Equal(t, table.Row{nil, int64(5), 4.5}, tbl.Rows[5])
}

func TestWritePartitionRejectsBadValues(t *testing.T) {
	fw, err := local.NewLocalFileWriter(filepath.Join(t.TempDir(), "bad.parquet"))
	require.NoError(t, err)
	defer fw.Close()
	w, err := NewWriter(fw, testSchema, WriterOptions{Codec: parquet.CompressionCodec_SNAPPY})
	require.NoError(t, err)

	_, err = w.WritePartition([]table.Row{{"a", "not a number", 1.0}})
	require.ErrorIs(t, err, utils.ErrWriteFailure)

	_, err = w.WritePartition([]table.Row{{"a"}})
	require.ErrorIs(t, err, utils.ErrWriteFailure)
}

func TestReadFooterGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.parquet")
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	_, err = fw.Write([]byte("this is not a parquet file at all"))
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	_, err = ReadFooter(fr)
	require.ErrorIs(t, err, utils.ErrUnreadableFile)
}

func TestDecodeStatistic(t *testing.T) {
	v, err := DecodeStatistic(parquet.Type_INT32, []byte{0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	require.Equal(t, int32(-1), v)

	v, err = DecodeStatistic(parquet.Type_BOOLEAN, []byte{1})
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = DecodeStatistic(parquet.Type_BYTE_ARRAY, []byte("abc"))
	require.NoError(t, err)
	require.Equal(t, "abc", v)

	_, err = DecodeStatistic(parquet.Type_INT64, []byte{1, 2})
	require.Error(t, err)
}

func TestLogicalTypeTags(t *testing.T) {
	nanos := &parquet.LogicalType{TIMESTAMP: &parquet.TimestampType{
		IsAdjustedToUTC: false,
		Unit:            &parquet.TimeUnit{NANOS: parquet.NewNanoSeconds()},
	}}
	require.Equal(t, []string{
		"logicaltype=TIMESTAMP", "logicaltype.isadjustedtoutc=false", "logicaltype.unit=NANOS",
	}, logicalTypeTags(nanos))
	require.Equal(t, "TIMESTAMP(isadjustedtoutc=false,unit=NANOS)", LogicalTypeName(nanos))

	dec := &parquet.LogicalType{DECIMAL: &parquet.DecimalType{Precision: 9, Scale: 2}}
	require.Equal(t, "DECIMAL(precision=9,scale=2)", LogicalTypeName(dec))
	require.Equal(t, "STRING", LogicalTypeName(&parquet.LogicalType{STRING: parquet.NewStringType()}))
	require.Equal(t, "", LogicalTypeName(nil))
	require.Nil(t, logicalTypeTags(&parquet.LogicalType{TIME: &parquet.TimeType{}}))

	st := SchemaTag{Name: "ts", Type: "INT64", Encoding: "PLAIN", LogicalType: nanos, RepetitionType: Optional}
	require.Equal(t, "name=ts, type=INT64, logicaltype=TIMESTAMP, logicaltype.isadjustedtoutc=false, logicaltype.unit=NANOS, encoding=PLAIN, repetitiontype=OPTIONAL", st.ToTag())
}

func TestLogicalTypeRoundTrip(t *testing.T) {
	schema := []table.Column{
		{Name: "id", Type: parquet.Type_BYTE_ARRAY, ConvertedType: parquet.ConvertedTypePtr(parquet.ConvertedType_UTF8)},
		{Name: "ts", Type: parquet.Type_INT64, LogicalType: &parquet.LogicalType{TIMESTAMP: &parquet.TimestampType{
			IsAdjustedToUTC: true,
			Unit:            &parquet.TimeUnit{MICROS: parquet.NewMicroSeconds()},
		}}},
	}
	path := filepath.Join(t.TempDir(), "ts.parquet")
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	w, err := NewWriter(fw, schema, WriterOptions{Codec: parquet.CompressionCodec_SNAPPY})
	require.NoError(t, err)
	_, err = w.WritePartition([]table.Row{{"a", int64(1_700_000_000_000_000)}})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, fw.Close())

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	footer, err := ReadFooter(fr)
	require.NoError(t, err)
	cols, _, err := LeafColumns(footer)
	require.NoError(t, err)
	require.Nil(t, cols[1].ConvertedType)
	require.Equal(t, "TIMESTAMP(isadjustedtoutc=true,unit=MICROS)", LogicalTypeName(cols[1].LogicalType))
}

func TestSplitBlockFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sbbf.parquet")
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	w, err := NewWriter(fw, testSchema, WriterOptions{
		Codec:             parquet.CompressionCodec_ZSTD,
		Dictionary:        true,
		SplitBlockColumns: []string{"origin", "hits"},
		SplitBlockFPP:     0.01,
	})
	require.NoError(t, err)
	partitions := [][]table.Row{
		{{"a", int64(1), 0.5}, {"b", int64(2), nil}},
		{{"c", nil, 2.5}, {nil, int64(4), 3.5}},
	}
	for _, rows := range partitions {
		_, err := w.WritePartition(rows)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, fw.Close())

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	footer, err := ReadFooter(fr)
	require.NoError(t, err)
	require.Equal(t, []string{"hits", "origin"}, SplitBlockColumns(footer))
	require.Empty(t, FilterColumns(footer))

	check := func(rg int, column string, v any) bool {
		sb, err := ReadSplitBlock(fr, ChunkByName(footer.RowGroups[rg], column))
		require.NoError(t, err)
		require.NotNil(t, sb)
		ok, err := sb.Check(v)
		require.NoError(t, err)
		return ok
	}
	require.True(t, check(0, "origin", "a"))
	require.True(t, check(0, "origin", "b"))
	require.True(t, check(1, "origin", "c"))
	require.False(t, check(0, "origin", "c"))
	require.True(t, check(0, "hits", int64(2)))
	require.True(t, check(1, "hits", int64(4)))
	require.False(t, check(1, "hits", int64(1)))

	sb, err := ReadSplitBlock(fr, ChunkByName(footer.RowGroups[0], "score"))
	require.NoError(t, err)
	require.Nil(t, sb)

	// row data is untouched by the filters written after it
	fr2, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr2.Close()
	tbl, err := ReadTable(fr2)
	require.NoError(t, err)
	require.Equal(t, table.Row{"c", nil, 2.5}, tbl.Rows[2])
}

func TestSplitBlockColumnErrors(t *testing.T) {
	fw, err := local.NewLocalFileWriter(filepath.Join(t.TempDir(), "bad.parquet"))
	require.NoError(t, err)
	defer fw.Close()

	_, err = NewWriter(fw, testSchema, WriterOptions{SplitBlockColumns: []string{"missing"}})
	var notFound *utils.ColumnNotFoundError
	require.ErrorAs(t, err, &notFound)

	schema := append([]table.Column{{Name: "ok", Type: parquet.Type_BOOLEAN}}, testSchema...)
	_, err = NewWriter(fw, schema, WriterOptions{SplitBlockColumns: []string{"ok"}})
	require.ErrorIs(t, err, utils.ErrIncomparableKeyType)
}

func TestAttachFilterKeepsCause(t *testing.T) {
	fw, err := local.NewLocalFileWriter(filepath.Join(t.TempDir(), "empty-filter.parquet"))
	require.NoError(t, err)
	defer fw.Close()
	w, err := NewWriter(fw, testSchema, WriterOptions{Codec: parquet.CompressionCodec_SNAPPY})
	require.NoError(t, err)

	err = w.AttachFilter("origin", 0, &bloom.Filter{})
	require.ErrorIs(t, err, bloom.ErrEmptyFilter)
	require.ErrorIs(t, err, utils.ErrWriteFailure)

	err = w.AttachFilter("origin", 0, nil)
	require.ErrorIs(t, err, bloom.ErrEmptyFilter)
}
