package metastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/danthegoodman1/parquetlayout/crdb"
	"github.com/danthegoodman1/parquetlayout/migrations"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/stretchr/testify/require"
)

func TestKeyBoundsJSONB(t *testing.T) {
	j, err := toJSONB(nil)
	require.NoError(t, err)
	require.Equal(t, pgtype.Null, j.Status)
	v, err := fromJSONB(j)
	require.NoError(t, err)
	require.Nil(t, v)

	j, err = toJSONB("https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, pgtype.Present, j.Status)
	v, err = fromJSONB(j)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a", v)

	j, err = toJSONB(int64(42))
	require.NoError(t, err)
	v, err = fromJSONB(j)
	require.NoError(t, err)
	require.Equal(t, float64(42), v)

	_, err = fromJSONB(pgtype.JSONB{Bytes: []byte("{"), Status: pgtype.Present})
	require.True(t, errors.Is(err, utils.ErrUnreadableFile))
}

func TestClassify(t *testing.T) {
	err := classify(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: codeUndefinedTable, Message: `relation "layout_files" does not exist`}))
	require.True(t, errors.Is(err, ErrCatalogNotMigrated))

	other := &pgconn.PgError{Code: "40001"}
	require.Equal(t, error(other), classify(other))
	require.Nil(t, classify(nil))
}

func TestCRDBMetaStore(t *testing.T) {
	dsn := os.Getenv("CRDB_DSN")
	if dsn == "" {
		t.Skip("CRDB_DSN not set")
	}
	ctx := context.Background()
	_, err := migrations.RunMigrations(dsn)
	require.NoError(t, err)
	pool, err := crdb.ConnectToDB(ctx, dsn)
	require.NoError(t, err)

	ns := utils.GenKSortedID("test_")
	cms := NewCRDBMetaStore(pool, ns)
	defer cms.Shutdown(ctx)
	require.Equal(t, "layout_files/"+ns, cms.Location())

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, cms.RecordFile(ctx, FileEntry{Name: "b.parquet", Source: "in/b.parquet", Rows: 2, Partitions: 1, Bytes: 100, KeyColumn: "origin", KeyMin: "m", KeyMax: "z", RunID: "run_1", CreatedAt: now}))
	require.NoError(t, cms.RecordFile(ctx, FileEntry{Name: "a.parquet", Source: "in/a.parquet", Rows: 3, Partitions: 2, Bytes: 200, KeyColumn: "origin", KeyMin: "a", KeyMax: "l", RunID: "run_1", CreatedAt: now}))
	require.NoError(t, cms.RecordFile(ctx, FileEntry{Name: "b.parquet", Source: "in/b.parquet", Rows: 5, Partitions: 3, Bytes: 300, KeyColumn: "origin", RunID: "run_2", CreatedAt: now}))

	files, err := cms.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "a.parquet", files[0].Name)
	require.Equal(t, "a", files[0].KeyMin)
	require.Equal(t, "b.parquet", files[1].Name)
	require.EqualValues(t, 5, files[1].Rows)
	require.Nil(t, files[1].KeyMin)
	require.Equal(t, "run_2", files[1].RunID)
	require.True(t, now.Equal(files[1].CreatedAt))
}
