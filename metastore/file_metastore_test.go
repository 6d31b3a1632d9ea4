package metastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/stretchr/testify/require"
)

func TestFileMetaStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fms, err := NewFileMetaStore(ctx, dir)
	require.NoError(t, err)

	// nothing recorded, nothing written
	require.NoError(t, fms.Shutdown(ctx))
	_, err = os.Stat(fms.Location())
	require.True(t, os.IsNotExist(err))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, fms.RecordFile(ctx, FileEntry{Name: "b_1.parquet", Rows: 5, Partitions: 1, KeyColumn: "origin", KeyMin: "m", KeyMax: "z", CreatedAt: now}))
	require.NoError(t, fms.RecordFile(ctx, FileEntry{Name: "b_0.parquet", Rows: 10, Partitions: 2, KeyColumn: "origin", KeyMin: "a", KeyMax: "m", CreatedAt: now}))
	require.NoError(t, fms.Shutdown(ctx))

	reloaded, err := NewFileMetaStore(ctx, dir)
	require.NoError(t, err)
	files, err := reloaded.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "b_0.parquet", files[0].Name)
	require.Equal(t, "a", files[0].KeyMin)
	require.Equal(t, int64(10), files[0].Rows)
	require.True(t, now.Equal(files[0].CreatedAt))

	// rerun replaces by name and keeps the rest
	require.NoError(t, reloaded.RecordFile(ctx, FileEntry{Name: "b_1.parquet", Rows: 7}))
	require.NoError(t, reloaded.RecordFile(ctx, FileEntry{Name: "c.parquet", Rows: 1}))
	files, err = reloaded.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, int64(7), files[1].Rows)
	require.NoError(t, reloaded.Shutdown(ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp manifest left behind")
}

func TestFileMetaStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte("{not json"), 0o644))
	_, err := NewFileMetaStore(context.Background(), dir)
	require.ErrorIs(t, err, utils.ErrUnreadableFile)
}
