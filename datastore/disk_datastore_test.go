package datastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/stretchr/testify/require"
)

func TestResolveInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.parquet", "a.parquet", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := ResolveInputs(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.parquet"), filepath.Join(dir, "b.parquet")}, files)

	files, err = ResolveInputs(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	_, err = ResolveInputs(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, utils.ErrFileNotFound)

	_, err = ResolveInputs(t.TempDir())
	require.ErrorIs(t, err, ErrNoParquetFiles)

	files, err = ResolveInputs("s3://bucket/key.parquet")
	require.NoError(t, err)
	require.Equal(t, []string{"s3://bucket/key.parquet"}, files)
}

func TestOpenFileMissing(t *testing.T) {
	_, _, err := NewDiskDataStore().OpenFile(context.Background(), filepath.Join(t.TempDir(), "nope.parquet"))
	require.ErrorIs(t, err, utils.ErrFileNotFound)

	_, _, err = NewDiskDataStore().OpenFile(context.Background(), t.TempDir())
	require.ErrorIs(t, err, utils.ErrUnreadableFile)
}

func TestAtomicFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out", "0.parquet")

	af, err := NewDiskDataStore().CreateAtomic(target)
	require.NoError(t, err)
	_, err = af.Write([]byte("PAR1"))
	require.NoError(t, err)

	_, err = os.Stat(target)
	require.True(t, os.IsNotExist(err), "target visible before commit")

	require.NoError(t, af.Commit())
	b, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "PAR1", string(b))

	aborted, err := NewDiskDataStore().CreateAtomic(filepath.Join(dir, "out", "1.parquet"))
	require.NoError(t, err)
	aborted.Abort()

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestConfine(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Mkdir(filepath.Join(root, "data"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "data"), filepath.Join(root, "alias")))

	for _, tc := range []struct {
		path string
		want string
	}{
		{"a.parquet", filepath.Join(root, "a.parquet")},
		{"data/../b.parquet", filepath.Join(root, "b.parquet")},
		{filepath.Join(root, "new", "dir"), filepath.Join(root, "new", "dir")},
		{"alias/c.parquet", filepath.Join(root, "alias", "c.parquet")},
		{".", root},
		{"s3://bucket/key.parquet", "s3://bucket/key.parquet"},
	} {
		got, err := Confine(root, tc.path)
		require.NoError(t, err, tc.path)
		require.Equal(t, tc.want, got, tc.path)
	}

	for _, path := range []string{
		"..",
		"../x.parquet",
		outside,
		"/",
		"escape",
		"escape/not/yet/created",
	} {
		_, err := Confine(root, path)
		require.ErrorIs(t, err, utils.ErrPathOutsideRoot, path)
	}

	got, err := Confine("", "/anywhere")
	require.NoError(t, err)
	require.Equal(t, "/anywhere", got)
}
