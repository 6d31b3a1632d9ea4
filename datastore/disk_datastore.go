package datastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danthegoodman1/parquetlayout/s3_helper"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
)

type (
	DiskDataStore struct{}

	// AtomicFile is written under a temporary name and only appears at Path
	// once Commit succeeds.
	AtomicFile struct {
		source.ParquetFile
		Path    string
		tmpPath string
		closed  bool
	}
)

var (
	ErrNoParquetFiles = errors.New("no .parquet files found")
)

func NewDiskDataStore() *DiskDataStore {
	return &DiskDataStore{}
}

func (dds *DiskDataStore) OpenFile(_ context.Context, path string) (source.ParquetFile, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%s: %w", path, utils.ErrFileNotFound)
		}
		return nil, 0, fmt.Errorf("error in os.Stat: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("%s is a directory: %w", path, utils.ErrUnreadableFile)
	}
	f, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, 0, fmt.Errorf("error in NewLocalFileReader: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	return f, info.Size(), nil
}

// CreateAtomic opens a temp file next to path.
func (dds *DiskDataStore) CreateAtomic(path string) (*AtomicFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error in os.MkdirAll: %s %w", err.Error(), utils.ErrWriteFailure)
	}
	tmpPath := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	f, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("error in NewLocalFileWriter: %s %w", err.Error(), utils.ErrWriteFailure)
	}
	return &AtomicFile{ParquetFile: f, Path: path, tmpPath: tmpPath}, nil
}

func (af *AtomicFile) Commit() error {
	if !af.closed {
		af.closed = true
		if err := af.ParquetFile.Close(); err != nil {
			_ = os.Remove(af.tmpPath)
			return fmt.Errorf("error closing %s: %s %w", af.tmpPath, err.Error(), utils.ErrWriteFailure)
		}
	}
	if err := os.Rename(af.tmpPath, af.Path); err != nil {
		_ = os.Remove(af.tmpPath)
		return fmt.Errorf("error in os.Rename: %s %w", err.Error(), utils.ErrWriteFailure)
	}
	return nil
}

// Abort discards the temp file. Safe to call after Commit.
func (af *AtomicFile) Abort() {
	if !af.closed {
		af.closed = true
		_ = af.ParquetFile.Close()
	}
	_ = os.Remove(af.tmpPath)
}

// ListParquetFiles returns the *.parquet files directly under dir, sorted by name.
func ListParquetFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, utils.ErrFileNotFound)
		}
		return nil, fmt.Errorf("error in os.ReadDir: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ParquetExt) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ResolveInputs expands a file-or-directory argument. A directory without
// parquet files is ErrNoParquetFiles.
func ResolveInputs(path string) ([]string, error) {
	if strings.HasPrefix(path, s3_helper.Scheme) {
		return []string{path}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, utils.ErrFileNotFound)
		}
		return nil, fmt.Errorf("error in os.Stat: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := ListParquetFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoParquetFiles)
	}
	return files, nil
}

// Confine resolves path against root and rejects anything that lands outside
// it, following symlinks in the part of the path that exists. Relative paths
// are taken from root. An empty root and s3:// paths pass through unchanged.
func Confine(root, path string) (string, error) {
	if root == "" || strings.HasPrefix(path, s3_helper.Scheme) {
		return path, nil
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("error in filepath.Abs: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	path = filepath.Clean(path)

	realRoot, err := evalExisting(absRoot)
	if err != nil {
		return "", err
	}
	realPath, err := evalExisting(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s: %w", path, absRoot, utils.ErrPathOutsideRoot)
	}
	return path, nil
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// appends the rest as is, so directories about to be created still resolve.
func evalExisting(path string) (string, error) {
	p := path
	var rest []string
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{real}, rest...)...), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("error in filepath.EvalSymlinks: %s %w", err.Error(), utils.ErrUnreadableFile)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path, nil
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}
