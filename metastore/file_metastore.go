package metastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const ManifestName = "_layout_manifest.json"

type (
	// FileMetaStore keeps the manifest in memory and writes it next to the
	// output files on Shutdown.
	FileMetaStore struct {
		path string

		mu       sync.Mutex
		manifest Manifest
		dirty    bool
	}
)

// NewFileMetaStore loads dir's manifest if one exists, so reruns into the same
// directory keep entries for files they did not rewrite.
func NewFileMetaStore(ctx context.Context, dir string) (*FileMetaStore, error) {
	logger := zerolog.Ctx(ctx)
	fms := &FileMetaStore{path: filepath.Join(dir, ManifestName)}
	b, err := os.ReadFile(fms.path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug().Str("path", fms.path).Msg("starting new manifest")
		return fms, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error in os.ReadFile: %w", err)
	}
	if err := json.Unmarshal(b, &fms.manifest); err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal for %s: %s %w", fms.path, err.Error(), utils.ErrUnreadableFile)
	}
	logger.Debug().Str("path", fms.path).Int("files", len(fms.manifest.Files)).Msg("loaded manifest")
	return fms, nil
}

// Location is the manifest path.
func (fms *FileMetaStore) Location() string {
	return fms.path
}

func (fms *FileMetaStore) RecordFile(_ context.Context, entry FileEntry) error {
	fms.mu.Lock()
	defer fms.mu.Unlock()
	fms.dirty = true
	for i := range fms.manifest.Files {
		if fms.manifest.Files[i].Name == entry.Name {
			fms.manifest.Files[i] = entry
			return nil
		}
	}
	fms.manifest.Files = append(fms.manifest.Files, entry)
	return nil
}

func (fms *FileMetaStore) ListFiles(_ context.Context) ([]FileEntry, error) {
	fms.mu.Lock()
	defer fms.mu.Unlock()
	files := make([]FileEntry, len(fms.manifest.Files))
	copy(files, fms.manifest.Files)
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// Shutdown writes the manifest if anything was recorded.
func (fms *FileMetaStore) Shutdown(ctx context.Context) error {
	fms.mu.Lock()
	defer fms.mu.Unlock()
	if !fms.dirty {
		return nil
	}
	sort.Slice(fms.manifest.Files, func(i, j int) bool {
		return fms.manifest.Files[i].Name < fms.manifest.Files[j].Name
	})
	fms.manifest.UpdatedAt = time.Now().UTC()
	b, err := json.MarshalIndent(fms.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("error in json.MarshalIndent: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%s.tmp", fms.path, uuid.NewString())
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("error in os.WriteFile: %s %w", err.Error(), utils.ErrWriteFailure)
	}
	if err := os.Rename(tmpPath, fms.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("error in os.Rename: %s %w", err.Error(), utils.ErrWriteFailure)
	}
	fms.dirty = false
	zerolog.Ctx(ctx).Debug().Str("path", fms.path).Int("files", len(fms.manifest.Files)).Msg("wrote manifest")
	return nil
}

var _ MetaStore = &FileMetaStore{}
