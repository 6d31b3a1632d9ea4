package datastore

import (
	"context"
	"strings"

	"github.com/danthegoodman1/parquetlayout/gologger"
	"github.com/danthegoodman1/parquetlayout/s3_helper"
	"github.com/xitongsys/parquet-go/source"
)

const ParquetExt = ".parquet"

var (
	logger = gologger.NewLogger()
)

type (
	// DataStore opens parquet storage units for byte-range reads.
	DataStore interface {
		// OpenFile returns a reader positioned for footer access and the object size.
		OpenFile(ctx context.Context, path string) (source.ParquetFile, int64, error)
	}

	// MultiDataStore routes s3:// paths to S3 and everything else to disk.
	MultiDataStore struct {
		Disk *DiskDataStore
		S3   *S3DataStore
	}
)

// NewDataStore builds the default store. The S3 client is created lazily so
// local-only runs never need AWS configuration.
func NewDataStore() *MultiDataStore {
	return &MultiDataStore{
		Disk: NewDiskDataStore(),
		S3:   &S3DataStore{},
	}
}

func (m *MultiDataStore) OpenFile(ctx context.Context, path string) (source.ParquetFile, int64, error) {
	if strings.HasPrefix(path, s3_helper.Scheme) {
		return m.S3.OpenFile(ctx, path)
	}
	return m.Disk.OpenFile(ctx, path)
}

var _ DataStore = &MultiDataStore{}
