package datastore

import (
	"context"
	"fmt"
	"sync"

	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/danthegoodman1/parquetlayout/s3_helper"
	"github.com/danthegoodman1/parquetlayout/utils"
	s3_pq "github.com/xitongsys/parquet-go-source/s3"
	"github.com/xitongsys/parquet-go/source"
)

type (
	S3DataStore struct {
		once   sync.Once
		client *awss3.S3
		err    error
	}
)

func (sds *S3DataStore) getClient() (*awss3.S3, error) {
	sds.once.Do(func() {
		sds.client, sds.err = s3_helper.NewClient()
	})
	return sds.client, sds.err
}

func (sds *S3DataStore) OpenFile(ctx context.Context, path string) (source.ParquetFile, int64, error) {
	bucket, key, err := s3_helper.ParseURL(path)
	if err != nil {
		return nil, 0, fmt.Errorf("error in ParseURL: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	client, err := sds.getClient()
	if err != nil {
		return nil, 0, fmt.Errorf("error creating s3 client: %w", err)
	}

	size, err := s3_helper.ObjectSize(ctx, client, bucket, key)
	if err != nil {
		return nil, 0, err
	}

	logger.Debug().Str("bucket", bucket).Str("key", key).Int64("size", size).Msg("opening s3 object")
	r, err := s3_pq.NewS3FileReaderWithParams(ctx, s3_pq.S3FileReaderParams{
		Bucket:   bucket,
		Key:      key,
		S3Client: client,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("error creating new s3 file reader: %s %w", err.Error(), utils.ErrUnreadableFile)
	}
	return r, size, nil
}
