package optimizer

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/danthegoodman1/parquetlayout/s3_helper"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/rs/zerolog"
)

type (
	// Publisher copies a finished output file somewhere remote.
	Publisher interface {
		Publish(ctx context.Context, localPath, name string) error
	}

	S3Publisher struct {
		Bucket  string
		Prefix  string
		Timeout time.Duration
	}
)

var parquetContentType = "application/vnd.apache.parquet"

func NewS3Publisher(prefix string, timeout time.Duration) (*S3Publisher, error) {
	bucket, keyPrefix, err := s3_helper.ParsePrefix(prefix)
	if err != nil {
		return nil, err
	}
	return &S3Publisher{Bucket: bucket, Prefix: keyPrefix, Timeout: timeout}, nil
}

func (p *S3Publisher) Key(name string) string {
	return path.Join(p.Prefix, name)
}

func (p *S3Publisher) Publish(ctx context.Context, localPath, name string) error {
	key := p.Key(name)
	err := utils.ReliableExec(ctx, p.Timeout, func(ctx context.Context) error {
		// reopen per attempt, a failed upload may have consumed the reader
		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("error in os.Open: %s %w", err.Error(), utils.ErrWriteFailure)
		}
		defer f.Close()
		_, err = s3_helper.WriteBytesToS3(ctx, p.Bucket, key, f, &parquetContentType)
		return err
	})
	if err != nil {
		return fmt.Errorf("error publishing %s to s3://%s/%s: %s %w", localPath, p.Bucket, key, err.Error(), utils.ErrWriteFailure)
	}
	zerolog.Ctx(ctx).Debug().Str("bucket", p.Bucket).Str("key", key).Msg("published output file")
	return nil
}
