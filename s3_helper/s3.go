package s3_helper

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/danthegoodman1/parquetlayout/gologger"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/rs/zerolog"
)

const Scheme = "s3://"

var (
	logger = gologger.NewLogger()
)

func newSession() (*session.Session, error) {
	s3Config := &aws.Config{
		Region:      aws.String(utils.AWS_DEFAULT_REGION),
		Credentials: credentials.NewEnvCredentials(),
	}
	if utils.S3_ENDPOINT != "" {
		s3Config.Endpoint = aws.String(utils.S3_ENDPOINT)
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}

	s3Session, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}
	return s3Session, nil
}

func NewClient() (*s3.S3, error) {
	sess, err := newSession()
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

// ParseURL splits s3://bucket/key.
func ParseURL(u string) (bucket, key string, err error) {
	if !strings.HasPrefix(u, Scheme) {
		return "", "", fmt.Errorf("not an s3 url: %s", u)
	}
	bucket, key, found := strings.Cut(strings.TrimPrefix(u, Scheme), "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url must be s3://bucket/key: %s", u)
	}
	return bucket, key, nil
}

// ObjectSize returns utils.ErrFileNotFound when the object does not exist.
func ObjectSize(ctx context.Context, client *s3.S3, bucket, key string) (int64, error) {
	out, err := client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
			return 0, fmt.Errorf("s3://%s/%s: %w", bucket, key, utils.ErrFileNotFound)
		}
		return 0, fmt.Errorf("error in HeadObject: %w", err)
	}
	return aws.Int64Value(out.ContentLength), nil
}

// ParsePrefix accepts s3://bucket/prefix or a bare key prefix in S3_BUCKET_NAME.
func ParsePrefix(p string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(p, Scheme) {
		if utils.S3_BUCKET_NAME == "" {
			return "", "", fmt.Errorf("publish prefix %q has no bucket and S3_BUCKET_NAME is not set", p)
		}
		return utils.S3_BUCKET_NAME, strings.TrimPrefix(p, "/"), nil
	}
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(p, Scheme), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 prefix must be s3://bucket/prefix: %s", p)
	}
	return bucket, prefix, nil
}

// WriteBytesToS3 uploads to bucket, or S3_BUCKET_NAME when bucket is empty.
func WriteBytesToS3(ctx context.Context, bucket, fileName string, byteStream io.Reader, contentType *string) (*s3manager.UploadOutput, error) {
	if bucket == "" {
		bucket = utils.S3_BUCKET_NAME
	}

	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	s3Session, err := newSession()
	if err != nil {
		return nil, err
	}

	uploader := s3manager.NewUploader(s3Session)

	input := &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(fileName),
		Body:        byteStream,
		ContentType: contentType,
	}

	s := time.Now()
	output, err := uploader.UploadWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error uploading to s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("bucket", bucket).Str("fileName", fileName).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("uploaded file to s3")

	return output, nil
}
