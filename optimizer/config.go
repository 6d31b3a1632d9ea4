package optimizer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	// KeyColumn drives the sort order and is the only column given filters
	KeyColumn            string  `validate:"required"`
	MaxRowsPerOutputFile int     `validate:"gte=1"`
	MaxRowsPerPartition  int     `validate:"gte=1"`
	FilterFPP            float64 `validate:"gt=0,lt=1"`
	CompressionCodec     string  `validate:"oneof=uncompressed snappy gzip lz4 zstd"`
	Dictionary           bool
	Workers              int `validate:"gte=1,lte=256"`

	// PublishPrefix is s3://bucket/prefix or a key prefix in S3_BUCKET_NAME.
	// Empty disables publishing.
	PublishPrefix  string
	PublishTimeout time.Duration
}

var validate = validator.New()

// DefaultConfig reads the environment defaults.
func DefaultConfig() Config {
	return Config{
		KeyColumn:            utils.QUERY_KEY_COLUMN,
		MaxRowsPerOutputFile: int(utils.MAX_ROWS_PER_OUTPUT_FILE),
		MaxRowsPerPartition:  int(utils.MAX_ROWS_PER_PARTITION),
		FilterFPP:            utils.FILTER_FPP,
		CompressionCodec:     utils.COMPRESSION_CODEC,
		Dictionary:           utils.DICTIONARY_ENCODING,
		Workers:              int(utils.WORKERS),
		PublishTimeout:       time.Minute * 2,
	}
}

func (c *Config) Validate() error {
	c.CompressionCodec = strings.ToLower(c.CompressionCodec)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid optimizer config: %w", err)
	}
	return nil
}

// CatalogNamespace groups a run's entries in a shared catalog: the publish
// prefix when outputs are uploaded, the absolute output directory otherwise.
func (c Config) CatalogNamespace(outDir string) string {
	if c.PublishPrefix != "" {
		return c.PublishPrefix
	}
	if abs, err := filepath.Abs(outDir); err == nil {
		return abs
	}
	return filepath.Clean(outDir)
}
