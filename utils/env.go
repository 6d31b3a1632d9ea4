package utils

import "os"

var (
	AWS_ACCESS_KEY_ID     = os.Getenv("AWS_ACCESS_KEY_ID")
	AWS_SECRET_ACCESS_KEY = os.Getenv("AWS_SECRET_ACCESS_KEY")
	AWS_DEFAULT_REGION    = GetEnvOrDefault("AWS_DEFAULT_REGION", "us-east-1")

	S3_BUCKET_NAME = os.Getenv("S3_BUCKET_NAME")
	S3_ENDPOINT    = os.Getenv("S3_ENDPOINT")

	QUERY_KEY_COLUMN         = GetEnvOrDefault("QUERY_KEY_COLUMN", "origin")
	MAX_ROWS_PER_OUTPUT_FILE = GetEnvOrDefaultInt("MAX_ROWS_PER_OUTPUT_FILE", 10_000_000)
	MAX_ROWS_PER_PARTITION   = GetEnvOrDefaultInt("MAX_ROWS_PER_PARTITION", 100_000)
	FILTER_FPP               = GetEnvOrDefaultFloat("FILTER_FPP", 0.01)
	COMPRESSION_CODEC        = GetEnvOrDefault("COMPRESSION_CODEC", "zstd")
	DICTIONARY_ENCODING      = GetEnvOrDefaultBool("DICTIONARY_ENCODING", true)
	WORKERS                  = GetEnvOrDefaultInt("WORKERS", 1)

	CRDB_DSN  = os.Getenv("CRDB_DSN")
	HTTP_PORT = GetEnvOrDefault("HTTP_PORT", "8080")
	// DATA_ROOT confines the paths HTTP requests may read and write
	DATA_ROOT = GetEnvOrDefault("DATA_ROOT", ".")
)
