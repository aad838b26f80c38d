// Package warehouse archives collected events as Parquet files on S3.
package warehouse

import (
	"time"
)

// Config holds warehouse sink configuration.
type Config struct {
	// S3 configuration
	S3 S3Config `envPrefix:"S3_"`

	// Batching configuration
	Batch BatchConfig `envPrefix:"BATCH_"`

	// Parquet configuration
	Parquet ParquetConfig `envPrefix:"PARQUET_"`

	// ShutdownTimeout bounds how long Stop waits for fetch workers before
	// the final flush.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"60s"`
}

// S3Config holds S3/MinIO configuration.
type S3Config struct {
	// Endpoint is the S3 endpoint URL (e.g., "http://localhost:9000" for MinIO)
	Endpoint string `env:"ENDPOINT" envDefault:"http://localhost:9000"`

	Region string `env:"REGION" envDefault:"us-east-1"`
	Bucket string `env:"BUCKET" envDefault:"moveo-events"`

	AccessKeyID     string `env:"ACCESS_KEY_ID" envDefault:"minioadmin"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" envDefault:"minioadmin"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `env:"USE_PATH_STYLE" envDefault:"true"`

	// Prefix is the key prefix for all objects
	Prefix string `env:"PREFIX" envDefault:"events"`
}

// BatchConfig holds event batching configuration.
type BatchConfig struct {
	// MaxEvents flushes the batch once this many events are buffered.
	MaxEvents int `env:"MAX_EVENTS" envDefault:"10000"`

	// FlushInterval is the maximum time to wait before flushing a batch
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"5m"`

	// WorkerCount is the number of concurrent fetch workers.
	WorkerCount int `env:"WORKER_COUNT" envDefault:"2"`

	// FetchBatchSize is the number of messages pulled per fetch.
	FetchBatchSize int `env:"FETCH_BATCH_SIZE" envDefault:"100"`
}

// ParquetConfig holds Parquet writer configuration.
type ParquetConfig struct {
	// Compression is the compression codec (snappy, gzip, zstd, none)
	Compression string `env:"COMPRESSION" envDefault:"snappy"`
}
