// Package nats provides NATS JetStream integration: the connection, stream
// and consumer management, and the envelope publisher.
package nats

import (
	"time"
)

// Config holds NATS connection and stream configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	// Name is the client connection name for monitoring
	Name string `env:"NATS_CLIENT_NAME" envDefault:"moveo-collector"`

	// Token authenticates with a NATS server token, if set
	Token string `env:"NATS_TOKEN"`

	// CredsFile is a NATS credentials file, if set
	CredsFile string `env:"NATS_CREDS_FILE"`

	// MaxReconnects is the maximum number of reconnection attempts
	MaxReconnects int `env:"NATS_MAX_RECONNECTS" envDefault:"60"`

	// ReconnectWait is the time to wait between reconnection attempts
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`

	// Timeout is the connection timeout
	Timeout time.Duration `env:"NATS_TIMEOUT" envDefault:"5s"`

	// PublishTimeout bounds waiting for acks of one published batch
	PublishTimeout time.Duration `env:"NATS_PUBLISH_TIMEOUT" envDefault:"5s"`

	// Stream configuration
	Stream StreamConfig `envPrefix:"NATS_STREAM_"`
}

// StreamConfig holds JetStream stream configuration.
type StreamConfig struct {
	// Name is the stream name
	Name string `env:"NAME" envDefault:"MOVEO_EVENTS"`

	// Subjects are the subjects to capture
	Subjects []string `env:"SUBJECTS" envDefault:"events.>"`

	// MaxAge is the maximum age of messages in the stream
	MaxAge time.Duration `env:"MAX_AGE" envDefault:"168h"` // 7 days

	// MaxBytes is the maximum size of the stream in bytes
	MaxBytes int64 `env:"MAX_BYTES" envDefault:"1073741824"` // 1GB

	// Replicas is the number of replicas for the stream
	Replicas int `env:"REPLICAS" envDefault:"1"`

	// Storage is the storage type (file or memory)
	Storage string `env:"STORAGE" envDefault:"file"`

	// DuplicateWindow is JetStream's Nats-Msg-Id dedup window. Envelopes
	// are published with their fingerprint as message id.
	DuplicateWindow time.Duration `env:"DUPLICATE_WINDOW" envDefault:"2m"`

	// DLQStreamName holds messages the warehouse sink could not decode
	DLQStreamName string `env:"DLQ_NAME" envDefault:"MOVEO_DLQ"`

	// DLQMaxAge is how long dead-lettered messages are kept
	DLQMaxAge time.Duration `env:"DLQ_MAX_AGE" envDefault:"720h"` // 30 days
}

// DLQSubjectPrefix prefixes subjects in the dead-letter stream.
const DLQSubjectPrefix = "dlq."

// ConsumerConfig holds JetStream consumer configuration.
type ConsumerConfig struct {
	// Name is the consumer durable name
	Name string

	// FilterSubject is the subject filter for the consumer
	FilterSubject string

	// AckWait is the time to wait for acknowledgment
	AckWait time.Duration

	// MaxAckPending is the maximum number of pending acknowledgments
	MaxAckPending int

	// MaxDeliver is the maximum number of delivery attempts
	MaxDeliver int
}

// WarehouseConsumerName is the durable consumer of the warehouse sink.
const WarehouseConsumerName = "warehouse-sink"

// DefaultConsumerConfigs returns the consumers the collector creates.
func DefaultConsumerConfigs() []ConsumerConfig {
	return []ConsumerConfig{
		{
			Name:          WarehouseConsumerName,
			FilterSubject: "events.>",
			AckWait:       30 * time.Second,
			MaxAckPending: 10000,
			MaxDeliver:    5,
		},
	}
}
