package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig configures a Kafka publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	// TopicPrefix is prepended to each logical topic, e.g. "podguard." gives
	// "podguard.security-alerts".
	TopicPrefix      string        `yaml:"topic_prefix"`
	BatchTimeout     time.Duration `yaml:"batch_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	Async            bool          `yaml:"async"`
	CompressionCodec string        `yaml:"compression"`
}

// Kafka publishes events to Kafka, one Kafka topic per logical Topic.
type Kafka struct {
	writer *kafka.Writer
	prefix string
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewKafka creates a Kafka publisher. No connection is made until the first
// publish.
func NewKafka(cfg KafkaConfig, logger *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	compression := kafka.Snappy
	switch strings.ToLower(cfg.CompressionCodec) {
	case "none":
		compression = 0
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "snappy", "":
	default:
		logger.Warn("unknown compression codec, defaulting to snappy",
			zap.String("codec", cfg.CompressionCodec))
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		Async:                  cfg.Async,
		Compression:            compression,
		AllowAutoTopicCreation: false,
	}

	logger.Info("Kafka alert publisher created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix))

	return &Kafka{writer: writer, prefix: cfg.TopicPrefix, logger: logger.Named("kafka-alert")}, nil
}

// TopicName returns the Kafka topic for a logical topic.
func (k *Kafka) TopicName(t Topic) string {
	return k.prefix + string(t)
}

// Publish writes e keyed by session so one session's events stay ordered.
func (k *Kafka) Publish(ctx context.Context, e Event) error {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()
	if closed {
		return fmt.Errorf("kafka publisher is closed")
	}

	msg, err := k.message(e)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", e.Type, err)
	}
	return nil
}

func (k *Kafka) message(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	key := e.SessionID
	if key == "" {
		key = e.ID
	}
	return kafka.Message{
		Topic: k.TopicName(e.Topic),
		Key:   []byte(key),
		Value: value,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "tenant_id", Value: []byte(e.TenantID)},
		},
	}, nil
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.writer.Close()
}
