package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"solana-sniper/internal/domain"
)

// KafkaSinkConfig configures KafkaSink.
type KafkaSinkConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration // defaults to 10s
	BatchTimeout time.Duration // defaults to 1s
}

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries as JSON messages keyed by sequence number.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink writing to cfg.Topic.
func NewKafkaSink(cfg KafkaSinkConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink: topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}

	// A single partition keeps the timeline ordered for consumers.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
	}
	return &KafkaSink{writer: writer, topic: cfg.Topic}, nil
}

// kafkaEntry is the wire shape of a published entry.
type kafkaEntry struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Publish implements Sink.
func (s *KafkaSink) Publish(ctx context.Context, entry domain.LogEntry) error {
	value, err := json.Marshal(kafkaEntry{
		Seq:       entry.Seq,
		Timestamp: entry.Timestamp.UTC(),
		Level:     string(entry.Level),
		Message:   entry.Message,
	})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte("eventlog"),
		Value: value,
		Time:  entry.Timestamp,
		Headers: []kafka.Header{
			{Key: "seq", Value: []byte(strconv.FormatUint(entry.Seq, 10))},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
