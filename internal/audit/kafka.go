package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultKafkaTopic   = "mediguard.audit"
	defaultKafkaTimeout = 2 * time.Second
)

type (
	// KafkaConfig holds construction parameters for the Kafka sink.
	KafkaConfig struct {
		Brokers []string

		// Topic defaults to "mediguard.audit".
		Topic string

		// Timeout bounds each publish. Default 2s.
		Timeout time.Duration
	}

	// KafkaSink publishes audit records to a Kafka topic for external
	// retention and analysis. Messages are keyed by request id so
	// retries for the same request land in the same partition.
	KafkaSink struct {
		writer  *kafka.Writer
		timeout time.Duration
	}
)

// NewKafkaSink builds a sink publishing to the configured brokers.
func NewKafkaSink(cfg *KafkaConfig) (*KafkaSink, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = defaultKafkaTopic
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultKafkaTimeout
	}

	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: timeout,
		},
		timeout: timeout,
	}, nil
}

// Emit implements Sink. Failures surface to the caller, which logs and
// drops; an unreachable broker never blocks request processing for more
// than the publish timeout.
func (s *KafkaSink) Emit(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.RequestID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish audit record: %w", err)
	}

	return nil
}

// Close flushes and releases the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
