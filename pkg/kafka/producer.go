package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/metrics"
)

const (
	EventEntityResolved = "entity.resolved"
	EventMatchFound     = "match.found"

	schemaVersion = "1.0"
)

// MessageWriter is the part of kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes linkage results to Kafka
type Producer struct {
	writer    MessageWriter
	logger    ectologger.Logger
	topic     string
	batchSize int
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	var compression kafka.Compression
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "snappy":
		compression = kafka.Snappy
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, cfg.BatchSize, logger)
}

// NewProducerWithWriter creates a producer around an existing writer
func NewProducerWithWriter(writer MessageWriter, topic string, batchSize int, logger ectologger.Logger) *Producer {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Producer{writer: writer, logger: logger, topic: topic, batchSize: batchSize}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// EntityResolvedEvent announces one resolved person entity of a clustering run
type EntityResolvedEvent struct {
	EventType string    `json:"event_type"`
	RunID     string    `json:"run_id"`
	EntityID  int       `json:"entity_id"`
	RecordIDs []int     `json:"record_ids"`
	RowKeys   []string  `json:"row_keys,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MatchFoundEvent announces one source-to-target match of a matching run
type MatchFoundEvent struct {
	EventType string    `json:"event_type"`
	RunID     string    `json:"run_id"`
	SourceID  int       `json:"source_id"`
	TargetID  int       `json:"target_id"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishEntitiesResolved publishes one entity.resolved event per entity, keyed by run and entity
func (p *Producer) PublishEntitiesResolved(ctx context.Context, events []*EntityResolvedEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishEntitiesResolved")
	defer span.End()

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		event.EventType = EventEntityResolved
		msg, err := p.message(ctx, fmt.Sprintf("%s:%d", event.RunID, event.EntityID), event.EventType, event.RunID, &event.Timestamp, event)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	return p.publish(ctx, EventEntityResolved, messages)
}

// PublishMatchesFound publishes one match.found event per matched row, keyed by run and source
func (p *Producer) PublishMatchesFound(ctx context.Context, events []*MatchFoundEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMatchesFound")
	defer span.End()

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		event.EventType = EventMatchFound
		msg, err := p.message(ctx, fmt.Sprintf("%s:%d", event.RunID, event.SourceID), event.EventType, event.RunID, &event.Timestamp, event)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	return p.publish(ctx, EventMatchFound, messages)
}

func (p *Producer) message(ctx context.Context, key, eventType, runID string, ts *time.Time, event any) (kafka.Message, error) {
	if ts.IsZero() {
		*ts = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(eventType)},
		{Key: "run_id", Value: []byte(runID)},
		{Key: "schema_version", Value: []byte(schemaVersion)},
	}
	for k, v := range tracing.Carrier(ctx) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Topic:   p.topic,
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	}, nil
}

func (p *Producer) publish(ctx context.Context, eventType string, messages []kafka.Message) error {
	if len(messages) == 0 {
		return nil
	}

	for start := 0; start < len(messages); start += p.batchSize {
		end := min(start+p.batchSize, len(messages))

		began := time.Now()
		err := p.writer.WriteMessages(ctx, messages[start:end]...)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordKafkaPublish(p.topic, status, time.Since(began).Seconds())

		if err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"event_type": eventType,
				"batch_size": end - start,
			}).Error("Failed to publish events batch")
			return fmt.Errorf("failed to publish %s events: %w", eventType, err)
		}
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": eventType,
		"count":      len(messages),
	}).Debug("Published events")

	return nil
}
