// Package kafka publishes scan status changes to a Kafka topic so other systems
// can follow what the scanner decides about each file.
package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/dropscan/pkg/common/logger"
	"github.com/ahrav/dropscan/pkg/common/timeutil"
)

// Header keys set on every message.
const (
	HeaderEventType  = "event_type"
	HeaderOccurredAt = "occurred_at"
)

// Event types carried in the event_type header.
const (
	EventTypeStatus = "scan.status"
	EventTypeLog    = "scan.log"
)

var _ scanning.StatusObserver = (*StatusPublisher)(nil)

// StatusPublisher is a StatusObserver that writes every status change and log line
// to Kafka. Status messages are keyed by file path so a file's history stays on
// one partition. Publish failures are logged and counted, never returned, because
// the pipeline must not stall on an unavailable broker.
type StatusPublisher struct {
	producer sarama.SyncProducer
	topic    string

	timeProvider timeutil.Provider
	logger       *logger.Logger
	metrics      PublisherMetrics
	tracer       trace.Tracer
}

// NewStatusPublisher creates a StatusPublisher writing to topic.
func NewStatusPublisher(
	producer sarama.SyncProducer,
	topic string,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) *StatusPublisher {
	return &StatusPublisher{
		producer:     producer,
		topic:        topic,
		timeProvider: timeutil.Default(),
		logger:       logger.With("component", "status_publisher"),
		metrics:      metrics,
		tracer:       tracer,
	}
}

// OnStatus publishes result.
func (p *StatusPublisher) OnStatus(ctx context.Context, result scanning.ScanResult) {
	payload, err := structpb.NewStruct(map[string]any{
		"file_name":       result.FileName,
		"full_path":       result.FullPath,
		"previous_path":   result.PreviousPath,
		"status":          result.Status.String(),
		"detection_count": result.DetectionCount,
		"file_hash":       result.FileHash,
		"message":         result.Message,
		"report_url":      result.ReportURL(),
	})
	if err != nil {
		p.logger.Error(ctx, "failed to build status payload", "path", result.FullPath, "error", err)
		return
	}
	p.publish(ctx, EventTypeStatus, result.FullPath, payload)
}

// OnLog publishes message unkeyed.
func (p *StatusPublisher) OnLog(ctx context.Context, message string) {
	payload, err := structpb.NewStruct(map[string]any{"message": message})
	if err != nil {
		p.logger.Error(ctx, "failed to build log payload", "error", err)
		return
	}
	p.publish(ctx, EventTypeLog, "", payload)
}

// Close closes the underlying producer.
func (p *StatusPublisher) Close() error { return p.producer.Close() }

func (p *StatusPublisher) publish(ctx context.Context, eventType, key string, payload *structpb.Struct) {
	ctx, span := tracing.StartProducerSpan(ctx, p.topic, p.tracer)
	defer span.End()
	span.SetAttributes(attribute.String("event.type", eventType))

	value, err := proto.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize payload")
		p.metrics.IncPublishError(ctx, p.topic)
		p.logger.Error(ctx, "failed to serialize payload", "event_type", eventType, "error", err)
		return
	}

	now := p.timeProvider.Now()
	occurredAt, err := proto.Marshal(timestamppb.New(now))
	if err != nil {
		span.RecordError(err)
		p.metrics.IncPublishError(ctx, p.topic)
		p.logger.Error(ctx, "failed to serialize timestamp", "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: now,
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(eventType)},
			{Key: []byte(HeaderOccurredAt), Value: occurredAt},
		},
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
		span.SetAttributes(attribute.String("event.key", key))
	}

	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		err = fmt.Errorf("failed to send message to kafka topic %s: %w", p.topic, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		p.metrics.IncPublishError(ctx, p.topic)
		p.logger.Warn(ctx, "failed to publish status", "event_type", eventType, "error", err)
		return
	}
	p.metrics.IncMessagePublished(ctx, p.topic)

	p.logger.Debug(ctx, "Published message to Kafka",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"key", key,
	)
}
