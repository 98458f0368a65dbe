package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	TypeClusterCreated  = "cluster.created"
	TypeClusterMerged   = "cluster.merged"
	TypeClusterPromoted = "cluster.promoted"
)

// ReportEvent is one report lifecycle transition on the event feed.
type ReportEvent struct {
	Type        string    `json:"type"`
	ClusterUUID string    `json:"cluster_uuid"`
	HazardType  *string   `json:"hazard_type,omitempty"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	ValidatedBy string    `json:"validated_by,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher emits report lifecycle events. Publishing is best-effort; the
// report pipeline never fails a request over a publish error.
type Publisher interface {
	Publish(ctx context.Context, event ReportEvent) error
	Close() error
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ReportEvent) error { return nil }
func (NopPublisher) Close() error                               { return nil }

// KafkaPublisher produces lifecycle events to a Kafka topic, keyed by cluster
// so consumers see each cluster's transitions in order.
type KafkaPublisher struct {
	writer *kafkago.Writer
	logger zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event ReportEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize report event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(event.ClusterUUID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
