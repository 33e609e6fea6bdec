// Package stream mirrors ingested reports onto a Kafka topic for
// downstream consumers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mr1hm/disaster-response/internal/config"
	"github.com/mr1hm/disaster-response/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaMirror produces one message per stored report.
type KafkaMirror struct {
	writer messageWriter
}

func NewKafkaMirror(cfg config.KafkaConfig) *KafkaMirror {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaMirror{writer: w}
}

func (m *KafkaMirror) Name() string {
	return "kafka"
}

func (m *KafkaMirror) Mirror(ctx context.Context, r models.Report) error {
	msg, err := serializeToMessage(r)
	if err != nil {
		return err
	}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write report %s: %w", r.ID, err)
	}
	return nil
}

func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}

// serializeToMessage keys by report ID so all copies of a report land on
// the same partition.
func serializeToMessage(r models.Report) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(models.EventNewDisaster)},
			{Key: "disaster_type", Value: []byte(r.DisasterType)},
			{Key: "severity", Value: []byte(r.Severity)},
			{Key: "created_at", Value: []byte(r.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
