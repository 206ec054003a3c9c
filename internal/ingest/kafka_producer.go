package ingest

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-simulator/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes ride events keyed by ride ID, so every event of
// one ride lands on the same partition in order.
type KafkaProducer struct {
	writer messageWriter
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.Hash{}}
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) Name() string { return "kafka" }

func (k *KafkaProducer) Publish(ctx context.Context, r models.Ride) error {
	if r.ID == "" {
		// idle snapshots carry no ride
		return nil
	}
	b, err := json.Marshal(models.NewRideEvent(r))
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(r.ID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
