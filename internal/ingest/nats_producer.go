package ingest

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/example/ride-simulator/internal/models"
)

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
	Drain() error
}

// NATSProducer publishes ride events on <subject>.<status>, so subscribers
// can filter with wildcards such as "rides.events.COMPLETED".
type NATSProducer struct {
	conn    msgPublisher
	subject string
}

func NewNATSProducer(url, subject string) (*NATSProducer, error) {
	nc, err := nats.Connect(url, nats.Name("ride-simulator"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &NATSProducer{conn: nc, subject: subject}, nil
}

func (n *NATSProducer) Name() string { return "nats" }

func (n *NATSProducer) Publish(ctx context.Context, r models.Ride) error {
	if r.ID == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(models.NewRideEvent(r))
	if err != nil {
		return err
	}
	msg := nats.NewMsg(n.subject + "." + string(r.Status))
	msg.Header.Set("Ride-ID", r.ID)
	msg.Data = b
	return n.conn.PublishMsg(msg)
}

// Close flushes pending messages before closing the connection.
func (n *NATSProducer) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
