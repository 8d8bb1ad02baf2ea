package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/kitchenflow/order-workflow/internal/orders"
)

// Bus adapts the producer to the workflow's event sink: one envelope per
// publish, partitioned by order id, event metadata in headers.
type Bus struct {
	P *Producer
}

func (b *Bus) Publish(_ context.Context, topic string, env orders.Envelope) error {
	b.P.Publish(topic, orders.PartitionKey(env.CorrelationID), MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}

// TopicChannel publishes notifications on a fixed topic; subject and body
// ride as headers next to the structured payload.
type TopicChannel struct {
	P     *Producer
	Topic string
}

func (c *TopicChannel) Publish(_ context.Context, subject, body string, payload []byte) error {
	c.P.Publish(c.Topic, nil, payload,
		kafka.Header{Key: "x-subject", Value: []byte(subject)},
		kafka.Header{Key: "x-body", Value: []byte(body)},
	)
	return nil
}
