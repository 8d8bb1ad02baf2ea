package workflow

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kitchenflow/order-workflow/internal/kafka"
	"github.com/kitchenflow/order-workflow/internal/orders"
)

// Deduper remembers which event ids have been fully processed.
type Deduper interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// Consumers binds the engine to the bus. Dedup on event id is a fast-path
// only; the engine's handlers stay idempotent because delivery is at least
// once regardless. An event is marked processed only after its handler
// succeeds, so a transient failure leaves the event unmarked and the
// redelivery runs it again instead of committing it unprocessed.
type Consumers struct {
	Engine *Engine
	Dedup  Deduper
	Log    *zap.Logger
}

// HandleOrderCreated consumes order.created and runs stock validation.
func (c *Consumers) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}
	if c.processed(ctx, env.EventID) {
		return nil
	}
	p, err := kafka.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}
	if err := c.Engine.Validate(ctx, p.TenantID, p.OrderID); err != nil {
		return err
	}
	c.mark(ctx, env.EventID)
	return nil
}

// HandleAdvanceStage consumes order.stage.advance triggers from the external
// scheduler or operator tooling.
func (c *Consumers) HandleAdvanceStage(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventAdvanceStage {
		return nil
	}
	if c.processed(ctx, env.EventID) {
		return nil
	}
	p, err := kafka.UnwrapPayload[orders.AdvanceStagePayload](env.Payload)
	if err != nil {
		return err
	}
	if err := c.Engine.Advance(ctx, p.TenantID, p.OrderID, p.FromStage); err != nil {
		return err
	}
	c.mark(ctx, env.EventID)
	return nil
}

// HandleOrderRejected consumes order.rejected and produces the rejection
// notification.
func (c *Consumers) HandleOrderRejected(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderRejected {
		return nil
	}
	if c.processed(ctx, env.EventID) {
		return nil
	}
	p, err := kafka.UnwrapPayload[orders.OrderRejectedPayload](env.Payload)
	if err != nil {
		return err
	}
	if err := c.Engine.HandleRejected(ctx, p.TenantID, p.OrderID); err != nil {
		return err
	}
	c.mark(ctx, env.EventID)
	return nil
}

func (c *Consumers) processed(ctx context.Context, eventID string) bool {
	ok, err := c.Dedup.Processed(ctx, eventID)
	if err != nil {
		c.Log.Debug("dedup check failed, processing anyway", zap.Error(err))
		return false
	}
	return ok
}

// mark records success. A failed mark only risks one extra delivery, which
// the engine tolerates.
func (c *Consumers) mark(ctx context.Context, eventID string) {
	if err := c.Dedup.MarkProcessed(ctx, eventID); err != nil {
		c.Log.Debug("dedup mark failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
