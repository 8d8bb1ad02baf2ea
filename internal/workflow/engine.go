// Package workflow is the stage state machine. It is invoked by independent,
// possibly concurrent triggers (HTTP calls, event consumers, operator
// actions) and keeps no state between invocations: every handler re-derives
// the order from the store and writes through conditional updates, so
// executing any trigger twice leaves the order where one execution would
// have. Delivery is at least once; duplicate step records are expected and
// resolved by the latest-startedAt tie-break.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kitchenflow/order-workflow/internal/inventory"
	"github.com/kitchenflow/order-workflow/internal/orders"
	"github.com/kitchenflow/order-workflow/internal/store"
)

// SystemOperator is recorded on steps opened by the automatic workflow.
const SystemOperator = "System"

// EventSink publishes envelopes to the bus. At-least-once, fire-and-forget.
type EventSink interface {
	Publish(ctx context.Context, topic string, env orders.Envelope) error
}

// RejectionNotifier reports a rejected order. Implementations must not fail
// the caller.
type RejectionNotifier interface {
	NotifyRejection(ctx context.Context, view orders.OrderView, shortfalls []orders.ShortfallItem, snapshot []inventory.StockLevel)
}

type Engine struct {
	Repo     *orders.Repo
	Ledger   *inventory.Ledger
	Sink     EventSink
	Notifier RejectionNotifier
	Log      *zap.Logger
	Producer string // event producer name, e.g. "order-workflow"
}

// Validate runs the PENDING_VALIDATION stage: reserve stock for every item
// or reject the order. Stock errors propagate so the orchestrator can retry;
// a business shortfall is not an error and lands the order in REJECTED.
func (e *Engine) Validate(ctx context.Context, tenantID, orderID string) error {
	o, err := e.Repo.GetOrderRecord(ctx, tenantID, orderID)
	if err != nil {
		return err
	}
	if o.Status != orders.StatusPendingValidation {
		e.Log.Info("validate skipped, order already past validation",
			zap.String("order_id", orderID), zap.String("status", string(o.Status)))
		return nil
	}

	shortfalls, err := e.Ledger.CheckAndReserve(ctx, o.Items)
	if err != nil {
		return fmt.Errorf("reserve stock for order %s: %w", orderID, err)
	}

	if len(shortfalls) > 0 {
		err := e.Repo.Transition(ctx, tenantID, orderID,
			orders.StatusPendingValidation, orders.StatusRejected, orders.StageValidatingStock,
			map[string]any{"rejectionReason": shortfalls})
		if errors.Is(err, store.ErrConditionFailed) {
			return nil // another worker already decided this order
		}
		if err != nil {
			return err
		}
		e.emit(ctx, orders.TopicOrderRejected, orders.EventOrderRejected, orderID, orders.OrderRejectedPayload{
			OrderID:    orderID,
			TenantID:   tenantID,
			Reason:     "OUT_OF_STOCK",
			Shortfalls: shortfalls,
		})
		return nil
	}

	err = e.Repo.Transition(ctx, tenantID, orderID,
		orders.StatusPendingValidation, orders.StatusCooking, orders.StageCooking, nil)
	if errors.Is(err, store.ErrConditionFailed) {
		// Lost the race after decrementing: the winner owns the order from
		// here, give the reservation back.
		e.Log.Warn("validate lost transition race, releasing reservation", zap.String("order_id", orderID))
		return e.releaseReservation(ctx, o.Items)
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	step, err := e.Repo.PutStep(ctx, tenantID, orderID, orders.StageCooking, orders.StepInProgress, SystemOperator, now, nil)
	if err != nil {
		return err
	}
	e.emit(ctx, orders.TopicStageStarted, orders.EventStageStarted, orderID, orders.StageStartedPayload{
		OrderID:    orderID,
		TenantID:   tenantID,
		Stage:      orders.StageCooking,
		AssignedTo: step.AssignedTo,
		StartedAt:  step.StartedAt,
	})
	return nil
}

func (e *Engine) releaseReservation(ctx context.Context, items []orders.Item) error {
	for _, it := range items {
		if err := e.Ledger.Return(ctx, it.ProductID, int64(it.Quantity)); err != nil {
			return err
		}
	}
	return nil
}

// Advance closes the latest step of fromStage and opens the next one, or
// completes the order when leaving DELIVERY. Re-delivery of the same trigger
// is a no-op on status (the conditional transition fails closed) though it
// may leave an extra step record behind.
func (e *Engine) Advance(ctx context.Context, tenantID, orderID string, fromStage orders.Stage) error {
	next, ok := orders.NextStage(fromStage)
	if !ok {
		return fmt.Errorf("%w: cannot advance from %s", orders.ErrInvalidStage, fromStage)
	}
	if _, err := e.Repo.GetOrderRecord(ctx, tenantID, orderID); err != nil {
		return err
	}

	now := time.Now().UTC()

	// Close the stage being left, opening a record first if none exists.
	latest, err := e.Repo.LatestStep(ctx, tenantID, orderID, fromStage)
	if errors.Is(err, orders.ErrStageNotFound) {
		latest, err = e.Repo.PutStep(ctx, tenantID, orderID, fromStage, orders.StepInProgress, SystemOperator, now, nil)
	}
	if err != nil {
		return err
	}
	if latest.Status != orders.StepCompleted {
		if err := e.Repo.CloseStep(ctx, latest, now); err != nil {
			return err
		}
	}

	fromStatus, _ := orders.StatusForStage(fromStage)

	if next == orders.StageDelivered {
		err := e.Repo.Transition(ctx, tenantID, orderID,
			fromStatus, orders.StatusCompleted, orders.StageDelivered, nil)
		if errors.Is(err, store.ErrConditionFailed) {
			e.Log.Info("advance skipped, order already completed", zap.String("order_id", orderID))
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := e.Repo.PutStep(ctx, tenantID, orderID, orders.StageDelivered, orders.StepCompleted, SystemOperator, now, &now); err != nil {
			return err
		}
		e.emit(ctx, orders.TopicOrderCompleted, orders.EventOrderCompleted, orderID, orders.OrderCompletedPayload{
			OrderID:     orderID,
			TenantID:    tenantID,
			CompletedAt: now,
		})
		return nil
	}

	nextStatus, _ := orders.StatusForStage(next)
	err = e.Repo.Transition(ctx, tenantID, orderID, fromStatus, nextStatus, next, nil)
	if errors.Is(err, store.ErrConditionFailed) {
		e.Log.Info("advance skipped, order not in expected stage",
			zap.String("order_id", orderID), zap.String("from", string(fromStage)))
		return nil
	}
	if err != nil {
		return err
	}

	step, err := e.Repo.PutStep(ctx, tenantID, orderID, next, orders.StepInProgress, SystemOperator, now, nil)
	if err != nil {
		return err
	}
	e.emit(ctx, orders.TopicStageStarted, orders.EventStageStarted, orderID, orders.StageStartedPayload{
		OrderID:    orderID,
		TenantID:   tenantID,
		Stage:      next,
		AssignedTo: step.AssignedTo,
		StartedAt:  step.StartedAt,
	})
	return nil
}

// StartStage opens a step unconditionally on operator request. Duplicate
// starts are allowed; completion targets the newest record.
func (e *Engine) StartStage(ctx context.Context, tenantID, orderID string, stage orders.Stage, assignedTo string) (orders.Step, error) {
	if !orders.ValidStage(stage) {
		return orders.Step{}, fmt.Errorf("%w: %s", orders.ErrInvalidStage, stage)
	}
	if _, err := e.Repo.GetOrderRecord(ctx, tenantID, orderID); err != nil {
		return orders.Step{}, err
	}
	if assignedTo == "" {
		assignedTo = SystemOperator
	}
	step, err := e.Repo.PutStep(ctx, tenantID, orderID, stage, orders.StepInProgress, assignedTo, time.Now().UTC(), nil)
	if err != nil {
		return orders.Step{}, err
	}
	if err := e.Repo.SetCurrentStep(ctx, tenantID, orderID, stage); err != nil {
		return orders.Step{}, err
	}
	e.emit(ctx, orders.TopicStageStarted, orders.EventStageStarted, orderID, orders.StageStartedPayload{
		OrderID:    orderID,
		TenantID:   tenantID,
		Stage:      stage,
		AssignedTo: assignedTo,
		StartedAt:  step.StartedAt,
	})
	return step, nil
}

// CompleteStage completes the newest step of the stage and returns its
// duration. Completing DELIVERY also finishes the order.
func (e *Engine) CompleteStage(ctx context.Context, tenantID, orderID string, stage orders.Stage) (time.Duration, error) {
	latest, err := e.Repo.LatestStep(ctx, tenantID, orderID, stage)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	if err := e.Repo.CloseStep(ctx, latest, now); err != nil {
		return 0, err
	}
	duration := now.Sub(latest.StartedAt)
	e.emit(ctx, orders.TopicStageCompleted, orders.EventStageCompleted, orderID, orders.StageCompletedPayload{
		OrderID:         orderID,
		TenantID:        tenantID,
		Stage:           stage,
		StartedAt:       latest.StartedAt,
		CompletedAt:     now,
		DurationSeconds: int64(duration.Seconds()),
	})

	if stage == orders.StageDelivery {
		if err := e.Repo.Transition(ctx, tenantID, orderID, "", orders.StatusCompleted, orders.StageDelivered, nil); err != nil {
			return 0, err
		}
		if _, err := e.Repo.PutStep(ctx, tenantID, orderID, orders.StageDelivered, orders.StepCompleted, SystemOperator, now, &now); err != nil {
			return 0, err
		}
		e.emit(ctx, orders.TopicOrderCompleted, orders.EventOrderCompleted, orderID, orders.OrderCompletedPayload{
			OrderID:     orderID,
			TenantID:    tenantID,
			CompletedAt: now,
		})
	}
	return duration, nil
}

// HandleRejected runs after an order lands in REJECTED: re-read the order
// (the structured shortfall list lives on the record), snapshot all stock,
// and hand both to the notifier. Never fails the workflow.
func (e *Engine) HandleRejected(ctx context.Context, tenantID, orderID string) error {
	view, err := e.Repo.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		e.Log.Warn("rejection report: order lookup failed",
			zap.String("order_id", orderID), zap.Error(err))
		return nil
	}
	if view.Status != orders.StatusRejected {
		return nil
	}
	snapshot, err := e.Ledger.Snapshot(ctx)
	if err != nil {
		e.Log.Warn("rejection report: stock snapshot failed",
			zap.String("order_id", orderID), zap.Error(err))
		snapshot = nil
	}
	e.Notifier.NotifyRejection(ctx, view, view.RejectionReason, snapshot)
	return nil
}

func (e *Engine) emit(ctx context.Context, topic, eventType, orderID string, payload any) {
	env := orders.NewEnvelope(e.Producer, eventType, orderID, payload)
	if err := e.Sink.Publish(ctx, topic, env); err != nil {
		e.Log.Warn("publish event", zap.String("event_type", eventType),
			zap.String("order_id", orderID), zap.Error(err))
	}
}
