package workflow

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitchenflow/order-workflow/internal/inventory"
	"github.com/kitchenflow/order-workflow/internal/kafka"
	"github.com/kitchenflow/order-workflow/internal/orders"
	"github.com/kitchenflow/order-workflow/internal/store"
)

type memDedup struct {
	marked map[string]bool
	hits   int
}

func newMemDedup() *memDedup {
	return &memDedup{marked: map[string]bool{}}
}

func (d *memDedup) Processed(_ context.Context, eventID string) (bool, error) {
	if d.marked[eventID] {
		d.hits++
		return true, nil
	}
	return false, nil
}

func (d *memDedup) MarkProcessed(_ context.Context, eventID string) error {
	d.marked[eventID] = true
	return nil
}

// flakyStore fails the next n Gets, simulating a transient outage.
type flakyStore struct {
	*store.Memory
	failures int
}

func (s *flakyStore) Get(ctx context.Context, key store.Key) ([]byte, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("store unavailable")
	}
	return s.Memory.Get(ctx, key)
}

func createdMessage(env orders.Envelope) kafkago.Message {
	return kafkago.Message{Value: kafka.MustMarshal(env)}
}

func TestRedeliveryAfterTransientFailureStillProcesses(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory()}
	repo := &orders.Repo{Store: fs}
	ledger := &inventory.Ledger{Store: fs}
	sink := &memSink{}
	engine := &Engine{
		Repo:     repo,
		Ledger:   ledger,
		Sink:     sink,
		Notifier: &fakeNotifier{},
		Log:      zap.NewNop(),
		Producer: "test-workflow",
	}
	dedup := newMemDedup()
	cons := &Consumers{Engine: engine, Dedup: dedup, Log: zap.NewNop()}

	ctx := context.Background()
	require.NoError(t, ledger.SetStock(ctx, "p1", 5))
	c, err := repo.CreateCustomer(ctx, tenant, "Maria Lopez", "maria@example.com")
	require.NoError(t, err)
	o, err := repo.CreateOrder(ctx, tenant, c.CustomerID, orderItems())
	require.NoError(t, err)

	env := orders.NewEnvelope("order-api", orders.EventOrderCreated, o.OrderID, orders.OrderCreatedPayload{
		OrderID:  o.OrderID,
		TenantID: tenant,
	})
	msg := createdMessage(env)

	// first delivery hits the outage; the event must not be marked processed
	fs.failures = 1
	err = cons.HandleOrderCreated(ctx, msg)
	require.Error(t, err)
	assert.Empty(t, dedup.marked, "failed processing must not mark the event")

	// redelivery actually runs validation
	require.NoError(t, cons.HandleOrderCreated(ctx, msg))
	got, err := repo.GetOrderRecord(ctx, tenant, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCooking, got.Status)
	assert.True(t, dedup.marked[env.EventID])

	// third delivery short-circuits on dedup
	require.NoError(t, cons.HandleOrderCreated(ctx, msg))
	assert.Equal(t, 1, dedup.hits)
	stock, err := ledger.Stock(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stock)
}

func TestHandleOrderCreatedIgnoresOtherEventTypes(t *testing.T) {
	f := newFixture(t)
	dedup := newMemDedup()
	cons := &Consumers{Engine: f.engine, Dedup: dedup, Log: zap.NewNop()}

	env := orders.NewEnvelope("order-api", orders.EventStageStarted, "o1", orders.StageStartedPayload{OrderID: "o1"})
	require.NoError(t, cons.HandleOrderCreated(context.Background(), createdMessage(env)))
	assert.Empty(t, dedup.marked)
	assert.Empty(t, f.sink.types())
}

func TestHandleAdvanceStageMarksOnlyOnSuccess(t *testing.T) {
	f := newFixture(t)
	dedup := newMemDedup()
	cons := &Consumers{Engine: f.engine, Dedup: dedup, Log: zap.NewNop()}

	ctx := context.Background()
	env := orders.NewEnvelope("scheduler", orders.EventAdvanceStage, "missing", orders.AdvanceStagePayload{
		OrderID:   "missing",
		TenantID:  tenant,
		FromStage: orders.StageCooking,
	})
	err := cons.HandleAdvanceStage(ctx, createdMessage(env))
	require.Error(t, err)
	assert.Empty(t, dedup.marked)

	require.NoError(t, f.ledger.SetStock(ctx, "p1", 5))
	o := f.createOrder(t, orderItems())
	require.NoError(t, f.engine.Validate(ctx, tenant, o.OrderID))

	env = orders.NewEnvelope("scheduler", orders.EventAdvanceStage, o.OrderID, orders.AdvanceStagePayload{
		OrderID:   o.OrderID,
		TenantID:  tenant,
		FromStage: orders.StageCooking,
	})
	require.NoError(t, cons.HandleAdvanceStage(ctx, createdMessage(env)))
	assert.True(t, dedup.marked[env.EventID])

	got, err := f.repo.GetOrderRecord(ctx, tenant, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPackaging, got.Status)
}
