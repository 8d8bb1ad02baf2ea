package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenflow/order-workflow/internal/store"
)

// Repo is the order aggregate over the keyed store: orders, their step
// history, and customers. All mutations go through store primitives so the
// repo itself holds no locks.
type Repo struct {
	Store store.Store
}

func (r *Repo) CreateCustomer(ctx context.Context, tenantID, name, email string) (Customer, error) {
	c := Customer{
		Kind:       KindCustomer,
		CustomerID: uuid.NewString(),
		TenantID:   tenantID,
		Name:       name,
		Email:      email,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.putDoc(ctx, CustomerKey(tenantID, c.CustomerID), c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

func (r *Repo) GetCustomer(ctx context.Context, tenantID, customerID string) (Customer, error) {
	var c Customer
	err := r.getDoc(ctx, CustomerKey(tenantID, customerID), &c)
	if errors.Is(err, store.ErrNotFound) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

// CreateOrder validates the items, computes the total as the exact sum of
// quantity x unit price, and persists the order as PENDING_VALIDATION. The
// caller is responsible for emitting OrderCreated.
func (r *Repo) CreateOrder(ctx context.Context, tenantID, customerID string, items []Item) (Order, error) {
	if _, err := r.GetCustomer(ctx, tenantID, customerID); err != nil {
		return Order{}, err
	}
	if len(items) == 0 {
		return Order{}, fmt.Errorf("%w: no items", ErrInvalidItem)
	}
	total := decimal.Zero
	for _, it := range items {
		if it.ProductID == "" {
			return Order{}, fmt.Errorf("%w: missing product id", ErrInvalidItem)
		}
		if it.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be positive for %s", ErrInvalidItem, it.ProductID)
		}
		if it.UnitPrice.IsNegative() {
			return Order{}, fmt.Errorf("%w: negative price for %s", ErrInvalidItem, it.ProductID)
		}
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	now := time.Now().UTC()
	o := Order{
		Kind:        KindOrder,
		OrderID:     uuid.NewString(),
		TenantID:    tenantID,
		CustomerID:  customerID,
		Status:      StatusPendingValidation,
		CurrentStep: StageValidatingStock,
		Items:       items,
		Total:       total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.putDoc(ctx, OrderKey(tenantID, o.OrderID), o); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) GetOrderRecord(ctx context.Context, tenantID, orderID string) (Order, error) {
	var o Order
	err := r.getDoc(ctx, OrderKey(tenantID, orderID), &o)
	if errors.Is(err, store.ErrNotFound) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

// GetOrder joins the order with its customer and step history. A missing
// customer degrades to "N/A" rather than failing the read.
func (r *Repo) GetOrder(ctx context.Context, tenantID, orderID string) (OrderView, error) {
	o, err := r.GetOrderRecord(ctx, tenantID, orderID)
	if err != nil {
		return OrderView{}, err
	}
	view := OrderView{Order: o, CustomerName: "N/A", CustomerEmail: "N/A"}
	if c, err := r.GetCustomer(ctx, tenantID, o.CustomerID); err == nil {
		view.CustomerName = c.Name
		view.CustomerEmail = c.Email
	}
	steps, err := r.StepsForOrder(ctx, tenantID, orderID)
	if err != nil {
		return OrderView{}, err
	}
	view.Steps = steps
	return view, nil
}

// ListOrdersByCustomer scans order docs by customer id, scoped to the tenant
// through the partition prefix.
func (r *Repo) ListOrdersByCustomer(ctx context.Context, tenantID, customerID string) ([]Order, error) {
	recs, err := r.Store.Scan(ctx, "customerId", customerID)
	if err != nil {
		return nil, err
	}
	prefix := "TENANT#" + tenantID + "#ORDER#"
	var out []Order
	for _, rec := range recs {
		if !strings.HasPrefix(rec.Key.Partition, prefix) || rec.Key.Sort != SortInfo {
			continue
		}
		var o Order
		if err := json.Unmarshal(rec.Doc, &o); err != nil {
			return nil, err
		}
		if o.Kind != KindOrder {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Transition updates status and current step in a single conditional store
// update. When expect is non-empty the write only happens while the stored
// status still equals it, which keeps concurrent duplicate triggers from
// regressing the order. Extra attributes (e.g. rejectionReason) ride along
// in the same write.
func (r *Repo) Transition(ctx context.Context, tenantID, orderID string, expect Status, to Status, step Stage, extra map[string]any) error {
	set := map[string]any{
		"status":      to,
		"currentStep": step,
		"updatedAt":   time.Now().UTC(),
	}
	for k, v := range extra {
		set[k] = v
	}
	var cond *store.Condition
	if expect != "" {
		cond = store.Eq("status", string(expect))
	}
	err := r.Store.Update(ctx, OrderKey(tenantID, orderID), store.Update{Set: set}, cond)
	if errors.Is(err, store.ErrNotFound) {
		return ErrOrderNotFound
	}
	return err
}

// SetCurrentStep updates only the display step, used by manual stage starts
// which bypass the status machine.
func (r *Repo) SetCurrentStep(ctx context.Context, tenantID, orderID string, step Stage) error {
	err := r.Store.Update(ctx, OrderKey(tenantID, orderID), store.Update{Set: map[string]any{
		"currentStep": step,
		"updatedAt":   time.Now().UTC(),
	}}, nil)
	if errors.Is(err, store.ErrNotFound) {
		return ErrOrderNotFound
	}
	return err
}

// PutStep writes a fresh step record. Every start writes a new record, even
// for a stage that already has one; the startedAt in the sort key keeps them
// distinct.
func (r *Repo) PutStep(ctx context.Context, tenantID, orderID string, stage Stage, status StepStatus, assignedTo string, startedAt time.Time, finishedAt *time.Time) (Step, error) {
	s := Step{
		Kind:       KindStep,
		TenantID:   tenantID,
		OrderID:    orderID,
		StepName:   stage,
		Status:     status,
		StartedAt:  startedAt.UTC(),
		FinishedAt: finishedAt,
		AssignedTo: assignedTo,
	}
	if err := r.putDoc(ctx, StepKey(tenantID, orderID, stage, s.StartedAt), s); err != nil {
		return Step{}, err
	}
	return s, nil
}

// LatestStep returns the step with the maximum startedAt among records for
// the stage. This is the tie-break for duplicate or concurrent starts.
func (r *Repo) LatestStep(ctx context.Context, tenantID, orderID string, stage Stage) (Step, error) {
	recs, err := r.Store.QueryPrefix(ctx, OrderPartition(tenantID, orderID), StepSortPrefix(stage))
	if err != nil {
		return Step{}, err
	}
	if len(recs) == 0 {
		return Step{}, ErrStageNotFound
	}
	var latest Step
	for _, rec := range recs {
		var s Step
		if err := json.Unmarshal(rec.Doc, &s); err != nil {
			return Step{}, err
		}
		if s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	return latest, nil
}

func (r *Repo) StepsForOrder(ctx context.Context, tenantID, orderID string) ([]Step, error) {
	recs, err := r.Store.QueryPrefix(ctx, OrderPartition(tenantID, orderID), "STEP#")
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(recs))
	for _, rec := range recs {
		var s Step
		if err := json.Unmarshal(rec.Doc, &s); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].StartedAt.Before(steps[j].StartedAt) })
	return steps, nil
}

// CloseStep marks the given step record COMPLETED with the finish time.
func (r *Repo) CloseStep(ctx context.Context, s Step, finishedAt time.Time) error {
	finishedAt = finishedAt.UTC()
	err := r.Store.Update(ctx, StepKey(s.TenantID, s.OrderID, s.StepName, s.StartedAt), store.Update{
		Set: map[string]any{
			"status":     StepCompleted,
			"finishedAt": finishedAt,
		},
	}, nil)
	if errors.Is(err, store.ErrNotFound) {
		return ErrStageNotFound
	}
	return err
}

func (r *Repo) putDoc(ctx context.Context, key store.Key, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Store.Put(ctx, key, b)
}

func (r *Repo) getDoc(ctx context.Context, key store.Key, v any) error {
	b, err := r.Store.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
