// Package inventory tracks per-product stock on the keyed store. Stock is
// keyed by bare product id and shared across tenants.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kitchenflow/order-workflow/internal/orders"
	"github.com/kitchenflow/order-workflow/internal/store"
)

type entry struct {
	Kind      string `json:"kind"`
	ProductID string `json:"productId"`
	Stock     int64  `json:"stock"`
}

// StockLevel is one line of a full stock snapshot.
type StockLevel struct {
	ProductID string `json:"product_id"`
	Stock     int64  `json:"stock"`
}

type Ledger struct {
	Store store.Store
}

// SetStock creates or replaces the stock count for a product.
func (l *Ledger) SetStock(ctx context.Context, productID string, stock int64) error {
	if stock < 0 {
		return fmt.Errorf("stock must be non-negative, got %d", stock)
	}
	b, err := json.Marshal(entry{Kind: orders.KindInventory, ProductID: productID, Stock: stock})
	if err != nil {
		return err
	}
	return l.Store.Put(ctx, orders.InventoryKey(productID), b)
}

// Stock returns the current count for a product; a missing entry reads as 0.
func (l *Ledger) Stock(ctx context.Context, productID string) (int64, error) {
	doc, err := l.Store.Get(ctx, orders.InventoryKey(productID))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var e entry
	if err := json.Unmarshal(doc, &e); err != nil {
		return 0, err
	}
	return e.Stock, nil
}

// CheckAndReserve reserves stock for every item or for none of them.
//
// Phase 1 reads each item's stock and collects every shortfall; if any item
// is short the whole order is refused with the full list and nothing is
// written. Phase 2 decrements each product through a single conditional
// store update guarded by stock >= qty, so two orders racing on the same
// product cannot both pass the check and both subtract past zero: the check
// is advisory, the guarded decrement is the safety boundary. If a guard
// fails mid-way (a lost race), decrements already applied for this order are
// returned before reporting the shortfall.
//
// A nil, nil return means every item was reserved.
func (l *Ledger) CheckAndReserve(ctx context.Context, items []orders.Item) ([]orders.ShortfallItem, error) {
	var short []orders.ShortfallItem
	for _, it := range items {
		avail, err := l.Stock(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if int64(it.Quantity) > avail {
			short = append(short, orders.ShortfallItem{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: avail,
			})
		}
	}
	if len(short) > 0 {
		return short, nil
	}

	for i, it := range items {
		qty := int64(it.Quantity)
		err := l.Store.Update(ctx, orders.InventoryKey(it.ProductID),
			store.Update{Add: map[string]int64{"stock": -qty}},
			store.GTE("stock", qty))
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrConditionFailed) && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// Lost the race on this product: undo what this order already took.
		l.release(ctx, items[:i])
		avail, rerr := l.Stock(ctx, it.ProductID)
		if rerr != nil {
			avail = 0
		}
		return []orders.ShortfallItem{{
			ProductID: it.ProductID,
			Requested: it.Quantity,
			Available: avail,
		}}, nil
	}
	return nil, nil
}

// Return gives qty units of a product back, undoing a reservation.
func (l *Ledger) Return(ctx context.Context, productID string, qty int64) error {
	return l.Store.Update(ctx, orders.InventoryKey(productID),
		store.Update{Add: map[string]int64{"stock": qty}}, nil)
}

func (l *Ledger) release(ctx context.Context, items []orders.Item) {
	for _, it := range items {
		_ = l.Return(ctx, it.ProductID, int64(it.Quantity))
	}
}

// Snapshot returns the current stock of every product, for rejection reports.
func (l *Ledger) Snapshot(ctx context.Context) ([]StockLevel, error) {
	recs, err := l.Store.Scan(ctx, "kind", orders.KindInventory)
	if err != nil {
		return nil, err
	}
	out := make([]StockLevel, 0, len(recs))
	for _, rec := range recs {
		var e entry
		if err := json.Unmarshal(rec.Doc, &e); err != nil {
			return nil, err
		}
		out = append(out, StockLevel{ProductID: e.ProductID, Stock: e.Stock})
	}
	return out, nil
}
