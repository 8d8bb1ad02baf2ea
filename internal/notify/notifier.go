// Package notify composes and publishes rejection notifications. Nothing in
// here is allowed to fail the workflow: every error is logged and swallowed
// so the order still reaches its terminal state when the channel is down.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kitchenflow/order-workflow/internal/inventory"
	"github.com/kitchenflow/order-workflow/internal/orders"
)

// Channel is the outbound notification transport. Downstream consumers
// (email sender, dashboards) are out of scope.
type Channel interface {
	Publish(ctx context.Context, subject, body string, payload []byte) error
}

// RejectionNotice is the structured payload sent on the channel.
type RejectionNotice struct {
	OrderID          string                 `json:"order_id"`
	TenantID         string                 `json:"tenant_id"`
	CustomerID       string                 `json:"customer_id"`
	CustomerEmail    string                 `json:"customer_email"`
	Total            string                 `json:"total"`
	RequestedItems   []orders.ItemPayload   `json:"requested_items"`
	UnavailableItems []orders.ShortfallItem `json:"unavailable_items"`
	StockReport      []inventory.StockLevel `json:"stock_report"`
	Message          string                 `json:"message"`
}

type Notifier struct {
	Channel Channel
	Log     *zap.Logger
}

// NotifyRejection publishes a rejection report for the order. The shortfall
// list comes straight off the order record; the stock snapshot reflects
// current levels across all products.
func (n *Notifier) NotifyRejection(ctx context.Context, view orders.OrderView, shortfalls []orders.ShortfallItem, snapshot []inventory.StockLevel) {
	notice := RejectionNotice{
		OrderID:          view.OrderID,
		TenantID:         view.TenantID,
		CustomerID:       view.CustomerID,
		CustomerEmail:    view.CustomerEmail,
		Total:            view.Total.StringFixed(2),
		RequestedItems:   orders.ItemPayloads(view.Items),
		UnavailableItems: shortfalls,
		StockReport:      snapshot,
		Message:          rejectionMessage(view.OrderID, shortfalls),
	}
	payload, err := json.Marshal(notice)
	if err != nil {
		n.Log.Error("marshal rejection notice", zap.String("order_id", view.OrderID), zap.Error(err))
		return
	}
	subject := fmt.Sprintf("Order %s rejected: insufficient stock", view.OrderID)
	if err := n.Channel.Publish(ctx, subject, notice.Message, payload); err != nil {
		n.Log.Warn("publish rejection notice",
			zap.String("order_id", view.OrderID),
			zap.String("tenant_id", view.TenantID),
			zap.Error(err))
		return
	}
	n.Log.Info("rejection notice published",
		zap.String("order_id", view.OrderID),
		zap.Int("unavailable_items", len(shortfalls)))
}

func rejectionMessage(orderID string, shortfalls []orders.ShortfallItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s was rejected because of insufficient stock:", orderID)
	for _, s := range shortfalls {
		fmt.Fprintf(&b, " %s (requested %d, available %d);", s.ProductID, s.Requested, s.Available)
	}
	return strings.TrimSuffix(b.String(), ";")
}
