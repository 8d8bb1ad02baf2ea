package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kitchenflow/order-workflow/internal/orders"
	"github.com/kitchenflow/order-workflow/internal/redisx"
)

type CreateOrderReq struct {
	TenantID   string        `json:"tenantId"`
	CustomerID string        `json:"customerId"`
	Items      []orders.Item `json:"items"`
}

type CreateOrderResp struct {
	OrderID string `json:"orderId"`
	Total   string `json:"total"`
	Status  string `json:"status"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.CustomerID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	tenant := h.tenant(r, req.TenantID)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Repo.CreateOrder(ctx, tenant, req.CustomerID, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, o)

	env := orders.NewEnvelope(h.Service, orders.EventOrderCreated, o.OrderID, orders.OrderCreatedPayload{
		OrderID:    o.OrderID,
		TenantID:   o.TenantID,
		CustomerID: o.CustomerID,
		Items:      orders.ItemPayloads(o.Items),
		Total:      o.Total.StringFixed(2),
	})
	if err := h.Bus.Publish(ctx, orders.TopicOrderCreated, env); err != nil {
		h.Log.Warn("publish OrderCreated", zap.String("order_id", o.OrderID), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, CreateOrderResp{
		OrderID: o.OrderID,
		Total:   o.Total.StringFixed(2),
		Status:  string(o.Status),
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	tenant := h.tenant(r, r.URL.Query().Get("tenant"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	view, err := h.Repo.GetOrder(ctx, tenant, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// getOrderStatus serves the cached status fragment when fresh, falling back
// to the store and refilling the cache.
func (h *Handler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	tenant := h.tenant(r, r.URL.Query().Get("tenant"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, tenant, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, err := h.Repo.GetOrderRecord(ctx, tenant, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusFragment(o))
}

func (h *Handler) cacheStatus(ctx context.Context, o orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.TenantID, o.OrderID)
	b, _ := json.Marshal(statusFragment(o))
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func statusFragment(o orders.Order) map[string]any {
	return map[string]any{
		"orderId":     o.OrderID,
		"status":      o.Status,
		"currentStep": o.CurrentStep,
	}
}
