package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kitchenflow/order-workflow/internal/inventory"
	"github.com/kitchenflow/order-workflow/internal/orders"
	"github.com/kitchenflow/order-workflow/internal/workflow"
)

// Handler is the thin HTTP adaptation layer over the repo and the engine.
type Handler struct {
	Repo          *orders.Repo
	Engine        *workflow.Engine
	Ledger        *inventory.Ledger
	Bus           workflow.EventSink
	Redis         *redis.Client
	Log           *zap.Logger
	Service       string
	DefaultTenant string
}

func (h *Handler) Register(r *chi.Mux) {
	r.Post("/customers", h.createCustomer)
	r.Get("/customers/{id}", h.getCustomer)
	r.Get("/customers/{id}/orders", h.listCustomerOrders)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/stages/start", h.startStage)
	r.Post("/stages/complete", h.completeStage)
	r.Put("/inventory/{productId}", h.setStock)
	r.Get("/inventory", h.listStock)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrCustomerNotFound),
		errors.Is(err, orders.ErrStageNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrInvalidItem), errors.Is(err, orders.ErrInvalidStage):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// tenant resolves the tenant id from an explicit value, the X-Tenant-ID
// header, or the configured default, in that order.
func (h *Handler) tenant(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if t := r.Header.Get("X-Tenant-ID"); t != "" {
		return t
	}
	return h.DefaultTenant
}
