package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kitchenflow/order-workflow/internal/orders"
)

type StageReq struct {
	OrderID    string       `json:"orderId"`
	TenantID   string       `json:"tenantId"`
	Stage      orders.Stage `json:"stage"`
	AssignedTo string       `json:"assignedTo,omitempty"`
}

// startStage opens a step on operator request, bypassing the automatic
// advance trigger.
func (h *Handler) startStage(w http.ResponseWriter, r *http.Request) {
	var req StageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == "" || req.Stage == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	step, err := h.Engine.StartStage(ctx, h.tenant(r, req.TenantID), req.OrderID, req.Stage, req.AssignedTo)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "stage " + string(req.Stage) + " started",
		"step":    step,
	})
}

func (h *Handler) completeStage(w http.ResponseWriter, r *http.Request) {
	var req StageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == "" || req.Stage == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	duration, err := h.Engine.CompleteStage(ctx, h.tenant(r, req.TenantID), req.OrderID, req.Stage)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "stage " + string(req.Stage) + " completed",
		"duration_seconds": int64(duration.Seconds()),
	})
}

type SetStockReq struct {
	Stock int64 `json:"stock"`
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	var req SetStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Ledger.SetStock(ctx, productID, req.Stock); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"productId": productID, "stock": req.Stock})
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	levels, err := h.Ledger.Snapshot(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": levels})
}
