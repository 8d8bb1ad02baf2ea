package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventStageStarted   = "StageStarted"
	EventStageCompleted = "StageCompleted"
	EventOrderRejected  = "OrderRejected"
	EventOrderCompleted = "OrderCompleted"
	EventAdvanceStage   = "AdvanceStage"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a typed payload. Panics only on a non-marshalable
// payload, which would be a programming error.
func NewEnvelope(producer, eventType, correlationID string, payload any) Envelope {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}
}

// ---- Payload types, one fixed schema per event ----

type ItemPayload struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID    string        `json:"order_id"`
	TenantID   string        `json:"tenant_id"`
	CustomerID string        `json:"customer_id"`
	Items      []ItemPayload `json:"items"`
	Total      string        `json:"total"`
}

type StageStartedPayload struct {
	OrderID    string    `json:"order_id"`
	TenantID   string    `json:"tenant_id"`
	Stage      Stage     `json:"stage"`
	AssignedTo string    `json:"assigned_to"`
	StartedAt  time.Time `json:"started_at"`
}

type StageCompletedPayload struct {
	OrderID         string    `json:"order_id"`
	TenantID        string    `json:"tenant_id"`
	Stage           Stage     `json:"stage"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds int64     `json:"duration_seconds"`
}

type OrderRejectedPayload struct {
	OrderID    string          `json:"order_id"`
	TenantID   string          `json:"tenant_id"`
	Reason     string          `json:"reason"` // OUT_OF_STOCK
	Shortfalls []ShortfallItem `json:"shortfalls"`
}

type OrderCompletedPayload struct {
	OrderID     string    `json:"order_id"`
	TenantID    string    `json:"tenant_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// AdvanceStagePayload is the external trigger that moves an order from one
// automatic stage to the next.
type AdvanceStagePayload struct {
	OrderID   string `json:"order_id"`
	TenantID  string `json:"tenant_id"`
	FromStage Stage  `json:"from_stage"`
}

func ItemPayloads(items []Item) []ItemPayload {
	out := make([]ItemPayload, 0, len(items))
	for _, it := range items {
		out = append(out, ItemPayload{
			ProductID: it.ProductID,
			Qty:       it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
		})
	}
	return out
}
