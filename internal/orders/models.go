package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Doc kind discriminators, stored on every record so Scan can select an
// entity class across partitions.
const (
	KindOrder     = "order"
	KindStep      = "step"
	KindCustomer  = "customer"
	KindInventory = "inventory"
)

// Item is a single order line. UnitPrice uses decimal so totals stay exact
// for 2-decimal currency amounts.
type Item struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// ShortfallItem records one insufficient product on a rejected order.
type ShortfallItem struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int64  `json:"available"`
}

// Order metadata record. Total is computed once at creation from the items
// and never recomputed. RejectionReason is present only on REJECTED orders
// and carries the structured shortfall list, not a formatted message.
type Order struct {
	Kind            string          `json:"kind"`
	OrderID         string          `json:"orderId"`
	TenantID        string          `json:"tenantId"`
	CustomerID      string          `json:"customerId"`
	Status          Status          `json:"status"`
	CurrentStep     Stage           `json:"currentStep"`
	Items           []Item          `json:"items"`
	Total           decimal.Decimal `json:"total"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	RejectionReason []ShortfallItem `json:"rejectionReason,omitempty"`
}

type StepStatus string

const (
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
)

// Step is one stage-history record. A fresh record is written every time a
// stage starts, so duplicate starts produce duplicate records; readers pick
// the one with the latest StartedAt per stage.
type Step struct {
	Kind       string     `json:"kind"`
	TenantID   string     `json:"tenantId"`
	OrderID    string     `json:"orderId"`
	StepName   Stage      `json:"stepName"`
	Status     StepStatus `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	AssignedTo string     `json:"assignedTo"`
}

type Customer struct {
	Kind       string    `json:"kind"`
	CustomerID string    `json:"customerId"`
	TenantID   string    `json:"tenantId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OrderView joins an order with its customer and full step history for reads.
// Customer fields fall back to "N/A" when the customer record is missing.
type OrderView struct {
	Order
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	Steps         []Step `json:"steps"`
}
