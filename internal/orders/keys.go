package orders

import (
	"time"

	"github.com/kitchenflow/order-workflow/internal/store"
)

// Record layout:
//
//	orders     (TENANT#<t>#ORDER#<o>,    INFO)
//	steps      (TENANT#<t>#ORDER#<o>,    STEP#<STAGE>#<stamp>)
//	customers  (TENANT#<t>#CUSTOMER#<c>, INFO)
//	inventory  (<productId>,             INFO)
//
// Stock is keyed by bare product id, shared across tenants.

const SortInfo = "INFO"

// StampLayout is fixed-width UTC so step sort keys order lexicographically.
const StampLayout = "2006-01-02T15:04:05.000000000Z"

func OrderPartition(tenantID, orderID string) string {
	return "TENANT#" + tenantID + "#ORDER#" + orderID
}

func OrderKey(tenantID, orderID string) store.Key {
	return store.Key{Partition: OrderPartition(tenantID, orderID), Sort: SortInfo}
}

func CustomerKey(tenantID, customerID string) store.Key {
	return store.Key{Partition: "TENANT#" + tenantID + "#CUSTOMER#" + customerID, Sort: SortInfo}
}

func StepSortPrefix(stage Stage) string {
	return "STEP#" + string(stage) + "#"
}

func StepKey(tenantID, orderID string, stage Stage, startedAt time.Time) store.Key {
	return store.Key{
		Partition: OrderPartition(tenantID, orderID),
		Sort:      StepSortPrefix(stage) + startedAt.UTC().Format(StampLayout),
	}
}

func InventoryKey(productID string) store.Key {
	return store.Key{Partition: productID, Sort: SortInfo}
}
