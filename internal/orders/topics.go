package orders

const (
	TopicOrderCreated   = "order.created"
	TopicAdvanceStage   = "order.stage.advance"
	TopicStageStarted   = "order.stage.started"
	TopicStageCompleted = "order.stage.completed"
	TopicOrderRejected  = "order.rejected"
	TopicOrderCompleted = "order.completed"
	TopicNotifications  = "order.notifications"
)

// Partition key = order_id so all events for one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
