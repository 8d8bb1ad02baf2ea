package orders

type Status string

const (
	StatusPendingValidation Status = "PENDING_VALIDATION"
	StatusCooking           Status = "COOKING"
	StatusPackaging         Status = "PACKAGING"
	StatusDelivery          Status = "DELIVERY"
	StatusCompleted         Status = "COMPLETED"
	StatusRejected          Status = "REJECTED"
)

var validNext = map[Status]map[Status]bool{
	StatusPendingValidation: {StatusCooking: true, StatusRejected: true},
	StatusCooking:           {StatusPackaging: true},
	StatusPackaging:         {StatusDelivery: true},
	StatusDelivery:          {StatusCompleted: true},
	StatusCompleted:         {},
	StatusRejected:          {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no transition leaves the status.
func Terminal(s Status) bool {
	return len(validNext[s]) == 0
}

// Stage names the workflow stages recorded as Step history. DELIVERED is the
// terminal display step written when an order completes.
type Stage string

const (
	StageValidatingStock Stage = "VALIDATING_STOCK"
	StageCooking         Stage = "COOKING"
	StagePackaging       Stage = "PACKAGING"
	StageDelivery        Stage = "DELIVERY"
	StageDelivered       Stage = "DELIVERED"
)

var nextStage = map[Stage]Stage{
	StageCooking:   StagePackaging,
	StagePackaging: StageDelivery,
	StageDelivery:  StageDelivered,
}

// NextStage returns the stage that follows from in the automatic workflow.
func NextStage(from Stage) (Stage, bool) {
	n, ok := nextStage[from]
	return n, ok
}

var stageStatus = map[Stage]Status{
	StageValidatingStock: StatusPendingValidation,
	StageCooking:         StatusCooking,
	StagePackaging:       StatusPackaging,
	StageDelivery:        StatusDelivery,
	StageDelivered:       StatusCompleted,
}

// StatusForStage maps a workflow stage to the order status it implies.
func StatusForStage(s Stage) (Status, bool) {
	st, ok := stageStatus[s]
	return st, ok
}

func ValidStage(s Stage) bool {
	_, ok := stageStatus[s]
	return ok
}
