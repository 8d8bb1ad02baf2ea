package orders

import "errors"

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrStageNotFound    = errors.New("stage not found")
	ErrInvalidItem      = errors.New("invalid item")
	ErrInvalidStage     = errors.New("invalid stage")
)
