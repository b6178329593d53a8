package domain

import "time"

// ExecutionStatus classifies the outcome of executing one signal for one user.
type ExecutionStatus string

const (
	// ExecutionSucceeded means every leg of the plan was accepted.
	ExecutionSucceeded ExecutionStatus = "succeeded"
	// ExecutionFailed means no order was placed for the user.
	ExecutionFailed ExecutionStatus = "failed"
	// ExecutionPartial means the entry order was accepted but one or more
	// exit legs were not: the user holds unprotected exposure.
	ExecutionPartial ExecutionStatus = "partial"
)

// OrderConfirmation is the exchange's acknowledgement of one placed order.
type OrderConfirmation struct {
	OrderID   string
	ClientOID string
}

// ExecutionResult is the per-user outcome of a signal dispatch.
type ExecutionResult struct {
	SignalID   int64
	UserID     int64
	Status     ExecutionStatus
	Entry      *OrderConfirmation
	TakeProfit []OrderConfirmation
	StopLoss   *OrderConfirmation
	Err        error
	FinishedAt time.Time
}

// Unprotected reports whether the user ended up with an entry order on the
// book but an incomplete exit bracket.
func (r *ExecutionResult) Unprotected() bool {
	return r.Status == ExecutionPartial
}
