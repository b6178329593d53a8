package ports

import (
	"errors"
	"fmt"

	"signalArmyBot/internal/domain"
)

// Standard application-level errors. Adapters wrap underlying infrastructure
// errors with these, components check them with errors.Is / errors.As.
var (
	// ErrInvalidInput marks a malformed signal or an invalid strategy /
	// target-count pairing. It is raised before any network call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConfiguration marks invalid or missing configuration.
	ErrConfiguration = errors.New("invalid or missing configuration")
	// ErrNotFound marks a missing resource (user, trader, position).
	ErrNotFound = errors.New("resource not found")
)

// TransportError is a network-level failure reaching the exchange (timeout,
// DNS, refused connection). It is not retried by this core.
type TransportError struct {
	Op  string // operation that failed, e.g. "PlaceOrder"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExchangeError is a non-2xx response from the exchange: rejected order,
// authentication failure, rate limit. It carries the exchange's own
// code/message and is not retried automatically. Callers must branch on Code,
// which every venue fills; HTTPStatus is supplementary and stays zero when a
// venue's client library does not expose the raw status.
type ExchangeError struct {
	HTTPStatus int    // zero when the venue library hides the HTTP layer
	Code       string // exchange-level code, e.g. "300003"
	Message    string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange rejected request: status=%d code=%s msg=%s", e.HTTPStatus, e.Code, e.Message)
}

// PartialExecutionError means the entry order was accepted but at least one
// exit leg was not. The user now holds unprotected exposure, so this state is
// flagged distinctly and must never be reported as success.
type PartialExecutionError struct {
	Entry     *domain.OrderConfirmation
	Placed    []domain.OrderConfirmation // exit legs accepted before the failure
	FailedLeg string                     // description of the leg that failed, e.g. "take-profit 2/4"
	Err       error
}

func (e *PartialExecutionError) Error() string {
	return fmt.Sprintf("partial execution: entry placed, %s failed: %v", e.FailedLeg, e.Err)
}

func (e *PartialExecutionError) Unwrap() error { return e.Err }
