package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateRequest is returned when an idempotency key was already used.
var ErrDuplicateRequest = errors.New("duplicate request")

// ValidationError reports malformed caller input with field-level messages.
// It is surfaced to the caller and never written to the durable error log.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, ", ")
}

// ReferenceNotFoundError reports a dangling reference to another entity,
// e.g. an order naming a user or product that does not exist.
type ReferenceNotFoundError struct {
	Kind string
	ID   string
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Kind, e.ID)
}

// InsufficientStockError reports that a product cannot cover the requested
// quantity. Like validation failures it is a caller problem, not logged
// durably.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

// InvalidStatusError reports a status value outside the order status enum.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status: %s", e.Value)
}

// InvalidTransitionError reports a status change the state machine forbids.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// IsBusinessError reports whether err belongs to the closed set of
// caller-input failures. Anything else raised by a store operation is
// treated as a persistence failure and logged to the durable error sink.
func IsBusinessError(err error) bool {
	var (
		ve *ValidationError
		re *ReferenceNotFoundError
		se *InsufficientStockError
		st *InvalidStatusError
		tr *InvalidTransitionError
	)
	return errors.As(err, &ve) || errors.As(err, &re) || errors.As(err, &se) ||
		errors.As(err, &st) || errors.As(err, &tr) || errors.Is(err, ErrDuplicateRequest)
}
