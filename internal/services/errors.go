package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services. Handlers map these onto HTTP
// status codes; services wrap them with context via fmt.Errorf and %w.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAlreadyPending = errors.New("already pending")
	ErrNotPending     = errors.New("not pending")
	ErrDuplicateKey   = errors.New("duplicate idempotency key")
)

// SessionConflictError rejects a transition that is illegal from the
// session's current status. The status is included so clients can explain
// the conflict.
type SessionConflictError struct {
	Status string
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("session is already in status '%s'", e.Status)
}

// NotEligibleError rejects a guarantee claim, naming the blocking condition
// and the facts it was judged on.
type NotEligibleError struct {
	Message      string
	ProductCount int
	DaysActive   int
}

func (e *NotEligibleError) Error() string {
	return e.Message
}

// InsufficientBalanceError rejects a spend that would overdraw the account.
type InsufficientBalanceError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.Balance, e.Required)
}
