package core

import (
	"errors"
	"fmt"
)

var (
	ErrTransientFetch      = errors.New("transient fetch failure")
	ErrOutOfRange          = errors.New("transaction outside requested range")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrUndefinedTrend      = errors.New("trend undefined for zero baseline")
	ErrModelFit            = errors.New("forecast model fit failed")

	ErrInvalidRange   = errors.New("invalid date range")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNoTransactions = errors.New("no transactions found")
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
)

// FetchError is a structured error for upstream page requests.
type FetchError struct {
	Op         string // e.g. "list transactions"
	Page       string // Cursor of the page being requested
	Attempts   int
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *FetchError) Error() string {
	msg := e.Op
	if e.Page != "" {
		msg += fmt.Sprintf(" (page %s)", e.Page)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a FetchError marked retryable.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable
}
