package es

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDomainRejection     = errors.New("domain rejection")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrAggregateNotFound   = errors.New("aggregate not found")
	ErrStoreFault          = errors.New("store fault")
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrDuplicateEventType  = errors.New("duplicate event type")
	ErrInvalidStream       = errors.New("invalid stream")
	ErrNoEvents            = errors.New("no events to append")
)

// RejectionError is returned by Decide when a command violates a business
// rule. It matches ErrDomainRejection.
type RejectionError struct {
	Reason string
	Cause  error
}

func (e *RejectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrDomainRejection, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrDomainRejection, e.Reason)
}

func (e *RejectionError) Is(target error) bool { return target == ErrDomainRejection }
func (e *RejectionError) Unwrap() error        { return e.Cause }

// Reject builds a RejectionError with a formatted reason.
func Reject(format string, args ...any) error {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// RejectionReason returns the reason of a rejection in err's chain.
func RejectionReason(err error) (string, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}

// ConflictError reports a failed optimistic concurrency check.
// It matches ErrConcurrencyConflict.
type ConflictError struct {
	Stream   StreamID
	Expected Version
	Actual   Version
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: stream=%s expected=%d actual=%d", ErrConcurrencyConflict, e.Stream, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// storeFault classifies err as ErrStoreFault unless it already carries a
// known classification or is a context error.
func storeFault(msg string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStoreFault),
		errors.Is(err, ErrConcurrencyConflict),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreFault, msg, err)
}
