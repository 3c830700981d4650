package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/rfx/internal/model"
)

// OpError describes why an op did not (or may not) take effect.
//
// Op errors include:
//   - Build failure: the intent could not produce an optimistic patch
//   - No transport: the op was dispatched with nothing to send it through
//   - Rejection: the transport or the remote refused the call
//   - Timeout: no confirming snapshot arrived within the budget
//   - Supersession: a later op on the same slot replaced it
type OpError struct {
	// Code identifies the error category.
	Code OpErrorCode

	// Message is a human-readable description.
	Message string

	// OpID identifies the affected op.
	OpID string

	// Kind is the op's intent kind.
	Kind model.Kind

	// Err is the underlying cause, when there is one.
	Err error
}

// OpErrorCode categorizes op errors.
type OpErrorCode string

const (
	// ErrCodeBuildFailed indicates the optimistic builder failed. The op still
	// proceeds without an overlay patch.
	ErrCodeBuildFailed OpErrorCode = "BUILD_FAILED"

	// ErrCodeNoTransport indicates the op was dispatched with no transport.
	ErrCodeNoTransport OpErrorCode = "NO_TRANSPORT"

	// ErrCodeRejected indicates the transport refused the call.
	ErrCodeRejected OpErrorCode = "TRANSPORT_REJECTED"

	// ErrCodeTimeout indicates no confirming snapshot arrived in time.
	ErrCodeTimeout OpErrorCode = "TIMEOUT"

	// ErrCodeSuperseded indicates a later op replaced this one.
	ErrCodeSuperseded OpErrorCode = "SUPERSEDED"
)

// ErrNoTransport is the message recorded on ops dispatched without a transport.
const ErrNoTransport = "no transport"

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.OpID != "" {
		return fmt.Sprintf("%s: %s (op=%s, kind=%s)", e.Code, e.Message, e.OpID, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *OpError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code OpErrorCode) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code == code
	}
	return false
}

// IsTimeout returns true if the error is an op timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsNoTransport returns true if the op had no transport to go through.
func IsNoTransport(err error) bool {
	return hasCode(err, ErrCodeNoTransport)
}

// IsRejected returns true if the transport refused the call.
func IsRejected(err error) bool {
	return hasCode(err, ErrCodeRejected)
}

// NewBuildError creates an OpError for a failed optimistic build.
func NewBuildError(op model.PendingOp, cause error) *OpError {
	return &OpError{
		Code:    ErrCodeBuildFailed,
		Message: cause.Error(),
		OpID:    op.ID,
		Kind:    op.Kind,
		Err:     cause,
	}
}

// NewRejectedError creates an OpError for a refused syscall.
func NewRejectedError(op model.PendingOp, cause error) *OpError {
	return &OpError{
		Code:    ErrCodeRejected,
		Message: cause.Error(),
		OpID:    op.ID,
		Kind:    op.Kind,
		Err:     cause,
	}
}

// ErrorOf reports how a finished op ended. It returns nil for acked and
// still-pending ops.
func ErrorOf(op model.PendingOp) error {
	var code OpErrorCode
	switch op.Status {
	case model.StatusFailed:
		code = ErrCodeRejected
		if op.Error == ErrNoTransport {
			code = ErrCodeNoTransport
		}
	case model.StatusTimeout:
		code = ErrCodeTimeout
	case model.StatusSuperseded:
		code = ErrCodeSuperseded
	default:
		return nil
	}
	msg := op.Error
	if msg == "" {
		msg = string(op.Status)
	}
	return &OpError{Code: code, Message: msg, OpID: op.ID, Kind: op.Kind}
}
