package escrow

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so callers (and the RPC layer) can map them
// to a stable error surface without parsing messages.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation covers malformed arguments: non-positive amounts, null
	// participants, past deadlines, excessive fees.
	KindValidation
	// KindNotFound is returned for ids that were never allocated.
	KindNotFound
	// KindUnauthorized is returned when the caller does not hold the role the
	// operation requires on the target record.
	KindUnauthorized
	// KindState is returned when the operation is not legal for the record's
	// current status.
	KindState
	// KindPaused is returned when escrow creation is attempted while the
	// platform switch is off.
	KindPaused
	// KindTransfer is returned when the underlying value transfer failed; the
	// record is rolled back before the error is surfaced.
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindState:
		return "state"
	case KindPaused:
		return "paused"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Error is the engine's error type. Sentinel instances below compare with
// errors.Is; wrapped causes unwrap as usual.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the failure classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the classification from any error returned by the engine.
func KindOf(err error) Kind {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.kind
	}
	return KindUnknown
}

var (
	errNilState    = errors.New("escrow engine: record store not configured")
	errNilLedger   = errors.New("escrow engine: ledger not configured")
	errNilPlatform = errors.New("escrow engine: platform not configured")

	// ErrNotFound is returned for unknown escrow ids.
	ErrNotFound = &Error{kind: KindNotFound, msg: "escrow: not found"}
	// ErrPaused is returned by Create while the platform is paused.
	ErrPaused = &Error{kind: KindPaused, msg: "escrow: platform is paused"}
	// ErrFeeTooHigh is returned when an owner sets the platform fee above the
	// allowed maximum.
	ErrFeeTooHigh = &Error{kind: KindValidation, msg: "escrow: platform fee too high"}
	// ErrDeliveryDeadlinePassed is returned when the seller marks delivery
	// after the deadline, distinct from the generic status error.
	ErrDeliveryDeadlinePassed = &Error{kind: KindState, msg: "escrow: delivery deadline passed"}
	// ErrCannotCancel is the single combined guard failure for Cancel: the
	// caller cannot tell "wrong status" apart from "deadline not reached".
	ErrCannotCancel = &Error{kind: KindState, msg: "escrow: cannot cancel in current state"}
)

func validationError(format string, args ...interface{}) *Error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

func unauthorizedError(format string, args ...interface{}) *Error {
	return &Error{kind: KindUnauthorized, msg: fmt.Sprintf(format, args...)}
}

func stateError(format string, args ...interface{}) *Error {
	return &Error{kind: KindState, msg: fmt.Sprintf(format, args...)}
}

func transferError(err error) *Error {
	return &Error{kind: KindTransfer, msg: "escrow: value transfer failed", err: err}
}
