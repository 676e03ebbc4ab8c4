// Package apperrors defines the tagged business-error kinds every service
// method returns explicitly, and the single BusinessError type the HTTP
// adapter translates at the boundary. Nothing below that boundary ever
// panics or returns a bare error for an expected business condition; the
// pattern mirrors the teacher repository's common.ValidationError /
// common.EntityConflictError family and its errors.Is-based dispatch.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind tags a BusinessError with the category from spec §7.
type Kind string

const (
	KindInvalidAmount     Kind = "InvalidAmount"
	KindDailyLimit        Kind = "DailyLimit"
	KindInsufficient      Kind = "Insufficient"
	KindNoRefundableFunds Kind = "NoRefundableFunds"
	KindDuplicate         Kind = "Duplicate"
	KindInvalidSignature  Kind = "InvalidSignature"
	KindWalletBusy        Kind = "WalletBusy"
	KindDisabled          Kind = "Disabled"
	KindProcessorError    Kind = "ProcessorError"
	KindNotFound          Kind = "NotFound"
	KindStateConflict     Kind = "StateConflict"
)

// sentinels, one per Kind, so callers can also use errors.Is directly
// against a well-known value when they don't need the wrapped context.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrDailyLimit        = errors.New("daily deposit cap exceeded")
	ErrInsufficient      = errors.New("insufficient balance")
	ErrNoRefundableFunds = errors.New("no refundable allocations in window")
	ErrDuplicate         = errors.New("duplicate external id")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrWalletBusy        = errors.New("wallet lock wait exceeded")
	ErrDisabled          = errors.New("feature disabled")
	ErrProcessorError    = errors.New("payment processor error")
	ErrNotFound          = errors.New("not found")
	ErrStateConflict     = errors.New("state conflict")
)

var sentinelByKind = map[Kind]error{
	KindInvalidAmount:     ErrInvalidAmount,
	KindDailyLimit:        ErrDailyLimit,
	KindInsufficient:      ErrInsufficient,
	KindNoRefundableFunds: ErrNoRefundableFunds,
	KindDuplicate:         ErrDuplicate,
	KindInvalidSignature:  ErrInvalidSignature,
	KindWalletBusy:        ErrWalletBusy,
	KindDisabled:          ErrDisabled,
	KindProcessorError:    ErrProcessorError,
	KindNotFound:          ErrNotFound,
	KindStateConflict:     ErrStateConflict,
}

// BusinessError is the typed error every service method returns for an
// expected business condition. Title is a short terse label safe to show a
// caller; Message may add detail but never leaks internal identifiers
// (lock ids, SQL state, stack traces).
type BusinessError struct {
	Kind    Kind
	Title   string
	Message string
	Err     error // wrapped cause, for logging only
}

func (e *BusinessError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Message)
	}
	return e.Title
}

func (e *BusinessError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinelByKind[e.Kind]
}

// Is lets errors.Is(err, apperrors.ErrInsufficient) succeed against a
// *BusinessError built with KindInsufficient, without requiring callers to
// unwrap manually.
func (e *BusinessError) Is(target error) bool {
	return sentinelByKind[e.Kind] == target
}

// New builds a BusinessError of kind with a caller-facing title and an
// optional wrapped cause for logging.
func New(kind Kind, title, message string, cause error) *BusinessError {
	return &BusinessError{Kind: kind, Title: title, Message: message, Err: cause}
}

// As extracts a *BusinessError from err, if one is anywhere in its chain.
func As(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
