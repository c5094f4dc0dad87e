package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "fetch_settlement", "list_participants")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ======================================================================================
// Settlement Error Taxonomy
// ======================================================================================

// ErrorKind names a class of reconciliation failure. The API layer maps each kind
// to exactly one HTTP status.
type ErrorKind string

const (
	KindHubUnreachable             ErrorKind = "HubUnreachable"
	KindSettlementNotFound         ErrorKind = "SettlementNotFound"
	KindInvalidSettlementState     ErrorKind = "InvalidSettlementState"
	KindParticipantNotInSettlement ErrorKind = "ParticipantNotInSettlement"
	KindNoPositionInCurrency       ErrorKind = "NoPositionInCurrency"
	KindAmountMismatch             ErrorKind = "AmountMismatch"
	KindCurrencyMismatch           ErrorKind = "CurrencyMismatch"
	KindValidation                 ErrorKind = "ValidationError"
	KindStoreUnavailable           ErrorKind = "StoreUnavailable"
	KindInvalidAPIKey              ErrorKind = "InvalidAPIKey"
	KindRateLimited                ErrorKind = "RateLimited"
)

// SettlementError is a classified failure of a reconciliation step.
type SettlementError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SettlementError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// Is matches any SettlementError of the same kind, so errors.Is(err, ErrAmountMismatch)
// works regardless of the message.
func (e *SettlementError) Is(target error) bool {
	t, ok := target.(*SettlementError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsRetriable reports whether the caller may retry the same request later.
func (e *SettlementError) IsRetriable() bool {
	return e.Kind == KindHubUnreachable || e.Kind == KindStoreUnavailable
}

// NewSettlementError creates a classified error with a formatted message.
func NewSettlementError(kind ErrorKind, format string, args ...any) *SettlementError {
	return &SettlementError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapSettlementError classifies an underlying error.
func WrapSettlementError(kind ErrorKind, err error, format string, args ...any) *SettlementError {
	return &SettlementError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the taxonomy kind of err, if it carries one.
func KindOf(err error) (ErrorKind, bool) {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

var (
	ErrHubUnreachable             = &SettlementError{Kind: KindHubUnreachable}
	ErrSettlementNotFound         = &SettlementError{Kind: KindSettlementNotFound}
	ErrInvalidSettlementState     = &SettlementError{Kind: KindInvalidSettlementState}
	ErrParticipantNotInSettlement = &SettlementError{Kind: KindParticipantNotInSettlement}
	ErrNoPositionInCurrency       = &SettlementError{Kind: KindNoPositionInCurrency}
	ErrAmountMismatch             = &SettlementError{Kind: KindAmountMismatch}
	ErrCurrencyMismatch           = &SettlementError{Kind: KindCurrencyMismatch}
	ErrValidation                 = &SettlementError{Kind: KindValidation}
	ErrStoreUnavailable           = &SettlementError{Kind: KindStoreUnavailable}

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrHubRejected is returned when the hub answers a write with a non-success status
	ErrHubRejected = errors.New("hub rejected request")
)
