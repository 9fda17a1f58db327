package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the access protocol can report.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindInviteInvalid       ErrorKind = "INVITE_INVALID"
	KindInviteUsed          ErrorKind = "INVITE_USED"
	KindInviteExpired       ErrorKind = "INVITE_EXPIRED"
	KindRateLimited         ErrorKind = "RATE_LIMITED"
	KindCodeExpired         ErrorKind = "CODE_EXPIRED"
	KindCodeInvalid         ErrorKind = "CODE_INVALID"
	KindDeviceBlocked       ErrorKind = "DEVICE_BLOCKED"
	KindDeliveryFailed      ErrorKind = "DELIVERY_FAILED"
	KindBackendUnavailable  ErrorKind = "BACKEND_UNAVAILABLE"
	KindNotRegistered       ErrorKind = "NOT_REGISTERED"
	KindOperationInProgress ErrorKind = "OPERATION_IN_PROGRESS"
)

// Terminal reports whether the kind ends the session with no retry path.
func (k ErrorKind) Terminal() bool {
	switch k {
	case KindDeviceBlocked, KindInviteInvalid, KindInviteUsed, KindInviteExpired:
		return true
	}
	return false
}

// Error is the typed failure returned by services and decoded by the client.
type Error struct {
	Kind              ErrorKind `json:"kind"`
	Message           string    `json:"message"`
	RetryAfterSeconds int       `json:"retry_after,omitempty"`
	// AttemptsLeft is set on CODE_INVALID while more guesses are allowed.
	AttemptsLeft *int `json:"attempts_left,omitempty"`
}

func (e *Error) Error() string {
	if e.RetryAfterSeconds > 0 {
		return fmt.Sprintf("%s: %s (retry after %ds)", e.Kind, e.Message, e.RetryAfterSeconds)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrCodeInvalid) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// RateLimited builds a RATE_LIMITED error; retryAfter is clamped to at least one second.
func RateLimited(retryAfter int, message string) *Error {
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Error{Kind: KindRateLimited, Message: message, RetryAfterSeconds: retryAfter}
}

// Kind-only sentinels for errors.Is comparisons.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrInviteInvalid      = &Error{Kind: KindInviteInvalid}
	ErrInviteUsed         = &Error{Kind: KindInviteUsed}
	ErrInviteExpired      = &Error{Kind: KindInviteExpired}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrCodeExpired        = &Error{Kind: KindCodeExpired}
	ErrCodeInvalid        = &Error{Kind: KindCodeInvalid}
	ErrDeviceBlocked      = &Error{Kind: KindDeviceBlocked}
	ErrBackendUnavailable = &Error{Kind: KindBackendUnavailable}
	ErrNotRegistered      = &Error{Kind: KindNotRegistered}
	ErrInProgress         = &Error{Kind: KindOperationInProgress}
)

// KindOf extracts the kind from err; unknown errors count as BACKEND_UNAVAILABLE.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackendUnavailable
}

// AsError converts any error into an *Error, wrapping foreign errors as BACKEND_UNAVAILABLE.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindBackendUnavailable, Message: "service temporarily unavailable"}
}
