// Package apperr defines the error kinds surfaced to users of the simulator.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a user-visible failure
type Kind int

const (
	Internal Kind = iota
	InvalidInput
	UnknownSymbol
	InsufficientFunds
	InsufficientShares
	AuthenticationFailed
	DuplicateUsername
	Unauthenticated
	ProviderUnavailable
)

var kindNames = map[Kind]string{
	Internal:             "internal error",
	InvalidInput:         "invalid input",
	UnknownSymbol:        "unknown symbol",
	InsufficientFunds:    "insufficient funds",
	InsufficientShares:   "insufficient shares",
	AuthenticationFailed: "authentication failed",
	DuplicateUsername:    "duplicate username",
	Unauthenticated:      "unauthenticated",
	ProviderUnavailable:  "quote provider unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error"
}

// Error is a typed failure carrying a human-readable reason
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// Sentinels for errors.Is; matching compares kinds only.
var (
	ErrInvalidInput         = &Error{Kind: InvalidInput}
	ErrUnknownSymbol        = &Error{Kind: UnknownSymbol}
	ErrInsufficientFunds    = &Error{Kind: InsufficientFunds}
	ErrInsufficientShares   = &Error{Kind: InsufficientShares}
	ErrAuthenticationFailed = &Error{Kind: AuthenticationFailed}
	ErrDuplicateUsername    = &Error{Kind: DuplicateUsername}
	ErrUnauthenticated      = &Error{Kind: Unauthenticated}
	ErrProviderUnavailable  = &Error{Kind: ProviderUnavailable}
)

// New creates an error of the given kind
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the reason to show a user. Internal errors never leak details.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == Internal {
		return "internal server error"
	}
	if e.Reason != "" {
		return e.Reason
	}
	return e.Kind.String()
}

// HTTPStatus maps a kind to the status code used at the request boundary.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, UnknownSymbol, InsufficientFunds, InsufficientShares:
		return http.StatusBadRequest
	case AuthenticationFailed:
		return http.StatusForbidden
	case DuplicateUsername:
		return http.StatusConflict
	case Unauthenticated:
		return http.StatusUnauthorized
	case ProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
