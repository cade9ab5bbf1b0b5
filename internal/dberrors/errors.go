// Package dberrors defines the error taxonomy shared by the SQL engine,
// storage layer, and wire protocol handlers.
package dberrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so protocol handlers can map it to a
// protocol-native error frame without string matching.
type Kind int

const (
	// KindParse is a SQL text rejected by the parser after dialect translation.
	KindParse Kind = iota
	// KindUnsupported is valid SQL that falls outside the implemented subset.
	KindUnsupported
	// KindUnknownIdentifier is a table, column, alias, or CTE that cannot be resolved.
	KindUnknownIdentifier
	// KindUnknownFunction is a function name absent from the function library.
	KindUnknownFunction
	// KindTypeMismatch is an operator or function applied to incompatible types.
	KindTypeMismatch
	// KindConstraintViolation is a PK/unique/NOT NULL violation.
	KindConstraintViolation
	// KindProtocol is malformed client bytes or an unsupported protocol message.
	KindProtocol
	// KindAuth is invalid credentials or an unsupported auth plugin.
	KindAuth
	// KindIO is an underlying socket or file error.
	KindIO
	// KindQueryTimeout is a per-query deadline exceeded.
	KindQueryTimeout
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindUnsupported:
		return "UnsupportedFeature"
	case KindUnknownIdentifier:
		return "UnknownIdentifier"
	case KindUnknownFunction:
		return "UnknownFunction"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindProtocol:
		return "Protocol"
	case KindAuth:
		return "Auth"
	case KindIO:
		return "Io"
	case KindQueryTimeout:
		return "QueryTimeout"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type raised across the engine and protocol
// layers. It wraps an optional cause so errors.Is/errors.As keep working
// through the taxonomy.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and ok=true.
// Unrecognized errors are reported as KindIO so callers default to closing
// the connection rather than silently continuing.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindIO, false
}
