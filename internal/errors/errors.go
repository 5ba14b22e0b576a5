// Package errors defines typed errors with categories for RPC error reporting.
// Every failure that reaches the dispatcher boundary carries a machine-readable
// kind and a human-friendly message; the message is what the RPC caller sees.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// so callers can use the standard errors.Is and errors.As on the wrapped cause.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// UninitializedSchema indicates a request for a schema id with no live session.
	UninitializedSchema Kind = "uninitialized_schema"
	// SchemaExists indicates initializeSchema was called for a live schema id.
	SchemaExists Kind = "schema_exists"
	// UnknownMethod indicates a request whose method has no handler.
	UnknownMethod Kind = "unknown_method"
	// UnsupportedExecutor indicates an executor mode this process refuses to run.
	UnsupportedExecutor Kind = "unsupported_executor"
	// UnsupportedAdapter indicates a driver adapter or URL scheme with no implementation.
	UnsupportedAdapter Kind = "unsupported_adapter"
	// EngineFailed indicates the engine connector raised or returned garbage.
	EngineFailed Kind = "engine_failed"
	// AdapterFailed indicates the driver adapter manager or adapter raised.
	AdapterFailed Kind = "adapter_failed"
	// TeardownFailed indicates releasing session resources did not fully succeed.
	TeardownFailed Kind = "teardown_failed"
	// InvalidConfig indicates the process configuration failed validation.
	InvalidConfig Kind = "invalid_config"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the outermost *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
