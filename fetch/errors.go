package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrBodyUsed is returned when a body was already consumed by a different
	// consumer, or read directly through Body.
	ErrBodyUsed = errors.New("fetch: body already used")

	// ErrContextReleased is returned by Standard when the native context of a
	// request was recycled by its runtime, for example after a fasthttp
	// handler returned.
	ErrContextReleased = errors.New("fetch: native request context released")

	// ErrNoNativeContext is returned when an operation needs a native
	// request/response pair that the request doesn't carry.
	ErrNoNativeContext = errors.New("fetch: no native request context")

	// ErrResponseExtracted is returned by Response.Extract when called twice.
	ErrResponseExtracted = errors.New("fetch: response already extracted")
)

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("fetch: handler panic: %v", e.Value)
}

// Unwrap returns the recovered value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
