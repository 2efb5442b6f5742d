package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/offlinedb/lib/engine"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface of an asynchronous key-value store holding values of type T.
//
// The store opens its database in the background. Every operation first waits until
// the database is ready; if it never becomes ready the operation fails with an *Error
// of code RetCNotReady. Errors of the engine are returned unmodified, so they can be
// matched with errors.Is against the engine sentinels.
type IStore[T any] interface {
	// Save inserts or replaces the value for key.
	Save(ctx context.Context, key string, value T) (err error)
	// Get returns the value for key. The boolean return value indicates whether a value for the key was found.
	Get(ctx context.Context, key string) (value T, found bool, err error)
	// Delete removes the value for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) (err error)
	// List returns all keys in the order of the engine.
	List(ctx context.Context) (keys []string, err error)
	// Clear deletes all keys one after another. It stops at the first failing delete,
	// keys deleted up to that point stay deleted.
	Clear(ctx context.Context) (err error)
	// Truncate deletes all keys at once: either all or none are removed. Engines
	// that can drop a collection outside a transaction do so, the others clear it
	// in a single transaction.
	Truncate(ctx context.Context) (err error)
	// Info returns metadata about the database underlying the store.
	Info(ctx context.Context) (info Info, err error)
	// State returns the current lifecycle state without waiting.
	State() State
	// Close releases the database. Operations after Close fail with RetCClosed.
	Close() (err error)
}

// Info describes the database underlying a store
type Info struct {
	Name       string                // name of the database
	Engine     engine.Implementation // engine the database is stored in
	Version    uint64                // schema version of the open connection
	Collection string                // collection holding the records
	Keys       int                   // number of records
}

// --------------------------------------------------------------------------
// Lifecycle State
// --------------------------------------------------------------------------

// State is the lifecycle state of a store
type State int32

const (
	StateOpening State = iota // the open sequence is still running
	StateReady                // a connection is available
	StateFailed               // the open sequence gave up or the connection was invalidated
	StateClosed               // Close was called
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the error that caused it.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, store.NewError(store.RetCNotReady, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new Error with the given code and message caused by err.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Command executed successfully.
	RetCInternalError                // 1: Command failed due to an internal error.
	RetCNotReady                     // 2: The store could not be initialized.
	RetCCodec                        // 3: The value could not be encoded or decoded.
	RetCClosed                       // 4: The store was closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCNotReady:
		return "NotReady"
	case RetCCodec:
		return "Codec"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// IsNotReady reports whether err is a readiness failure
func IsNotReady(err error) bool {
	return hasCode(err, RetCNotReady)
}

// IsClosed reports whether err was caused by using a closed store
func IsClosed(err error) bool {
	return hasCode(err, RetCClosed)
}

func hasCode(err error, code RetCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
