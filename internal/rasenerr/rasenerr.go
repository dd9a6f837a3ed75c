// Package rasenerr defines the error taxonomy the orchestrator uses to
// decide which failures are locally recoverable and which are fatal.
package rasenerr

import (
	"errors"
	"fmt"

	"github.com/rasenhq/rasen/internal/types"
)

// Kind classifies an Error into one of the seven categories the Main Loop
// treats differently.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindSession       Kind = "session"
	KindValidation    Kind = "validation"
	KindGit           Kind = "git"
	KindStore         Kind = "store"
	KindStall         Kind = "stall"
	KindUserCancelled Kind = "user_cancellation"
)

// Error is the single typed-error shape for the orchestrator, wrapping an
// underlying cause with a Kind (and, for stall conditions, the
// TerminationReason the Main Loop should report).
type Error struct {
	Kind              Kind
	TerminationReason types.TerminationReason
	Timeout           bool // session-specific: distinguishes timeout from idle-timeout
	Idle              bool
	SessionID         string
	Err               error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Configuration wraps a configuration-load or schema error. Fatal at startup.
func Configuration(format string, args ...any) *Error {
	return newErr(KindConfiguration, format, args...)
}

// Session wraps a subprocess failure. Locally recoverable unless the
// underlying cause is "runner unavailable" (missing child binary).
func Session(sessionID string, format string, args ...any) *Error {
	e := newErr(KindSession, format, args...)
	e.SessionID = sessionID
	return e
}

// SessionTimeout wraps a session that exceeded its hard timeout.
func SessionTimeout(sessionID string, timeout int) *Error {
	e := newErr(KindSession, "session timed out after %ds", timeout)
	e.SessionID = sessionID
	e.Timeout = true
	return e
}

// SessionIdleTimeout wraps a session that produced no output for too long.
func SessionIdleTimeout(sessionID string, idleSeconds int) *Error {
	e := newErr(KindSession, "session idle for %ds", idleSeconds)
	e.SessionID = sessionID
	e.Idle = true
	return e
}

// Validation wraps a backpressure or schema validation failure. Not an
// exceptional condition — just a false verdict surfaced through the same
// taxonomy for uniform handling.
func Validation(format string, args ...any) *Error {
	return newErr(KindValidation, format, args...)
}

// Git wraps a version-control operation failure. Not fatal; callers degrade
// to commit-count=0 / diff=placeholder.
func Git(format string, args ...any) *Error {
	return newErr(KindGit, format, args...)
}

// Store wraps a lock or (de)serialization failure in a state store. Fatal
// for the operation; the Main Loop terminates with TerminationError.
func Store(format string, args ...any) *Error {
	return newErr(KindStore, format, args...)
}

// Stall wraps a stall or consecutive-failure guard trip. Carries the
// TerminationReason the Main Loop must report.
func Stall(reason types.TerminationReason, format string, args ...any) *Error {
	e := newErr(KindStall, format, args...)
	e.TerminationReason = reason
	return e
}

// UserCancelled wraps a cooperative-shutdown termination.
func UserCancelled() *Error {
	e := newErr(KindUserCancelled, "shutdown requested")
	e.TerminationReason = types.TerminationUserCancelled
	return e
}

// As is a typed convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsKind reports whether err is (or wraps) a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
