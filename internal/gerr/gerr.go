// Package gerr implements the uniform error-kind model shared by every
// subsystem: a small set of named kinds, each carrying an originating
// file/line and a human message, classified at the process boundary into an
// exit code.
package gerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of propagation policy and exit
// code mapping. See spec §7.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindRuntime
	KindLogic
	KindFileParse
	KindLevelRange
	KindNotImplemented
	KindIO
	KindAppStalled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid-argument"
	case KindRuntime:
		return "runtime"
	case KindLogic:
		return "logic"
	case KindFileParse:
		return "file-parse"
	case KindLevelRange:
		return "level-range"
	case KindNotImplemented:
		return "not-implemented"
	case KindIO:
		return "io"
	case KindAppStalled:
		return "app-stalled"
	default:
		return "unknown"
	}
}

// exitCode is the small positive integer this kind maps to at the
// process boundary. ERROR_HELP has no Kind of its own: it is sentinel-only
// and always maps to 0, handled by ToExitCode's caller directly.
func (k Kind) exitCode() int {
	switch k {
	case KindInvalidArgument:
		return 1
	case KindRuntime:
		return 2
	case KindLogic:
		return 3
	case KindFileParse:
		return 4
	case KindLevelRange:
		return 5
	case KindNotImplemented:
		return 6
	case KindIO:
		return 7
	case KindAppStalled:
		return 8
	default:
		return 255
	}
}

// Error is the concrete error type raised throughout the core. It is never
// constructed directly outside this package; use the New/Wrap helpers so
// Code is always derived from Kind and File/Line hold what the caller
// passes.
type Error struct {
	Kind    Kind
	Code    int
	File    string
	Line    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%s:%d): %s: %v", e.Kind, e.File, e.Line, e.Message, e.cause)
	}
	return fmt.Sprintf("%s (%s:%d): %s", e.Kind, e.File, e.Line, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports kind equality, so errors.Is matches any two *Error values of
// the same Kind regardless of file, line or message.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New raises a new Error of the given kind at the given call site. Callers
// pass file/line explicitly rather than this function reaching into the
// stack itself, keeping it trivially testable.
func New(kind Kind, file string, line int, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Code:    kind.exitCode(),
		File:    file,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap attaches kind/location metadata to an existing error without losing
// it for errors.Is/As/Unwrap.
func Wrap(kind Kind, file string, line int, cause error, format string, args ...any) *Error {
	e := New(kind, file, line, format, args...)
	e.cause = cause
	return e
}

// KindOf extracts the Kind of err if it (or something it wraps) is a *Error,
// otherwise returns KindRuntime as the conservative default.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRuntime
}

// ToExitCode is the thin C-ABI-shim boundary function: a cmd/ binary calls
// it exactly once, after the core has finished raising and logging, to
// decide the process exit status. nil maps to 0 (success).
func ToExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return KindRuntime.exitCode()
}
