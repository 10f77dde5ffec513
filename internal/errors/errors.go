// Package errors provides the error taxonomy shared by the claude-web services.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrDenied               = errors.New("access denied")
	ErrCorrupt              = errors.New("corrupt metadata")
	ErrPermission           = errors.New("permission denied")
	ErrTimeout              = errors.New("operation timed out")
	ErrCollaboratorNotFound = errors.New("Claude CLI not found. Please ensure Claude CLI is installed and in PATH.")
	ErrQueueFull            = errors.New("job queue is full")
)

// ProcessError is returned when the collaborator process exits non-zero.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return "Claude CLI command failed"
}

func (e *ProcessError) Unwrap() error { return e.Err }

// NewProcessError creates a ProcessError from an exit code and captured stderr.
func NewProcessError(exitCode int, stderr string, err error) *ProcessError {
	return &ProcessError{ExitCode: exitCode, Stderr: stderr, Err: err}
}

// Error carries a caller-facing message classified by one of the sentinels.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates an ErrNotFound error with a formatted message.
func NotFoundf(format string, args ...any) error {
	return Newf(ErrNotFound, format, args...)
}

// InvalidInputf creates an ErrInvalidInput error with a formatted message.
func InvalidInputf(format string, args ...any) error {
	return Newf(ErrInvalidInput, format, args...)
}

// Deniedf creates an ErrDenied error with a formatted message.
func Deniedf(format string, args ...any) error {
	return Newf(ErrDenied, format, args...)
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Is, As and New re-export the standard helpers so callers can import a single package.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
