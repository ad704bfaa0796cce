// Package blockwheel is the public API of the deterministic control core
// for an append-style, single-file block storage engine with online
// defragmentation.
package blockwheel

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/behrlich/blockwheel/internal/block"
)

// Error represents a structured blockwheel error with context and errno
// mapping, adapted from go-ublk's device/queue-shaped Error into one keyed
// by the block a failing operation concerned.
type Error struct {
	Op      string        // Operation that failed (e.g., "WriteBlock", "Flush")
	BlockID block.Id      // Block id involved (zero value if not applicable)
	HasID   bool          // Whether BlockID is meaningful
	Code    ErrorCode     // High-level error category
	Errno   syscall.Errno // Underlying errno (0 if not applicable)
	Msg     string        // Human-readable message
	Inner   error         // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.HasID {
		parts = append(parts, fmt.Sprintf("block=%s", e.BlockID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("blockwheel: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("blockwheel: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support: two *Error values match on Code alone,
// matching go-ublk's comparison-by-category semantics.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents high-level error categories, adapted from go-ublk's
// UblkErrorCode to the block-storage domain: kernel/device failures become
// placement, corruption, and invariant failures.
type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "block not found"
	ErrCodeNoSpaceLeft        ErrorCode = "no space left"
	ErrCodeCorruptBlock       ErrorCode = "corrupt block"
	ErrCodeIOError            ErrorCode = "I/O error"
	ErrCodeInvariantViolation ErrorCode = "invariant violation"
	ErrCodeInvalidParameters  ErrorCode = "invalid parameters"
	ErrCodeClosed             ErrorCode = "engine closed"
	ErrCodeTimeout            ErrorCode = "timeout"
)

// Error constructors.

// NewError creates a new structured error with no block context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewBlockError creates a new structured error tied to a specific block.
func NewBlockError(op string, bid block.Id, code ErrorCode, msg string) *Error {
	return &Error{Op: op, BlockID: bid, HasID: true, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a new structured error carrying an errno.
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// WrapError wraps an existing error with blockwheel context.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if be, ok := inner.(*Error); ok {
		return &Error{
			Op:      op,
			BlockID: be.BlockID,
			HasID:   be.HasID,
			Code:    be.Code,
			Errno:   be.Errno,
			Msg:     be.Msg,
			Inner:   be.Inner,
		}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{
			Op:    op,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	return &Error{Op: op, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToCode maps syscall errno to blockwheel error codes, for errors
// surfaced by internal/interp/file's pread/pwrite/fdatasync calls.
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOSPC:
		return ErrCodeNoSpaceLeft
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidParameters
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	default:
		return ErrCodeIOError
	}
}

// IsCode checks if an error matches a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsErrno checks if an error matches a specific errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Errno == errno
	}
	return false
}
