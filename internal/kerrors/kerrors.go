// Package kerrors implements the kernel-wide error taxonomy described in
// the network/storage subsystem spec: a small closed set of error kinds
// that every driver and protocol handler returns instead of ad-hoc string
// errors, adapted from the structured *Error type go-ublk uses to carry
// op/device/errno context through its driver stack.
package kerrors

import (
	"errors"
	"fmt"
	"syscall"
)

// Code is the high-level error category. The set is closed and mirrors
// spec.md §7's taxonomy; callers should switch on Code, not on message text.
type Code string

const (
	// BadParameter: invalid or NULL input from caller.
	BadParameter Code = "bad parameter"
	// NoPermission: operation blocked by policy (e.g. read-only disk).
	NoPermission Code = "no permission"
	// Unexpected: transient kernel resource exhaustion (allocator, cache-add).
	Unexpected Code = "unexpected"
	// NotImplemented: unsupported driver function.
	NotImplemented Code = "not implemented"
	// NetTxFail: driver-reported transmission failure.
	NetTxFail Code = "net tx fail"
	// Pending: operation cannot complete synchronously (ARP resolution in flight).
	Pending Code = "pending"
	// Timeout: bounded wait elapsed.
	Timeout Code = "timeout"
	// ChecksumMismatch: silently drops the offending packet at ingress.
	ChecksumMismatch Code = "checksum mismatch"
)

// Error is the structured error every package in this module returns.
type Error struct {
	Op     string       // operation that failed, e.g. "ARP_RESOLVE", "TCP_SEND"
	Device string       // device name/handle, empty if not device-scoped
	Code   Code         // high-level category
	Errno  syscall.Errno // underlying errno, 0 if not applicable
	Msg    string       // human-readable detail
	Inner  error        // wrapped cause
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Device != "" {
		parts = append(parts, fmt.Sprintf("device=%s", e.Device))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("kernel: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("kernel: %s", msg)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is lets errors.Is(err, kerrors.New("", kerrors.Pending, "")) match by Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// New creates a structured error.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewDevice creates a device-scoped structured error.
func NewDevice(op, device string, code Code, msg string) *Error {
	return &Error{Op: op, Device: device, Code: code, Msg: msg}
}

// NewErrno creates a structured error from a raw errno.
func NewErrno(op string, code Code, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// Wrap re-tags an existing error with a new operation name, preserving code
// and cause. If inner is already a *Error, its Code/Device/Errno survive;
// otherwise it is classified Unexpected (or mapped from a raw errno).
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ie, ok := inner.(*Error); ok {
		return &Error{Op: op, Device: ie.Device, Code: ie.Code, Errno: ie.Errno, Msg: ie.Msg, Inner: ie.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrno(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: Unexpected, Msg: inner.Error(), Inner: inner}
}

func mapErrno(errno syscall.Errno) Code {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG:
		return BadParameter
	case syscall.EPERM, syscall.EACCES:
		return NoPermission
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return NotImplemented
	case syscall.ENOMEM, syscall.ENOSPC:
		return Unexpected
	case syscall.ETIMEDOUT:
		return Timeout
	default:
		return Unexpected
	}
}

// IsCode reports whether err (or something it wraps) carries the given Code.
func IsCode(err error, code Code) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code == code
	}
	return false
}
