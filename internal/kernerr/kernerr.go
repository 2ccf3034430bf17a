// Package kernerr defines the kernel core's single error taxonomy.
//
// Fallible operations in the core return one of these codes, paired with
// context in an *Error whose Unwrap exposes the Code, so the value composes
// with fmt.Errorf("%w", ...) wrapping the way the rest of the pack wraps
// stdlib and third-party errors. Callers that need to branch on the failure
// kind use errors.Is against the sentinel Code values below.
package kernerr

import (
	"fmt"
)

// Code identifies one of the kernel core's error categories.
type Code int

const (
	RepeatInitialization Code = iota
	DevProbeError
	DevReadError
	DevWriteError
	InvalidParam
	NotEnoughMem
	InvalidCpuId
	InvalidVirtAddr
	DuplicateTaskId
	InvalidExecutorId
	DuplicateExecutorId
	InvalidInspectorId
	DuplicateInspectorId
	InvalidInspectorStatus
	InvalidRuntimeStatus
	InvalidTimedEventStatus
)

func (c Code) String() string {
	switch c {
	case RepeatInitialization:
		return "repeat initialization"
	case DevProbeError:
		return "device probe error"
	case DevReadError:
		return "device read error"
	case DevWriteError:
		return "device write error"
	case InvalidParam:
		return "invalid parameter"
	case NotEnoughMem:
		return "not enough memory"
	case InvalidCpuId:
		return "invalid cpu id"
	case InvalidVirtAddr:
		return "invalid virtual address"
	case DuplicateTaskId:
		return "duplicate task id"
	case InvalidExecutorId:
		return "invalid executor id"
	case DuplicateExecutorId:
		return "duplicate executor id"
	case InvalidInspectorId:
		return "invalid inspector id"
	case DuplicateInspectorId:
		return "duplicate inspector id"
	case InvalidInspectorStatus:
		return "invalid inspector status"
	case InvalidRuntimeStatus:
		return "invalid runtime status"
	case InvalidTimedEventStatus:
		return "invalid timed-event status"
	default:
		return fmt.Sprintf("kernerr.Code(%d)", int(c))
	}
}

// Error pairs a Code with freeform context, matching the %w-wrappable error
// values used across the pack (e.g. internal/linux/boot's "load kernel: %w"
// style). Unwrap exposes the bare Code so errors.Is(err, kernerr.DevWriteError)
// works without callers constructing an *Error for comparison.
type Error struct {
	Code    Code
	Context string
}

func (e *Error) Error() string {
	if e.Context == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Context)
}

func (e *Error) Unwrap() error { return e.Code }

// New constructs an *Error with the given code and formatted context.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Context: fmt.Sprintf(format, args...)}
}

func (c Code) Error() string { return c.String() }

var (
	_ error = Code(0)
	_ error = (*Error)(nil)
)
