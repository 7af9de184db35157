package kernel

import "github.com/cockroachdb/errors"

// Sentinel errors for the external-facing error taxonomy. Bad
// arguments (an out-of-range priority, a nil entry point) and calls
// made in the wrong kernel state are returned as one of these.
// Internal consistency violations (a corrupted control block
// signature, a thread queued twice) are raised through the assert
// path and AssertHook instead.
var (
	// ErrArgumentOutOfRange is returned when a configuration value
	// (priority level count, quantum, ...) falls outside its legal
	// range.
	ErrArgumentOutOfRange = errors.New("kernel: argument out of range")

	// ErrObjectInWrongState is returned when an operation is
	// attempted against a kernel, thread, timer, or semaphore object
	// that is not in a state the operation permits.
	ErrObjectInWrongState = errors.New("kernel: object in wrong state")

	// ErrInsufficientResource is returned when a counting resource
	// (a semaphore with no available units and a non-blocking wait)
	// cannot satisfy a request.
	ErrInsufficientResource = errors.New("kernel: insufficient resource")

	// ErrInternalInvariantViolated names the class of fault in which
	// the kernel's own bookkeeping has become inconsistent. No kernel
	// function returns it: such faults are raised as a Fault through
	// AssertHook (or a panic) when DEBUG_CHECKS is enabled.
	ErrInternalInvariantViolated = errors.New("kernel: internal invariant violated")

	// ErrTimeout is returned by a timed wait that expired before the
	// resource became available.
	ErrTimeout = errors.New("kernel: wait timed out")
)

// Fault carries the detail behind an AssertHook invocation.
type Fault struct {
	Component string
	Message   string
}

func (f Fault) Error() string {
	return f.Component + ": " + f.Message
}

// errorf wraps a sentinel with a formatted, errors.Is-compatible
// message, in the shape cockroachdb/errors.Wrapf encourages.
func errorf(sentinel error, format string, args ...any) error {
	return errors.Wrapf(sentinel, format, args...)
}

// assert is the Go rendering of the original's ES_API_REQUIRE contract
// macro: a no-op unless k.cfg.debugChecks is set (the DEBUG_CHECKS
// build switch), in which case a false cond raises a Fault through
// k.AssertHook if one is set, or panics otherwise.
func (k *Kernel) assert(component string, cond bool, message string) {
	if !k.cfg.debugChecks || cond {
		return
	}
	fault := Fault{Component: component, Message: message}
	if k.AssertHook != nil {
		k.AssertHook(fault)
		return
	}
	panic(fault)
}
