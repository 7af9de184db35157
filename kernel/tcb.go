package kernel

import (
	"github.com/nradulovic/nkernel/internal/list"
	"github.com/nradulovic/nkernel/port"
)

// ThreadState is the lifecycle state of a TCB.
type ThreadState int

const (
	// ThreadDormant is the state of a TCB before Init and after Terminate.
	ThreadDormant ThreadState = iota
	// ThreadReady means the thread is linked into the ready array.
	ThreadReady
	// ThreadRunning means the thread currently owns the CPU.
	ThreadRunning
	// ThreadBlocked means the thread is linked into a semaphore's
	// waiter queue (or any other blocking primitive built on the same
	// queue machinery).
	ThreadBlocked
)

func (s ThreadState) String() string {
	switch s {
	case ThreadDormant:
		return "dormant"
	case ThreadReady:
		return "ready"
	case ThreadRunning:
		return "running"
	case ThreadBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

const tcbSignature = 0xfeedbeef

// TCB is a thread control block. Kernel.Spawn allocates one per
// thread and returns it to the caller; the application cannot supply
// its own TCB to Spawn. The kernel never frees a TCB.
type TCB struct {
	node *list.Node[TCB]

	stack    port.StackPointer
	entry    port.ThreadFunc
	arg      any

	basePriority int
	priority     int

	quantumReload  int
	quantumCounter int

	state ThreadState

	// waitResult carries the outcome of a timed blocking operation
	// back to the thread that issued it (ErrTimeout, or nil on a
	// normal wakeup) across the critical section boundary.
	waitResult error

	signature uint32
}

// Priority implements readyqueue.Prioritized.
func (t *TCB) Priority() int {
	return t.priority
}

// NewTCB constructs a TCB bound to an entry point, without linking it
// into any scheduler. Kernel.Spawn builds its threads with it; a TCB
// constructed directly has no stack and cannot be handed to Spawn.
func NewTCB(entry port.ThreadFunc, arg any, priority int) *TCB {
	t := &TCB{
		entry:        entry,
		arg:          arg,
		basePriority: priority,
		priority:     priority,
		state:        ThreadDormant,
		signature:    tcbSignature,
	}
	t.node = list.NewNode(t)
	return t
}

// State returns the thread's current lifecycle state.
func (t *TCB) State() ThreadState {
	return t.state
}

// BasePriority returns the thread's configured (non-boosted) priority.
func (t *TCB) BasePriority() int {
	return t.basePriority
}

// WaitResult returns the outcome of the most recent blocking
// operation this thread performed: nil for a normal wakeup, or the
// error (e.g. ErrTimeout) passed to Kernel.Wake.
func (t *TCB) WaitResult() error {
	return t.waitResult
}

// checkSignature verifies t hasn't been corrupted or reused without
// reinitialization. A Kernel method (not a TCB method) so it can route
// through k.assert's debugChecks gate and AssertHook.
func (k *Kernel) checkSignature(t *TCB) {
	k.assert("tcb", t.signature == tcbSignature, "invalid or corrupted TCB")
}
