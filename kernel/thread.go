package kernel

import "github.com/nradulovic/nkernel/port"

const defaultStackSize = 4096

// Spawn creates a new thread bound to entry, gives it an initial
// stack via the port, links it into the ready array, and yields if it
// now outranks the running thread. Direct port of esThdInit.
func (k *Kernel) Spawn(entry port.ThreadFunc, arg any, priority int, stack []byte) (*TCB, error) {
	if k.state == StateInactive {
		return nil, errorf(ErrObjectInWrongState, "Spawn called before Init")
	}
	if entry == nil {
		return nil, errorf(ErrObjectInWrongState, "Spawn called with a nil entry point")
	}
	if priority < 0 || priority >= k.cfg.priorityLevels {
		return nil, errorf(ErrArgumentOutOfRange, "priority %d out of range", priority)
	}
	if len(stack) == 0 {
		stack = make([]byte, defaultStackSize)
	}

	thd := NewTCB(entry, arg, priority)
	thd.quantumReload = k.cfg.roundRobinQuantum
	thd.quantumCounter = k.cfg.roundRobinQuantum
	thd.stack = k.port.StackInit(stack, entry, arg)

	k.criticalSection(func() {
		k.rdyAdd(thd)
		k.yield()
	})

	return thd, nil
}

// Terminate removes thd from the ready array (if it was linked into
// one) and marks it dormant. The kernel only knows about the ready
// array: if thd is currently blocked in a semaphore (or any other
// primitive built on Kernel.BlockCurrent), it is the caller's
// responsibility to remove thd from that primitive's own waiter queue
// first -- semaphore.Semaphore.Abandon does this for a Semaphore (see
// DESIGN.md's Open Question #1).
func (k *Kernel) Terminate(thd *TCB) error {
	k.checkSignature(thd)
	if thd.state == ThreadDormant {
		return errorf(ErrObjectInWrongState, "thread already terminated")
	}

	k.criticalSection(func() {
		if thd.state == ThreadReady || thd.state == ThreadRunning {
			if thd.node.Queued() {
				k.rdyRm(thd)
			}
		}
		thd.state = ThreadDormant
		if thd == k.current {
			k.pending = nil
		}
		k.yield()
	})
	return nil
}

// SetPriority changes thd's current priority, re-linking it into its
// queue at the new level and re-evaluating the scheduler. Direct port
// of esThdSetPrioI.
func (k *Kernel) SetPriority(thd *TCB, priority int) error {
	k.checkSignature(thd)
	if priority < 0 || priority >= k.cfg.priorityLevels {
		return errorf(ErrArgumentOutOfRange, "priority %d out of range", priority)
	}

	k.criticalSection(func() {
		raising := priority >= thd.priority
		if thd.node.Queued() {
			k.ready.Remove(thd.node, thd.priority)
			thd.priority = priority
			k.ready.Insert(thd.node)

			if raising {
				if k.pending == nil || priority > k.pending.priority {
					k.pending = thd
				}
			} else {
				k.pending = nil
			}
		} else {
			thd.priority = priority
		}
		k.yield()
	})
	return nil
}
