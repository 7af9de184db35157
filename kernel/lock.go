package kernel

import "github.com/nradulovic/nkernel/port"

// criticalSection brackets access to Kernel's shared fields with the
// port's interrupt mask, the Go rendering of PORT_CRITICAL_ENTER/EXIT.
func (k *Kernel) criticalSection(fn func()) {
	previous := k.port.IntMaskRaise(^port.Mask(0))
	defer k.port.IntMaskRestore(previous)
	fn()
}

// LockEnter enters the scheduler lock: threads keep running to
// completion of their current time slice, but no context switch
// happens until the matching number of LockExit calls have been made.
// Direct port of esKernLockEnterI.
func (k *Kernel) LockEnter() {
	k.criticalSection(func() {
		if k.state == StateRunning {
			k.state = StateLocked
		}
		if k.state == StateLocked {
			k.lockCount++
		}
	})
}

// LockExit leaves one level of the scheduler lock. When the last
// matching LockExit runs, the scheduler re-evaluates whether a switch
// is now due. Direct port of esKernLockExitI.
func (k *Kernel) LockExit() {
	k.criticalSection(func() {
		if k.state != StateLocked {
			return
		}
		k.lockCount--
		if k.lockCount == 0 {
			k.state = StateRunning
			k.yield()
		}
	})
}

// IsrPrologue marks simulated ISR entry. Call at the very start of an
// interrupt handler, before touching any kernel API.
func (k *Kernel) IsrPrologue() {
	k.criticalSection(func() {
		switch k.state {
		case StateRunning:
			k.state = StateIsrRunning
		case StateLocked:
			k.state = StateIsrLocked
		}
	})
}

// IsrEpilogue marks simulated ISR exit and, if this was the outermost
// nested ISR, re-evaluates the scheduler. Direct port of
// esKernIsrEpilogueI.
func (k *Kernel) IsrEpilogue() {
	k.yieldIsr()
}

// IsrLockEnter is the ISR-context counterpart of LockEnter, direct
// port of esKernLockIsrEnterI.
func (k *Kernel) IsrLockEnter() {
	k.criticalSection(func() {
		if k.state == StateIsrRunning {
			k.state = StateIsrLocked
		}
		if k.state == StateIsrLocked {
			k.lockCount++
		}
	})
}

// IsrLockExit is the ISR-context counterpart of LockExit, direct port
// of esKernLockIsrExitI.
func (k *Kernel) IsrLockExit() {
	k.criticalSection(func() {
		if k.state != StateIsrLocked {
			return
		}
		k.lockCount--
		if k.lockCount == 0 {
			k.state = StateIsrRunning
			k.yieldIsr()
		}
	})
}
