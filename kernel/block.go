package kernel

// CriticalSection runs fn with the scheduler's interrupt-masking
// critical section held. Exposed so a blocking primitive built on top
// of the kernel (a semaphore, a mutex, a message queue) can bracket
// its own waiter-queue bookkeeping and its calls to BlockCurrent/Wake
// with the same mask the scheduler itself uses, rather than
// introducing a second lock that would need its own ordering
// discipline against this one.
func (k *Kernel) CriticalSection(fn func()) {
	k.criticalSection(fn)
}

// BlockCurrent unlinks the calling thread from the ready array, marks
// it ThreadBlocked, and switches away from it. The caller is
// responsible for having already linked the thread into whatever
// waiter queue it will be woken from, inside the same
// CriticalSection — rdyRm/yield give up the CPU to the next ready
// thread, so nothing else happens here until a future Wake.
func (k *Kernel) BlockCurrent() *TCB {
	thd := k.current
	k.checkSignature(thd)
	k.rdyRm(thd)
	thd.waitResult = nil
	thd.state = ThreadBlocked
	k.yield()
	return thd
}

// Wake links thd back into the ready array carrying result as its
// wait outcome (nil for a normal wakeup, e.g. ErrTimeout for a timed
// wait that expired) and re-evaluates the scheduler. Must be called
// inside a CriticalSection.
func (k *Kernel) Wake(thd *TCB, result error) {
	k.checkSignature(thd)
	k.assert("scheduler", thd.state == ThreadBlocked, "Wake called on a thread that was not blocked")
	thd.waitResult = result
	k.rdyAdd(thd)
	k.yield()
}
