package kernel

import "github.com/nradulovic/nkernel/port"

// rdyAdd links thd into the ready array and notifies the scheduler if
// it outranks whatever is currently pending. Must be called inside a
// critical section. Direct port of esSchedRdyAddI.
func (k *Kernel) rdyAdd(thd *TCB) {
	k.checkSignature(thd)
	k.assert("scheduler", !thd.node.Queued(), "thread already queued")

	k.ready.Insert(thd.node)
	thd.state = ThreadReady

	if k.ready.LevelSize(thd.priority) == 2 {
		k.sysTimerUsers++
	}

	if k.pending != nil && thd.priority > k.pending.priority {
		k.pending = thd
	}
}

// rdyRm unlinks thd from the ready array. Must be called inside a
// critical section. Direct port of esSchedRdyRmI.
func (k *Kernel) rdyRm(thd *TCB) {
	k.checkSignature(thd)

	if k.ready.LevelSize(thd.priority) == 2 {
		k.sysTimerUsers--
	}
	k.ready.Remove(thd.node, thd.priority)

	if k.current == thd || k.pending == thd {
		k.pending = nil
	}
}

// yield re-evaluates the scheduler from thread context and requests a
// context switch if a higher-priority thread than the current one is
// now due to run. Direct port of esSchedYieldI.
func (k *Kernel) yield() {
	if k.state != StateRunning {
		return
	}

	newThd := k.pending
	if newThd == nil {
		newThd = k.ready.FetchFirst()
		k.pending = newThd
	}

	if newThd != k.current {
		k.evaluateSysTimer()
		if hook := k.cfg.hooks.ContextSwitch; hook != nil {
			hook.OnContextSwitch(k.current, newThd)
		}
		if k.metrics != nil {
			k.metrics.contextSwitches.Inc()
		}
		k.Stats.ContextSwitches.Inc()

		prev := k.current
		var prevStack port.StackPointer
		// prev.state is only bumped back to Ready here if prev is still
		// actually queued: a thread that just blocked or terminated was
		// already unlinked (and its state set) by rdyRm before this
		// call, and must not be stomped back to Ready.
		if prev != nil {
			if prev.node.Queued() {
				prev.state = ThreadReady
			}
			prevStack = prev.stack
		}
		newThd.state = ThreadRunning
		k.current = newThd

		k.port.RequestContextSwitch(prevStack, newThd.stack)
	}
}

// yieldIsr is the ISR-context counterpart of yield: it only takes
// effect when IsrIsLast reports this is the outermost nested ISR.
// Direct port of esSchedYieldIsrI.
func (k *Kernel) yieldIsr() {
	if !k.port.IsrIsLast() {
		return
	}

	switch k.state {
	case StateIsrRunning:
		k.state = StateRunning
	case StateIsrLocked:
		k.state = StateLocked
	}

	if k.state != StateRunning {
		return
	}

	newThd := k.pending
	if newThd == nil {
		newThd = k.ready.FetchFirst()
		k.pending = newThd
	}

	if newThd != k.current {
		k.evaluateSysTimer()
		if hook := k.cfg.hooks.ContextSwitch; hook != nil {
			hook.OnContextSwitch(k.current, newThd)
		}
		if k.metrics != nil {
			k.metrics.contextSwitches.Inc()
		}
		k.Stats.ContextSwitches.Inc()

		prev := k.current
		if prev != nil && prev.node.Queued() {
			prev.state = ThreadReady
		}
		newThd.state = ThreadRunning
		k.current = newThd

		k.port.RequestContextSwitchISR(newThd.stack)
	}
}

// evaluateSysTimer arms or disarms the tick source depending on
// whether any priority level currently holds more than one
// round-robin-eligible thread, the power-saving trick named
// esSysTmrEvaluateI in the original.
func (k *Kernel) evaluateSysTimer() {
	if k.cfg.roundRobinQuantum <= 0 {
		return
	}
	if k.sysTimerUsers > 0 && k.tickPeriod == 0 {
		k.tickPeriod = defaultTickPeriod
		k.port.TickStart(k.tickPeriod)
	} else if k.sysTimerUsers == 0 && k.tickPeriod != 0 {
		k.port.TickStop()
		k.tickPeriod = 0
	}
}
