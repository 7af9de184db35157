package kernel

import "time"

// defaultTickPeriod is the period armed when round-robin first
// becomes necessary. The kernel always uses this period; no option
// changes it.
const defaultTickPeriod = 10 * time.Millisecond

// Tick performs one system tick's worth of round-robin quantum
// accounting. It does not switch threads itself: the rotation it
// records takes effect when IsrEpilogue re-evaluates the scheduler.
// Call from the ISR context, bracketed by IsrPrologue/IsrEpilogue.
// Direct port of esKernSysTmrI -> schedSysTmrI.
func (k *Kernel) Tick() {
	k.Stats.Ticks.Inc()
	if k.metrics != nil {
		k.metrics.ticks.Inc()
	}

	k.criticalSection(func() {
		k.quantumTick()
	})
}

// quantumTick is schedSysTmrI: round robin is skipped outright while
// the scheduler lock is held (see DESIGN.md's Open Question #3), and
// skipped for any thread at or above MAX_KERNEL_PRIO.
func (k *Kernel) quantumTick() {
	if k.state != StateRunning && k.state != StateIsrRunning {
		return
	}
	cthd := k.current
	if cthd == nil {
		return
	}
	if cthd.priority >= k.cfg.maxKernelPrio && k.cfg.maxKernelPrio > 0 {
		return
	}
	if k.ready.LevelSize(cthd.priority) <= 1 {
		return
	}

	cthd.quantumCounter--
	if cthd.quantumCounter > 0 {
		return
	}
	cthd.quantumCounter = cthd.quantumReload
	nthd := k.ready.Rotate(cthd.priority)

	if k.pending == cthd {
		k.pending = nthd
	}
}
