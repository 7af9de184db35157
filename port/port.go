// Package port declares the hardware abstraction the kernel core is
// compiled against. A concrete Port supplies everything that genuinely
// needs CPU-specific code: interrupt masking, the context-switch
// trigger, stack/thread bring-up, and the periodic tick source.
//
// The reference implementation, port/simport, stands in for real
// assembly on a goroutine-based "CPU": see its package doc for the
// cooperative-preemption limitation that implies.
package port

import "time"

// Mask is an opaque interrupt priority mask, raised and restored in
// matching pairs around a critical section. Its bit layout is
// CPU-specific; the core never inspects it, only threads it through.
type Mask uint32

// StackPointer is an opaque per-thread execution handle returned by
// StackInit and consumed by StartFirstThread. On real hardware this is
// literally a stack pointer value; a simulated port may use it as a
// lookup key into its own bookkeeping instead.
type StackPointer interface{}

// ThreadFunc is a thread's entry point, matching the original's
// `void (*thdf)(void *)` signature.
type ThreadFunc func(arg any)

// Port is the full hardware contract named in the component design.
type Port interface {
	// IntMaskRaise raises the interrupt mask to at least `to` and
	// returns the previous mask, to be handed back to IntMaskRestore.
	IntMaskRaise(to Mask) Mask

	// IntMaskRestore restores a previously raised interrupt mask.
	IntMaskRestore(previous Mask)

	// RequestContextSwitch is called by a thread that has just
	// determined, under the lock, that a higher-priority thread is now
	// pending. from is the caller's own stack handle (nil if this is
	// the very first switch), to is the thread to run next. Returns
	// once from has been resumed again.
	RequestContextSwitch(from, to StackPointer)

	// RequestContextSwitchISR is the ISR-context counterpart: called
	// from the tick/interrupt path, it must not block the caller. There
	// is no "from" — an ISR runs on top of whatever thread it
	// interrupted, which will park itself the next time it reaches a
	// kernel call, not as part of this call.
	RequestContextSwitchISR(to StackPointer)

	// StackInit prepares a thread's initial execution context without
	// starting it, mirroring PORT_CTX_INIT.
	StackInit(stack []byte, fn ThreadFunc, arg any) StackPointer

	// StartFirstThread transfers control to the first thread. On real
	// hardware this never returns; the reference port blocks the
	// calling goroutine forever.
	StartFirstThread(sp StackPointer)

	// TickStart arms the periodic tick source at the given period.
	TickStart(period time.Duration)

	// TickStop disarms the tick source.
	TickStop()

	// TickReload reprograms the tick period without a full stop/start,
	// used for ADAPTIVE_TICK.
	TickReload(period time.Duration)

	// IsrIsLast reports whether the calling ISR is the outermost one
	// on the current nesting stack, i.e. whether an ISR epilogue
	// should actually evaluate the scheduler.
	IsrIsLast() bool
}

// FastScanner is an optional narrower interface a Port may implement
// to supply a hardware instruction (CLZ/BSR) for the priority bitmap's
// highest-set-bit lookup instead of the portable bits.Len64 fallback.
type FastScanner interface {
	FindLastSet(w uint64) int
}

