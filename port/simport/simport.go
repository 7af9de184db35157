// Package simport is the reference Port implementation: a goroutine
// stands in for a CPU thread context, a mutex stands in for the
// interrupt mask, and a ticker goroutine stands in for the system
// timer interrupt.
//
// Limitation, stated plainly: Go gives no way to suspend an arbitrary
// running goroutine at an arbitrary instruction the way a hardware
// ISR suspends a CPU core. A context switch here only actually takes
// effect the next time the currently-running thread calls back into
// the kernel (Yield, a blocking semaphore wait, sleep, ...). This
// makes simport a faithful vehicle for the kernel's bookkeeping and
// ordering invariants, and for demo applications that yield
// cooperatively, but not a real-time guarantee.
package simport

import (
	"sync"
	"time"

	"github.com/derision-test/glock"
	"github.com/sourcegraph/log"

	"github.com/nradulovic/nkernel/port"
)

type threadState struct {
	resume chan struct{}
	fn     port.ThreadFunc
	arg    any
	once   sync.Once
}

func newThreadState(fn port.ThreadFunc, arg any) *threadState {
	return &threadState{resume: make(chan struct{}), fn: fn, arg: arg}
}

// SimPort is the goroutine-backed reference Port.
type SimPort struct {
	logger log.Logger

	// critMu models the interrupt mask: held for the duration of every
	// critical section, thread or ISR context alike, so the two never
	// observe each other's half-finished bookkeeping.
	critMu  sync.Mutex
	intMask port.Mask

	// mu guards the thread registry, independent of critMu so that a
	// context switch requested from within an already-held critical
	// section can't deadlock against itself.
	mu      sync.Mutex
	threads map[port.StackPointer]*threadState

	tickMu     sync.Mutex
	clock      glock.Clock
	tickPeriod time.Duration
	tickFn     func()
	tickDone   chan struct{}

	isrDepth int
}

// Option configures a SimPort at construction time.
type Option func(*SimPort)

// WithClock overrides the clock the simulated system timer ticks
// against, the same injection point sourcegraph's own
// internal/goroutine.PeriodicGoroutine exposes via glock. A test
// wiring glock.NewMockClock can then drive ticks deterministically
// instead of waiting on a real time.Timer.
func WithClock(clock glock.Clock) Option {
	return func(p *SimPort) { p.clock = clock }
}

// New constructs a SimPort. tickFn is invoked from the simulated ISR
// goroutine on every tick; it is expected to call into the kernel's
// tick handler.
func New(tickFn func(), opts ...Option) *SimPort {
	p := &SimPort{
		logger:  log.Scoped("simport", "goroutine-backed reference port"),
		threads: make(map[port.StackPointer]*threadState),
		tickFn:  tickFn,
		clock:   glock.NewRealClock(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// IntMaskRaise raises the simulated interrupt mask, serializing access
// to SimPort's internal bookkeeping the way a real mask serializes
// access to kernel globals against interrupts.
func (p *SimPort) IntMaskRaise(to port.Mask) port.Mask {
	p.critMu.Lock()
	previous := p.intMask
	p.intMask = to
	return previous
}

// IntMaskRestore restores a previously raised mask and releases the
// critical section lock taken by the matching IntMaskRaise.
func (p *SimPort) IntMaskRestore(previous port.Mask) {
	p.intMask = previous
	p.critMu.Unlock()
}

// StackInit registers a thread's entry point. The stack slice is
// accepted only to satisfy the Port contract a real port needs it
// for; simport does not touch it, Go goroutines manage their own
// stacks.
func (p *SimPort) StackInit(stack []byte, fn port.ThreadFunc, arg any) port.StackPointer {
	ts := newThreadState(fn, arg)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads[ts] = ts
	return ts
}

// StartFirstThread launches the first thread and blocks the caller,
// matching PORT_THD_START's "never returns" contract. The launch goes
// through the same lazy-start path as any later context switch, via
// wake's sync.Once.
func (p *SimPort) StartFirstThread(sp port.StackPointer) {
	ts := sp.(*threadState)
	p.wake(ts)
	select {} // never returns; the simulated CPU is now running threads
}

func (p *SimPort) runThread(ts *threadState) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("simulated thread panicked", log.String("panic", formatPanic(r)))
		}
	}()
	ts.fn(ts.arg)
}

// RequestContextSwitch hands control to the incoming thread and parks
// the calling thread (from) until it is resumed again. from is nil
// the very first time a thread is ever scheduled in.
//
// Callers always invoke this from inside a criticalSection, i.e. while
// holding critMu. A real context switch implicitly carries the
// interrupt mask state along with the rest of a thread's context: the
// thread being switched out resumes, later, exactly as masked as it
// was when it stopped running, and in the meantime anything else
// (another thread's critical section, the tick ISR) must be able to
// run in order to ever wake it. We model that by releasing critMu for
// the duration this goroutine is parked and reacquiring it before
// returning control to the caller, which still believes itself to be
// inside an unbroken critical section.
func (p *SimPort) RequestContextSwitch(from, to port.StackPointer) {
	if to == nil || to == from {
		return
	}

	toTS, haveTo := p.lookup(to)
	if !haveTo {
		return
	}
	p.wake(toTS)

	if from == nil {
		return
	}
	fromTS, haveFrom := p.lookup(from)
	if !haveFrom {
		return
	}
	p.critMu.Unlock()
	<-fromTS.resume
	p.critMu.Lock()
}

// RequestContextSwitchISR is the non-blocking ISR-context variant: it
// only wakes the incoming thread. The previously running thread will
// park itself the next time it calls RequestContextSwitch, at its own
// next checkpoint.
func (p *SimPort) RequestContextSwitchISR(to port.StackPointer) {
	if to == nil {
		return
	}
	toTS, ok := p.lookup(to)
	if !ok {
		return
	}
	p.wake(toTS)
}

func (p *SimPort) lookup(sp port.StackPointer) (*threadState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts, ok := p.threads[sp]
	return ts, ok
}

// wake starts ts's goroutine the first time it is ever woken, and
// signals its resume channel on every subsequent wake. A thread that
// was never started has no goroutine yet, so nothing is listening on
// resume; launching it here (rather than at StackInit time) means a
// thread created by Spawn only consumes a goroutine once the
// scheduler actually picks it.
func (p *SimPort) wake(ts *threadState) {
	started := false
	ts.once.Do(func() { started = true })
	if started {
		go p.runThread(ts)
		return
	}
	select {
	case ts.resume <- struct{}{}:
	default:
	}
}

// TickStart arms the simulated system timer against p.clock (a real
// glock.RealClock unless WithClock overrode it).
func (p *SimPort) TickStart(period time.Duration) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	p.tickPeriod = period
	if p.tickDone != nil {
		close(p.tickDone)
	}
	done := make(chan struct{})
	p.tickDone = done
	go p.tickLoop(done)
}

// TickStop disarms the simulated system timer.
func (p *SimPort) TickStop() {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	if p.tickDone != nil {
		close(p.tickDone)
		p.tickDone = nil
	}
}

// TickReload reprograms the tick period, used for ADAPTIVE_TICK mode.
// The running tickLoop picks up the new period the next time it reads
// p.tickPeriod; it is not interrupted mid-wait, matching the original
// port's ADAPTIVE_TICK note that a reload takes effect on the
// following tick.
func (p *SimPort) TickReload(period time.Duration) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	p.tickPeriod = period
}

// tickLoop waits out one period against p.clock, fires tickFn, and
// repeats until done is closed by TickStop (or superseded by a later
// TickStart).
func (p *SimPort) tickLoop(done chan struct{}) {
	for {
		p.tickMu.Lock()
		period := p.tickPeriod
		clock := p.clock
		p.tickMu.Unlock()

		select {
		case <-done:
			return
		case <-clock.After(period):
		}

		select {
		case <-done:
			return
		default:
		}
		p.tickFn()
	}
}

// IsrIsLast reports whether the calling ISR is the outermost one.
// simport only ever runs one ISR goroutine at a time (the tick
// driver), so nesting depth is tracked explicitly by EnterISR/ExitISR
// rather than inferred from hardware NVIC state.
func (p *SimPort) IsrIsLast() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isrDepth <= 1
}

// EnterISR marks simulated ISR entry, incrementing the nesting depth
// IsrIsLast reports against.
func (p *SimPort) EnterISR() {
	p.mu.Lock()
	p.isrDepth++
	p.mu.Unlock()
}

// ExitISR marks simulated ISR exit.
func (p *SimPort) ExitISR() {
	p.mu.Lock()
	if p.isrDepth > 0 {
		p.isrDepth--
	}
	p.mu.Unlock()
}

func formatPanic(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "non-error panic value"
}
