// Package timer implements the delta-encoded sorted timer wheel: a
// single intrusive list ordered by absolute deadline but storing only
// the delta to the previous entry, terminated by a sentinel holding
// TickMax. Every tick only costs a decrement of the head entry's
// delta; insertion and cancellation walk/patch the chain in O(n) over
// the number of armed timers, never over the tick count.
package timer

import (
	"math"
	"sync"

	"github.com/sourcegraph/log"

	"github.com/nradulovic/nkernel/internal/list"
)

// TickMax is the delta carried by the wheel's sentinel node: larger
// than any real timer could ever request, so the insertion walk
// always terminates at the sentinel instead of running off the list.
const TickMax uint32 = math.MaxUint32

// Flag controls a timer's behavior on expiry.
type Flag uint8

const (
	// FlagOneShot fires once and is left inert.
	FlagOneShot Flag = 0
	// FlagPeriodic re-arms itself with the same interval immediately
	// before invoking the callback, so a callback that cancels its own
	// timer sees it already running and can undo that.
	FlagPeriodic Flag = 1 << 0
)

const timerSignature = 0xdeedbeef

// Timer is a one-shot or periodic software timer. The application
// allocates one per use; the wheel only links it in intrusively.
type Timer struct {
	node *list.Node[Timer]

	remaining uint32 // delta to the previous entry in the wheel
	interval  uint32 // re-arm interval, 0 for a one-shot
	fn        func(arg any)
	arg       any

	signature uint32
}

// NewTimer constructs an inert Timer. Call Wheel.Start to arm it.
func NewTimer() *Timer {
	t := &Timer{}
	t.node = list.NewNode(t)
	return t
}

// Running reports whether the timer is currently armed.
func (t *Timer) Running() bool {
	return t.node.Queued()
}

// Wheel is the sorted timer wheel. Its mutex models the same critical
// section the original brackets timer.c's public functions with
// (ncore_lock_enter/exit) — a lock local to the wheel, independent of
// the scheduler's own port-level critical section.
type Wheel struct {
	mu       sync.Mutex
	logger   log.Logger
	sentinel *Timer
	chain    list.List[Timer]
}

// NewWheel constructs an empty timer wheel with its sentinel linked
// in as the sole entry.
func NewWheel() *Wheel {
	w := &Wheel{logger: log.Scoped("timer", "sorted software timer wheel")}
	w.sentinel = &Timer{remaining: TickMax, signature: timerSignature}
	w.sentinel.node = list.NewNode(w.sentinel)
	w.chain.PushBack(w.sentinel.node)
	return w
}

// insert walks forward from the sentinel's successor, subtracting
// each node's delta from the new timer's remaining count until it
// finds the node it belongs before, then patches deltas on both
// sides. Direct port of timer.c's insert_timer.
func (w *Wheel) insert(t *Timer) {
	current := w.sentinel.node.Next().Value()
	for current.remaining < t.remaining {
		t.remaining -= current.remaining
		current = current.node.Next().Value()
	}
	w.chain.InsertBefore(current.node, t.node)

	if current != w.sentinel {
		current.remaining -= t.remaining
	}
}

// remove unlinks t and, unless it was the last real entry before the
// sentinel, folds its remaining delta into the following node so the
// chain's total delay is preserved. Direct port of timer.c's
// ntimer_cancel_i plus remove_timer.
func (w *Wheel) remove(t *Timer) {
	next := t.node.Next().Value()
	if next != w.sentinel {
		next.remaining += t.remaining
	}
	w.chain.Remove(t.node)
}

// Start arms t to fire after tick ticks, invoking fn(arg) from within
// a Wheel.Advance call. If flags includes FlagPeriodic, t re-arms
// itself with the same tick interval immediately before each
// invocation of fn.
func (w *Wheel) Start(t *Timer, tick uint32, fn func(arg any), arg any, flags Flag) error {
	if tick == 0 {
		return errInvalidTick
	}
	if fn == nil {
		return errNilCallback
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t.Running() {
		return errAlreadyRunning
	}

	t.fn = fn
	t.arg = arg
	t.remaining = tick
	if flags&FlagPeriodic != 0 {
		t.interval = tick
	} else {
		t.interval = 0
	}
	t.signature = timerSignature
	w.insert(t)
	return nil
}

// Cancel disarms t. Canceling a timer that is not running is a no-op,
// matching ntimer_cancel's tolerance of redundant cancellation.
func (w *Wheel) Cancel(t *Timer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked(t)
}

func (w *Wheel) cancelLocked(t *Timer) {
	if !t.Running() {
		return
	}
	w.remove(t)
}

// Remaining returns the number of ticks until t next fires, or 0 if
// it is not running. This is the canonical, lock-taking variant (see
// DESIGN.md's Open Question #2): it walks backward from t to the
// sentinel summing deltas, since only the sum of all preceding deltas
// gives the true absolute remaining count.
func (w *Wheel) Remaining(t *Timer) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !t.Running() {
		return 0
	}
	var remaining uint32
	cursor := t
	for {
		remaining += cursor.remaining
		cursor = cursor.node.Prev().Value()
		if cursor == w.sentinel {
			break
		}
	}
	return remaining
}

// Advance decrements the wheel by one tick, firing and (for periodic
// timers) re-arming every entry whose delta reaches zero. Call from
// the system tick handler. Direct port of ncore_timer_isr: note that
// a periodic timer is reinserted into the chain *before* its callback
// runs, so a callback that wants to prevent its own next firing must
// call Cancel, observing the timer as already running.
//
// Callbacks run after the chain lock is released, unlike the
// original's ISR context (which never releases it, because nothing
// else can run while an ISR holds the CPU). A callback is free to
// call Start/Cancel on any timer, including its own, without
// deadlocking against the lock this method holds internally.
func (w *Wheel) Advance() {
	w.mu.Lock()

	if w.chain.Front().Value() == w.sentinel {
		w.mu.Unlock()
		return
	}

	var fired []*Timer
	current := w.chain.Front().Value()
	current.remaining--

	for current.remaining == 0 {
		w.remove(current)
		interval := current.interval
		if interval != 0 {
			current.remaining = interval
			w.insert(current)
		}
		fired = append(fired, current)

		if w.chain.Front().Value() == w.sentinel {
			break
		}
		current = w.chain.Front().Value()
	}
	w.mu.Unlock()

	for _, t := range fired {
		w.invoke(t)
	}
}

func (w *Wheel) invoke(t *Timer) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("timer callback panicked", log.String("panic", panicString(r)))
		}
	}()
	t.fn(t.arg)
}

func panicString(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "non-error panic value"
}
