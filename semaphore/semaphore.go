// Package semaphore implements a counting semaphore whose waiters are
// served in priority order rather than strict FIFO: the
// highest-priority blocked thread is the one a Post wakes, matching
// the priority-ordered waiting every other kernel primitive gives.
package semaphore

import (
	"container/heap"

	"github.com/nradulovic/nkernel/kernel"
	"github.com/nradulovic/nkernel/timer"
)

// waiter is one blocked thread's entry in the priority queue. It also
// doubles as the argument passed to the timeout callback when the
// wait was a WaitTimeout: kernel.Kernel.Wake and the timer wheel both
// need to touch it, each under a different lock (the kernel's
// critical section and the wheel's own mutex respectively), so index
// must only ever be read/written from inside the kernel's critical
// section -- the one thing both paths already share.
type waiter struct {
	thd   *kernel.TCB
	index int
	seq   uint64
	tm    *timer.Timer
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

// Less orders by thread priority, highest first, matching the ready
// array's own priority ordering; ties break by seq (insertion order),
// giving FIFO among equal-priority waiters the way the ready array's
// own per-priority list does.
func (h waiterHeap) Less(i, j int) bool {
	if h[i].thd.Priority() != h[j].thd.Priority() {
		return h[i].thd.Priority() > h[j].thd.Priority()
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// Semaphore is a counting semaphore with a priority-ordered waiter
// queue, built on top of a Kernel's critical section rather than a Go
// mutex: Wait/Post need to touch the same ready-array and scheduler
// state a context switch does, so they share its lock instead of
// racing against it.
type Semaphore struct {
	k       *kernel.Kernel
	wheel   *timer.Wheel // nil unless constructed with NewTimed
	count   int
	waiters waiterHeap
	nextSeq uint64 // assigned under the kernel's critical section, see waiterHeap.Less
}

// New constructs a Semaphore with the given initial count. Wait will
// block when the count is exhausted; WaitTimeout is unavailable (use
// NewTimed to allow it).
func New(k *kernel.Kernel, count int) *Semaphore {
	s := &Semaphore{k: k, count: count}
	heap.Init(&s.waiters)
	return s
}

// NewTimed constructs a Semaphore whose WaitTimeout arms timeouts
// against wheel.
func NewTimed(k *kernel.Kernel, wheel *timer.Wheel, count int) *Semaphore {
	s := New(k, count)
	s.wheel = wheel
	return s
}

// TryWait acquires a unit without blocking, returning
// kernel.ErrInsufficientResource if none is available.
func (s *Semaphore) TryWait() error {
	var err error
	s.k.CriticalSection(func() {
		if s.count > 0 {
			s.count--
			return
		}
		err = kernel.ErrInsufficientResource
	})
	return err
}

// Wait acquires a unit, blocking the calling thread if none is
// currently available. The blocked thread is woken in priority order
// as other threads Post.
func (s *Semaphore) Wait() {
	s.k.CriticalSection(func() {
		if s.count > 0 {
			s.count--
			return
		}
		w := &waiter{thd: s.k.Current(), seq: s.nextSeq}
		s.nextSeq++
		heap.Push(&s.waiters, w)
		s.k.BlockCurrent()
	})
}

// WaitTimeout acquires a unit, blocking for at most ticks system ticks.
// It returns kernel.ErrTimeout if no unit became available in time.
// Requires a Semaphore constructed with NewTimed.
func (s *Semaphore) WaitTimeout(ticks uint32) error {
	if s.wheel == nil {
		return errNoTimer
	}

	w := &waiter{}
	acquired := false
	expired := false
	s.k.CriticalSection(func() {
		if s.count > 0 {
			s.count--
			acquired = true
			return
		}
		if ticks == 0 {
			expired = true
			return
		}
		w.thd = s.k.Current()
		w.seq = s.nextSeq
		s.nextSeq++
		heap.Push(&s.waiters, w)
		w.tm = timer.NewTimer()
		// Start never fails here: tick and callback are both always
		// valid, and w.tm was only just allocated so it can't already
		// be running.
		_ = s.wheel.Start(w.tm, ticks, s.onTimeout, w, timer.FlagOneShot)
		s.k.BlockCurrent()
	})
	if acquired {
		return nil
	}
	if expired {
		return kernel.ErrTimeout
	}
	return w.thd.WaitResult()
}

// onTimeout runs from Wheel.Advance, outside the wheel's own lock, so
// it is free to take the kernel's critical section itself. It only
// has work to do if this waiter is still in the queue -- if Post won
// the race and already popped it, w.index is -1 and the timer firing
// is a no-op.
func (s *Semaphore) onTimeout(arg any) {
	w := arg.(*waiter)
	s.k.CriticalSection(func() {
		if w.index < 0 {
			return
		}
		heap.Remove(&s.waiters, w.index)
		s.k.Wake(w.thd, kernel.ErrTimeout)
	})
}

// Post releases a unit: the highest-priority waiter is woken if one
// is queued, otherwise the count is incremented for a future Wait.
func (s *Semaphore) Post() {
	s.k.CriticalSection(func() {
		if s.waiters.Len() == 0 {
			s.count++
			return
		}
		w := heap.Pop(&s.waiters).(*waiter)
		if w.tm != nil {
			s.wheel.Cancel(w.tm)
		}
		s.k.Wake(w.thd, nil)
	})
}

// Abandon removes thd from this semaphore's waiter queue and cancels
// any timeout timer it had armed, without waking it or adjusting the
// count. A no-op if thd was never waiting here.
//
// The kernel has no visibility into which blocking primitive's waiter
// queue a thread is linked into, so Kernel.Terminate cannot clean this
// up itself: call Abandon on every semaphore a thread might be
// blocked in before terminating it.
func (s *Semaphore) Abandon(thd *kernel.TCB) {
	s.k.CriticalSection(func() {
		for _, w := range s.waiters {
			if w.thd != thd {
				continue
			}
			if w.tm != nil {
				s.wheel.Cancel(w.tm)
			}
			heap.Remove(&s.waiters, w.index)
			return
		}
	})
}

// Count returns the number of units currently available without
// blocking. Racy the instant it's read against a concurrent Wait or
// Post; intended for diagnostics and tests, not for flow control.
func (s *Semaphore) Count() int {
	var n int
	s.k.CriticalSection(func() { n = s.count })
	return n
}
