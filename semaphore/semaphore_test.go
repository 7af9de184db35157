package semaphore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nradulovic/nkernel/kernel"
	"github.com/nradulovic/nkernel/port"
	"github.com/nradulovic/nkernel/port/simport"
	"github.com/nradulovic/nkernel/timer"
)

// fakePort is a minimal synchronous port.Port: RequestContextSwitch
// never actually parks the calling goroutine, so these tests exercise
// the semaphore's bookkeeping (count, waiter heap ordering, state
// transitions) without needing a real thread to resume on another
// goroutine, the same style kernel's own tests use.
type fakePort struct{}

func (fakePort) IntMaskRaise(to port.Mask) port.Mask             { return 0 }
func (fakePort) IntMaskRestore(previous port.Mask)               {}
func (fakePort) RequestContextSwitch(from, to port.StackPointer) {}
func (fakePort) RequestContextSwitchISR(to port.StackPointer)    {}
func (fakePort) StackInit(stack []byte, fn port.ThreadFunc, arg any) port.StackPointer {
	return new(int)
}
func (fakePort) StartFirstThread(sp port.StackPointer) {}
func (fakePort) TickStart(period time.Duration)        {}
func (fakePort) TickStop()                             {}
func (fakePort) TickReload(period time.Duration)       {}
func (fakePort) IsrIsLast() bool                       { return true }

func newTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k, err := kernel.New(fakePort{}, kernel.WithRoundRobinQuantum(0))
	require.NoError(t, err)
	require.NoError(t, k.Init())
	return k
}

func TestTryWaitSucceedsWhileUnitsAvailable(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 1, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())

	s := New(k, 1)
	require.NoError(t, s.TryWait())
	require.Equal(t, 0, s.Count())
}

func TestTryWaitFailsWhenExhausted(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 1, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())

	s := New(k, 0)
	err = s.TryWait()
	require.ErrorIs(t, err, kernel.ErrInsufficientResource)
}

func TestWaitBlocksAndPostWakesHighestPriorityWaiter(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 1, nil)
	require.NoError(t, err)
	high, err := k.Spawn(func(any) {}, nil, 5, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())
	require.Equal(t, high, k.Current())

	s := New(k, 0)

	s.Wait() // called "as" high, which is k.Current()
	require.Equal(t, kernel.ThreadBlocked, high.State())
	require.NotEqual(t, high, k.Current())

	s.Post()
	// fakePort's RequestContextSwitch is a synchronous no-op, so the
	// bookkeeping for waking high and switching back to it (it
	// outranks low) completes entirely within this call.
	require.Equal(t, kernel.ThreadRunning, high.State())
	require.Equal(t, high, k.Current())
	require.Equal(t, 0, s.Count())
}

func TestPostWakesEqualPriorityWaitersInFIFOOrder(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 1, nil)
	require.NoError(t, err)
	a, err := k.Spawn(func(any) {}, nil, 5, nil)
	require.NoError(t, err)
	b, err := k.Spawn(func(any) {}, nil, 5, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())
	require.Equal(t, a, k.Current()) // a outranks the priority-1 thread and was spawned first

	s := New(k, 0)

	// a blocks first, then b -- both at the same priority, so Post must
	// wake them in that order rather than whatever order the heap
	// happens to store equal-priority entries in.
	s.Wait() // as a
	require.Equal(t, kernel.ThreadBlocked, a.State())
	require.Equal(t, b, k.Current())
	s.Wait() // as b
	require.Equal(t, kernel.ThreadBlocked, b.State())

	s.Post()
	require.Equal(t, kernel.ThreadRunning, a.State())
	require.Equal(t, a, k.Current())

	// b is woken second; at the same priority as the running a it does
	// not preempt, it only becomes ready.
	s.Post()
	require.Equal(t, kernel.ThreadReady, b.State())
	require.Equal(t, a, k.Current())
}

func TestPostIncrementsCountWithNoWaiters(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 1, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())

	s := New(k, 0)
	s.Post()
	require.Equal(t, 1, s.Count())
}

func TestAbandonRemovesWaiterAndCancelsTimer(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 1, nil)
	require.NoError(t, err)
	high, err := k.Spawn(func(any) {}, nil, 5, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())
	require.Equal(t, high, k.Current())

	wheel := timer.NewWheel()
	s := NewTimed(k, wheel, 0)

	// high blocks with a timeout armed against wheel.
	err = s.WaitTimeout(100)
	require.NoError(t, err) // fakePort never actually parks, so this returns once bookkeeping is done

	s.Abandon(high)
	require.Equal(t, 0, s.waiters.Len())

	// A terminated thread's abandoned wait must not still be postable.
	s.Post()
	require.Equal(t, 1, s.Count())
}

func TestWaitTimeoutWithoutWheelReturnsError(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 1, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())

	s := New(k, 0)
	err = s.WaitTimeout(5)
	require.ErrorIs(t, err, errNoTimer)
}

// The remaining tests drive a real goroutine-backed port end to end,
// since a timed wait's actual race against Post/expiry only means
// anything once something really suspends the calling goroutine --
// fakePort's RequestContextSwitch is a no-op and returns immediately,
// which would make WaitTimeout "complete" before a single tick could
// ever be advanced against it.
//
// These don't use goleak: a Port's StartFirstThread is contractually
// never supposed to return (PORT_THD_START on real hardware doesn't
// either -- it's the CPU's main loop), so the goroutine that calls
// Kernel.Start keeps running for the rest of the process by design,
// and goleak has no way to tell that apart from an actual leak.

func TestEndToEndWaitTimeoutExpires(t *testing.T) {
	sp := simport.New(func() {})
	k, err := kernel.New(sp, kernel.WithRoundRobinQuantum(0))
	require.NoError(t, err)
	require.NoError(t, k.Init())

	wheel := timer.NewWheel()
	s := NewTimed(k, wheel, 0)

	blocked := make(chan struct{})
	result := make(chan error, 1)
	_, err = k.Spawn(func(any) {
		close(blocked)
		result <- s.WaitTimeout(3)
	}, nil, 5, nil)
	require.NoError(t, err)

	_, err = k.Spawn(func(any) {
		<-blocked
		for i := 0; i < 3; i++ {
			wheel.Advance()
		}
	}, nil, 1, nil)
	require.NoError(t, err)

	go func() { _ = k.Start() }()

	select {
	case err := <-result:
		require.ErrorIs(t, err, kernel.ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitTimeout never returned")
	}
	require.Equal(t, 0, s.Count())
}

func TestEndToEndPostWinsAgainstExpiringTimeout(t *testing.T) {
	sp := simport.New(func() {})
	k, err := kernel.New(sp, kernel.WithRoundRobinQuantum(0))
	require.NoError(t, err)
	require.NoError(t, k.Init())

	wheel := timer.NewWheel()
	s := NewTimed(k, wheel, 0)

	blocked := make(chan struct{})
	result := make(chan error, 1)
	_, err = k.Spawn(func(any) {
		close(blocked)
		result <- s.WaitTimeout(5)
	}, nil, 5, nil)
	require.NoError(t, err)

	_, err = k.Spawn(func(any) {
		<-blocked
		s.Post()
	}, nil, 1, nil)
	require.NoError(t, err)

	go func() { _ = k.Start() }()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitTimeout never returned")
	}
	require.Equal(t, 0, s.Count())
}

func TestEndToEndBlockAndWakeAcrossRealThreads(t *testing.T) {
	sp := simport.New(func() {})
	k, err := kernel.New(sp, kernel.WithRoundRobinQuantum(0))
	require.NoError(t, err)
	require.NoError(t, k.Init())

	s := New(k, 0)
	consumed := make(chan struct{})

	_, err = k.Spawn(func(any) {
		s.Wait()
		close(consumed)
	}, nil, 5, nil)
	require.NoError(t, err)

	_, err = k.Spawn(func(any) {
		s.Post()
	}, nil, 1, nil)
	require.NoError(t, err)

	go func() { _ = k.Start() }()

	select {
	case <-consumed:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer thread never woke from Wait")
	}
}
