package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nradulovic/nkernel/port"
)

// fakePort is a minimal port.Port for exercising the scheduler's
// bookkeeping without any real goroutine hand-off, so these tests
// stay synchronous and deterministic.
type fakePort struct {
	switches    int
	isrSwitches int
	tickStarted bool
	tickPeriod  time.Duration
}

func (p *fakePort) IntMaskRaise(to port.Mask) port.Mask                 { return 0 }
func (p *fakePort) IntMaskRestore(previous port.Mask)                   {}
func (p *fakePort) RequestContextSwitch(from, to port.StackPointer)     { p.switches++ }
func (p *fakePort) RequestContextSwitchISR(to port.StackPointer)        { p.isrSwitches++ }
func (p *fakePort) StackInit(stack []byte, fn port.ThreadFunc, arg any) port.StackPointer {
	return new(int)
}
func (p *fakePort) StartFirstThread(sp port.StackPointer) {}
func (p *fakePort) TickStart(period time.Duration) {
	p.tickStarted = true
	p.tickPeriod = period
}
func (p *fakePort) TickStop()                      { p.tickStarted = false }
func (p *fakePort) TickReload(period time.Duration) { p.tickPeriod = period }
func (p *fakePort) IsrIsLast() bool                  { return true }

func newTestKernel(t *testing.T, opts ...Option) (*Kernel, *fakePort) {
	t.Helper()
	fp := &fakePort{}
	k, err := New(fp, opts...)
	require.NoError(t, err)
	require.NoError(t, k.Init())
	return k, fp
}

func TestNewRejectsBadPriorityLevels(t *testing.T) {
	_, err := New(&fakePort{}, WithPriorityLevels(0))
	require.ErrorIs(t, err, ErrArgumentOutOfRange)
}

func TestInitThenStartLifecycle(t *testing.T) {
	k, _ := newTestKernel(t)
	require.Equal(t, StateInit, k.State())

	_, err := k.Spawn(func(any) {}, nil, 3, nil)
	require.NoError(t, err)

	require.NoError(t, k.Start())
	require.Equal(t, StateRunning, k.State())
	require.NotNil(t, k.Current())
}

func TestStartFailsWithNoReadyThread(t *testing.T) {
	k, _ := newTestKernel(t)
	err := k.Start()
	require.ErrorIs(t, err, ErrObjectInWrongState)
}

func TestSpawnPicksHighestPriority(t *testing.T) {
	k, _ := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 2, nil)
	require.NoError(t, err)
	_, err = k.Spawn(func(any) {}, nil, 5, nil)
	require.NoError(t, err)

	require.NoError(t, k.Start())
	require.Equal(t, 5, k.Current().Priority())
}

func TestHigherPrioritySpawnAfterStartRequestsSwitch(t *testing.T) {
	k, fp := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 2, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())

	before := fp.switches
	_, err = k.Spawn(func(any) {}, nil, 7, nil)
	require.NoError(t, err)

	require.Greater(t, fp.switches, before)
	require.Equal(t, 7, k.Current().Priority())
}

func TestLockEnterPreventsSwitchUntilExit(t *testing.T) {
	k, fp := newTestKernel(t)
	_, err := k.Spawn(func(any) {}, nil, 2, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())

	k.LockEnter()
	before := fp.switches
	_, err = k.Spawn(func(any) {}, nil, 7, nil)
	require.NoError(t, err)
	require.Equal(t, before, fp.switches, "no switch should occur while locked")
	require.Equal(t, StateLocked, k.State())

	k.LockExit()
	require.Greater(t, fp.switches, before, "switch should occur once the lock is released")
	require.Equal(t, 7, k.Current().Priority())
}

func TestAssertHookReceivesFaultInsteadOfPanicking(t *testing.T) {
	k, _ := newTestKernel(t)
	var got Fault
	k.AssertHook = func(f Fault) { got = f }

	require.NotPanics(t, func() {
		k.checkSignature(&TCB{}) // zero-value TCB carries no valid signature
	})
	require.Equal(t, "tcb", got.Component)
}

func TestAssertPanicsWithNoHookInstalled(t *testing.T) {
	k, _ := newTestKernel(t)
	require.Panics(t, func() {
		k.checkSignature(&TCB{})
	})
}

func TestAssertIsNoopWithDebugChecksDisabled(t *testing.T) {
	k, _ := newTestKernel(t, WithDebugChecks(false))
	k.AssertHook = func(Fault) { t.Fatal("AssertHook must not run with debugChecks disabled") }
	require.NotPanics(t, func() {
		k.checkSignature(&TCB{})
	})
}

func TestTerminateRemovesFromReadyQueue(t *testing.T) {
	k, _ := newTestKernel(t)
	low, err := k.Spawn(func(any) {}, nil, 1, nil)
	require.NoError(t, err)
	_, err = k.Spawn(func(any) {}, nil, 5, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())

	require.NoError(t, k.Terminate(low))
	require.Equal(t, ThreadDormant, low.State())
}

func TestQuantumRotatesWithinPriorityLevel(t *testing.T) {
	k, _ := newTestKernel(t, WithRoundRobinQuantum(2))
	a, err := k.Spawn(func(any) {}, nil, 4, nil)
	require.NoError(t, err)
	b, err := k.Spawn(func(any) {}, nil, 4, nil)
	require.NoError(t, err)
	require.NoError(t, k.Start())
	require.Equal(t, a, k.Current())

	// A real tick only promotes k.pending to k.current through
	// yieldIsr, invoked from IsrEpilogue -- bracket every tick the way
	// a real ISR must, matching spec §8 scenario 1 (A/B alternate at
	// ticks 2/4/6 as the *current* thread, not just as pending).
	k.IsrPrologue()
	k.Tick()
	k.IsrEpilogue()
	require.Equal(t, a, k.Current())

	k.IsrPrologue()
	k.Tick()
	k.IsrEpilogue()
	require.Equal(t, b, k.Current())

	k.IsrPrologue()
	k.Tick()
	k.IsrEpilogue()
	require.Equal(t, b, k.Current())

	k.IsrPrologue()
	k.Tick()
	k.IsrEpilogue()
	require.Equal(t, a, k.Current())

	k.IsrPrologue()
	k.Tick()
	k.IsrEpilogue()
	require.Equal(t, a, k.Current())

	k.IsrPrologue()
	k.Tick()
	k.IsrEpilogue()
	require.Equal(t, b, k.Current())
}
