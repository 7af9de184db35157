// Package kernel implements the fixed-priority preemptive scheduler
// core: thread lifecycle, the ready array, the scheduler state
// machine, round-robin quantum rotation, and the two-tier
// critical-section lock. It is driven through the port.Port contract
// rather than touching any hardware directly.
package kernel

import (
	"time"

	"github.com/sourcegraph/log"

	"github.com/nradulovic/nkernel/port"
	"github.com/nradulovic/nkernel/readyqueue"
)

// State is the scheduler's top-level state, exactly the six states
// named in the component design.
type State int

const (
	// StateInactive is the state before Init is called.
	StateInactive State = iota
	// StateInit is the state between Init and Start.
	StateInit
	// StateRunning is normal preemptive scheduling.
	StateRunning
	// StateLocked means a thread holds the scheduler lock: threads
	// keep running but no context switch may occur.
	StateLocked
	// StateIsrRunning means an ISR is executing on top of a running
	// thread.
	StateIsrRunning
	// StateIsrLocked means an ISR is executing while the scheduler
	// lock is also held.
	StateIsrLocked
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateLocked:
		return "locked"
	case StateIsrRunning:
		return "isr-running"
	case StateIsrLocked:
		return "isr-locked"
	default:
		return "unknown"
	}
}

// Kernel is the scheduler singleton. Its fields are protected by the
// port's interrupt-masking critical section, not a Go mutex: exactly
// one logical "CPU" executes kernel code at a time, the same
// assumption the original's volatile global struct relies on.
type Kernel struct {
	cfg     *Config
	port    port.Port
	logger  log.Logger
	metrics *metrics
	Stats   Stats

	state   State
	current *TCB
	pending *TCB

	ready *readyqueue.Array[TCB]

	lockCount int

	sysTimerUsers int
	tickPeriod    time.Duration

	// AssertHook is invoked on an internal invariant violation in
	// place of the default panic, e.g. to log via sourcegraph/log and
	// halt instead of unwinding. Overridable by the application.
	AssertHook func(Fault)
}

// New constructs a Kernel in StateInactive. Call Init then Start to
// bring it up.
func New(p port.Port, opts ...Option) (*Kernel, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		cfg:     cfg,
		port:    p,
		logger:  log.Scoped("kernel", "preemptive scheduler core"),
		metrics: newMetrics(cfg.registry, cfg.priorityLevels),
		state:   StateInactive,
		ready:   readyqueue.New[TCB](cfg.priorityLevels),
	}
	if fs, ok := p.(port.FastScanner); ok {
		k.ready.WithScanner(fs)
	}
	return k, nil
}

// State returns the scheduler's current top-level state.
func (k *Kernel) State() State {
	return k.state
}

// Current returns the thread currently executing, or nil before Start.
func (k *Kernel) Current() *TCB {
	return k.current
}

// Init brings scheduler data structures up without starting
// multitasking, mirroring esKernInit.
func (k *Kernel) Init() error {
	if k.state != StateInactive {
		return errorf(ErrObjectInWrongState, "Init called in state %s", k.state)
	}
	k.state = StateInit
	return nil
}

// Start commits to multitasking and transfers control to the
// highest-priority ready thread. On a real port this never returns;
// the reference port blocks the calling goroutine forever.
func (k *Kernel) Start() error {
	if k.state != StateInit {
		return errorf(ErrObjectInWrongState, "Start called in state %s", k.state)
	}
	if k.ready.Empty() {
		return errorf(ErrObjectInWrongState, "Start called with no ready thread")
	}

	var first *TCB
	k.criticalSection(func() {
		first = k.ready.FetchFirst()
		k.current = first
		k.pending = first
		first.state = ThreadRunning
		k.state = StateRunning
		k.evaluateSysTimer()
	})

	k.port.StartFirstThread(first.stack)
	return nil
}
