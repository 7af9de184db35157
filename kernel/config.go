package kernel

import "github.com/prometheus/client_golang/prometheus"

// ContextSwitchHook is an optional extension invoked immediately
// before the kernel commits to switching execution from one thread to
// another, mirroring the original's CFG_HOOK_CTX_SW / userCtxSw.
type ContextSwitchHook interface {
	OnContextSwitch(from, to *TCB)
}

// IdleHook is an optional extension point for idling. The kernel
// stores it in Hooks but never invokes it: the scheduler has no idle
// path of its own and always requires at least one ready thread.
type IdleHook interface {
	OnIdle()
}

// ContextSwitchHookFunc adapts a function to a ContextSwitchHook.
type ContextSwitchHookFunc func(from, to *TCB)

// OnContextSwitch implements ContextSwitchHook.
func (f ContextSwitchHookFunc) OnContextSwitch(from, to *TCB) { f(from, to) }

// IdleHookFunc adapts a function to an IdleHook.
type IdleHookFunc func()

// OnIdle implements IdleHook.
func (f IdleHookFunc) OnIdle() { f() }

// Hooks bundles the kernel's optional extension points. A nil field
// is simply skipped; ENABLE_HOOKS in the original becomes "construct
// a non-empty Hooks" here.
type Hooks struct {
	ContextSwitch ContextSwitchHook
	Idle          IdleHook
}

// Config is the kernel's compile-time configuration block, applied at
// construction time via functional Options and validated eagerly.
type Config struct {
	priorityLevels   int
	roundRobinQuantum int
	maxKernelPrio    int
	adaptiveTick     bool
	debugChecks      bool
	hooks            Hooks
	registry         prometheus.Registerer
}

func defaultConfig() *Config {
	return &Config{
		priorityLevels:    32,
		roundRobinQuantum: 10,
		maxKernelPrio:     0,
		adaptiveTick:      false,
		debugChecks:       true,
	}
}

// Option configures a Kernel at construction time.
type Option func(*Config)

// WithPriorityLevels sets PRIORITY_LEVELS, the number of distinct
// thread priorities the ready array indexes.
func WithPriorityLevels(levels int) Option {
	return func(c *Config) { c.priorityLevels = levels }
}

// WithRoundRobinQuantum sets ROUND_ROBIN_QUANTUM, the number of ticks
// a thread may run before its priority group is rotated. A value of 0
// disables round robin entirely.
func WithRoundRobinQuantum(ticks int) Option {
	return func(c *Config) { c.roundRobinQuantum = ticks }
}

// WithMaxKernelPrio sets MAX_KERNEL_PRIO, the priority at and above
// which round robin never applies (kernel-reserved priorities run to
// completion or voluntary yield). The default of 0 exempts no
// priority.
func WithMaxKernelPrio(prio int) Option {
	return func(c *Config) { c.maxKernelPrio = prio }
}

// WithAdaptiveTick records the ADAPTIVE_TICK setting in the Config.
// No kernel code reads it: the tick source is never reprogrammed to a
// timer deadline and keeps firing at defaultTickPeriod while armed.
func WithAdaptiveTick(enabled bool) Option {
	return func(c *Config) { c.adaptiveTick = enabled }
}

// WithDebugChecks toggles DEBUG_CHECKS, the internal consistency
// assertions beyond the always-on argument validation.
func WithDebugChecks(enabled bool) Option {
	return func(c *Config) { c.debugChecks = enabled }
}

// WithHooks installs the optional context-switch and idle hooks,
// corresponding to ENABLE_HOOKS.
func WithHooks(h Hooks) Option {
	return func(c *Config) { c.hooks = h }
}

// WithMetricsRegisterer installs a Prometheus registerer the kernel
// registers its counters and gauges against. Metrics are a pure
// addition over the original's hook surface; omitting this option
// simply means no metrics are exported.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) { c.registry = reg }
}

func (c *Config) validate() error {
	if c.priorityLevels <= 0 || c.priorityLevels > 1<<16 {
		return errorf(ErrArgumentOutOfRange, "priority levels %d out of range", c.priorityLevels)
	}
	if c.roundRobinQuantum < 0 {
		return errorf(ErrArgumentOutOfRange, "round robin quantum %d must be >= 0", c.roundRobinQuantum)
	}
	if c.maxKernelPrio < 0 || c.maxKernelPrio >= c.priorityLevels {
		return errorf(ErrArgumentOutOfRange, "max kernel priority %d out of range", c.maxKernelPrio)
	}
	return nil
}
