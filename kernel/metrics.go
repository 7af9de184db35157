package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Stats are lock-free counters updated on the scheduler's hot path.
// They use go.uber.org/atomic rather than the sync/atomic functions
// directly because several are read from the simulated ISR goroutine
// concurrently with writes from thread-context critical sections,
// same as the real port's interrupt-masking lock would require on
// hardware that lacked it.
type Stats struct {
	ContextSwitches atomic.Uint64
	Ticks           atomic.Uint64
	TimerFires      atomic.Uint64
	Idles           atomic.Uint64
}

type metrics struct {
	contextSwitches prometheus.Counter
	readyDepth      *prometheus.GaugeVec
	ticks           prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, levels int) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		contextSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nkernel",
			Name:      "context_switches_total",
			Help:      "Total number of context switches performed.",
		}),
		readyDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nkernel",
			Name:      "ready_queue_depth",
			Help:      "Number of threads ready to run, by priority.",
		}, []string{"priority"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nkernel",
			Name:      "ticks_total",
			Help:      "Total number of system ticks processed.",
		}),
	}
	reg.MustRegister(m.contextSwitches, m.readyDepth, m.ticks)
	return m
}
