// Command blinky is the reference demo application: two threads blink
// at different priorities, a third periodically posts a semaphore
// that a fourth waits on, all running on the goroutine-backed
// port/simport under a single kernel instance. It exists to exercise
// the kernel end to end the way the original's test/blinky fixture
// exercised the C kernel on real hardware.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sourcegraph/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nradulovic/nkernel/kernel"
	"github.com/nradulovic/nkernel/port/simport"
	"github.com/nradulovic/nkernel/semaphore"
	"github.com/nradulovic/nkernel/timer"
)

var (
	blinkyLogger log.Logger
	quantum      int
	runFor       time.Duration
)

func main() {
	liblog := log.Init(log.Resource{
		Name:    "blinky",
		Version: "dev",
	})
	defer liblog.Sync()
	blinkyLogger = log.Scoped("blinky", "nkernel reference demo")

	app := &cli.App{
		Name:  "blinky",
		Usage: "run the nkernel reference demo under the simulated port",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "quantum",
				Usage:       "round-robin quantum in ticks, 0 disables round robin",
				Value:       4,
				Destination: &quantum,
			},
			&cli.DurationFlag{
				Name:        "for",
				Usage:       "how long to let the demo run before shutting down",
				Value:       2 * time.Second,
				Destination: &runFor,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		blinkyLogger.Error(err.Error())
		os.Exit(1)
	}
}

const (
	prioBlinkFast = 3
	prioBlinkSlow = 2
	prioProducer  = 5
	prioConsumer  = 4
)

func run(cliCtx *cli.Context) error {
	ctx, cancel := context.WithTimeout(cliCtx.Context, runFor)
	defer cancel()

	var (
		k     *kernel.Kernel
		wheel *timer.Wheel
	)
	sp := simport.New(func() {
		if k == nil {
			return
		}
		k.IsrPrologue()
		k.Tick()
		k.IsrEpilogue()
		wheel.Advance()
	})

	var err error
	k, err = kernel.New(sp, kernel.WithRoundRobinQuantum(quantum))
	if err != nil {
		return err
	}
	if err := k.Init(); err != nil {
		return err
	}

	wheel = timer.NewWheel()
	sem := semaphore.NewTimed(k, wheel, 0)

	// The demo's threads each run at a distinct priority, so the
	// kernel's own round-robin bookkeeping never needs the tick
	// source (see evaluateSysTimer): arm it directly here instead, the
	// way a real board's always-on system timer would be, so the
	// semaphore's timeout wheel has something driving it.
	sp.TickStart(10 * time.Millisecond)
	defer sp.TickStop()

	g, gctx := errgroup.WithContext(ctx)

	fastLog := log.Scoped("blink-fast", "high-priority blinker")
	if _, err := k.Spawn(func(any) {
		blinkLoop(gctx, fastLog, "fast", 50*time.Millisecond)
	}, nil, prioBlinkFast, nil); err != nil {
		return err
	}

	slowLog := log.Scoped("blink-slow", "low-priority blinker")
	if _, err := k.Spawn(func(any) {
		blinkLoop(gctx, slowLog, "slow", 200*time.Millisecond)
	}, nil, prioBlinkSlow, nil); err != nil {
		return err
	}

	producerLog := log.Scoped("producer", "posts the demo semaphore periodically")
	if _, err := k.Spawn(func(any) {
		producerLoop(gctx, producerLog, sem, 100*time.Millisecond)
	}, nil, prioProducer, nil); err != nil {
		return err
	}

	consumerLog := log.Scoped("consumer", "waits on the demo semaphore with a timeout")
	if _, err := k.Spawn(func(any) {
		consumerLoop(gctx, consumerLog, sem)
	}, nil, prioConsumer, nil); err != nil {
		return err
	}

	g.Go(func() error {
		return k.Start() // never returns, on a real port or on simport; run stops waiting once ctx is done
	})

	<-gctx.Done()
	blinkyLogger.Info("shutting down", log.String("reason", gctx.Err().Error()))
	return nil
}

func blinkLoop(ctx context.Context, logger log.Logger, name string, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	on := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			on = !on
			logger.Debug("blink", log.String("led", name), log.Bool("on", on))
		}
	}
}

func producerLoop(ctx context.Context, logger log.Logger, sem *semaphore.Semaphore, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sem.Post()
			logger.Debug("posted")
		}
	}
}

func consumerLoop(ctx context.Context, logger log.Logger, sem *semaphore.Semaphore) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := sem.WaitTimeout(50); err != nil {
			logger.Debug("wait timed out", log.Error(err))
			continue
		}
		logger.Debug("consumed")
	}
}
