package timer

import "github.com/cockroachdb/errors"

var (
	// errInvalidTick is returned by Start when tick is 0: a timer must
	// fire at least one tick in the future.
	errInvalidTick = errors.New("timer: tick count must be > 0")

	// errNilCallback is returned by Start when fn is nil.
	errNilCallback = errors.New("timer: callback function must not be nil")

	// errAlreadyRunning is returned by Start on a timer that is
	// already armed; Cancel it first.
	errAlreadyRunning = errors.New("timer: already running")
)
