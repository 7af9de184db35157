package semaphore

import "github.com/cockroachdb/errors"

// errNoTimer is returned by WaitTimeout when the semaphore was built
// with New rather than NewTimed: waiting with a timeout needs a timer
// wheel to arm the timeout against.
var errNoTimer = errors.New("semaphore: WaitTimeout requires a semaphore constructed with NewTimed")
