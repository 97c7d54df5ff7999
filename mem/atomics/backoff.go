package atomics

import "runtime"

// Backoff policy of Emulated64 cores when the lock of a word is taken.
const (
	// DefaultBackoffInitial is the number of pauses after the first failed
	// attempt.
	DefaultBackoffInitial = 1

	// DefaultBackoffMax caps the number of pauses between two attempts.
	DefaultBackoffMax = 64

	// DefaultMaxLockAttempts is the number of failed attempts after which
	// the lock holder is considered lost.
	DefaultMaxLockAttempts = 1 << 24
)

// Backoff controls how a core waits between two attempts to take the lock of
// an emulated 64-bit word. The wait doubles after every failure and never
// exceeds Max.
type Backoff struct {
	Initial     int
	Max         int
	MaxAttempts int

	// Pause is called with the number of pauses to perform. When nil, the
	// core yields the processor that many times.
	Pause func(attempt, pauses int)
}

// DefaultBackoff returns the backoff used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     DefaultBackoffInitial,
		Max:         DefaultBackoffMax,
		MaxAttempts: DefaultMaxLockAttempts,
	}
}

func (b Backoff) next(pauses int) int {
	pauses *= 2
	if pauses > b.Max {
		pauses = b.Max
	}

	return pauses
}

func (b Backoff) pause(attempt, pauses int) {
	if b.Pause != nil {
		b.Pause(attempt, pauses)
		return
	}

	for i := 0; i < pauses; i++ {
		runtime.Gosched()
	}
}
