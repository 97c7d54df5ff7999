package atomics

import (
	"fmt"
	"sync/atomic"
)

// Load64 reads a 64-bit word.
func (c *Core) Load64(w *Word64, o Ordering) uint64 {
	c.beforeAccess(w.addr(), 8, o)

	if c.variant == Native64 {
		return atomic.LoadUint64(&w.v)
	}

	c.lock(w)
	v := w.v
	c.unlock(w)

	return v
}

// Store64 writes a 64-bit word.
func (c *Core) Store64(w *Word64, v uint64, o Ordering) {
	if c.variant == Native64 {
		atomic.StoreUint64(&w.v, v)
	} else {
		c.lock(w)
		w.v = v
		c.unlock(w)
	}

	c.afterAccess(w.addr(), 8, o)
}

// FetchAdd64 adds delta to a 64-bit word and returns the previous value.
func (c *Core) FetchAdd64(w *Word64, delta uint64, o Ordering) uint64 {
	return c.update64(w, o, func(v uint64) uint64 { return v + delta })
}

// Or64 sets the bits of mask and returns the previous value.
func (c *Core) Or64(w *Word64, mask uint64, o Ordering) uint64 {
	return c.update64(w, o, func(v uint64) uint64 { return v | mask })
}

// AndNot64 clears the bits of mask and returns the previous value.
func (c *Core) AndNot64(w *Word64, mask uint64, o Ordering) uint64 {
	return c.update64(w, o, func(v uint64) uint64 { return v &^ mask })
}

// CompareAndSwap64 replaces the word with new if it equals old.
func (c *Core) CompareAndSwap64(w *Word64, old, new uint64, o Ordering) bool {
	c.beforeAccess(w.addr(), 8, o)

	var swapped bool
	if c.variant == Native64 {
		swapped = atomic.CompareAndSwapUint64(&w.v, old, new)
	} else {
		c.lock(w)
		if w.v == old {
			w.v = new
			swapped = true
		}
		c.unlock(w)
	}

	c.afterAccess(w.addr(), 8, o)

	return swapped
}

func (c *Core) update64(
	w *Word64,
	o Ordering,
	f func(uint64) uint64,
) uint64 {
	c.beforeAccess(w.addr(), 8, o)

	var old uint64
	if c.variant == Native64 {
		for {
			old = atomic.LoadUint64(&w.v)
			if atomic.CompareAndSwapUint64(&w.v, old, f(old)) {
				break
			}
		}
	} else {
		c.lock(w)
		old = w.v
		w.v = f(old)
		c.unlock(w)
	}

	c.afterAccess(w.addr(), 8, o)

	return old
}

// lock takes the lock field of an emulated word. The swap doubles as a
// test-and-set: a previous value of 0 means the lock was free.
func (c *Core) lock(w *Word64) {
	pauses := c.backoff.Initial

	for attempt := 1; ; attempt++ {
		if atomic.SwapUint32(&w.lock, 1) == 0 {
			return
		}

		c.lockRetries.Add(1)

		if c.backoff.MaxAttempts > 0 && attempt >= c.backoff.MaxAttempts {
			panic(fmt.Sprintf(
				"%s: lock of word %#x not released after %d attempts",
				c.name, w.addr(), attempt))
		}

		c.backoff.pause(attempt, pauses)
		pauses = c.backoff.next(pauses)
	}
}

func (c *Core) unlock(w *Word64) {
	atomic.StoreUint32(&w.lock, 0)
}
