package atomics

import (
	"sync/atomic"

	"github.com/manycore-odp/c2c/sim"
)

// A Core is the executing core's access path to shared words. All cores that
// share a word must use the same Variant.
type Core struct {
	name    string
	variant Variant
	cache   Cache
	backoff Backoff

	lockRetries atomic.Uint64
}

// CoreBuilder can build cores.
type CoreBuilder struct {
	variant Variant
	cache   Cache
	backoff Backoff
}

// MakeCoreBuilder creates a CoreBuilder with default parameters.
func MakeCoreBuilder() CoreBuilder {
	return CoreBuilder{
		variant: Native64,
		cache:   NopCache{},
		backoff: DefaultBackoff(),
	}
}

// WithVariant sets how the core performs 64-bit atomic operations.
func (b CoreBuilder) WithVariant(v Variant) CoreBuilder {
	b.variant = v
	return b
}

// WithCache sets the data cache of the core.
func (b CoreBuilder) WithCache(c Cache) CoreBuilder {
	b.cache = c
	return b
}

// WithBackoff sets the backoff policy used by Emulated64 cores.
func (b CoreBuilder) WithBackoff(backoff Backoff) CoreBuilder {
	b.backoff = backoff
	return b
}

// Build creates the core.
func (b CoreBuilder) Build(name string) *Core {
	sim.NameMustBeValid(name)

	if b.cache == nil {
		panic("core must have a cache")
	}

	if b.backoff.Initial <= 0 || b.backoff.Max < b.backoff.Initial {
		panic("invalid backoff")
	}

	return &Core{
		name:    name,
		variant: b.variant,
		cache:   b.cache,
		backoff: b.backoff,
	}
}

// Name returns the name of the core.
func (c *Core) Name() string {
	return c.name
}

// Variant returns how the core performs 64-bit atomic operations.
func (c *Core) Variant() Variant {
	return c.variant
}

// Cache returns the data cache of the core.
func (c *Core) Cache() Cache {
	return c.cache
}

// LockRetries returns how many times the core failed to take the lock of an
// emulated 64-bit word.
func (c *Core) LockRetries() uint64 {
	return c.lockRetries.Load()
}

func (c *Core) beforeAccess(addr, size uintptr, o Ordering) {
	if o.invalidatesBefore() {
		c.cache.Invalidate(addr, size)
	}
}

func (c *Core) afterAccess(addr, size uintptr, o Ordering) {
	if o.purgesAfter() {
		c.cache.Purge(addr, size)
	}
}

// Load32 reads a 32-bit word.
func (c *Core) Load32(w *Word32, o Ordering) uint32 {
	c.beforeAccess(w.addr(), 4, o)
	return atomic.LoadUint32(&w.v)
}

// Store32 writes a 32-bit word.
func (c *Core) Store32(w *Word32, v uint32, o Ordering) {
	atomic.StoreUint32(&w.v, v)
	c.afterAccess(w.addr(), 4, o)
}

// FetchAdd32 adds delta to a 32-bit word and returns the previous value.
func (c *Core) FetchAdd32(w *Word32, delta uint32, o Ordering) uint32 {
	c.beforeAccess(w.addr(), 4, o)
	old := atomic.AddUint32(&w.v, delta) - delta
	c.afterAccess(w.addr(), 4, o)

	return old
}

// CompareAndSwap32 replaces the word with new if it equals old.
func (c *Core) CompareAndSwap32(w *Word32, old, new uint32, o Ordering) bool {
	c.beforeAccess(w.addr(), 4, o)
	swapped := atomic.CompareAndSwapUint32(&w.v, old, new)
	c.afterAccess(w.addr(), 4, o)

	return swapped
}
