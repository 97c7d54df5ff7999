package atomics

import (
	"sync/atomic"

	"github.com/manycore-odp/c2c/sim"
)

// CacheLineSize is the size of a data cache line in bytes.
const CacheLineSize = 64

// HookPosInvalidate marks when a range of lines is invalidated.
var HookPosInvalidate = &sim.HookPos{Name: "Cache Invalidate"}

// HookPosPurge marks when a range of lines is purged to memory.
var HookPosPurge = &sim.HookPos{Name: "Cache Purge"}

// A Cache is the data cache of the core that executes an access. Its
// operations act on every line overlapping [addr, addr+size).
type Cache interface {
	// Invalidate drops the cached copies so that the next read goes to
	// memory.
	Invalidate(addr, size uintptr)

	// Purge writes back dirty copies so that peers can observe them.
	Purge(addr, size uintptr)
}

// NopCache is the cache of a coherent host, where no maintenance is needed.
type NopCache struct{}

// Invalidate does nothing.
func (NopCache) Invalidate(_, _ uintptr) {}

// Purge does nothing.
func (NopCache) Purge(_, _ uintptr) {}

// LineRange is the detail attached to cache hooks.
type LineRange struct {
	Addr  uintptr
	Lines uint64
}

// CountingCache keeps track of the maintenance operations issued by a core.
// It does not hold data; it exists to make the visibility contract
// observable.
type CountingCache struct {
	*sim.HookableBase

	name        string
	invalidated atomic.Uint64
	purged      atomic.Uint64
}

// NewCountingCache creates a CountingCache.
func NewCountingCache(name string) *CountingCache {
	sim.NameMustBeValid(name)

	return &CountingCache{
		HookableBase: sim.NewHookableBase(),
		name:         name,
	}
}

// Name returns the name of the cache.
func (c *CountingCache) Name() string {
	return c.name
}

// Invalidate counts the lines invalidated.
func (c *CountingCache) Invalidate(addr, size uintptr) {
	lines := LinesSpanned(addr, size)
	c.invalidated.Add(lines)

	if c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    HookPosInvalidate,
			Item:   LineRange{Addr: lineStart(addr), Lines: lines},
		})
	}
}

// Purge counts the lines purged.
func (c *CountingCache) Purge(addr, size uintptr) {
	lines := LinesSpanned(addr, size)
	c.purged.Add(lines)

	if c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    HookPosPurge,
			Item:   LineRange{Addr: lineStart(addr), Lines: lines},
		})
	}
}

// Invalidations returns the number of lines invalidated so far.
func (c *CountingCache) Invalidations() uint64 {
	return c.invalidated.Load()
}

// Purges returns the number of lines purged so far.
func (c *CountingCache) Purges() uint64 {
	return c.purged.Load()
}

// LinesSpanned returns how many cache lines overlap [addr, addr+size).
func LinesSpanned(addr, size uintptr) uint64 {
	if size == 0 {
		return 0
	}

	first := lineStart(addr)
	last := lineStart(addr + size - 1)

	return uint64((last-first)/CacheLineSize) + 1
}

func lineStart(addr uintptr) uintptr {
	return addr &^ (CacheLineSize - 1)
}
