// Package ring provides a fixed-capacity ring of handles that any number of
// producers and consumers can use at the same time without locks.
//
// Producers and consumers each own a pair of indices. The head index marks
// slots that are reserved; the tail index marks slots whose content is safe
// to observe by the other side. A reservation advances the head with a
// compare-and-swap. Publication advances the tail, and tails move in the
// order reservations were granted: every context spins until the tail
// reaches the head it reserved from.
//
// Indices increase monotonically and wrap at the largest multiple of the
// capacity that fits in 32 bits, so slot positions stay continuous across
// the wrap.
package ring

import (
	"runtime"
	"sync/atomic"

	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/sim"
)

// MaxCapacity is the largest number of handles a ring can hold.
const MaxCapacity = 1 << 24

// SpinYieldThreshold is the number of spins on a tail index after which the
// waiting context yields the processor between checks.
const SpinYieldThreshold = 64

// Hook positions of a ring. The item is the number of handles moved.
var (
	HookPosRingPush          = &sim.HookPos{Name: "Ring Push"}
	HookPosRingPop           = &sim.HookPos{Name: "Ring Pop"}
	HookPosRingLowWatermark  = &sim.HookPos{Name: "Ring Low Watermark"}
	HookPosRingHighWatermark = &sim.HookPos{Name: "Ring High Watermark"}
)

// Handle is an opaque, pointer-sized reference to a buffer.
type Handle uintptr

// Stats are counters that describe contention on a ring.
type Stats struct {
	ProdRetries uint64
	ConsRetries uint64
	TailSpins   uint64
}

// Ring is a lock-free multi-producer multi-consumer ring of handles.
type Ring struct {
	*sim.HookableBase

	prodHead atomics.Word32
	prodTail atomics.Word32
	consHead atomics.Word32
	consTail atomics.Word32

	name     string
	core     *atomics.Core
	capacity uint32
	wrap     uint64
	slots    []Handle

	lowWatermark  uint32
	highWatermark uint32

	prodRetries atomic.Uint64
	consRetries atomic.Uint64
	tailSpins   atomic.Uint64
}

func newRing(name string, core *atomics.Core) *Ring {
	sim.NameMustBeValid(name)

	return &Ring{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		core:         core,
	}
}

// Init resets the ring to hold up to capacity handles. The ring must not be
// used concurrently until Init returns.
func (r *Ring) Init(capacity int) {
	if capacity <= 0 || capacity > MaxCapacity {
		panic("ring capacity out of range")
	}

	r.capacity = uint32(capacity)
	r.wrap = uint64(capacity) * ((1 << 32) / uint64(capacity))
	r.slots = make([]Handle, capacity)

	r.core.Store32(&r.prodHead, 0, atomics.Release)
	r.core.Store32(&r.prodTail, 0, atomics.Release)
	r.core.Store32(&r.consHead, 0, atomics.Release)
	r.core.Store32(&r.consTail, 0, atomics.Release)
}

// Name returns the name of the ring.
func (r *Ring) Name() string {
	return r.name
}

// Capacity returns the number of handles the ring can hold.
func (r *Ring) Capacity() int {
	return int(r.capacity)
}

// Size returns the occupancy of the ring.
func (r *Ring) Size() int {
	return r.Occupancy()
}

// Occupancy returns the number of published handles. The value is a
// snapshot and can be stale as soon as it is returned.
func (r *Ring) Occupancy() int {
	consTail := r.core.Load32(&r.consTail, atomics.Acquire)
	prodTail := r.core.Load32(&r.prodTail, atomics.Acquire)

	return int(r.distance(consTail, prodTail))
}

// Free returns the number of slots that producers can still reserve.
func (r *Ring) Free() int {
	consTail := r.core.Load32(&r.consTail, atomics.Acquire)
	prodHead := r.core.Load32(&r.prodHead, atomics.Acquire)

	return int(r.capacity - r.distance(consTail, prodHead))
}

// Stats returns the contention counters of the ring.
func (r *Ring) Stats() Stats {
	return Stats{
		ProdRetries: r.prodRetries.Load(),
		ConsRetries: r.consRetries.Load(),
		TailSpins:   r.tailSpins.Load(),
	}
}

// PopMulti moves up to len(out) handles from the ring into out. It returns
// the number of handles popped and the occupancy left after the pop. An
// empty ring pops nothing.
func (r *Ring) PopMulti(out []Handle) (n, remaining int) {
	if len(out) == 0 {
		return 0, r.Occupancy()
	}

	var head, next, count uint32

	for {
		head = r.core.Load32(&r.consHead, atomics.Acquire)
		prodTail := r.core.Load32(&r.prodTail, atomics.Acquire)

		if head == prodTail {
			return 0, 0
		}

		count = min(r.distance(head, prodTail), uint32(len(out)))
		if count == 0 {
			continue
		}

		next = r.advance(head, count)

		if r.core.CompareAndSwap32(&r.consHead, head, next, atomics.AcqRel) {
			break
		}

		r.consRetries.Add(1)
	}

	r.readSlots(out[:count], head)

	r.waitTail(&r.consTail, head)
	r.core.Store32(&r.consTail, next, atomics.Release)

	prodTail := r.core.Load32(&r.prodTail, atomics.Acquire)
	left := r.distance(next, prodTail)

	r.afterPop(count, left)

	return int(count), int(left)
}

// PushMulti moves as many handles as there are free slots into the ring. It
// returns the number of handles pushed and the number of free slots left
// after the push. A full ring accepts nothing.
func (r *Ring) PushMulti(handles []Handle) (n, free int) {
	if len(handles) == 0 {
		return 0, r.Free()
	}

	head, next, count := r.reserveProd(uint32(min(len(handles), MaxCapacity)))
	if count == 0 {
		return 0, 0
	}

	r.writeSlots(head, handles[:count])

	return r.publishProd(head, next, count)
}

// Node is an element of a singly linked chain of handles.
type Node struct {
	Handle Handle
	Next   *Node
}

// PushList moves up to n handles from a linked chain into the ring, without
// gathering them into an array first. It returns the number of handles
// pushed and the number of free slots left. The handles that were not pushed
// start at the node reached after skipping the pushed ones.
func (r *Ring) PushList(list *Node, n int) (pushed, free int) {
	length := 0
	for node := list; node != nil && length < n && length < MaxCapacity; node = node.Next {
		length++
	}

	if length == 0 {
		return 0, r.Free()
	}

	head, next, count := r.reserveProd(uint32(length))
	if count == 0 {
		return 0, 0
	}

	r.writeChain(head, list, count)

	return r.publishProd(head, next, count)
}

func (r *Ring) reserveProd(want uint32) (head, next, count uint32) {
	for {
		head = r.core.Load32(&r.prodHead, atomics.Acquire)
		consTail := r.core.Load32(&r.consTail, atomics.Acquire)

		free := r.capacity - r.distance(consTail, head)
		if free == 0 {
			return head, head, 0
		}

		count = min(free, want)
		next = r.advance(head, count)

		if r.core.CompareAndSwap32(&r.prodHead, head, next, atomics.AcqRel) {
			return head, next, count
		}

		r.prodRetries.Add(1)
	}
}

func (r *Ring) publishProd(head, next, count uint32) (n, free int) {
	r.waitTail(&r.prodTail, head)
	r.core.Store32(&r.prodTail, next, atomics.Release)

	consTail := r.core.Load32(&r.consTail, atomics.Acquire)
	left := r.capacity - r.distance(consTail, next)

	r.afterPush(count, left)

	return int(count), int(left)
}

// waitTail spins until the tail reaches the head a reservation started
// from, so that tails are published in reservation order.
func (r *Ring) waitTail(tail *atomics.Word32, expected uint32) {
	for spins := 0; r.core.Load32(tail, atomics.Acquire) != expected; spins++ {
		r.tailSpins.Add(1)

		if spins >= SpinYieldThreshold {
			runtime.Gosched()
		}
	}
}

func (r *Ring) readSlots(out []Handle, from uint32) {
	first, second := r.segments(from, uint32(len(out)))

	n := atomics.ReadSlice(r.core, out, first)
	atomics.ReadSlice(r.core, out[n:], second)
}

func (r *Ring) writeSlots(from uint32, handles []Handle) {
	first, second := r.segments(from, uint32(len(handles)))

	n := atomics.WriteSlice(r.core, first, handles)
	atomics.WriteSlice(r.core, second, handles[n:])
}

func (r *Ring) writeChain(from uint32, list *Node, count uint32) {
	first, second := r.segments(from, count)

	node := list
	for _, seg := range [][]Handle{first, second} {
		for i := range seg {
			seg[i] = node.Handle
			node = node.Next
		}

		atomics.PurgeSlice(r.core, seg)
	}
}

// segments returns the slot ranges covered by count slots starting at index
// from. The second range is empty unless the reservation wraps around the
// end of the slot array.
func (r *Ring) segments(from, count uint32) (first, second []Handle) {
	start := from % r.capacity
	end := start + count

	if end <= r.capacity {
		return r.slots[start:end], nil
	}

	return r.slots[start:], r.slots[:end-r.capacity]
}

func (r *Ring) advance(index, count uint32) uint32 {
	return uint32((uint64(index) + uint64(count)) % r.wrap)
}

// distance returns how far index to is ahead of index from. Indices of the
// two sides are read at different moments, so a stale read can put to
// behind from or more than a capacity ahead; both cases are clamped.
func (r *Ring) distance(from, to uint32) uint32 {
	var d uint64
	if to >= from {
		d = uint64(to - from)
	} else {
		d = uint64(to) + r.wrap - uint64(from)
	}

	if d > r.wrap/2 {
		return 0
	}

	return uint32(min(d, uint64(r.capacity)))
}

func (r *Ring) afterPop(count, remaining uint32) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(sim.HookCtx{
		Domain: r,
		Pos:    HookPosRingPop,
		Item:   int(count),
		Detail: int(remaining),
	})

	if r.lowWatermark > 0 && remaining < r.lowWatermark {
		r.InvokeHook(sim.HookCtx{
			Domain: r,
			Pos:    HookPosRingLowWatermark,
			Item:   int(remaining),
		})
	}
}

func (r *Ring) afterPush(count, free uint32) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(sim.HookCtx{
		Domain: r,
		Pos:    HookPosRingPush,
		Item:   int(count),
		Detail: int(free),
	})

	occupancy := r.capacity - free
	if r.highWatermark > 0 && occupancy > r.highWatermark {
		r.InvokeHook(sim.HookCtx{
			Domain: r,
			Pos:    HookPosRingHighWatermark,
			Item:   int(occupancy),
		})
	}
}
