// Package atomics provides the atomic primitives that cores use to share
// words in memory that is not kept coherent by hardware.
//
// Every primitive takes an explicit Ordering. Acquire-ordered accesses
// invalidate the cache line of the word before reading it; release-ordered
// accesses purge the line after writing it, so that a peer core that
// invalidates its own copy observes the new value. Relaxed accesses perform
// no cache maintenance at all.
//
// Two core variants are supported. Native64 cores update 64-bit words with a
// single instruction. Emulated64 cores do not have 64-bit atomics; a lock
// field that lives next to the value serializes updates and contending cores
// back off between attempts.
package atomics

// Ordering is the memory-ordering intent of an access.
type Ordering int

// Orderings that can be attached to an access.
const (
	Relaxed Ordering = iota
	Acquire
	Release
	AcqRel
)

func (o Ordering) String() string {
	switch o {
	case Relaxed:
		return "relaxed"
	case Acquire:
		return "acquire"
	case Release:
		return "release"
	case AcqRel:
		return "acq_rel"
	default:
		return "unknown"
	}
}

func (o Ordering) invalidatesBefore() bool {
	return o == Acquire || o == AcqRel
}

func (o Ordering) purgesAfter() bool {
	return o == Release || o == AcqRel
}

// Variant tells how a core implements 64-bit atomic operations.
type Variant int

// Supported core variants.
const (
	Native64 Variant = iota
	Emulated64
)

func (v Variant) String() string {
	switch v {
	case Native64:
		return "native64"
	case Emulated64:
		return "emulated64"
	default:
		return "unknown"
	}
}
