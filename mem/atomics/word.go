package atomics

import "unsafe"

// Word32 is a 32-bit word shared between cores. It occupies a whole cache
// line so that maintenance on one word never touches another.
type Word32 struct {
	v uint32
	_ [CacheLineSize - 4]byte
}

func (w *Word32) addr() uintptr {
	return uintptr(unsafe.Pointer(&w.v))
}

// Word64 is a 64-bit word shared between cores. The lock field is only used
// by Emulated64 cores and sits in the same cache line as the value, so one
// invalidate or purge covers both.
type Word64 struct {
	v    uint64
	lock uint32
	_    [CacheLineSize - 12]byte
}

func (w *Word64) addr() uintptr {
	return uintptr(unsafe.Pointer(&w.v))
}
