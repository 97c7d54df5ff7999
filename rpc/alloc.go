package rpc

// An Allocator provides receive buffers.
type Allocator interface {
	Allocate(size int) ([]byte, error)
}

// AllocatorFunc turns a function into an Allocator.
type AllocatorFunc func(size int) ([]byte, error)

// Allocate calls the function.
func (f AllocatorFunc) Allocate(size int) ([]byte, error) {
	return f(size)
}

// HeapAllocator allocates buffers from the Go heap.
type HeapAllocator struct{}

// Allocate returns a zeroed buffer.
func (HeapAllocator) Allocate(size int) ([]byte, error) {
	return make([]byte, size), nil
}
