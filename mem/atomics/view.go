package atomics

import "unsafe"

// A View is a scoped window on a value that lives in shared memory. Opening
// the view invalidates the lines of the value; releasing it purges them so
// peers can observe what was written through the view.
type View[T any] struct {
	core *Core
	ptr  *T
	open bool
}

// Open invalidates the lines of *p and returns a view on it.
func Open[T any](core *Core, p *T) *View[T] {
	core.cache.Invalidate(uintptr(unsafe.Pointer(p)), unsafe.Sizeof(*p))

	return &View[T]{core: core, ptr: p, open: true}
}

// Get returns the viewed value.
func (v *View[T]) Get() *T {
	v.mustBeOpen()
	return v.ptr
}

// Release purges the lines of the value and closes the view.
func (v *View[T]) Release() {
	v.mustBeOpen()
	v.core.cache.Purge(uintptr(unsafe.Pointer(v.ptr)), unsafe.Sizeof(*v.ptr))
	v.open = false
}

// Discard closes a view that was only read.
func (v *View[T]) Discard() {
	v.mustBeOpen()
	v.open = false
}

func (v *View[T]) mustBeOpen() {
	if !v.open {
		panic("view is closed")
	}
}

// Load reads a shared value through a view.
func Load[T any](core *Core, p *T) T {
	v := Open(core, p)
	defer v.Discard()

	return *v.Get()
}

// Store writes a shared value through a view.
func Store[T any](core *Core, p *T, value T) {
	v := Open(core, p)
	defer v.Release()

	*v.Get() = value
}

// ReadSlice copies src, which lives in shared memory, into dst after
// invalidating the lines of src. It returns the number of elements copied.
func ReadSlice[T any](core *Core, dst, src []T) int {
	if len(src) == 0 {
		return 0
	}

	core.cache.Invalidate(sliceRange(src))

	return copy(dst, src)
}

// WriteSlice copies src into dst, which lives in shared memory, and purges
// the lines of dst. It returns the number of elements copied.
func WriteSlice[T any](core *Core, dst, src []T) int {
	n := copy(dst, src)
	if n == 0 {
		return 0
	}

	core.cache.Purge(sliceRange(dst[:n]))

	return n
}

func sliceRange[T any](s []T) (uintptr, uintptr) {
	var zero T
	return uintptr(unsafe.Pointer(&s[0])), uintptr(len(s)) * unsafe.Sizeof(zero)
}

// InvalidateSlice invalidates the lines of a shared slice before it is read
// in place.
func InvalidateSlice[T any](core *Core, s []T) {
	if len(s) == 0 {
		return
	}

	core.cache.Invalidate(sliceRange(s))
}

// PurgeSlice purges the lines of a shared slice after it was written in
// place.
func PurgeSlice[T any](core *Core, s []T) {
	if len(s) == 0 {
		return
	}

	core.cache.Purge(sliceRange(s))
}
