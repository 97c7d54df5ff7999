package ring

import "github.com/manycore-odp/c2c/mem/atomics"

// Builder can build rings.
type Builder struct {
	core          *atomics.Core
	capacity      int
	lowWatermark  int
	highWatermark int
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		capacity: 256,
	}
}

// WithCore sets the core whose primitives access the shared indices.
func (b Builder) WithCore(core *atomics.Core) Builder {
	b.core = core
	return b
}

// WithCapacity sets the number of handles the ring can hold.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

// WithLowWatermark sets the occupancy under which a pop reports the ring as
// running dry. Zero disables the report.
func (b Builder) WithLowWatermark(n int) Builder {
	b.lowWatermark = n
	return b
}

// WithHighWatermark sets the occupancy above which a push reports the ring as
// filling up. Zero disables the report.
func (b Builder) WithHighWatermark(n int) Builder {
	b.highWatermark = n
	return b
}

// Build creates a ring.
func (b Builder) Build(name string) *Ring {
	if b.core == nil {
		b.core = atomics.MakeCoreBuilder().Build(name + ".Core")
	}

	if b.lowWatermark < 0 || b.highWatermark < 0 {
		panic("watermarks must not be negative")
	}

	r := newRing(name, b.core)
	r.lowWatermark = uint32(b.lowWatermark)
	r.highWatermark = uint32(b.highWatermark)
	r.Init(b.capacity)

	return r
}
