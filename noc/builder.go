package noc

import (
	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/sim"
)

// Default fabric dimensions.
const (
	DefaultInterfaces = 4
	DefaultRxTags     = 256
	DefaultLines      = 8
)

// Builder can build fabrics.
type Builder struct {
	core          *atomics.Core
	numClusters   int
	numInterfaces int
	numRxTags     int
	numLines      int
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		numClusters:   1,
		numInterfaces: DefaultInterfaces,
		numRxTags:     DefaultRxTags,
		numLines:      DefaultLines,
	}
}

// WithCore sets the core used to update the event bitmaps.
func (b Builder) WithCore(core *atomics.Core) Builder {
	b.core = core
	return b
}

// WithNumClusters sets the number of clusters attached to the fabric.
func (b Builder) WithNumClusters(n int) Builder {
	b.numClusters = n
	return b
}

// WithInterfaces sets the number of DMA interfaces of every cluster.
func (b Builder) WithInterfaces(n int) Builder {
	b.numInterfaces = n
	return b
}

// WithRxTags sets the number of receive resources of every interface.
func (b Builder) WithRxTags(n int) Builder {
	b.numRxTags = n
	return b
}

// WithLines sets the number of interrupt lines of every cluster.
func (b Builder) WithLines(n int) Builder {
	b.numLines = n
	return b
}

// Build creates the fabric.
func (b Builder) Build(name string) *Fabric {
	sim.NameMustBeValid(name)

	if b.numClusters <= 0 || b.numInterfaces <= 0 ||
		b.numRxTags <= 0 || b.numLines <= 0 {
		panic("fabric dimensions must be positive")
	}

	if b.core == nil {
		b.core = atomics.MakeCoreBuilder().Build(name + ".Core")
	}

	f := &Fabric{
		HookableBase:  sim.NewHookableBase(),
		name:          name,
		core:          b.core,
		numInterfaces: b.numInterfaces,
		numRxTags:     b.numRxTags,
		numLines:      b.numLines,
		faults:        make(map[resourceKey]error),
	}

	words := (b.numRxTags + 63) / 64
	for c := 0; c < b.numClusters; c++ {
		cl := &cluster{id: c, fabric: f}

		for i := 0; i < b.numInterfaces; i++ {
			cl.ifaces = append(cl.ifaces, &dmaInterface{
				resources: make([]rxResource, b.numRxTags),
				pending:   make([]atomics.Word64, words),
			})
		}

		f.clusters = append(f.clusters, cl)
	}

	return f
}
