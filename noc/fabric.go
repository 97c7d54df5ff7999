// Package noc emulates the network-on-chip that moves RPC messages between
// clusters. Every cluster owns DMA interfaces, each exposing receive
// resources that land incoming messages into a buffer programmed by the
// receiver. A landing raises an event that can be polled or delivered on an
// interrupt line.
package noc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/sim"
)

// Hook positions of the fabric. The item is a Delivery.
var (
	HookPosNoCSend      = &sim.HookPos{Name: "NoCSend"}
	HookPosNoCLand      = &sim.HookPos{Name: "NoCLand"}
	HookPosNoCOverwrite = &sim.HookPos{Name: "NoCOverwrite"}
)

// A Delivery describes one message transfer.
type Delivery struct {
	Src, Dst   int
	Iface, Tag int
	Len        int
}

func (d Delivery) String() string {
	return fmt.Sprintf("%d->%d if%d tag%d len%d",
		d.Src, d.Dst, d.Iface, d.Tag, d.Len)
}

// Stats counts the transfers of a fabric.
type Stats struct {
	Sent       uint64
	Bytes      uint64
	Overwrites uint64
}

type resourceKey struct {
	cluster, iface, tag int
}

type rxResource struct {
	lock sync.Mutex
	buf  []byte
	n    int
	cb   func(arg any)
	arg  any
	line int
}

type dmaInterface struct {
	resources []rxResource
	pending   []atomics.Word64
}

type cluster struct {
	id     int
	fabric *Fabric
	ifaces []*dmaInterface
}

// Fabric connects a fixed set of clusters.
type Fabric struct {
	*sim.HookableBase

	name          string
	core          *atomics.Core
	numInterfaces int
	numRxTags     int
	numLines      int
	clusters      []*cluster

	faultLock sync.Mutex
	faults    map[resourceKey]error

	sent       atomic.Uint64
	bytes      atomic.Uint64
	overwrites atomic.Uint64
}

// Name returns the name of the fabric.
func (f *Fabric) Name() string {
	return f.name
}

// NumClusters returns the number of clusters attached to the fabric.
func (f *Fabric) NumClusters() int {
	return len(f.clusters)
}

// Stats returns the transfer counters.
func (f *Fabric) Stats() Stats {
	return Stats{
		Sent:       f.sent.Load(),
		Bytes:      f.bytes.Load(),
		Overwrites: f.overwrites.Load(),
	}
}

// Endpoint returns the view of the fabric from a cluster.
func (f *Fabric) Endpoint(clusterID int) *Endpoint {
	if clusterID < 0 || clusterID >= len(f.clusters) {
		panic(fmt.Sprintf("cluster %d is not attached to %s",
			clusterID, f.name))
	}

	return &Endpoint{cluster: f.clusters[clusterID]}
}

// FailConfigureRx makes the next ConfigureRx of a resource fail.
func (f *Fabric) FailConfigureRx(clusterID, iface, tag int) {
	f.faultLock.Lock()
	defer f.faultLock.Unlock()

	f.faults[resourceKey{clusterID, iface, tag}] = ErrInjectedFault
}

func (f *Fabric) takeFault(key resourceKey) error {
	f.faultLock.Lock()
	defer f.faultLock.Unlock()

	err, ok := f.faults[key]
	if !ok {
		return nil
	}

	delete(f.faults, key)

	return err
}

func (f *Fabric) lookup(
	clusterID, iface, tag int,
) (*dmaInterface, *rxResource, error) {
	if clusterID < 0 || clusterID >= len(f.clusters) {
		return nil, nil, fmt.Errorf("%w: %d", ErrNoSuchCluster, clusterID)
	}

	if iface < 0 || iface >= f.numInterfaces {
		return nil, nil, fmt.Errorf("%w: %d", ErrNoSuchInterface, iface)
	}

	if tag < 0 || tag >= f.numRxTags {
		return nil, nil, fmt.Errorf("%w: %d", ErrNoSuchTag, tag)
	}

	dma := f.clusters[clusterID].ifaces[iface]

	return dma, &dma.resources[tag], nil
}

func pendingBit(tag int) (word int, mask uint64) {
	return tag / 64, 1 << uint(tag%64)
}

func (f *Fabric) hook(pos *sim.HookPos, d Delivery) {
	if f.NumHooks() == 0 {
		return
	}

	f.InvokeHook(sim.HookCtx{
		Domain: f,
		Pos:    pos,
		Item:   d,
	})
}
