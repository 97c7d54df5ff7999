package rpc

import (
	"time"

	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/sim"
)

// Defaults of servers and clients.
const (
	DefaultRxTagBase    = 16
	DefaultAckTag       = 8
	DefaultPollInterval = 50 * time.Microsecond
)

// Mode selects how a server learns about landed messages.
type Mode int

// Delivery modes.
const (
	// PollMode scans the receive resources.
	PollMode Mode = iota

	// InterruptMode registers an event on every receive resource and only
	// looks at the resources that raised one.
	InterruptMode
)

func (m Mode) String() string {
	switch m {
	case PollMode:
		return "poll"
	case InterruptMode:
		return "interrupt"
	default:
		return "unknown"
	}
}

// ServerBuilder can build servers.
type ServerBuilder struct {
	transport    Transport
	core         *atomics.Core
	allocator    Allocator
	cluster      int
	numClusters  int
	iface        int
	rxTagBase    int
	line         int
	mode         Mode
	maxPayload   int
	pollInterval time.Duration
	handlers     []HandlerEntry
}

// MakeServerBuilder creates a ServerBuilder with default parameters.
func MakeServerBuilder() ServerBuilder {
	return ServerBuilder{
		allocator:    HeapAllocator{},
		numClusters:  1,
		rxTagBase:    DefaultRxTagBase,
		maxPayload:   DefaultMaxPayload,
		pollInterval: DefaultPollInterval,
	}
}

// WithTransport sets the transport the server receives and replies through.
func (b ServerBuilder) WithTransport(t Transport) ServerBuilder {
	b.transport = t
	return b
}

// WithCore sets the core that performs cache maintenance on the slots.
func (b ServerBuilder) WithCore(core *atomics.Core) ServerBuilder {
	b.core = core
	return b
}

// WithAllocator sets where receive buffers come from.
func (b ServerBuilder) WithAllocator(a Allocator) ServerBuilder {
	b.allocator = a
	return b
}

// WithCluster sets the cluster the server runs on.
func (b ServerBuilder) WithCluster(id int) ServerBuilder {
	b.cluster = id
	return b
}

// WithNumClusters sets the number of clusters that may send commands.
func (b ServerBuilder) WithNumClusters(n int) ServerBuilder {
	b.numClusters = n
	return b
}

// WithInterface sets the DMA interface the server uses.
func (b ServerBuilder) WithInterface(iface int) ServerBuilder {
	b.iface = iface
	return b
}

// WithRxTagBase sets the receive tag of the slot of cluster 0. The slot of
// cluster r uses tag base+r.
func (b ServerBuilder) WithRxTagBase(base int) ServerBuilder {
	b.rxTagBase = base
	return b
}

// WithLine sets the interrupt line used in InterruptMode.
func (b ServerBuilder) WithLine(line int) ServerBuilder {
	b.line = line
	return b
}

// WithMode sets how landed messages are discovered.
func (b ServerBuilder) WithMode(m Mode) ServerBuilder {
	b.mode = m
	return b
}

// WithMaxPayload sets the largest out-of-band payload accepted.
func (b ServerBuilder) WithMaxPayload(n int) ServerBuilder {
	b.maxPayload = n
	return b
}

// WithPollInterval sets how long Serve sleeps when nothing landed in
// PollMode.
func (b ServerBuilder) WithPollInterval(d time.Duration) ServerBuilder {
	b.pollInterval = d
	return b
}

// WithHandlers sets the command families the server dispatches to.
func (b ServerBuilder) WithHandlers(entries ...HandlerEntry) ServerBuilder {
	b.handlers = append([]HandlerEntry(nil), entries...)
	return b
}

// Build creates a server. The server does not receive anything before Start
// is called.
func (b ServerBuilder) Build(name string) *Server {
	sim.NameMustBeValid(name)

	if b.transport == nil {
		panic("server must have a transport")
	}

	if b.numClusters <= 0 {
		panic("number of clusters must be positive")
	}

	if b.cluster < 0 || b.cluster >= b.numClusters {
		panic("cluster out of range")
	}

	if b.maxPayload < 0 || b.maxPayload > 0xffff {
		panic("max payload out of range")
	}

	if b.allocator == nil {
		panic("server must have an allocator")
	}

	if b.core == nil {
		b.core = atomics.MakeCoreBuilder().Build(name + ".Core")
	}

	return &Server{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		transport:    b.transport,
		core:         b.core,
		allocator:    b.allocator,
		cluster:      b.cluster,
		numClusters:  b.numClusters,
		iface:        b.iface,
		rxTagBase:    b.rxTagBase,
		line:         b.line,
		mode:         b.mode,
		maxPayload:   b.maxPayload,
		pollInterval: b.pollInterval,
		entries:      b.handlers,
		wake:         make(chan struct{}, 1),
	}
}

// ClientBuilder can build clients.
type ClientBuilder struct {
	transport    Transport
	core         *atomics.Core
	cluster      int
	iface        int
	ackIface     int
	rxTagBase    int
	ackTag       int
	pollInterval time.Duration
}

// MakeClientBuilder creates a ClientBuilder with default parameters.
func MakeClientBuilder() ClientBuilder {
	return ClientBuilder{
		ackIface:     -1,
		rxTagBase:    DefaultRxTagBase,
		ackTag:       DefaultAckTag,
		pollInterval: DefaultPollInterval,
	}
}

// WithTransport sets the transport of the client.
func (b ClientBuilder) WithTransport(t Transport) ClientBuilder {
	b.transport = t
	return b
}

// WithCore sets the core that performs cache maintenance on the buffers.
func (b ClientBuilder) WithCore(core *atomics.Core) ClientBuilder {
	b.core = core
	return b
}

// WithCluster sets the cluster the client runs on.
func (b ClientBuilder) WithCluster(id int) ClientBuilder {
	b.cluster = id
	return b
}

// WithInterface sets the DMA interface the client uses.
func (b ClientBuilder) WithInterface(iface int) ClientBuilder {
	b.iface = iface
	return b
}

// WithAckInterface sets the local DMA interface acknowledgments land on. It
// defaults to the interface commands are sent on.
func (b ClientBuilder) WithAckInterface(iface int) ClientBuilder {
	b.ackIface = iface
	return b
}

// WithRxTagBase must match the receive tag base of the servers called.
func (b ClientBuilder) WithRxTagBase(base int) ClientBuilder {
	b.rxTagBase = base
	return b
}

// WithAckTag sets the local receive tag acknowledgments land in.
func (b ClientBuilder) WithAckTag(tag int) ClientBuilder {
	b.ackTag = tag
	return b
}

// WithPollInterval sets the pause between two polls in Call.
func (b ClientBuilder) WithPollInterval(d time.Duration) ClientBuilder {
	b.pollInterval = d
	return b
}

// Build creates a client. Start must be called before sending.
func (b ClientBuilder) Build(name string) *Client {
	sim.NameMustBeValid(name)

	if b.transport == nil {
		panic("client must have a transport")
	}

	if b.cluster < 0 || b.ackTag < 0 {
		panic("invalid client address")
	}

	if b.ackIface < 0 {
		b.ackIface = b.iface
	}

	if b.ackIface > 0xff {
		panic("ack interface does not fit in a message")
	}

	if b.core == nil {
		b.core = atomics.MakeCoreBuilder().Build(name + ".Core")
	}

	return &Client{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		transport:    b.transport,
		core:         b.core,
		cluster:      b.cluster,
		iface:        b.iface,
		ackIface:     b.ackIface,
		rxTagBase:    b.rxTagBase,
		ackTag:       b.ackTag,
		pollInterval: b.pollInterval,
		buf:          make([]byte, MsgSize),
		landed:       make([]byte, MsgSize),
	}
}
