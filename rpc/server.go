package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/sim"
	"github.com/manycore-odp/c2c/tracing"
)

// Errors of the server life cycle.
var (
	ErrStartFailed    = errors.New("rpc: server start failed")
	ErrAlreadyStarted = errors.New("rpc: server already started")
)

// ServerStats counts what a server did.
type ServerStats struct {
	Received         uint64
	Acked            uint64
	DispatchFailures uint64
	Malformed        uint64
}

type slot struct {
	remote int
	tag    int
	rx     []byte
	msg    []byte
}

// A Server receives the commands sent to one cluster and dispatches them to
// the registered handlers. Poll, Dispatch, Ack, ServeOne, and Serve must be
// called from a single goroutine.
type Server struct {
	*sim.HookableBase

	name         string
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
	entries      []HandlerEntry

	started bool
	table   *dispatchTable
	slots   []slot
	next    int

	irq  []atomics.Word64
	wake chan struct{}

	received         atomic.Uint64
	acked            atomic.Uint64
	dispatchFailures atomic.Uint64
	malformed        atomic.Uint64
}

// Name returns the name of the server.
func (s *Server) Name() string {
	return s.name
}

// Cluster returns the cluster the server runs on.
func (s *Server) Cluster() int {
	return s.cluster
}

// Mode returns how the server discovers landed messages.
func (s *Server) Mode() Mode {
	return s.mode
}

// Handlers returns the registered command families, ordered by opcode.
func (s *Server) Handlers() []HandlerEntry {
	if s.table == nil {
		return nil
	}

	entries := make([]HandlerEntry, len(s.table.entries))
	copy(entries, s.table.entries)

	return entries
}

// Stats returns the counters of the server.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Received:         s.received.Load(),
		Acked:            s.acked.Load(),
		DispatchFailures: s.dispatchFailures.Load(),
		Malformed:        s.malformed.Load(),
	}
}

// RxTag returns the receive tag holding the commands of a remote cluster.
func (s *Server) RxTag(remote int) int {
	return s.rxTagBase + remote
}

// Start registers the handlers, allocates one receive slot per remote
// cluster, and programs the transport to land commands into them. In
// InterruptMode, an event is also registered on every slot. Any failure aborts
// the start.
func (s *Server) Start() error {
	if s.started {
		return ErrAlreadyStarted
	}

	table, err := newDispatchTable(s.entries)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	size := MsgSize + s.maxPayload
	slots := make([]slot, s.numClusters)
	irqWords := (s.numClusters + 63) / 64
	s.irq = make([]atomics.Word64, irqWords)

	for r := range slots {
		sl := &slots[r]
		sl.remote = r
		sl.tag = s.RxTag(r)

		sl.rx, err = s.allocator.Allocate(size)
		if err == nil && len(sl.rx) < size {
			err = fmt.Errorf("buffer of %d bytes, need %d", len(sl.rx), size)
		}

		if err != nil {
			return fmt.Errorf("%w: allocating slot of cluster %d: %w",
				ErrStartFailed, r, err)
		}

		sl.msg = make([]byte, size)

		err = s.transport.ConfigureRx(s.iface, sl.tag, sl.rx)
		if err != nil {
			return fmt.Errorf("%w: configuring slot of cluster %d: %w",
				ErrStartFailed, r, err)
		}

		if s.mode == InterruptMode {
			err = s.transport.RegisterEvent(
				s.iface, s.line, sl.tag, s.onEvent, r)
			if err != nil {
				return fmt.Errorf("%w: registering event of cluster %d: %w",
					ErrStartFailed, r, err)
			}
		}
	}

	s.table = table
	s.slots = slots
	s.started = true

	return nil
}

func (s *Server) onEvent(arg any) {
	remote := arg.(int)
	s.core.Or64(&s.irq[remote/64], 1<<uint(remote%64), atomics.Release)

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Poll returns the next command that landed, and the cluster it came from.
// The scan is round-robin over the remote clusters so that a busy cluster
// cannot starve the others. The payload of the message is valid until the
// next Poll returns a message from the same cluster.
func (s *Server) Poll() (*Msg, int, bool) {
	if !s.started {
		return nil, 0, false
	}

	for i := 0; i < s.numClusters; i++ {
		r := (s.next + i) % s.numClusters

		if s.mode == InterruptMode && !s.takeIRQ(r) {
			continue
		}

		msg, ok := s.receive(&s.slots[r])
		if !ok {
			continue
		}

		s.next = (r + 1) % s.numClusters

		return msg, r, true
	}

	return nil, 0, false
}

func (s *Server) takeIRQ(remote int) bool {
	mask := uint64(1) << uint(remote%64)
	old := s.core.AndNot64(&s.irq[remote/64], mask, atomics.AcqRel)

	return old&mask != 0
}

func (s *Server) receive(sl *slot) (*Msg, bool) {
	n, ok := s.transport.Poll(s.iface, sl.tag, sl.msg)
	if !ok {
		return nil, false
	}

	atomics.InvalidateSlice(s.core, sl.msg[:n])

	msg, err := Decode(sl.msg[:n])
	if err != nil {
		s.malformed.Add(1)
		s.InvokeHook(sim.HookCtx{
			Domain: s,
			Pos:    HookPosMsgMalformed,
			Item:   sl.remote,
			Detail: err,
		})

		return nil, false
	}

	s.received.Add(1)
	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosMsgRecv,
		Item:   msg,
	})

	return msg, true
}

// Dispatch hands a command to the handler registered for its opcode and
// acknowledges it with the handler's result. Nothing is acknowledged when the
// opcode is unknown or the handler fails.
func (s *Server) Dispatch(msg *Msg, remote int) error {
	if msg.Ack {
		return s.dispatchFailed(msg, ErrUnexpectedAck)
	}

	entry := s.lookup(msg.Opcode)
	if entry == nil {
		return s.dispatchFailed(msg,
			fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, msg.Opcode))
	}

	taskID := sim.GetIDGenerator().Generate()
	tracing.StartTask(taskID, "", s, "rpc",
		fmt.Sprintf("%s:0x%02x", entry.Name, msg.Opcode), msg)
	defer tracing.EndTask(taskID, s)

	ack, err := entry.Handler.HandleRPC(remote, msg)
	if err != nil {
		tracing.AddTaskStep(taskID, s, "handler failed")

		return s.dispatchFailed(msg,
			fmt.Errorf("rpc: handler %s: %w", entry.Name, err))
	}

	tracing.AddTaskStep(taskID, s, "handled")

	return s.Ack(msg, ack)
}

func (s *Server) lookup(op Opcode) *HandlerEntry {
	if s.table == nil {
		return nil
	}

	return s.table.lookup(op)
}

func (s *Server) dispatchFailed(msg *Msg, err error) error {
	s.dispatchFailures.Add(1)
	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosDispatchFail,
		Item:   msg,
		Detail: err,
	})

	return err
}

// Ack turns msg into the acknowledgment carrying ack and sends it back to
// the receive resource named by the routing fields of the command. The
// sequence number is echoed unchanged.
func (s *Server) Ack(msg *Msg, ack Ack) error {
	msg.Ack = true
	msg.DataLen = 0
	msg.Payload = nil
	msg.Inline = ack.encode()

	b := msg.Encode()
	atomics.PurgeSlice(s.core, b)

	err := s.transport.Send(
		int(msg.Iface), int(msg.DmaID), int(msg.Tag), b, nil)
	if err != nil {
		return fmt.Errorf("rpc: acknowledging 0x%02x to %d/%d/%d: %w",
			msg.Opcode, msg.DmaID, msg.Iface, msg.Tag, err)
	}

	s.acked.Add(1)
	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosMsgAck,
		Item:   msg,
	})

	return nil
}

// ServeOne polls once and dispatches the command found, if any.
func (s *Server) ServeOne() (bool, error) {
	msg, remote, ok := s.Poll()
	if !ok {
		return false, nil
	}

	return true, s.Dispatch(msg, remote)
}

// Serve runs the dispatch loop until ctx is done. Dispatch failures are
// reported through hooks and do not stop the loop.
func (s *Server) Serve(ctx context.Context) error {
	if !s.started {
		return fmt.Errorf("rpc: serving %s before start", s.name)
	}

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		progress, _ := s.ServeOne()
		if progress {
			continue
		}

		if s.mode == InterruptMode {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}

			continue
		}

		timer.Reset(s.pollInterval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
