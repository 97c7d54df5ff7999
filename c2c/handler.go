package c2c

import (
	"fmt"
	"sync/atomic"

	"github.com/manycore-odp/c2c/rpc"
	"github.com/manycore-odp/c2c/sim"
)

// HookPosC2CEvent is invoked after every C2C command. The item is an Event.
var HookPosC2CEvent = &sim.HookPos{Name: "C2C Event"}

// An Event is the outcome of one C2C command.
type Event struct {
	Op     rpc.Opcode
	Src    int
	Dst    int
	Result QueryResult
	Err    error
}

func (e Event) String() string {
	s := fmt.Sprintf("%s %d->%d", OpName(e.Op), e.Src, e.Dst)
	if e.Err != nil {
		s += " " + e.Err.Error()
	}

	return s
}

// A Handler serves the C2C command family from the status table it owns.
// Commands are expected to come from a single dispatch loop.
type Handler struct {
	*sim.HookableBase

	name     string
	table    *StatusTable
	snapshot atomic.Pointer[[]Cell]
}

// NewHandler creates a handler over a table.
func NewHandler(name string, table *StatusTable) *Handler {
	sim.NameMustBeValid(name)

	h := &Handler{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		table:        table,
	}
	h.publish()

	return h
}

// Name returns the name of the handler.
func (h *Handler) Name() string {
	return h.name
}

// NumClusters returns the number of clusters of the table.
func (h *Handler) NumClusters() int {
	return h.table.NumClusters()
}

// Cells returns the cells as of the last command, row by row. It may be
// called from any goroutine.
func (h *Handler) Cells() []Cell {
	return *h.snapshot.Load()
}

func (h *Handler) publish() {
	cells := h.table.Snapshot()
	h.snapshot.Store(&cells)
}

// Entry returns the registration of the handler.
func (h *Handler) Entry() rpc.HandlerEntry {
	return rpc.HandlerEntry{
		Name:    "C2C",
		First:   OpC2COpen,
		Last:    OpC2CQuery,
		Handler: h,
	}
}

// HandleRPC applies a C2C command sent by cluster remote. Protocol errors
// are reported in the acknowledgment, not as dispatch failures.
func (h *Handler) HandleRPC(remote int, msg *rpc.Msg) (rpc.Ack, error) {
	var (
		e   Event
		err error
	)

	e.Op = msg.Opcode
	e.Src = remote

	switch msg.Opcode {
	case OpC2COpen:
		args := DecodeOpenArgs(msg.Inline)
		e.Dst = int(args.Cluster)
		err = h.table.Open(e.Src, e.Dst, args.Params)
		h.publish()
	case OpC2CClose:
		e.Dst = int(DecodeCloseArgs(msg.Inline).Cluster)
		err = h.table.Close(e.Src, e.Dst)
		h.publish()
	case OpC2CQuery:
		e.Dst = int(DecodeQueryArgs(msg.Inline).Cluster)
		e.Result, err = h.table.Query(e.Src, e.Dst)
	default:
		return rpc.Ack{}, fmt.Errorf("%w: 0x%02x", rpc.ErrUnknownOpcode, msg.Opcode)
	}

	e.Err = err

	h.InvokeHook(sim.HookCtx{
		Domain: h,
		Pos:    HookPosC2CEvent,
		Item:   e,
	})

	return NewAck(e.Result, err), nil
}
