package rpc

import (
	"errors"
	"fmt"
	"sort"
)

// Errors related to handler registration and dispatch.
var (
	ErrUnknownOpcode       = errors.New("rpc: unknown opcode")
	ErrOverlappingHandlers = errors.New("rpc: overlapping opcode ranges")
	ErrInvalidHandlerEntry = errors.New("rpc: invalid handler entry")
	ErrUnexpectedAck       = errors.New("rpc: acknowledgment sent to a server")
)

// A Handler processes the commands of one command family.
type Handler interface {
	// HandleRPC processes a command received from cluster remote. The
	// returned acknowledgment is sent back to the sender. When an error is
	// returned, no acknowledgment is sent.
	//
	// The payload of msg is only valid until the handler returns.
	HandleRPC(remote int, msg *Msg) (Ack, error)
}

// HandlerFunc turns a function into a Handler.
type HandlerFunc func(remote int, msg *Msg) (Ack, error)

// HandleRPC calls the function.
func (f HandlerFunc) HandleRPC(remote int, msg *Msg) (Ack, error) {
	return f(remote, msg)
}

// HandlerEntry binds a range of opcodes, bounds included, to a handler.
type HandlerEntry struct {
	Name    string
	First   Opcode
	Last    Opcode
	Handler Handler
}

type dispatchTable struct {
	entries []HandlerEntry
}

func newDispatchTable(entries []HandlerEntry) (*dispatchTable, error) {
	sorted := make([]HandlerEntry, len(entries))
	copy(sorted, entries)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].First < sorted[j].First
	})

	for i, e := range sorted {
		if e.Handler == nil || e.First > e.Last || e.Name == "" {
			return nil, fmt.Errorf("%w: %q [%d, %d]",
				ErrInvalidHandlerEntry, e.Name, e.First, e.Last)
		}

		if i > 0 && sorted[i-1].Last >= e.First {
			return nil, fmt.Errorf("%w: %q and %q",
				ErrOverlappingHandlers, sorted[i-1].Name, e.Name)
		}
	}

	return &dispatchTable{entries: sorted}, nil
}

func (t *dispatchTable) lookup(op Opcode) *HandlerEntry {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Last >= op
	})

	if i < len(t.entries) && t.entries[i].First <= op {
		return &t.entries[i]
	}

	return nil
}
