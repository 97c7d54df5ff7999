package c2c

import (
	"github.com/manycore-odp/c2c/datarecording"
	"github.com/manycore-odp/c2c/sim"
)

// EventTableName is the table EventRecorder writes into.
const EventTableName = "c2c_events"

type eventEntry struct {
	Time    float64
	Handler string
	Op      string
	Src     int
	Dst     int
	OK      bool
	Error   string
	MTU     uint32
	Closed  bool
	EAcces  bool
}

// EventRecorder is a hook that records every C2C command outcome.
type EventRecorder struct {
	recorder datarecording.DataRecorder
}

// NewEventRecorder creates the event table and returns the hook.
func NewEventRecorder(recorder datarecording.DataRecorder) *EventRecorder {
	recorder.CreateTable(EventTableName, eventEntry{})

	return &EventRecorder{recorder: recorder}
}

// Func records the event carried by the hook context.
func (r *EventRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosC2CEvent {
		return
	}

	e, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	entry := eventEntry{
		Time:   float64(ctx.Now),
		Op:     OpName(e.Op),
		Src:    e.Src,
		Dst:    e.Dst,
		OK:     e.Err == nil,
		MTU:    e.Result.MTU,
		Closed: e.Result.Closed,
		EAcces: e.Result.EAcces,
	}

	if named, ok := ctx.Domain.(sim.Named); ok {
		entry.Handler = named.Name()
	}

	if e.Err != nil {
		entry.Error = e.Err.Error()
	}

	r.recorder.InsertData(EventTableName, entry)
}
