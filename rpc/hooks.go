package rpc

import (
	"fmt"
	"log"

	"github.com/manycore-odp/c2c/sim"
)

// Hook positions of servers and clients. The item is the *Msg concerned.
var (
	HookPosMsgRecv = &sim.HookPos{Name: "RPC Msg Recv"}
	HookPosMsgSend = &sim.HookPos{Name: "RPC Msg Send"}
	HookPosMsgAck  = &sim.HookPos{Name: "RPC Msg Ack"}

	// HookPosMsgMalformed carries the cluster index as the item and the
	// decoding error as the detail.
	HookPosMsgMalformed = &sim.HookPos{Name: "RPC Msg Malformed"}

	// HookPosDispatchFail carries the error as the detail.
	HookPosDispatchFail = &sim.HookPos{Name: "RPC Dispatch Fail"}
)

// MsgLogger is a hook for logging messages as they go through servers and
// clients.
type MsgLogger struct {
	sim.LogHookBase
}

// NewMsgLogger returns a new MsgLogger which will write into the logger.
func NewMsgLogger(logger *log.Logger) *MsgLogger {
	h := new(MsgLogger)
	h.Logger = logger

	return h
}

// Func writes the message information into the logger.
func (h *MsgLogger) Func(ctx sim.HookCtx) {
	msg, ok := ctx.Item.(*Msg)
	if !ok {
		return
	}

	domain := "-"
	if named, ok := ctx.Domain.(sim.Named); ok {
		domain = named.Name()
	}

	detail := ""
	if ctx.Detail != nil {
		detail = fmt.Sprint(ctx.Detail)
	}

	h.Logger.Printf(
		"%.10f,%s,%s,op=%d,ack=%t,from=%d,iface=%d,tag=%d,seq=%d,len=%d,%s\n",
		ctx.Now, domain, ctx.Pos.Name,
		msg.Opcode, msg.Ack, msg.DmaID, msg.Iface, msg.Tag, msg.Seq,
		msg.DataLen, detail)
}
