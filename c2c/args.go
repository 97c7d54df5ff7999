package c2c

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/manycore-odp/c2c/rpc"
)

// Opcodes of the C2C command family.
const (
	OpC2COpen  rpc.Opcode = 0x20
	OpC2CClose rpc.Opcode = 0x21
	OpC2CQuery rpc.Opcode = 0x22
)

// OpName returns the name of a C2C opcode.
func OpName(op rpc.Opcode) string {
	switch op {
	case OpC2COpen:
		return "open"
	case OpC2CClose:
		return "close"
	case OpC2CQuery:
		return "query"
	default:
		return fmt.Sprintf("0x%02x", uint8(op))
	}
}

const (
	flagRx = 1 << 0
	flagTx = 1 << 1

	flagClosed = 1 << 0
	flagEAcces = 1 << 1

	reasonOffset = 14
)

// A Reason tells why a command was refused.
type Reason uint8

// Reasons carried in failure acknowledgments.
const (
	ReasonNone Reason = iota
	ReasonAlreadyOpen
	ReasonNotOpen
	ReasonClosed
	ReasonAccessDenied
	ReasonBadCluster
)

var reasonErrors = map[Reason]error{
	ReasonAlreadyOpen:  ErrAlreadyOpen,
	ReasonNotOpen:      ErrNotOpen,
	ReasonClosed:       ErrClosed,
	ReasonAccessDenied: ErrAccessDenied,
	ReasonBadCluster:   ErrBadCluster,
}

// ErrUnknownReason is reported for failure acknowledgments that cannot be
// interpreted.
var ErrUnknownReason = errors.New("c2c: unknown failure reason")

func reasonOf(err error) Reason {
	for r, e := range reasonErrors {
		if errors.Is(err, e) {
			return r
		}
	}

	return ReasonNone
}

// OpenArgs are the arguments of an open command. Cluster is the destination
// of the direction being opened; the source is the sender of the command.
type OpenArgs struct {
	Cluster uint16
	Params
}

// Encode writes the arguments into an inline area.
func (a OpenArgs) Encode() rpc.Inline {
	var in rpc.Inline

	binary.LittleEndian.PutUint16(in[0:2], a.Cluster)

	if a.RxEnabled {
		in[2] |= flagRx
	}

	if a.TxEnabled {
		in[2] |= flagTx
	}

	in[3] = a.CnocRx
	binary.LittleEndian.PutUint32(in[4:8], a.MinRx)
	binary.LittleEndian.PutUint32(in[8:12], a.MaxRx)
	binary.LittleEndian.PutUint32(in[12:16], a.MTU)

	return in
}

// DecodeOpenArgs reads open arguments from an inline area.
func DecodeOpenArgs(in rpc.Inline) OpenArgs {
	return OpenArgs{
		Cluster: binary.LittleEndian.Uint16(in[0:2]),
		Params: Params{
			RxEnabled: in[2]&flagRx != 0,
			TxEnabled: in[2]&flagTx != 0,
			CnocRx:    in[3],
			MinRx:     binary.LittleEndian.Uint32(in[4:8]),
			MaxRx:     binary.LittleEndian.Uint32(in[8:12]),
			MTU:       binary.LittleEndian.Uint32(in[12:16]),
		},
	}
}

// CloseArgs are the arguments of a close command.
type CloseArgs struct {
	Cluster uint16
}

// Encode writes the arguments into an inline area.
func (a CloseArgs) Encode() rpc.Inline {
	return encodeCluster(a.Cluster)
}

// DecodeCloseArgs reads close arguments from an inline area.
func DecodeCloseArgs(in rpc.Inline) CloseArgs {
	return CloseArgs{Cluster: binary.LittleEndian.Uint16(in[0:2])}
}

// QueryArgs are the arguments of a query command.
type QueryArgs struct {
	Cluster uint16
}

// Encode writes the arguments into an inline area.
func (a QueryArgs) Encode() rpc.Inline {
	return encodeCluster(a.Cluster)
}

// DecodeQueryArgs reads query arguments from an inline area.
func DecodeQueryArgs(in rpc.Inline) QueryArgs {
	return QueryArgs{Cluster: binary.LittleEndian.Uint16(in[0:2])}
}

func encodeCluster(cluster uint16) rpc.Inline {
	var in rpc.Inline

	binary.LittleEndian.PutUint16(in[0:2], cluster)

	return in
}

func encodeResult(r QueryResult, result *[rpc.AckInlineSize]byte) {
	if r.Closed {
		result[0] |= flagClosed
	}

	if r.EAcces {
		result[0] |= flagEAcces
	}

	binary.LittleEndian.PutUint32(result[1:5], r.MTU)
	binary.LittleEndian.PutUint32(result[5:9], r.MinRx)
	binary.LittleEndian.PutUint32(result[9:13], r.MaxRx)
	result[13] = r.CnocRx
}

func decodeResult(result [rpc.AckInlineSize]byte) QueryResult {
	return QueryResult{
		Closed: result[0]&flagClosed != 0,
		EAcces: result[0]&flagEAcces != 0,
		MTU:    binary.LittleEndian.Uint32(result[1:5]),
		MinRx:  binary.LittleEndian.Uint32(result[5:9]),
		MaxRx:  binary.LittleEndian.Uint32(result[9:13]),
		CnocRx: result[13],
	}
}

// NewOpenMsg creates the command opening the direction from the sender to
// args.Cluster.
func NewOpenMsg(args OpenArgs) *rpc.Msg {
	return &rpc.Msg{Opcode: OpC2COpen, Inline: args.Encode()}
}

// NewCloseMsg creates the command closing the direction from the sender to
// cluster.
func NewCloseMsg(cluster uint16) *rpc.Msg {
	return &rpc.Msg{Opcode: OpC2CClose, Inline: CloseArgs{cluster}.Encode()}
}

// NewQueryMsg creates the command querying the channel from the sender to
// cluster.
func NewQueryMsg(cluster uint16) *rpc.Msg {
	return &rpc.Msg{Opcode: OpC2CQuery, Inline: QueryArgs{cluster}.Encode()}
}

// NewAck creates the acknowledgment of a C2C command. A nil err gives a
// success acknowledgment.
func NewAck(result QueryResult, err error) rpc.Ack {
	ack := rpc.Ack{Status: rpc.StatusOK}
	encodeResult(result, &ack.Result)

	if err != nil {
		ack.Status = rpc.StatusFailure
		ack.Result[reasonOffset] = byte(reasonOf(err))
	}

	return ack
}

// DecodeAck interprets the acknowledgment of a C2C command. For queries, the
// result carries the closed and eacces indicators even when an error is
// returned.
func DecodeAck(ack rpc.Ack) (QueryResult, error) {
	result := decodeResult(ack.Result)

	if ack.OK() {
		return result, nil
	}

	reason := Reason(ack.Result[reasonOffset])

	err, ok := reasonErrors[reason]
	if !ok {
		return result, fmt.Errorf("%w: %d", ErrUnknownReason, reason)
	}

	return result, err
}
