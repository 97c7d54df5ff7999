// Package rpc implements the command transport that clusters use to talk to
// each other over the network-on-chip.
//
// A server keeps one receive slot per remote cluster. A command that lands in
// a slot is decoded, dispatched by opcode to the handler that registered the
// opcode range, and answered with a single fixed-size acknowledgment sent
// back on the route the command came from. A slot holds one message; a
// second command from the same cluster that lands before the first is
// polled overwrites it.
package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sizes of the wire format.
const (
	// HeaderSize is the size of the routing and control fields.
	HeaderSize = 12

	// InlineSize is the size of the inline argument area.
	InlineSize = 32

	// MsgSize is the size of a command without out-of-band payload.
	MsgSize = HeaderSize + InlineSize

	// DefaultMaxPayload is the largest out-of-band payload a server
	// accepts unless configured otherwise.
	DefaultMaxPayload = 1024

	// AckInlineSize is the size of the result area of an acknowledgment.
	AckInlineSize = InlineSize - 1
)

const flagAck = 1 << 0

// Errors returned when decoding messages.
var (
	ErrShortMsg         = errors.New("rpc: message shorter than header")
	ErrTruncatedPayload = errors.New("rpc: payload shorter than announced")
)

// Opcode identifies a command.
type Opcode uint8

// Inline is the argument area carried inside every message.
type Inline [InlineSize]byte

// Msg is a command or acknowledgment envelope.
type Msg struct {
	Opcode  Opcode
	Ack     bool
	DataLen uint16

	// DmaID is the cluster the message came from; acknowledgments are sent
	// back to it.
	DmaID uint16

	// Tag is the receive resource on DmaID that expects the
	// acknowledgment.
	Tag uint16

	// Iface is the DMA interface of DmaID that holds Tag.
	Iface uint8

	// Seq is chosen by the sender and echoed by the acknowledgment.
	Seq uint16

	Inline  Inline
	Payload []byte
}

// Encode returns the fixed-size wire form of the message. The payload is not
// included; it travels after the header as a separate buffer.
func (m *Msg) Encode() []byte {
	b := make([]byte, MsgSize)

	b[0] = byte(m.Opcode)
	if m.Ack {
		b[1] |= flagAck
	}

	binary.LittleEndian.PutUint16(b[2:4], m.DataLen)
	binary.LittleEndian.PutUint16(b[4:6], m.DmaID)
	binary.LittleEndian.PutUint16(b[6:8], m.Tag)
	b[8] = m.Iface
	binary.LittleEndian.PutUint16(b[10:12], m.Seq)
	copy(b[HeaderSize:], m.Inline[:])

	return b
}

// Decode parses a message that landed in b. The payload of the returned
// message aliases b.
func Decode(b []byte) (*Msg, error) {
	if len(b) < MsgSize {
		return nil, ErrShortMsg
	}

	m := &Msg{
		Opcode:  Opcode(b[0]),
		Ack:     b[1]&flagAck != 0,
		DataLen: binary.LittleEndian.Uint16(b[2:4]),
		DmaID:   binary.LittleEndian.Uint16(b[4:6]),
		Tag:     binary.LittleEndian.Uint16(b[6:8]),
		Iface:   b[8],
		Seq:     binary.LittleEndian.Uint16(b[10:12]),
	}
	copy(m.Inline[:], b[HeaderSize:MsgSize])

	if int(m.DataLen) > len(b)-MsgSize {
		return nil, fmt.Errorf("%w: %d > %d",
			ErrTruncatedPayload, m.DataLen, len(b)-MsgSize)
	}

	if m.DataLen > 0 {
		m.Payload = b[MsgSize : MsgSize+int(m.DataLen)]
	}

	return m, nil
}

// Status is the outcome carried by an acknowledgment.
type Status uint8

// Acknowledgment statuses.
const (
	StatusOK      Status = 0
	StatusFailure Status = 1
)

// Ack is the small fixed-size reply to a command.
type Ack struct {
	Status Status
	Result [AckInlineSize]byte
}

// OK tells if the command succeeded.
func (a Ack) OK() bool {
	return a.Status == StatusOK
}

func (a Ack) encode() Inline {
	var in Inline

	in[0] = byte(a.Status)
	copy(in[1:], a.Result[:])

	return in
}

// AckOf extracts the acknowledgment embedded in a reply.
func AckOf(m *Msg) Ack {
	a := Ack{Status: Status(m.Inline[0])}
	copy(a.Result[:], m.Inline[1:])

	return a
}
