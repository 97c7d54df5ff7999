package rpc

// Opcodes of the base command family.
const (
	OpPing Opcode = 0x01
)

// PingEntry returns the entry of the base command family. A ping is
// acknowledged with the first bytes of its inline area echoed back.
func PingEntry() HandlerEntry {
	return HandlerEntry{
		Name:  "Base",
		First: OpPing,
		Last:  OpPing,
		Handler: HandlerFunc(func(_ int, msg *Msg) (Ack, error) {
			ack := Ack{Status: StatusOK}
			copy(ack.Result[:], msg.Inline[:])

			return ack, nil
		}),
	}
}

// NewPingMsg creates a ping command carrying a cookie.
func NewPingMsg(cookie []byte) *Msg {
	m := &Msg{Opcode: OpPing}
	copy(m.Inline[:AckInlineSize], cookie)

	return m
}
