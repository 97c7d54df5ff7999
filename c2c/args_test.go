package c2c

import (
	"errors"

	"github.com/manycore-odp/c2c/rpc"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Arguments", func() {
	It("should lay out open arguments", func() {
		args := OpenArgs{
			Cluster: 0x0102,
			Params: Params{
				RxEnabled: true,
				TxEnabled: true,
				CnocRx:    9,
				MinRx:     0x10,
				MaxRx:     0x20,
				MTU:       0x30,
			},
		}

		in := args.Encode()

		Expect(in[:16]).To(Equal([]byte{
			0x02, 0x01, 0x03, 9,
			0x10, 0, 0, 0,
			0x20, 0, 0, 0,
			0x30, 0, 0, 0,
		}))
		Expect(DecodeOpenArgs(in)).To(Equal(args))
	})

	It("should build commands with the C2C opcodes", func() {
		Expect(NewOpenMsg(OpenArgs{Cluster: 3}).Opcode).To(Equal(OpC2COpen))
		Expect(DecodeCloseArgs(NewCloseMsg(3).Inline).Cluster).To(Equal(uint16(3)))
		Expect(DecodeQueryArgs(NewQueryMsg(7).Inline).Cluster).To(Equal(uint16(7)))
		Expect(NewQueryMsg(7).Opcode).To(Equal(OpC2CQuery))
		Expect(OpName(OpC2CClose)).To(Equal("close"))
		Expect(OpName(0x33)).To(Equal("0x33"))
	})

	It("should lay out query results", func() {
		ack := NewAck(QueryResult{MTU: 64, MinRx: 1, MaxRx: 2, CnocRx: 7}, nil)

		Expect(ack.Status).To(Equal(rpc.StatusOK))
		Expect(ack.Result[:14]).To(Equal([]byte{
			0,
			64, 0, 0, 0,
			1, 0, 0, 0,
			2, 0, 0, 0,
			7,
		}))

		result, err := DecodeAck(ack)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.MTU).To(Equal(uint32(64)))
	})

	It("should carry the closed and eacces bits distinctly", func() {
		closed := NewAck(QueryResult{Closed: true}, ErrClosed)
		denied := NewAck(QueryResult{EAcces: true}, ErrAccessDenied)

		Expect(closed.Result[0]).To(Equal(byte(1)))
		Expect(denied.Result[0]).To(Equal(byte(2)))

		result, err := DecodeAck(closed)
		Expect(err).To(MatchError(ErrClosed))
		Expect(result.Closed).To(BeTrue())

		result, err = DecodeAck(denied)
		Expect(err).To(MatchError(ErrAccessDenied))
		Expect(result.EAcces).To(BeTrue())
	})

	It("should recover wrapped protocol errors", func() {
		ack := NewAck(QueryResult{}, errors.Join(errors.New("x"), ErrAlreadyOpen))

		Expect(ack.OK()).To(BeFalse())

		_, err := DecodeAck(ack)
		Expect(err).To(MatchError(ErrAlreadyOpen))
	})

	It("should report failures it cannot interpret", func() {
		_, err := DecodeAck(rpc.Ack{Status: rpc.StatusFailure})

		Expect(err).To(MatchError(ErrUnknownReason))
	})
})
