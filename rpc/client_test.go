package rpc

import (
	"context"
	"time"

	"github.com/manycore-odp/c2c/noc"
	"github.com/manycore-odp/c2c/sim"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Client", func() {
	var (
		fabric *noc.Fabric
		client *Client
		server *noc.Endpoint
		rx     []byte
	)

	BeforeEach(func() {
		fabric = noc.MakeBuilder().WithNumClusters(2).Build("Fabric")
		server = fabric.Endpoint(0)
		rx = make([]byte, MsgSize+8)
		Expect(server.ConfigureRx(0, DefaultRxTagBase+1, rx)).To(Succeed())

		client = MakeClientBuilder().
			WithTransport(fabric.Endpoint(1)).
			WithCluster(1).
			WithPollInterval(time.Microsecond).
			Build("Cluster[1].RPCClient")
		Expect(client.Start()).To(Succeed())
	})

	reply := func(op Opcode, seq uint16, status Status) {
		m := &Msg{Opcode: op, Ack: true, Seq: seq}
		m.Inline = Ack{Status: status}.encode()
		Expect(server.Send(0, 1, DefaultAckTag, m.Encode(), nil)).To(Succeed())
	}

	It("should fill the routing fields when sending", func() {
		var sent []*Msg
		client.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			if ctx.Pos == HookPosMsgSend {
				sent = append(sent, ctx.Item.(*Msg))
			}
		}))

		Expect(client.Send(0, &Msg{Opcode: 0x20}, []byte{1})).To(Succeed())

		n, ok := server.Poll(0, DefaultRxTagBase+1, rx)
		Expect(ok).To(BeTrue())
		Expect(n).To(Equal(MsgSize + 1))

		Expect(sent).To(HaveLen(1))
		Expect(sent[0].DmaID).To(Equal(uint16(1)))
		Expect(sent[0].Tag).To(Equal(uint16(DefaultAckTag)))
		Expect(sent[0].DataLen).To(Equal(uint16(1)))
	})

	It("should ignore commands that land in the ack tag", func() {
		m := &Msg{Opcode: 0x20}
		Expect(server.Send(0, 1, DefaultAckTag, m.Encode(), nil)).To(Succeed())

		_, ok := client.PollAck()

		Expect(ok).To(BeFalse())
	})

	It("should give up when the context expires", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()

		_, err := client.Call(ctx, 0, NewPingMsg(nil), nil)

		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	// receive waits for the command of the client and returns it.
	receive := func() *Msg {
		Eventually(func() bool {
			return server.Pending(0, DefaultRxTagBase+1)
		}).Should(BeTrue())

		n, ok := server.Poll(0, DefaultRxTagBase+1, rx)
		Expect(ok).To(BeTrue())

		msg, err := Decode(rx[:n])
		Expect(err).NotTo(HaveOccurred())

		return msg
	}

	It("should discard acknowledgments of earlier calls", func() {
		reply(0x21, 0, StatusOK)

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()

		_, err := client.Call(ctx, 0, &Msg{Opcode: 0x22}, nil)

		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("should return the acknowledgment of the call", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		go func() {
			defer GinkgoRecover()

			msg := receive()
			reply(0x22, msg.Seq, StatusFailure)
		}()

		ack, err := client.Call(ctx, 0, &Msg{Opcode: 0x22}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(ack.Status).To(Equal(StatusFailure))
	})

	It("should number every call", func() {
		var seqs []uint16
		client.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			if ctx.Pos == HookPosMsgSend {
				seqs = append(seqs, ctx.Item.(*Msg).Seq)
			}
		}))

		for i := 0; i < 2; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
			_, _ = client.Call(ctx, 0, &Msg{Opcode: 0x22}, nil)
			cancel()
		}

		Expect(seqs).To(HaveLen(2))
		Expect(seqs[0]).NotTo(Equal(seqs[1]))
	})

	It("should discard a late acknowledgment of the same opcode", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		ackSide := fabric.Endpoint(1)

		go func() {
			defer GinkgoRecover()

			msg := receive()

			reply(0x22, msg.Seq-1, StatusFailure)
			Eventually(func() bool {
				return ackSide.Pending(0, DefaultAckTag)
			}).Should(BeFalse())

			reply(0x22, msg.Seq, StatusOK)
		}()

		ack, err := client.Call(ctx, 0, &Msg{Opcode: 0x22}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(ack.Status).To(Equal(StatusOK))
	})

	It("should collect acknowledgments on the ack interface", func() {
		c := MakeClientBuilder().
			WithTransport(fabric.Endpoint(1)).
			WithCluster(1).
			WithAckInterface(2).
			WithAckTag(9).
			Build("Cluster[1].RPCClient[1]")
		Expect(c.Start()).To(Succeed())

		Expect(c.Send(0, &Msg{Opcode: 0x20}, nil)).To(Succeed())

		msg := receive()
		Expect(msg.Iface).To(Equal(uint8(2)))
		Expect(msg.Tag).To(Equal(uint16(9)))

		m := &Msg{Opcode: 0x20, Ack: true}
		Expect(server.Send(2, 1, 9, m.Encode(), nil)).To(Succeed())

		_, ok := c.PollAck()
		Expect(ok).To(BeTrue())
	})

	It("should fail to start when the ack tag is unavailable", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		transport := NewMockTransport(mockCtrl)
		transport.EXPECT().ConfigureRx(0, 5, gomock.Any()).Return(noc.ErrNoSuchTag)

		c := MakeClientBuilder().
			WithTransport(transport).
			WithAckTag(5).
			Build("Client")

		Expect(c.Start()).To(MatchError(noc.ErrNoSuchTag))
	})
})
