package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/sim"
)

// A Client sends commands from one cluster and collects their
// acknowledgments. All acknowledgments land in the same receive tag, so at
// most one call is outstanding at a time.
type Client struct {
	*sim.HookableBase

	name         string
	transport    Transport
	core         *atomics.Core
	cluster      int
	iface        int
	ackIface     int
	rxTagBase    int
	ackTag       int
	pollInterval time.Duration

	lock   sync.Mutex
	seq    uint16
	buf    []byte
	landed []byte
}

// Name returns the name of the client.
func (c *Client) Name() string {
	return c.name
}

// Cluster returns the cluster the client sends from.
func (c *Client) Cluster() int {
	return c.cluster
}

// Start programs the receive tag acknowledgments land in.
func (c *Client) Start() error {
	err := c.transport.ConfigureRx(c.ackIface, c.ackTag, c.buf)
	if err != nil {
		return fmt.Errorf("rpc: configuring ack tag of %s: %w", c.name, err)
	}

	return nil
}

// Send fills the routing fields of msg and sends it, with payload, to the
// server of cluster dst. The sequence number of msg is left as set by the
// caller.
func (c *Client) Send(dst int, msg *Msg, payload []byte) error {
	if len(payload) > 0xffff {
		return fmt.Errorf("rpc: payload of %d bytes", len(payload))
	}

	msg.Ack = false
	msg.DmaID = uint16(c.cluster)
	msg.Tag = uint16(c.ackTag)
	msg.Iface = uint8(c.ackIface)
	msg.DataLen = uint16(len(payload))

	b := msg.Encode()
	atomics.PurgeSlice(c.core, b)
	atomics.PurgeSlice(c.core, payload)

	err := c.transport.Send(c.iface, dst, c.rxTagBase+c.cluster, b, payload)
	if err != nil {
		return fmt.Errorf("rpc: sending 0x%02x to cluster %d: %w",
			msg.Opcode, dst, err)
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosMsgSend,
		Item:   msg,
	})

	return nil
}

// PollAck returns the acknowledgment that landed since the last poll, if
// any.
func (c *Client) PollAck() (*Msg, bool) {
	n, ok := c.transport.Poll(c.ackIface, c.ackTag, c.landed)
	if !ok {
		return nil, false
	}

	atomics.InvalidateSlice(c.core, c.landed[:n])

	msg, err := Decode(c.landed[:n])
	if err != nil || !msg.Ack {
		if err == nil {
			err = fmt.Errorf("rpc: command 0x%02x landed in ack tag",
				msg.Opcode)
		}

		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    HookPosMsgMalformed,
			Item:   c.cluster,
			Detail: err,
		})

		return nil, false
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosMsgAck,
		Item:   msg,
	})

	return msg, true
}

// Call sends msg to cluster dst and waits for its acknowledgment until ctx is
// done. Every call carries a fresh sequence number; acknowledgments that do
// not echo it, left over from abandoned calls, are discarded. The command may
// be lost if another command from this cluster lands on the server before it
// is polled; callers retry on timeout.
func (c *Client) Call(
	ctx context.Context,
	dst int,
	msg *Msg,
	payload []byte,
) (Ack, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.PollAck()

	c.seq++
	msg.Seq = c.seq

	err := c.Send(dst, msg, payload)
	if err != nil {
		return Ack{}, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		reply, ok := c.PollAck()
		if ok && reply.Opcode == msg.Opcode && reply.Seq == msg.Seq {
			return AckOf(reply), nil
		}

		select {
		case <-ctx.Done():
			return Ack{}, fmt.Errorf("rpc: waiting for ack of 0x%02x from %d: %w",
				msg.Opcode, dst, ctx.Err())
		case <-ticker.C:
		}
	}
}
