package c2c

import (
	"context"
	"errors"
	"time"

	"github.com/manycore-odp/c2c/rpc"
)

// Defaults of the C2C client.
const (
	DefaultQueryRetryInterval = 100 * time.Microsecond
	DefaultAttemptTimeout     = 50 * time.Millisecond
)

// A Caller sends a command and waits for its acknowledgment. *rpc.Client is
// a Caller.
type Caller interface {
	Call(ctx context.Context, dst int, msg *rpc.Msg, payload []byte) (rpc.Ack, error)
}

// A Client negotiates channels with the C2C server of one cluster. Commands
// may be lost in transport, so every command is retried after
// AttemptTimeout. A retried open that finds the channel already open, or a
// retried close that finds it not open, is taken as a success.
type Client struct {
	caller             Caller
	server             int
	QueryRetryInterval time.Duration
	AttemptTimeout     time.Duration
}

// NewClient creates a client of the C2C server running on cluster server.
func NewClient(caller Caller, server int) *Client {
	return &Client{
		caller:             caller,
		server:             server,
		QueryRetryInterval: DefaultQueryRetryInterval,
		AttemptTimeout:     DefaultAttemptTimeout,
	}
}

// Server returns the cluster of the server the client talks to.
func (c *Client) Server() int {
	return c.server
}

// Open opens the direction from the local cluster to args.Cluster.
func (c *Client) Open(ctx context.Context, args OpenArgs) error {
	_, err := c.call(ctx, func() *rpc.Msg { return NewOpenMsg(args) },
		ErrAlreadyOpen)

	return err
}

// Close closes the direction from the local cluster to dst.
func (c *Client) Close(ctx context.Context, dst int) error {
	_, err := c.call(ctx, func() *rpc.Msg { return NewCloseMsg(uint16(dst)) },
		ErrNotOpen)

	return err
}

// Query returns how dst receives from the local cluster.
func (c *Client) Query(ctx context.Context, dst int) (QueryResult, error) {
	return c.call(ctx, func() *rpc.Msg { return NewQueryMsg(uint16(dst)) },
		nil)
}

// WaitOpen queries the channel to dst until both directions are open. A
// closed report is retried, since the peer's open may still be in flight;
// any other failure is returned.
func (c *Client) WaitOpen(ctx context.Context, dst int) (QueryResult, error) {
	for {
		result, err := c.Query(ctx, dst)
		if !errors.Is(err, ErrClosed) {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, errors.Join(err, ctx.Err())
		case <-time.After(c.QueryRetryInterval):
		}
	}
}

func (c *Client) call(
	ctx context.Context,
	newMsg func() *rpc.Msg,
	softOnRetry error,
) (QueryResult, error) {
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.AttemptTimeout)
		ack, err := c.caller.Call(attemptCtx, c.server, newMsg(), nil)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return QueryResult{}, err
			}

			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}

			return QueryResult{}, err
		}

		result, err := DecodeAck(ack)
		if attempt > 0 && softOnRetry != nil && errors.Is(err, softOnRetry) {
			return result, nil
		}

		return result, err
	}
}
