package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/manycore-odp/c2c/c2c"
	"github.com/manycore-odp/c2c/config"
	"github.com/manycore-odp/c2c/datarecording"
	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/noc"
	"github.com/manycore-odp/c2c/rpc"
	"github.com/manycore-odp/c2c/sim"
	"github.com/manycore-odp/c2c/tracing"
)

// serverCluster is the cluster that runs the C2C service.
const serverCluster = 0

// A deployment is a fabric with a C2C server on one cluster and a C2C client
// on every other cluster.
type deployment struct {
	cfg     config.Config
	core    *atomics.Core
	fabric  *noc.Fabric
	table   *c2c.StatusTable
	handler *c2c.Handler
	server  *rpc.Server
	callers []*rpc.Client
	clients []*c2c.Client

	recorder datarecording.DataRecorder
	tracer   *tracing.DBTracer

	requestTime *tracing.TotalTimeTracer
	inflight    *tracing.BackTraceTracer
}

func buildDeployment(cfg config.Config, logger *log.Logger) (*deployment, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	lastRxTag := cfg.RxTagBase + cfg.Clusters
	if rpc.DefaultAckTag >= cfg.RxTagBase && rpc.DefaultAckTag < lastRxTag {
		return nil, fmt.Errorf("%w: rx tags [%d, %d) overlap ack tag %d",
			config.ErrInvalid, cfg.RxTagBase, lastRxTag, rpc.DefaultAckTag)
	}

	d := &deployment{cfg: cfg}

	d.core = atomics.MakeCoreBuilder().
		WithVariant(cfg.Variant).
		Build("Core")
	d.fabric = noc.MakeBuilder().
		WithCore(d.core).
		WithNumClusters(cfg.Clusters).
		WithRxTags(max(noc.DefaultRxTags, lastRxTag)).
		Build("Fabric")

	d.table = c2c.NewSharedStatusTable(d.core, cfg.Clusters)
	d.handler = c2c.NewHandler(sim.ClusterName(serverCluster)+".C2C", d.table)
	d.server = rpc.MakeServerBuilder().
		WithTransport(d.fabric.Endpoint(serverCluster)).
		WithCore(d.core).
		WithCluster(serverCluster).
		WithNumClusters(cfg.Clusters).
		WithRxTagBase(cfg.RxTagBase).
		WithMode(cfg.Mode).
		WithMaxPayload(cfg.MaxPayload).
		WithHandlers(rpc.PingEntry(), d.handler.Entry()).
		Build(sim.ClusterName(serverCluster) + ".RPCServer")

	d.callers = make([]*rpc.Client, cfg.Clusters)
	d.clients = make([]*c2c.Client, cfg.Clusters)

	for c := 0; c < cfg.Clusters; c++ {
		if c == serverCluster {
			continue
		}

		caller := rpc.MakeClientBuilder().
			WithTransport(d.fabric.Endpoint(c)).
			WithCore(d.core).
			WithCluster(c).
			WithRxTagBase(cfg.RxTagBase).
			WithPollInterval(time.Microsecond).
			Build(sim.ClusterName(c) + ".RPCClient")

		d.callers[c] = caller
		d.clients[c] = c2c.NewClient(caller, serverCluster)
		d.clients[c].QueryRetryInterval = 10 * time.Microsecond
	}

	isRPC := func(t tracing.Task) bool { return t.Kind == "rpc" }
	d.requestTime = tracing.NewTotalTimeTracer(sim.WallClock{}, isRPC)
	d.inflight = tracing.NewBackTraceTracer(
		tracing.NewWriterTaskPrinter(os.Stderr))
	tracing.CollectTrace(d.server, d.requestTime)
	tracing.CollectTrace(d.server, d.inflight)

	if logger != nil {
		d.attachLogger(logger)
	}

	if cfg.RecordPath != "" {
		d.attachRecorder(datarecording.New(cfg.RecordPath))
	}

	return d, nil
}

func (d *deployment) attachLogger(logger *log.Logger) {
	msgLogger := rpc.NewMsgLogger(logger)
	d.server.AcceptHook(msgLogger)

	for _, caller := range d.callers {
		if caller != nil {
			caller.AcceptHook(msgLogger)
		}
	}

	eventLogger := sim.NewHookLogger(logger)
	d.fabric.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
		if ctx.Pos == noc.HookPosNoCOverwrite {
			eventLogger.Func(ctx)
		}
	}))
	d.handler.AcceptHook(eventLogger)
}

func (d *deployment) attachRecorder(recorder datarecording.DataRecorder) {
	d.recorder = recorder

	d.tracer = tracing.NewDBTracer(sim.WallClock{}, recorder)
	tracing.CollectTrace(d.server, d.tracer)

	d.handler.AcceptHook(c2c.NewEventRecorder(recorder))
}

// start starts every endpoint and runs the server until ctx is done. The
// returned channel yields the result of the server loop.
func (d *deployment) start(ctx context.Context) (<-chan error, error) {
	err := d.server.Start()
	if err != nil {
		return nil, err
	}

	for _, caller := range d.callers {
		if caller == nil {
			continue
		}

		err = caller.Start()
		if err != nil {
			return nil, err
		}
	}

	done := make(chan error, 1)

	go func() {
		err := d.server.Serve(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		done <- err
	}()

	return done, nil
}

// ping checks that the server answers every client.
func (d *deployment) ping(ctx context.Context) error {
	for c, caller := range d.callers {
		if caller == nil {
			continue
		}

		cookie := []byte(caller.Name())

		ack, err := caller.Call(ctx, serverCluster, rpc.NewPingMsg(cookie), nil)
		if err != nil {
			return fmt.Errorf("ping from cluster %d: %w", c, err)
		}

		n := min(len(cookie), rpc.AckInlineSize)
		if !ack.OK() || !bytes.Equal(ack.Result[:n], cookie[:n]) {
			return fmt.Errorf("ping from cluster %d: bad echo", c)
		}
	}

	return nil
}

// dumpInflight prints the requests the server has not finished.
func (d *deployment) dumpInflight() {
	for _, task := range d.inflight.InflightTasks() {
		d.inflight.DumpBackTrace(task)
	}
}

func (d *deployment) close() error {
	if d.recorder == nil {
		return nil
	}

	d.tracer.Terminate()

	return d.recorder.Close()
}
