package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/monitoring"
	"github.com/manycore-odp/c2c/ring"
	"github.com/manycore-odp/c2c/sim"
	"github.com/spf13/cobra"
)

// ErrRingCorrupted is returned when the handles that went through a ring do
// not add up.
var ErrRingCorrupted = errors.New("ring lost or duplicated handles")

var ringStressCmd = &cobra.Command{
	Use:   "ringstress",
	Short: "Push and pop handles from many goroutines on one ring.",
	Long: `ringstress runs producers and consumers on a single ring at the ` +
		`same time, then checks that every handle pushed was popped exactly ` +
		`once or is still in the ring.`,
	RunE: runRingStress,
}

func init() {
	rootCmd.AddCommand(ringStressCmd)

	f := ringStressCmd.Flags()
	f.Int("producers", 4, "Number of producing goroutines")
	f.Int("consumers", 4, "Number of consuming goroutines")
	f.Int("rounds", 100000, "Push or pop attempts per goroutine")
	f.Int("burst", 8, "Largest number of handles moved per attempt")
	f.Int("capacity", 0, "Capacity of the ring")
	f.Int("monitor", 0, "Serve the monitor on this port")
}

type stressOptions struct {
	Producers int
	Consumers int
	Rounds    int
	Burst     int
}

type stressResult struct {
	Pushed    uint64
	Popped    uint64
	Remaining int
	Elapsed   time.Duration
	Stats     ring.Stats
}

func runRingStress(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := stressOptions{}
	opts.Producers, _ = cmd.Flags().GetInt("producers")
	opts.Consumers, _ = cmd.Flags().GetInt("consumers")
	opts.Rounds, _ = cmd.Flags().GetInt("rounds")
	opts.Burst, _ = cmd.Flags().GetInt("burst")

	if opts.Producers <= 0 || opts.Consumers <= 0 ||
		opts.Rounds <= 0 || opts.Burst <= 0 {
		return errors.New("producers, consumers, rounds and burst must be positive")
	}

	core := atomics.MakeCoreBuilder().WithVariant(cfg.Variant).Build("Core")
	r := ring.MakeBuilder().
		WithCore(core).
		WithCapacity(cfg.RingCapacity).
		WithLowWatermark(cfg.RingCapacity / 8).
		WithHighWatermark(cfg.RingCapacity - cfg.RingCapacity/8).
		Build("Ring")

	if logger := hookLogger(cmd); logger != nil {
		watermarkLogger := sim.NewHookLogger(logger)
		r.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			if ctx.Pos == ring.HookPosRingLowWatermark ||
				ctx.Pos == ring.HookPosRingHighWatermark {
				watermarkLogger.Func(ctx)
			}
		}))
	}

	if cfg.MonitorPort != 0 {
		monitor := monitoring.NewMonitor().WithPortNumber(cfg.MonitorPort)
		monitor.RegisterComponent(r)

		_, err = monitor.StartServer()
		if err != nil {
			return err
		}

		defer func() { _ = monitor.StopServer(context.Background()) }()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := stressRing(ctx, r, opts)

	mustPrintf(cmd.OutOrStdout(),
		"variant=%s capacity=%d producers=%d consumers=%d\n",
		core.Variant(), r.Capacity(), opts.Producers, opts.Consumers)
	mustPrintf(cmd.OutOrStdout(),
		"pushed=%d popped=%d remaining=%d elapsed=%s rate=%.0f/s\n",
		result.Pushed, result.Popped, result.Remaining, result.Elapsed,
		float64(result.Pushed+result.Popped)/result.Elapsed.Seconds())
	mustPrintf(cmd.OutOrStdout(),
		"prod_retries=%d cons_retries=%d tail_spins=%d\n",
		result.Stats.ProdRetries, result.Stats.ConsRetries,
		result.Stats.TailSpins)

	return err
}

// stressRing runs the producers and consumers to completion and checks that
// the occupancy of the ring equals the handles pushed minus those popped.
// Every handle carries its producer and sequence number, so a duplicated
// handle is detected as well.
func stressRing(
	ctx context.Context,
	r *ring.Ring,
	opts stressOptions,
) (stressResult, error) {
	var (
		pushed, popped atomic.Uint64
		seen           sync.Map
		dupes          atomic.Uint64
		wg             sync.WaitGroup
	)

	start := time.Now()

	for p := 0; p < opts.Producers; p++ {
		p := p

		wg.Add(1)

		go func() {
			defer wg.Done()

			seq := uint64(0)
			handles := make([]ring.Handle, opts.Burst)

			for i := 0; i < opts.Rounds && ctx.Err() == nil; i++ {
				want := 1 + i%opts.Burst
				for j := 0; j < want; j++ {
					handles[j] = ring.Handle(uint64(p)<<40 | (seq + uint64(j)))
				}

				n, _ := r.PushMulti(handles[:want])
				seq += uint64(n)
				pushed.Add(uint64(n))

				if n == 0 {
					runtime.Gosched()
				}
			}
		}()
	}

	record := func(handles []ring.Handle) {
		for _, h := range handles {
			_, loaded := seen.LoadOrStore(h, struct{}{})
			if loaded {
				dupes.Add(1)
			}
		}
	}

	for c := 0; c < opts.Consumers; c++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			out := make([]ring.Handle, opts.Burst)

			for i := 0; i < opts.Rounds && ctx.Err() == nil; i++ {
				n, _ := r.PopMulti(out[:1+i%opts.Burst])
				popped.Add(uint64(n))
				record(out[:n])

				if n == 0 {
					runtime.Gosched()
				}
			}
		}()
	}

	wg.Wait()

	result := stressResult{
		Pushed:    pushed.Load(),
		Popped:    popped.Load(),
		Remaining: r.Occupancy(),
		Elapsed:   time.Since(start),
		Stats:     r.Stats(),
	}

	if uint64(result.Remaining) != result.Pushed-result.Popped {
		return result, fmt.Errorf("%w: pushed %d, popped %d, %d left",
			ErrRingCorrupted, result.Pushed, result.Popped, result.Remaining)
	}

	drain := make([]ring.Handle, result.Remaining)
	n, _ := r.PopMulti(drain)
	record(drain[:n])

	if n != result.Remaining {
		return result, fmt.Errorf("%w: drained %d of %d",
			ErrRingCorrupted, n, result.Remaining)
	}

	if dupes.Load() != 0 {
		return result, fmt.Errorf("%w: %d handles seen twice",
			ErrRingCorrupted, dupes.Load())
	}

	return result, nil
}
