package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/manycore-odp/c2c/c2c"
	"github.com/manycore-odp/c2c/monitoring"
	"github.com/spf13/cobra"
)

var negotiateCmd = &cobra.Command{
	Use:   "negotiate",
	Short: "Open channels between every pair of clusters.",
	Long: `negotiate starts a C2C server on cluster 0 and lets every other ` +
		`cluster open a channel to every other client cluster. Once both ` +
		`sides are open, the negotiated MTU of each direction is printed.`,
	RunE: runNegotiate,
}

func init() {
	rootCmd.AddCommand(negotiateCmd)

	f := negotiateCmd.Flags()
	f.String("mode", "", "Server mode, poll or interrupt")
	f.String("record", "", "Record traces and channel events into this sqlite file")
	f.Int("monitor", 0, "Serve the monitor on this port")
	f.Bool("browser", false, "Open the monitor in a web browser")
	f.Bool("hold", false, "Keep running after negotiation until interrupted")
	f.Uint32("mtu", 256, "MTU offered by cluster 1; others offer multiples of it")
	f.Duration("timeout", 10*time.Second, "Give up after this long")
}

func runNegotiate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	baseMTU, _ := cmd.Flags().GetUint32("mtu")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	hold, _ := cmd.Flags().GetBool("hold")
	openBrowser, _ := cmd.Flags().GetBool("browser")

	d, err := buildDeployment(cfg, hookLogger(cmd))
	if err != nil {
		return err
	}

	defer func() {
		closeErr := d.close()
		if closeErr != nil {
			mustPrintf(cmd.ErrOrStderr(), "closing recorder: %v\n", closeErr)
		}
	}()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var monitor *monitoring.Monitor
	if cfg.MonitorPort != 0 || openBrowser {
		monitor = monitoring.NewMonitor().
			WithPortNumber(cfg.MonitorPort).
			WithBrowser(openBrowser)
		monitor.RegisterComponent(d.fabric)
		monitor.RegisterComponent(d.server)
		monitor.RegisterComponent(d.handler)

		_, err = monitor.StartServer()
		if err != nil {
			return err
		}

		defer func() { _ = monitor.StopServer(context.Background()) }()
	}

	served, err := d.start(ctx)
	if err != nil {
		return err
	}

	runCtx, runCancel := context.WithTimeout(ctx, timeout)
	defer runCancel()

	err = d.ping(runCtx)
	if err != nil {
		return err
	}

	results, err := negotiate(runCtx, d, offeredParams(baseMTU), monitor)
	if err != nil {
		d.dumpInflight()
		return err
	}

	printMTUTable(cmd.OutOrStdout(), results)
	mustPrintf(cmd.OutOrStdout(), "requests=%d avg=%s\n",
		d.requestTime.TaskCount(),
		formatSeconds(float64(d.requestTime.AverageTime())))

	if hold {
		<-sigCtx.Done()
	}

	cancel()

	return <-served
}

// offeredParams returns the parameters each cluster offers. Cluster c offers
// base * c as its MTU, so the negotiated MTU of a pair is set by the lower
// numbered cluster.
func offeredParams(base uint32) func(cluster int) c2c.Params {
	return func(cluster int) c2c.Params {
		return c2c.Params{
			RxEnabled: true,
			TxEnabled: true,
			MTU:       base * uint32(cluster),
			MinRx:     1,
			MaxRx:     uint32(cluster) * 4,
			CnocRx:    uint8(cluster),
		}
	}
}

// negotiate opens a channel between every pair of client clusters and waits
// until each direction is usable. results[src][dst] is the outcome seen by
// src.
func negotiate(
	ctx context.Context,
	d *deployment,
	params func(cluster int) c2c.Params,
	monitor *monitoring.Monitor,
) ([][]c2c.QueryResult, error) {
	n := len(d.clients)
	results := make([][]c2c.QueryResult, n)

	var bar *monitoring.ProgressBar
	if monitor != nil {
		pairs := uint64((n - 1) * (n - 2))
		bar = monitor.CreateProgressBar("Negotiate", pairs)
		defer monitor.CompleteProgressBar(bar)
	}

	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		errs []error
	)

	for src, client := range d.clients {
		if client == nil {
			continue
		}

		results[src] = make([]c2c.QueryResult, n)

		src := src

		wg.Add(1)

		go func() {
			defer wg.Done()

			err := negotiateFrom(ctx, d, src, params, results[src], bar)
			if err != nil {
				lock.Lock()
				errs = append(errs, err)
				lock.Unlock()
			}
		}()
	}

	wg.Wait()

	return results, errors.Join(errs...)
}

func negotiateFrom(
	ctx context.Context,
	d *deployment,
	src int,
	params func(cluster int) c2c.Params,
	results []c2c.QueryResult,
	bar *monitoring.ProgressBar,
) error {
	client := d.clients[src]

	for dst := range d.clients {
		if dst == src || d.clients[dst] == nil {
			continue
		}

		err := client.Open(ctx, c2c.OpenArgs{
			Cluster: uint16(dst),
			Params:  params(src),
		})
		if err != nil {
			return fmt.Errorf("open %d->%d: %w", src, dst, err)
		}

		if bar != nil {
			bar.IncrementInProgress(1)
		}
	}

	for dst := range d.clients {
		if dst == src || d.clients[dst] == nil {
			continue
		}

		result, err := client.WaitOpen(ctx, dst)
		if err != nil {
			return fmt.Errorf("query %d->%d: %w", src, dst, err)
		}

		results[dst] = result

		if bar != nil {
			bar.MoveInProgressToFinished(1)
		}
	}

	return nil
}

func printMTUTable(w io.Writer, results [][]c2c.QueryResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	mustPrintf(tw, "src\\dst\t")
	for dst := range results {
		if results[dst] != nil {
			mustPrintf(tw, "%d\t", dst)
		}
	}
	mustPrintf(tw, "\n")

	for src, row := range results {
		if row == nil {
			continue
		}

		mustPrintf(tw, "%d\t", src)

		for dst := range results {
			switch {
			case results[dst] == nil:
				continue
			case dst == src:
				mustPrintf(tw, "-\t")
			default:
				mustPrintf(tw, "%d\t", row[dst].MTU)
			}
		}

		mustPrintf(tw, "\n")
	}

	err := tw.Flush()
	if err != nil {
		mustPrintf(os.Stderr, "%v\n", err)
	}
}
