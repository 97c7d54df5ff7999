package main

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/manycore-odp/c2c/c2c"
	"github.com/manycore-odp/c2c/config"
	"github.com/manycore-odp/c2c/datarecording"
	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/monitoring"
	"github.com/manycore-odp/c2c/ring"
	"github.com/manycore-odp/c2c/rpc"
	_ "github.com/mattn/go-sqlite3"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Deployment", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		cfg    config.Config
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		cfg = config.Default()
	})

	AfterEach(func() {
		cancel()
	})

	It("should reject rx tags that overlap the ack tag", func() {
		cfg.RxTagBase = rpc.DefaultAckTag - 1

		_, err := buildDeployment(cfg, nil)

		Expect(err).To(MatchError(config.ErrInvalid))
	})

	DescribeTable("negotiating every pair",
		func(mode rpc.Mode, variant atomics.Variant) {
			cfg.Clusters = 5
			cfg.Mode = mode
			cfg.Variant = variant

			d, err := buildDeployment(cfg, nil)
			Expect(err).NotTo(HaveOccurred())

			served, err := d.start(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.ping(ctx)).To(Succeed())

			monitor := monitoring.NewMonitor()
			results, err := negotiate(ctx, d, offeredParams(100), monitor)
			Expect(err).NotTo(HaveOccurred())

			Expect(results[0]).To(BeNil())
			for src := 1; src < 5; src++ {
				for dst := 1; dst < 5; dst++ {
					if src == dst {
						continue
					}

					Expect(results[src][dst].MTU).
						To(Equal(uint32(100 * min(src, dst))))
					Expect(results[src][dst].MaxRx).
						To(Equal(uint32(4 * dst)))
				}
			}

			cells := d.handler.Cells()
			Expect(cells[1*5+2].Opened).To(BeTrue())
			Expect(cells[0*5+1].Opened).To(BeFalse())

			cancel()
			Eventually(served).Should(Receive(BeNil()))
		},
		Entry("poll, native", rpc.PollMode, atomics.Native64),
		Entry("interrupt, emulated", rpc.InterruptMode, atomics.Emulated64),
	)

	It("should record traces and channel events", func() {
		cfg.Clusters = 3
		cfg.RecordPath = filepath.Join(GinkgoT().TempDir(), "run")

		d, err := buildDeployment(cfg, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = d.start(ctx)
		Expect(err).NotTo(HaveOccurred())

		_, err = negotiate(ctx, d, offeredParams(64), nil)
		Expect(err).NotTo(HaveOccurred())
		cancel()
		Expect(d.close()).To(Succeed())

		db, err := sql.Open("sqlite3", cfg.RecordPath+".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		var opens int
		Expect(db.QueryRow(
			"SELECT COUNT(*) FROM c2c_events WHERE Op = 'open'",
		).Scan(&opens)).To(Succeed())
		Expect(opens).To(BeNumerically(">=", 2))

		r, err := summarize(context.Background(),
			datarecording.NewReaderWithDB(db))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Ops).To(HaveKey("open"))
		Expect(r.Ops).To(HaveKey("query"))
		Expect(r.Tasks).To(HaveKey("C2C:0x20"))
		Expect(r.Tasks["C2C:0x20"].Unfinished).To(Equal(0))

		buf := new(bytes.Buffer)
		printReport(buf, r)
		Expect(buf.String()).To(ContainSubstring("C2C:0x22"))
	})

	It("should print the MTU table", func() {
		results := [][]c2c.QueryResult{
			nil,
			{{}, {}, {MTU: 64}},
			{{}, {MTU: 64}, {}},
		}
		buf := new(bytes.Buffer)

		printMTUTable(buf, results)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(3))
		Expect(strings.Fields(lines[0])).To(Equal([]string{"src\\dst", "1", "2"}))
		Expect(strings.Fields(lines[1])).To(Equal([]string{"1", "-", "64"}))
		Expect(strings.Fields(lines[2])).To(Equal([]string{"2", "64", "-"}))
	})
})

var _ = Describe("Ring stress", func() {
	It("should account for every handle", func() {
		r := ring.MakeBuilder().WithCapacity(64).Build("Ring")

		result, err := stressRing(context.Background(), r, stressOptions{
			Producers: 4,
			Consumers: 3,
			Rounds:    2000,
			Burst:     5,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Pushed).To(BeNumerically(">", 0))
		Expect(uint64(result.Remaining)).
			To(Equal(result.Pushed - result.Popped))
		Expect(r.Occupancy()).To(Equal(0))
	})
})

var _ = Describe("Commands", func() {
	run := func(args ...string) (string, error) {
		out := new(bytes.Buffer)
		rootCmd.SetOut(out)
		rootCmd.SetErr(out)
		rootCmd.SetArgs(args)

		err := rootCmd.Execute()

		return out.String(), err
	}

	It("should print the version", func() {
		out, err := run("version")

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HavePrefix("c2csim "))
	})

	It("should run a negotiation", func() {
		out, err := run("negotiate", "--clusters", "3", "--mtu", "10",
			"--mode", "interrupt")

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("src\\dst"))
	})

	It("should run a ring stress", func() {
		out, err := run("ringstress", "--rounds", "500", "--capacity", "16",
			"--emulated64")

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("variant=emulated64 capacity=16"))
	})

	It("should reject a bad mode", func() {
		_, err := run("negotiate", "--mode", "spin")

		Expect(err).To(MatchError(config.ErrInvalid))
	})
})
