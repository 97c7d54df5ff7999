package ring

import (
	"sync"
	"sync/atomic"

	"github.com/manycore-odp/c2c/mem/atomics"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Ring under contention", func() {
	const (
		numProducers = 4
		numConsumers = 4
		opsPerWorker = 2000
		batch        = 5
	)

	for _, variant := range []atomics.Variant{atomics.Native64, atomics.Emulated64} {
		variant := variant

		It("should end with pushed minus popped handles on "+variant.String(), func() {
			core := atomics.MakeCoreBuilder().
				WithVariant(variant).
				WithCache(atomics.NewCountingCache("DCache")).
				Build("Core")
			r := MakeBuilder().WithCore(core).WithCapacity(64).Build("Ring")

			var pushed, popped atomic.Int64
			var wg sync.WaitGroup

			for p := 0; p < numProducers; p++ {
				wg.Add(1)
				go func(p int) {
					defer GinkgoRecover()
					defer wg.Done()
					for i := 0; i < opsPerWorker; i++ {
						n, free := r.PushMulti(handles(p*opsPerWorker+i, batch))
						Expect(free).To(BeNumerically("<=", 64))
						pushed.Add(int64(n))
					}
				}(p)
			}

			for c := 0; c < numConsumers; c++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					out := make([]Handle, batch)
					for i := 0; i < opsPerWorker; i++ {
						n, remaining := r.PopMulti(out)
						Expect(remaining).To(BeNumerically("<=", 64))
						popped.Add(int64(n))
					}
				}()
			}

			wg.Wait()

			Expect(int64(r.Occupancy())).To(Equal(pushed.Load() - popped.Load()))
			Expect(r.Occupancy()).To(BeNumerically("<=", r.Capacity()))
		})
	}

	It("should deliver every handle exactly once", func() {
		r := MakeBuilder().WithCapacity(32).Build("Ring")
		total := numProducers * opsPerWorker

		seen := make([]atomic.Int32, total)
		var consumed atomic.Int64
		var wg sync.WaitGroup

		for p := 0; p < numProducers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				pending := handles(p*opsPerWorker, opsPerWorker)
				for len(pending) > 0 {
					n, _ := r.PushMulti(pending[:min(batch, len(pending))])
					pending = pending[n:]
				}
			}(p)
		}

		for c := 0; c < numConsumers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out := make([]Handle, batch)
				for consumed.Load() < int64(total) {
					n, _ := r.PopMulti(out)
					for _, h := range out[:n] {
						seen[h].Add(1)
					}
					consumed.Add(int64(n))
				}
			}()
		}

		wg.Wait()

		for i := range seen {
			Expect(seen[i].Load()).To(Equal(int32(1)), "handle %d", i)
		}
	})

	It("should keep each producer's handles in order for one consumer", func() {
		r := MakeBuilder().WithCapacity(16).Build("Ring")
		var wg sync.WaitGroup

		for p := 0; p < numProducers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < opsPerWorker; {
					h := Handle(p<<20 | i)
					if n, _ := r.PushMulti([]Handle{h}); n == 1 {
						i++
					}
				}
			}(p)
		}

		last := make([]int, numProducers)
		for i := range last {
			last[i] = -1
		}

		out := make([]Handle, 8)
		for received := 0; received < numProducers*opsPerWorker; {
			n, _ := r.PopMulti(out)
			for _, h := range out[:n] {
				p, seq := int(h>>20), int(h&0xfffff)
				Expect(seq).To(Equal(last[p] + 1))
				last[p] = seq
			}
			received += n
		}

		wg.Wait()
	})
})
