package atomics

import (
	"unsafe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

type sharedHeader struct {
	A, B uint32
}

// escaped keeps values whose address a test records on the heap, so that the
// address does not change when the goroutine stack grows.
var escaped any

var _ = Describe("View", func() {
	var (
		mockCtrl *gomock.Controller
		cache    *MockCache
		core     *Core
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		cache = NewMockCache(mockCtrl)
		core = MakeCoreBuilder().WithCache(cache).Build("Core")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should invalidate on open and purge on release", func() {
		h := &sharedHeader{}
		escaped = h
		addr := uintptr(unsafe.Pointer(h))

		gomock.InOrder(
			cache.EXPECT().Invalidate(addr, uintptr(8)),
			cache.EXPECT().Purge(addr, uintptr(8)),
		)

		v := Open(core, h)
		v.Get().A = 4
		v.Release()

		Expect(h.A).To(Equal(uint32(4)))
	})

	It("should not purge a discarded view", func() {
		h := &sharedHeader{A: 1}
		cache.EXPECT().Invalidate(gomock.Any(), gomock.Any())

		Expect(Load(core, h)).To(Equal(sharedHeader{A: 1}))
	})

	It("should panic when a closed view is used", func() {
		h := &sharedHeader{}
		cache.EXPECT().Invalidate(gomock.Any(), gomock.Any()).Times(2)
		cache.EXPECT().Purge(gomock.Any(), gomock.Any())

		Store(core, h, sharedHeader{B: 2})
		v := Open(core, h)
		v.Discard()

		Expect(func() { v.Get() }).To(Panic())
		Expect(h.B).To(Equal(uint32(2)))
	})

	It("should maintain exactly the copied range of slices", func() {
		shared := make([]uint64, 8)
		escaped = shared
		local := []uint64{1, 2, 3}
		base := uintptr(unsafe.Pointer(&shared[2]))

		gomock.InOrder(
			cache.EXPECT().Purge(base, uintptr(24)),
			cache.EXPECT().Invalidate(base, uintptr(24)),
		)

		Expect(WriteSlice(core, shared[2:5], local)).To(Equal(3))

		out := make([]uint64, 3)
		Expect(ReadSlice(core, out, shared[2:5])).To(Equal(3))
		Expect(out).To(Equal(local))
	})

	It("should not touch the cache for empty slices", func() {
		Expect(ReadSlice(core, nil, []uint64{})).To(Equal(0))
		Expect(WriteSlice(core, []uint64{}, nil)).To(Equal(0))
	})
})

var _ = Describe("CountingCache", func() {
	It("should count spanned lines", func() {
		Expect(LinesSpanned(0, 0)).To(Equal(uint64(0)))
		Expect(LinesSpanned(0, 64)).To(Equal(uint64(1)))
		Expect(LinesSpanned(60, 8)).To(Equal(uint64(2)))
		Expect(LinesSpanned(128, 129)).To(Equal(uint64(3)))
	})

	It("should count maintenance issued by a core", func() {
		cache := NewCountingCache("Cluster[0].DCache")
		core := MakeCoreBuilder().WithCache(cache).Build("Core")
		w := new(Word32)

		core.Store32(w, 1, Release)
		core.Load32(w, Acquire)
		core.CompareAndSwap32(w, 1, 2, AcqRel)

		Expect(cache.Invalidations()).To(Equal(uint64(2)))
		Expect(cache.Purges()).To(Equal(uint64(2)))
	})
})
