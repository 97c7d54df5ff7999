package noc

import (
	"sync"

	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/manycore-odp/c2c/sim"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fabric", func() {
	var (
		fabric *Fabric
		ep0    *Endpoint
		ep1    *Endpoint
		buf    []byte
		out    []byte
	)

	BeforeEach(func() {
		fabric = MakeBuilder().
			WithNumClusters(2).
			WithInterfaces(2).
			WithRxTags(70).
			Build("Fabric")
		ep0 = fabric.Endpoint(0)
		ep1 = fabric.Endpoint(1)
		buf = make([]byte, 16)
		out = make([]byte, 16)
	})

	It("should panic on invalid dimensions", func() {
		Expect(func() {
			MakeBuilder().WithNumClusters(0).Build("Fabric")
		}).To(Panic())
	})

	It("should panic on an unknown endpoint", func() {
		Expect(func() { fabric.Endpoint(2) }).To(Panic())
	})

	It("should land a message into the configured buffer", func() {
		Expect(ep1.ConfigureRx(1, 65, buf)).To(Succeed())

		Expect(ep0.Send(1, 1, 65, []byte{1, 2}, []byte{3})).To(Succeed())

		Expect(ep1.Pending(1, 65)).To(BeTrue())
		Expect(ep1.Pending(1, 64)).To(BeFalse())

		n, ok := ep1.Poll(1, 65, out)
		Expect(ok).To(BeTrue())
		Expect(out[:n]).To(Equal([]byte{1, 2, 3}))

		_, ok = ep1.Poll(1, 65, out)
		Expect(ok).To(BeFalse())
		Expect(fabric.Stats()).To(Equal(Stats{Sent: 1, Bytes: 3}))
	})

	It("should reject unconfigured resources", func() {
		err := ep0.Send(0, 1, 3, []byte{1}, nil)
		Expect(err).To(MatchError(ErrRxNotConfigured))
	})

	It("should reject messages larger than the buffer", func() {
		Expect(ep1.ConfigureRx(0, 3, make([]byte, 2))).To(Succeed())

		err := ep0.Send(0, 1, 3, []byte{1, 2}, []byte{3})
		Expect(err).To(MatchError(ErrPayloadTooLarge))
		Expect(ep1.Pending(0, 3)).To(BeFalse())
	})

	It("should validate addresses", func() {
		Expect(ep0.Send(0, 5, 0, nil, nil)).To(MatchError(ErrNoSuchCluster))
		Expect(ep0.Send(2, 1, 0, nil, nil)).To(MatchError(ErrNoSuchInterface))
		Expect(ep0.Send(0, 1, 70, nil, nil)).To(MatchError(ErrNoSuchTag))
		Expect(ep0.ConfigureRx(0, -1, buf)).To(MatchError(ErrNoSuchTag))

		_, ok := ep0.Poll(9, 0, out)
		Expect(ok).To(BeFalse())
	})

	It("should keep only the last message of a resource", func() {
		Expect(ep1.ConfigureRx(0, 0, buf)).To(Succeed())

		Expect(ep0.Send(0, 1, 0, []byte{1}, nil)).To(Succeed())
		Expect(ep0.Send(0, 1, 0, []byte{2}, nil)).To(Succeed())

		n, ok := ep1.Poll(0, 0, out)
		Expect(ok).To(BeTrue())
		Expect(out[:n]).To(Equal([]byte{2}))
		Expect(fabric.Stats().Overwrites).To(Equal(uint64(1)))
	})

	It("should drop a pending event when reconfigured", func() {
		Expect(ep1.ConfigureRx(0, 0, buf)).To(Succeed())
		Expect(ep0.Send(0, 1, 0, []byte{1}, nil)).To(Succeed())

		Expect(ep1.ConfigureRx(0, 0, buf)).To(Succeed())

		Expect(ep1.Pending(0, 0)).To(BeFalse())
	})

	It("should fail an injected configuration once", func() {
		fabric.FailConfigureRx(1, 0, 4)

		Expect(ep1.ConfigureRx(0, 4, buf)).To(MatchError(ErrInjectedFault))
		Expect(ep1.ConfigureRx(0, 4, buf)).To(Succeed())
	})

	It("should call the registered event callback", func() {
		var got []any

		Expect(ep1.RegisterEvent(0, 0, 2, func(arg any) {
			got = append(got, arg)
		}, "x")).To(MatchError(ErrRxNotConfigured))

		Expect(ep1.ConfigureRx(0, 2, buf)).To(Succeed())
		Expect(ep1.RegisterEvent(0, DefaultLines, 2, nil, nil)).
			To(MatchError(ErrNoSuchLine))
		Expect(ep1.RegisterEvent(0, 1, 2, func(arg any) {
			got = append(got, arg)
		}, "x")).To(Succeed())

		Expect(ep0.Send(0, 1, 2, []byte{7}, nil)).To(Succeed())

		Expect(got).To(Equal([]any{"x"}))
	})

	It("should invoke hooks for every transfer", func() {
		var positions []string

		fabric.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			positions = append(positions, ctx.Pos.Name)
			Expect(ctx.Item.(Delivery).Src).To(Equal(0))
		}))

		Expect(ep1.ConfigureRx(0, 0, buf)).To(Succeed())
		Expect(ep0.Send(0, 1, 0, []byte{1}, nil)).To(Succeed())
		Expect(ep0.Send(0, 1, 0, []byte{1}, nil)).To(Succeed())

		Expect(positions).To(Equal([]string{
			"NoCSend", "NoCLand",
			"NoCSend", "NoCOverwrite", "NoCLand",
		}))
	})

	It("should deliver from many senders with an emulated core", func() {
		core := atomics.MakeCoreBuilder().
			WithVariant(atomics.Emulated64).
			Build("Core")
		fabric = MakeBuilder().
			WithCore(core).
			WithNumClusters(5).
			WithRxTags(64).
			Build("Fabric")

		rx := fabric.Endpoint(0)
		for src := 1; src < 5; src++ {
			Expect(rx.ConfigureRx(0, src, make([]byte, 1))).To(Succeed())
		}

		var wg sync.WaitGroup
		for src := 1; src < 5; src++ {
			wg.Add(1)

			go func(src int) {
				defer GinkgoRecover()
				defer wg.Done()

				ep := fabric.Endpoint(src)
				for i := 0; i < 100; i++ {
					Expect(ep.Send(0, 0, src, []byte{byte(i)}, nil)).To(Succeed())
				}
			}(src)
		}

		wg.Wait()

		for src := 1; src < 5; src++ {
			n, ok := rx.Poll(0, src, out)
			Expect(ok).To(BeTrue())
			Expect(out[:n]).To(Equal([]byte{99}))
		}

		Expect(fabric.Stats().Sent).To(Equal(uint64(400)))
	})
})
