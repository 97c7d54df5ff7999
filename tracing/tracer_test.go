package tracing

import (
	"github.com/manycore-odp/c2c/sim"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

type hookableDomain struct {
	*sim.HookableBase
	name string
}

func (d *hookableDomain) Name() string {
	return d.name
}

var _ = Describe("CollectTrace", func() {
	var (
		mockCtrl *gomock.Controller
		domain   *hookableDomain
		tracer   *MockTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		domain = &hookableDomain{
			HookableBase: sim.NewHookableBase(),
			name:         "Cluster[0].RPCServer",
		}
		tracer = NewMockTracer(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should route task events to the tracer", func() {
		CollectTrace(domain, tracer)

		gomock.InOrder(
			tracer.EXPECT().StartTask(gomock.Any()).Do(func(task Task) {
				Expect(task.ID).To(Equal("1"))
				Expect(task.Location).To(Equal("Cluster[0].RPCServer"))
			}),
			tracer.EXPECT().StepTask(gomock.Any()),
			tracer.EXPECT().EndTask(gomock.Any()),
		)

		StartTask("1", "", domain, "rpc", "ping", nil)
		AddTaskStep("1", domain, "dispatched")
		EndTask("1", domain)
	})

	It("should panic if the same tracer is attached twice", func() {
		CollectTrace(domain, tracer)

		Expect(func() { CollectTrace(domain, tracer) }).To(Panic())
	})
})

var _ = Describe("TotalTimeTracer", func() {
	var (
		timeTeller *testTimeTeller
		t          *TotalTimeTracer
	)

	BeforeEach(func() {
		timeTeller = &testTimeTeller{}
		t = NewTotalTimeTracer(timeTeller, func(task Task) bool {
			return task.Kind == "rpc"
		})
	})

	It("should sum the time of matching tasks", func() {
		timeTeller.currentTime = 1
		t.StartTask(Task{ID: "1", Kind: "rpc"})
		t.StartTask(Task{ID: "2", Kind: "other"})

		timeTeller.currentTime = 3
		t.StartTask(Task{ID: "3", Kind: "rpc"})
		t.EndTask(Task{ID: "1"})
		t.EndTask(Task{ID: "2"})

		timeTeller.currentTime = 4
		t.EndTask(Task{ID: "3"})

		Expect(t.TotalTime()).To(Equal(sim.VTimeInSec(3)))
		Expect(t.TaskCount()).To(Equal(uint64(2)))
		Expect(t.AverageTime()).To(Equal(sim.VTimeInSec(1.5)))
	})

	It("should report zero average without tasks", func() {
		Expect(t.AverageTime()).To(Equal(sim.VTimeInSec(0)))
	})
})

var _ = Describe("StepCountTracer", func() {
	var t *StepCountTracer

	BeforeEach(func() {
		t = NewStepCountTracer(AllTasks)
	})

	It("should count steps and the tasks that have them", func() {
		t.StartTask(Task{ID: "1"})
		t.StartTask(Task{ID: "2"})

		step := func(id, what string) Task {
			return Task{ID: id, Steps: []TaskStep{{What: what}}}
		}

		t.StepTask(step("1", "retry"))
		t.StepTask(step("1", "retry"))
		t.StepTask(step("2", "retry"))
		t.StepTask(step("2", "acked"))

		Expect(t.GetStepNames()).To(Equal([]string{"retry", "acked"}))
		Expect(t.GetStepCount("retry")).To(Equal(uint64(3)))
		Expect(t.GetTaskCount("retry")).To(Equal(uint64(2)))
		Expect(t.GetTaskCount("acked")).To(Equal(uint64(1)))
	})
})
