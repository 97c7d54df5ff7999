package tracing

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("BackTraceTracer", func() {
	var (
		mockCtrl *gomock.Controller
		printer  *MockTaskPrinter
		t        *BackTraceTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		printer = NewMockTaskPrinter(mockCtrl)
		t = NewBackTraceTracer(printer)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should trace a single task", func() {
		t.StartTask(Task{ID: "1"})

		Expect(t.InflightTasks()).To(HaveLen(1))
		Expect(t.InflightTasks()[0].ParentID).To(Equal(""))
	})

	It("should trace three tasks", func() {
		t.StartTask(Task{ID: "3", ParentID: "2"})
		t.StartTask(Task{ID: "1"})
		t.StartTask(Task{ID: "2", ParentID: "1"})

		tasks := t.InflightTasks()
		Expect(tasks).To(HaveLen(3))
		Expect(tasks[0].ID).To(Equal("1"))
		Expect(tasks[1].ParentID).To(Equal("1"))
		Expect(tasks[2].ParentID).To(Equal("2"))
	})

	It("should end two tasks", func() {
		t.StartTask(Task{ID: "1"})
		t.StartTask(Task{ID: "2", ParentID: "1"})
		t.StartTask(Task{ID: "3", ParentID: "2"})

		t.EndTask(Task{ID: "3"})
		t.EndTask(Task{ID: "2"})

		Expect(t.InflightTasks()).To(HaveLen(1))
		Expect(t.InflightTasks()[0].ID).To(Equal("1"))
	})

	It("should print the chain of in-flight parents", func() {
		t.StartTask(Task{ID: "1"})
		t.StartTask(Task{ID: "2", ParentID: "1"})
		t.StartTask(Task{ID: "3", ParentID: "2"})

		gomock.InOrder(
			printer.EXPECT().Print(Task{ID: "3", ParentID: "2"}),
			printer.EXPECT().Print(Task{ID: "2", ParentID: "1"}),
			printer.EXPECT().Print(Task{ID: "1"}),
		)

		t.DumpBackTrace(Task{ID: "3", ParentID: "2"})
	})

	It("should stop at a parent that already ended", func() {
		t.StartTask(Task{ID: "2", ParentID: "1"})

		printer.EXPECT().Print(Task{ID: "2", ParentID: "1"})

		t.DumpBackTrace(Task{ID: "2", ParentID: "1"})
	})
})

var _ = Describe("WriterTaskPrinter", func() {
	It("should write one line per task", func() {
		buf := new(bytes.Buffer)
		p := NewWriterTaskPrinter(buf)

		p.Print(Task{Kind: "rpc", What: "open", Location: "Cluster[2].RPCServer"})

		Expect(buf.String()).To(Equal("rpc-open@Cluster[2].RPCServer\n"))
	})
})
