package tracing

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// TaskPrinter can print tasks with a format.
type TaskPrinter interface {
	Print(task Task)
}

type writerTaskPrinter struct {
	w io.Writer
}

func (p writerTaskPrinter) Print(task Task) {
	fmt.Fprintf(p.w, "%s-%s@%s\n", task.Kind, task.What, task.Location)
}

// NewWriterTaskPrinter returns a printer writing one line per task.
func NewWriterTaskPrinter(w io.Writer) TaskPrinter {
	return writerTaskPrinter{w: w}
}

// BackTraceTracer keeps the tasks that are still in flight, so that the
// commands that never got an acknowledgment can be listed.
type BackTraceTracer struct {
	printer      TaskPrinter
	tracingTasks map[string]Task
	lock         sync.Mutex
}

// NewBackTraceTracer creates a new BackTraceTracer
func NewBackTraceTracer(printer TaskPrinter) *BackTraceTracer {
	return &BackTraceTracer{
		printer:      printer,
		tracingTasks: make(map[string]Task),
	}
}

// StartTask records the task as in flight.
func (t *BackTraceTracer) StartTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.tracingTasks[task.ID] = task
}

// StepTask does nothing.
func (t *BackTraceTracer) StepTask(_ Task) {
	// Do nothing
}

// EndTask forgets the task.
func (t *BackTraceTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.tracingTasks, task.ID)
}

// InflightTasks returns the tasks that have not ended, ordered by ID.
func (t *BackTraceTracer) InflightTasks() []Task {
	t.lock.Lock()
	defer t.lock.Unlock()

	tasks := make([]Task, 0, len(t.tracingTasks))
	for _, task := range t.tracingTasks {
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	return tasks
}

// DumpBackTrace prints the task and its in-flight ancestors.
func (t *BackTraceTracer) DumpBackTrace(task Task) {
	t.printer.Print(task)

	if task.ParentID == "" {
		return
	}

	t.lock.Lock()
	parentTask, ok := t.tracingTasks[task.ParentID]
	t.lock.Unlock()

	if !ok {
		return
	}

	t.DumpBackTrace(parentTask)
}
