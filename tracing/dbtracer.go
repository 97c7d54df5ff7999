package tracing

import (
	"strings"
	"sync"

	"github.com/manycore-odp/c2c/datarecording"
	"github.com/manycore-odp/c2c/sim"
	"github.com/tebeka/atexit"
)

// Tables written by DBTracer.
const (
	TaskTableName = "trace"
	StepTableName = "trace_step"
)

type taskTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
	Steps     string
	Finished  bool
}

type stepTableEntry struct {
	TaskID string
	Time   float64
	What   string
}

// DBTracer records tasks and their steps through a DataRecorder. A task row
// is written when the task ends, or on Terminate for tasks still running.
// Steps are written as they happen.
type DBTracer struct {
	timeTeller sim.TimeTeller
	recorder   datarecording.DataRecorder

	lock       sync.Mutex
	from, to   sim.VTimeInSec
	running    map[string]*Task
	terminated bool
}

// NewDBTracer creates the tables and returns the tracer. Unfinished tasks
// are written when the program exits through atexit.
func NewDBTracer(
	timeTeller sim.TimeTeller,
	recorder datarecording.DataRecorder,
) *DBTracer {
	recorder.CreateTable(TaskTableName, taskTableEntry{})
	recorder.CreateTable(StepTableName, stepTableEntry{})

	t := &DBTracer{
		timeTeller: timeTeller,
		recorder:   recorder,
		running:    make(map[string]*Task),
	}

	atexit.Register(t.Terminate)

	return t
}

// SetTimeRange keeps only the tasks that overlap [from, to]. A zero bound is
// open.
func (t *DBTracer) SetTimeRange(from, to sim.VTimeInSec) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.from, t.to = from, to
}

// StartTask begins recording a task. The task must carry its ID, kind, what
// and location.
func (t *DBTracer) StartTask(task Task) {
	switch "" {
	case task.ID:
		panic("task ID must be set")
	case task.Kind:
		panic("task kind must be set")
	case task.What:
		panic("task what must be set")
	case task.Location:
		panic("task location must be set")
	}

	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	if t.terminated || (t.to > 0 && now > t.to) {
		return
	}

	task.StartTime = now
	task.Steps = nil
	t.running[task.ID] = &task
}

// StepTask records the step of a running task.
func (t *DBTracer) StepTask(task Task) {
	if len(task.Steps) == 0 {
		return
	}

	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	running, ok := t.running[task.ID]
	if !ok {
		return
	}

	for _, step := range task.Steps {
		step.Time = now
		running.Steps = append(running.Steps, step)

		t.recorder.InsertData(StepTableName, stepTableEntry{
			TaskID: task.ID,
			Time:   float64(now),
			What:   step.What,
		})
	}
}

// EndTask writes the task.
func (t *DBTracer) EndTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	running, ok := t.running[task.ID]
	if !ok {
		return
	}

	delete(t.running, task.ID)

	if t.from > 0 && now < t.from {
		return
	}

	running.EndTime = now
	t.write(running, true)
}

func (t *DBTracer) write(task *Task, finished bool) {
	steps := make([]string, 0, len(task.Steps))
	for _, s := range task.Steps {
		steps = append(steps, s.What)
	}

	t.recorder.InsertData(TaskTableName, taskTableEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Location,
		StartTime: float64(task.StartTime),
		EndTime:   float64(task.EndTime),
		Steps:     strings.Join(steps, ","),
		Finished:  finished,
	})
}

// Terminate writes the tasks still running, ending them now, and flushes
// the recorder. Later calls and later tasks are ignored.
func (t *DBTracer) Terminate() {
	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	if t.terminated {
		return
	}

	t.terminated = true

	for _, task := range t.running {
		task.EndTime = now
		t.write(task, false)
	}

	t.running = nil
	t.recorder.Flush()
}
