package tracing

import (
	"sync"
)

type stepStat struct {
	occurrences uint64
	tasks       uint64
}

// StepCountTracer counts how often each step is reached, and by how many
// distinct tasks. Steps of tasks that did not pass the filter still count
// as occurrences but not as tasks.
type StepCountTracer struct {
	filter TaskFilter

	lock      sync.Mutex
	stepsSeen map[string]map[string]struct{}
	names     []string
	stats     map[string]*stepStat
}

// NewStepCountTracer creates a new StepCountTracer
func NewStepCountTracer(filter TaskFilter) *StepCountTracer {
	return &StepCountTracer{
		filter:    filter,
		stepsSeen: make(map[string]map[string]struct{}),
		stats:     make(map[string]*stepStat),
	}
}

// GetStepNames returns the step names in the order they were first seen.
func (t *StepCountTracer) GetStepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.names...)
}

// GetStepCount returns how many times the step was reached.
func (t *StepCountTracer) GetStepCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	if s, ok := t.stats[stepName]; ok {
		return s.occurrences
	}

	return 0
}

// GetTaskCount returns how many traced tasks reached the step at least once.
func (t *StepCountTracer) GetTaskCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	if s, ok := t.stats[stepName]; ok {
		return s.tasks
	}

	return 0
}

// StartTask starts tracking the steps of a task.
func (t *StepCountTracer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	t.stepsSeen[task.ID] = make(map[string]struct{})
}

// StepTask counts the step carried by the task.
func (t *StepCountTracer) StepTask(task Task) {
	if len(task.Steps) == 0 {
		return
	}

	name := task.Steps[0].What

	t.lock.Lock()
	defer t.lock.Unlock()

	s, ok := t.stats[name]
	if !ok {
		s = &stepStat{}
		t.stats[name] = s
		t.names = append(t.names, name)
	}

	s.occurrences++

	seen, tracked := t.stepsSeen[task.ID]
	if !tracked {
		return
	}

	if _, again := seen[name]; !again {
		seen[name] = struct{}{}
		s.tasks++
	}
}

// EndTask stops tracking the task.
func (t *StepCountTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.stepsSeen, task.ID)
}
