package tracing

import (
	"github.com/manycore-odp/c2c/sim"
)

// NamedHookable is a domain that tasks can be reported on.
type NamedHookable interface {
	sim.Named
	sim.Hookable
	InvokeHook(sim.HookCtx)
}

// Hook positions of task reports. The item is always a Task.
var (
	HookPosTaskStart = &sim.HookPos{Name: "HookPosTaskStart"}
	HookPosTaskStep  = &sim.HookPos{Name: "HookPosTaskStep"}
	HookPosTaskEnd   = &sim.HookPos{Name: "HookPosTaskEnd"}
)

// StartTask reports that the domain begins working on a task. The task
// location is the name of the domain. Nothing is built when no hook
// listens, but the arguments are always checked.
func StartTask(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	detail any,
) {
	for field, value := range map[string]string{
		"id":   id,
		"kind": kind,
		"what": what,
	} {
		if value == "" {
			panic(field + " must not be empty")
		}
	}

	if domain == nil {
		panic("domain must not be nil")
	}

	if domain.NumHooks() == 0 {
		return
	}

	location := domain.Name()
	if location == "" {
		panic("domain must have a name")
	}

	report(domain, HookPosTaskStart, Task{
		ID:       id,
		ParentID: parentID,
		Kind:     kind,
		What:     what,
		Location: location,
		Detail:   detail,
	})
}

// AddTaskStep reports that a task reached a milestone.
func AddTaskStep(id string, domain NamedHookable, what string) {
	if domain.NumHooks() == 0 {
		return
	}

	report(domain, HookPosTaskStep, Task{
		ID:    id,
		Steps: []TaskStep{{What: what}},
	})
}

// EndTask reports that the domain is done with a task.
func EndTask(id string, domain NamedHookable) {
	if domain.NumHooks() == 0 {
		return
	}

	report(domain, HookPosTaskEnd, Task{ID: id})
}

func report(domain NamedHookable, pos *sim.HookPos, task Task) {
	domain.InvokeHook(sim.HookCtx{
		Domain: domain,
		Pos:    pos,
		Item:   task,
	})
}
