package tracing

import (
	"fmt"

	"github.com/manycore-odp/c2c/sim"
)

// CollectTrace attaches the tracer to the domain. Attaching the same tracer
// twice panics, since every task would be reported to it twice.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	for _, h := range domain.Hooks() {
		if th, ok := h.(*traceHook); ok && th.tracer == tracer {
			panic(fmt.Sprintf("tracer %T is already attached to %s",
				tracer, domain.Name()))
		}
	}

	domain.AcceptHook(&traceHook{tracer: tracer})
}

// traceHook forwards task reports to a tracer.
type traceHook struct {
	tracer Tracer
}

func (h *traceHook) Func(ctx sim.HookCtx) {
	task, ok := ctx.Item.(Task)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTaskStart:
		h.tracer.StartTask(task)
	case HookPosTaskStep:
		h.tracer.StepTask(task)
	case HookPosTaskEnd:
		h.tracer.EndTask(task)
	}
}
