package sim

import (
	"fmt"
	"log"
)

// A LogHook is a hook that is responsible for recording information from the
// system into a logger.
type LogHook interface {
	Hook
}

// LogHookBase provides the common logic for all LogHooks
type LogHookBase struct {
	*log.Logger
}

// HookLogger prints one line for every hook invocation it receives. It is the
// catch-all logger for domains that do not have a specialized one.
type HookLogger struct {
	LogHookBase
}

// NewHookLogger returns a new HookLogger which will write into the logger.
func NewHookLogger(logger *log.Logger) *HookLogger {
	h := new(HookLogger)
	h.Logger = logger

	return h
}

// Func writes the hook position and the item into the logger.
func (h *HookLogger) Func(ctx HookCtx) {
	domainName := "-"
	if named, ok := ctx.Domain.(Named); ok {
		domainName = named.Name()
	}

	detail := ""
	if ctx.Detail != nil {
		detail = fmt.Sprintf("%v", ctx.Detail)
	}

	h.Logger.Printf("%.10f,%s,%s,%v,%s\n",
		ctx.Now, domainName, ctx.Pos.Name, ctx.Item, detail)
}
