package sim

import "sync"

// HookPos defines the enum of possible hooking positions
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered
type HookCtx struct {
	Domain Hookable
	Now    VTimeInSec
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// Hooks returns all the hooks registered.
	Hooks() []Hook
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// HookFunc turns a plain function into a Hook.
type HookFunc func(ctx HookCtx)

// Func calls the function.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface. Hooks can be invoked from several goroutines at the
// same time, so registration is guarded.
type HookableBase struct {
	hookLock sync.RWMutex
	hooks    []Hook
}

// NewHookableBase creates a HookableBase object
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.hooks = make([]Hook, 0)

	return h
}

// AcceptHook register a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.hookLock.Lock()
	defer h.hookLock.Unlock()

	h.hooks = append(h.hooks, hook)
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	h.hookLock.RLock()
	defer h.hookLock.RUnlock()

	return len(h.hooks)
}

// Hooks returns a copy of the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	h.hookLock.RLock()
	defer h.hookLock.RUnlock()

	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)

	return hooks
}

// InvokeHook triggers the register Hooks
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	h.hookLock.RLock()
	hooks := h.hooks
	h.hookLock.RUnlock()

	if ctx.Now == 0 {
		ctx.Now = Now()
	}

	for _, hook := range hooks {
		hook.Func(ctx)
	}
}
