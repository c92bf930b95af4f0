package agents

import (
	"sync"

	"factoryverse.ai/internal/protocol"
)

// Params are already-normalized action parameters. Validation/normalization
// happens upstream of the core.
type Params map[string]any

// HandlerResult is what a handler reports back into the acknowledgement.
type HandlerResult struct {
	ETATick uint64
	Result  map[string]any
}

// HandlerError is a structured precondition/invocation failure surfaced to
// the synchronous caller.
type HandlerError struct {
	Code    string
	Message string
}

func (e *HandlerError) Error() string { return e.Code + ": " + e.Message }

func failf(code, msg string) *HandlerError { return &HandlerError{Code: code, Message: msg} }

// Handler runs inside the tick loop. Async handlers start a job and return
// the immediately-known result fields; sync handlers return the final result.
type Handler func(d *Dispatcher, a *Agent, actionID uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError)

type Action struct {
	Name    string
	Handler Handler
	Async   bool
	// Cancel names the companion cancellation action. The mapping is a
	// declarative table fixed at registration; no name transformation.
	Cancel string
	// ArenaLevel actions operate on the agent table itself and do not
	// require an existing agent (create_agent).
	ArenaLevel bool
}

// Registry is the name-keyed invocation surface. It is populated exactly once
// per process; repeated Load calls return the same instance.
type Registry struct {
	actions map[string]*Action
	order   []string
}

var (
	loadOnce sync.Once
	shared   *Registry
)

// LoadRegistry builds (once) and returns the process-wide action registry.
func LoadRegistry() *Registry {
	loadOnce.Do(func() {
		shared = &Registry{actions: map[string]*Action{}}
		registerAll(shared)
	})
	return shared
}

func (r *Registry) register(a Action) {
	if _, ok := r.actions[a.Name]; ok {
		return
	}
	cp := a
	r.actions[a.Name] = &cp
	r.order = append(r.order, a.Name)
}

func (r *Registry) Lookup(name string) (*Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Refs lists the full surface in registration order, for WELCOME messages.
func (r *Registry) Refs() []protocol.ActionRef {
	refs := make([]protocol.ActionRef, 0, len(r.order))
	for _, name := range r.order {
		a := r.actions[name]
		refs = append(refs, protocol.ActionRef{Name: a.Name, Async: a.Async, Cancel: a.Cancel})
	}
	return refs
}

// Classification maps action name -> async, for callers deciding whether to
// await a direct result or poll for a completion event.
func (r *Registry) Classification() map[string]bool {
	m := make(map[string]bool, len(r.actions))
	for name, a := range r.actions {
		m[name] = a.Async
	}
	return m
}

func registerAll(r *Registry) {
	// Asynchronous activities, each with its declared cancellation action.
	// craft_enqueue's companion reads as "dequeue" at the call boundary.
	r.register(Action{Name: "walk_to", Handler: handleWalkTo, Async: true, Cancel: "cancel_walk"})
	r.register(Action{Name: "cancel_walk", Handler: handleCancelWalk})
	r.register(Action{Name: "start_mining", Handler: handleStartMining, Async: true, Cancel: "cancel_mining"})
	r.register(Action{Name: "cancel_mining", Handler: handleCancelMining})
	r.register(Action{Name: "craft_enqueue", Handler: handleCraftEnqueue, Async: true, Cancel: "craft_dequeue"})
	r.register(Action{Name: "craft_dequeue", Handler: handleCraftDequeue})
	r.register(Action{Name: "place_entity", Handler: handlePlaceEntity, Async: true, Cancel: "cancel_placement"})
	r.register(Action{Name: "cancel_placement", Handler: handleCancelPlacement})

	// Synchronous operations.
	r.register(Action{Name: "create_agent", Handler: handleCreateAgent, ArenaLevel: true})
	r.register(Action{Name: "destroy_agent", Handler: handleDestroyAgent})
	r.register(Action{Name: "walk_direction", Handler: handleWalkDirection})
	r.register(Action{Name: "stop_walking", Handler: handleStopWalking})
	r.register(Action{Name: "transfer_items", Handler: handleTransferItems})
	r.register(Action{Name: "set_recipe", Handler: handleSetRecipe})
	r.register(Action{Name: "clear_recipe", Handler: handleClearRecipe})
}
