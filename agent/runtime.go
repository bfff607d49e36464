package agent

import (
	"context"
	"sync"

	"github.com/thomassophiea/aura-offline/observe"
	"github.com/thomassophiea/aura-offline/store"
)

// Instance is the registration-facing view of one agent version.
type Instance interface {
	// Version returns the build/cache version this instance serves.
	Version() string

	// State returns the current lifecycle state.
	State() State

	// Watch returns a channel receiving subsequent lifecycle transitions.
	Watch() <-chan State

	// Send delivers a control message to the instance.
	Send(ctx context.Context, msg Control) error

	// HandleFetch answers one intercepted request.
	HandleFetch(ctx context.Context, req Request) (store.Snapshot, error)
}

// Registration is the handle a page-side coordinator consumes: instance
// references, the update-found and controller-changed signals, and the
// status message channel.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Signals: channels are buffered; a consumer that falls far behind misses
//   events rather than blocking the runtime.
type Registration interface {
	// Scope returns the scope this registration covers.
	Scope() string

	// Controlled reports whether an active instance currently controls the
	// scope.
	Controlled() bool

	// Active returns the controlling instance, or nil.
	Active() Instance

	// Waiting returns the installed-but-waiting instance, or nil.
	Waiting() Instance

	// Updates signals each new instance as it begins installing.
	Updates() <-chan Instance

	// ControllerChanges signals each time a new instance takes control.
	ControllerChanges() <-chan Instance

	// Statuses carries informational messages from the instances.
	Statuses() <-chan Status
}

// Registrar is the platform registration boundary the coordinator calls.
type Registrar interface {
	// Controlled reports whether the scope already has an active controller.
	Controlled(scope string) bool

	// Register installs a new agent version for the scope and returns the
	// registration handle. Repeated registration of the same scope reuses
	// the handle and spawns a new instance (an update).
	Register(ctx context.Context, script, scope string) (Registration, error)
}

// RuntimeConfig configures the in-process agent runtime.
type RuntimeConfig struct {
	// NewAgent builds the agent instance for the version being deployed.
	// Required. Called once per Register.
	NewAgent func(ctx context.Context) (*Agent, error)

	// Logger defaults to a no-op logger.
	Logger observe.Logger
}

// Runtime is the in-process registration boundary: it owns agent instances
// per scope and drives their install/activate lifecycle. A newly installed
// instance activates immediately when the scope has no controller (first
// install) and otherwise waits for its skip signal, which arrives either
// from the agent's own proactive skip or from a SKIP_WAITING control
// message.
type Runtime struct {
	newAgent func(ctx context.Context) (*Agent, error)
	logger   observe.Logger

	mu   sync.Mutex
	regs map[string]*registration
}

// NewRuntime creates a runtime with no registrations.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.NewAgent == nil {
		return nil, ErrNilAgentFactory
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Runtime{
		newAgent: cfg.NewAgent,
		logger:   logger.WithComponent("runtime"),
		regs:     make(map[string]*registration),
	}, nil
}

// Controlled reports whether the scope has an active controller.
func (rt *Runtime) Controlled(scope string) bool {
	rt.mu.Lock()
	reg, ok := rt.regs[scope]
	rt.mu.Unlock()
	return ok && reg.Controlled()
}

// Register spawns a new agent instance for the scope. The instance installs
// in the background; its progress is observable through the registration's
// signals.
func (rt *Runtime) Register(ctx context.Context, script, scope string) (Registration, error) {
	ag, err := rt.newAgent(ctx)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	reg, ok := rt.regs[scope]
	if !ok {
		reg = &registration{
			rt:         rt,
			scope:      scope,
			script:     script,
			updates:    make(chan Instance, 4),
			controller: make(chan Instance, 4),
			status:     make(chan Status, 32),
		}
		rt.regs[scope] = reg
	}
	rt.mu.Unlock()

	reg.mu.Lock()
	reg.installing = ag
	reg.mu.Unlock()

	select {
	case reg.updates <- ag:
	default:
	}

	rt.logger.Info(ctx, "instance registered",
		observe.Field{Key: "scope", Value: scope},
		observe.Field{Key: "script", Value: script},
		observe.Field{Key: "version", Value: ag.Version()},
	)

	go reg.supervise(ctx, ag)
	return reg, nil
}

// HandleFetch routes one request through the scope's active controller.
func (rt *Runtime) HandleFetch(ctx context.Context, scope string, req Request) (store.Snapshot, error) {
	rt.mu.Lock()
	reg, ok := rt.regs[scope]
	rt.mu.Unlock()
	if !ok {
		return store.Snapshot{}, ErrScopeNotRegistered
	}

	reg.mu.Lock()
	active := reg.active
	reg.mu.Unlock()
	if active == nil {
		return store.Snapshot{}, ErrNotControlled
	}
	return active.HandleFetch(ctx, req)
}

// registration is the concrete Registration for one scope.
type registration struct {
	rt     *Runtime
	scope  string
	script string

	mu         sync.Mutex
	installing *Agent
	waiting    *Agent
	active     *Agent

	updates    chan Instance
	controller chan Instance
	status     chan Status
}

func (reg *registration) Scope() string { return reg.scope }

func (reg *registration) Controlled() bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.active != nil
}

func (reg *registration) Active() Instance {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.active == nil {
		return nil
	}
	return reg.active
}

func (reg *registration) Waiting() Instance {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.waiting == nil {
		return nil
	}
	return reg.waiting
}

func (reg *registration) Updates() <-chan Instance           { return reg.updates }
func (reg *registration) ControllerChanges() <-chan Instance { return reg.controller }
func (reg *registration) Statuses() <-chan Status            { return reg.status }

// supervise drives one instance through its lifecycle: install, wait for the
// skip signal (unless this is the first install), activate, and forward its
// status messages until it goes redundant.
func (reg *registration) supervise(ctx context.Context, ag *Agent) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case st := <-ag.Statuses():
				select {
				case reg.status <- st:
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := ag.Install(ctx); err != nil {
		reg.rt.logger.Error(ctx, "install failed",
			observe.Field{Key: "scope", Value: reg.scope},
			observe.Field{Key: "version", Value: ag.Version()},
			observe.Field{Key: "error", Value: err.Error()},
		)
		reg.mu.Lock()
		if reg.installing == ag {
			reg.installing = nil
		}
		reg.mu.Unlock()
		return
	}

	reg.mu.Lock()
	if reg.installing == ag {
		reg.installing = nil
	}
	reg.waiting = ag
	firstInstall := reg.active == nil
	reg.mu.Unlock()

	if firstInstall {
		reg.activate(ctx, ag)
		return
	}

	select {
	case <-ag.SkipSignal():
		reg.activate(ctx, ag)
	case <-ctx.Done():
	}
}

// activate promotes the instance to controller, retiring any previous one,
// and claims all open pages in scope immediately.
func (reg *registration) activate(ctx context.Context, ag *Agent) {
	if err := ag.Activate(ctx); err != nil {
		reg.rt.logger.Error(ctx, "activate failed",
			observe.Field{Key: "scope", Value: reg.scope},
			observe.Field{Key: "version", Value: ag.Version()},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	reg.mu.Lock()
	old := reg.active
	reg.active = ag
	if reg.waiting == ag {
		reg.waiting = nil
	}
	reg.mu.Unlock()

	if old != nil {
		old.Retire()
	}

	select {
	case reg.controller <- ag:
	default:
	}
}

// Ensure the runtime satisfies the registration boundary
var (
	_ Registrar    = (*Runtime)(nil)
	_ Registration = (*registration)(nil)
	_ Instance     = (*Agent)(nil)
)
