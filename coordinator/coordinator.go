package coordinator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/thomassophiea/aura-offline/agent"
	"github.com/thomassophiea/aura-offline/observe"
)

// Reloader forces a full page reload so all in-memory state is rebuilt
// against the newly active version.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloaderFunc is an adapter to allow ordinary functions to be used as Reloaders.
type ReloaderFunc func(ctx context.Context) error

// Reload calls the function.
func (f ReloaderFunc) Reload(ctx context.Context) error { return f(ctx) }

// Gate is the version-gate collaborator awaited before the application UI
// mounts. Its version accessors are used purely for diagnostic logging here.
type Gate interface {
	// Init performs the gate's own initialization, which may force a reload
	// independent of agent state.
	Init(ctx context.Context) error

	// Version returns the running application version string.
	Version() string

	// CacheVersion returns the running cache-generation string.
	CacheVersion() string
}

// Defaults for the registration boundary.
const (
	DefaultScript = "/sw.js"
	DefaultScope  = "/"
)

// Config configures a Coordinator.
type Config struct {
	// Registrar is the platform registration boundary. Required.
	Registrar agent.Registrar

	// Reloader applies the reload policy. Required.
	Reloader Reloader

	// Gate is awaited before the coordinator reports ready. Optional.
	Gate Gate

	// Script and Scope identify the agent registration.
	// Defaults: DefaultScript, DefaultScope.
	Script string
	Scope  string

	// Logger defaults to a no-op logger.
	Logger observe.Logger
}

// Coordinator bridges the agent lifecycle to user-visible reload behavior.
// One coordinator corresponds to one page session.
type Coordinator struct {
	registrar agent.Registrar
	reloader  Reloader
	gate      Gate
	logger    observe.Logger
	script    string
	scope     string
	session   string

	mu            sync.Mutex
	wasControlled bool
	reloaded      bool
}

// New creates a coordinator for one page session.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Registrar == nil {
		return nil, ErrNilRegistrar
	}
	if cfg.Reloader == nil {
		return nil, ErrNilReloader
	}

	script := cfg.Script
	if script == "" {
		script = DefaultScript
	}
	scope := cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}

	return &Coordinator{
		registrar: cfg.Registrar,
		reloader:  cfg.Reloader,
		gate:      cfg.Gate,
		logger:    logger.WithComponent("coordinator"),
		script:    script,
		scope:     scope,
		session:   uuid.NewString(),
	}, nil
}

// Session returns the page-session identifier used for log correlation.
func (c *Coordinator) Session() string { return c.session }

// WasControlled reports whether a controller already existed when this
// session started. Meaningful after Run has begun.
func (c *Coordinator) WasControlled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wasControlled
}

// Run executes the coordinator until the context is canceled. It never
// returns a caching-related error: registration failure simply leaves the
// page running without offline capability.
func (c *Coordinator) Run(ctx context.Context) error {
	// The version gate runs before anything else; the UI must not mount
	// until it has had its say.
	if c.gate != nil {
		if err := c.gate.Init(ctx); err != nil {
			c.logger.Error(ctx, "version gate init failed",
				observe.Field{Key: "session", Value: c.session},
				observe.Field{Key: "error", Value: err.Error()},
			)
		} else {
			c.logger.Info(ctx, "version gate ready",
				observe.Field{Key: "session", Value: c.session},
				observe.Field{Key: "app_version", Value: c.gate.Version()},
				observe.Field{Key: "cache_version", Value: c.gate.CacheVersion()},
			)
		}
	}

	// Computed once per session, before registration is attempted: this is
	// what distinguishes a first-ever install from a version upgrade
	// completing while the page is open.
	wasControlled := c.registrar.Controlled(c.scope)
	c.mu.Lock()
	c.wasControlled = wasControlled
	c.mu.Unlock()

	reg, err := c.registrar.Register(ctx, c.script, c.scope)
	if err != nil {
		c.logger.Warn(ctx, "registration failed, continuing without offline caching",
			observe.Field{Key: "session", Value: c.session},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil
	}

	c.logger.Info(ctx, "agent registered",
		observe.Field{Key: "session", Value: c.session},
		observe.Field{Key: "scope", Value: c.scope},
		observe.Field{Key: "was_controlled", Value: wasControlled},
	)

	for {
		select {
		case inst := <-reg.Updates():
			go c.watchInstall(ctx, reg, inst)

		case inst := <-reg.ControllerChanges():
			c.onControllerChange(ctx, inst)

		case st := <-reg.Statuses():
			c.logger.Info(ctx, "agent status",
				observe.Field{Key: "session", Value: c.session},
				observe.Field{Key: "type", Value: st.Type},
				observe.Field{Key: "version", Value: st.Version},
			)

		case <-ctx.Done():
			return nil
		}
	}
}

// watchInstall waits for a newly found instance to finish installing and, if
// this is an upgrade of a controlled page, tells it to skip waiting.
func (c *Coordinator) watchInstall(ctx context.Context, reg agent.Registration, inst agent.Instance) {
	states := inst.Watch()

	// The instance may already be past installing by the time we attach.
	if s := inst.State(); s == agent.StateWaiting {
		c.maybeSkip(ctx, reg, inst)
		return
	}

	for {
		select {
		case s := <-states:
			switch s {
			case agent.StateWaiting:
				c.maybeSkip(ctx, reg, inst)
				return
			case agent.StateRedundant:
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// maybeSkip sends SKIP_WAITING when an existing controller makes this an
// upgrade rather than a first install.
func (c *Coordinator) maybeSkip(ctx context.Context, reg agent.Registration, inst agent.Instance) {
	if !reg.Controlled() {
		// First install: the runtime activates it on its own.
		return
	}

	if err := inst.Send(ctx, agent.Control{Type: agent.ControlSkipWaiting}); err != nil {
		c.logger.Warn(ctx, "skip-waiting send failed",
			observe.Field{Key: "session", Value: c.session},
			observe.Field{Key: "version", Value: inst.Version()},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	c.logger.Info(ctx, "skip-waiting sent to pending update",
		observe.Field{Key: "session", Value: c.session},
		observe.Field{Key: "version", Value: inst.Version()},
	)
}

// onControllerChange applies the reload policy: an upgrade completing while
// the page is open reloads exactly once; a first install never reloads.
func (c *Coordinator) onControllerChange(ctx context.Context, inst agent.Instance) {
	c.mu.Lock()
	wasControlled := c.wasControlled
	shouldReload := wasControlled && !c.reloaded
	if shouldReload {
		c.reloaded = true
	}
	c.mu.Unlock()

	if !wasControlled {
		c.logger.Info(ctx, "first install took control, no reload",
			observe.Field{Key: "session", Value: c.session},
			observe.Field{Key: "version", Value: inst.Version()},
		)
		return
	}

	if !shouldReload {
		return
	}

	c.logger.Info(ctx, "upgrade took control, reloading",
		observe.Field{Key: "session", Value: c.session},
		observe.Field{Key: "version", Value: inst.Version()},
	)
	if err := c.reloader.Reload(ctx); err != nil {
		c.logger.Error(ctx, "reload failed",
			observe.Field{Key: "session", Value: c.session},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
}
