package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/thomassophiea/aura-offline/observe"
	"github.com/thomassophiea/aura-offline/store"
)

// DefaultBootstrap is the asset set pre-populated into the combined store at
// install time: the application shell document and its manifest.
var DefaultBootstrap = []string{"/", "/manifest.json"}

// Config configures an Agent.
type Config struct {
	// Version is the build/cache version this agent serves. Required.
	Version string

	// Storage holds the generation-tagged snapshot stores. Required.
	Storage store.Storage

	// Fetcher performs origin fetches. Required.
	Fetcher Fetcher

	// Router configures strategy routing.
	Router RouterConfig

	// Bootstrap is the ordered set of same-origin paths precached at
	// install time. Default: DefaultBootstrap.
	Bootstrap []string

	// RequireSkipSignal holds the agent in waiting until a SKIP_WAITING
	// control message arrives. By default install requests the skip
	// proactively, trading a brief window of mixed versions for faster
	// rollout.
	RequireSkipSignal bool

	// Logger, Metrics and Tracer default to no-op implementations.
	Logger  observe.Logger
	Metrics observe.Metrics
	Tracer  observe.Tracer

	// OnStateChange is called after each lifecycle transition.
	OnStateChange func(from, to State)

	// StatusBuffer sizes the status message channel. Default: 16.
	// Status messages are informational and dropped when the buffer is full.
	StatusBuffer int
}

// Agent is one version of the caching agent. It routes every intercepted
// request to exactly one strategy and owns the cache generations for its
// version.
type Agent struct {
	version    string
	generation store.Generation
	storage    store.Storage
	fetch      Fetcher
	router     *Router
	bootstrap  []string

	requireSkip   bool
	onStateChange func(from, to State)

	logger  observe.Logger
	metrics observe.Metrics
	tracer  observe.Tracer

	// lifecycleMu serializes the install and activate handlers; the agent
	// never runs two lifecycle handlers concurrently.
	lifecycleMu sync.Mutex

	mu       sync.Mutex
	state    State
	watchers []chan State

	skipOnce sync.Once
	skipCh   chan struct{}

	// pending tracks in-flight background cache writes; activation cleanup
	// is gated until they settle.
	pending sync.WaitGroup
	refresh singleflight.Group

	status chan Status
}

// New creates an agent in the installing state.
func New(cfg Config) (*Agent, error) {
	if cfg.Version == "" {
		return nil, ErrMissingVersion
	}
	if cfg.Storage == nil {
		return nil, ErrNilStorage
	}
	if cfg.Fetcher == nil {
		return nil, ErrNilFetcher
	}

	router, err := NewRouter(cfg.Router)
	if err != nil {
		return nil, err
	}

	bootstrap := cfg.Bootstrap
	if len(bootstrap) == 0 {
		bootstrap = DefaultBootstrap
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.NopMetrics()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observe.NopTracer()
	}
	statusBuffer := cfg.StatusBuffer
	if statusBuffer <= 0 {
		statusBuffer = 16
	}

	return &Agent{
		version:       cfg.Version,
		generation:    store.NewGeneration(cfg.Version),
		storage:       cfg.Storage,
		fetch:         cfg.Fetcher,
		router:        router,
		bootstrap:     bootstrap,
		requireSkip:   cfg.RequireSkipSignal,
		onStateChange: cfg.OnStateChange,
		logger:        logger.WithComponent("agent"),
		metrics:       metrics,
		tracer:        tracer,
		state:         StateInstalling,
		skipCh:        make(chan struct{}),
		status:        make(chan Status, statusBuffer),
	}, nil
}

// Version returns the agent's build/cache version.
func (a *Agent) Version() string { return a.version }

// Generation returns the three cache tags owned by this agent's version.
func (a *Agent) Generation() store.Generation { return a.generation }

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Watch returns a channel receiving subsequent lifecycle transitions.
// The channel is buffered; a slow watcher misses transitions rather than
// blocking the agent.
func (a *Agent) Watch() <-chan State {
	ch := make(chan State, 8)
	a.mu.Lock()
	a.watchers = append(a.watchers, ch)
	a.mu.Unlock()
	return ch
}

// Statuses returns the informational message channel (agent to coordinator).
func (a *Agent) Statuses() <-chan Status { return a.status }

// SkipSignal is closed once the agent has been told (or has itself decided)
// to skip the waiting state.
func (a *Agent) SkipSignal() <-chan struct{} { return a.skipCh }

// Send delivers a control message (coordinator to agent).
func (a *Agent) Send(_ context.Context, msg Control) error {
	switch msg.Type {
	case ControlSkipWaiting:
		a.requestSkip()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownControl, msg.Type)
	}
}

func (a *Agent) requestSkip() {
	a.skipOnce.Do(func() { close(a.skipCh) })
}

// setState performs a guarded lifecycle transition.
func (a *Agent) setState(to State) error {
	a.mu.Lock()
	from := a.state
	if from == to {
		a.mu.Unlock()
		return nil
	}
	if !canTransition(from, to) {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	a.state = to
	watchers := a.watchers
	a.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- to:
		default:
		}
	}
	if a.onStateChange != nil {
		a.onStateChange(from, to)
	}
	a.logger.Debug(context.Background(), "lifecycle transition",
		observe.Field{Key: "from", Value: from.String()},
		observe.Field{Key: "to", Value: to.String()},
		observe.Field{Key: "version", Value: a.version},
	)
	return nil
}

// emit sends an informational status message without ever blocking.
func (a *Agent) emit(st Status) {
	select {
	case a.status <- st:
	default:
	}
}

// Install opens the combined store for the current version and pre-populates
// it with the bootstrap asset set. A failed bootstrap fetch fails the whole
// install and retires the agent. Unless RequireSkipSignal was set, a
// successful install also requests the waiting-state skip.
func (a *Agent) Install(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if a.State() != StateInstalling {
		return fmt.Errorf("%w: install in state %s", ErrInvalidTransition, a.State())
	}

	combined, err := a.storage.Open(ctx, a.generation.Combined)
	if err != nil {
		_ = a.setState(StateRedundant)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range a.bootstrap {
		g.Go(func() error {
			req, err := ParseRequest("GET", p)
			if err != nil {
				return fmt.Errorf("bootstrap %s: %w", p, err)
			}
			snap, err := a.fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("bootstrap %s: %w", p, err)
			}
			if !snap.OK() {
				return fmt.Errorf("bootstrap %s: status %d", p, snap.Status)
			}
			return combined.Put(gctx, req.Identity(), snap)
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Error(ctx, "install failed", observe.Field{Key: "error", Value: err.Error()})
		_ = a.setState(StateRedundant)
		return err
	}

	if !a.requireSkip {
		a.requestSkip()
	}

	a.logger.Info(ctx, "installed",
		observe.Field{Key: "version", Value: a.version},
		observe.Field{Key: "bootstrap", Value: len(a.bootstrap)},
	)
	return a.setState(StateWaiting)
}

// Activate deletes every cache generation the current version does not own,
// then marks the agent activated. Cleanup waits for in-flight background
// cache writes to settle first, so a refresh can never write into a store
// that was just evicted.
func (a *Agent) Activate(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if a.State() != StateWaiting {
		return fmt.Errorf("%w: activate in state %s", ErrInvalidTransition, a.State())
	}

	a.pending.Wait()

	if err := a.setState(StateActivating); err != nil {
		return err
	}

	tags, err := a.storage.Tags(ctx)
	if err != nil {
		a.logger.Error(ctx, "tag enumeration failed", observe.Field{Key: "error", Value: err.Error()})
		_ = a.setState(StateRedundant)
		return err
	}

	for _, tag := range tags {
		if a.generation.Keep(tag) {
			continue
		}
		if err := a.storage.Drop(ctx, tag); err != nil {
			// Best effort: a stale generation that survives is garbage, not
			// a correctness problem.
			a.logger.Warn(ctx, "stale generation drop failed",
				observe.Field{Key: "tag", Value: tag},
				observe.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		a.metrics.RecordEviction(ctx, tag)
	}

	// Make sure all three current stores exist before serving.
	for _, tag := range a.generation.Tags() {
		if _, err := a.storage.Open(ctx, tag); err != nil {
			a.logger.Warn(ctx, "store open failed",
				observe.Field{Key: "tag", Value: tag},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	a.emit(Status{Type: StatusCachesCleared})

	if err := a.setState(StateActivated); err != nil {
		return err
	}
	a.emit(Status{Type: StatusActivated, Version: a.version})

	a.logger.Info(ctx, "activated", observe.Field{Key: "version", Value: a.version})
	return nil
}

// Retire marks the agent redundant. Idempotent.
func (a *Agent) Retire() {
	a.mu.Lock()
	if a.state == StateRedundant {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	_ = a.setState(StateRedundant)
}

// HandleFetch answers one intercepted request with exactly one strategy.
func (a *Agent) HandleFetch(ctx context.Context, req Request) (store.Snapshot, error) {
	if a.State() == StateRedundant {
		return store.Snapshot{}, ErrRedundant
	}

	decision := a.router.Route(req)
	meta := observe.FetchMeta{
		Route:    decision.String(),
		Identity: req.Identity().Key(),
		Version:  a.version,
	}

	start := time.Now()
	ctx, span := a.tracer.StartFetch(ctx, meta)

	var (
		snap store.Snapshot
		hit  bool
		err  error
	)
	switch decision {
	case DecisionBypass:
		// Passed through untouched: no store interaction whatsoever.
		snap, err = a.fetch(ctx, req)
	case DecisionStatic:
		snap, hit, err = a.staleWhileRevalidate(ctx, req)
	case DecisionDocument:
		snap, hit, err = a.cacheFirst(ctx, req)
	default:
		snap, hit, err = a.networkFirst(ctx, req)
	}

	a.tracer.EndFetch(span, err)
	a.metrics.RecordFetch(ctx, meta, time.Since(start), hit, err)
	return snap, err
}

// staleWhileRevalidate serves static assets: a cached snapshot is returned
// immediately without waiting on the network, and the network result
// refreshes the static store in the background. Concurrent refreshes of the
// same identity are deduplicated.
func (a *Agent) staleWhileRevalidate(ctx context.Context, req Request) (store.Snapshot, bool, error) {
	id := req.Identity()

	st, serr := a.storage.Open(ctx, a.generation.Static)
	var cached store.Snapshot
	var hit bool
	if serr == nil {
		cached, hit = st.Get(ctx, id)
	} // an unavailable store reads as a miss

	// The refresh outlives the caller's interest: a page navigating away
	// abandons the response without canceling the underlying fetch.
	rctx := context.WithoutCancel(ctx)

	a.pending.Add(1)
	ch := a.refresh.DoChan(id.Key(), func() (any, error) {
		snap, err := a.fetch(rctx, req)
		if err == nil && snap.OK() && serr == nil {
			if perr := st.Put(rctx, id, snap); perr != nil {
				a.logger.Warn(rctx, "static refresh write failed",
					observe.Field{Key: "identity", Value: id.Key()},
					observe.Field{Key: "error", Value: perr.Error()},
				)
			}
		}
		return snap, err
	})

	if hit {
		// Respond fast, refresh later. A failed refresh is swallowed; the
		// snapshot already returned stands.
		go func() {
			defer a.pending.Done()
			if res := <-ch; res.Err != nil {
				a.logger.Debug(rctx, "background refresh failed",
					observe.Field{Key: "identity", Value: id.Key()},
					observe.Field{Key: "error", Value: res.Err.Error()},
				)
			}
		}()
		return cached, true, nil
	}

	// No snapshot to fall back on: the caller waits for the network.
	res := <-ch
	a.pending.Done()
	if res.Err != nil {
		return store.Snapshot{}, false, res.Err
	}
	return res.Val.(store.Snapshot), false, nil
}

// cacheFirst serves the root document and HTML pages: any stored snapshot
// wins outright; only a miss goes to the network, and a successful response
// is stored in the combined store before being returned.
func (a *Agent) cacheFirst(ctx context.Context, req Request) (store.Snapshot, bool, error) {
	id := req.Identity()

	if snap, ok := a.storage.MatchAny(ctx, id); ok {
		return snap, true, nil
	}

	snap, err := a.fetch(ctx, req)
	if err != nil {
		return store.Snapshot{}, false, err
	}
	if snap.OK() {
		if combined, serr := a.storage.Open(ctx, a.generation.Combined); serr == nil {
			if perr := combined.Put(ctx, id, snap); perr != nil {
				a.logger.Warn(ctx, "document cache write failed",
					observe.Field{Key: "identity", Value: id.Key()},
					observe.Field{Key: "error", Value: perr.Error()},
				)
			}
		}
	}
	return snap, false, nil
}

// networkFirst serves everything else: a reachable origin always wins, with
// no cache write on success; only on failure does any stored snapshot get
// returned, and with none the original failure surfaces.
func (a *Agent) networkFirst(ctx context.Context, req Request) (store.Snapshot, bool, error) {
	snap, err := a.fetch(ctx, req)
	if err == nil && snap.OK() {
		return snap, false, nil
	}

	if cached, ok := a.storage.MatchAny(ctx, req.Identity()); ok {
		a.logger.Debug(ctx, "network failed, serving cached fallback",
			observe.Field{Key: "identity", Value: req.Identity().Key()},
		)
		return cached, true, nil
	}

	return snap, false, err
}
