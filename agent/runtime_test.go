package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thomassophiea/aura-offline/store"
)

// testRuntime builds a runtime whose factory hands out agents from versions,
// one per Register call, all backed by the same origin and storage.
func testRuntime(t *testing.T, origin *fakeOrigin, storage store.Storage, requireSkip bool, versions ...string) *Runtime {
	t.Helper()
	next := make(chan string, len(versions))
	for _, v := range versions {
		next <- v
	}

	rt, err := NewRuntime(RuntimeConfig{
		NewAgent: func(ctx context.Context) (*Agent, error) {
			select {
			case v := <-next:
				return New(Config{
					Version:           v,
					Storage:           storage,
					Fetcher:           origin.fetcher(),
					RequireSkipSignal: requireSkip,
				})
			default:
				return nil, errors.New("factory exhausted")
			}
		},
	})
	if err != nil {
		t.Fatalf("NewRuntime() error = %v", err)
	}
	return rt
}

func serveBootstrap(origin *fakeOrigin) {
	origin.serve("/", "<html>")
	origin.serve("/manifest.json", "{}")
}

// TestRuntime_FirstInstallActivates verifies a first install takes control
// without waiting for a skip signal.
func TestRuntime_FirstInstallActivates(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOrigin()
	serveBootstrap(origin)
	storage := store.NewMemoryStorage()
	rt := testRuntime(t, origin, storage, true, "v1")

	reg, err := rt.Register(ctx, "/sw.js", "/")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	select {
	case inst := <-reg.Updates():
		if inst.Version() != "v1" {
			t.Errorf("update version = %q, want v1", inst.Version())
		}
	case <-time.After(time.Second):
		t.Fatal("no update signal")
	}

	select {
	case inst := <-reg.ControllerChanges():
		if inst.Version() != "v1" {
			t.Errorf("controller version = %q, want v1", inst.Version())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first install never took control")
	}

	if !rt.Controlled("/") {
		t.Error("Controlled(/) = false after activation")
	}
	if got := reg.Active().State(); got != StateActivated {
		t.Errorf("active state = %v, want %v", got, StateActivated)
	}
}

// TestRuntime_UpgradeWaitsForSkip verifies an upgrade stays waiting until
// SKIP_WAITING arrives, then takes control and retires the old instance.
func TestRuntime_UpgradeWaitsForSkip(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOrigin()
	serveBootstrap(origin)
	storage := store.NewMemoryStorage()
	rt := testRuntime(t, origin, storage, true, "v1", "v2")

	reg, err := rt.Register(ctx, "/sw.js", "/")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-reg.ControllerChanges():
	case <-time.After(2 * time.Second):
		t.Fatal("v1 never took control")
	}
	v1 := reg.Active()

	// Upgrade: same scope, new version.
	if _, err := rt.Register(ctx, "/sw.js", "/"); err != nil {
		t.Fatal(err)
	}

	var v2 Instance
	select {
	case v2 = <-reg.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update signal for v2")
	}

	waitFor(t, "v2 waiting", func() bool { return v2.State() == StateWaiting })
	if got := reg.Active().Version(); got != "v1" {
		t.Errorf("active version = %q, want v1 while v2 waits", got)
	}

	if err := v2.Send(ctx, Control{Type: ControlSkipWaiting}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case inst := <-reg.ControllerChanges():
		if inst.Version() != "v2" {
			t.Errorf("new controller = %q, want v2", inst.Version())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("v2 never took control after skip")
	}

	waitFor(t, "v1 retired", func() bool { return v1.State() == StateRedundant })
}

// TestRuntime_UpgradeProactiveSkip verifies the default configuration, where
// a freshly installed upgrade skips waiting on its own.
func TestRuntime_UpgradeProactiveSkip(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOrigin()
	serveBootstrap(origin)
	storage := store.NewMemoryStorage()
	rt := testRuntime(t, origin, storage, false, "v1", "v2")

	reg, err := rt.Register(ctx, "/sw.js", "/")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-reg.ControllerChanges():
	case <-time.After(2 * time.Second):
		t.Fatal("v1 never took control")
	}

	if _, err := rt.Register(ctx, "/sw.js", "/"); err != nil {
		t.Fatal(err)
	}

	select {
	case inst := <-reg.ControllerChanges():
		if inst.Version() != "v2" {
			t.Errorf("new controller = %q, want v2", inst.Version())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("v2 never took control")
	}
}

// TestRuntime_UpgradeEvictsOldGeneration verifies the old version's cache
// tags are gone after the upgrade activates.
func TestRuntime_UpgradeEvictsOldGeneration(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOrigin()
	serveBootstrap(origin)
	storage := store.NewMemoryStorage()
	rt := testRuntime(t, origin, storage, false, "v1", "v2")

	reg, err := rt.Register(ctx, "/sw.js", "/")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-reg.ControllerChanges():
	case <-time.After(2 * time.Second):
		t.Fatal("v1 never took control")
	}

	if _, err := rt.Register(ctx, "/sw.js", "/"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reg.ControllerChanges():
	case <-time.After(2 * time.Second):
		t.Fatal("v2 never took control")
	}

	tags, err := storage.Tags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if !store.NewGeneration("v2").Keep(tag) {
			t.Errorf("stale tag %q survived upgrade", tag)
		}
	}
}

// TestRuntime_HandleFetch covers the routing-through-controller path and the
// two failure sentinels.
func TestRuntime_HandleFetch(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOrigin()
	serveBootstrap(origin)
	origin.serve("/app.js", "v1")
	storage := store.NewMemoryStorage()
	rt := testRuntime(t, origin, storage, true, "v1")

	req := mustRequest(t, "GET", "/app.js")

	if _, err := rt.HandleFetch(ctx, "/", req); !errors.Is(err, ErrScopeNotRegistered) {
		t.Errorf("error = %v, want %v", err, ErrScopeNotRegistered)
	}

	reg, err := rt.Register(ctx, "/sw.js", "/")
	if err != nil {
		t.Fatal(err)
	}

	// Until activation finishes the scope is uncontrolled.
	if _, err := rt.HandleFetch(ctx, "/", req); err != nil && !errors.Is(err, ErrNotControlled) {
		t.Errorf("pre-control error = %v, want %v or nil", err, ErrNotControlled)
	}

	select {
	case <-reg.ControllerChanges():
	case <-time.After(2 * time.Second):
		t.Fatal("never controlled")
	}

	snap, err := rt.HandleFetch(ctx, "/", req)
	if err != nil {
		t.Fatalf("HandleFetch() error = %v", err)
	}
	if string(snap.Body) != "v1" {
		t.Errorf("body = %q, want v1", snap.Body)
	}
}

// TestRuntime_InstallFailureLeavesControllerAlone verifies a failed upgrade
// install never disturbs the current controller.
func TestRuntime_InstallFailureLeavesControllerAlone(t *testing.T) {
	ctx := context.Background()
	origin := newFakeOrigin()
	serveBootstrap(origin)
	storage := store.NewMemoryStorage()
	rt := testRuntime(t, origin, storage, false, "v1", "v2")

	reg, err := rt.Register(ctx, "/sw.js", "/")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-reg.ControllerChanges():
	case <-time.After(2 * time.Second):
		t.Fatal("v1 never took control")
	}

	// Break the origin before the upgrade installs.
	origin.fail("/manifest.json", errors.New("origin unreachable"))

	if _, err := rt.Register(ctx, "/sw.js", "/"); err != nil {
		t.Fatal(err)
	}

	var v2 Instance
	select {
	case v2 = <-reg.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update signal for v2")
	}

	waitFor(t, "v2 redundant", func() bool { return v2.State() == StateRedundant })
	if got := reg.Active().Version(); got != "v1" {
		t.Errorf("active version = %q, want v1 after failed upgrade", got)
	}
}

func TestNewRuntime_NilFactory(t *testing.T) {
	if _, err := NewRuntime(RuntimeConfig{}); !errors.Is(err, ErrNilAgentFactory) {
		t.Errorf("error = %v, want %v", err, ErrNilAgentFactory)
	}
}
