package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thomassophiea/aura-offline/agent"
	"github.com/thomassophiea/aura-offline/store"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name  string
		fetch agent.Fetcher
		want  Status
	}{
		{
			name: "reachable",
			fetch: func(ctx context.Context, req agent.Request) (store.Snapshot, error) {
				return store.Snapshot{Status: 200}, nil
			},
			want: StatusHealthy,
		},
		{
			name: "unreachable degrades",
			fetch: func(ctx context.Context, req agent.Request) (store.Snapshot, error) {
				return store.Snapshot{}, errors.New("connection refused")
			},
			want: StatusDegraded,
		},
		{
			name: "server error degrades",
			fetch: func(ctx context.Context, req agent.Request) (store.Snapshot, error) {
				return store.Snapshot{Status: 503}, nil
			},
			want: StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOriginChecker(tt.fetch, "/")
			result := c.Check(context.Background())
			if result.Status != tt.want {
				t.Errorf("status = %v, want %v (message: %s)", result.Status, tt.want, result.Message)
			}
		})
	}
}

func TestStorageChecker(t *testing.T) {
	ctx := context.Background()
	gen := store.NewGeneration("v2")

	t.Run("ready", func(t *testing.T) {
		storage := store.NewMemoryStorage()
		for _, tag := range gen.Tags() {
			if _, err := storage.Open(ctx, tag); err != nil {
				t.Fatal(err)
			}
		}
		result := NewStorageChecker(storage, gen).Check(ctx)
		if result.Status != StatusHealthy {
			t.Errorf("status = %v, want healthy (message: %s)", result.Status, result.Message)
		}
	})

	t.Run("missing current stores", func(t *testing.T) {
		result := NewStorageChecker(store.NewMemoryStorage(), gen).Check(ctx)
		if result.Status != StatusDegraded {
			t.Errorf("status = %v, want degraded", result.Status)
		}
	})

	t.Run("stale generations", func(t *testing.T) {
		storage := store.NewMemoryStorage()
		for _, tag := range gen.Tags() {
			_, _ = storage.Open(ctx, tag)
		}
		_, _ = storage.Open(ctx, "aura-v1")
		result := NewStorageChecker(storage, gen).Check(ctx)
		if result.Status != StatusDegraded {
			t.Errorf("status = %v, want degraded", result.Status)
		}
		if result.Details["stale"] != 1 {
			t.Errorf("stale detail = %v, want 1", result.Details["stale"])
		}
	})
}

func TestLifecycleChecker(t *testing.T) {
	ctx := context.Background()
	fetch := func(ctx context.Context, req agent.Request) (store.Snapshot, error) {
		return store.Snapshot{Status: 200, Body: []byte("ok")}, nil
	}
	rt, err := agent.NewRuntime(agent.RuntimeConfig{
		NewAgent: func(ctx context.Context) (*agent.Agent, error) {
			return agent.New(agent.Config{Version: "v1", Storage: store.NewMemoryStorage(), Fetcher: fetch})
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	c := NewLifecycleChecker(rt, "/")
	if got := c.Check(ctx).Status; got != StatusDegraded {
		t.Errorf("uncontrolled status = %v, want degraded", got)
	}

	reg, err := rt.Register(ctx, "/sw.js", "/")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-reg.ControllerChanges():
	case <-time.After(2 * time.Second):
		t.Fatal("install never took control")
	}

	if got := c.Check(ctx).Status; got != StatusHealthy {
		t.Errorf("controlled status = %v, want healthy", got)
	}
}

func TestAggregator_CheckAll(t *testing.T) {
	agg := NewAggregator()
	agg.Register(NewCheckerFunc("good", func(ctx context.Context) Result {
		return Healthy("fine")
	}))
	agg.Register(NewCheckerFunc("shaky", func(ctx context.Context) Result {
		return Degraded("wobbling")
	}))

	results := agg.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if got := OverallStatus(results); got != StatusDegraded {
		t.Errorf("OverallStatus = %v, want degraded", got)
	}

	agg.Register(NewCheckerFunc("broken", func(ctx context.Context) Result {
		return Unhealthy("down", errors.New("down"))
	}))
	if got := OverallStatus(agg.CheckAll(context.Background())); got != StatusUnhealthy {
		t.Errorf("OverallStatus = %v, want unhealthy", got)
	}
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: 20 * time.Millisecond})
	agg.Register(NewCheckerFunc("slow", func(ctx context.Context) Result {
		select {
		case <-time.After(5 * time.Second):
			return Healthy("too late")
		case <-ctx.Done():
			return Unhealthy("canceled", ctx.Err())
		}
	}))

	results := agg.CheckAll(context.Background())
	result := results["slow"]
	if result.Status != StatusUnhealthy {
		t.Errorf("status = %v, want unhealthy", result.Status)
	}
	if !errors.Is(result.Error, ErrCheckTimeout) && !errors.Is(result.Error, context.DeadlineExceeded) {
		t.Errorf("error = %v, want timeout", result.Error)
	}
}

func TestAggregator_Check(t *testing.T) {
	agg := NewAggregator()
	agg.Register(NewCheckerFunc("only", func(ctx context.Context) Result {
		return Healthy("fine")
	}))

	result, err := agg.Check(context.Background(), "only")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Status != StatusHealthy {
		t.Errorf("status = %v, want healthy", result.Status)
	}

	if _, err := agg.Check(context.Background(), "missing"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("error = %v, want %v", err, ErrCheckerNotFound)
	}
}

func TestOverallStatus_Empty(t *testing.T) {
	if got := OverallStatus(nil); got != StatusHealthy {
		t.Errorf("OverallStatus(nil) = %v, want healthy", got)
	}
}
