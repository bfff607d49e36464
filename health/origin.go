package health

import (
	"context"
	"fmt"
	"time"

	"github.com/thomassophiea/aura-offline/agent"
)

// OriginChecker probes the origin server through the engine's own fetcher.
// An unreachable origin degrades the service rather than failing it: the
// whole point of the engine is to keep serving from cache when the origin
// is gone.
type OriginChecker struct {
	fetch agent.Fetcher
	probe string
}

// NewOriginChecker creates a checker that fetches probePath from the origin.
// An empty probePath probes the root document.
func NewOriginChecker(fetch agent.Fetcher, probePath string) *OriginChecker {
	if probePath == "" {
		probePath = "/"
	}
	return &OriginChecker{fetch: fetch, probe: probePath}
}

// Name returns the name of this checker.
func (c *OriginChecker) Name() string { return "origin" }

// Check fetches the probe path once.
func (c *OriginChecker) Check(ctx context.Context) Result {
	req, err := agent.ParseRequest("GET", c.probe)
	if err != nil {
		return Unhealthy("invalid probe path", err)
	}

	start := time.Now()
	snap, err := c.fetch(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		return Degraded("origin unreachable, serving from cache").WithDetails(map[string]any{
			"probe": c.probe,
			"error": err.Error(),
		})
	}
	if !snap.OK() {
		return Degraded(fmt.Sprintf("origin probe returned status %d", snap.Status)).WithDetails(map[string]any{
			"probe":  c.probe,
			"status": snap.Status,
		})
	}

	return Healthy("origin reachable").WithDetails(map[string]any{
		"probe":      c.probe,
		"status":     snap.Status,
		"latency_ms": elapsed.Milliseconds(),
	})
}
