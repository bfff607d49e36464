package health

import (
	"context"
	"fmt"

	"github.com/thomassophiea/aura-offline/agent"
)

// LifecycleChecker reports the lifecycle state of the scope's controller.
type LifecycleChecker struct {
	rt    *agent.Runtime
	scope string
}

// NewLifecycleChecker creates a checker watching one scope's registration.
func NewLifecycleChecker(rt *agent.Runtime, scope string) *LifecycleChecker {
	return &LifecycleChecker{rt: rt, scope: scope}
}

// Name returns the name of this checker.
func (c *LifecycleChecker) Name() string { return "lifecycle" }

// Check reports healthy only when an activated instance controls the scope.
func (c *LifecycleChecker) Check(ctx context.Context) Result {
	if !c.rt.Controlled(c.scope) {
		return Degraded("no active controller, requests pass through").WithDetails(map[string]any{
			"scope": c.scope,
		})
	}

	return Healthy(fmt.Sprintf("scope %s controlled", c.scope)).WithDetails(map[string]any{
		"scope": c.scope,
	})
}
