package agent

// Control message types (coordinator to agent).
const (
	// ControlSkipWaiting tells a waiting agent to stop waiting and activate now.
	ControlSkipWaiting = "SKIP_WAITING"
)

// Status message types (agent to coordinator).
const (
	// StatusActivated confirms the agent took control; Version carries the
	// newly active version.
	StatusActivated = "SW_ACTIVATED"

	// StatusCachesCleared confirms stale cache generations were removed.
	StatusCachesCleared = "CACHES_CLEARED"
)

// Control is a message sent from the coordinator to an agent.
type Control struct {
	Type string `json:"type"`
}

// Status is an informational message sent from an agent to the coordinator.
// Status messages never alter coordinator control flow.
type Status struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
}
