package agent

// State represents the agent lifecycle state.
type State int

const (
	// StateInstalling means the agent is pre-populating its caches.
	StateInstalling State = iota
	// StateWaiting means install finished and the agent is eligible to
	// activate but has not been told to proceed.
	StateWaiting
	// StateActivating means the agent is evicting stale generations and
	// claiming control.
	StateActivating
	// StateActivated means the agent controls its scope and serves requests.
	StateActivated
	// StateRedundant is terminal: the agent was superseded or failed to install.
	StateRedundant
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// validTransitions holds the legal lifecycle transitions. Redundant is
// reachable from every state and terminal.
var validTransitions = map[State][]State{
	StateInstalling: {StateWaiting, StateRedundant},
	StateWaiting:    {StateActivating, StateRedundant},
	StateActivating: {StateActivated, StateRedundant},
	StateActivated:  {StateRedundant},
	StateRedundant:  {},
}

// canTransition reports whether from -> to is a legal lifecycle transition.
func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
