package agent

import "errors"

// Sentinel errors for agent operations.
var (
	// ErrNilStorage indicates the agent was built without a snapshot storage.
	ErrNilStorage = errors.New("agent: storage is nil")

	// ErrNilFetcher indicates the agent was built without a network fetcher.
	ErrNilFetcher = errors.New("agent: fetcher is nil")

	// ErrMissingVersion indicates the agent was built without a version.
	ErrMissingVersion = errors.New("agent: version is required")

	// ErrInvalidTransition indicates a lifecycle operation was attempted in
	// the wrong state.
	ErrInvalidTransition = errors.New("agent: invalid lifecycle transition")

	// ErrRedundant indicates the agent has been superseded and no longer
	// serves requests.
	ErrRedundant = errors.New("agent: agent is redundant")

	// ErrFetchTimeout indicates the single network attempt timed out.
	ErrFetchTimeout = errors.New("agent: network fetch timed out")

	// ErrUnknownControl indicates a control message with an unknown type.
	ErrUnknownControl = errors.New("agent: unknown control message")

	// ErrScopeNotRegistered indicates no registration exists for a scope.
	ErrScopeNotRegistered = errors.New("agent: scope not registered")

	// ErrNotControlled indicates the scope has no active controller yet.
	ErrNotControlled = errors.New("agent: scope has no active controller")

	// ErrNilAgentFactory indicates the runtime was built without an agent
	// factory.
	ErrNilAgentFactory = errors.New("agent: agent factory is nil")
)
