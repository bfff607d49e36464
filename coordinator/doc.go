// Package coordinator implements the page-side lifecycle coordinator: it
// registers the caching agent for the page's scope, detects updates, forces
// pending updates to skip the waiting state, and decides whether a page
// reload is required when a new agent takes control.
//
// Caching is strictly a progressive enhancement. Every failure in the
// coordinator is logged and swallowed; none of them may prevent the host
// application from rendering.
package coordinator
