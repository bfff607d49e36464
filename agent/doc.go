// Package agent implements the caching agent: a page-independent engine that
// intercepts every read-only same-origin request, applies one of three
// caching strategies against generation-tagged snapshot stores, and manages
// the install/activate lifecycle that hands caches over between deployed
// versions.
//
// # Routing
//
// Each request is routed by shape, first match wins: non-read-only methods,
// API-prefixed paths and cross-origin targets bypass the engine entirely;
// static assets get stale-while-revalidate; the root document and HTML pages
// get cache-first; everything else gets network-first with cached fallback.
//
// # Lifecycle
//
// An agent moves through installing, waiting, activating, activated, and
// finally redundant when superseded. Install pre-populates the combined
// store with the bootstrap assets; activate drops every cache generation the
// current version does not own. Activation never starts while install work
// or background refreshes are still in flight.
//
// The Runtime is the in-process registration boundary: it owns agent
// instances per scope, surfaces update-found and controller-changed signals,
// and forwards control and status messages between the coordinator and the
// agents.
package agent
