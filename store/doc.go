// Package store provides generation-tagged snapshot stores for the offline
// caching engine.
//
// A Store maps request identities (method + URL) to response snapshots with
// last-write-wins semantics. Multiple stores coexist, each named by a
// generation tag; a Generation describes the three tags that are live for one
// deployed version, and everything else is garbage collected at activation.
//
// Eventual consistency of the cached snapshots is promised, but nothing more:
// store unavailability is reported as a miss, never as a failure.
package store
