// Package health provides liveness and readiness checks for the offline
// caching engine: origin reachability, cache storage integrity and agent
// lifecycle state, combined by an aggregator and exposed over HTTP probe
// endpoints.
package health
