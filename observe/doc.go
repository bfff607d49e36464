// Package observe provides observability primitives for the offline caching
// engine.
//
// It is a pure instrumentation library: no caching, no transport, no I/O
// beyond exporter setup. The agent and coordinator wire the observer's
// logger, metrics and tracer into their fetch and lifecycle paths.
package observe
