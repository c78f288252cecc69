// Package broadcast implements the live sensor channel using the actor pattern.
//
// The Broadcaster asks its reading source for a fresh set on every tick, serializes it once
// and fans it out to all registered subscribers. A single goroutine owns the registry and
// receives commands over a channel (no mutexes). Per-connection writer goroutines absorb slow
// subscribers: a full buffer drops that subscriber's message instead of stalling the tick.
package broadcast
