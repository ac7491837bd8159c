// Package polling supervises per-scene poll loops against the generation
// provider. The orchestrator is level-triggered: it recomputes the set of
// scenes that should be polled from the live collection and reconciles
// running loops against it, so board mutations never leave a loop behind
// or a live job unwatched.
package polling
