// Package assets owns the lifetime of display handles for downloaded
// and derived video blobs.
//
// Every blob handed to the display layer is paired with exactly one
// live handle ("asset://<uuid>"). The Registry guarantees release is
// idempotent and exactly-once per handle, and the scene-level attach
// operations supersede-then-release their predecessors so a scene never
// points at a released handle.
package assets
