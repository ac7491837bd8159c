// Package scene defines the storyboard scene entity and the pure
// operations over ordered scene collections.
//
// A Scene is one independently generated video clip request: prompt,
// frame-mode image inputs, linked characters, in-flight flags, the
// provider job handle, and the display handles for the downloaded and
// derived assets. Collection operations (Update, Remove, Reorder) are
// copy-on-write; callers never mutate a returned slice in place.
//
// Side effects (asset release, persistence, polling) live elsewhere;
// this package is the single source of truth for scene state shape and
// the generation status derivation.
package scene
