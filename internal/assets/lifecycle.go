package assets

import "reelboard/internal/scene"

// AttachOriginal stores the downloaded clip, releases any previously
// attached original for the scene (should not normally exist, but must
// be safe if it does), and records the new handle as both the preferred
// display and the reset target.
func (r *Registry) AttachOriginal(s scene.Scene, data []byte, mime string) scene.Scene {
	if s.ResultAsset != "" {
		r.Release(s.ResultAsset)
	}
	if s.OriginalDisplay != "" && s.OriginalDisplay != s.ResultAsset {
		r.Release(s.OriginalDisplay)
	}
	handle := r.Create(data, mime)
	s.ResultAsset = handle
	s.OriginalDisplay = handle
	if s.DerivedAsset == "" {
		s.Display = handle
	}
	return s
}

// AttachDerived stores a post-processed variant, releases the previous
// derived handle if present, and makes the new handle the scene's
// preferred display. The original asset is untouched.
func (r *Registry) AttachDerived(s scene.Scene, data []byte, mime string) scene.Scene {
	if s.DerivedAsset != "" {
		r.Release(s.DerivedAsset)
	}
	handle := r.Create(data, mime)
	s.DerivedAsset = handle
	s.Display = handle
	return s
}

// ResetToOriginal releases the derived handle, clears it, and restores
// the preferred display to the retained original. A scene with no
// derived asset passes through unchanged.
func (r *Registry) ResetToOriginal(s scene.Scene) scene.Scene {
	if s.DerivedAsset == "" {
		return s
	}
	r.Release(s.DerivedAsset)
	s.DerivedAsset = ""
	s.Display = s.OriginalDisplay
	return s
}

// ReleaseAll frees every handle the scene owns and clears the handle
// fields. Idempotent: a second call, or a call on a scene with no
// attached resources, does nothing.
func (r *Registry) ReleaseAll(s scene.Scene) scene.Scene {
	for _, handle := range s.Handles() {
		r.Release(handle)
	}
	s.ResultAsset = ""
	s.Display = ""
	s.OriginalDisplay = ""
	s.DerivedAsset = ""
	return s
}
