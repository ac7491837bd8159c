package scene

import (
	"time"

	"github.com/google/uuid"
)

// CreationData seeds a new scene. Zero values fall back to sensible
// defaults; frame-mode/image consistency is not validated here (that is
// CanGenerate's job).
type CreationData struct {
	Prompt          string
	FrameMode       FrameMode
	AspectRatio     string
	PrimaryImage    string
	FirstFrameImage string
	LastFrameImage  string
	CharacterIDs    []string
}

// New returns a fresh scene with a unique id and all transient fields at
// their empty defaults.
func New(data CreationData) Scene {
	mode := data.FrameMode
	if mode == "" {
		mode = FrameModeSingle
	}
	ratio := data.AspectRatio
	if ratio == "" {
		ratio = "16:9"
	}
	now := time.Now().UTC()
	return Scene{
		ID:              uuid.NewString(),
		Prompt:          data.Prompt,
		FrameMode:       mode,
		AspectRatio:     ratio,
		PrimaryImage:    data.PrimaryImage,
		FirstFrameImage: data.FirstFrameImage,
		LastFrameImage:  data.LastFrameImage,
		CharacterIDs:    append([]string(nil), data.CharacterIDs...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Patch carries a partial scene update; nil fields are left untouched.
type Patch struct {
	Prompt          *string
	FrameMode       *FrameMode
	PrimaryImage    *string
	FirstFrameImage *string
	LastFrameImage  *string
	AspectRatio     *string
	CharacterIDs    *[]string
	IsEnhancing     *bool
	IsGenerating    *bool
	Downloading     *bool
	JobHandle       *string
	ResultAsset     *string
	Display         *string
	OriginalDisplay *string
	DerivedAsset    *string
	FailureReason   *string
}

// Apply merges the patch over the scene and stamps UpdatedAt.
func (p Patch) Apply(s Scene) Scene {
	if p.Prompt != nil {
		s.Prompt = *p.Prompt
	}
	if p.FrameMode != nil {
		s.FrameMode = *p.FrameMode
	}
	if p.PrimaryImage != nil {
		s.PrimaryImage = *p.PrimaryImage
	}
	if p.FirstFrameImage != nil {
		s.FirstFrameImage = *p.FirstFrameImage
	}
	if p.LastFrameImage != nil {
		s.LastFrameImage = *p.LastFrameImage
	}
	if p.AspectRatio != nil {
		s.AspectRatio = *p.AspectRatio
	}
	if p.CharacterIDs != nil {
		s.CharacterIDs = append([]string(nil), (*p.CharacterIDs)...)
	}
	if p.IsEnhancing != nil {
		s.IsEnhancing = *p.IsEnhancing
	}
	if p.IsGenerating != nil {
		s.IsGenerating = *p.IsGenerating
	}
	if p.Downloading != nil {
		s.Downloading = *p.Downloading
	}
	if p.JobHandle != nil {
		s.JobHandle = *p.JobHandle
	}
	if p.ResultAsset != nil {
		s.ResultAsset = *p.ResultAsset
	}
	if p.Display != nil {
		s.Display = *p.Display
	}
	if p.OriginalDisplay != nil {
		s.OriginalDisplay = *p.OriginalDisplay
	}
	if p.DerivedAsset != nil {
		s.DerivedAsset = *p.DerivedAsset
	}
	if p.FailureReason != nil {
		s.FailureReason = *p.FailureReason
	}
	s.UpdatedAt = time.Now().UTC()
	return s
}

// Update returns a new collection where the scene matching id has the
// patch merged over it. Ordering and every other scene are untouched; an
// unknown id yields an equal but fresh collection, never an error.
func Update(scenes []Scene, id string, patch Patch) []Scene {
	out := make([]Scene, len(scenes))
	for i, s := range scenes {
		if s.ID == id {
			out[i] = patch.Apply(s)
		} else {
			out[i] = s
		}
	}
	return out
}

// Remove returns the collection without the scene matching id. Releasing
// the removed scene's asset handles is the caller's responsibility; see
// the board package.
func Remove(scenes []Scene, id string) []Scene {
	out := make([]Scene, 0, len(scenes))
	for _, s := range scenes {
		if s.ID == id {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Reorder moves the element at from to position to, shifting the rest.
// Out-of-range indices are clamped into the valid range rather than
// treated as an error.
func Reorder(scenes []Scene, from, to int) []Scene {
	out := append([]Scene(nil), scenes...)
	if len(out) == 0 {
		return out
	}
	from = clamp(from, 0, len(out)-1)
	to = clamp(to, 0, len(out)-1)
	if from == to {
		return out
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	rest := append([]Scene(nil), out[to:]...)
	out = append(append(out[:to], moved), rest...)
	return out
}

// Find returns the scene matching id, if present.
func Find(scenes []Scene, id string) (Scene, bool) {
	for _, s := range scenes {
		if s.ID == id {
			return s, true
		}
	}
	return Scene{}, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
