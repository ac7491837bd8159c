package scene

import (
	"strings"
	"time"
)

// FrameMode selects which reference images a scene's generation requires.
type FrameMode string

const (
	FrameModeSingle        FrameMode = "single"
	FrameModeStartOnly     FrameMode = "start-only"
	FrameModeEndOnly       FrameMode = "end-only"
	FrameModeInterpolation FrameMode = "interpolation"
)

var frameModeSet = map[FrameMode]struct{}{
	FrameModeSingle:        {},
	FrameModeStartOnly:     {},
	FrameModeEndOnly:       {},
	FrameModeInterpolation: {},
}

// ParseFrameMode converts a string into a known FrameMode.
func ParseFrameMode(value string) (FrameMode, bool) {
	normalized := FrameMode(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := frameModeSet[normalized]
	return normalized, ok
}

// Status describes where a scene's current generation attempt stands.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusComplete    Status = "complete"
	StatusFailed      Status = "failed"
)

// IsTerminal reports whether a status requires a new submission to progress.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Scene is one storyboard entry: a single video clip request and its state.
type Scene struct {
	ID     string
	Prompt string

	FrameMode       FrameMode
	PrimaryImage    string
	FirstFrameImage string
	LastFrameImage  string

	AspectRatio  string
	CharacterIDs []string

	IsEnhancing  bool
	IsGenerating bool
	Downloading  bool
	JobHandle    string

	// ResultAsset is the handle of the downloaded original clip; empty
	// until a generation attempt completes.
	ResultAsset string
	// Display is the preferred display handle: the derived asset when
	// present, otherwise the original.
	Display string
	// OriginalDisplay retains the original clip's handle even after a
	// derived asset replaces Display, so the scene can reset to it.
	OriginalDisplay string
	// DerivedAsset is the handle of a client-side post-processed
	// (trimmed) variant layered over the original.
	DerivedAsset string

	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GenerationStatus derives the state-machine position from scene fields.
func (s Scene) GenerationStatus() Status {
	switch {
	case s.ResultAsset != "":
		return StatusComplete
	case s.Downloading:
		return StatusDownloading
	case s.IsGenerating:
		return StatusPending
	case s.FailureReason != "":
		return StatusFailed
	default:
		return StatusIdle
	}
}

// AwaitingPoll reports whether the scene has a live provider job that the
// orchestrator should be polling.
func (s Scene) AwaitingPoll() bool {
	return s.JobHandle != "" && s.IsGenerating && s.ResultAsset == ""
}

// CanGenerate reports whether the scene is ready for submission: a
// non-empty prompt, no generation already in flight, and the image
// inputs its frame mode requires.
func (s Scene) CanGenerate() bool {
	if strings.TrimSpace(s.Prompt) == "" {
		return false
	}
	if s.IsGenerating {
		return false
	}
	switch s.FrameMode {
	case FrameModeSingle:
		return s.PrimaryImage != ""
	case FrameModeStartOnly:
		return s.FirstFrameImage != ""
	case FrameModeEndOnly:
		return s.LastFrameImage != ""
	case FrameModeInterpolation:
		return s.FirstFrameImage != "" && s.LastFrameImage != ""
	default:
		return false
	}
}

// Handles returns every display handle the scene currently owns, in
// release order. Duplicates are elided so release stays exactly-once
// even when Display aliases the original or derived handle.
func (s Scene) Handles() []string {
	seen := make(map[string]struct{}, 4)
	var handles []string
	for _, h := range []string{s.ResultAsset, s.OriginalDisplay, s.DerivedAsset, s.Display} {
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		handles = append(handles, h)
	}
	return handles
}
