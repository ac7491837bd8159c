package provider

import (
	"context"
	"errors"

	"reelboard/internal/scene"
)

// ErrRejected marks a submission the provider refused without creating a
// trackable job. Callers report it and leave the scene resubmittable; it
// is not a transport failure.
var ErrRejected = errors.New("submission rejected")

// ImageData is an inline reference image.
type ImageData struct {
	Bytes    []byte
	MimeType string
}

// Request describes one generation submission.
type Request struct {
	Prompt         string
	Model          string
	AspectRatio    string
	NegativePrompt string
	FrameMode      scene.FrameMode
	// Image is the single-mode reference; FirstFrame/LastFrame serve the
	// start-only, end-only, and interpolation modes.
	Image      *ImageData
	FirstFrame *ImageData
	LastFrame  *ImageData
}

// JobStatus is the provider's answer to a poll.
type JobStatus struct {
	Done          bool
	Success       bool
	FailureReason string
	ResultLocator string
}

// EnhanceContext carries the scene settings the prompt enhancer may use.
type EnhanceContext struct {
	AspectRatio      string
	Model            string
	FrameMode        scene.FrameMode
	HasStartingFrame bool
	HasEndingFrame   bool
}

// Service is the boundary to the generative AI provider.
type Service interface {
	// Submit starts a generation job and returns its opaque handle.
	// A rejection without a trackable job returns ErrRejected.
	Submit(ctx context.Context, req Request) (string, error)
	// Status reports whether the job identified by handle has finished,
	// and on completion whether it succeeded, was content-filtered, or
	// produced a downloadable result locator.
	Status(ctx context.Context, handle string) (JobStatus, error)
	// Download fetches the finished asset behind a result locator.
	Download(ctx context.Context, locator string) ([]byte, string, error)
	// Enhance rewrites a prompt with model assistance.
	Enhance(ctx context.Context, prompt string, ec EnhanceContext) (string, error)
}
