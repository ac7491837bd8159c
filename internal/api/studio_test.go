package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"reelboard/internal/assets"
	"reelboard/internal/board"
	"reelboard/internal/characters"
	"reelboard/internal/provider"
	"reelboard/internal/scene"
)

type stubProvider struct {
	mu           sync.Mutex
	submitErr    error
	submitCount  int
	submitHook   func()
	lastRequest  provider.Request
	enhanceOut   string
	enhanceErr   error
	enhanceCount int
}

func (s *stubProvider) Submit(ctx context.Context, req provider.Request) (string, error) {
	s.mu.Lock()
	s.submitCount++
	s.lastRequest = req
	err := s.submitErr
	hook := s.submitHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return "operations/test", nil
}

func (s *stubProvider) Status(ctx context.Context, handle string) (provider.JobStatus, error) {
	return provider.JobStatus{}, nil
}

func (s *stubProvider) Download(ctx context.Context, locator string) ([]byte, string, error) {
	return []byte("clip"), "video/mp4", nil
}

func (s *stubProvider) Enhance(ctx context.Context, prompt string, ec provider.EnhanceContext) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enhanceCount++
	if s.enhanceErr != nil {
		return "", s.enhanceErr
	}
	if s.enhanceOut != "" {
		return s.enhanceOut, nil
	}
	return prompt + " (enhanced)", nil
}

func newTestStudio(t *testing.T) (*StudioService, *board.Board, *characters.Registry, *stubProvider) {
	t.Helper()
	registry := assets.NewRegistry()
	b := board.New(registry, nil, nil)
	chars := characters.NewRegistry("", characters.Limits{}, nil)
	svc := &stubProvider{}
	studio := NewStudioService(b, chars, svc, Settings{Model: "veo-test", DefaultAspectRatio: "16:9"}, nil)
	return studio, b, chars, svc
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func readyScene(t *testing.T, studio *StudioService) SceneView {
	t.Helper()
	view, err := studio.CreateScene(context.Background(), CreateSceneRequest{
		Prompt:       "a quiet harbor at dawn",
		PrimaryImage: writeTestImage(t),
	})
	if err != nil {
		t.Fatalf("CreateScene: %v", err)
	}
	return view
}

func TestCreateSceneValidatesFrameMode(t *testing.T) {
	studio, _, _, _ := newTestStudio(t)

	_, err := studio.CreateScene(context.Background(), CreateSceneRequest{Prompt: "x", FrameMode: "both-ends"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCreateSceneUsesConfiguredAspectRatio(t *testing.T) {
	registry := assets.NewRegistry()
	b := board.New(registry, nil, nil)
	chars := characters.NewRegistry("", characters.Limits{}, nil)
	studio := NewStudioService(b, chars, &stubProvider{}, Settings{Model: "veo-test", DefaultAspectRatio: "9:16"}, nil)
	ctx := context.Background()

	view, err := studio.CreateScene(ctx, CreateSceneRequest{Prompt: "vertical clip"})
	if err != nil {
		t.Fatalf("CreateScene: %v", err)
	}
	if view.AspectRatio != "9:16" {
		t.Errorf("aspect ratio = %q, want configured default 9:16", view.AspectRatio)
	}

	explicit, err := studio.CreateScene(ctx, CreateSceneRequest{Prompt: "square clip", AspectRatio: "1:1"})
	if err != nil {
		t.Fatalf("CreateScene: %v", err)
	}
	if explicit.AspectRatio != "1:1" {
		t.Errorf("aspect ratio = %q, want explicit 1:1", explicit.AspectRatio)
	}
}

func TestCreateSceneValidatesCharacterLinks(t *testing.T) {
	studio, _, chars, _ := newTestStudio(t)
	ctx := context.Background()

	a, _ := chars.Create("A", "", nil)
	b, _ := chars.Create("B", "", nil)
	c, _ := chars.Create("C", "", nil)
	d, _ := chars.Create("D", "", nil)

	if _, err := studio.CreateScene(ctx, CreateSceneRequest{
		Prompt:       "x",
		CharacterIDs: []string{a.ID, b.ID, c.ID, d.ID},
	}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("four links should be rejected, got %v", err)
	}

	if _, err := studio.CreateScene(ctx, CreateSceneRequest{
		Prompt:       "x",
		CharacterIDs: []string{a.ID, "ghost"},
	}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("unknown link should be rejected, got %v", err)
	}

	if _, err := studio.CreateScene(ctx, CreateSceneRequest{
		Prompt:       "x",
		CharacterIDs: []string{a.ID, a.ID},
	}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("duplicate link should be rejected, got %v", err)
	}

	if _, err := studio.CreateScene(ctx, CreateSceneRequest{
		Prompt:       "x",
		CharacterIDs: []string{a.ID, b.ID, c.ID},
	}); err != nil {
		t.Errorf("three valid links rejected: %v", err)
	}
}

func TestGenerateSceneSubmitsAndMarksGenerating(t *testing.T) {
	studio, b, _, svc := newTestStudio(t)
	view := readyScene(t, studio)

	got, err := studio.GenerateScene(context.Background(), view.ID)
	if err != nil {
		t.Fatalf("GenerateScene: %v", err)
	}
	if !got.IsGenerating || got.Status != string(scene.StatusPending) {
		t.Errorf("scene not pending: %+v", got)
	}

	sc, _ := b.Get(view.ID)
	if sc.JobHandle != "operations/test" {
		t.Errorf("job handle = %q", sc.JobHandle)
	}
	if svc.lastRequest.Image == nil || string(svc.lastRequest.Image.Bytes) != "png-bytes" {
		t.Errorf("frame image not loaded: %+v", svc.lastRequest.Image)
	}
	if svc.lastRequest.Model != "veo-test" {
		t.Errorf("model = %q", svc.lastRequest.Model)
	}
}

func TestGenerateSceneRejectsDuplicate(t *testing.T) {
	studio, _, _, svc := newTestStudio(t)
	view := readyScene(t, studio)
	ctx := context.Background()

	if _, err := studio.GenerateScene(ctx, view.ID); err != nil {
		t.Fatalf("first GenerateScene: %v", err)
	}
	if _, err := studio.GenerateScene(ctx, view.ID); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if svc.submitCount != 1 {
		t.Errorf("submit called %d times", svc.submitCount)
	}
}

func TestGenerateSceneNotReady(t *testing.T) {
	studio, _, _, _ := newTestStudio(t)
	ctx := context.Background()

	view, err := studio.CreateScene(ctx, CreateSceneRequest{Prompt: "no image"})
	if err != nil {
		t.Fatalf("CreateScene: %v", err)
	}
	if _, err := studio.GenerateScene(ctx, view.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestGenerateSceneSubmitFailureReverts(t *testing.T) {
	studio, b, _, svc := newTestStudio(t)
	view := readyScene(t, studio)
	svc.submitErr = errors.New("dial tcp: connection refused")

	_, err := studio.GenerateScene(context.Background(), view.ID)
	if err == nil {
		t.Fatal("expected submit error")
	}

	sc, _ := b.Get(view.ID)
	if sc.IsGenerating || sc.JobHandle != "" {
		t.Errorf("scene left in flight after failed submit: %+v", sc)
	}
	if !strings.Contains(sc.FailureReason, "connection refused") {
		t.Errorf("failure reason = %q", sc.FailureReason)
	}
}

func TestGenerateSceneResetDuringSubmitDropsHandle(t *testing.T) {
	studio, b, _, svc := newTestStudio(t)
	view := readyScene(t, studio)
	ctx := context.Background()

	svc.submitHook = func() {
		if _, err := b.ResetScene(ctx, view.ID); err != nil {
			t.Errorf("ResetScene during submit: %v", err)
		}
	}

	if _, err := studio.GenerateScene(ctx, view.ID); err != nil {
		t.Fatalf("GenerateScene: %v", err)
	}

	sc, _ := b.Get(view.ID)
	if sc.JobHandle != "" {
		t.Errorf("handle %q attached to a reset scene", sc.JobHandle)
	}
	if sc.IsGenerating {
		t.Error("reset scene marked generating")
	}
}

func TestGenerateSceneResubmitClearsPriorResult(t *testing.T) {
	studio, b, _, _ := newTestStudio(t)
	view := readyScene(t, studio)
	ctx := context.Background()

	registry := b.Assets()
	if _, err := b.Transform(ctx, view.ID, nil, func(cur scene.Scene) scene.Scene {
		cur = registry.AttachOriginal(cur, []byte("old clip"), "video/mp4")
		return cur
	}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected 1 live asset, got %d", registry.Len())
	}

	got, err := studio.GenerateScene(ctx, view.ID)
	if err != nil {
		t.Fatalf("GenerateScene: %v", err)
	}
	if !got.IsGenerating {
		t.Errorf("resubmitted scene not generating: %+v", got)
	}
	if registry.Len() != 0 {
		t.Errorf("prior asset not released on resubmit: %d live", registry.Len())
	}
}

func TestEnhancePromptRewrites(t *testing.T) {
	studio, b, _, svc := newTestStudio(t)
	view := readyScene(t, studio)
	svc.enhanceOut = "a cinematic harbor at golden hour"

	got, err := studio.EnhancePrompt(context.Background(), view.ID)
	if err != nil {
		t.Fatalf("EnhancePrompt: %v", err)
	}
	if got.Prompt != "a cinematic harbor at golden hour" {
		t.Errorf("prompt = %q", got.Prompt)
	}
	if got.IsEnhancing {
		t.Error("enhancing flag not cleared")
	}

	sc, _ := b.Get(view.ID)
	if sc.IsEnhancing {
		t.Error("board scene still enhancing")
	}
}

func TestEnhancePromptFailureKeepsOriginal(t *testing.T) {
	studio, b, _, svc := newTestStudio(t)
	view := readyScene(t, studio)
	svc.enhanceErr = errors.New("model unavailable")

	_, err := studio.EnhancePrompt(context.Background(), view.ID)
	if err == nil {
		t.Fatal("expected enhance error")
	}

	sc, _ := b.Get(view.ID)
	if sc.Prompt != "a quiet harbor at dawn" {
		t.Errorf("prompt changed on failure: %q", sc.Prompt)
	}
	if sc.IsEnhancing {
		t.Error("enhancing flag stuck after failure")
	}
}

func TestAttachTrimmedRequiresOriginal(t *testing.T) {
	studio, _, _, _ := newTestStudio(t)
	view := readyScene(t, studio)

	_, err := studio.AttachTrimmed(context.Background(), view.ID, []byte("trimmed"), "video/mp4")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest without original clip, got %v", err)
	}
}

func TestAttachTrimmedAndResetTrim(t *testing.T) {
	studio, b, _, _ := newTestStudio(t)
	view := readyScene(t, studio)
	ctx := context.Background()

	registry := b.Assets()
	if _, err := b.Transform(ctx, view.ID, nil, func(cur scene.Scene) scene.Scene {
		return registry.AttachOriginal(cur, []byte("original"), "video/mp4")
	}); err != nil {
		t.Fatalf("attach original: %v", err)
	}

	trimmed, err := studio.AttachTrimmed(ctx, view.ID, []byte("trimmed"), "video/mp4")
	if err != nil {
		t.Fatalf("AttachTrimmed: %v", err)
	}
	if !trimmed.HasDerived {
		t.Error("derived flag not set")
	}

	sc, _ := b.Get(view.ID)
	if sc.Display != sc.DerivedAsset || sc.OriginalDisplay == "" {
		t.Errorf("derived does not override display: %+v", sc)
	}

	restored, err := studio.ResetTrim(ctx, view.ID)
	if err != nil {
		t.Fatalf("ResetTrim: %v", err)
	}
	if restored.HasDerived {
		t.Error("derived flag survived reset")
	}
	sc, _ = b.Get(view.ID)
	if sc.Display != sc.OriginalDisplay {
		t.Errorf("display not restored: %+v", sc)
	}
}

func TestComposePromptIncludesCharacters(t *testing.T) {
	studio, _, chars, svc := newTestStudio(t)
	ctx := context.Background()

	ava, _ := chars.Create("Ava", "red coat, silver hair", nil)
	view, err := studio.CreateScene(ctx, CreateSceneRequest{
		Prompt:       "walking across the bridge",
		PrimaryImage: writeTestImage(t),
		CharacterIDs: []string{ava.ID},
	})
	if err != nil {
		t.Fatalf("CreateScene: %v", err)
	}

	if _, err := studio.GenerateScene(ctx, view.ID); err != nil {
		t.Fatalf("GenerateScene: %v", err)
	}
	if !strings.Contains(svc.lastRequest.Prompt, "Ava: red coat, silver hair") {
		t.Errorf("prompt missing character reference: %q", svc.lastRequest.Prompt)
	}
}

func TestStatusSummary(t *testing.T) {
	studio, b, chars, _ := newTestStudio(t)
	ctx := context.Background()

	chars.Create("A", "", nil)
	readyScene(t, studio)
	failed, _ := studio.CreateScene(ctx, CreateSceneRequest{Prompt: "broken"})
	reason := "safety policy violation"
	if _, err := b.Apply(ctx, failed.ID, scene.Patch{FailureReason: &reason}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	summary := studio.Status()
	if summary.SceneCount != 2 || summary.CharacterCount != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.ByStatus[string(scene.StatusIdle)] != 1 || summary.ByStatus[string(scene.StatusFailed)] != 1 {
		t.Errorf("by-status = %+v", summary.ByStatus)
	}
}
