package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"reelboard/internal/board"
	"reelboard/internal/characters"
	"reelboard/internal/logging"
	"reelboard/internal/provider"
	"reelboard/internal/scene"
)

var (
	// ErrNotReady is returned when GenerateScene is called on a scene
	// that fails its readiness check.
	ErrNotReady = errors.New("scene is not ready to generate")
	// ErrBusy is returned when a generation or enhancement is already in
	// flight for the scene.
	ErrBusy = errors.New("scene already has a request in flight")
	// ErrInvalidRequest covers malformed create/update payloads.
	ErrInvalidRequest = errors.New("invalid request")
)

// Settings carries the configured generation defaults.
type Settings struct {
	Model              string
	DefaultAspectRatio string
}

// StudioService coordinates the board, character library, and provider on
// behalf of the HTTP surface and CLI.
type StudioService struct {
	board      *board.Board
	characters *characters.Registry
	provider   provider.Service
	logger     *slog.Logger
	settings   Settings
}

// NewStudioService constructs the service layer.
func NewStudioService(b *board.Board, reg *characters.Registry, svc provider.Service, settings Settings, logger *slog.Logger) *StudioService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StudioService{
		board:      b,
		characters: reg,
		provider:   svc,
		logger:     logging.NewComponentLogger(logger, "studio"),
		settings:   settings,
	}
}

// Scenes returns the board in display order.
func (s *StudioService) Scenes() []SceneView {
	return FromScenes(s.board.Scenes())
}

// Scene returns a single scene view.
func (s *StudioService) Scene(id string) (SceneView, bool) {
	sc, ok := s.board.Get(id)
	if !ok {
		return SceneView{}, false
	}
	return FromScene(sc), true
}

// CreateScene validates the request and appends a new scene.
func (s *StudioService) CreateScene(ctx context.Context, req CreateSceneRequest) (SceneView, error) {
	mode := scene.FrameModeSingle
	if req.FrameMode != "" {
		parsed, ok := scene.ParseFrameMode(req.FrameMode)
		if !ok {
			return SceneView{}, fmt.Errorf("%w: unknown frame mode %q", ErrInvalidRequest, req.FrameMode)
		}
		mode = parsed
	}
	if err := s.validateCharacterLinks(req.CharacterIDs); err != nil {
		return SceneView{}, err
	}

	ratio := req.AspectRatio
	if ratio == "" {
		ratio = s.settings.DefaultAspectRatio
	}
	sc, err := s.board.Add(ctx, scene.CreationData{
		Prompt:          req.Prompt,
		FrameMode:       mode,
		AspectRatio:     ratio,
		PrimaryImage:    req.PrimaryImage,
		FirstFrameImage: req.FirstFrameImage,
		LastFrameImage:  req.LastFrameImage,
		CharacterIDs:    req.CharacterIDs,
	})
	if err != nil {
		return SceneView{}, err
	}
	return FromScene(sc), nil
}

// UpdateScene merges a partial edit over the scene.
func (s *StudioService) UpdateScene(ctx context.Context, id string, req UpdateSceneRequest) (SceneView, error) {
	patch := scene.Patch{
		Prompt:          req.Prompt,
		AspectRatio:     req.AspectRatio,
		PrimaryImage:    req.PrimaryImage,
		FirstFrameImage: req.FirstFrameImage,
		LastFrameImage:  req.LastFrameImage,
	}
	if req.FrameMode != nil {
		mode, ok := scene.ParseFrameMode(*req.FrameMode)
		if !ok {
			return SceneView{}, fmt.Errorf("%w: unknown frame mode %q", ErrInvalidRequest, *req.FrameMode)
		}
		patch.FrameMode = &mode
	}
	if req.CharacterIDs != nil {
		if err := s.validateCharacterLinks(*req.CharacterIDs); err != nil {
			return SceneView{}, err
		}
		patch.CharacterIDs = req.CharacterIDs
	}

	sc, err := s.board.Apply(ctx, id, patch)
	if err != nil {
		return SceneView{}, err
	}
	return FromScene(sc), nil
}

// DeleteScene removes a scene and releases its assets.
func (s *StudioService) DeleteScene(ctx context.Context, id string) error {
	return s.board.Remove(ctx, id)
}

// ReorderScenes moves a scene between board positions.
func (s *StudioService) ReorderScenes(ctx context.Context, req ReorderRequest) ([]SceneView, error) {
	if err := s.board.Reorder(ctx, req.From, req.To); err != nil {
		return nil, err
	}
	return s.Scenes(), nil
}

// ResetBoard releases everything and empties the board.
func (s *StudioService) ResetBoard(ctx context.Context) error {
	return s.board.Reset(ctx)
}

// ResetScene returns a scene to idle, keeping its configuration.
func (s *StudioService) ResetScene(ctx context.Context, id string) (SceneView, error) {
	sc, err := s.board.ResetScene(ctx, id)
	if err != nil {
		return SceneView{}, err
	}
	return FromScene(sc), nil
}

// GenerateScene submits a generation job for the scene. A terminal scene
// is cleared first so resubmission starts from a clean slate; the polling
// orchestrator picks the job up through the board change notification.
func (s *StudioService) GenerateScene(ctx context.Context, id string) (SceneView, error) {
	sc, ok := s.board.Get(id)
	if !ok {
		return SceneView{}, fmt.Errorf("%w: %s", board.ErrSceneNotFound, id)
	}
	if sc.IsGenerating {
		return FromScene(sc), fmt.Errorf("%w: generation in progress", ErrBusy)
	}

	if sc.GenerationStatus().IsTerminal() {
		cleared, err := s.board.ResetScene(ctx, id)
		if err != nil {
			return SceneView{}, err
		}
		sc = cleared
	}

	if !sc.CanGenerate() {
		return FromScene(sc), fmt.Errorf("%w: prompt and frame images must be set", ErrNotReady)
	}

	req, err := s.buildRequest(sc)
	if err != nil {
		return FromScene(sc), err
	}

	on := true
	empty := ""
	sc, err = s.board.ApplyIf(ctx, id,
		func(cur scene.Scene) bool { return !cur.IsGenerating },
		scene.Patch{IsGenerating: &on, FailureReason: &empty})
	if err != nil {
		if errors.Is(err, board.ErrStaleUpdate) {
			return FromScene(sc), fmt.Errorf("%w: generation in progress", ErrBusy)
		}
		return SceneView{}, err
	}

	handle, err := s.provider.Submit(ctx, req)
	if err != nil {
		off := false
		reason := submissionFailureReason(err)
		if _, revertErr := s.board.Apply(ctx, id, scene.Patch{IsGenerating: &off, FailureReason: &reason}); revertErr != nil {
			s.logger.Error("failed to revert scene after submit error",
				logging.String(logging.FieldSceneID, id),
				logging.Error(revertErr))
		}
		return SceneView{}, fmt.Errorf("submit generation: %w", err)
	}

	sc, err = s.board.ApplyIf(ctx, id,
		func(cur scene.Scene) bool { return cur.IsGenerating },
		scene.Patch{JobHandle: &handle})
	if err != nil {
		if errors.Is(err, board.ErrStaleUpdate) {
			// A reset raced the submit. The scene is no longer
			// generating, so the handle must not be attached.
			s.logger.Warn("scene reset during submission, dropping job handle",
				logging.String(logging.FieldSceneID, id),
				logging.String(logging.FieldJobHandle, handle))
			sc, _ = s.board.Get(id)
			return FromScene(sc), nil
		}
		return SceneView{}, err
	}

	s.logger.Info("generation submitted",
		logging.String(logging.FieldSceneID, id),
		logging.String(logging.FieldJobHandle, handle))
	return FromScene(sc), nil
}

// EnhancePrompt rewrites the scene's prompt through the text model. The
// enhancement flag is independent of generation, but only one enhancement
// runs per scene at a time.
func (s *StudioService) EnhancePrompt(ctx context.Context, id string) (SceneView, error) {
	sc, ok := s.board.Get(id)
	if !ok {
		return SceneView{}, fmt.Errorf("%w: %s", board.ErrSceneNotFound, id)
	}
	if strings.TrimSpace(sc.Prompt) == "" {
		return FromScene(sc), fmt.Errorf("%w: prompt is empty", ErrInvalidRequest)
	}

	on := true
	sc, err := s.board.ApplyIf(ctx, id,
		func(cur scene.Scene) bool { return !cur.IsEnhancing },
		scene.Patch{IsEnhancing: &on})
	if err != nil {
		if errors.Is(err, board.ErrStaleUpdate) {
			return FromScene(sc), fmt.Errorf("%w: enhancement in progress", ErrBusy)
		}
		return SceneView{}, err
	}

	enhanced, err := s.provider.Enhance(ctx, sc.Prompt, provider.EnhanceContext{
		AspectRatio:      sc.AspectRatio,
		FrameMode:        sc.FrameMode,
		HasStartingFrame: sc.FirstFrameImage != "" || sc.PrimaryImage != "",
		HasEndingFrame:   sc.LastFrameImage != "",
	})

	off := false
	patch := scene.Patch{IsEnhancing: &off}
	if err == nil {
		patch.Prompt = &enhanced
	}
	sc, applyErr := s.board.Apply(ctx, id, patch)
	if applyErr != nil {
		return SceneView{}, applyErr
	}
	if err != nil {
		return FromScene(sc), fmt.Errorf("enhance prompt: %w", err)
	}
	return FromScene(sc), nil
}

// AttachTrimmed layers a derived clip over the scene's original. The
// original display handle is retained so the trim can be undone.
func (s *StudioService) AttachTrimmed(ctx context.Context, id string, data []byte, mimeType string) (SceneView, error) {
	if len(data) == 0 {
		return SceneView{}, fmt.Errorf("%w: empty clip payload", ErrInvalidRequest)
	}
	registry := s.board.Assets()
	sc, err := s.board.Transform(ctx, id,
		func(cur scene.Scene) bool { return cur.ResultAsset != "" },
		func(cur scene.Scene) scene.Scene {
			return registry.AttachDerived(cur, data, mimeType)
		})
	if err != nil {
		if errors.Is(err, board.ErrStaleUpdate) {
			return SceneView{}, fmt.Errorf("%w: scene has no original clip to trim", ErrInvalidRequest)
		}
		return SceneView{}, err
	}
	return FromScene(sc), nil
}

// ResetTrim discards the derived clip and restores the original display.
func (s *StudioService) ResetTrim(ctx context.Context, id string) (SceneView, error) {
	registry := s.board.Assets()
	sc, err := s.board.Transform(ctx, id, nil, registry.ResetToOriginal)
	if err != nil {
		return SceneView{}, err
	}
	return FromScene(sc), nil
}

// Characters returns the library, optionally filtered by a search query.
func (s *StudioService) Characters(query string) []CharacterView {
	if query == "" {
		return FromCharacters(s.characters.List())
	}
	return FromCharacters(s.characters.Search(query))
}

// CreateCharacter adds a character to the library.
func (s *StudioService) CreateCharacter(req CharacterRequest) (CharacterView, error) {
	ch, err := s.characters.Create(req.Name, req.Description, req.Images)
	if err != nil {
		return CharacterView{}, err
	}
	return FromCharacter(ch), nil
}

// UpdateCharacter replaces a character's fields.
func (s *StudioService) UpdateCharacter(id string, req CharacterRequest) (CharacterView, error) {
	ch, err := s.characters.Update(id, req.Name, req.Description, req.Images)
	if err != nil {
		return CharacterView{}, err
	}
	return FromCharacter(ch), nil
}

// DeleteCharacter removes a character. Scenes keep their link ids; a
// dangling link only blocks future edits that resubmit it.
func (s *StudioService) DeleteCharacter(id string) error {
	return s.characters.Remove(id)
}

// Status summarizes the board for the status endpoint and CLI.
func (s *StudioService) Status() StatusSummary {
	scenes := s.board.Scenes()
	summary := StatusSummary{
		SceneCount:     len(scenes),
		CharacterCount: s.characters.Count(),
		LiveAssets:     s.board.Assets().Len(),
		ByStatus:       make(map[string]int),
	}
	for _, sc := range scenes {
		summary.ByStatus[string(sc.GenerationStatus())]++
	}
	return summary
}

func (s *StudioService) validateCharacterLinks(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	limit := characters.MaxPerScene
	if s.characters != nil {
		limit = s.characters.MaxLinksPerScene()
	}
	if len(ids) > limit {
		return fmt.Errorf("%w: at most %d characters per scene", ErrInvalidRequest, limit)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate character link %s", ErrInvalidRequest, id)
		}
		seen[id] = struct{}{}
	}
	if s.characters != nil && !s.characters.Exists(ids...) {
		return fmt.Errorf("%w: unknown character id", ErrInvalidRequest)
	}
	return nil
}

// buildRequest assembles the provider request, loading frame images from
// disk and folding linked character descriptions into the prompt.
func (s *StudioService) buildRequest(sc scene.Scene) (provider.Request, error) {
	req := provider.Request{
		Prompt:      s.composePrompt(sc),
		Model:       s.settings.Model,
		AspectRatio: sc.AspectRatio,
		FrameMode:   sc.FrameMode,
	}

	var err error
	switch sc.FrameMode {
	case scene.FrameModeSingle:
		if req.Image, err = loadImage(sc.PrimaryImage); err != nil {
			return provider.Request{}, err
		}
	case scene.FrameModeStartOnly:
		if req.FirstFrame, err = loadImage(sc.FirstFrameImage); err != nil {
			return provider.Request{}, err
		}
	case scene.FrameModeEndOnly:
		if req.LastFrame, err = loadImage(sc.LastFrameImage); err != nil {
			return provider.Request{}, err
		}
	case scene.FrameModeInterpolation:
		if req.FirstFrame, err = loadImage(sc.FirstFrameImage); err != nil {
			return provider.Request{}, err
		}
		if req.LastFrame, err = loadImage(sc.LastFrameImage); err != nil {
			return provider.Request{}, err
		}
	}
	return req, nil
}

func (s *StudioService) composePrompt(sc scene.Scene) string {
	if s.characters == nil || len(sc.CharacterIDs) == 0 {
		return sc.Prompt
	}
	var refs []string
	for _, id := range sc.CharacterIDs {
		ch, ok := s.characters.Get(id)
		if !ok {
			continue
		}
		if ch.Description != "" {
			refs = append(refs, fmt.Sprintf("%s: %s", ch.Name, ch.Description))
		} else {
			refs = append(refs, ch.Name)
		}
	}
	if len(refs) == 0 {
		return sc.Prompt
	}
	return sc.Prompt + "\n\nCharacters: " + strings.Join(refs, "; ")
}

func loadImage(path string) (*provider.ImageData, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame image: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &provider.ImageData{Bytes: data, MimeType: mimeType}, nil
}

func submissionFailureReason(err error) string {
	if errors.Is(err, provider.ErrRejected) {
		return err.Error()
	}
	return "submission failed: " + err.Error()
}
