package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"reelboard/internal/assets"
	"reelboard/internal/logging"
	"reelboard/internal/scene"
)

// ErrSceneNotFound is returned when an operation names an unknown scene.
var ErrSceneNotFound = errors.New("scene not found")

// Board is the ordered storyboard collection. All mutations go through the
// board so that asset release, persistence, and change notification stay
// consistent.
type Board struct {
	mu      sync.RWMutex
	scenes  []scene.Scene
	assets  *assets.Registry
	store   *Store
	logger  *slog.Logger
	changed []func()
}

// New creates a board. store may be nil for a purely in-memory board.
func New(registry *assets.Registry, store *Store, logger *slog.Logger) *Board {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Board{
		assets: registry,
		store:  store,
		logger: logging.NewComponentLogger(logger, "board"),
	}
}

// OnChange registers a callback invoked after every successful mutation.
// Callbacks run outside the board lock.
func (b *Board) OnChange(fn func()) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.changed = append(b.changed, fn)
	b.mu.Unlock()
}

func (b *Board) notify() {
	b.mu.RLock()
	callbacks := append(make([]func(), 0, len(b.changed)), b.changed...)
	b.mu.RUnlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Load restores the collection from the store. Scenes persisted mid-flight
// are reconciled: asset handles dangle after a restart and provider jobs
// are no longer being polled, so in-flight scenes become failed and
// completed scenes lose their playable assets.
func (b *Board) Load(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	scenes, err := b.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}

	reconciled := 0
	for i, sc := range scenes {
		wasInFlight := sc.IsGenerating || sc.Downloading
		hadAssets := len(sc.Handles()) > 0
		if !wasInFlight && !hadAssets {
			continue
		}
		sc.IsGenerating = false
		sc.Downloading = false
		sc.IsEnhancing = false
		sc.JobHandle = ""
		sc.ResultAsset = ""
		sc.Display = ""
		sc.OriginalDisplay = ""
		sc.DerivedAsset = ""
		if wasInFlight {
			sc.FailureReason = "generation interrupted by daemon restart"
		}
		scenes[i] = sc
		reconciled++
	}

	b.mu.Lock()
	b.scenes = scenes
	b.mu.Unlock()

	if reconciled > 0 {
		if err := b.store.SaveAll(ctx, scenes); err != nil {
			return fmt.Errorf("persist reconciled board: %w", err)
		}
	}

	b.logger.Info("board restored",
		logging.Int("scene_count", len(scenes)),
		logging.Int("reconciled_count", reconciled))
	return nil
}

// Scenes returns a copy of the collection in display order.
func (b *Board) Scenes() []scene.Scene {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]scene.Scene(nil), b.scenes...)
}

// Get returns the scene matching id.
func (b *Board) Get(id string) (scene.Scene, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return scene.Find(b.scenes, id)
}

// Len returns the number of scenes on the board.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.scenes)
}

// Add appends a new scene built from data and persists it.
func (b *Board) Add(ctx context.Context, data scene.CreationData) (scene.Scene, error) {
	sc := scene.New(data)

	b.mu.Lock()
	b.scenes = append(b.scenes, sc)
	position := len(b.scenes) - 1
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Save(ctx, sc, position); err != nil {
			b.mu.Lock()
			b.scenes = scene.Remove(b.scenes, sc.ID)
			b.mu.Unlock()
			return scene.Scene{}, err
		}
	}

	b.logger.Debug("scene added", logging.String(logging.FieldSceneID, sc.ID))
	b.notify()
	return sc, nil
}

// Apply merges a patch over the scene matching id and persists the result.
func (b *Board) Apply(ctx context.Context, id string, patch scene.Patch) (scene.Scene, error) {
	return b.ApplyIf(ctx, id, nil, patch)
}

// ApplyIf merges a patch only when guard accepts the scene's current state.
// The guard runs under the board lock, so the check and the mutation are
// atomic with respect to other board operations. A rejected guard returns
// the current scene and ErrStaleUpdate.
func (b *Board) ApplyIf(ctx context.Context, id string, guard func(scene.Scene) bool, patch scene.Patch) (scene.Scene, error) {
	b.mu.Lock()
	current, found := scene.Find(b.scenes, id)
	if !found {
		b.mu.Unlock()
		return scene.Scene{}, fmt.Errorf("%w: %s", ErrSceneNotFound, id)
	}
	if guard != nil && !guard(current) {
		b.mu.Unlock()
		return current, ErrStaleUpdate
	}
	b.scenes = scene.Update(b.scenes, id, patch)
	updated, _ := scene.Find(b.scenes, id)
	position := indexOf(b.scenes, id)
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Save(ctx, updated, position); err != nil {
			return scene.Scene{}, err
		}
	}

	b.notify()
	return updated, nil
}

// ErrStaleUpdate is returned by ApplyIf when the guard rejects the scene's
// current state, meaning the caller's view of the scene was stale.
var ErrStaleUpdate = errors.New("stale scene update")

// Transform rewrites the scene matching id with fn, under the same guard
// semantics as ApplyIf. Used for mutations that flow through the asset
// lifecycle helpers rather than a field patch.
func (b *Board) Transform(ctx context.Context, id string, guard func(scene.Scene) bool, fn func(scene.Scene) scene.Scene) (scene.Scene, error) {
	b.mu.Lock()
	current, found := scene.Find(b.scenes, id)
	if !found {
		b.mu.Unlock()
		return scene.Scene{}, fmt.Errorf("%w: %s", ErrSceneNotFound, id)
	}
	if guard != nil && !guard(current) {
		b.mu.Unlock()
		return current, ErrStaleUpdate
	}
	b.scenes = scene.Update(b.scenes, id, fullPatch(fn(current)))
	updated, _ := scene.Find(b.scenes, id)
	position := indexOf(b.scenes, id)
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Save(ctx, updated, position); err != nil {
			return scene.Scene{}, err
		}
	}

	b.notify()
	return updated, nil
}

// Remove deletes the scene matching id, releasing every asset handle it
// owns before the scene disappears from the collection.
func (b *Board) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	sc, found := scene.Find(b.scenes, id)
	if !found {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSceneNotFound, id)
	}
	if b.assets != nil {
		sc = b.assets.ReleaseAll(sc)
	}
	b.scenes = scene.Remove(b.scenes, id)
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Delete(ctx, id); err != nil {
			return err
		}
	}

	b.logger.Debug("scene removed", logging.String(logging.FieldSceneID, id))
	b.notify()
	return nil
}

// Reorder moves the scene at from to position to and persists the new
// ordering. Out-of-range indices are clamped.
func (b *Board) Reorder(ctx context.Context, from, to int) error {
	b.mu.Lock()
	b.scenes = scene.Reorder(b.scenes, from, to)
	snapshot := append([]scene.Scene(nil), b.scenes...)
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.SaveAll(ctx, snapshot); err != nil {
			return err
		}
	}

	b.notify()
	return nil
}

// Reset releases every scene's assets and empties the board.
func (b *Board) Reset(ctx context.Context) error {
	b.mu.Lock()
	if b.assets != nil {
		for _, sc := range b.scenes {
			b.assets.ReleaseAll(sc)
		}
	}
	count := len(b.scenes)
	b.scenes = nil
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Clear(ctx); err != nil {
			return err
		}
	}

	b.logger.Info("board reset", logging.Int("scene_count", count))
	b.notify()
	return nil
}

// ResetScene releases a single scene's assets and returns it to idle,
// keeping its prompt and image configuration.
func (b *Board) ResetScene(ctx context.Context, id string) (scene.Scene, error) {
	b.mu.Lock()
	sc, found := scene.Find(b.scenes, id)
	if !found {
		b.mu.Unlock()
		return scene.Scene{}, fmt.Errorf("%w: %s", ErrSceneNotFound, id)
	}
	if b.assets != nil {
		sc = b.assets.ReleaseAll(sc)
	}
	sc.IsGenerating = false
	sc.Downloading = false
	sc.IsEnhancing = false
	sc.JobHandle = ""
	sc.FailureReason = ""
	b.scenes = scene.Update(b.scenes, id, fullPatch(sc))
	updated, _ := scene.Find(b.scenes, id)
	position := indexOf(b.scenes, id)
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Save(ctx, updated, position); err != nil {
			return scene.Scene{}, err
		}
	}

	b.notify()
	return updated, nil
}

// AwaitingPoll returns the scenes that currently have a live provider job.
func (b *Board) AwaitingPoll() []scene.Scene {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []scene.Scene
	for _, sc := range b.scenes {
		if sc.AwaitingPoll() {
			out = append(out, sc)
		}
	}
	return out
}

// Assets exposes the board's asset registry.
func (b *Board) Assets() *assets.Registry {
	return b.assets
}

func indexOf(scenes []scene.Scene, id string) int {
	for i, sc := range scenes {
		if sc.ID == id {
			return i
		}
	}
	return -1
}

// fullPatch builds a patch that overwrites every mutable field with the
// values of sc. Used when a scene was transformed outside Patch.Apply.
func fullPatch(sc scene.Scene) scene.Patch {
	return scene.Patch{
		Prompt:          &sc.Prompt,
		FrameMode:       &sc.FrameMode,
		PrimaryImage:    &sc.PrimaryImage,
		FirstFrameImage: &sc.FirstFrameImage,
		LastFrameImage:  &sc.LastFrameImage,
		AspectRatio:     &sc.AspectRatio,
		CharacterIDs:    &sc.CharacterIDs,
		IsEnhancing:     &sc.IsEnhancing,
		IsGenerating:    &sc.IsGenerating,
		Downloading:     &sc.Downloading,
		JobHandle:       &sc.JobHandle,
		ResultAsset:     &sc.ResultAsset,
		Display:         &sc.Display,
		OriginalDisplay: &sc.OriginalDisplay,
		DerivedAsset:    &sc.DerivedAsset,
		FailureReason:   &sc.FailureReason,
	}
}
