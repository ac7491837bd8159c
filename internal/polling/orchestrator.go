package polling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reelboard/internal/assets"
	"reelboard/internal/board"
	"reelboard/internal/logging"
	"reelboard/internal/provider"
	"reelboard/internal/scene"
)

// Source is the scene collection the orchestrator watches and mutates.
// *board.Board satisfies it.
type Source interface {
	AwaitingPoll() []scene.Scene
	Get(id string) (scene.Scene, bool)
	ApplyIf(ctx context.Context, id string, guard func(scene.Scene) bool, patch scene.Patch) (scene.Scene, error)
	Transform(ctx context.Context, id string, guard func(scene.Scene) bool, fn func(scene.Scene) scene.Scene) (scene.Scene, error)
	OnChange(fn func())
	Assets() *assets.Registry
}

// resyncInterval is the safety-net cadence for reconciling loops when no
// change notification arrives.
const resyncInterval = 30 * time.Second

type sceneLoop struct {
	sceneID string
	handle  string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Orchestrator runs one polling loop per scene with a live provider job.
type Orchestrator struct {
	source   Source
	provider provider.Service
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	loops   map[string]*sceneLoop
	kick    chan struct{}

	wg sync.WaitGroup
}

// New constructs an orchestrator over source. interval is the fixed delay
// between status queries for each scene.
func New(source Source, svc provider.Service, interval time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Orchestrator{
		source:   source,
		provider: svc,
		logger:   logging.NewComponentLogger(logger, "polling"),
		interval: interval,
		loops:    make(map[string]*sceneLoop),
		kick:     make(chan struct{}, 1),
	}
}

// Start begins supervision. Scenes already awaiting a poll (for example
// after a board reload) are picked up immediately.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("polling already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.runCtx = runCtx
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	o.source.OnChange(o.requestSync)

	o.wg.Add(1)
	go o.supervise(runCtx)

	o.requestSync()
	return nil
}

// Stop cancels every loop and waits for them to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

// ActiveLoops returns the number of scene loops currently running.
func (o *Orchestrator) ActiveLoops() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.loops)
}

func (o *Orchestrator) requestSync() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) supervise(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.kick:
		case <-ticker.C:
		}
		o.sync(ctx)
	}
}

// sync reconciles running loops against the scenes that currently hold a
// live job. Scenes entering the set get a loop; scenes leaving it get
// their loop cancelled; a scene whose job handle changed gets a fresh
// loop for the new job.
func (o *Orchestrator) sync(ctx context.Context) {
	desired := make(map[string]string)
	for _, sc := range o.source.AwaitingPoll() {
		desired[sc.ID] = sc.JobHandle
	}

	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}

	var stale []*sceneLoop
	for id, loop := range o.loops {
		handle, wanted := desired[id]
		if wanted && handle == loop.handle {
			delete(desired, id)
			continue
		}
		stale = append(stale, loop)
		delete(o.loops, id)
	}

	var started []*sceneLoop
	for id, handle := range desired {
		loopCtx, cancel := context.WithCancel(ctx)
		loop := &sceneLoop{
			sceneID: id,
			handle:  handle,
			cancel:  cancel,
			done:    make(chan struct{}),
		}
		o.loops[id] = loop
		started = append(started, loop)
		o.wg.Add(1)
		go o.runScene(loopCtx, loop)
	}
	o.mu.Unlock()

	for _, loop := range stale {
		loop.cancel()
	}
	for _, loop := range started {
		o.logger.Debug("poll loop started",
			logging.String(logging.FieldSceneID, loop.sceneID),
			logging.String(logging.FieldJobHandle, loop.handle))
	}
}

// forget removes the loop from the registry if it is still the one
// registered for its scene.
func (o *Orchestrator) forget(loop *sceneLoop) {
	o.mu.Lock()
	if current, ok := o.loops[loop.sceneID]; ok && current == loop {
		delete(o.loops, loop.sceneID)
	}
	o.mu.Unlock()
}

// runScene polls one job until it reaches a terminal state or the loop is
// cancelled. Cycles are strictly sequential: the next status query starts
// only after the previous one (and any resulting download) finished.
func (o *Orchestrator) runScene(ctx context.Context, loop *sceneLoop) {
	defer o.wg.Done()
	defer loop.cancel()
	defer close(loop.done)
	defer o.forget(loop)

	logger := o.logger.With(
		logging.String(logging.FieldSceneID, loop.sceneID),
		logging.String(logging.FieldJobHandle, loop.handle))

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.interval):
		}

		if !o.relevant(loop) {
			return
		}

		status, err := o.provider.Status(ctx, loop.handle)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("status query failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "poll_status_failed"))
			o.fail(ctx, loop, "polling failed: "+err.Error())
			return
		}

		if !status.Done {
			continue
		}

		if !status.Success {
			reason := status.FailureReason
			if reason == "" {
				reason = "generation failed"
			}
			logger.Info("generation rejected",
				logging.String(logging.FieldEventType, "poll_job_failed"),
				logging.String("reason", reason))
			o.fail(ctx, loop, reason)
			return
		}

		o.complete(ctx, loop, logger, status.ResultLocator)
		return
	}
}

// relevant re-fetches the scene and reports whether this loop's job is
// still the one the scene is waiting on. Any mismatch means the scene was
// removed, reset, or resubmitted and the loop must stand down without
// touching it.
func (o *Orchestrator) relevant(loop *sceneLoop) bool {
	sc, ok := o.source.Get(loop.sceneID)
	return ok && sc.AwaitingPoll() && sc.JobHandle == loop.handle
}

func (o *Orchestrator) guard(loop *sceneLoop) func(scene.Scene) bool {
	return func(sc scene.Scene) bool {
		return sc.IsGenerating && sc.JobHandle == loop.handle
	}
}

// fail marks the scene's attempt as terminally failed. A stale or missing
// scene makes this a silent no-op.
func (o *Orchestrator) fail(ctx context.Context, loop *sceneLoop, reason string) {
	off := false
	empty := ""
	_, err := o.source.ApplyIf(ctx, loop.sceneID, o.guard(loop), scene.Patch{
		IsGenerating:  &off,
		Downloading:   &off,
		JobHandle:     &empty,
		FailureReason: &reason,
	})
	o.reportMutation(loop, err)
}

// complete downloads the finished clip and attaches it to the scene.
func (o *Orchestrator) complete(ctx context.Context, loop *sceneLoop, logger *slog.Logger, locator string) {
	on := true
	if _, err := o.source.ApplyIf(ctx, loop.sceneID, o.guard(loop), scene.Patch{Downloading: &on}); err != nil {
		o.reportMutation(loop, err)
		return
	}

	data, mime, err := o.provider.Download(ctx, locator)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("download failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "poll_download_failed"))
		o.fail(ctx, loop, "download failed: "+err.Error())
		return
	}

	registry := o.source.Assets()
	_, err = o.source.Transform(ctx, loop.sceneID, o.guard(loop), func(sc scene.Scene) scene.Scene {
		sc = registry.AttachOriginal(sc, data, mime)
		sc.IsGenerating = false
		sc.Downloading = false
		sc.JobHandle = ""
		sc.FailureReason = ""
		return sc
	})
	if err != nil {
		o.reportMutation(loop, err)
		return
	}

	logger.Info("generation complete",
		logging.String(logging.FieldEventType, "poll_job_complete"),
		logging.Int("clip_bytes", len(data)))
}

// reportMutation logs unexpected mutation failures. Stale and not-found
// outcomes are the no-op guarantee working as intended and stay silent at
// info level.
func (o *Orchestrator) reportMutation(loop *sceneLoop, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, board.ErrStaleUpdate) || errors.Is(err, board.ErrSceneNotFound) {
		o.logger.Debug("poll result discarded for stale scene",
			logging.String(logging.FieldSceneID, loop.sceneID),
			logging.String(logging.FieldJobHandle, loop.handle))
		return
	}
	o.logger.Error("failed to record poll outcome",
		logging.String(logging.FieldSceneID, loop.sceneID),
		logging.Error(err),
		logging.String(logging.FieldEventType, "poll_persist_failed"),
		logging.String(logging.FieldErrorHint, "check board database access"))
}
