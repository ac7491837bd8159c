package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelboard/internal/api"
	"reelboard/internal/board"
	"reelboard/internal/config"
	"reelboard/internal/logging"
	"reelboard/internal/polling"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	board        *board.Board
	store        *board.Store
	studio       *api.StudioService
	orchestrator *polling.Orchestrator
	api          *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	ActiveLoops  int
	DatabasePath string
	LockFilePath string
	Summary      api.StatusSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *board.Store, b *board.Board, studio *api.StudioService, orch *polling.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || b == nil || studio == nil || orch == nil || logger == nil {
		return nil, errors.New("daemon requires config, board, studio service, orchestrator, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "reelboardd.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		board:        b,
		store:        store,
		studio:       studio,
		orchestrator: orch,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, restores the board, and launches the
// orchestrator and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelboard daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.board.Load(d.ctx); err != nil {
		d.releaseLock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("restore board: %w", err)
	}

	if err := d.orchestrator.Start(d.ctx); err != nil {
		d.releaseLock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start polling: %w", err)
	}

	if err := d.api.start(d.ctx); err != nil {
		d.orchestrator.Stop()
		d.releaseLock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("reelboard daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("scene_count", d.board.Len()))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.orchestrator.Stop()
	d.releaseLock()
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reelboard daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the HTTP API's bound address, empty until Start.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		ActiveLoops:  d.orchestrator.ActiveLoops(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Summary:      d.studio.Status(),
	}
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
