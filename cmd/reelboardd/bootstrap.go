package main

import (
	"fmt"
	"log/slog"
	"time"

	"reelboard/internal/api"
	"reelboard/internal/assets"
	"reelboard/internal/board"
	"reelboard/internal/characters"
	"reelboard/internal/config"
	"reelboard/internal/daemon"
	"reelboard/internal/polling"
	"reelboard/internal/provider"
)

// buildDaemon assembles the full service graph from configuration.
func buildDaemon(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := board.OpenStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open board store: %w", err)
	}

	registry := assets.NewRegistry()
	b := board.New(registry, store, logger)
	chars := characters.NewRegistry(cfg.CharactersPath(), characters.Limits{
		MaxCharacters: cfg.Storyboard.MaxCharacters,
		MaxImages:     cfg.Storyboard.MaxCharacterImages,
		MaxPerScene:   cfg.Storyboard.MaxSceneCharacters,
	}, logger)

	client := provider.NewClient(cfg.Provider.APIKey,
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithModel(cfg.Provider.Model),
		provider.WithTimeouts(
			time.Duration(cfg.Provider.RequestTimeout)*time.Second,
			time.Duration(cfg.Provider.DownloadTimeout)*time.Second,
		))

	studio := api.NewStudioService(b, chars, client, api.Settings{
		Model:              cfg.Provider.Model,
		DefaultAspectRatio: cfg.Storyboard.DefaultAspectRatio,
	}, logger)
	orchestrator := polling.New(b, client, pollInterval(cfg), logger)

	d, err := daemon.New(cfg, store, b, studio, orchestrator, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return d, nil
}
