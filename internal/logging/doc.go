// Package logging assembles the structured slog loggers used across
// reelboard.
//
// It owns the console and JSON handlers, centralizes level and output
// handling, and defines the standardized attribute keys (component,
// scene_id, job_handle, event_type) so daemon, orchestrator, and CLI
// logs stay greppable. Context helpers attach scene and correlation
// identifiers to every log line emitted inside a poll cycle.
package logging
