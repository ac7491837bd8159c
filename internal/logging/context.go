package logging

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	sceneIDKey contextKey = iota
	boardKey
	correlationIDKey
)

// WithSceneID attaches a scene identifier to the context.
func WithSceneID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sceneIDKey, id)
}

// SceneIDFromContext extracts the scene identifier, when present.
func SceneIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sceneIDKey).(string)
	return id, ok && id != ""
}

// WithBoard attaches the owning board name to the context.
func WithBoard(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, boardKey, name)
}

// BoardFromContext extracts the board name, when present.
func BoardFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(boardKey).(string)
	return name, ok && name != ""
}

// WithCorrelationID attaches a correlation identifier to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation identifier, when present.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := SceneIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSceneID, id))
	}
	if name, ok := BoardFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBoard, name))
	}
	if id, ok := CorrelationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
