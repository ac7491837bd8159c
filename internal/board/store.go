package board

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"reelboard/internal/scene"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; stale databases are rejected rather than migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store persists the storyboard collection in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// OpenStore initializes or connects to the board database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'reelboard reset' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}

	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

const sceneColumns = `id, position, prompt, frame_mode, primary_image, first_frame_image,
    last_frame_image, aspect_ratio, character_ids, is_enhancing, is_generating,
    downloading, job_handle, result_asset, display, original_display,
    derived_asset, failure_reason, created_at, updated_at`

// Save inserts or replaces a scene row at the given position.
func (s *Store) Save(ctx context.Context, sc scene.Scene, position int) error {
	characterIDs, err := encodeCharacterIDs(sc.CharacterIDs)
	if err != nil {
		return err
	}

	if err := s.execWithRetry(
		ctx,
		`INSERT OR REPLACE INTO scenes (`+sceneColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID,
		position,
		sc.Prompt,
		string(sc.FrameMode),
		nullableString(sc.PrimaryImage),
		nullableString(sc.FirstFrameImage),
		nullableString(sc.LastFrameImage),
		sc.AspectRatio,
		characterIDs,
		boolToInt(sc.IsEnhancing),
		boolToInt(sc.IsGenerating),
		boolToInt(sc.Downloading),
		nullableString(sc.JobHandle),
		nullableString(sc.ResultAsset),
		nullableString(sc.Display),
		nullableString(sc.OriginalDisplay),
		nullableString(sc.DerivedAsset),
		nullableString(sc.FailureReason),
		sc.CreatedAt.UTC().Format(time.RFC3339Nano),
		sc.UpdatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("save scene: %w", err)
	}
	return nil
}

// SaveAll replaces every scene row in one transaction, rewriting positions
// to match slice order.
func (s *Store) SaveAll(ctx context.Context, scenes []scene.Scene) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin save tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM scenes`); err != nil {
			return fmt.Errorf("clear scenes: %w", err)
		}
		for i, sc := range scenes {
			characterIDs, err := encodeCharacterIDs(sc.CharacterIDs)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO scenes (`+sceneColumns+`)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sc.ID,
				i,
				sc.Prompt,
				string(sc.FrameMode),
				nullableString(sc.PrimaryImage),
				nullableString(sc.FirstFrameImage),
				nullableString(sc.LastFrameImage),
				sc.AspectRatio,
				characterIDs,
				boolToInt(sc.IsEnhancing),
				boolToInt(sc.IsGenerating),
				boolToInt(sc.Downloading),
				nullableString(sc.JobHandle),
				nullableString(sc.ResultAsset),
				nullableString(sc.Display),
				nullableString(sc.OriginalDisplay),
				nullableString(sc.DerivedAsset),
				nullableString(sc.FailureReason),
				sc.CreatedAt.UTC().Format(time.RFC3339Nano),
				sc.UpdatedAt.UTC().Format(time.RFC3339Nano),
			); err != nil {
				return fmt.Errorf("insert scene %s: %w", sc.ID, err)
			}
		}
		return tx.Commit()
	})
}

// Delete removes a scene row by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.execWithRetry(ctx, `DELETE FROM scenes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete scene: %w", err)
	}
	return nil
}

// Clear removes every scene row.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.execWithRetry(ctx, `DELETE FROM scenes`); err != nil {
		return fmt.Errorf("clear scenes: %w", err)
	}
	return nil
}

// LoadAll returns every stored scene in position order.
func (s *Store) LoadAll(ctx context.Context) ([]scene.Scene, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+sceneColumns+` FROM scenes ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []scene.Scene
	for rows.Next() {
		sc, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, sc)
	}
	return scenes, rows.Err()
}

func scanScene(rows *sql.Rows) (scene.Scene, error) {
	var (
		sc                   scene.Scene
		position             int
		frameMode            string
		primaryImage         sql.NullString
		firstFrameImage      sql.NullString
		lastFrameImage       sql.NullString
		characterIDs         sql.NullString
		isEnhancing          int
		isGenerating         int
		downloading          int
		jobHandle            sql.NullString
		resultAsset          sql.NullString
		display              sql.NullString
		originalDisplay      sql.NullString
		derivedAsset         sql.NullString
		failureReason        sql.NullString
		createdAt, updatedAt string
	)

	if err := rows.Scan(
		&sc.ID,
		&position,
		&sc.Prompt,
		&frameMode,
		&primaryImage,
		&firstFrameImage,
		&lastFrameImage,
		&sc.AspectRatio,
		&characterIDs,
		&isEnhancing,
		&isGenerating,
		&downloading,
		&jobHandle,
		&resultAsset,
		&display,
		&originalDisplay,
		&derivedAsset,
		&failureReason,
		&createdAt,
		&updatedAt,
	); err != nil {
		return scene.Scene{}, fmt.Errorf("scan scene: %w", err)
	}

	sc.FrameMode = scene.FrameMode(frameMode)
	sc.PrimaryImage = primaryImage.String
	sc.FirstFrameImage = firstFrameImage.String
	sc.LastFrameImage = lastFrameImage.String
	sc.IsEnhancing = isEnhancing != 0
	sc.IsGenerating = isGenerating != 0
	sc.Downloading = downloading != 0
	sc.JobHandle = jobHandle.String
	sc.ResultAsset = resultAsset.String
	sc.Display = display.String
	sc.OriginalDisplay = originalDisplay.String
	sc.DerivedAsset = derivedAsset.String
	sc.FailureReason = failureReason.String

	if characterIDs.Valid && characterIDs.String != "" {
		if err := json.Unmarshal([]byte(characterIDs.String), &sc.CharacterIDs); err != nil {
			return scene.Scene{}, fmt.Errorf("decode character ids: %w", err)
		}
	}

	var err error
	if sc.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return scene.Scene{}, fmt.Errorf("parse created_at: %w", err)
	}
	if sc.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return scene.Scene{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return sc, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func encodeCharacterIDs(ids []string) (any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode character ids: %w", err)
	}
	return string(encoded), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
