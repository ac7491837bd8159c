package characters

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelboard/internal/logging"
)

// Default capacity limits for the character library.
const (
	MaxCharacters = 10
	MaxImages     = 5
	MaxPerScene   = 3
)

// Limits bounds the library capacity. Zero fields fall back to the
// package defaults.
type Limits struct {
	MaxCharacters int
	MaxImages     int
	MaxPerScene   int
}

// DefaultLimits returns the repository default capacity limits.
func DefaultLimits() Limits {
	return Limits{
		MaxCharacters: MaxCharacters,
		MaxImages:     MaxImages,
		MaxPerScene:   MaxPerScene,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxCharacters <= 0 {
		l.MaxCharacters = MaxCharacters
	}
	if l.MaxImages <= 0 {
		l.MaxImages = MaxImages
	}
	if l.MaxPerScene <= 0 {
		l.MaxPerScene = MaxPerScene
	}
	return l
}

var (
	// ErrFull is returned when the library already holds MaxCharacters.
	ErrFull = errors.New("character library is full")
	// ErrNotFound is returned when a character id does not exist.
	ErrNotFound = errors.New("character not found")
	// ErrTooManyImages is returned when a character would exceed MaxImages.
	ErrTooManyImages = errors.New("too many reference images")
)

// Image is a reference image attached to a character.
type Image struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// Character is a reusable subject that scenes can link for consistency.
type Character struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Images      []Image   `json:"images,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Registry provides thread-safe access to the character library. If path is
// empty the registry is purely in-memory.
type Registry struct {
	path   string
	limits Limits
	logger *slog.Logger
	mu     sync.RWMutex
	byID   map[string]Character
}

// NewRegistry creates a registry backed by the JSON file at path. The file
// is created lazily on first write. Zero limit fields use the package
// defaults.
func NewRegistry(path string, limits Limits, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "characters")

	r := &Registry{
		path:   path,
		limits: limits.withDefaults(),
		logger: logger,
		byID:   make(map[string]Character),
	}

	if path == "" {
		return r
	}

	if err := r.load(); err != nil {
		logger.Warn("failed to load character library",
			logging.String(logging.FieldEventType, "characters_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "library will start empty"))
	}

	return r
}

// Create adds a character and persists the library.
func (r *Registry) Create(name, description string, images []Image) (Character, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Character{}, errors.New("character name cannot be empty")
	}
	if len(images) > r.limits.MaxImages {
		return Character{}, fmt.Errorf("%w: %d exceeds limit of %d", ErrTooManyImages, len(images), r.limits.MaxImages)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.byID) >= r.limits.MaxCharacters {
		return Character{}, fmt.Errorf("%w: limit is %d", ErrFull, r.limits.MaxCharacters)
	}

	now := time.Now().UTC()
	ch := Character{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Images:      images,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.byID[ch.ID] = ch

	if err := r.save(); err != nil {
		delete(r.byID, ch.ID)
		return Character{}, fmt.Errorf("persist character library: %w", err)
	}

	r.logger.Debug("created character",
		logging.String("character_id", ch.ID),
		logging.String("name", ch.Name),
		logging.Int("image_count", len(ch.Images)))

	return ch, nil
}

// Update replaces a character's mutable fields and persists the library.
func (r *Registry) Update(id, name, description string, images []Image) (Character, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if name == "" {
		return Character{}, errors.New("character name cannot be empty")
	}
	if len(images) > r.limits.MaxImages {
		return Character{}, fmt.Errorf("%w: %d exceeds limit of %d", ErrTooManyImages, len(images), r.limits.MaxImages)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ch, exists := r.byID[id]
	if !exists {
		return Character{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	prev := ch
	ch.Name = name
	ch.Description = strings.TrimSpace(description)
	ch.Images = images
	ch.UpdatedAt = time.Now().UTC()
	r.byID[id] = ch

	if err := r.save(); err != nil {
		r.byID[id] = prev
		return Character{}, fmt.Errorf("persist character library: %w", err)
	}

	return ch, nil
}

// Remove deletes a character by id and persists the change.
func (r *Registry) Remove(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("character id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ch, exists := r.byID[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(r.byID, id)

	if err := r.save(); err != nil {
		r.byID[id] = ch
		return fmt.Errorf("persist character library: %w", err)
	}

	r.logger.Debug("removed character", logging.String("character_id", id))
	return nil
}

// Get returns the character with the given id.
func (r *Registry) Get(id string) (Character, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, found := r.byID[strings.TrimSpace(id)]
	return ch, found
}

// Exists reports whether every given id names a character in the library.
func (r *Registry) Exists(ids ...string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range ids {
		if _, found := r.byID[strings.TrimSpace(id)]; !found {
			return false
		}
	}
	return true
}

// List returns all characters sorted by creation time, oldest first.
func (r *Registry) List() []Character {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Character, 0, len(r.byID))
	for _, ch := range r.byID {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Search returns characters whose name or description contains the query,
// case-insensitively. An empty query returns the full list.
func (r *Registry) Search(query string) []Character {
	query = strings.ToLower(strings.TrimSpace(query))
	all := r.List()
	if query == "" {
		return all
	}

	out := make([]Character, 0, len(all))
	for _, ch := range all {
		if strings.Contains(strings.ToLower(ch.Name), query) ||
			strings.Contains(strings.ToLower(ch.Description), query) {
			out = append(out, ch)
		}
	}
	return out
}

// MaxLinksPerScene returns how many characters a single scene may link.
func (r *Registry) MaxLinksPerScene() int {
	return r.limits.MaxPerScene
}

// Count returns the number of characters in the library.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read library file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var list []Character
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse library file: %w", err)
	}

	r.byID = make(map[string]Character, len(list))
	for _, ch := range list {
		if strings.TrimSpace(ch.ID) != "" {
			r.byID[ch.ID] = ch
		}
	}

	r.logger.Debug("loaded character library",
		logging.Int("character_count", len(r.byID)),
		logging.String("path", r.path))

	return nil
}

// save writes the library to disk atomically. Callers hold the write lock.
func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}

	list := make([]Character, 0, len(r.byID))
	for _, ch := range r.byID {
		list = append(list, ch)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal library: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create library directory: %w", err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
