package api

import (
	"time"

	"reelboard/internal/characters"
	"reelboard/internal/scene"
)

// SceneView is the transport representation of a scene.
type SceneView struct {
	ID              string    `json:"id"`
	Prompt          string    `json:"prompt"`
	FrameMode       string    `json:"frame_mode"`
	PrimaryImage    string    `json:"primary_image,omitempty"`
	FirstFrameImage string    `json:"first_frame_image,omitempty"`
	LastFrameImage  string    `json:"last_frame_image,omitempty"`
	AspectRatio     string    `json:"aspect_ratio"`
	CharacterIDs    []string  `json:"character_ids,omitempty"`
	Status          string    `json:"status"`
	IsEnhancing     bool      `json:"is_enhancing"`
	IsGenerating    bool      `json:"is_generating"`
	Display         string    `json:"display,omitempty"`
	HasDerived      bool      `json:"has_derived"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FromScene converts a scene into its transport view.
func FromScene(sc scene.Scene) SceneView {
	return SceneView{
		ID:              sc.ID,
		Prompt:          sc.Prompt,
		FrameMode:       string(sc.FrameMode),
		PrimaryImage:    sc.PrimaryImage,
		FirstFrameImage: sc.FirstFrameImage,
		LastFrameImage:  sc.LastFrameImage,
		AspectRatio:     sc.AspectRatio,
		CharacterIDs:    append([]string(nil), sc.CharacterIDs...),
		Status:          string(sc.GenerationStatus()),
		IsEnhancing:     sc.IsEnhancing,
		IsGenerating:    sc.IsGenerating,
		Display:         sc.Display,
		HasDerived:      sc.DerivedAsset != "",
		FailureReason:   sc.FailureReason,
		CreatedAt:       sc.CreatedAt,
		UpdatedAt:       sc.UpdatedAt,
	}
}

// FromScenes converts a collection preserving order.
func FromScenes(scenes []scene.Scene) []SceneView {
	views := make([]SceneView, len(scenes))
	for i, sc := range scenes {
		views[i] = FromScene(sc)
	}
	return views
}

// CreateSceneRequest seeds a new scene.
type CreateSceneRequest struct {
	Prompt          string   `json:"prompt"`
	FrameMode       string   `json:"frame_mode,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	PrimaryImage    string   `json:"primary_image,omitempty"`
	FirstFrameImage string   `json:"first_frame_image,omitempty"`
	LastFrameImage  string   `json:"last_frame_image,omitempty"`
	CharacterIDs    []string `json:"character_ids,omitempty"`
}

// UpdateSceneRequest carries a partial scene edit; nil fields are left
// untouched.
type UpdateSceneRequest struct {
	Prompt          *string   `json:"prompt,omitempty"`
	FrameMode       *string   `json:"frame_mode,omitempty"`
	AspectRatio     *string   `json:"aspect_ratio,omitempty"`
	PrimaryImage    *string   `json:"primary_image,omitempty"`
	FirstFrameImage *string   `json:"first_frame_image,omitempty"`
	LastFrameImage  *string   `json:"last_frame_image,omitempty"`
	CharacterIDs    *[]string `json:"character_ids,omitempty"`
}

// ReorderRequest moves a scene between board positions.
type ReorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// CharacterView is the transport representation of a character. Image
// payloads stay server-side; only the count crosses the wire.
type CharacterView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImageCount  int       `json:"image_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FromCharacter converts a character into its transport view.
func FromCharacter(ch characters.Character) CharacterView {
	return CharacterView{
		ID:          ch.ID,
		Name:        ch.Name,
		Description: ch.Description,
		ImageCount:  len(ch.Images),
		CreatedAt:   ch.CreatedAt,
		UpdatedAt:   ch.UpdatedAt,
	}
}

// FromCharacters converts a character list preserving order.
func FromCharacters(list []characters.Character) []CharacterView {
	views := make([]CharacterView, len(list))
	for i, ch := range list {
		views[i] = FromCharacter(ch)
	}
	return views
}

// CharacterRequest creates or replaces a character.
type CharacterRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Images      []characters.Image `json:"images,omitempty"`
}

// StatusSummary aggregates board state for the status endpoint and CLI.
type StatusSummary struct {
	SceneCount     int            `json:"scene_count"`
	CharacterCount int            `json:"character_count"`
	LiveAssets     int            `json:"live_assets"`
	ByStatus       map[string]int `json:"by_status"`
}
