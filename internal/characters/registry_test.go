package characters

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestRegistryCreateAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.json")
	reg := NewRegistry(path, Limits{}, nil)

	ch, err := reg.Create("Ava", "lead explorer", []Image{{Data: []byte{1}, MimeType: "image/png"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if ch.ID == "" {
		t.Fatal("expected generated id")
	}

	found, ok := reg.Get(ch.ID)
	if !ok {
		t.Fatal("Get failed to find character")
	}
	if found.Name != "Ava" || len(found.Images) != 1 {
		t.Errorf("unexpected character %+v", found)
	}
}

func TestRegistryPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.json")

	reg := NewRegistry(path, Limits{}, nil)
	ch, err := reg.Create("Bram", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	reloaded := NewRegistry(path, Limits{}, nil)
	if reloaded.Count() != 1 {
		t.Fatalf("expected 1 character after reload, got %d", reloaded.Count())
	}
	if _, ok := reloaded.Get(ch.ID); !ok {
		t.Error("character missing after reload")
	}
}

func TestRegistryCapacityLimit(t *testing.T) {
	reg := NewRegistry("", Limits{}, nil)

	for i := 0; i < MaxCharacters; i++ {
		if _, err := reg.Create(fmt.Sprintf("char-%d", i), "", nil); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}
	if _, err := reg.Create("overflow", "", nil); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
}

func TestRegistryImageLimit(t *testing.T) {
	reg := NewRegistry("", Limits{}, nil)

	images := make([]Image, MaxImages+1)
	if _, err := reg.Create("too-many", "", images); !errors.Is(err, ErrTooManyImages) {
		t.Errorf("expected ErrTooManyImages, got %v", err)
	}
}

func TestRegistryConfiguredLimits(t *testing.T) {
	reg := NewRegistry("", Limits{MaxCharacters: 1, MaxImages: 2, MaxPerScene: 1}, nil)

	if _, err := reg.Create("solo", "", make([]Image, 2)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := reg.Create("overflow", "", nil); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull at configured capacity, got %v", err)
	}
	if got := reg.MaxLinksPerScene(); got != 1 {
		t.Errorf("MaxLinksPerScene = %d, want 1", got)
	}

	roomy := NewRegistry("", Limits{MaxCharacters: 1}, nil)
	if _, err := roomy.Create("imgs", "", make([]Image, MaxImages+1)); !errors.Is(err, ErrTooManyImages) {
		t.Errorf("expected default image limit to apply, got %v", err)
	}
}

func TestRegistryUpdate(t *testing.T) {
	reg := NewRegistry("", Limits{}, nil)

	ch, err := reg.Create("Cora", "pilot", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := reg.Update(ch.ID, "Cora Vale", "veteran pilot", nil)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Name != "Cora Vale" || updated.Description != "veteran pilot" {
		t.Errorf("unexpected update %+v", updated)
	}
	if !updated.UpdatedAt.After(ch.UpdatedAt) && !updated.UpdatedAt.Equal(ch.UpdatedAt) {
		t.Error("UpdatedAt went backwards")
	}

	if _, err := reg.Update("missing", "x", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry("", Limits{}, nil)

	ch, err := reg.Create("Dex", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := reg.Remove(ch.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := reg.Get(ch.ID); ok {
		t.Error("character still present after Remove")
	}
	if err := reg.Remove(ch.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestRegistryExists(t *testing.T) {
	reg := NewRegistry("", Limits{}, nil)

	a, _ := reg.Create("A", "", nil)
	b, _ := reg.Create("B", "", nil)

	if !reg.Exists(a.ID, b.ID) {
		t.Error("expected both ids to exist")
	}
	if reg.Exists(a.ID, "missing") {
		t.Error("expected missing id to fail Exists")
	}
}

func TestRegistrySearch(t *testing.T) {
	reg := NewRegistry("", Limits{}, nil)

	reg.Create("River", "stoic ranger", nil)
	reg.Create("Sol", "cheerful inventor", nil)

	if got := reg.Search("ranger"); len(got) != 1 || got[0].Name != "River" {
		t.Errorf("Search(ranger) = %+v", got)
	}
	if got := reg.Search("SOL"); len(got) != 1 {
		t.Errorf("Search(SOL) = %+v", got)
	}
	if got := reg.Search(""); len(got) != 2 {
		t.Errorf("empty query returned %d results", len(got))
	}
}
