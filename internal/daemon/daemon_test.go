package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"reelboard/internal/api"
	"reelboard/internal/assets"
	"reelboard/internal/board"
	"reelboard/internal/characters"
	"reelboard/internal/config"
	"reelboard/internal/logging"
	"reelboard/internal/polling"
	"reelboard/internal/provider"
	"reelboard/internal/scene"
)

type stubProvider struct{}

func (stubProvider) Submit(ctx context.Context, req provider.Request) (string, error) {
	return "operations/daemon-test", nil
}

func (stubProvider) Status(ctx context.Context, handle string) (provider.JobStatus, error) {
	return provider.JobStatus{}, nil
}

func (stubProvider) Download(ctx context.Context, locator string) ([]byte, string, error) {
	return []byte("clip"), "video/mp4", nil
}

func (stubProvider) Enhance(ctx context.Context, prompt string, ec provider.EnhanceContext) (string, error) {
	return prompt + " (enhanced)", nil
}

func testConfig(t *testing.T, token string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = dir
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Paths.APIToken = token
	cfg.Provider.APIKey = "test-key"
	return &cfg
}

func newTestDaemon(t *testing.T, token string) *Daemon {
	t.Helper()
	cfg := testConfig(t, token)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store, err := board.OpenStore(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	registry := assets.NewRegistry()
	b := board.New(registry, store, nil)
	chars := characters.NewRegistry(cfg.CharactersPath(), characters.Limits{}, nil)
	svc := stubProvider{}
	studio := api.NewStudioService(b, chars, svc, api.Settings{
		Model:              cfg.Provider.Model,
		DefaultAspectRatio: cfg.Storyboard.DefaultAspectRatio,
	}, nil)
	orch := polling.New(b, svc, 10*time.Millisecond, nil)

	d, err := New(cfg, store, b, studio, orch, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func startDaemon(t *testing.T, d *Daemon) string {
	t.Helper()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return "http://" + d.Addr()
}

func TestDaemonSingleInstance(t *testing.T) {
	d := newTestDaemon(t, "")
	startDaemon(t, d)

	second, err := New(d.cfg, nil, d.board, d.studio, polling.New(d.board, stubProvider{}, time.Second, nil), logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second daemon acquired the lock")
	}
}

func TestSceneEndpoints(t *testing.T) {
	d := newTestDaemon(t, "")
	base := startDaemon(t, d)

	body := bytes.NewBufferString(`{"prompt":"city at night","aspect_ratio":"9:16"}`)
	resp, err := http.Post(base+"/api/scenes", "application/json", body)
	if err != nil {
		t.Fatalf("POST /api/scenes: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created api.SceneView
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	resp.Body.Close()
	if created.AspectRatio != "9:16" || created.Status != string(scene.StatusIdle) {
		t.Errorf("created = %+v", created)
	}

	resp, err = http.Get(base + "/api/scenes")
	if err != nil {
		t.Fatalf("GET /api/scenes: %v", err)
	}
	var listing struct {
		Scenes []api.SceneView `json:"scenes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(listing.Scenes) != 1 || listing.Scenes[0].ID != created.ID {
		t.Errorf("listing = %+v", listing)
	}

	patch := bytes.NewBufferString(`{"prompt":"city at dawn"}`)
	req, _ := http.NewRequest(http.MethodPatch, base+"/api/scenes/"+created.ID, patch)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH scene: %v", err)
	}
	var patched api.SceneView
	if err := json.NewDecoder(resp.Body).Decode(&patched); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	resp.Body.Close()
	if patched.Prompt != "city at dawn" {
		t.Errorf("patched prompt = %q", patched.Prompt)
	}

	req, _ = http.NewRequest(http.MethodDelete, base+"/api/scenes/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE scene: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
}

func TestGenerateEndpointConflictWhenNotReady(t *testing.T) {
	d := newTestDaemon(t, "")
	base := startDaemon(t, d)

	resp, err := http.Post(base+"/api/scenes", "application/json",
		bytes.NewBufferString(`{"prompt":"no image yet"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created api.SceneView
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	resp, err = http.Post(base+"/api/scenes/"+created.ID+"/generate", "application/json", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("generate status = %d, want 409", resp.StatusCode)
	}
}

func TestAssetEndpointServesBlob(t *testing.T) {
	d := newTestDaemon(t, "")
	base := startDaemon(t, d)
	ctx := context.Background()

	sc, err := d.board.Add(ctx, scene.CreationData{Prompt: "asset scene"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	registry := d.board.Assets()
	updated, err := d.board.Transform(ctx, sc.ID, nil, func(cur scene.Scene) scene.Scene {
		return registry.AttachOriginal(cur, []byte("served-bytes"), "video/mp4")
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	resp, err := http.Get(base + "/api/assets/" + assets.ID(updated.ResultAsset))
	if err != nil {
		t.Fatalf("GET asset: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("asset status = %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "served-bytes" || resp.Header.Get("Content-Type") != "video/mp4" {
		t.Errorf("asset response: %q %q", data, resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(base + "/api/assets/missing")
	if err != nil {
		t.Fatalf("GET missing asset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing asset status = %d", resp.StatusCode)
	}
}

func TestCharacterEndpoints(t *testing.T) {
	d := newTestDaemon(t, "")
	base := startDaemon(t, d)

	resp, err := http.Post(base+"/api/characters", "application/json",
		bytes.NewBufferString(`{"name":"Mara","description":"storm chaser"}`))
	if err != nil {
		t.Fatalf("create character: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created api.CharacterView
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	resp, err = http.Get(base + "/api/characters?q=storm")
	if err != nil {
		t.Fatalf("search characters: %v", err)
	}
	var listing struct {
		Characters []api.CharacterView `json:"characters"`
	}
	json.NewDecoder(resp.Body).Decode(&listing)
	resp.Body.Close()
	if len(listing.Characters) != 1 || listing.Characters[0].ID != created.ID {
		t.Errorf("search result = %+v", listing)
	}

	req, _ := http.NewRequest(http.MethodDelete, base+"/api/characters/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete character: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	d := newTestDaemon(t, "")
	base := startDaemon(t, d)

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	var status struct {
		Running bool              `json:"running"`
		Summary api.StatusSummary `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Error("daemon reports not running")
	}
}

func TestBearerTokenAuth(t *testing.T) {
	d := newTestDaemon(t, "secret-token")
	base := startDaemon(t, d)

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET without token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated status = %d", resp.StatusCode)
	}
}

func TestReorderEndpoint(t *testing.T) {
	d := newTestDaemon(t, "")
	base := startDaemon(t, d)

	var ids []string
	for i := 0; i < 3; i++ {
		resp, err := http.Post(base+"/api/scenes", "application/json",
			bytes.NewBufferString(fmt.Sprintf(`{"prompt":"scene %d"}`, i)))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		var created api.SceneView
		json.NewDecoder(resp.Body).Decode(&created)
		resp.Body.Close()
		ids = append(ids, created.ID)
	}

	resp, err := http.Post(base+"/api/scenes/reorder", "application/json",
		bytes.NewBufferString(`{"from":2,"to":0}`))
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	var listing struct {
		Scenes []api.SceneView `json:"scenes"`
	}
	json.NewDecoder(resp.Body).Decode(&listing)
	resp.Body.Close()

	want := []string{ids[2], ids[0], ids[1]}
	for i, id := range want {
		if listing.Scenes[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, listing.Scenes[i].ID, id)
		}
	}
}
