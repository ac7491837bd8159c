package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelboard/internal/api"
)

// daemonClient talks to the reelboardd HTTP API.
type daemonClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newDaemonClient(addr, token string) *daemonClient {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &daemonClient{
		baseURL:    strings.TrimRight(base, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type daemonStatus struct {
	Running      bool              `json:"running"`
	ActiveLoops  int               `json:"active_loops"`
	DatabasePath string            `json:"database_path"`
	Summary      api.StatusSummary `json:"summary"`
}

func (c *daemonClient) status(ctx context.Context) (daemonStatus, error) {
	var out daemonStatus
	err := c.get(ctx, "/api/status", &out)
	return out, err
}

func (c *daemonClient) scenes(ctx context.Context) ([]api.SceneView, error) {
	var out struct {
		Scenes []api.SceneView `json:"scenes"`
	}
	if err := c.get(ctx, "/api/scenes", &out); err != nil {
		return nil, err
	}
	return out.Scenes, nil
}

func (c *daemonClient) createScene(ctx context.Context, req api.CreateSceneRequest) (api.SceneView, error) {
	var out api.SceneView
	err := c.send(ctx, http.MethodPost, "/api/scenes", req, &out)
	return out, err
}

func (c *daemonClient) deleteScene(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/api/scenes/"+url.PathEscape(id), nil, nil)
}

func (c *daemonClient) generateScene(ctx context.Context, id string) (api.SceneView, error) {
	var out api.SceneView
	err := c.send(ctx, http.MethodPost, "/api/scenes/"+url.PathEscape(id)+"/generate", nil, &out)
	return out, err
}

func (c *daemonClient) enhanceScene(ctx context.Context, id string) (api.SceneView, error) {
	var out api.SceneView
	err := c.send(ctx, http.MethodPost, "/api/scenes/"+url.PathEscape(id)+"/enhance", nil, &out)
	return out, err
}

func (c *daemonClient) reorderScenes(ctx context.Context, from, to int) ([]api.SceneView, error) {
	var out struct {
		Scenes []api.SceneView `json:"scenes"`
	}
	err := c.send(ctx, http.MethodPost, "/api/scenes/reorder", api.ReorderRequest{From: from, To: to}, &out)
	return out.Scenes, err
}

func (c *daemonClient) resetScene(ctx context.Context, id string) (api.SceneView, error) {
	var out api.SceneView
	err := c.send(ctx, http.MethodPost, "/api/scenes/"+url.PathEscape(id)+"/reset", nil, &out)
	return out, err
}

func (c *daemonClient) resetBoard(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/board/reset", nil, nil)
}

func (c *daemonClient) characters(ctx context.Context, query string) ([]api.CharacterView, error) {
	path := "/api/characters"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out struct {
		Characters []api.CharacterView `json:"characters"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Characters, nil
}

func (c *daemonClient) createCharacter(ctx context.Context, req api.CharacterRequest) (api.CharacterView, error) {
	var out api.CharacterView
	err := c.send(ctx, http.MethodPost, "/api/characters", req, &out)
	return out, err
}

func (c *daemonClient) deleteCharacter(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/api/characters/"+url.PathEscape(id), nil, nil)
}

func (c *daemonClient) get(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out)
}

func (c *daemonClient) send(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: http %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
