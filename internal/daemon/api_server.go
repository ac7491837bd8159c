package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"reelboard/internal/api"
	"reelboard/internal/assets"
	"reelboard/internal/board"
	"reelboard/internal/characters"
	"reelboard/internal/config"
	"reelboard/internal/logging"
)

// maxClipUpload bounds trimmed-clip uploads.
const maxClipUpload = 256 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/scenes", srv.handleListScenes)
	mux.HandleFunc("POST /api/scenes", srv.handleCreateScene)
	mux.HandleFunc("POST /api/scenes/reorder", srv.handleReorder)
	mux.HandleFunc("GET /api/scenes/{id}", srv.handleGetScene)
	mux.HandleFunc("PATCH /api/scenes/{id}", srv.handleUpdateScene)
	mux.HandleFunc("DELETE /api/scenes/{id}", srv.handleDeleteScene)
	mux.HandleFunc("POST /api/scenes/{id}/generate", srv.handleGenerate)
	mux.HandleFunc("POST /api/scenes/{id}/enhance", srv.handleEnhance)
	mux.HandleFunc("POST /api/scenes/{id}/reset", srv.handleResetScene)
	mux.HandleFunc("POST /api/scenes/{id}/trim", srv.handleAttachTrim)
	mux.HandleFunc("DELETE /api/scenes/{id}/trim", srv.handleResetTrim)
	mux.HandleFunc("POST /api/board/reset", srv.handleResetBoard)
	mux.HandleFunc("GET /api/characters", srv.handleListCharacters)
	mux.HandleFunc("POST /api/characters", srv.handleCreateCharacter)
	mux.HandleFunc("PUT /api/characters/{id}", srv.handleUpdateCharacter)
	mux.HandleFunc("DELETE /api/characters/{id}", srv.handleDeleteCharacter)
	mux.HandleFunc("GET /api/assets/{id}", srv.handleAsset)

	srv.server = &http.Server{
		Handler:           authMiddleware(cfg.Paths.APIToken, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":       status.Running,
		"active_loops":  status.ActiveLoops,
		"database_path": status.DatabasePath,
		"summary":       status.Summary,
	})
}

func (s *apiServer) handleListScenes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"scenes": s.daemon.studio.Scenes()})
}

func (s *apiServer) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSceneRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.daemon.studio.CreateScene(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *apiServer) handleGetScene(w http.ResponseWriter, r *http.Request) {
	view, ok := s.daemon.studio.Scene(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "scene not found")
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleUpdateScene(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateSceneRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.daemon.studio.UpdateScene(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.studio.DeleteScene(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req api.ReorderRequest
	if !s.decode(w, r, &req) {
		return
	}
	scenes, err := s.daemon.studio.ReorderScenes(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes})
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.studio.GenerateScene(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, view)
}

func (s *apiServer) handleEnhance(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.studio.EnhancePrompt(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleResetScene(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.studio.ResetScene(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleAttachTrim(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxClipUpload))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read clip payload: "+err.Error())
		return
	}
	mime := r.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	view, err := s.daemon.studio.AttachTrimmed(r.Context(), r.PathValue("id"), data, mime)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleResetTrim(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.studio.ResetTrim(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleResetBoard(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.studio.ResetBoard(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	s.writeJSON(w, http.StatusOK, map[string]any{"characters": s.daemon.studio.Characters(query)})
}

func (s *apiServer) handleCreateCharacter(w http.ResponseWriter, r *http.Request) {
	var req api.CharacterRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.daemon.studio.CreateCharacter(req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *apiServer) handleUpdateCharacter(w http.ResponseWriter, r *http.Request) {
	var req api.CharacterRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.daemon.studio.UpdateCharacter(r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleDeleteCharacter(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.studio.DeleteCharacter(r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleAsset(w http.ResponseWriter, r *http.Request) {
	handle := assets.FromID(r.PathValue("id"))
	data, mime, ok := s.daemon.board.Assets().Get(handle)
	if !ok {
		s.writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps service-layer sentinels onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, board.ErrSceneNotFound), errors.Is(err, characters.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, api.ErrInvalidRequest), errors.Is(err, characters.ErrFull), errors.Is(err, characters.ErrTooManyImages):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, api.ErrBusy), errors.Is(err, api.ErrNotReady):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
