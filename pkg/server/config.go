package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/phantomwatt/phantomwatt/pkg/log"
	"github.com/phantomwatt/phantomwatt/pkg/storage"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

type configResponse struct {
	Config  types.Config `json:"config"`
	Version int          `json:"version"`
}

// handleGetConfig returns the stored deployment configuration.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, version, err := s.storage.GetConfig(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrConfigNotFound) {
			writeJSONError(w, "no config stored", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch config", slog.Any("error", err))
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, configResponse{Config: cfg, Version: version})
}

// handleSetConfig validates and stores a new deployment configuration. The
// running engine keeps its current configuration; the new one takes effect on
// the next restart.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cfg types.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSONError(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.storage.SetConfig(ctx, cfg, types.CurrentConfigVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store config", slog.Any("error", err))
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "stored new config, effective on restart",
		slog.Int("groups", len(cfg.Groups)))
	writeJSON(w, struct {
		Status string `json:"status"`
	}{Status: "stored"})
}
