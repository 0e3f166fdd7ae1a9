package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/phantomwatt/phantomwatt/pkg/engine"
	"github.com/phantomwatt/phantomwatt/pkg/log"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// handleListOutputs returns the last published state of every output.
func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Outputs())
}

// handleGetOutput returns the last published state of one output.
func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	id := types.OutputID(r.PathValue("id"))
	st, ok := s.engine.Output(id)
	if !ok {
		writeJSONError(w, "unknown output", http.StatusNotFound)
		return
	}
	writeJSON(w, st)
}

// handleResetOutput requests a ledger reset for one output. The reset runs on
// the output's own goroutine; the republished state follows shortly after.
func (s *Server) handleResetOutput(w http.ResponseWriter, r *http.Request) {
	id := types.OutputID(r.PathValue("id"))
	ctx := r.Context()

	if err := s.engine.Reset(id); err != nil {
		if errors.Is(err, engine.ErrUnknownOutput) {
			writeJSONError(w, "unknown output", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to reset output",
			slog.String("output", string(id)), slog.Any("error", err))
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "output reset requested", slog.String("output", string(id)))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(struct {
		Status string `json:"status"`
	}{Status: "reset"}); err != nil {
		panic(http.ErrAbortHandler)
	}
}
