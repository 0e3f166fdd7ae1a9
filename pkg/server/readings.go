package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/phantomwatt/phantomwatt/pkg/log"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// ingestReading is one pushed source sample. A null value or available=false
// marks the source unavailable.
type ingestReading struct {
	Value     *float64   `json:"value"`
	Unit      types.Unit `json:"unit,omitempty"`
	Available *bool      `json:"available,omitempty"`
}

func validUnit(u types.Unit) bool {
	switch u {
	case "", types.UnitWatt, types.UnitKilowatt, types.UnitWattHour, types.UnitKilowattHour:
		return true
	}
	return false
}

// handleIngestReadings accepts a batch of source readings keyed by source ID
// and feeds them into the hub, which notifies the subscribed outputs.
func (s *Server) handleIngestReadings(w http.ResponseWriter, r *http.Request) {
	var batch map[types.SourceID]ingestReading
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSONError(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(batch) == 0 {
		writeJSONError(w, "empty batch", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	accepted := 0
	for id, in := range batch {
		if id == "" {
			writeJSONError(w, "empty source id", http.StatusBadRequest)
			return
		}
		if !validUnit(in.Unit) {
			writeJSONError(w, "unknown unit for source "+string(id), http.StatusBadRequest)
			return
		}

		if in.Value == nil || (in.Available != nil && !*in.Available) {
			s.hub.SetUnavailable(id)
			accepted++
			continue
		}
		s.hub.Set(id, types.Reading{
			Value:     *in.Value,
			Unit:      in.Unit,
			Available: true,
		})
		accepted++
	}

	log.Ctx(ctx).DebugContext(ctx, "ingested readings", slog.Int("count", accepted))
	writeJSON(w, struct {
		Accepted int `json:"accepted"`
	}{Accepted: accepted})
}

// handleListSources returns the latest reading of every source that has ever
// reported, mostly for debugging an integration.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	ids := s.hub.Sources()
	out := make(map[types.SourceID]types.Reading, len(ids))
	for _, id := range ids {
		if reading, ok := s.hub.Get(id); ok {
			out[id] = reading
		}
	}
	writeJSON(w, out)
}
