package server

import (
	"net/http"
	"time"
)

type rateResponse struct {
	Enabled        bool    `json:"enabled"`
	Rate           float64 `json:"rate"`
	Period         string  `json:"period,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	CurrencySymbol string  `json:"currencySymbol,omitempty"`
}

// handleGetRate returns the tariff rate in effect right now.
func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	rates := s.engine.Rates()
	rate, period := rates.Resolve(r.Context(), time.Now())
	writeJSON(w, rateResponse{
		Enabled:        rates.Enabled(),
		Rate:           rate,
		Period:         period,
		Currency:       rates.Currency(),
		CurrencySymbol: rates.CurrencySymbol(),
	})
}
