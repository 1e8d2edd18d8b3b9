package app

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roman-kulish/radiosense/internal/telemetry"
)

// Status serves the node telemetry over HTTP
type Status struct {
	provider telemetry.Provider
}

func NewStatus(provider telemetry.Provider) *Status {
	return &Status{provider: provider}
}

func (s *Status) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Recoverer)

	r.Get("/status", s.status)
}

func (s *Status) status(w http.ResponseWriter, _ *http.Request) {
	t := s.provider.Get()
	if t == nil {
		http.Error(w, "Node is not running", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(t)
}
