package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roman-kulish/radiosense/internal/storage"
	"github.com/roman-kulish/radiosense/internal/survey"
)

// API serves stored sessions read-only over HTTP
type API struct {
	store  storage.Store
	logger *slog.Logger
}

func NewAPI(store storage.Store, logger *slog.Logger) *API {
	return &API{
		store:  store,
		logger: logger,
	}
}

func (a *API) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/sessions", a.sessions)
	r.Get("/sessions/{id}", a.session)
	r.Get("/sessions/{id}/frames", a.frames)
	r.Get("/sessions/{id}/matrix", a.matrix)
}

func (a *API) sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.store.Sessions(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	if sessions == nil {
		sessions = []*survey.Session{}
	}

	a.respond(w, sessions)
}

func (a *API) session(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := a.store.Session(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}

	a.respond(w, session)
}

func (a *API) frames(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts, err := readerOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reader, err := a.store.ReadFrames(r.Context(), id, opts...)
	if err != nil {
		a.fail(w, err)
		return
	}
	defer reader.Close()

	frames := []*survey.Frame{}
	for reader.Next(r.Context()) {
		frames = append(frames, reader.Current())
	}
	if err = reader.Error(); err != nil {
		a.fail(w, err)
		return
	}

	a.respond(w, frames)
}

func (a *API) matrix(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	matrix, err := a.store.ChannelMatrix(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}

	a.respond(w, matrix)
}

func (a *API) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error(fmt.Sprintf("encoding response: %s", err.Error()))
	}
}

func (a *API) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNoData) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	a.logger.Error(err.Error())
	http.Error(w, fmt.Sprintf("Failed to read sessions: %v", err), http.StatusInternalServerError)
}

func sessionID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id '%s'", chi.URLParam(r, "id"))
	}
	return id, nil
}

// readerOptions turns the channel, from and to query parameters into reader filters.
// Times are RFC 3339.
func readerOptions(r *http.Request) ([]storage.ReaderOption, error) {
	var opts []storage.ReaderOption
	query := r.URL.Query()

	if v := query.Get("channel"); v != "" {
		ch, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s'", v)
		}
		opts = append(opts, storage.WithChannel(uint8(ch)))
	}

	var from, to time.Time
	var err error
	if v := query.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("invalid from time '%s'", v)
		}
		opts = append(opts, storage.WithStartTime(from))
	}
	if v := query.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("invalid to time '%s'", v)
		}
		opts = append(opts, storage.WithEndTime(to))
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, fmt.Errorf("from time %s is after to time %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	return opts, nil
}
