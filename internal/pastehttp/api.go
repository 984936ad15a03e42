package pastehttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ahuahuachi/PrivateBin/internal/log"
)

// API serves paste submission and retrieval. The admission gate is applied by
// the server assembly to the submission route only; reads are not limited.
type API struct {
	store *Store
	log   log.Logger

	// OnAccepted fires after a paste is durably stored, for metrics.
	OnAccepted func()
}

func NewAPI(store *Store, L log.Logger) *API {
	return &API{store: store, log: L}
}

// RegisterRoutes mounts the paste routes. gate wraps the submission route.
func (a *API) RegisterRoutes(r chi.Router, gate func(http.Handler) http.Handler) {
	if gate != nil {
		r.With(gate).Post("/", a.handleCreate)
	} else {
		r.Post("/", a.handleCreate)
	}
	r.Get("/{id}", a.handleGet)
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		// MaxBytesReader surfaces oversized bodies here
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "paste too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty paste")
		return
	}

	p, err := a.store.Put(body)
	if err != nil {
		a.log.Error(ctx, err, "paste store failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if a.OnAccepted != nil {
		a.OnAccepted()
	}
	log.FromContext(ctx).Info(ctx, "paste accepted", "paste_id", p.ID, "size", len(body))

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": p.ID})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := a.store.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		a.log.Error(r.Context(), err, "paste read failed", "paste_id", id)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(p.Body)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
