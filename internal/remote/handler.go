package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ramonehamilton/binder-companion/internal/api/response"
	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// NewHandler serves store over HTTP for HTTPStore clients:
//
//	GET    /binders/{id}  current snapshot
//	PATCH  /binders/{id}  {expectedVersion, diff}; 409 with the versions on conflict
//	DELETE /binders/{id}
func NewHandler(store Store) http.Handler {
	h := &handler{store: store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "binder-remote"})
	})
	r.Route("/binders/{binderID}", func(r chi.Router) {
		r.Get("/", h.fetch)
		r.Patch("/", h.patch)
		r.Delete("/", h.delete)
	})
	return r
}

type handler struct {
	store Store
}

func (h *handler) fetch(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Fetch(r.Context(), chi.URLParam(r, "binderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Success(w, snap)
}

func (h *handler) patch(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	snap, err := h.store.Patch(r.Context(), chi.URLParam(r, "binderID"), req.Diff, req.ExpectedVersion)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Success(w, snap)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "binderID")); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		response.JSON(w, http.StatusConflict, conflict)
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, err)
	case errors.Is(err, ErrInvalidPatch), errors.Is(err, binder.ErrDuplicateEntry):
		response.BadRequest(w, err)
	default:
		response.InternalError(w, err)
	}
}
