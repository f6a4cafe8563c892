// Package handlers implements the local JSON API over the editing sessions,
// the card catalog and installation settings.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/binder-companion/internal/api/response"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/history"
	"github.com/ramonehamilton/binder-companion/internal/catalog"
	"github.com/ramonehamilton/binder-companion/internal/editor"
	"github.com/ramonehamilton/binder-companion/internal/reconcile"
	"github.com/ramonehamilton/binder-companion/internal/storage"
	"github.com/ramonehamilton/binder-companion/internal/transfer"
)

// writeError maps engine errors to status codes: missing things are 404,
// version and identity clashes 409, other rejected requests 400.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrBinderNotFound),
		errors.Is(err, reconcile.ErrDeleted),
		errors.Is(err, editor.ErrNotOpen),
		errors.Is(err, history.ErrEntryNotFound),
		errors.Is(err, catalog.ErrNotFound):
		response.NotFound(w, err)

	case errors.Is(err, binder.ErrConflictingVersion),
		errors.Is(err, binder.ErrDuplicateEntry):
		response.Conflict(w, err)

	case errors.Is(err, binder.ErrCatalogUnavailable):
		response.ServiceUnavailable(w, err)

	case errors.Is(err, binder.ErrOutOfRange),
		errors.Is(err, binder.ErrSamePosition),
		errors.Is(err, binder.ErrCoverPageImmutable),
		errors.Is(err, binder.ErrPageFull),
		errors.Is(err, binder.ErrClipboardFull),
		errors.Is(err, binder.ErrNothingToUndo),
		errors.Is(err, binder.ErrNothingToRedo),
		errors.Is(err, binder.ErrInvalidImportFormat),
		errors.Is(err, editor.ErrInvalidCard),
		errors.Is(err, editor.ErrNothingToAdopt),
		errors.Is(err, transfer.ErrPassphraseRequired),
		errors.Is(err, transfer.ErrUnsealFailed):
		response.BadRequest(w, err)

	default:
		response.InternalError(w, err)
	}
}

// decode reads a JSON request body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

// intQuery returns a query parameter or def when it is absent.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func boolQuery(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
