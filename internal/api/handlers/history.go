package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/binder-companion/internal/api/response"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

// HistoryHandler handles undo/redo and synchronization requests.
type HistoryHandler struct {
	manager *editor.Manager
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(manager *editor.Manager) *HistoryHandler {
	return &HistoryHandler{manager: manager}
}

// HistoryEntry is a history entry without its snapshot.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	CardCount   int       `json:"cardCount"`
	Current     bool      `json:"current"`
}

// GetHistory returns the undo log, newest first, paginated with ?page and
// ?pageSize.
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	pageSize, err := intQuery(r, "pageSize", 20)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}

	entries, cursor := s.History()
	out := make([]HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		out = append(out, HistoryEntry{
			ID:          e.ID,
			Timestamp:   e.Timestamp,
			Description: e.Description,
			CardCount:   e.Snapshot.Cards.Len(),
			Current:     i == cursor,
		})
	}
	response.Paginated(w, out, page, pageSize)
}

// Undo steps back one entry.
func (h *HistoryHandler) Undo(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*editor.Session).Undo)
}

// Redo steps forward one entry.
func (h *HistoryHandler) Redo(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*editor.Session).Redo)
}

// RevertTo jumps to the entry in the URL.
func (h *HistoryHandler) RevertTo(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "entryID")
	entryID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.BadRequest(w, fmt.Errorf("entryID must be an integer, got %q", raw))
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if err := s.RevertTo(r.Context(), entryID); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, viewOf(s))
}

func (h *HistoryHandler) apply(w http.ResponseWriter, r *http.Request, step func(*editor.Session, context.Context) error) {
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if err := step(s, r.Context()); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, viewOf(s))
}

// SyncResult summarizes a push to the remote store.
type SyncResult struct {
	Pushed    bool  `json:"pushed"`
	Version   int64 `json:"version"`
	Retries   int   `json:"retries"`
	Conflicts []int `json:"conflicts,omitempty"`
	Dropped   int   `json:"dropped"`
}

// Sync pushes pending changes now.
func (h *HistoryHandler) Sync(w http.ResponseWriter, r *http.Request) {
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	res, err := s.Flush(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if res == nil {
		response.Success(w, SyncResult{Version: s.Binder().Version})
		return
	}
	response.Success(w, SyncResult{
		Pushed:    true,
		Version:   res.Version,
		Retries:   res.Retries,
		Conflicts: res.Conflicts,
		Dropped:   len(res.Dropped),
	})
}

// StaleInfo describes a newer remote copy waiting to be adopted.
type StaleInfo struct {
	LocalVersion  int64          `json:"localVersion"`
	RemoteVersion int64          `json:"remoteVersion"`
	Remote        *binder.Binder `json:"remote"`
}

// GetStale returns the newer remote copy, or 404 when there is none.
func (h *HistoryHandler) GetStale(w http.ResponseWriter, r *http.Request) {
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	remote := s.StaleRemote()
	if remote == nil {
		response.NotFound(w, editor.ErrNothingToAdopt)
		return
	}
	response.Success(w, StaleInfo{
		LocalVersion:  s.Binder().Version,
		RemoteVersion: remote.Version,
		Remote:        remote,
	})
}

// AdoptStale replaces the local state with the newer remote copy.
func (h *HistoryHandler) AdoptStale(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, (*editor.Session).AdoptRemote)
}

// DismissStale keeps the local state.
func (h *HistoryHandler) DismissStale(w http.ResponseWriter, r *http.Request) {
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	s.DismissStale()
	response.NoContent(w)
}
