package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/binder-companion/internal/api/response"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

// BinderHandler handles binder lifecycle requests: listing, creating,
// opening, deleting and moving binders in and out as documents.
type BinderHandler struct {
	manager *editor.Manager
}

// NewBinderHandler creates a new BinderHandler.
func NewBinderHandler(manager *editor.Manager) *BinderHandler {
	return &BinderHandler{manager: manager}
}

// BinderView is a binder together with the session state a UI shows next
// to it.
type BinderView struct {
	Binder      *binder.Binder `json:"binder"`
	Usage       binder.Usage   `json:"usage"`
	CurrentPage int            `json:"currentPage"`
	CanUndo     bool           `json:"canUndo"`
	CanRedo     bool           `json:"canRedo"`
	Stale       bool           `json:"stale"`
}

func viewOf(s *editor.Session) BinderView {
	return BinderView{
		Binder:      s.Binder(),
		Usage:       s.Usage(),
		CurrentPage: s.CurrentPage(),
		CanUndo:     s.CanUndo(),
		CanRedo:     s.CanRedo(),
		Stale:       s.StaleRemote() != nil,
	}
}

// ListBinders returns summaries of every cached binder.
func (h *BinderHandler) ListBinders(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, list)
}

// CreateBinderRequest represents a request to create a binder.
type CreateBinderRequest struct {
	Name     string          `json:"name"`
	GridSize binder.GridName `json:"gridSize,omitempty"`
}

// CreateBinder creates and opens an empty binder.
func (h *BinderHandler) CreateBinder(w http.ResponseWriter, r *http.Request) {
	var req CreateBinderRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	if req.Name == "" {
		response.BadRequest(w, errors.New("binder name is required"))
		return
	}
	if req.GridSize != "" {
		if _, err := binder.LookupGrid(req.GridSize); err != nil {
			response.BadRequest(w, err)
			return
		}
	}

	s, err := h.manager.Create(r.Context(), req.Name, req.GridSize)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, viewOf(s))
}

// GetBinder opens the binder if needed and returns it.
func (h *BinderHandler) GetBinder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.Success(w, viewOf(s))
}

// UpdateBinderRequest renames or describes a binder.
type UpdateBinderRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateBinder changes the binder's metadata.
func (h *BinderHandler) UpdateBinder(w http.ResponseWriter, r *http.Request) {
	var req UpdateBinderRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	if req.Name == "" {
		response.BadRequest(w, errors.New("binder name is required"))
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Rename(r.Context(), req.Name, req.Description); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, viewOf(s))
}

// DeleteBinder deletes a binder locally and remotely.
func (h *BinderHandler) DeleteBinder(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.Context(), chi.URLParam(r, "binderID")); err != nil {
		writeError(w, err)
		return
	}
	response.NoContent(w)
}

// CloseBinder flushes pending changes and closes the session.
func (h *BinderHandler) CloseBinder(w http.ResponseWriter, r *http.Request) {
	h.manager.Close(r.Context(), chi.URLParam(r, "binderID"))
	response.NoContent(w)
}

// GetSpreads returns the page layout as two-page spreads.
func (h *BinderHandler) GetSpreads(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	lay, err := s.Spreads()
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, lay)
}

// GetUsage returns card and page counts against the configured limits.
func (h *BinderHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.Success(w, s.Usage())
}

// ExportRequest selects what goes into an exported document.
type ExportRequest struct {
	History    bool   `json:"history"`
	Clipboard  bool   `json:"clipboard"`
	Passphrase string `json:"passphrase,omitempty"`
}

// ExportResponse carries either the plain document or the sealed bytes
// (base64 in JSON).
type ExportResponse struct {
	Document json.RawMessage `json:"document,omitempty"`
	Sealed   []byte          `json:"sealed,omitempty"`
}

// ExportBinder writes the binder as a portable document.
func (h *BinderHandler) ExportBinder(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}

	data, err := h.manager.Export(r.Context(), chi.URLParam(r, "binderID"), editor.ExportOptions{
		History:    req.History,
		Clipboard:  req.Clipboard,
		Passphrase: req.Passphrase,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Passphrase != "" {
		response.Success(w, ExportResponse{Sealed: data})
		return
	}
	response.Success(w, ExportResponse{Document: data})
}

// ImportRequest carries a document to import. Exactly one of Document and
// Sealed is set.
type ImportRequest struct {
	Document   json.RawMessage `json:"document,omitempty"`
	Sealed     []byte          `json:"sealed,omitempty"`
	Passphrase string          `json:"passphrase,omitempty"`
}

// ImportBinder creates a new binder from a document.
func (h *BinderHandler) ImportBinder(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}

	data := []byte(req.Document)
	if len(req.Sealed) > 0 {
		data = req.Sealed
	}
	if len(data) == 0 {
		response.BadRequest(w, errors.New("document or sealed is required"))
		return
	}

	s, err := h.manager.Import(r.Context(), data, req.Passphrase)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, viewOf(s))
}

// session opens the binder named in the URL, writing the error response
// when that fails.
func (h *BinderHandler) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	return openSession(h.manager, w, r)
}

func openSession(manager *editor.Manager, w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	s, err := manager.Open(r.Context(), chi.URLParam(r, "binderID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}
