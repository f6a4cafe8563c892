package handlers

import (
	"net/http"

	"github.com/ramonehamilton/binder-companion/internal/api/response"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/clipboard"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

// ClipboardHandler handles the per-binder staging area.
type ClipboardHandler struct {
	manager *editor.Manager
}

// NewClipboardHandler creates a new ClipboardHandler.
func NewClipboardHandler(manager *editor.Manager) *ClipboardHandler {
	return &ClipboardHandler{manager: manager}
}

// ClipboardView lists the staged cards and the remaining room.
type ClipboardView struct {
	Items    []clipboard.Item `json:"items"`
	Capacity int              `json:"capacity"`
}

func clipboardOf(s *editor.Session) ClipboardView {
	items := s.Clipboard()
	if items == nil {
		items = []clipboard.Item{}
	}
	return ClipboardView{Items: items, Capacity: clipboard.Capacity}
}

// GetClipboard returns the staged cards.
func (h *ClipboardHandler) GetClipboard(w http.ResponseWriter, r *http.Request) {
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	response.Success(w, clipboardOf(s))
}

// StageCardRequest stages a card that is not in the binder.
type StageCardRequest struct {
	CardID      string `json:"cardId"`
	ReverseHolo bool   `json:"reverseHolo"`
}

// AddCard stages a card.
func (h *ClipboardHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	var req StageCardRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if err := s.AddToClipboard(binder.NewCardRef(req.CardID, req.ReverseHolo)); err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, clipboardOf(s))
}

// LiftRequest moves a binder card onto the clipboard.
type LiftRequest struct {
	Position int `json:"position"`
}

// LiftCard moves the card at a position onto the clipboard.
func (h *ClipboardHandler) LiftCard(w http.ResponseWriter, r *http.Request) {
	var req LiftRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if _, err := s.LiftToClipboard(r.Context(), req.Position); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]interface{}{"clipboard": clipboardOf(s), "binder": viewOf(s)})
}

// RemoveCard drops the staged card at the index in the URL.
func (h *ClipboardHandler) RemoveCard(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r, "index")
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if _, err := s.RemoveFromClipboard(index); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, clipboardOf(s))
}

// Clear drops every staged card.
func (h *ClipboardHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	s.ClearClipboard()
	response.NoContent(w)
}

// PlaceOnCurrentPage places the staged card at the index in the URL into
// the first empty slot of the page being viewed.
func (h *ClipboardHandler) PlaceOnCurrentPage(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r, "index")
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	placement, err := s.AddToCurrentPage(r.Context(), index)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]interface{}{
		"placement": placement,
		"clipboard": clipboardOf(s),
		"binder":    viewOf(s),
	})
}
