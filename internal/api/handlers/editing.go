package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ramonehamilton/binder-companion/internal/api/response"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

// EditHandler handles mutations of an open binder. Every successful
// mutation returns the updated BinderView.
type EditHandler struct {
	manager *editor.Manager
}

// NewEditHandler creates a new EditHandler.
func NewEditHandler(manager *editor.Manager) *EditHandler {
	return &EditHandler{manager: manager}
}

// GetCard returns the card at a position.
func (h *EditHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	position, err := intParam(r, "position")
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	ref, found := s.CardAt(position)
	if !found {
		response.NotFound(w, fmt.Errorf("no card at position %d", position))
		return
	}
	response.Success(w, ref)
}

// PlaceCardRequest puts a card into a slot.
type PlaceCardRequest struct {
	CardID      string `json:"cardId"`
	ReverseHolo bool   `json:"reverseHolo"`
	AllowGrowth bool   `json:"allowGrowth"`
}

// PlaceCard places a card at the position in the URL.
func (h *EditHandler) PlaceCard(w http.ResponseWriter, r *http.Request) {
	position, err := intParam(r, "position")
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	var req PlaceCardRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}

	placement, err := s.Place(r.Context(), position, binder.NewCardRef(req.CardID, req.ReverseHolo), req.AllowGrowth)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]interface{}{"placement": placement, "binder": viewOf(s)})
}

// DeleteCard empties the slot at the position in the URL.
func (h *EditHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	position, err := intParam(r, "position")
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	removed, err := s.DeleteCard(r.Context(), position)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]interface{}{"removed": removed, "binder": viewOf(s)})
}

// MoveRequest moves a card or a page.
type MoveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// MoveCard moves a card with insert-shift semantics.
func (h *EditHandler) MoveCard(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	move, err := s.MoveCard(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]interface{}{"move": move, "binder": viewOf(s)})
}

// MovePages reorders pages by logical index.
func (h *EditHandler) MovePages(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if err := s.MovePages(r.Context(), req.From, req.To); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, viewOf(s))
}

// DragRequest is a drag-and-drop gesture.
type DragRequest struct {
	Source binder.DragSource `json:"source"`
	Target binder.DragTarget `json:"target"`
}

// Drag applies a drag-and-drop gesture.
func (h *EditHandler) Drag(w http.ResponseWriter, r *http.Request) {
	var req DragRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	if req.Source.Kind == "" || req.Target.Kind == "" {
		response.BadRequest(w, errors.New("source and target kinds are required"))
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	result, err := s.ApplyDrag(r.Context(), req.Source, req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]interface{}{"result": result, "binder": viewOf(s)})
}

// AddPagesRequest appends empty pages.
type AddPagesRequest struct {
	Count int `json:"count"`
}

// AddPages appends empty pages.
func (h *EditHandler) AddPages(w http.ResponseWriter, r *http.Request) {
	req := AddPagesRequest{Count: 1}
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	if req.Count < 1 {
		response.BadRequest(w, errors.New("count must be at least 1"))
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if err := s.AddPages(r.Context(), req.Count); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, viewOf(s))
}

// TrimPages removes trailing empty pages.
func (h *EditHandler) TrimPages(w http.ResponseWriter, r *http.Request) {
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	removed, err := s.TrimPages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]interface{}{"removed": removed, "binder": viewOf(s)})
}

// GridRequest changes the grid size.
type GridRequest struct {
	GridSize binder.GridName `json:"gridSize"`
}

// SetGrid re-lays the binder out on another grid.
func (h *EditHandler) SetGrid(w http.ResponseWriter, r *http.Request) {
	var req GridRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	if _, err := binder.LookupGrid(req.GridSize); err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if err := s.Regrid(r.Context(), req.GridSize); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, viewOf(s))
}

// SortRequest sorts the binder once.
type SortRequest struct {
	Strategy  binder.SortStrategy  `json:"strategy"`
	Direction binder.SortDirection `json:"direction"`
}

// Sort reorders the cards by strategy.
func (h *EditHandler) Sort(w http.ResponseWriter, r *http.Request) {
	req := SortRequest{Direction: binder.Ascending}
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	if !req.Strategy.Valid() {
		response.BadRequest(w, fmt.Errorf("unknown sort strategy %q", req.Strategy))
		return
	}
	if !req.Direction.Valid() {
		response.BadRequest(w, fmt.Errorf("unknown sort direction %q", req.Direction))
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if err := s.Sort(r.Context(), req.Strategy, req.Direction); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, viewOf(s))
}

// AutoSortRequest toggles sorting after every placement.
type AutoSortRequest struct {
	Enabled bool `json:"enabled"`
}

// SetAutoSort toggles auto-sort.
func (h *EditHandler) SetAutoSort(w http.ResponseWriter, r *http.Request) {
	var req AutoSortRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if err := s.SetAutoSort(r.Context(), req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, viewOf(s))
}

// PageRequest selects the page the user is looking at.
type PageRequest struct {
	Page int `json:"page"`
}

// SetPage changes the current page.
func (h *EditHandler) SetPage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}
	if err := s.ViewPage(req.Page); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]int{"page": s.CurrentPage()})
}
