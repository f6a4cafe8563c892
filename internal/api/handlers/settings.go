package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ramonehamilton/binder-companion/internal/api/response"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/sorting"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

var errNoSettings = errors.New("settings store is not configured")

// SettingsSource lists stored settings. The settings repository satisfies it.
type SettingsSource interface {
	GetAll(ctx context.Context) (map[string]interface{}, error)
}

// SettingsHandler handles installation-wide settings.
type SettingsHandler struct {
	manager *editor.Manager
	store   SettingsSource
}

// NewSettingsHandler creates a new SettingsHandler. store may be nil.
func NewSettingsHandler(manager *editor.Manager, store SettingsSource) *SettingsHandler {
	return &SettingsHandler{manager: manager, store: store}
}

// ListSettings returns every stored setting keyed by name.
func (h *SettingsHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		response.ServiceUnavailable(w, errNoSettings)
		return
	}
	settings, err := h.store.GetAll(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Success(w, settings)
}

// GetTypeOrder returns the type-order table used by the type strategy.
func (h *SettingsHandler) GetTypeOrder(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.manager.TypeOrder().Get())
}

// TypeOrderRequest replaces the type-order table.
type TypeOrderRequest struct {
	Order sorting.TypeOrder `json:"order"`
}

// UpdateTypeOrder replaces the table. Open binders pick it up on their next
// sort.
func (h *SettingsHandler) UpdateTypeOrder(w http.ResponseWriter, r *http.Request) {
	var req TypeOrderRequest
	if err := decode(r, &req); err != nil {
		response.BadRequest(w, err)
		return
	}
	if err := req.Order.Validate(); err != nil {
		response.BadRequest(w, err)
		return
	}
	if err := h.manager.TypeOrder().Set(r.Context(), req.Order); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, h.manager.TypeOrder().Get())
}

// ResetTypeOrder restores the default table.
func (h *SettingsHandler) ResetTypeOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.TypeOrder().Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, h.manager.TypeOrder().Get())
}

// GetLimits returns the configured page and card limits.
func (h *SettingsHandler) GetLimits(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, h.manager.Limits())
}

// GetGrids lists the supported grid sizes.
func (h *SettingsHandler) GetGrids(w http.ResponseWriter, _ *http.Request) {
	grids := make([]binder.GridConfig, 0)
	for _, name := range binder.GridNames() {
		grids = append(grids, binder.MustGrid(name))
	}
	response.Success(w, grids)
}
