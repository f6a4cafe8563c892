package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/ramonehamilton/binder-companion/internal/api/response"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/catalog"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

const maxSearchResults = 100

var errNoCatalog = errors.New("card catalog is not configured")

// CatalogHandler handles card lookup and search requests.
type CatalogHandler struct {
	catalog *catalog.Service
	manager *editor.Manager
}

// NewCatalogHandler creates a new CatalogHandler. A nil service answers
// every request with 503.
func NewCatalogHandler(service *catalog.Service, manager *editor.Manager) *CatalogHandler {
	return &CatalogHandler{catalog: service, manager: manager}
}

// Search finds cards by name: ?q=pikachu&limit=20.
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		response.ServiceUnavailable(w, errNoCatalog)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		response.BadRequest(w, errors.New("query parameter q is required"))
		return
	}
	limit, err := intQuery(r, "limit", 20)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	limit = min(max(limit, 1), maxSearchResults)

	results, err := h.catalog.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, results)
}

// GetCard returns catalog details for one card.
func (h *CatalogHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		response.ServiceUnavailable(w, errNoCatalog)
		return
	}
	details, err := h.catalog.Lookup(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, details)
}

// PrefetchBinder warms the cache with every card of a binder and returns
// the resolved details keyed by card id.
func (h *CatalogHandler) PrefetchBinder(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		response.ServiceUnavailable(w, errNoCatalog)
		return
	}
	s, ok := openSession(h.manager, w, r)
	if !ok {
		return
	}

	b := s.Binder()
	ids := lo.Uniq(lo.Map(b.Cards.Entries(), func(slot binder.Slot, _ int) string {
		return slot.Card.CardID
	}))
	details, err := h.catalog.Prefetch(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, details)
}

// GetCacheStats reports how many cards are cached.
func (h *CatalogHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		response.ServiceUnavailable(w, errNoCatalog)
		return
	}
	n, err := h.catalog.Cached(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, map[string]int{"cached": n})
}

// PurgeCache empties the catalog cache.
func (h *CatalogHandler) PurgeCache(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		response.ServiceUnavailable(w, errNoCatalog)
		return
	}
	if err := h.catalog.Purge(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	response.NoContent(w)
}
