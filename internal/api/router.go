package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/binder-companion/internal/api/handlers"
	"github.com/ramonehamilton/binder-companion/internal/api/response"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)

	// WebSocket endpoint; ?binder=<id> subscribes up front.
	s.router.Get("/ws", s.wsHub.ServeWs)

	s.router.Route("/api/v1", func(r chi.Router) {
		binders := handlers.NewBinderHandler(s.editor)
		edits := handlers.NewEditHandler(s.editor)
		hist := handlers.NewHistoryHandler(s.editor)
		clip := handlers.NewClipboardHandler(s.editor)
		cat := handlers.NewCatalogHandler(s.catalog, s.editor)

		r.Route("/binders", func(r chi.Router) {
			r.Get("/", binders.ListBinders)
			r.Post("/", binders.CreateBinder)
			r.Post("/import", binders.ImportBinder)

			r.Route("/{binderID}", func(r chi.Router) {
				r.Get("/", binders.GetBinder)
				r.Patch("/", binders.UpdateBinder)
				r.Delete("/", binders.DeleteBinder)
				r.Post("/close", binders.CloseBinder)
				r.Post("/export", binders.ExportBinder)
				r.Get("/spreads", binders.GetSpreads)
				r.Get("/usage", binders.GetUsage)

				r.Get("/cards/{position}", edits.GetCard)
				r.Put("/cards/{position}", edits.PlaceCard)
				r.Delete("/cards/{position}", edits.DeleteCard)
				r.Post("/moves", edits.MoveCard)
				r.Post("/drag", edits.Drag)
				r.Post("/pages", edits.AddPages)
				r.Post("/pages/moves", edits.MovePages)
				r.Post("/pages/trim", edits.TrimPages)
				r.Put("/page", edits.SetPage)
				r.Put("/grid", edits.SetGrid)
				r.Put("/sort", edits.Sort)
				r.Put("/autosort", edits.SetAutoSort)

				r.Get("/history", hist.GetHistory)
				r.Post("/history/undo", hist.Undo)
				r.Post("/history/redo", hist.Redo)
				r.Post("/history/{entryID}/revert", hist.RevertTo)
				r.Post("/sync", hist.Sync)
				r.Get("/stale", hist.GetStale)
				r.Post("/stale/adopt", hist.AdoptStale)
				r.Delete("/stale", hist.DismissStale)

				r.Route("/clipboard", func(r chi.Router) {
					r.Get("/", clip.GetClipboard)
					r.Post("/", clip.AddCard)
					r.Delete("/", clip.Clear)
					r.Post("/lift", clip.LiftCard)
					r.Delete("/{index}", clip.RemoveCard)
					r.Post("/{index}/place", clip.PlaceOnCurrentPage)
				})

				r.Post("/catalog/prefetch", cat.PrefetchBinder)
			})
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/search", cat.Search)
			r.Get("/cards/{cardID}", cat.GetCard)
			r.Get("/cache", cat.GetCacheStats)
			r.Delete("/cache", cat.PurgeCache)
		})

		settings := handlers.NewSettingsHandler(s.editor, s.settings)
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settings.ListSettings)
			r.Get("/type-order", settings.GetTypeOrder)
			r.Put("/type-order", settings.UpdateTypeOrder)
			r.Delete("/type-order", settings.ResetTypeOrder)
			r.Get("/limits", settings.GetLimits)
			r.Get("/grids", settings.GetGrids)
		})

		system := handlers.NewSystemHandler(s.editor, s.metrics, s.backups, s.wsHub.ClientCount)
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", system.GetStatus)
			r.Get("/version", system.GetVersion)
			r.Get("/metrics", system.GetMetrics)
			r.Delete("/metrics", system.ResetMetrics)
			r.Get("/backups", system.ListBackups)
			r.Post("/backups", system.CreateBackup)
		})
	})
}

// healthCheck returns the server health status.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "binder-companion",
	})
}
