// internal/app/features/admin/routes.go
package admin

import "github.com/go-chi/chi/v5"

// Routes returns the router mounted at /api/admin.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/data", h.ServeData)
	r.Post("/random-pair", h.ServeRandomPair)
	r.Post("/manual-pair", h.ServeManualPair)
	r.Post("/download", h.ServeDownload)
	r.Post("/download-feedback", h.ServeDownloadFeedback)
	r.Post("/download-peer-feedback", h.ServeDownloadPeerFeedback)
	r.Post("/events", h.ServeEvents)

	return r
}

// UnpairRoutes returns the router mounted at /api/unpair.
func UnpairRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}", h.ServeUnpair)
	return r
}
