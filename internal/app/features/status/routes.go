// internal/app/features/status/routes.go
package status

import "github.com/go-chi/chi/v5"

// Routes returns the router for status polling. The frontend polls with
// POST and a cache-busting query string; GET is kept for links.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.ServeStatus)
	r.Post("/{id}", h.ServeStatus)
	return r
}
