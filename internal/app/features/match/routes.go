// internal/app/features/match/routes.go
package match

import "github.com/go-chi/chi/v5"

// Routes returns the router for match requests.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServeMatch)
	return r
}
