// internal/app/features/leavegroup/routes.go
package leavegroup

import "github.com/go-chi/chi/v5"

// LeaveRoutes returns the router mounted at /api/leave-group.
func LeaveRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServeLeave)
	return r
}

// DeleteRoutes returns the router mounted at /api/delete-request.
func DeleteRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServeDelete)
	return r
}
