// internal/app/features/feedback/routes.go
package feedback

import "github.com/go-chi/chi/v5"

// FeedbackRoutes returns the router mounted at /api/feedback.
func FeedbackRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServeFeedback)
	return r
}

// PeerFeedbackRoutes returns the router mounted at /api/peer-feedback.
func PeerFeedbackRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServePeerFeedback)
	return r
}
