// internal/app/features/register/routes.go
package register

import (
	"net/http"

	"github.com/dalemusser/peerfinder/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes returns the router for registration. limiter, when non-nil,
// caps registrations per client IP.
func Routes(h *Handler, limiter *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()

	if limiter != nil {
		r.Use(ratelimit.Middleware(limiter, func(req *http.Request) {
			h.Log.Warn("registration rate limited", zap.String("ip", ratelimit.ClientIP(req)))
		}))
	}

	r.Post("/", h.ServeRegister)

	return r
}
