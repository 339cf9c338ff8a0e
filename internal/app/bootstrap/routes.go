// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	adminfeature "github.com/dalemusser/peerfinder/internal/app/features/admin"
	feedbackfeature "github.com/dalemusser/peerfinder/internal/app/features/feedback"
	healthfeature "github.com/dalemusser/peerfinder/internal/app/features/health"
	leavegroupfeature "github.com/dalemusser/peerfinder/internal/app/features/leavegroup"
	matchfeature "github.com/dalemusser/peerfinder/internal/app/features/match"
	registerfeature "github.com/dalemusser/peerfinder/internal/app/features/register"
	statusfeature "github.com/dalemusser/peerfinder/internal/app/features/status"
	"github.com/dalemusser/peerfinder/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. The services it wires into the feature
// handlers were built by Startup and live in deps.Runtime.
//
// PeerFinder is a JSON API: every feature router is mounted under /api,
// with health checks at / and /health and Prometheus metrics at /metrics.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.Runtime
	if rt == nil || rt.Engine == nil {
		return nil, errors.New("build handler: Startup has not run")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.Learners, appCfg.Version, logger)
	r.Get("/", healthHandler.Serve)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", metrics.Handler())

	// Learner flows
	registerHandler := registerfeature.NewHandler(rt.Store, appCfg.AllowedPrograms, rt.Audit, rt.Notifier, logger)
	r.Mount("/api/register", registerfeature.Routes(registerHandler, rt.RegisterLimiter))

	statusHandler := statusfeature.NewHandler(rt.Store, logger)
	r.Mount("/api/status", statusfeature.Routes(statusHandler))

	matchHandler := matchfeature.NewHandler(rt.Engine, logger)
	r.Mount("/api/match", matchfeature.Routes(matchHandler))

	leaveHandler := leavegroupfeature.NewHandler(rt.Engine, logger)
	r.Mount("/api/leave-group", leavegroupfeature.LeaveRoutes(leaveHandler))
	r.Mount("/api/delete-request", leavegroupfeature.DeleteRoutes(leaveHandler))

	// Surveys
	feedbackHandler := feedbackfeature.NewHandler(deps.Feedback, logger)
	r.Mount("/api/feedback", feedbackfeature.FeedbackRoutes(feedbackHandler))
	r.Mount("/api/peer-feedback", feedbackfeature.PeerFeedbackRoutes(feedbackHandler))

	// Admin
	adminHandler := adminfeature.NewHandler(
		rt.Engine,
		rt.Store,
		deps.Feedback,
		deps.Events,
		rt.Admin,
		rt.AdminLimiter,
		appCfg.UnpairRequiresPassword,
		rt.Audit,
		logger,
	)
	r.Mount("/api/admin", adminfeature.Routes(adminHandler))
	r.Mount("/api/unpair", adminfeature.UnpairRoutes(adminHandler))

	return r, nil
}
