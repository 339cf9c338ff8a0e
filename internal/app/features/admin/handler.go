// internal/app/features/admin/handler.go
package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/peerfinder/internal/app/matching"
	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	feedbackstore "github.com/dalemusser/peerfinder/internal/app/store/feedback"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/adminauth"
	"github.com/dalemusser/peerfinder/internal/app/system/auditlog"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/metrics"
	"github.com/dalemusser/peerfinder/internal/app/system/ratelimit"
	"github.com/dalemusser/peerfinder/internal/domain/errs"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned for a missing or wrong admin password.
var ErrUnauthorized = errs.New(errs.Unauthorized, "Unauthorized")

// Engine is the slice of the matching engine the admin surface drives.
type Engine interface {
	AdminRandomPair(ctx context.Context, learnerID string) (matching.Result, error)
	AdminManualPair(ctx context.Context, ids []string) (models.Group, error)
	UnpairLearner(ctx context.Context, learnerID, reason string) (models.Group, error)
}

// Handler serves the password-gated admin API. The password travels in
// every request body; there is no session.
type Handler struct {
	Engine   Engine
	Store    *learnerstore.Store
	Feedback feedbackstore.Repository
	Events   audit.Repository
	Auth     adminauth.Authenticator
	// Failures counts rejected passwords per client IP. Nil disables the
	// lockout.
	Failures *ratelimit.Limiter
	// UnpairRequiresPassword gates /api/unpair/{id} behind the admin
	// password.
	UnpairRequiresPassword bool
	Audit                  *auditlog.Logger
	Log                    *zap.Logger
}

// NewHandler creates an admin handler. feedback, events, failures and
// audit may be nil.
func NewHandler(
	engine Engine,
	store *learnerstore.Store,
	feedback feedbackstore.Repository,
	events audit.Repository,
	auth adminauth.Authenticator,
	failures *ratelimit.Limiter,
	unpairRequiresPassword bool,
	audit *auditlog.Logger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Engine:                 engine,
		Store:                  store,
		Feedback:               feedback,
		Events:                 events,
		Auth:                   auth,
		Failures:               failures,
		UnpairRequiresPassword: unpairRequiresPassword,
		Audit:                  audit,
		Log:                    logger,
	}
}

// authorize checks password and writes the refusal when it fails. Clients
// over the failure limit are refused before the password is looked at.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, password, route string) bool {
	ip := ratelimit.ClientIP(r)
	if h.Failures != nil && h.Failures.Remaining(ip) == 0 {
		h.Audit.AdminRateLimited(r.Context(), r, route)
		secs := int(h.Failures.RetryAfter(ip).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		httpjson.Fail(w, http.StatusTooManyRequests, "Too many failed attempts. Please wait before trying again.")
		return false
	}

	if h.Auth == nil || !h.Auth.Authenticate(password) {
		if h.Failures != nil {
			h.Failures.Allow(ip)
		}
		metrics.AdminAuthFailures.Inc()
		h.Audit.AdminAuthFailed(r.Context(), r, route)
		h.Log.Warn("admin authentication failed", zap.String("route", route), zap.String("ip", ip))
		httpjson.Error(w, h.Log, ErrUnauthorized)
		return false
	}

	if h.Failures != nil {
		h.Failures.Reset(ip)
	}
	return true
}

// passwordRequest is the body of admin endpoints that take no arguments.
type passwordRequest struct {
	Password string `json:"password"`
}
