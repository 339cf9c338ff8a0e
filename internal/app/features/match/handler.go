// internal/app/features/match/handler.go
package match

import (
	"context"
	"net/http"

	"github.com/dalemusser/peerfinder/internal/app/matching"
	"github.com/dalemusser/peerfinder/internal/app/store/queries/statusqueries"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/inputval"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Matcher is the slice of the matching engine this feature needs.
type Matcher interface {
	RequestMatch(ctx context.Context, learnerID string) (matching.Result, error)
}

// Handler serves self-service match requests.
type Handler struct {
	Engine Matcher
	Log    *zap.Logger
}

// NewHandler creates a match handler.
func NewHandler(engine Matcher, logger *zap.Logger) *Handler {
	return &Handler{
		Engine: engine,
		Log:    logger,
	}
}

type matchRequest struct {
	UserID string `json:"user_id" validate:"notblank"`
}

// ServeMatch handles POST /api/match.
//
// Finding no compatible peer is a normal outcome:
//
//	{ "success":true, "matched":false }
//
// A formed or existing group is returned as
//
//	{ "success":true, "matched":true, "already_matched":false, "group_id":"…", "group":[…] }
func (h *Handler) ServeMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if err := inputval.Validate(req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "match")
	defer cancel()

	res, err := h.Engine.RequestMatch(ctx, req.UserID)
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if !res.Matched {
		httpjson.OK(w, map[string]any{"matched": false})
		return
	}
	httpjson.OK(w, map[string]any{
		"matched":         true,
		"already_matched": res.Existing,
		"group_id":        res.Group.ID,
		"group":           statusqueries.Peers(res.Group.Members),
	})
}
