// internal/app/features/leavegroup/handler.go
package leavegroup

import (
	"context"
	"net/http"

	"github.com/dalemusser/peerfinder/internal/app/matching"
	"github.com/dalemusser/peerfinder/internal/app/system/htmlsanitize"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/inputval"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Lifecycle is the slice of the matching engine this feature needs.
type Lifecycle interface {
	LeaveGroup(ctx context.Context, learnerID, reason string, deleteProfile bool) (matching.LeaveResult, error)
	DeleteRequest(ctx context.Context, learnerID, reason string) (matching.LeaveResult, error)
}

// Handler serves learner-initiated exits from the service.
type Handler struct {
	Engine Lifecycle
	Log    *zap.Logger
}

// NewHandler creates a leave-group handler.
func NewHandler(engine Lifecycle, logger *zap.Logger) *Handler {
	return &Handler{
		Engine: engine,
		Log:    logger,
	}
}

type leaveRequest struct {
	UserID        string            `json:"user_id" validate:"notblank"`
	Reason        string            `json:"reason" validate:"max=500"`
	DeleteProfile httpjson.FlexBool `json:"delete_profile"`
}

type deleteRequest struct {
	UserID string `json:"user_id" validate:"notblank"`
	Reason string `json:"reason" validate:"max=500"`
}

func writeResult(w http.ResponseWriter, res matching.LeaveResult) {
	body := map[string]any{
		"dissolved": res.Dissolved,
		"deleted":   res.Deleted,
	}
	if res.GroupID != "" {
		body["group_id"] = res.GroupID
		body["remaining"] = len(res.Remaining)
	}
	httpjson.OK(w, body)
}

// ServeLeave handles POST /api/leave-group.
//
//	{ "success":true, "group_id":"…", "remaining":0, "dissolved":true, "deleted":false }
//
// Leaving a pair returns the other member to the pool too. A learner who
// is still waiting is left untouched unless delete_profile is set.
func (h *Handler) ServeLeave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if err := inputval.Validate(req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "leave-group")
	defer cancel()

	res, err := h.Engine.LeaveGroup(ctx, req.UserID, htmlsanitize.Text(req.Reason), bool(req.DeleteProfile))
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	writeResult(w, res)
}

// ServeDelete handles POST /api/delete-request. The learner's record is
// removed; a matched learner leaves their group first.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if err := inputval.Validate(req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "delete-request")
	defer cancel()

	res, err := h.Engine.DeleteRequest(ctx, req.UserID, htmlsanitize.Text(req.Reason))
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	writeResult(w, res)
}
