// internal/app/features/admin/pairing.go
package admin

import (
	"net/http"

	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	"github.com/dalemusser/peerfinder/internal/app/store/queries/statusqueries"
	"github.com/dalemusser/peerfinder/internal/app/system/htmlsanitize"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/inputval"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type randomPairRequest struct {
	Password string `json:"password"`
	UserID   string `json:"user_id" validate:"notblank"`
}

type manualPairRequest struct {
	Password string   `json:"password"`
	UserIDs  []string `json:"user_ids" validate:"required,min=2,max=3,dive,notblank"`
}

type unpairRequest struct {
	Password string `json:"password"`
	Reason   string `json:"reason" validate:"max=500"`
}

// ServeRandomPair handles POST /api/admin/random-pair. The learner is
// grouped with randomly chosen waiting learners who pass the hard
// constraints. An exhausted pool is reported with success false and a
// message, not an error status.
func (h *Handler) ServeRandomPair(w http.ResponseWriter, r *http.Request) {
	var req randomPairRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if !h.authorize(w, r, req.Password, "random-pair") {
		return
	}
	if err := inputval.Validate(req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "admin-random-pair")
	defer cancel()

	res, err := h.Engine.AdminRandomPair(ctx, req.UserID)
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if !res.Matched {
		httpjson.OK(w, map[string]any{
			"success": false,
			"matched": false,
			"message": "Not enough compatible learners",
		})
		return
	}

	h.Audit.AdminAction(ctx, r, audit.EventAdminRandomPair, res.Group.ID, res.Group.MemberIDs(), nil)
	httpjson.OK(w, map[string]any{
		"matched":  true,
		"message":  "Matched!",
		"group_id": res.Group.ID,
		"group":    statusqueries.Peers(res.Group.Members),
	})
}

// ServeManualPair handles POST /api/admin/manual-pair. The named learners
// are grouped as-is; compatibility rules are not applied.
func (h *Handler) ServeManualPair(w http.ResponseWriter, r *http.Request) {
	var req manualPairRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if !h.authorize(w, r, req.Password, "manual-pair") {
		return
	}
	if err := inputval.Validate(req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "admin-manual-pair")
	defer cancel()

	g, err := h.Engine.AdminManualPair(ctx, req.UserIDs)
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	h.Audit.AdminAction(ctx, r, audit.EventAdminManualPair, g.ID, g.MemberIDs(), nil)
	httpjson.OK(w, map[string]any{
		"message":  "Paired!",
		"group_id": g.ID,
		"group":    statusqueries.Peers(g.Members),
	})
}

// ServeUnpair handles POST /api/unpair/{id}. The learner's whole group is
// dissolved and every member returns to the pool.
func (h *Handler) ServeUnpair(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req unpairRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if h.UnpairRequiresPassword && !h.authorize(w, r, req.Password, "unpair") {
		return
	}
	if err := inputval.Validate(req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if id == "" {
		httpjson.Fail(w, http.StatusBadRequest, "user id is required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "admin-unpair")
	defer cancel()

	reason := htmlsanitize.Text(req.Reason)
	g, err := h.Engine.UnpairLearner(ctx, id, reason)
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	h.Audit.AdminAction(ctx, r, audit.EventAdminUnpair, g.ID, g.MemberIDs(), map[string]string{"reason": reason})
	h.Log.Info("group unpaired", zap.String("learner_id", id), zap.String("group_id", g.ID))
	httpjson.OK(w, map[string]any{
		"group_id": g.ID,
		"released": len(g.Members),
	})
}
