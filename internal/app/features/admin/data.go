// internal/app/features/admin/data.go
package admin

import (
	"net/http"

	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/store/queries/statusqueries"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/normalize"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
)

type dataRequest struct {
	Password string             `json:"password"`
	Program  string             `json:"program"`
	Cohort   string             `json:"cohort"`
	Matched  *httpjson.FlexBool `json:"matched"`
	Search   string             `json:"search"`
}

func (req dataRequest) filter() learnerstore.Filter {
	f := learnerstore.Filter{
		Program: normalize.QueryParam(req.Program),
		Cohort:  normalize.QueryParam(req.Cohort),
		Search:  normalize.QueryParam(req.Search),
	}
	if req.Matched != nil {
		m := bool(*req.Matched)
		f.Matched = &m
	}
	return f
}

// ServeData handles POST /api/admin/data.
//
//	{ "success":true, "stats":{ "total":…, "matched":…, "pending":…, "match_rate":"50.0%", "offer":…, "need":… }, "learners":[…] }
//
// program, cohort, matched and search narrow the listing.
func (h *Handler) ServeData(w http.ResponseWriter, r *http.Request) {
	var req dataRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if !h.authorize(w, r, req.Password, "data") {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "admin-data")
	defer cancel()

	snap, err := statusqueries.AdminSnapshot(ctx, h.Store, req.filter())
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	httpjson.OK(w, map[string]any{
		"stats":    snap.Stats,
		"learners": snap.Learners,
	})
}
