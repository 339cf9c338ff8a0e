// internal/app/features/admin/events.go
package admin

import (
	"net/http"

	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/normalize"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
)

// maxEvents caps one page of the audit trail.
const maxEvents = 500

type eventsRequest struct {
	Password  string           `json:"password"`
	Limit     httpjson.FlexInt `json:"limit"`
	LearnerID string           `json:"learner_id"`
	GroupID   string           `json:"group_id"`
	Category  string           `json:"category"`
	EventType string           `json:"event_type"`
}

// ServeEvents handles POST /api/admin/events: recent audit events, newest
// first.
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	var req eventsRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if !h.authorize(w, r, req.Password, "events") {
		return
	}

	limit := int64(req.Limit)
	switch {
	case limit <= 0:
		limit = audit.DefaultLimit
	case limit > maxEvents:
		limit = maxEvents
	}

	events := []audit.Event{}
	if h.Events != nil {
		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "admin-events")
		defer cancel()

		found, err := h.Events.Query(ctx, audit.QueryFilter{
			LearnerID: normalize.Token(req.LearnerID),
			GroupID:   normalize.Token(req.GroupID),
			Category:  normalize.Token(req.Category),
			EventType: normalize.Token(req.EventType),
			Limit:     limit,
		})
		if err != nil {
			httpjson.Error(w, h.Log, err)
			return
		}
		if found != nil {
			events = found
		}
	}
	httpjson.OK(w, map[string]any{"events": events})
}
