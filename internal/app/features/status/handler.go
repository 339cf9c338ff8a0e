// internal/app/features/status/handler.go
package status

import (
	"net/http"

	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/store/queries/statusqueries"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the learner status page poll.
type Handler struct {
	Store *learnerstore.Store
	Log   *zap.Logger
}

// NewHandler creates a status handler.
func NewHandler(store *learnerstore.Store, logger *zap.Logger) *Handler {
	return &Handler{
		Store: store,
		Log:   logger,
	}
}

// ServeStatus handles GET and POST /api/status/{id}. The id segment may
// be a learner id or a registered email address.
//
//	{ "success":true, "matched":true, "user":{…}, "group_id":"…", "group":[…], "real_id":"…" }
//
// group lists every member, the caller included.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")
	if key == "" {
		httpjson.Fail(w, http.StatusBadRequest, "user id is required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "status")
	defer cancel()

	st, err := statusqueries.GetStatus(ctx, h.Store, key)
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	body := map[string]any{
		"matched": st.Matched,
		"user":    st.User,
		"real_id": st.RealID,
	}
	if st.Matched {
		body["group_id"] = st.GroupID
		body["group"] = st.Group
	}
	httpjson.OK(w, body)
}
