// internal/app/features/admin/downloads.go
package admin

import (
	"bytes"
	"net/http"

	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/csvutil"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
	"github.com/dalemusser/peerfinder/internal/domain/models"
)

// writeCSV sends buf as a file download named filename.
func writeCSV(w http.ResponseWriter, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ServeDownload handles POST /api/admin/download: every learner as CSV in
// queue order.
func (h *Handler) ServeDownload(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if !h.authorize(w, r, req.Password, "download") {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "admin-download")
	defer cancel()

	learners, err := h.Store.List(ctx, learnerstore.Filter{})
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	var buf bytes.Buffer
	if err := csvutil.WriteLearners(&buf, learners); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	h.Audit.AdminAction(ctx, r, audit.EventAdminExport, "", nil, map[string]string{"file": csvutil.LearnersFile})
	writeCSV(w, csvutil.LearnersFile, &buf)
}

// ServeDownloadFeedback handles POST /api/admin/download-feedback.
func (h *Handler) ServeDownloadFeedback(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if !h.authorize(w, r, req.Password, "download-feedback") {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "admin-download-feedback")
	defer cancel()

	var items []models.Feedback
	if h.Feedback != nil {
		var err error
		if items, err = h.Feedback.ListFeedback(ctx); err != nil {
			httpjson.Error(w, h.Log, err)
			return
		}
	}
	var buf bytes.Buffer
	if err := csvutil.WriteFeedback(&buf, items); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	h.Audit.AdminAction(ctx, r, audit.EventAdminExport, "", nil, map[string]string{"file": csvutil.FeedbackFile})
	writeCSV(w, csvutil.FeedbackFile, &buf)
}

// ServeDownloadPeerFeedback handles POST /api/admin/download-peer-feedback.
func (h *Handler) ServeDownloadPeerFeedback(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if !h.authorize(w, r, req.Password, "download-peer-feedback") {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "admin-download-peer-feedback")
	defer cancel()

	var items []models.PeerFeedback
	if h.Feedback != nil {
		var err error
		if items, err = h.Feedback.ListPeerFeedback(ctx); err != nil {
			httpjson.Error(w, h.Log, err)
			return
		}
	}
	var buf bytes.Buffer
	if err := csvutil.WritePeerFeedback(&buf, items); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	h.Audit.AdminAction(ctx, r, audit.EventAdminExport, "", nil, map[string]string{"file": csvutil.PeerFeedbackFile})
	writeCSV(w, csvutil.PeerFeedbackFile, &buf)
}
