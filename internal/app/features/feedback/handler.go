// internal/app/features/feedback/handler.go
package feedback

import (
	"encoding/json"
	"net/http"
	"strconv"

	feedbackstore "github.com/dalemusser/peerfinder/internal/app/store/feedback"
	"github.com/dalemusser/peerfinder/internal/app/system/htmlsanitize"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/inputval"
	"github.com/dalemusser/peerfinder/internal/app/system/limits"
	"github.com/dalemusser/peerfinder/internal/app/system/normalize"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
	"github.com/dalemusser/peerfinder/internal/domain/errs"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	"go.uber.org/zap"
)

// errTooManyAnswers rejects oversized survey submissions.
var errTooManyAnswers = errs.New(errs.Invalid, "too many survey answers")

// Handler serves service ratings and post-session surveys.
type Handler struct {
	Store feedbackstore.Repository
	Log   *zap.Logger
}

// NewHandler creates a feedback handler.
func NewHandler(store feedbackstore.Repository, logger *zap.Logger) *Handler {
	return &Handler{
		Store: store,
		Log:   logger,
	}
}

type feedbackRequest struct {
	Rating  httpjson.FlexInt `json:"rating" validate:"min=1,max=5"`
	Comment string           `json:"comment" validate:"max=2000"`
}

// ServeFeedback handles POST /api/feedback.
func (h *Handler) ServeFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if err := inputval.Validate(req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "feedback")
	defer cancel()

	f, err := h.Store.AddFeedback(ctx, models.Feedback{
		Rating:  int(req.Rating),
		Comment: htmlsanitize.Text(req.Comment),
	})
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	h.Log.Info("feedback received", zap.String("feedback_id", f.ID), zap.Int("rating", f.Rating))
	httpjson.OK(w, map[string]any{"id": f.ID})
}

// surveyIdentity holds the answers lifted out of a survey into their own
// columns.
type surveyIdentity struct {
	Email   string `json:"email" validate:"required,strictemail"`
	Program string `json:"program" validate:"max=20"`
}

// ServePeerFeedback handles POST /api/peer-feedback. The survey's fields
// depend on the path taken through it, so everything besides email and
// program is stored as a flat answer map.
func (h *Handler) ServePeerFeedback(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := httpjson.Decode(r, &raw); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	if len(raw) > limits.MaxSurveyAnswers {
		httpjson.Error(w, h.Log, errTooManyAnswers)
		return
	}

	answers := flatten(raw)
	id := surveyIdentity{
		Email:   normalize.Email(answers["email"]),
		Program: normalize.Token(answers["program"]),
	}
	if err := inputval.Validate(id); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	delete(answers, "email")
	delete(answers, "program")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "peer-feedback")
	defer cancel()

	f, err := h.Store.AddPeerFeedback(ctx, models.PeerFeedback{
		Email:   id.Email,
		Program: id.Program,
		Answers: htmlsanitize.Answers(answers),
	})
	if err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	h.Log.Info("peer feedback received", zap.String("feedback_id", f.ID), zap.String("program", f.Program))
	httpjson.OK(w, map[string]any{"id": f.ID})
}

// flatten renders every scalar answer as a string. Nulls are dropped and
// nested values are kept as compact JSON.
func flatten(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		case bool:
			out[k] = strconv.FormatBool(t)
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			if b, err := json.Marshal(t); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
