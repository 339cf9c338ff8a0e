// internal/app/features/register/handler.go
package register

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/auditlog"
	"github.com/dalemusser/peerfinder/internal/app/system/httpjson"
	"github.com/dalemusser/peerfinder/internal/app/system/inputval"
	"github.com/dalemusser/peerfinder/internal/app/system/metrics"
	"github.com/dalemusser/peerfinder/internal/app/system/normalize"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	"go.uber.org/zap"
)

// Notifier is told about every newly queued learner.
type Notifier interface {
	LearnerQueued(ctx context.Context, l models.Learner)
}

// Handler serves learner registration.
type Handler struct {
	Store    *learnerstore.Store
	Programs []string
	Audit    *auditlog.Logger
	Notify   Notifier
	Log      *zap.Logger
}

// NewHandler creates a registration handler. programs lists the accepted
// program codes. audit and notify may be nil.
func NewHandler(store *learnerstore.Store, programs []string, audit *auditlog.Logger, notify Notifier, logger *zap.Logger) *Handler {
	return &Handler{
		Store:    store,
		Programs: programs,
		Audit:    audit,
		Notify:   notify,
		Log:      logger,
	}
}

// registerRequest is the JSON body of POST /api/register.
// The form posts preferred_study_setup as a string and
// open_to_global_pairing as either a checkbox bool or "Yes"/"No".
type registerRequest struct {
	Name                string            `json:"name" validate:"notblank,min=2,max=100"`
	Email               string            `json:"email" validate:"required,strictemail"`
	Phone               string            `json:"phone" validate:"required,phone"`
	Program             string            `json:"program"`
	Cohort              string            `json:"cohort" validate:"notblank,max=100"`
	Country             string            `json:"country" validate:"max=100"`
	Language            string            `json:"language" validate:"max=100"`
	TopicModule         string            `json:"topic_module" validate:"max=200"`
	LearningPreferences string            `json:"learning_preferences" validate:"max=500"`
	Availability        string            `json:"availability" validate:"max=100"`
	PreferredStudySetup httpjson.FlexInt  `json:"preferred_study_setup" validate:"omitempty,oneof=2 3"`
	KindOfSupport       string            `json:"kind_of_support" validate:"max=500"`
	ConnectionType      string            `json:"connection_type" validate:"oneof=find offer need"`
	OpenToGlobalPairing httpjson.FlexBool `json:"open_to_global_pairing"`
}

func (req *registerRequest) trim() {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalize.Email(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Program = normalize.Token(req.Program)
	req.Cohort = normalize.Token(req.Cohort)
	req.ConnectionType = normalize.LowerToken(req.ConnectionType)
}

func (req registerRequest) learner() models.Learner {
	setup := int(req.PreferredStudySetup)
	if setup == 0 {
		setup = models.DefaultStudySetup
	}
	return models.Learner{
		Name:                req.Name,
		Email:               req.Email,
		Phone:               req.Phone,
		Program:             req.Program,
		Cohort:              req.Cohort,
		Country:             req.Country,
		Language:            req.Language,
		TopicModule:         req.TopicModule,
		LearningPreferences: req.LearningPreferences,
		Availability:        req.Availability,
		PreferredStudySetup: setup,
		KindOfSupport:       req.KindOfSupport,
		ConnectionType:      req.ConnectionType,
		OpenToGlobalPairing: bool(req.OpenToGlobalPairing),
	}
}

// validate runs the tag rules and the configured program list.
func (h *Handler) validate(req registerRequest) error {
	var verrs inputval.Errors
	if err := inputval.Validate(req); err != nil && !errors.As(err, &verrs) {
		return err
	}
	if !slices.Contains(h.Programs, req.Program) {
		verrs = append(verrs, inputval.FieldError{
			Field:   "program",
			Message: "must be one of: " + strings.Join(h.Programs, ", "),
		})
	}
	if len(verrs) > 0 {
		return verrs
	}
	return nil
}

// ServeRegister handles POST /api/register.
//
// A new learner gets 200 and
//
//	{ "success":true, "user_id":"…", "is_duplicate":false, "already_matched":false }
//
// A known email gets the existing id with is_duplicate true. A waiting
// duplicate has its profile refreshed from the submission.
func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, h.Log, err)
		return
	}
	req.trim()
	if err := h.validate(req); err != nil {
		metrics.Registrations.WithLabelValues(req.Program, "invalid").Inc()
		httpjson.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "register")
	defer cancel()

	res, err := h.Store.Register(ctx, req.learner())
	if err != nil {
		h.Log.Error("register failed", zap.Error(err), zap.String("program", req.Program))
		httpjson.Error(w, h.Log, err)
		return
	}
	l := res.Learner

	switch {
	case !res.Duplicate:
		metrics.Registrations.WithLabelValues(l.Program, "created").Inc()
		h.Audit.LearnerRegistered(ctx, l.ID, l.Program, l.Cohort)
		if h.Notify != nil {
			h.Notify.LearnerQueued(ctx, l)
		}
	case res.Refreshed:
		metrics.Registrations.WithLabelValues(l.Program, "refreshed").Inc()
		h.Audit.LearnerRefreshed(ctx, l.ID)
	default:
		metrics.Registrations.WithLabelValues(l.Program, "duplicate").Inc()
	}

	httpjson.OK(w, map[string]any{
		"user_id":         l.ID,
		"is_duplicate":    res.Duplicate,
		"already_matched": l.Matched,
	})
}
