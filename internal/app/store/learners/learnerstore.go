// Package learnerstore persists learners and their group assignments.
//
// A Backend holds the records; Store adds registration semantics on top.
// Two backends exist: Mongo for deployments and Memory for tests and
// single-process development. Every multi-learner write on a Backend is
// all-or-nothing.
package learnerstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/system/htmlsanitize"
	"github.com/dalemusser/peerfinder/internal/app/system/normalize"
	"github.com/dalemusser/peerfinder/internal/domain/errs"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no learner has the given id or email.
	ErrNotFound = errs.New(errs.NotFound, "learner not found")
	// ErrDuplicateEmail is returned by Insert when the email is taken.
	ErrDuplicateEmail = errs.New(errs.Conflict, "a learner with this email already exists")
	// ErrConflict is returned when a conditional write finds a learner in
	// an unexpected state (already matched, moved to another group).
	ErrConflict = errs.New(errs.Conflict, "learner state changed concurrently")
)

// Filter narrows List and Counts. Zero fields do not filter.
type Filter struct {
	Program   string
	Cohort    string
	Matched   *bool
	Search    string // case-insensitive substring of name or email
	ExcludeID string
	Limit     int
}

// Release describes one group-lifecycle write.
//
// Every id in Clear and Delete must currently carry GroupID (or be
// unmatched when GroupID is empty), and every id in Keep must still be
// matched into GroupID; otherwise nothing is written and ErrConflict is
// returned.
type Release struct {
	GroupID string
	Clear   []string             // returned to the pool
	Delete  []string             // removed entirely
	Keep    []string             // members expected to stay in GroupID
	Reason  string               // stored as unpair_reason on cleared learners
	Requeue map[string]time.Time // new queue timestamps for cleared learners
}

// IDs returns every learner the release touches.
func (r Release) IDs() []string {
	out := make([]string, 0, len(r.Clear)+len(r.Delete))
	out = append(out, r.Clear...)
	return append(out, r.Delete...)
}

// Counts summarises the pool for the admin dashboard.
type Counts struct {
	Total   int64 `json:"total"`
	Matched int64 `json:"matched"`
	Pending int64 `json:"pending"`
	Offer   int64 `json:"offer"`
	Need    int64 `json:"need"`
}

// Backend is the record-level persistence contract.
type Backend interface {
	Insert(ctx context.Context, l models.Learner) error
	GetByID(ctx context.Context, id string) (models.Learner, error)
	GetByEmail(ctx context.Context, email string) (models.Learner, error)
	// List returns learners ordered by queue timestamp, then id.
	List(ctx context.Context, f Filter) ([]models.Learner, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Learner, error)
	// UpdateProfile overwrites soft attributes of an unmatched learner.
	UpdateProfile(ctx context.Context, id string, p models.Profile) error
	// AssignGroup marks every member matched into groupID, provided each is
	// still unmatched and still has the profile it was selected with.
	AssignGroup(ctx context.Context, members []models.Learner, groupID string, at time.Time) error
	Release(ctx context.Context, r Release) error
	MarkAttempted(ctx context.Context, id string) error
	Counts(ctx context.Context, f Filter) (Counts, error)
	Ping(ctx context.Context) error
}

// Store wraps a Backend with registration and lookup rules.
type Store struct {
	b     Backend
	now   func() time.Time
	newID func() string
}

// New returns a Store over b.
func New(b Backend) *Store {
	return &Store{b: b, now: func() time.Time { return time.Now().UTC() }, newID: uuid.NewString}
}

// Backend exposes the underlying Backend to the matching engine.
func (s *Store) Backend() Backend { return s.b }

// RegisterResult reports what Register did.
type RegisterResult struct {
	Learner   models.Learner
	Duplicate bool // email already registered; no new record created
	Refreshed bool // duplicate was still waiting and its profile was updated
}

// Register creates a learner, or returns the existing one when the email is
// already registered. A waiting duplicate has its soft attributes refreshed
// from l; a matched duplicate is returned unchanged.
func (s *Store) Register(ctx context.Context, l models.Learner) (RegisterResult, error) {
	l = Clean(l)

	existing, err := s.b.GetByEmail(ctx, l.Email)
	switch {
	case err == nil:
		return s.refresh(ctx, existing, l)
	case !errors.Is(err, ErrNotFound):
		return RegisterResult{}, err
	}

	l.ID = s.newID()
	l.Timestamp = s.now()
	l.Matched = false
	l.GroupID = ""
	l.MatchedTimestamp = nil
	l.MatchAttempted = false
	l.UnpairReason = ""

	if err := s.b.Insert(ctx, l); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// lost a race with a concurrent registration
			existing, gerr := s.b.GetByEmail(ctx, l.Email)
			if gerr != nil {
				return RegisterResult{}, gerr
			}
			return RegisterResult{Learner: existing, Duplicate: true}, nil
		}
		return RegisterResult{}, err
	}
	return RegisterResult{Learner: l}, nil
}

func (s *Store) refresh(ctx context.Context, existing, incoming models.Learner) (RegisterResult, error) {
	res := RegisterResult{Learner: existing, Duplicate: true}
	if existing.Matched {
		return res, nil
	}
	p := models.ProfileOf(incoming)
	if err := s.b.UpdateProfile(ctx, existing.ID, p); err != nil {
		if errors.Is(err, ErrConflict) {
			// matched in the meantime; report the duplicate as-is
			cur, gerr := s.b.GetByID(ctx, existing.ID)
			if gerr != nil {
				return res, nil
			}
			return RegisterResult{Learner: cur, Duplicate: true}, nil
		}
		return RegisterResult{}, err
	}
	p.Apply(&res.Learner)
	res.Refreshed = true
	return res, nil
}

// Get loads a learner by id.
func (s *Store) Get(ctx context.Context, id string) (models.Learner, error) {
	return s.b.GetByID(ctx, strings.TrimSpace(id))
}

// Resolve loads a learner by id, or by email when key contains "@".
func (s *Store) Resolve(ctx context.Context, key string) (models.Learner, error) {
	key = strings.TrimSpace(key)
	if strings.Contains(key, "@") {
		return s.b.GetByEmail(ctx, normalize.Email(key))
	}
	return s.b.GetByID(ctx, key)
}

// List returns learners matching f in queue order.
func (s *Store) List(ctx context.Context, f Filter) ([]models.Learner, error) {
	return s.b.List(ctx, f)
}

// Counts returns dashboard totals for f.
func (s *Store) Counts(ctx context.Context, f Filter) (Counts, error) {
	return s.b.Counts(ctx, f)
}

// Clean normalises identity fields and strips markup from free text.
func Clean(l models.Learner) models.Learner {
	l.Name = normalize.Name(htmlsanitize.Text(l.Name))
	l.NameCI = text.Fold(l.Name)
	l.Email = normalize.Email(l.Email)
	l.Phone = normalize.Phone(l.Phone)
	l.Country = normalize.Token(htmlsanitize.Text(l.Country))
	l.Language = normalize.Token(htmlsanitize.Text(l.Language))
	l.Program = normalize.Token(l.Program)
	l.Cohort = normalize.Token(htmlsanitize.Text(l.Cohort))
	l.TopicModule = normalize.Token(htmlsanitize.Text(l.TopicModule))
	l.Availability = normalize.Token(htmlsanitize.Text(l.Availability))
	l.LearningPreferences = htmlsanitize.Text(l.LearningPreferences)
	l.KindOfSupport = htmlsanitize.Text(l.KindOfSupport)
	l.ConnectionType = normalize.LowerToken(l.ConnectionType)
	if l.PreferredStudySetup != 2 && l.PreferredStudySetup != 3 {
		l.PreferredStudySetup = models.DefaultStudySetup
	}
	return l
}

// matchesFilter is shared by Memory and the tests.
func matchesFilter(l models.Learner, f Filter) bool {
	if f.Program != "" && l.Program != f.Program {
		return false
	}
	if f.Cohort != "" && l.Cohort != f.Cohort {
		return false
	}
	if f.Matched != nil && l.Matched != *f.Matched {
		return false
	}
	if f.ExcludeID != "" && l.ID == f.ExcludeID {
		return false
	}
	if f.Search != "" {
		q := text.Fold(f.Search)
		if !strings.Contains(l.NameCI, q) && !strings.Contains(l.Email, strings.ToLower(f.Search)) {
			return false
		}
	}
	return true
}
