package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dalemusser/peerfinder/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
)

var seq atomic.Int64

// base is the queue time of the first fixture learner. Each call to Learner
// advances by one minute so fixtures have a stable FIFO order.
var base = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

// LearnerOption customises a fixture learner.
type LearnerOption func(*models.Learner)

// Learner builds an unmatched learner in program "PF", cohort "C1", country
// "Nigeria", availability "Weekends" and module "Module 1", looking for a
// study buddy in a pair. Options override individual fields.
func Learner(name string, opts ...LearnerOption) models.Learner {
	n := seq.Add(1)
	l := models.Learner{
		ID:                  fmt.Sprintf("learner-%04d", n),
		Name:                name,
		NameCI:              text.Fold(name),
		Email:               fmt.Sprintf("learner%d@example.com", n),
		Phone:               fmt.Sprintf("+23480%08d", n),
		Country:             "Nigeria",
		Language:            "English",
		Program:             "PF",
		Cohort:              "C1",
		TopicModule:         "Module 1",
		Availability:        "Weekends",
		PreferredStudySetup: 2,
		ConnectionType:      models.ConnectionFind,
		Timestamp:           base.Add(time.Duration(n) * time.Minute),
	}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

func WithID(id string) LearnerOption       { return func(l *models.Learner) { l.ID = id } }
func WithEmail(e string) LearnerOption     { return func(l *models.Learner) { l.Email = e } }
func WithProgram(p string) LearnerOption   { return func(l *models.Learner) { l.Program = p } }
func WithCohort(c string) LearnerOption    { return func(l *models.Learner) { l.Cohort = c } }
func WithCountry(c string) LearnerOption   { return func(l *models.Learner) { l.Country = c } }
func WithModule(m string) LearnerOption    { return func(l *models.Learner) { l.TopicModule = m } }
func WithLanguage(s string) LearnerOption  { return func(l *models.Learner) { l.Language = s } }
func WithSetup(n int) LearnerOption        { return func(l *models.Learner) { l.PreferredStudySetup = n } }
func WithConnection(c string) LearnerOption { return func(l *models.Learner) { l.ConnectionType = c } }
func WithGlobal() LearnerOption            { return func(l *models.Learner) { l.OpenToGlobalPairing = true } }

func WithAvailability(a string) LearnerOption {
	return func(l *models.Learner) { l.Availability = a }
}

func WithTimestamp(ts time.Time) LearnerOption {
	return func(l *models.Learner) { l.Timestamp = ts }
}

// Matched places the fixture in group gid.
func Matched(gid string) LearnerOption {
	return func(l *models.Learner) {
		at := base
		l.Matched = true
		l.GroupID = gid
		l.MatchedTimestamp = &at
	}
}
