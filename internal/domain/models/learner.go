// internal/domain/models/learner.go
package models

import (
	"time"
)

// Connection types a learner can register with.
const (
	ConnectionFind  = "find"  // looking for a study buddy
	ConnectionOffer = "offer" // offering support
	ConnectionNeed  = "need"  // needing support
)

// DefaultStudySetup is the group size used when a learner did not state one.
const DefaultStudySetup = 2

// Learner is a registrant waiting for, or placed in, a peer group.
//
// NOTE:
//   - GroupID is empty whenever Matched is false. A learner belongs to at
//     most one active group; the group itself is the set of learners that
//     share a GroupID.
//   - Email is stored lower-cased and is the natural key for duplicate
//     detection.
type Learner struct {
	ID       string `bson:"_id" json:"id"`
	Name     string `bson:"name" json:"name"`
	NameCI   string `bson:"name_ci" json:"-"`
	Email    string `bson:"email" json:"email"`
	Phone    string `bson:"phone" json:"phone"`
	Country  string `bson:"country" json:"country"`
	Language string `bson:"language" json:"language"`

	Program string `bson:"program" json:"program"`
	Cohort  string `bson:"cohort" json:"cohort"`

	TopicModule         string `bson:"topic_module" json:"topic_module"`
	Availability        string `bson:"availability" json:"availability"`
	LearningPreferences string `bson:"learning_preferences" json:"learning_preferences"`
	PreferredStudySetup int    `bson:"preferred_study_setup" json:"preferred_study_setup"` // 2 or 3
	ConnectionType      string `bson:"connection_type" json:"connection_type"`             // find | offer | need
	KindOfSupport       string `bson:"kind_of_support" json:"kind_of_support"`
	OpenToGlobalPairing bool   `bson:"open_to_global_pairing" json:"open_to_global_pairing"`

	Matched          bool       `bson:"matched" json:"matched"`
	GroupID          string     `bson:"group_id" json:"group_id"`
	MatchedTimestamp *time.Time `bson:"matched_timestamp,omitempty" json:"matched_timestamp,omitempty"`
	MatchAttempted   bool       `bson:"match_attempted" json:"match_attempted"`
	UnpairReason     string     `bson:"unpair_reason,omitempty" json:"unpair_reason"`

	// Timestamp is the queue entry time. It orders the waiting pool and is
	// reset on requeue when the deployment asks for it.
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// GroupSize returns the learner's target group size, defaulting to a pair.
func (l Learner) GroupSize() int {
	if l.PreferredStudySetup == 2 || l.PreferredStudySetup == 3 {
		return l.PreferredStudySetup
	}
	return DefaultStudySetup
}

// Profile holds the soft attributes a learner may refresh by registering
// again with the same email while still waiting.
type Profile struct {
	Country             string
	Language            string
	TopicModule         string
	Availability        string
	LearningPreferences string
	PreferredStudySetup int
	ConnectionType      string
	KindOfSupport       string
	OpenToGlobalPairing bool
}

// ProfileOf extracts the refreshable attributes of l.
func ProfileOf(l Learner) Profile {
	return Profile{
		Country:             l.Country,
		Language:            l.Language,
		TopicModule:         l.TopicModule,
		Availability:        l.Availability,
		LearningPreferences: l.LearningPreferences,
		PreferredStudySetup: l.PreferredStudySetup,
		ConnectionType:      l.ConnectionType,
		KindOfSupport:       l.KindOfSupport,
		OpenToGlobalPairing: l.OpenToGlobalPairing,
	}
}

// Apply copies p onto l.
func (p Profile) Apply(l *Learner) {
	l.Country = p.Country
	l.Language = p.Language
	l.TopicModule = p.TopicModule
	l.Availability = p.Availability
	l.LearningPreferences = p.LearningPreferences
	l.PreferredStudySetup = p.PreferredStudySetup
	l.ConnectionType = p.ConnectionType
	l.KindOfSupport = p.KindOfSupport
	l.OpenToGlobalPairing = p.OpenToGlobalPairing
}
