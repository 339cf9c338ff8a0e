// internal/app/system/csvutil/csvutil.go
//
// Package csvutil writes the admin CSV exports. Column order is fixed so
// spreadsheets built on earlier exports keep working.
package csvutil

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/dalemusser/peerfinder/internal/domain/models"
)

// Export file names, shared by the download handlers and the S3 snapshot.
const (
	LearnersFile     = "peer_matching_data_v2.csv"
	FeedbackFile     = "peer_finder_feedback.csv"
	PeerFeedbackFile = "peer_finder_peer_feedback.csv"
)

// LearnerColumns is the header of the learners export.
var LearnerColumns = []string{
	"id", "name", "phone", "email", "country", "language", "program", "cohort",
	"topic_module", "learning_preferences", "availability", "preferred_study_setup",
	"kind_of_support", "connection_type", "open_to_global_pairing", "timestamp",
	"matched", "group_id", "unpair_reason", "matched_timestamp", "match_attempted",
}

// FeedbackColumns is the header of the feedback export.
var FeedbackColumns = []string{"id", "rating", "comment", "timestamp"}

// peerFeedbackFixed leads every peer-feedback row; answer keys follow in
// sorted order.
var peerFeedbackFixed = []string{"id", "email", "program", "timestamp"}

// WriteLearners writes learners to w with a header row.
func WriteLearners(w io.Writer, learners []models.Learner) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LearnerColumns); err != nil {
		return err
	}
	for _, l := range learners {
		rec := []string{
			l.ID, l.Name, l.Phone, l.Email, l.Country, l.Language, l.Program, l.Cohort,
			l.TopicModule, l.LearningPreferences, l.Availability, strconv.Itoa(l.PreferredStudySetup),
			l.KindOfSupport, l.ConnectionType, YesNo(l.OpenToGlobalPairing), stamp(l.Timestamp),
			TrueFalse(l.Matched), l.GroupID, l.UnpairReason, stampPtr(l.MatchedTimestamp), TrueFalse(l.MatchAttempted),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFeedback writes rating feedback to w with a header row.
func WriteFeedback(w io.Writer, items []models.Feedback) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FeedbackColumns); err != nil {
		return err
	}
	for _, f := range items {
		if err := cw.Write([]string{f.ID, strconv.Itoa(f.Rating), f.Comment, stamp(f.Timestamp)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePeerFeedback writes survey responses to w. The header is the fixed
// columns followed by every answer key seen, sorted; missing answers are
// empty cells.
func WritePeerFeedback(w io.Writer, items []models.PeerFeedback) error {
	keySet := make(map[string]bool)
	for _, f := range items {
		for k := range f.Answers {
			keySet[k] = true
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, peerFeedbackFixed...), keys...)); err != nil {
		return err
	}
	for _, f := range items {
		rec := []string{f.ID, f.Email, f.Program, stamp(f.Timestamp)}
		for _, k := range keys {
			rec = append(rec, f.Answers[k])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// YesNo renders the global-pairing flag the way the registration form
// submits it.
func YesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// TrueFalse renders state flags as earlier exports did.
func TrueFalse(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func stampPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return stamp(*t)
}
