package csvutil

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/peerfinder/internal/domain/models"
)

func readAll(t *testing.T, b *bytes.Buffer) [][]string {
	t.Helper()
	recs, err := csv.NewReader(b).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return recs
}

func TestWriteLearners(t *testing.T) {
	ts := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	learners := []models.Learner{
		{
			ID: "l1", Name: "Ada, Jr.", Email: "ada@example.com", Phone: "+2348000000001",
			Program: "PF", Cohort: "C1", PreferredStudySetup: 3, ConnectionType: "offer",
			OpenToGlobalPairing: true, Timestamp: ts, Matched: true, GroupID: "group-1",
			MatchedTimestamp: &ts, MatchAttempted: true,
		},
		{ID: "l2", Name: "Bola", Timestamp: ts, PreferredStudySetup: 2, UnpairReason: "moved"},
	}

	var buf bytes.Buffer
	if err := WriteLearners(&buf, learners); err != nil {
		t.Fatalf("WriteLearners() error = %v", err)
	}
	recs := readAll(t, &buf)
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if strings.Join(recs[0], ",") != strings.Join(LearnerColumns, ",") {
		t.Errorf("header = %v", recs[0])
	}

	col := func(row []string, name string) string {
		for i, c := range LearnerColumns {
			if c == name {
				return row[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}
	r1 := recs[1]
	checks := map[string]string{
		"name":                   "Ada, Jr.",
		"preferred_study_setup":  "3",
		"open_to_global_pairing": "Yes",
		"matched":                "True",
		"matched_timestamp":      "2025-02-03T04:05:06Z",
		"match_attempted":        "True",
		"group_id":               "group-1",
	}
	for name, want := range checks {
		if got := col(r1, name); got != want {
			t.Errorf("row 1 %s = %q, want %q", name, got, want)
		}
	}
	if got := col(recs[2], "matched_timestamp"); got != "" {
		t.Errorf("row 2 matched_timestamp = %q, want empty", got)
	}
	if got := col(recs[2], "unpair_reason"); got != "moved" {
		t.Errorf("row 2 unpair_reason = %q", got)
	}
}

func TestWriteFeedback(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFeedback(&buf, []models.Feedback{
		{ID: "f1", Rating: 5, Comment: "great \"buddy\"", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("WriteFeedback() error = %v", err)
	}
	recs := readAll(t, &buf)
	if len(recs) != 2 || recs[1][1] != "5" || recs[1][2] != "great \"buddy\"" {
		t.Errorf("records = %v", recs)
	}
}

func TestWritePeerFeedback_UnionOfAnswerKeys(t *testing.T) {
	var buf bytes.Buffer
	err := WritePeerFeedback(&buf, []models.PeerFeedback{
		{ID: "p1", Email: "a@example.com", Program: "PF", Answers: map[string]string{"helpful": "yes"}},
		{ID: "p2", Email: "b@example.com", Program: "VA", Answers: map[string]string{"met_weekly": "no", "helpful": "somewhat"}},
	})
	if err != nil {
		t.Fatalf("WritePeerFeedback() error = %v", err)
	}
	recs := readAll(t, &buf)
	wantHeader := "id,email,program,timestamp,helpful,met_weekly"
	if got := strings.Join(recs[0], ","); got != wantHeader {
		t.Errorf("header = %q, want %q", got, wantHeader)
	}
	if recs[1][5] != "" || recs[2][5] != "no" || recs[2][4] != "somewhat" {
		t.Errorf("records = %v", recs)
	}
}

func TestWriteLearners_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLearners(&buf, nil); err != nil {
		t.Fatalf("WriteLearners() error = %v", err)
	}
	if recs := readAll(t, &buf); len(recs) != 1 {
		t.Errorf("got %d records, want header only", len(recs))
	}
}
