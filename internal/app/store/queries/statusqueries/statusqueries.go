// Package statusqueries builds the read-only projections polled by learners
// and the admin dashboard. Nothing here is cached past one call.
package statusqueries

import (
	"context"
	"fmt"

	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/domain/models"
)

// User is the requester's own summary on the status page.
type User struct {
	Name    string `json:"name"`
	Program string `json:"program"`
	Cohort  string `json:"cohort"`
}

// Peer is one group member as shown to the other members.
type Peer struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	ConnectionType string `json:"connection_type"`
}

// Status is the polling view of one learner.
type Status struct {
	Matched bool   `json:"matched"`
	User    User   `json:"user"`
	GroupID string `json:"group_id,omitempty"`
	Group   []Peer `json:"group,omitempty"`
	// RealID is the learner id, so a client that looked up by email can
	// switch to polling by id.
	RealID string `json:"real_id"`
}

// GetStatus returns the status of the learner identified by key, an id or
// an email address.
func GetStatus(ctx context.Context, s *learnerstore.Store, key string) (Status, error) {
	l, err := s.Resolve(ctx, key)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Matched: l.Matched,
		User:    User{Name: l.Name, Program: l.Program, Cohort: l.Cohort},
		RealID:  l.ID,
	}
	if !l.Matched || l.GroupID == "" {
		return st, nil
	}

	members, err := s.Backend().ListByGroup(ctx, l.GroupID)
	if err != nil {
		return Status{}, err
	}
	st.GroupID = l.GroupID
	st.Group = Peers(members)
	return st, nil
}

// Peers projects group members to their contact details.
func Peers(members []models.Learner) []Peer {
	out := make([]Peer, 0, len(members))
	for _, m := range members {
		out = append(out, Peer{
			Name:           m.Name,
			Email:          m.Email,
			Phone:          m.Phone,
			ConnectionType: m.ConnectionType,
		})
	}
	return out
}

// Stats are the dashboard totals.
type Stats struct {
	Total     int64  `json:"total"`
	Matched   int64  `json:"matched"`
	Pending   int64  `json:"pending"`
	MatchRate string `json:"match_rate"`
	Offer     int64  `json:"offer"`
	Need      int64  `json:"need"`
}

// Snapshot is the admin dashboard payload.
type Snapshot struct {
	Stats    Stats            `json:"stats"`
	Learners []models.Learner `json:"learners"`
}

// AdminSnapshot lists learners matching f in queue order with totals.
// Totals ignore f.Matched so the dashboard can show the match rate of the
// whole selection.
func AdminSnapshot(ctx context.Context, s *learnerstore.Store, f learnerstore.Filter) (Snapshot, error) {
	learners, err := s.List(ctx, f)
	if err != nil {
		return Snapshot{}, err
	}
	c, err := s.Counts(ctx, f)
	if err != nil {
		return Snapshot{}, err
	}
	if learners == nil {
		learners = []models.Learner{}
	}
	return Snapshot{
		Stats: Stats{
			Total:     c.Total,
			Matched:   c.Matched,
			Pending:   c.Pending,
			MatchRate: MatchRate(c.Matched, c.Total),
			Offer:     c.Offer,
			Need:      c.Need,
		},
		Learners: learners,
	}, nil
}

// MatchRate formats matched/total as a percentage with one decimal.
func MatchRate(matched, total int64) string {
	if total <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(matched)/float64(total)*100)
}
