// internal/domain/models/group.go
package models

// Group prefixes identify which trigger formed a group.
const (
	GroupPrefixAuto   = "group-"
	GroupPrefixRandom = "group-random-"
	GroupPrefixManual = "group-manual-"
)

// Group is a read-side view of the learners sharing a group_id.
//
// NOTE:
//   - Groups are not stored as their own documents. The members' group_id
//     field is the single source of truth, which keeps a commit to one
//     multi-document update on the learners collection.
type Group struct {
	ID      string    `json:"group_id"`
	Members []Learner `json:"members"`
}

// MemberIDs returns the ids of the group's members in stored order.
func (g Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// Has reports whether learnerID is a member of g.
func (g Group) Has(learnerID string) bool {
	for _, m := range g.Members {
		if m.ID == learnerID {
			return true
		}
	}
	return false
}
