// internal/domain/models/feedback.go
package models

import "time"

// Feedback is a general rating of the service left from the landing page.
type Feedback struct {
	ID        string    `bson:"_id" json:"id"`
	Rating    int       `bson:"rating" json:"rating"`
	Comment   string    `bson:"comment" json:"comment"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// PeerFeedback is a post-session survey about a peer group.
// Answers vary by path through the survey, so they are kept as a flat map.
type PeerFeedback struct {
	ID        string            `bson:"_id" json:"id"`
	Email     string            `bson:"email" json:"email"`
	Program   string            `bson:"program" json:"program"`
	Answers   map[string]string `bson:"answers" json:"answers"`
	Timestamp time.Time         `bson:"timestamp" json:"timestamp"`
}
