// internal/app/store/audit/store.go
package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryMatching = "matching"
	CategoryAdmin    = "admin"
	CategorySecurity = "security"
)

// Matching event types
const (
	EventLearnerRegistered = "learner_registered"
	EventLearnerRefreshed  = "learner_refreshed"
	EventGroupFormed       = "group_formed"
	EventMatchNotFound     = "match_not_found"
	EventGroupDissolved    = "group_dissolved"
	EventLearnerLeft       = "learner_left"
	EventLearnerDeleted    = "learner_deleted"
)

// Admin and security event types
const (
	EventAdminRandomPair  = "admin_random_pair"
	EventAdminManualPair  = "admin_manual_pair"
	EventAdminUnpair      = "admin_unpair"
	EventAdminExport      = "admin_export"
	EventAdminAuthFailed  = "admin_auth_failed"
	EventAdminRateLimited = "admin_rate_limited"
)

// Actors
const (
	ActorLearner = "learner"
	ActorAdmin   = "admin"
	ActorSystem  = "system"
)

// Event represents an audit event.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`

	Category  string `bson:"category" json:"category"`
	EventType string `bson:"event_type" json:"event_type"`

	LearnerID string   `bson:"learner_id,omitempty" json:"learner_id,omitempty"`
	GroupID   string   `bson:"group_id,omitempty" json:"group_id,omitempty"`
	MemberIDs []string `bson:"member_ids,omitempty" json:"member_ids,omitempty"`
	Actor     string   `bson:"actor" json:"actor"`

	IP        string `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty" json:"user_agent,omitempty"`

	Success       bool   `bson:"success" json:"success"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`

	Details map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	LearnerID string
	GroupID   string
	Category  string
	EventType string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int64
	Offset    int64
}

// DefaultLimit caps Query when the filter sets no limit.
const DefaultLimit = 100

// Repository is implemented by Store and Memory.
type Repository interface {
	Log(ctx context.Context, event Event) error
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
}

// Store manages audit event records in MongoDB.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	stamp(&event)
	_, err := s.c.InsertOne(ctx, event)
	return err
}

func stamp(e *Event) {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

func filterDoc(f QueryFilter) bson.M {
	query := bson.M{}
	if f.LearnerID != "" {
		query["$or"] = []bson.M{
			{"learner_id": f.LearnerID},
			{"member_ids": f.LearnerID},
		}
	}
	if f.GroupID != "" {
		query["group_id"] = f.GroupID
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.EventType != "" {
		query["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		tq := bson.M{}
		if f.StartTime != nil {
			tq["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			tq["$lte"] = *f.EndTime
		}
		query["timestamp"] = tq
	}
	return query
}

// Query retrieves audit events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, filterDoc(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filterDoc(filter))
}

// Memory is an in-process Repository used by the memory backend and tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory returns an empty Memory repository.
func NewMemory() *Memory { return &Memory{} }

// Log appends event.
func (m *Memory) Log(_ context.Context, event Event) error {
	stamp(&event)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Query mirrors Store.Query over the in-memory slice.
func (m *Memory) Query(_ context.Context, f QueryFilter) ([]Event, error) {
	m.mu.Lock()
	matched := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if f.Offset >= int64(len(matched)) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if int64(len(matched)) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f QueryFilter) matches(e Event) bool {
	if f.LearnerID != "" && e.LearnerID != f.LearnerID && !contains(e.MemberIDs, f.LearnerID) {
		return false
	}
	if f.GroupID != "" && e.GroupID != f.GroupID {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
