// Package feedbackstore persists service ratings and post-session peer
// surveys.
package feedbackstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/peerfinder/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository is implemented by Store and Memory. List methods return
// records oldest first.
type Repository interface {
	AddFeedback(ctx context.Context, f models.Feedback) (models.Feedback, error)
	ListFeedback(ctx context.Context) ([]models.Feedback, error)
	AddPeerFeedback(ctx context.Context, f models.PeerFeedback) (models.PeerFeedback, error)
	ListPeerFeedback(ctx context.Context) ([]models.PeerFeedback, error)
}

func stampFeedback(f *models.Feedback) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
}

func stampPeer(f *models.PeerFeedback) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Answers == nil {
		f.Answers = map[string]string{}
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
}

// Store keeps feedback in MongoDB.
type Store struct {
	fb   *mongo.Collection
	peer *mongo.Collection
}

// New creates a Store on db.
func New(db *mongo.Database) *Store {
	return &Store{fb: db.Collection("feedback"), peer: db.Collection("peer_feedback")}
}

var oldestFirst = options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

func (s *Store) AddFeedback(ctx context.Context, f models.Feedback) (models.Feedback, error) {
	stampFeedback(&f)
	if _, err := s.fb.InsertOne(ctx, f); err != nil {
		return models.Feedback{}, err
	}
	return f, nil
}

func (s *Store) ListFeedback(ctx context.Context) ([]models.Feedback, error) {
	cur, err := s.fb.Find(ctx, bson.M{}, oldestFirst)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Feedback
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AddPeerFeedback(ctx context.Context, f models.PeerFeedback) (models.PeerFeedback, error) {
	stampPeer(&f)
	if _, err := s.peer.InsertOne(ctx, f); err != nil {
		return models.PeerFeedback{}, err
	}
	return f, nil
}

func (s *Store) ListPeerFeedback(ctx context.Context) ([]models.PeerFeedback, error) {
	cur, err := s.peer.Find(ctx, bson.M{}, oldestFirst)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.PeerFeedback
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Memory keeps feedback in process memory.
type Memory struct {
	mu   sync.Mutex
	fb   []models.Feedback
	peer []models.PeerFeedback
}

// NewMemory returns an empty Memory repository.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) AddFeedback(_ context.Context, f models.Feedback) (models.Feedback, error) {
	stampFeedback(&f)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fb = append(m.fb, f)
	return f, nil
}

func (m *Memory) ListFeedback(context.Context) ([]models.Feedback, error) {
	m.mu.Lock()
	out := append([]models.Feedback(nil), m.fb...)
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) AddPeerFeedback(_ context.Context, f models.PeerFeedback) (models.PeerFeedback, error) {
	stampPeer(&f)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peer = append(m.peer, f)
	return f, nil
}

func (m *Memory) ListPeerFeedback(context.Context) ([]models.PeerFeedback, error) {
	m.mu.Lock()
	out := append([]models.PeerFeedback(nil), m.peer...)
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
