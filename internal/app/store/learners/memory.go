package learnerstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/peerfinder/internal/domain/models"
)

// Memory is a Backend held in process memory. It is safe for concurrent
// use and returns copies, so callers never share state with the store.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]models.Learner
	byEmail map[string]string
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]models.Learner),
		byEmail: make(map[string]string),
	}
}

func (m *Memory) Insert(_ context.Context, l models.Learner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[l.Email]; taken {
		return ErrDuplicateEmail
	}
	if _, taken := m.byID[l.ID]; taken {
		return ErrConflict
	}
	m.byID[l.ID] = l
	m.byEmail[l.Email] = l.ID
	return nil
}

func (m *Memory) GetByID(_ context.Context, id string) (models.Learner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.byID[id]
	if !ok {
		return models.Learner{}, ErrNotFound
	}
	return l, nil
}

func (m *Memory) GetByEmail(_ context.Context, email string) (models.Learner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return models.Learner{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]models.Learner, error) {
	m.mu.RLock()
	out := make([]models.Learner, 0, len(m.byID))
	for _, l := range m.byID {
		if matchesFilter(l, f) {
			out = append(out, l)
		}
	}
	m.mu.RUnlock()

	sortQueue(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortQueue(ls []models.Learner) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].Timestamp.Equal(ls[j].Timestamp) {
			return ls[i].Timestamp.Before(ls[j].Timestamp)
		}
		return ls[i].ID < ls[j].ID
	})
}

func (m *Memory) ListByGroup(_ context.Context, groupID string) ([]models.Learner, error) {
	if groupID == "" {
		return nil, nil
	}
	m.mu.RLock()
	var out []models.Learner
	for _, l := range m.byID {
		if l.Matched && l.GroupID == groupID {
			out = append(out, l)
		}
	}
	m.mu.RUnlock()
	sortQueue(out)
	return out, nil
}

func (m *Memory) UpdateProfile(_ context.Context, id string, p models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if l.Matched {
		return ErrConflict
	}
	p.Apply(&l)
	m.byID[id] = l
	return nil
}

func (m *Memory) AssignGroup(_ context.Context, members []models.Learner, groupID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, want := range members {
		l, ok := m.byID[want.ID]
		if !ok {
			return ErrNotFound
		}
		if l.Matched || models.ProfileOf(l) != models.ProfileOf(want) {
			return ErrConflict
		}
	}
	for _, want := range members {
		id := want.ID
		l := m.byID[id]
		ts := at
		l.Matched = true
		l.GroupID = groupID
		l.MatchedTimestamp = &ts
		l.MatchAttempted = true
		l.UnpairReason = ""
		m.byID[id] = l
	}
	return nil
}

func (m *Memory) Release(_ context.Context, r Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range r.IDs() {
		l, ok := m.byID[id]
		if !ok {
			return ErrNotFound
		}
		if !holds(l, r.GroupID) {
			return ErrConflict
		}
	}
	for _, id := range r.Keep {
		l, ok := m.byID[id]
		if !ok || r.GroupID == "" || !holds(l, r.GroupID) {
			return ErrConflict
		}
	}

	for _, id := range r.Clear {
		l := m.byID[id]
		l.Matched = false
		l.GroupID = ""
		l.MatchedTimestamp = nil
		l.UnpairReason = r.Reason
		if ts, ok := r.Requeue[id]; ok {
			l.Timestamp = ts
		}
		m.byID[id] = l
	}
	for _, id := range r.Delete {
		delete(m.byEmail, m.byID[id].Email)
		delete(m.byID, id)
	}
	return nil
}

// holds reports whether l is in the state a Release for groupID expects.
func holds(l models.Learner, groupID string) bool {
	if groupID == "" {
		return !l.Matched
	}
	return l.Matched && l.GroupID == groupID
}

func (m *Memory) MarkAttempted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	l.MatchAttempted = true
	m.byID[id] = l
	return nil
}

func (m *Memory) Counts(_ context.Context, f Filter) (Counts, error) {
	f.Matched = nil
	m.mu.RLock()
	defer m.mu.RUnlock()

	var c Counts
	for _, l := range m.byID {
		if !matchesFilter(l, f) {
			continue
		}
		c.Total++
		if l.Matched {
			c.Matched++
		}
		switch l.ConnectionType {
		case models.ConnectionOffer:
			c.Offer++
		case models.ConnectionNeed:
			c.Need++
		}
	}
	c.Pending = c.Total - c.Matched
	return c, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
