// Package matching forms and dissolves peer groups.
//
// Engine is the only writer of group state. Candidate selection runs on a
// snapshot of the waiting pool; the commit is a conditional write on the
// learner backend that fails with learnerstore.ErrConflict if any chosen
// learner was matched or changed their profile in the meantime, in which
// case selection is retried against a fresh snapshot.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/policy/matchpolicy"
	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/auditlog"
	"github.com/dalemusser/peerfinder/internal/app/system/metrics"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
	"github.com/dalemusser/peerfinder/internal/domain/errs"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrConflict is returned when a forced group names a learner that is
	// already matched.
	ErrConflict = errs.New(errs.Conflict, "one or more learners are already matched")
	// ErrAlreadyMatched is returned by admin random pairing for a learner
	// who is already in a group.
	ErrAlreadyMatched = errs.New(errs.Conflict, "learner is already matched")
	// ErrNotMatched is returned when unpairing a learner who has no group.
	ErrNotMatched = errs.New(errs.Conflict, "learner is not in a group")
	// ErrGroupNotFound is returned when no learner carries the group id.
	ErrGroupNotFound = errs.New(errs.NotFound, "group not found")
	// ErrGroupSize is returned when a manual pairing does not name 2 or 3
	// distinct learners.
	ErrGroupSize = errs.New(errs.Invalid, "select 2 or 3 distinct learners")
)

// Group origins, used for audit details, metrics labels and notifications.
const (
	ViaAuto   = "auto"
	ViaRandom = "random"
	ViaManual = "manual"
	ViaSweep  = "sweep"
)

// DefaultMaxRetries bounds commit attempts lost to concurrent matches.
const DefaultMaxRetries = 3

// Notifier is told about every committed group. Implementations must not
// block; delivery is best effort.
type Notifier interface {
	GroupFormed(ctx context.Context, g models.Group, via string)
}

// Config tunes an Engine. Zero values take defaults.
type Config struct {
	Policy                 matchpolicy.Policy
	MaxRetries             int
	RequeueResetsTimestamp bool

	// Now and Rand are overridable for tests.
	Now  func() time.Time
	Rand *rand.Rand
}

// Result is the outcome of a match request. Matched is false when no
// compatible group could be formed; that is a normal outcome, not an error.
type Result struct {
	Matched bool
	Group   models.Group
	// Existing is true when the learner was already matched and Group is
	// their current group.
	Existing bool
}

// Engine runs the matching triggers and group lifecycle operations.
type Engine struct {
	store  *learnerstore.Store
	b      learnerstore.Backend
	policy matchpolicy.Policy
	audit  *auditlog.Logger
	notify Notifier
	log    *zap.Logger

	maxRetries   int
	requeueReset bool
	now          func() time.Time
	newID        func() string

	// mu serialises commits and releases issued by this process. The
	// backend's conditional writes keep multiple processes correct.
	mu sync.Mutex
	sf singleflight.Group

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds an Engine over store. audit and notify may be nil.
func New(store *learnerstore.Store, cfg Config, audit *auditlog.Logger, notify Notifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policy.Mode == "" {
		cfg.Policy = matchpolicy.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:        store,
		b:            store.Backend(),
		policy:       cfg.Policy,
		audit:        audit,
		notify:       notify,
		log:          logger,
		maxRetries:   cfg.MaxRetries,
		requeueReset: cfg.RequeueResetsTimestamp,
		now:          cfg.Now,
		newID:        uuid.NewString,
		rng:          cfg.Rand,
	}
}

// Policy returns the constraint policy in force.
func (e *Engine) Policy() matchpolicy.Policy { return e.policy }

// RequestMatch tries to place learnerID in a group with compatible waiting
// learners. A learner who is already matched gets their current group back
// and nothing is written. Concurrent requests for the same learner share
// one attempt.
func (e *Engine) RequestMatch(ctx context.Context, learnerID string) (Result, error) {
	learnerID = strings.TrimSpace(learnerID)
	start := time.Now()
	defer metrics.ObserveSince(metrics.MatchLatency, start)

	v, err, _ := e.sf.Do(learnerID, func() (any, error) {
		// shared by every caller, so one caller going away must not
		// cancel it for the rest
		ctx, cancel := timeouts.WithTimeout(context.WithoutCancel(ctx), timeouts.Medium(), e.log, "match")
		defer cancel()
		return e.requestMatch(ctx, learnerID)
	})
	if err != nil {
		metrics.MatchRequests.WithLabelValues("error").Inc()
		return Result{}, err
	}
	res := v.(Result)
	switch {
	case res.Existing:
		metrics.MatchRequests.WithLabelValues("already_matched").Inc()
	case res.Matched:
		metrics.MatchRequests.WithLabelValues("matched").Inc()
	default:
		metrics.MatchRequests.WithLabelValues("no_match").Inc()
	}
	return res, nil
}

func (e *Engine) requestMatch(ctx context.Context, learnerID string) (Result, error) {
	req, err := e.b.GetByID(ctx, learnerID)
	if err != nil {
		return Result{}, err
	}
	if req.Matched {
		return e.existing(ctx, req)
	}
	if err := e.b.MarkAttempted(ctx, req.ID); err != nil && !errors.Is(err, learnerstore.ErrNotFound) {
		e.log.Warn("mark match attempted failed", zap.String("learner_id", req.ID), zap.Error(err))
	}

	res, err := e.match(ctx, req, ViaAuto, audit.ActorLearner)
	if err != nil {
		return Result{}, err
	}
	if !res.Matched && !res.Existing {
		e.audit.MatchNotFound(ctx, req.ID, audit.ActorLearner)
	}
	return res, nil
}

// match runs ranked selection for req and commits the first group found,
// retrying on lost races.
func (e *Engine) match(ctx context.Context, req models.Learner, via, actor string) (Result, error) {
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		pool, err := e.waiting(ctx, req.Program)
		if err != nil {
			return Result{}, err
		}
		members := e.policy.Select(req, e.policy.Rank(req, pool), matchpolicy.Selection{})
		if members == nil {
			return Result{}, nil
		}

		g, err := e.commit(ctx, members, models.GroupPrefixAuto, via, actor)
		if err == nil {
			return Result{Matched: true, Group: g}, nil
		}
		if !errors.Is(err, learnerstore.ErrConflict) {
			return Result{}, err
		}
		metrics.MatchConflicts.Inc()
		e.log.Debug("match commit lost a race; retrying",
			zap.String("learner_id", req.ID), zap.Int("attempt", attempt+1))

		cur, err := e.b.GetByID(ctx, req.ID)
		if err != nil {
			return Result{}, err
		}
		if cur.Matched {
			return e.existing(ctx, cur)
		}
		req = cur
	}
	e.log.Info("match retries exhausted", zap.String("learner_id", req.ID), zap.Int("retries", e.maxRetries))
	return Result{}, nil
}

// AdminRandomPair places learnerID with randomly chosen compatible learners.
// Hard constraints still apply; connection-type ordering, queue order and
// the candidates' own size preference do not. Matched is false when the
// pool cannot fill the requester's group size.
func (e *Engine) AdminRandomPair(ctx context.Context, learnerID string) (Result, error) {
	req, err := e.b.GetByID(ctx, strings.TrimSpace(learnerID))
	if err != nil {
		return Result{}, err
	}
	if req.Matched {
		return Result{}, ErrAlreadyMatched
	}

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		pool, err := e.waiting(ctx, req.Program)
		if err != nil {
			return Result{}, err
		}
		ranked := e.shuffle(e.policy.Rank(req, pool))
		members := e.policy.Select(req, ranked, matchpolicy.Selection{IgnoreSizePreference: true})
		if members == nil {
			return Result{}, nil
		}

		g, err := e.commit(ctx, members, models.GroupPrefixRandom, ViaRandom, audit.ActorAdmin)
		if err == nil {
			return Result{Matched: true, Group: g}, nil
		}
		if !errors.Is(err, learnerstore.ErrConflict) {
			return Result{}, err
		}
		metrics.MatchConflicts.Inc()

		if req, err = e.b.GetByID(ctx, req.ID); err != nil {
			return Result{}, err
		}
		if req.Matched {
			return Result{}, ErrAlreadyMatched
		}
	}
	return Result{}, nil
}

// AdminManualPair forces the given learners into one group without
// consulting the constraint policy. Every learner must exist and be
// waiting.
func (e *Engine) AdminManualPair(ctx context.Context, ids []string) (models.Group, error) {
	ids = distinct(ids)
	if len(ids) < 2 || len(ids) > 3 {
		return models.Group{}, ErrGroupSize
	}

	members := make([]models.Learner, 0, len(ids))
	for _, id := range ids {
		l, err := e.b.GetByID(ctx, id)
		if err != nil {
			return models.Group{}, fmt.Errorf("%s: %w", id, err)
		}
		if l.Matched {
			return models.Group{}, ErrConflict
		}
		members = append(members, l)
	}

	g, err := e.commit(ctx, members, models.GroupPrefixManual, ViaManual, audit.ActorAdmin)
	if errors.Is(err, learnerstore.ErrConflict) {
		return models.Group{}, ErrConflict
	}
	return g, err
}

// commit writes members into a new group under prefix.
func (e *Engine) commit(ctx context.Context, members []models.Learner, prefix, via, actor string) (models.Group, error) {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	gid := prefix + e.newID()
	at := e.now()

	// members carry the profiles they were selected on; AssignGroup refuses
	// the write if any of them re-registered since
	e.mu.Lock()
	err := e.b.AssignGroup(ctx, members, gid, at)
	e.mu.Unlock()
	if err != nil {
		return models.Group{}, err
	}

	g := models.Group{ID: gid, Members: make([]models.Learner, len(members))}
	for i, m := range members {
		ts := at
		m.Matched = true
		m.GroupID = gid
		m.MatchedTimestamp = &ts
		m.MatchAttempted = true
		m.UnpairReason = ""
		g.Members[i] = m
	}

	metrics.GroupsFormed.WithLabelValues(via, fmt.Sprint(len(ids))).Inc()
	e.audit.GroupFormed(ctx, gid, ids, actor, via)
	e.log.Info("group formed",
		zap.String("group_id", gid), zap.Strings("members", ids), zap.String("trigger", via))
	if e.notify != nil {
		e.notify.GroupFormed(ctx, g, via)
	}
	return g, nil
}

// existing returns l's current group.
func (e *Engine) existing(ctx context.Context, l models.Learner) (Result, error) {
	members, err := e.b.ListByGroup(ctx, l.GroupID)
	if err != nil {
		return Result{}, err
	}
	return Result{Matched: true, Existing: true, Group: models.Group{ID: l.GroupID, Members: members}}, nil
}

func (e *Engine) waiting(ctx context.Context, program string) ([]models.Learner, error) {
	unmatched := false
	return e.b.List(ctx, learnerstore.Filter{Program: program, Matched: &unmatched})
}

func (e *Engine) shuffle(ranked []matchpolicy.Candidate) []matchpolicy.Candidate {
	if e.rng == nil {
		return matchpolicy.Shuffle(ranked, nil)
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return matchpolicy.Shuffle(ranked, e.rng)
}

func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
