package matching

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/metrics"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	"go.uber.org/zap"
)

// Default reasons recorded when the caller gives none.
const (
	ReasonLeft     = "User Requested"
	ReasonUnpaired = "Admin unpaired"
	ReasonDeleted  = "Deleted request"
)

// LeaveResult describes what LeaveGroup changed.
type LeaveResult struct {
	GroupID   string   // group the learner left; empty if they were waiting
	Remaining []string // members still matched under GroupID
	Dissolved bool     // the group no longer exists
	Deleted   bool     // the learner's record was removed
}

// DissolveGroup returns every member of groupID to the waiting pool. Queue
// timestamps are kept.
func (e *Engine) DissolveGroup(ctx context.Context, groupID, reason, actor string) (models.Group, error) {
	groupID = strings.TrimSpace(groupID)
	reason = reasonOr(reason, ReasonUnpaired)
	if groupID == "" {
		return models.Group{}, ErrGroupNotFound
	}

	for attempt := 0; ; attempt++ {
		members, err := e.b.ListByGroup(ctx, groupID)
		if err != nil {
			return models.Group{}, err
		}
		if len(members) == 0 {
			return models.Group{}, ErrGroupNotFound
		}
		g := models.Group{ID: groupID, Members: members}

		err = e.release(ctx, learnerstore.Release{GroupID: groupID, Clear: g.MemberIDs(), Reason: reason})
		if err == nil {
			metrics.GroupsDissolved.WithLabelValues("admin").Inc()
			e.audit.GroupDissolved(ctx, groupID, g.MemberIDs(), actor, reason)
			e.log.Info("group dissolved",
				zap.String("group_id", groupID), zap.Strings("members", g.MemberIDs()), zap.String("reason", reason))
			return g, nil
		}
		if !retryable(err) || attempt >= e.maxRetries {
			return models.Group{}, err
		}
	}
}

// UnpairLearner dissolves the group learnerID belongs to.
func (e *Engine) UnpairLearner(ctx context.Context, learnerID, reason string) (models.Group, error) {
	l, err := e.b.GetByID(ctx, strings.TrimSpace(learnerID))
	if err != nil {
		return models.Group{}, err
	}
	if !l.Matched || l.GroupID == "" {
		return models.Group{}, ErrNotMatched
	}
	return e.DissolveGroup(ctx, l.GroupID, reason, audit.ActorAdmin)
}

// LeaveGroup removes learnerID from their group. In a pair the other member
// is returned to the pool as well; in a triad the other two stay matched.
// With deleteProfile the learner's record is removed, otherwise they are
// requeued. A waiting learner is only affected when deleteProfile is set.
func (e *Engine) LeaveGroup(ctx context.Context, learnerID, reason string, deleteProfile bool) (LeaveResult, error) {
	learnerID = strings.TrimSpace(learnerID)
	reason = reasonOr(reason, ReasonLeft)

	for attempt := 0; ; attempt++ {
		res, err := e.leave(ctx, learnerID, reason, deleteProfile)
		if err == nil || !retryable(err) || attempt >= e.maxRetries {
			return res, err
		}
	}
}

// DeleteRequest removes learnerID entirely, leaving their group first if
// they have one.
func (e *Engine) DeleteRequest(ctx context.Context, learnerID, reason string) (LeaveResult, error) {
	return e.LeaveGroup(ctx, learnerID, reasonOr(reason, ReasonDeleted), true)
}

func (e *Engine) leave(ctx context.Context, learnerID, reason string, deleteProfile bool) (LeaveResult, error) {
	l, err := e.b.GetByID(ctx, learnerID)
	if err != nil {
		return LeaveResult{}, err
	}

	if !l.Matched {
		if !deleteProfile {
			return LeaveResult{}, nil
		}
		if err := e.release(ctx, learnerstore.Release{Delete: []string{l.ID}, Reason: reason}); err != nil {
			return LeaveResult{}, err
		}
		e.audit.LearnerDeleted(ctx, l.ID, audit.ActorLearner, reason)
		return LeaveResult{Deleted: true}, nil
	}

	members, err := e.b.ListByGroup(ctx, l.GroupID)
	if err != nil {
		return LeaveResult{}, err
	}
	var others []string
	for _, m := range members {
		if m.ID != l.ID {
			others = append(others, m.ID)
		}
	}

	r := learnerstore.Release{GroupID: l.GroupID, Reason: reason}
	if deleteProfile {
		r.Delete = []string{l.ID}
	} else {
		r.Clear = []string{l.ID}
		if e.requeueReset {
			r.Requeue = map[string]time.Time{l.ID: e.now()}
		}
	}
	res := LeaveResult{GroupID: l.GroupID, Remaining: others, Deleted: deleteProfile}
	if len(others) < 2 {
		r.Clear = append(r.Clear, others...)
		res.Remaining = nil
		res.Dissolved = true
	} else {
		// a concurrent leave by one of others must send us back through
		// the retry loop, or the last member stays matched alone
		r.Keep = others
	}

	if err := e.release(ctx, r); err != nil {
		return LeaveResult{}, err
	}

	if res.Dissolved {
		cause := "leave"
		if deleteProfile {
			cause = "delete"
		}
		metrics.GroupsDissolved.WithLabelValues(cause).Inc()
	}
	e.audit.LearnerLeft(ctx, l.ID, l.GroupID, res.Remaining, reason)
	if deleteProfile {
		e.audit.LearnerDeleted(ctx, l.ID, audit.ActorLearner, reason)
	}
	e.log.Info("learner left group",
		zap.String("learner_id", l.ID), zap.String("group_id", l.GroupID),
		zap.Bool("dissolved", res.Dissolved), zap.Bool("deleted", deleteProfile))
	return res, nil
}

func (e *Engine) release(ctx context.Context, r learnerstore.Release) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.b.Release(ctx, r)
}

// retryable reports whether a lifecycle write failed because group
// membership changed between read and write.
func retryable(err error) bool {
	return errors.Is(err, learnerstore.ErrConflict)
}

func reasonOr(reason, def string) string {
	if reason = strings.TrimSpace(reason); reason == "" {
		return def
	}
	return reason
}
