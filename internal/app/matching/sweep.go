package matching

import (
	"context"
	"errors"

	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/metrics"
	"go.uber.org/zap"
)

// Sweep runs self-matching for every waiting learner, oldest first, and
// returns the number of groups formed. Learners placed earlier in the same
// sweep are skipped.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	unmatched := false
	pool, err := e.b.List(ctx, learnerstore.Filter{Matched: &unmatched})
	if err != nil {
		return 0, err
	}

	placed := make(map[string]bool)
	formed := 0
	for _, l := range pool {
		if err := ctx.Err(); err != nil {
			return formed, err
		}
		if placed[l.ID] {
			continue
		}
		res, err := e.match(ctx, l, ViaSweep, audit.ActorSystem)
		if err != nil {
			if errors.Is(err, learnerstore.ErrNotFound) {
				continue // deleted since the snapshot
			}
			return formed, err
		}
		if !res.Matched {
			continue
		}
		for _, id := range res.Group.MemberIDs() {
			placed[id] = true
		}
		if !res.Existing {
			formed++
		}
	}

	e.refreshWaiting(ctx)
	if formed > 0 {
		e.log.Info("auto-match sweep formed groups", zap.Int("groups", formed))
	}
	return formed, nil
}

// refreshWaiting recomputes the waiting-learners gauge per program.
func (e *Engine) refreshWaiting(ctx context.Context) {
	unmatched := false
	pool, err := e.b.List(ctx, learnerstore.Filter{Matched: &unmatched})
	if err != nil {
		e.log.Warn("waiting gauge refresh failed", zap.Error(err))
		return
	}
	counts := make(map[string]int)
	for _, l := range pool {
		counts[l.Program]++
	}
	metrics.WaitingLearners.Reset()
	for program, n := range counts {
		metrics.WaitingLearners.WithLabelValues(program).Set(float64(n))
	}
}
