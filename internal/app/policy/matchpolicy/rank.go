package matchpolicy

import (
	"math/rand/v2"
	"sort"

	"github.com/dalemusser/peerfinder/internal/domain/models"
)

// Complementarity scores how well two connection types fit; lower is
// better. need/offer and find/find are ideal, pairing with a finder is
// acceptable, and like-with-like among offer or need is a last resort.
func Complementarity(a, b string) int {
	switch {
	case a == models.ConnectionFind && b == models.ConnectionFind:
		return 0
	case (a == models.ConnectionNeed && b == models.ConnectionOffer) ||
		(a == models.ConnectionOffer && b == models.ConnectionNeed):
		return 0
	case a == models.ConnectionFind || b == models.ConnectionFind:
		return 1
	default:
		return 2
	}
}

// Candidate is a pool member ranked against a requester.
type Candidate struct {
	Learner models.Learner
	Tier    Tier
	Score   int
}

// Less orders candidates: strict tier first, then connection-type fit,
// then longest waiting, then id.
func Less(a, b Candidate) bool {
	if a.Tier != b.Tier {
		return a.Tier < b.Tier
	}
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if !a.Learner.Timestamp.Equal(b.Learner.Timestamp) {
		return a.Learner.Timestamp.Before(b.Learner.Timestamp)
	}
	return a.Learner.ID < b.Learner.ID
}

// Rank returns the pool members compatible with req, best first. req
// itself and matched learners are skipped.
func (p Policy) Rank(req models.Learner, pool []models.Learner) []Candidate {
	out := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if c.ID == req.ID || c.Matched {
			continue
		}
		tier, ok := p.Classify(req, c)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Learner: c,
			Tier:    tier,
			Score:   Complementarity(req.ConnectionType, c.ConnectionType),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Selection controls how Select builds a group.
type Selection struct {
	// Size is the total group size including the requester.
	Size int
	// IgnoreSizePreference admits candidates whose own preferred size
	// differs from Size.
	IgnoreSizePreference bool
}

// Select picks Size-1 candidates that are pairwise compatible with the
// requester and each other, greedily in ranked order and then by trying
// every candidate pair for a triad. Strict candidates are tried alone first;
// relaxed candidates join only when the strict pass cannot fill the group.
// It returns nil when no group can be formed.
func (p Policy) Select(req models.Learner, ranked []Candidate, sel Selection) []models.Learner {
	if sel.Size < 2 {
		sel.Size = req.GroupSize()
	}

	var strict []Candidate
	for _, c := range ranked {
		if c.Tier == TierStrict {
			strict = append(strict, c)
		}
	}
	if g := p.greedy(req, strict, sel); g != nil {
		return g
	}
	if len(strict) == len(ranked) {
		return nil
	}
	return p.greedy(req, ranked, sel)
}

func (p Policy) greedy(req models.Learner, ranked []Candidate, sel Selection) []models.Learner {
	group := []models.Learner{req}
	for _, c := range ranked {
		if len(group) == sel.Size {
			break
		}
		if !sel.IgnoreSizePreference && c.Learner.GroupSize() != sel.Size {
			continue
		}
		fits := true
		for _, m := range group[1:] {
			if !p.Compatible(m, c.Learner) {
				fits = false
				break
			}
		}
		if fits {
			group = append(group, c.Learner)
		}
	}
	if len(group) == sel.Size {
		return group
	}
	if sel.Size == 3 {
		return p.pairwise(req, ranked, sel)
	}
	return nil
}

// pairwise returns req with the first two candidates, in ranked order, that
// are compatible with each other. Compatibility is not transitive, so the
// greedy pass can commit to a first pick that no remaining candidate fits.
func (p Policy) pairwise(req models.Learner, ranked []Candidate, sel Selection) []models.Learner {
	fit := make([]models.Learner, 0, len(ranked))
	for _, c := range ranked {
		if sel.IgnoreSizePreference || c.Learner.GroupSize() == sel.Size {
			fit = append(fit, c.Learner)
		}
	}
	for i := range fit {
		for j := i + 1; j < len(fit); j++ {
			if p.Compatible(fit[i], fit[j]) {
				return []models.Learner{req, fit[i], fit[j]}
			}
		}
	}
	return nil
}

// Shuffle randomises candidate order within each tier, discarding the
// connection-type and queue ordering. Admin random pairing uses it.
func Shuffle(ranked []Candidate, r *rand.Rand) []Candidate {
	out := append([]Candidate(nil), ranked...)
	shuffle := func(s []Candidate) {
		if r != nil {
			r.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
			return
		}
		rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
	}
	split := sort.Search(len(out), func(i int) bool { return out[i].Tier != TierStrict })
	shuffle(out[:split])
	shuffle(out[split:])
	return out
}
