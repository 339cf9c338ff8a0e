package matching_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/matching"
	"github.com/dalemusser/peerfinder/internal/app/policy/matchpolicy"
	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/auditlog"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	"github.com/dalemusser/peerfinder/internal/testutil"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	groups []models.Group
	vias   []string
}

func (r *recorder) GroupFormed(_ context.Context, g models.Group, via string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, g)
	r.vias = append(r.vias, via)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

type fixture struct {
	engine  *matching.Engine
	backend learnerstore.Backend
	store   *learnerstore.Store
	events  *audit.Memory
	notify  *recorder
}

func newFixture(t *testing.T, learners ...models.Learner) *fixture {
	t.Helper()
	return newFixtureWith(t, learnerstore.NewMemory(), matching.Config{}, learners...)
}

func newFixtureWith(t *testing.T, b learnerstore.Backend, cfg matching.Config, learners ...models.Learner) *fixture {
	t.Helper()
	ctx := context.Background()
	for _, l := range learners {
		if err := b.Insert(ctx, l); err != nil {
			t.Fatalf("Insert(%s): %v", l.Name, err)
		}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	store := learnerstore.New(b)
	events := audit.NewMemory()
	rec := &recorder{}
	al := auditlog.New(events, zap.NewNop(), auditlog.Config{})
	return &fixture{
		engine:  matching.New(store, cfg, al, rec, zap.NewNop()),
		backend: b,
		store:   store,
		events:  events,
		notify:  rec,
	}
}

func (f *fixture) get(t *testing.T, id string) models.Learner {
	t.Helper()
	l, err := f.backend.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return l
}

// groupsByID returns current group memberships built from the stored
// learners.
func (f *fixture) groupsByID(t *testing.T) map[string][]models.Learner {
	t.Helper()
	all, err := f.backend.List(context.Background(), learnerstore.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	out := make(map[string][]models.Learner)
	for _, l := range all {
		if l.Matched {
			out[l.GroupID] = append(out[l.GroupID], l)
		}
	}
	return out
}

func TestRequestMatch_FormsPair(t *testing.T) {
	a := testutil.Learner("Ada")
	b := testutil.Learner("Bola")
	f := newFixture(t, a, b)

	res, err := f.engine.RequestMatch(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if !res.Matched || res.Existing {
		t.Fatalf("result = %+v, want a new match", res)
	}
	if !strings.HasPrefix(res.Group.ID, models.GroupPrefixAuto) ||
		strings.HasPrefix(res.Group.ID, models.GroupPrefixRandom) {
		t.Errorf("group id = %q, want auto prefix", res.Group.ID)
	}
	if !res.Group.Has(a.ID) || !res.Group.Has(b.ID) || len(res.Group.Members) != 2 {
		t.Errorf("group members = %v", res.Group.MemberIDs())
	}

	for _, id := range []string{a.ID, b.ID} {
		l := f.get(t, id)
		if !l.Matched || l.GroupID != res.Group.ID {
			t.Errorf("%s stored as matched=%v group=%q", id, l.Matched, l.GroupID)
		}
		if l.MatchedTimestamp == nil || !l.MatchedTimestamp.Equal(fixedNow) {
			t.Errorf("%s matched_timestamp = %v", id, l.MatchedTimestamp)
		}
	}
	if f.notify.count() != 1 || f.notify.vias[0] != matching.ViaAuto {
		t.Errorf("notifications = %d %v", f.notify.count(), f.notify.vias)
	}

	events, _ := f.events.Query(context.Background(), audit.QueryFilter{EventType: audit.EventGroupFormed})
	if len(events) != 1 {
		t.Errorf("group_formed events = %d, want 1", len(events))
	}
}

func TestRequestMatch_IdempotentForMatchedLearner(t *testing.T) {
	a := testutil.Learner("Ada")
	b := testutil.Learner("Bola")
	c := testutil.Learner("Chidi")
	f := newFixture(t, a, b, c)
	ctx := context.Background()

	first, err := f.engine.RequestMatch(ctx, a.ID)
	if err != nil || !first.Matched {
		t.Fatalf("first RequestMatch = %+v, %v", first, err)
	}
	second, err := f.engine.RequestMatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("second RequestMatch: %v", err)
	}
	if !second.Matched || !second.Existing || second.Group.ID != first.Group.ID {
		t.Errorf("second = %+v, want existing group %s", second, first.Group.ID)
	}
	if len(second.Group.Members) != 2 {
		t.Errorf("existing group has %d members", len(second.Group.Members))
	}
	if got := len(f.groupsByID(t)); got != 1 {
		t.Errorf("groups = %d, want 1", got)
	}
	if f.notify.count() != 1 {
		t.Errorf("notifications = %d, want 1", f.notify.count())
	}
}

func TestRequestMatch_NoCandidate(t *testing.T) {
	a := testutil.Learner("Alone")
	other := testutil.Learner("Other cohort", testutil.WithCohort("C2"))
	f := newFixture(t, a, other)

	res, err := f.engine.RequestMatch(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if res.Matched {
		t.Fatalf("result = %+v, want no match", res)
	}
	l := f.get(t, a.ID)
	if l.Matched || !l.MatchAttempted {
		t.Errorf("stored matched=%v attempted=%v", l.Matched, l.MatchAttempted)
	}
	events, _ := f.events.Query(context.Background(), audit.QueryFilter{EventType: audit.EventMatchNotFound})
	if len(events) != 1 {
		t.Errorf("match_not_found events = %d, want 1", len(events))
	}
}

func TestRequestMatch_UnknownLearner(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RequestMatch(context.Background(), "nope")
	if !errors.Is(err, learnerstore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRequestMatch_GlobalPairingScenario(t *testing.T) {
	a := testutil.Learner("A", testutil.WithProgram("AiCE"), testutil.WithCohort("17"), testutil.WithCountry("Nigeria"))
	b := testutil.Learner("B", testutil.WithProgram("AiCE"), testutil.WithCohort("17"), testutil.WithCountry("Ghana"))
	f := newFixture(t, a, b)
	ctx := context.Background()

	res, err := f.engine.RequestMatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if res.Matched {
		t.Fatalf("matched across countries without global pairing: %+v", res)
	}

	p := models.ProfileOf(a)
	p.OpenToGlobalPairing = true
	if err := f.backend.UpdateProfile(ctx, a.ID, p); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	res, err = f.engine.RequestMatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("RequestMatch after opt-in: %v", err)
	}
	if !res.Matched || !res.Group.Has(a.ID) || !res.Group.Has(b.ID) {
		t.Fatalf("result = %+v, want A and B grouped", res)
	}
}

func TestRequestMatch_PrefersComplementaryConnection(t *testing.T) {
	req := testutil.Learner("Needs help", testutil.WithConnection(models.ConnectionNeed))
	need := testutil.Learner("Also needs", testutil.WithConnection(models.ConnectionNeed))
	offer := testutil.Learner("Offers", testutil.WithConnection(models.ConnectionOffer))
	f := newFixture(t, req, need, offer)

	res, err := f.engine.RequestMatch(context.Background(), req.ID)
	if err != nil || !res.Matched {
		t.Fatalf("RequestMatch = %+v, %v", res, err)
	}
	if !res.Group.Has(offer.ID) {
		t.Errorf("paired with %v, want the offer learner", res.Group.MemberIDs())
	}
}

func TestRequestMatch_LikeConnectionsWhenNothingBetter(t *testing.T) {
	req := testutil.Learner("Offers", testutil.WithConnection(models.ConnectionOffer))
	other := testutil.Learner("Also offers", testutil.WithConnection(models.ConnectionOffer))
	f := newFixture(t, req, other)

	res, err := f.engine.RequestMatch(context.Background(), req.ID)
	if err != nil || !res.Matched {
		t.Fatalf("RequestMatch = %+v, %v; offer-offer should pair as a last resort", res, err)
	}
}

func TestRequestMatch_Triad(t *testing.T) {
	a := testutil.Learner("A", testutil.WithSetup(3))
	b := testutil.Learner("B", testutil.WithSetup(3))
	pair := testutil.Learner("Pair only")
	f := newFixture(t, a, b, pair)
	ctx := context.Background()

	res, err := f.engine.RequestMatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if res.Matched {
		t.Fatalf("formed %v with only one triad candidate", res.Group.MemberIDs())
	}

	c := testutil.Learner("C", testutil.WithSetup(3))
	if err := f.backend.Insert(ctx, c); err != nil {
		t.Fatal(err)
	}
	res, err = f.engine.RequestMatch(ctx, a.ID)
	if err != nil || !res.Matched {
		t.Fatalf("RequestMatch = %+v, %v", res, err)
	}
	if len(res.Group.Members) != 3 || res.Group.Has(pair.ID) {
		t.Errorf("triad = %v", res.Group.MemberIDs())
	}
}

func TestRequestMatch_ConcurrentLastPair(t *testing.T) {
	for i := 0; i < 50; i++ {
		a := testutil.Learner("A")
		b := testutil.Learner("B")
		f := newFixture(t, a, b)

		var wg sync.WaitGroup
		results := make([]matching.Result, 2)
		errs := make([]error, 2)
		for j, id := range []string{a.ID, b.ID} {
			wg.Add(1)
			go func(j int, id string) {
				defer wg.Done()
				results[j], errs[j] = f.engine.RequestMatch(context.Background(), id)
			}(j, id)
		}
		wg.Wait()

		for j := range errs {
			if errs[j] != nil {
				t.Fatalf("RequestMatch[%d]: %v", j, errs[j])
			}
			if results[j].Matched && results[j].Group.ID != results[1-j].Group.ID && results[1-j].Matched {
				t.Fatalf("two different groups: %s and %s", results[0].Group.ID, results[1].Group.ID)
			}
		}
		if got := len(f.groupsByID(t)); got != 1 {
			t.Fatalf("groups = %d, want exactly 1", got)
		}
		if f.notify.count() != 1 {
			t.Fatalf("notifications = %d, want 1", f.notify.count())
		}
	}
}

func TestRequestMatch_ConcurrentPoolKeepsMembershipUnique(t *testing.T) {
	var pool []models.Learner
	for i := 0; i < 40; i++ {
		conn := models.ConnectionFind
		switch i % 3 {
		case 1:
			conn = models.ConnectionOffer
		case 2:
			conn = models.ConnectionNeed
		}
		pool = append(pool, testutil.Learner(fmt.Sprintf("L%d", i), testutil.WithConnection(conn)))
	}
	f := newFixture(t, pool...)

	var wg sync.WaitGroup
	for _, l := range pool {
		for k := 0; k < 2; k++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := f.engine.RequestMatch(context.Background(), id); err != nil {
					t.Errorf("RequestMatch(%s): %v", id, err)
				}
			}(l.ID)
		}
	}
	wg.Wait()

	policy := f.engine.Policy()
	for gid, members := range f.groupsByID(t) {
		if len(members) != 2 {
			t.Errorf("group %s has %d members", gid, len(members))
		}
		if !policy.GroupCompatible(members) {
			t.Errorf("group %s is not compatible", gid)
		}
	}
	if got := f.notify.count(); got != len(f.groupsByID(t)) {
		t.Errorf("notifications = %d, groups = %d", got, len(f.groupsByID(t)))
	}
}

// conflictBackend loses every commit race.
type conflictBackend struct {
	learnerstore.Backend
	assigns atomic.Int32
}

func (c *conflictBackend) AssignGroup(context.Context, []models.Learner, string, time.Time) error {
	c.assigns.Add(1)
	return learnerstore.ErrConflict
}

func TestRequestMatch_BoundedRetries(t *testing.T) {
	a := testutil.Learner("A")
	b := testutil.Learner("B")
	cb := &conflictBackend{Backend: learnerstore.NewMemory()}
	f := newFixtureWith(t, cb, matching.Config{MaxRetries: 2}, a, b)

	res, err := f.engine.RequestMatch(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("RequestMatch: %v", err)
	}
	if res.Matched {
		t.Fatalf("result = %+v, want no match after retries", res)
	}
	if got := cb.assigns.Load(); got != 3 {
		t.Errorf("commit attempts = %d, want 3", got)
	}
	if f.get(t, a.ID).Matched || f.get(t, b.ID).Matched {
		t.Error("a failed commit left learners matched")
	}
}

// reregisterBackend applies a profile change right after the first
// waiting-pool read, the way a concurrent registration with the same email
// would.
type reregisterBackend struct {
	learnerstore.Backend
	id    string
	p     models.Profile
	fired atomic.Bool
	err   error
}

func (r *reregisterBackend) List(ctx context.Context, f learnerstore.Filter) ([]models.Learner, error) {
	out, err := r.Backend.List(ctx, f)
	if r.fired.CompareAndSwap(false, true) {
		r.err = r.Backend.UpdateProfile(ctx, r.id, r.p)
	}
	return out, err
}

func TestRequestMatch_ReregisterDuringSelection(t *testing.T) {
	tests := []struct {
		name      string
		withOther bool
	}{
		{"no other candidate", false},
		{"falls through to next candidate", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testutil.Learner("Bola")
			c := testutil.Learner("Chidi")
			a := testutil.Learner("Ada")
			learners := []models.Learner{b, a}
			if tt.withOther {
				learners = []models.Learner{b, c, a}
			}

			moved := models.ProfileOf(b)
			moved.Country = "Ghana"
			rb := &reregisterBackend{Backend: learnerstore.NewMemory(), id: b.ID, p: moved}
			f := newFixtureWith(t, rb, matching.Config{}, learners...)

			res, err := f.engine.RequestMatch(context.Background(), a.ID)
			if err != nil {
				t.Fatalf("RequestMatch: %v", err)
			}
			if rb.err != nil {
				t.Fatalf("re-register: %v", rb.err)
			}

			lb := f.get(t, b.ID)
			if lb.Matched || lb.Country != "Ghana" {
				t.Errorf("Bola = matched %v country %q, want waiting in Ghana", lb.Matched, lb.Country)
			}
			if !tt.withOther {
				if res.Matched {
					t.Fatalf("result = %v, want no match", res.Group.MemberIDs())
				}
				return
			}
			if !res.Matched || !res.Group.Has(c.ID) || res.Group.Has(b.ID) {
				t.Fatalf("result = %+v, want Ada with Chidi", res.Group.MemberIDs())
			}
			policy := f.engine.Policy()
			for gid, members := range f.groupsByID(t) {
				if !policy.GroupCompatible(members) {
					t.Errorf("group %s is not compatible as stored", gid)
				}
			}
		})
	}
}

// ctxBackend fails reads once the caller's context is done.
type ctxBackend struct {
	learnerstore.Backend
}

func (c ctxBackend) GetByID(ctx context.Context, id string) (models.Learner, error) {
	if err := ctx.Err(); err != nil {
		return models.Learner{}, err
	}
	return c.Backend.GetByID(ctx, id)
}

func (c ctxBackend) List(ctx context.Context, f learnerstore.Filter) ([]models.Learner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Backend.List(ctx, f)
}

func TestRequestMatch_OutlivesCallerCancel(t *testing.T) {
	a := testutil.Learner("A")
	b := testutil.Learner("B")
	f := newFixtureWith(t, ctxBackend{learnerstore.NewMemory()}, matching.Config{}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.engine.RequestMatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("RequestMatch with cancelled caller: %v", err)
	}
	if !res.Matched || !res.Group.Has(b.ID) {
		t.Errorf("result = %+v, want A paired with B", res)
	}
}

func TestAdminRandomPair(t *testing.T) {
	req := testutil.Learner("Req")
	wantsTriad := testutil.Learner("Wants three", testutil.WithSetup(3), testutil.WithConnection(models.ConnectionOffer))
	otherProgram := testutil.Learner("Elsewhere", testutil.WithProgram("VA"))
	f := newFixtureWith(t, learnerstore.NewMemory(),
		matching.Config{Rand: rand.New(rand.NewPCG(7, 7))}, req, wantsTriad, otherProgram)
	ctx := context.Background()

	res, err := f.engine.AdminRandomPair(ctx, req.ID)
	if err != nil {
		t.Fatalf("AdminRandomPair: %v", err)
	}
	if !res.Matched || !strings.HasPrefix(res.Group.ID, models.GroupPrefixRandom) {
		t.Fatalf("result = %+v, want random group", res)
	}
	if !res.Group.Has(wantsTriad.ID) || len(res.Group.Members) != 2 {
		t.Errorf("members = %v", res.Group.MemberIDs())
	}

	if _, err := f.engine.AdminRandomPair(ctx, req.ID); !errors.Is(err, matching.ErrAlreadyMatched) {
		t.Errorf("second AdminRandomPair err = %v, want ErrAlreadyMatched", err)
	}

	res, err = f.engine.AdminRandomPair(ctx, otherProgram.ID)
	if err != nil {
		t.Fatalf("AdminRandomPair(no peers): %v", err)
	}
	if res.Matched {
		t.Errorf("matched %v with no peers in program", res.Group.MemberIDs())
	}
}

func TestAdminRandomPair_RespectsHardConstraints(t *testing.T) {
	req := testutil.Learner("Nigeria")
	ghana := testutil.Learner("Ghana", testutil.WithCountry("Ghana"))
	f := newFixture(t, req, ghana)

	res, err := f.engine.AdminRandomPair(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("AdminRandomPair: %v", err)
	}
	if res.Matched {
		t.Errorf("random pairing bypassed country constraint: %v", res.Group.MemberIDs())
	}
}

func TestAdminManualPair(t *testing.T) {
	a := testutil.Learner("A", testutil.WithCountry("Nigeria"))
	b := testutil.Learner("B", testutil.WithCountry("Ghana"), testutil.WithModule("Module 4"))
	f := newFixture(t, a, b)

	if f.engine.Policy().Compatible(a, b) {
		t.Fatal("fixture learners should be incompatible")
	}
	g, err := f.engine.AdminManualPair(context.Background(), []string{a.ID, " " + b.ID + " "})
	if err != nil {
		t.Fatalf("AdminManualPair: %v", err)
	}
	if !strings.HasPrefix(g.ID, models.GroupPrefixManual) || len(g.Members) != 2 {
		t.Errorf("group = %+v", g)
	}
	if f.get(t, b.ID).GroupID != g.ID {
		t.Error("second learner not stored in the manual group")
	}
	if f.notify.vias[0] != matching.ViaManual {
		t.Errorf("via = %q", f.notify.vias[0])
	}
}

func TestAdminManualPair_Errors(t *testing.T) {
	a := testutil.Learner("A")
	b := testutil.Learner("B")
	taken := testutil.Learner("Taken", testutil.Matched("group-old"))
	f := newFixture(t, a, b, taken)
	ctx := context.Background()

	tests := []struct {
		name string
		ids  []string
		want error
	}{
		{"one learner", []string{a.ID}, matching.ErrGroupSize},
		{"duplicate ids", []string{a.ID, a.ID}, matching.ErrGroupSize},
		{"four learners", []string{a.ID, b.ID, taken.ID, "x"}, matching.ErrGroupSize},
		{"unknown learner", []string{a.ID, "missing"}, learnerstore.ErrNotFound},
		{"already matched", []string{a.ID, taken.ID}, matching.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.AdminManualPair(ctx, tt.ids)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if f.get(t, a.ID).Matched {
		t.Error("failed manual pair left a learner matched")
	}
}

func TestSweep(t *testing.T) {
	a := testutil.Learner("A")
	b := testutil.Learner("B")
	c := testutil.Learner("C", testutil.WithProgram("VA"))
	d := testutil.Learner("D", testutil.WithProgram("VA"))
	lonely := testutil.Learner("Lonely", testutil.WithCountry("Kenya"))
	f := newFixture(t, a, b, c, d, lonely)

	formed, err := f.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if formed != 2 {
		t.Errorf("formed = %d, want 2", formed)
	}
	if f.get(t, lonely.ID).Matched {
		t.Error("incompatible learner was matched")
	}
	if f.get(t, a.ID).GroupID != f.get(t, b.ID).GroupID {
		t.Error("A and B not grouped together")
	}
	for _, v := range f.notify.vias {
		if v != matching.ViaSweep {
			t.Errorf("via = %q, want sweep", v)
		}
	}

	formed, err = f.engine.Sweep(context.Background())
	if err != nil || formed != 0 {
		t.Errorf("second Sweep = %d, %v; want 0, nil", formed, err)
	}
}

func TestSweep_StopsOnCancelledContext(t *testing.T) {
	f := newFixture(t, testutil.Learner("A"), testutil.Learner("B"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.engine.Sweep(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	e := matching.New(learnerstore.New(learnerstore.NewMemory()), matching.Config{}, nil, nil, nil)
	if e.Policy().Mode != matchpolicy.ModeAll {
		t.Errorf("default mode = %q", e.Policy().Mode)
	}
}
