package learnerstore_test

import (
	"errors"
	"testing"
	"time"

	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/indexes"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	"github.com/dalemusser/peerfinder/internal/testutil"
	"go.uber.org/zap"
)

// backends runs fn against every Backend implementation. The Mongo variant
// is skipped when no server is reachable.
func backends(t *testing.T, fn func(t *testing.T, b learnerstore.Backend)) {
	t.Run("memory", func(t *testing.T) { fn(t, learnerstore.NewMemory()) })
	t.Run("mongo", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		ctx, cancel := testutil.TestContext()
		defer cancel()
		if err := indexes.EnsureAll(ctx, db); err != nil {
			t.Fatalf("EnsureAll failed: %v", err)
		}
		fn(t, learnerstore.NewMongo(db, zap.NewNop()))
	})
}

func insert(t *testing.T, b learnerstore.Backend, ls ...models.Learner) {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	for _, l := range ls {
		if err := b.Insert(ctx, l); err != nil {
			t.Fatalf("Insert(%s) failed: %v", l.ID, err)
		}
	}
}

func TestBackend_InsertAndGet(t *testing.T) {
	backends(t, func(t *testing.T, b learnerstore.Backend) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		ada := testutil.Learner("Ada", testutil.WithEmail("ada@example.com"))
		insert(t, b, ada)

		got, err := b.GetByID(ctx, ada.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got.Name != "Ada" || got.Email != "ada@example.com" {
			t.Errorf("unexpected learner %+v", got)
		}

		byEmail, err := b.GetByEmail(ctx, "ada@example.com")
		if err != nil || byEmail.ID != ada.ID {
			t.Errorf("GetByEmail = %v, %v", byEmail.ID, err)
		}

		if _, err := b.GetByID(ctx, "missing"); !errors.Is(err, learnerstore.ErrNotFound) {
			t.Errorf("GetByID(missing) err = %v, want ErrNotFound", err)
		}

		dup := testutil.Learner("Ada Again", testutil.WithEmail("ada@example.com"))
		if err := b.Insert(ctx, dup); !errors.Is(err, learnerstore.ErrDuplicateEmail) {
			t.Errorf("duplicate Insert err = %v, want ErrDuplicateEmail", err)
		}
	})
}

func TestBackend_ListQueueOrderAndFilter(t *testing.T) {
	backends(t, func(t *testing.T, b learnerstore.Backend) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
		late := testutil.Learner("Late", testutil.WithTimestamp(t0.Add(time.Hour)))
		early := testutil.Learner("Early", testutil.WithTimestamp(t0))
		other := testutil.Learner("Other", testutil.WithProgram("VA"), testutil.WithTimestamp(t0))
		taken := testutil.Learner("Taken", testutil.Matched("group-x"), testutil.WithTimestamp(t0))
		insert(t, b, late, early, other, taken)

		unmatched := false
		got, err := b.List(ctx, learnerstore.Filter{Program: "PF", Matched: &unmatched})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 2 || got[0].ID != early.ID || got[1].ID != late.ID {
			t.Fatalf("List = %v, want [Early Late]", names(got))
		}

		got, err = b.List(ctx, learnerstore.Filter{Search: "tak"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != taken.ID {
			t.Errorf("search List = %v, want [Taken]", names(got))
		}
	})
}

func TestBackend_AssignGroupAllOrNothing(t *testing.T) {
	backends(t, func(t *testing.T, b learnerstore.Backend) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		a := testutil.Learner("A")
		c := testutil.Learner("C")
		busy := testutil.Learner("Busy", testutil.Matched("group-old"))
		insert(t, b, a, c, busy)

		at := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
		err := b.AssignGroup(ctx, []models.Learner{a, busy}, "group-new", at)
		if !errors.Is(err, learnerstore.ErrConflict) {
			t.Fatalf("AssignGroup with matched member err = %v, want ErrConflict", err)
		}
		if got, _ := b.GetByID(ctx, a.ID); got.Matched || got.GroupID != "" {
			t.Errorf("partial assignment left A as %+v", got)
		}
		if got, _ := b.GetByID(ctx, busy.ID); got.GroupID != "group-old" {
			t.Errorf("busy learner moved to %q", got.GroupID)
		}

		if err := b.AssignGroup(ctx, []models.Learner{a, c}, "group-new", at); err != nil {
			t.Fatalf("AssignGroup failed: %v", err)
		}
		members, err := b.ListByGroup(ctx, "group-new")
		if err != nil {
			t.Fatalf("ListByGroup failed: %v", err)
		}
		if len(members) != 2 {
			t.Fatalf("group-new has %d members, want 2", len(members))
		}
		for _, m := range members {
			if !m.Matched || !m.MatchAttempted || m.MatchedTimestamp == nil {
				t.Errorf("member %s not fully marked: %+v", m.ID, m)
			}
		}
	})
}

func TestBackend_AssignGroupRejectsChangedProfile(t *testing.T) {
	backends(t, func(t *testing.T, b learnerstore.Backend) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		a := testutil.Learner("A")
		c := testutil.Learner("C")
		insert(t, b, a, c)

		moved := models.ProfileOf(c)
		moved.Country = "Ghana"
		if err := b.UpdateProfile(ctx, c.ID, moved); err != nil {
			t.Fatalf("UpdateProfile failed: %v", err)
		}

		at := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
		err := b.AssignGroup(ctx, []models.Learner{a, c}, "group-stale", at)
		if !errors.Is(err, learnerstore.ErrConflict) {
			t.Fatalf("AssignGroup with stale profile err = %v, want ErrConflict", err)
		}
		for _, id := range []string{a.ID, c.ID} {
			if got, _ := b.GetByID(ctx, id); got.Matched || got.GroupID != "" {
				t.Errorf("%s assigned despite stale profile: %+v", id, got)
			}
		}

		fresh, _ := b.GetByID(ctx, c.ID)
		if err := b.AssignGroup(ctx, []models.Learner{a, fresh}, "group-fresh", at); err != nil {
			t.Fatalf("AssignGroup with current profile failed: %v", err)
		}
	})
}

func TestBackend_Release(t *testing.T) {
	backends(t, func(t *testing.T, b learnerstore.Backend) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		x := testutil.Learner("X", testutil.Matched("group-t"))
		y := testutil.Learner("Y", testutil.Matched("group-t"))
		z := testutil.Learner("Z", testutil.Matched("group-t"))
		stranger := testutil.Learner("Stranger", testutil.Matched("group-other"))
		insert(t, b, x, y, z, stranger)

		err := b.Release(ctx, learnerstore.Release{GroupID: "group-t", Clear: []string{x.ID, stranger.ID}})
		if !errors.Is(err, learnerstore.ErrConflict) {
			t.Fatalf("Release across groups err = %v, want ErrConflict", err)
		}

		requeued := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		err = b.Release(ctx, learnerstore.Release{
			GroupID: "group-t",
			Clear:   []string{x.ID},
			Reason:  "User Requested",
			Requeue: map[string]time.Time{x.ID: requeued},
		})
		if err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		gotX, _ := b.GetByID(ctx, x.ID)
		if gotX.Matched || gotX.GroupID != "" || gotX.UnpairReason != "User Requested" {
			t.Errorf("X after release = %+v", gotX)
		}
		if !gotX.Timestamp.Equal(requeued) {
			t.Errorf("X timestamp = %v, want %v", gotX.Timestamp, requeued)
		}
		rest, _ := b.ListByGroup(ctx, "group-t")
		if len(rest) != 2 {
			t.Errorf("group-t has %d members after one left, want 2", len(rest))
		}

		if err := b.Release(ctx, learnerstore.Release{GroupID: "group-t", Delete: []string{y.ID}, Clear: []string{z.ID}}); err != nil {
			t.Fatalf("Release delete failed: %v", err)
		}
		if _, err := b.GetByID(ctx, y.ID); !errors.Is(err, learnerstore.ErrNotFound) {
			t.Errorf("deleted learner still present: %v", err)
		}
		if _, err := b.GetByEmail(ctx, y.Email); !errors.Is(err, learnerstore.ErrNotFound) {
			t.Errorf("deleted learner email still indexed: %v", err)
		}
	})
}

func TestBackend_ReleaseChecksKeptMembers(t *testing.T) {
	backends(t, func(t *testing.T, b learnerstore.Backend) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		a := testutil.Learner("A", testutil.Matched("group-k"))
		bb := testutil.Learner("B", testutil.Matched("group-k"))
		c := testutil.Learner("C", testutil.Matched("group-k"))
		insert(t, b, a, bb, c)

		if err := b.Release(ctx, learnerstore.Release{GroupID: "group-k", Clear: []string{bb.ID}, Keep: []string{a.ID, c.ID}}); err != nil {
			t.Fatalf("Release B failed: %v", err)
		}

		// A still believes B is in the group.
		err := b.Release(ctx, learnerstore.Release{GroupID: "group-k", Clear: []string{a.ID}, Keep: []string{bb.ID, c.ID}})
		if !errors.Is(err, learnerstore.ErrConflict) {
			t.Fatalf("Release with stale Keep err = %v, want ErrConflict", err)
		}
		if got, _ := b.GetByID(ctx, a.ID); !got.Matched || got.GroupID != "group-k" {
			t.Errorf("A changed by a rejected release: %+v", got)
		}

		if err := b.Release(ctx, learnerstore.Release{GroupID: "group-k", Clear: []string{a.ID, c.ID}}); err != nil {
			t.Fatalf("Release A and C failed: %v", err)
		}
		if rest, _ := b.ListByGroup(ctx, "group-k"); len(rest) != 0 {
			t.Errorf("group-k has %d members after dissolving, want 0", len(rest))
		}
	})
}

func TestBackend_UpdateProfileOnlyWhileWaiting(t *testing.T) {
	backends(t, func(t *testing.T, b learnerstore.Backend) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		waiting := testutil.Learner("Waiting")
		paired := testutil.Learner("Paired", testutil.Matched("group-p"))
		insert(t, b, waiting, paired)

		p := models.ProfileOf(waiting)
		p.Country = "Ghana"
		if err := b.UpdateProfile(ctx, waiting.ID, p); err != nil {
			t.Fatalf("UpdateProfile failed: %v", err)
		}
		if got, _ := b.GetByID(ctx, waiting.ID); got.Country != "Ghana" {
			t.Errorf("country = %q, want Ghana", got.Country)
		}
		if err := b.UpdateProfile(ctx, paired.ID, p); !errors.Is(err, learnerstore.ErrConflict) {
			t.Errorf("UpdateProfile on matched err = %v, want ErrConflict", err)
		}
		if err := b.UpdateProfile(ctx, "nobody", p); !errors.Is(err, learnerstore.ErrNotFound) {
			t.Errorf("UpdateProfile on missing err = %v, want ErrNotFound", err)
		}
	})
}

func TestBackend_Counts(t *testing.T) {
	backends(t, func(t *testing.T, b learnerstore.Backend) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		insert(t, b,
			testutil.Learner("O", testutil.WithConnection(models.ConnectionOffer)),
			testutil.Learner("N", testutil.WithConnection(models.ConnectionNeed), testutil.Matched("g1")),
			testutil.Learner("F"),
			testutil.Learner("V", testutil.WithProgram("VA")),
		)

		c, err := b.Counts(ctx, learnerstore.Filter{Program: "PF"})
		if err != nil {
			t.Fatalf("Counts failed: %v", err)
		}
		want := learnerstore.Counts{Total: 3, Matched: 1, Pending: 2, Offer: 1, Need: 1}
		if c != want {
			t.Errorf("Counts = %+v, want %+v", c, want)
		}
	})
}

func TestStore_Register(t *testing.T) {
	s := learnerstore.New(learnerstore.NewMemory())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	in := models.Learner{
		Name:           "  Ada   Obi ",
		Email:          " ADA@Example.com",
		Phone:          "+234 801 234 5678",
		Program:        "PF",
		Cohort:         "C1",
		Country:        "Nigeria",
		ConnectionType: "FIND",
	}
	first, err := s.Register(ctx, in)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if first.Duplicate {
		t.Fatal("first registration reported as duplicate")
	}
	l := first.Learner
	if l.ID == "" || l.Email != "ada@example.com" || l.Name != "Ada Obi" || l.Phone != "+2348012345678" {
		t.Errorf("registration not normalised: %+v", l)
	}
	if l.ConnectionType != models.ConnectionFind || l.PreferredStudySetup != 2 || l.Matched {
		t.Errorf("unexpected defaults: %+v", l)
	}

	in.Country = "Ghana"
	second, err := s.Register(ctx, in)
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
	if !second.Duplicate || !second.Refreshed || second.Learner.ID != l.ID {
		t.Fatalf("second registration = %+v, want refreshed duplicate of %s", second, l.ID)
	}
	if got, _ := s.Get(ctx, l.ID); got.Country != "Ghana" {
		t.Errorf("profile not refreshed, country = %q", got.Country)
	}

	all, _ := s.List(ctx, learnerstore.Filter{})
	if len(all) != 1 {
		t.Errorf("expected exactly one record, got %d", len(all))
	}
}

func TestStore_RegisterMatchedDuplicateUnchanged(t *testing.T) {
	mem := learnerstore.NewMemory()
	s := learnerstore.New(mem)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	paired := testutil.Learner("Paired", testutil.WithEmail("p@example.com"), testutil.Matched("group-z"))
	insert(t, mem, paired)

	res, err := s.Register(ctx, models.Learner{Name: "Paired", Email: "P@example.com", Country: "Kenya"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !res.Duplicate || res.Refreshed || !res.Learner.Matched {
		t.Errorf("Register = %+v, want unrefreshed matched duplicate", res)
	}
	if got, _ := s.Get(ctx, paired.ID); got.Country != paired.Country {
		t.Errorf("matched learner profile changed to %q", got.Country)
	}
}

func TestStore_Resolve(t *testing.T) {
	mem := learnerstore.NewMemory()
	s := learnerstore.New(mem)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	l := testutil.Learner("Lookup", testutil.WithEmail("look@example.com"))
	insert(t, mem, l)

	byEmail, err := s.Resolve(ctx, " Look@Example.com ")
	if err != nil || byEmail.ID != l.ID {
		t.Errorf("Resolve(email) = %v, %v", byEmail.ID, err)
	}
	byID, err := s.Resolve(ctx, l.ID)
	if err != nil || byID.ID != l.ID {
		t.Errorf("Resolve(id) = %v, %v", byID.ID, err)
	}
}

func names(ls []models.Learner) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Name
	}
	return out
}
