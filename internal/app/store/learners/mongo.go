package learnerstore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/system/txn"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection is the learners collection name.
const Collection = "learners"

// Mongo is a Backend over the learners collection.
type Mongo struct {
	db  *mongo.Database
	c   *mongo.Collection
	log *zap.Logger
}

// NewMongo returns a Mongo backend on db.
func NewMongo(db *mongo.Database, log *zap.Logger) *Mongo {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mongo{db: db, c: db.Collection(Collection), log: log}
}

func (s *Mongo) Insert(ctx context.Context, l models.Learner) error {
	if _, err := s.c.InsertOne(ctx, l); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *Mongo) findOne(ctx context.Context, filter bson.M) (models.Learner, error) {
	var l models.Learner
	if err := s.c.FindOne(ctx, filter).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Learner{}, ErrNotFound
		}
		return models.Learner{}, err
	}
	return l, nil
}

func (s *Mongo) GetByID(ctx context.Context, id string) (models.Learner, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Mongo) GetByEmail(ctx context.Context, email string) (models.Learner, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func filterDoc(f Filter) bson.M {
	q := bson.M{}
	if f.Program != "" {
		q["program"] = f.Program
	}
	if f.Cohort != "" {
		q["cohort"] = f.Cohort
	}
	if f.Matched != nil {
		q["matched"] = *f.Matched
	}
	if f.ExcludeID != "" {
		q["_id"] = bson.M{"$ne": f.ExcludeID}
	}
	if f.Search != "" {
		q["$or"] = []bson.M{
			{"name_ci": bson.M{"$regex": regexp.QuoteMeta(text.Fold(f.Search))}},
			{"email": bson.M{"$regex": regexp.QuoteMeta(f.Search), "$options": "i"}},
		}
	}
	return q
}

var queueOrder = bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}

func (s *Mongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Learner, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Learner
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Mongo) List(ctx context.Context, f Filter) ([]models.Learner, error) {
	opts := options.Find().SetSort(queueOrder)
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return s.find(ctx, filterDoc(f), opts)
}

func (s *Mongo) ListByGroup(ctx context.Context, groupID string) ([]models.Learner, error) {
	if groupID == "" {
		return nil, nil
	}
	return s.find(ctx, bson.M{"group_id": groupID, "matched": true}, options.Find().SetSort(queueOrder))
}

func (s *Mongo) UpdateProfile(ctx context.Context, id string, p models.Profile) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "matched": false},
		bson.M{"$set": profileDoc(p)},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

func profileDoc(p models.Profile) bson.M {
	return bson.M{
		"country":                p.Country,
		"language":               p.Language,
		"topic_module":           p.TopicModule,
		"availability":           p.Availability,
		"learning_preferences":   p.LearningPreferences,
		"preferred_study_setup":  p.PreferredStudySetup,
		"connection_type":        p.ConnectionType,
		"kind_of_support":        p.KindOfSupport,
		"open_to_global_pairing": p.OpenToGlobalPairing,
	}
}

// assignGuard matches each member only while it is waiting with the
// profile it was selected on.
func assignGuard(members []models.Learner) bson.M {
	or := make([]bson.M, len(members))
	for i, m := range members {
		q := profileDoc(models.ProfileOf(m))
		q["_id"] = m.ID
		q["matched"] = false
		or[i] = q
	}
	return bson.M{"$or": or}
}

func (s *Mongo) missingOrConflict(ctx context.Context, id string) error {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// AssignGroup runs a conditional UpdateMany inside a transaction. When the
// deployment has no transactions and only some learners were updated, the
// partial assignment is reverted before ErrConflict is returned.
func (s *Mongo) AssignGroup(ctx context.Context, members []models.Learner, groupID string, at time.Time) error {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		res, err := s.c.UpdateMany(ctx,
			assignGuard(members),
			bson.M{"$set": bson.M{
				"matched":           true,
				"group_id":          groupID,
				"matched_timestamp": at,
				"match_attempted":   true,
				"unpair_reason":     "",
			}},
		)
		if err != nil {
			return err
		}
		if res.ModifiedCount == int64(len(ids)) {
			return nil
		}
		if _, rerr := s.c.UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": ids}, "group_id": groupID},
			bson.M{
				"$set":   bson.M{"matched": false, "group_id": ""},
				"$unset": bson.M{"matched_timestamp": ""},
			},
		); rerr != nil {
			s.log.Error("revert partial group assignment failed",
				zap.String("group_id", groupID), zap.Strings("ids", ids), zap.Error(rerr))
			return rerr
		}
		n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if cerr == nil && n < int64(len(ids)) {
			return ErrNotFound
		}
		return ErrConflict
	})
}

func releaseGuard(ids []string, groupID string) bson.M {
	if groupID == "" {
		return bson.M{"_id": bson.M{"$in": ids}, "matched": false}
	}
	return bson.M{"_id": bson.M{"$in": ids}, "matched": true, "group_id": groupID}
}

func (s *Mongo) Release(ctx context.Context, r Release) error {
	ids := r.IDs()
	if len(ids) == 0 {
		return nil
	}
	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		n, err := s.c.CountDocuments(ctx, releaseGuard(ids, r.GroupID))
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			total, err := s.c.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}})
			if err != nil {
				return err
			}
			if total != int64(len(ids)) {
				return ErrNotFound
			}
			return ErrConflict
		}
		if len(r.Keep) > 0 {
			if r.GroupID == "" {
				return ErrConflict
			}
			kept, err := s.c.CountDocuments(ctx, releaseGuard(r.Keep, r.GroupID))
			if err != nil {
				return err
			}
			if kept != int64(len(r.Keep)) {
				return ErrConflict
			}
		}

		if len(r.Clear) > 0 {
			if _, err := s.c.UpdateMany(ctx,
				releaseGuard(r.Clear, r.GroupID),
				bson.M{
					"$set":   bson.M{"matched": false, "group_id": "", "unpair_reason": r.Reason},
					"$unset": bson.M{"matched_timestamp": ""},
				},
			); err != nil {
				return err
			}
			for id, ts := range r.Requeue {
				if _, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"timestamp": ts}}); err != nil {
					return err
				}
			}
		}
		if len(r.Delete) > 0 {
			if _, err := s.c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": r.Delete}}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Mongo) MarkAttempted(ctx context.Context, id string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"match_attempted": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts runs one CountDocuments per figure. A failed count is returned as
// an error rather than shown as zero.
func (s *Mongo) Counts(ctx context.Context, f Filter) (Counts, error) {
	f.Matched = nil
	base := filterDoc(f)
	with := func(k string, v any) bson.M {
		q := bson.M{k: v}
		for bk, bv := range base {
			q[bk] = bv
		}
		return q
	}

	var c Counts
	var err error
	if c.Total, err = s.c.CountDocuments(ctx, base); err != nil {
		return Counts{}, err
	}
	if c.Matched, err = s.c.CountDocuments(ctx, with("matched", true)); err != nil {
		return Counts{}, err
	}
	if c.Offer, err = s.c.CountDocuments(ctx, with("connection_type", models.ConnectionOffer)); err != nil {
		return Counts{}, err
	}
	if c.Need, err = s.c.CountDocuments(ctx, with("connection_type", models.ConnectionNeed)); err != nil {
		return Counts{}, err
	}
	c.Pending = c.Total - c.Matched
	return c, nil
}

func (s *Mongo) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}
