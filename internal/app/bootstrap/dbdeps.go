// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/peerfinder/internal/app/matching"
	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	feedbackstore "github.com/dalemusser/peerfinder/internal/app/store/feedback"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/adminauth"
	"github.com/dalemusser/peerfinder/internal/app/system/auditlog"
	"github.com/dalemusser/peerfinder/internal/app/system/mailer"
	"github.com/dalemusser/peerfinder/internal/app/system/ratelimit"
	"github.com/dalemusser/peerfinder/internal/app/system/workers"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
// The Mongo fields are nil with the memory backend.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	Learners learnerstore.Backend
	Feedback feedbackstore.Repository
	Events   audit.Repository

	// Runtime is filled in by Startup and shared by BuildHandler and
	// Shutdown.
	Runtime *Runtime
}

// Runtime holds the long-lived services built once at startup.
type Runtime struct {
	Store     *learnerstore.Store
	Engine    *matching.Engine
	Audit     *auditlog.Logger
	Notifier  *mailer.Notifier
	Scheduler *workers.Scheduler
	Admin     adminauth.Authenticator

	RegisterLimiter *ratelimit.Limiter
	AdminLimiter    *ratelimit.Limiter
}
