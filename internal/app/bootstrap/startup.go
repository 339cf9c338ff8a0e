// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/matching"
	"github.com/dalemusser/peerfinder/internal/app/policy/matchpolicy"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/adminauth"
	"github.com/dalemusser/peerfinder/internal/app/system/auditlog"
	"github.com/dalemusser/peerfinder/internal/app/system/mailer"
	"github.com/dalemusser/peerfinder/internal/app/system/ratelimit"
	"github.com/dalemusser/peerfinder/internal/app/system/snapshot"
	"github.com/dalemusser/peerfinder/internal/app/system/tasks"
	"github.com/dalemusser/peerfinder/internal/app/system/timeouts"
	"github.com/dalemusser/peerfinder/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// rateWindow is the window of the per-IP request limits.
const rateWindow = time.Minute

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the matching engine, the email notifier and the background jobs, and
// stores them in deps.Runtime.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Runtime == nil {
		return errors.New("startup: DBDeps.Runtime is nil")
	}
	rt := deps.Runtime

	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts configured from environment", zap.Int("overrides", n))
	}

	policy, err := matchpolicy.New(appCfg.MatchAxes, appCfg.MatchAxesMode)
	if err != nil {
		return err
	}
	admin, err := adminauth.New(appCfg.AdminPasswordHash, appCfg.AdminPassword)
	if err != nil {
		return err
	}

	rt.Store = learnerstore.New(deps.Learners)
	rt.Admin = admin
	rt.Audit = auditlog.New(deps.Events, logger, auditlog.Config{
		Matching: appCfg.AuditLogMatching,
		Admin:    appCfg.AuditLogAdmin,
	})

	rt.Notifier = mailer.NewNotifier(newSender(ctx, appCfg, logger), mailer.NotifierConfig{
		BaseURL:       appCfg.BaseURL,
		RatePerSecond: appCfg.MailRatePerSecond,
	}, logger)
	rt.Notifier.Start()

	rt.Engine = matching.New(rt.Store, matching.Config{
		Policy:                 policy,
		MaxRetries:             appCfg.MatchMaxRetries,
		RequeueResetsTimestamp: appCfg.RequeueResetsTimestamp,
	}, rt.Audit, rt.Notifier, logger)
	logger.Info("matching policy",
		zap.Any("axes", policy.Axes),
		zap.String("mode", string(policy.Mode)))

	if appCfg.RegisterRateLimit > 0 {
		rt.RegisterLimiter = ratelimit.New(appCfg.RegisterRateLimit, rateWindow)
	}
	if appCfg.AdminRateLimit > 0 {
		rt.AdminLimiter = ratelimit.New(appCfg.AdminRateLimit, rateWindow)
	}

	jobs := []tasks.Job{tasks.AutoMatchJob(rt.Engine, logger, appCfg.AutoMatchInterval)}
	if appCfg.SnapshotS3Bucket != "" {
		client, err := snapshot.NewS3Client(ctx, appCfg.SnapshotS3Region)
		if err != nil {
			logger.Error("S3 client init failed", zap.Error(err))
			return err
		}
		exporter := snapshot.New(client, snapshot.Config{
			Bucket: appCfg.SnapshotS3Bucket,
			Prefix: appCfg.SnapshotS3Prefix,
		}, rt.Store, deps.Feedback, logger)
		jobs = append(jobs, tasks.SnapshotExportJob(exporter, logger, appCfg.SnapshotInterval))
	}
	rt.Scheduler = workers.NewScheduler(logger, jobs...)
	rt.Scheduler.Start()

	return nil
}

// newSender returns a Gmail sender when accounts are configured and usable,
// otherwise a sender that only logs.
func newSender(ctx context.Context, appCfg AppConfig, logger *zap.Logger) mailer.Sender {
	if appCfg.GmailSenders == "" || appCfg.GmailClientID == "" {
		logger.Info("email notifications disabled; messages will be logged")
		return mailer.LogSender{Log: logger}
	}
	accounts, err := mailer.ParseAccounts(appCfg.GmailSenders)
	if err != nil {
		logger.Warn("gmail_senders could not be parsed; messages will be logged", zap.Error(err))
		return mailer.LogSender{Log: logger}
	}
	sender, err := mailer.NewGmailSender(ctx, mailer.GmailConfig{
		ClientID:       appCfg.GmailClientID,
		ClientSecret:   appCfg.GmailClientSecret,
		Accounts:       accounts,
		DefaultProgram: appCfg.GmailDefaultProgram,
	}, logger)
	if err != nil {
		logger.Warn("no usable Gmail account; messages will be logged", zap.Error(err))
		return mailer.LogSender{Log: logger}
	}
	return sender
}
