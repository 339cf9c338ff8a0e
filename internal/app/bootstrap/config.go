// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dalemusser/peerfinder/internal/app/policy/matchpolicy"
	"github.com/dalemusser/peerfinder/internal/app/system/adminauth"
	"github.com/dalemusser/peerfinder/internal/app/system/normalize"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint. Release builds override it
// with -ldflags "-X".
var Version = "dev"

// Learner storage backends.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// appConfigKeys defines the configuration keys for PeerFinder.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, admin_password, etc.
//   - Environment variables: PEERFINDER_MONGO_URI, PEERFINDER_ADMIN_PASSWORD, etc.
//   - Command-line flags: --mongo_uri, --admin_password, etc.
var appConfigKeys = []config.AppKey{
	{Name: "store_backend", Default: BackendMongo, Desc: "Learner storage: 'mongo' or 'memory' (single process, not persisted)"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "peer_finder", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Admin API
	{Name: "admin_password", Default: "", Desc: "Shared admin password sent with admin requests"},
	{Name: "admin_password_hash", Default: "", Desc: "bcrypt hash of the admin password (wins over admin_password)"},
	{Name: "unpair_requires_password", Default: false, Desc: "Require the admin password on /api/unpair"},
	{Name: "admin_rate_limit", Default: 10, Desc: "Failed admin password attempts allowed per minute per IP"},
	{Name: "register_rate_limit", Default: 30, Desc: "Registrations allowed per minute per IP"},

	// Programs
	{Name: "allowed_programs", Default: "VA,AiCE,PF", Desc: "Comma-separated program codes accepted at registration"},

	// Matching
	{Name: "match_axes", Default: "country,availability,topic_module", Desc: "Soft match axes: country, availability, topic_module, language"},
	{Name: "match_axes_mode", Default: "all", Desc: "How many soft axes must agree: 'all' or 'any'"},
	{Name: "match_max_retries", Default: 3, Desc: "Commit retries after losing a race for a candidate"},
	{Name: "requeue_resets_timestamp", Default: true, Desc: "Move a learner who leaves a group to the back of the queue"},

	// Background jobs
	{Name: "auto_match_interval", Default: "0", Desc: "Interval of the automatic match sweep (e.g., 5m); 0 disables"},
	{Name: "snapshot_interval", Default: "0", Desc: "Interval of the S3 CSV snapshot (e.g., 1h); 0 disables"},

	// S3 snapshot export
	{Name: "snapshot_s3_region", Default: "", Desc: "AWS region for snapshot uploads"},
	{Name: "snapshot_s3_bucket", Default: "", Desc: "S3 bucket for snapshot uploads"},
	{Name: "snapshot_s3_prefix", Default: "peerfinder/", Desc: "S3 key prefix for snapshot uploads"},

	// Gmail notifications
	{Name: "gmail_client_id", Default: "", Desc: "Google OAuth2 client ID for the Gmail API"},
	{Name: "gmail_client_secret", Default: "", Desc: "Google OAuth2 client secret for the Gmail API"},
	{Name: "gmail_senders", Default: "", Desc: "JSON map of program to {email, token} sender accounts"},
	{Name: "gmail_default_program", Default: "PF", Desc: "Program whose sender is used when a program has none"},
	{Name: "mail_rate_per_second", Default: "2", Desc: "Maximum outbound emails per second"},

	// Base URL for status links in emails
	{Name: "base_url", Default: "http://localhost:5173", Desc: "Frontend base URL for status links in emails"},

	// Audit logging settings
	{Name: "audit_log_matching", Default: "all", Desc: "Matching event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, PEERFINDER_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "PEERFINDER", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	mailRate, err := strconv.ParseFloat(appValues.String("mail_rate_per_second"), 64)
	if err != nil {
		return nil, AppConfig{}, fmt.Errorf("mail_rate_per_second: %w", err)
	}

	appCfg := AppConfig{
		StoreBackend:     normalize.LowerToken(appValues.String("store_backend")),
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		// Admin API
		AdminPassword:          appValues.String("admin_password"),
		AdminPasswordHash:      appValues.String("admin_password_hash"),
		UnpairRequiresPassword: appValues.Bool("unpair_requires_password"),
		AdminRateLimit:         appValues.Int("admin_rate_limit"),
		RegisterRateLimit:      appValues.Int("register_rate_limit"),

		AllowedPrograms: normalize.List(appValues.String("allowed_programs")),

		// Matching
		MatchAxes:              normalize.List(appValues.String("match_axes")),
		MatchAxesMode:          normalize.LowerToken(appValues.String("match_axes_mode")),
		MatchMaxRetries:        appValues.Int("match_max_retries"),
		RequeueResetsTimestamp: appValues.Bool("requeue_resets_timestamp"),

		// Background jobs
		AutoMatchInterval: appValues.Duration("auto_match_interval", 0),
		SnapshotInterval:  appValues.Duration("snapshot_interval", 0),

		// S3 snapshot
		SnapshotS3Region: appValues.String("snapshot_s3_region"),
		SnapshotS3Bucket: appValues.String("snapshot_s3_bucket"),
		SnapshotS3Prefix: appValues.String("snapshot_s3_prefix"),

		// Gmail
		GmailClientID:       appValues.String("gmail_client_id"),
		GmailClientSecret:   appValues.String("gmail_client_secret"),
		GmailSenders:        appValues.String("gmail_senders"),
		GmailDefaultProgram: normalize.Token(appValues.String("gmail_default_program")),
		MailRatePerSecond:   mailRate,

		BaseURL: appValues.String("base_url"),

		// Audit logging
		AuditLogMatching: appValues.String("audit_log_matching"),
		AuditLogAdmin:    appValues.String("audit_log_admin"),

		Version: Version,
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Misconfiguration is caught here, before any connection is attempted.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
	case BackendMemory:
		logger.Warn("memory store backend selected; learners are lost on restart")
	default:
		return fmt.Errorf("unknown store_backend %q (want %s or %s)", appCfg.StoreBackend, BackendMongo, BackendMemory)
	}

	if _, err := matchpolicy.New(appCfg.MatchAxes, appCfg.MatchAxesMode); err != nil {
		return err
	}

	if _, err := adminauth.New(appCfg.AdminPasswordHash, appCfg.AdminPassword); err != nil {
		return fmt.Errorf("admin credential: %w", err)
	}

	if len(appCfg.AllowedPrograms) == 0 {
		return errors.New("allowed_programs must list at least one program")
	}

	if appCfg.AutoMatchInterval < 0 || appCfg.SnapshotInterval < 0 {
		return errors.New("job intervals must not be negative")
	}
	if appCfg.SnapshotInterval > 0 && appCfg.SnapshotS3Bucket == "" {
		return errors.New("snapshot_interval requires snapshot_s3_bucket")
	}
	if appCfg.MailRatePerSecond <= 0 {
		return errors.New("mail_rate_per_second must be positive")
	}

	return nil
}
