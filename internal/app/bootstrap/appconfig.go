// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//
// The struct is passed to most lifecycle hooks, so any configuration
// needed during startup, request handling, or shutdown lives here.
type AppConfig struct {
	// Learner storage: "mongo" or "memory"
	StoreBackend string

	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Admin API
	AdminPassword          string // shared secret sent with admin requests
	AdminPasswordHash      string // bcrypt hash; wins over AdminPassword when set
	UnpairRequiresPassword bool
	AdminRateLimit         int // failed admin passwords per minute per IP
	RegisterRateLimit      int // registrations per minute per IP

	// Programs accepted at registration (e.g., VA, AiCE, PF)
	AllowedPrograms []string

	// Matching
	MatchAxes              []string // soft axes: country, availability, topic_module
	MatchAxesMode          string   // "all" or "any"
	MatchMaxRetries        int
	RequeueResetsTimestamp bool

	// Background jobs (0 disables)
	AutoMatchInterval time.Duration
	SnapshotInterval  time.Duration

	// S3 snapshot export
	SnapshotS3Region string
	SnapshotS3Bucket string
	SnapshotS3Prefix string

	// Gmail notifications
	GmailClientID       string
	GmailClientSecret   string
	GmailSenders        string // JSON {program:{email,token}}
	GmailDefaultProgram string
	MailRatePerSecond   float64

	// Base URL for status links in emails (the frontend origin)
	BaseURL string

	// Audit logging
	AuditLogMatching string // "all", "db", "log", or "off"
	AuditLogAdmin    string

	// Version reported by the health endpoint
	Version string
}
