// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
//
// Each field takes one of:
//   - "all": MongoDB and zap
//   - "db": MongoDB only
//   - "log": zap only
//   - "off": disabled
type Config struct {
	// Matching covers registration, group formation and dissolution.
	Matching string
	// Admin covers admin actions and failed admin authentication.
	Admin string
}

// Logger records audit events to a Repository and to zap.
// A nil *Logger is valid and does nothing.
type Logger struct {
	store  audit.Repository
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store audit.Repository, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{store: store, zapLog: zapLog, config: config}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func userAgent(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.UserAgent()
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.String("actor", event.Actor),
		zap.Bool("success", event.Success),
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.LearnerID != "" {
		fields = append(fields, zap.String("learner_id", event.LearnerID))
	}
	if event.GroupID != "" {
		fields = append(fields, zap.String("group_id", event.GroupID))
	}
	if len(event.MemberIDs) > 0 {
		fields = append(fields, zap.Strings("member_ids", event.MemberIDs))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event according to the category's setting.
// Unknown categories are logged everywhere.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryMatching:
		setting = l.config.Matching
	case audit.CategoryAdmin:
		setting = l.config.Admin
	default:
		setting = "all"
	}
	if setting == "" {
		setting = "all"
	}
	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Matching events ---

// LearnerRegistered logs a new registration.
func (l *Logger) LearnerRegistered(ctx context.Context, learnerID, program, cohort string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMatching,
		EventType: audit.EventLearnerRegistered,
		LearnerID: learnerID,
		Actor:     audit.ActorLearner,
		Success:   true,
		Details:   map[string]string{"program": program, "cohort": cohort},
	})
}

// LearnerRefreshed logs a duplicate registration that refreshed a waiting
// learner's profile.
func (l *Logger) LearnerRefreshed(ctx context.Context, learnerID string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMatching,
		EventType: audit.EventLearnerRefreshed,
		LearnerID: learnerID,
		Actor:     audit.ActorLearner,
		Success:   true,
	})
}

// GroupFormed logs a new group. via is "auto", "random", "manual" or "sweep".
func (l *Logger) GroupFormed(ctx context.Context, groupID string, memberIDs []string, actor, via string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMatching,
		EventType: audit.EventGroupFormed,
		GroupID:   groupID,
		MemberIDs: memberIDs,
		Actor:     actor,
		Success:   true,
		Details: map[string]string{
			"via":  via,
			"size": strconv.Itoa(len(memberIDs)),
		},
	})
}

// MatchNotFound logs a match request that found no compatible peers.
func (l *Logger) MatchNotFound(ctx context.Context, learnerID, actor string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryMatching,
		EventType:     audit.EventMatchNotFound,
		LearnerID:     learnerID,
		Actor:         actor,
		Success:       false,
		FailureReason: "no compatible peers",
	})
}

// GroupDissolved logs a dissolved group.
func (l *Logger) GroupDissolved(ctx context.Context, groupID string, memberIDs []string, actor, reason string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMatching,
		EventType: audit.EventGroupDissolved,
		GroupID:   groupID,
		MemberIDs: memberIDs,
		Actor:     actor,
		Success:   true,
		Details:   map[string]string{"reason": reason},
	})
}

// LearnerLeft logs a learner leaving a group. remaining lists the members
// still in the group afterwards, empty when the group dissolved.
func (l *Logger) LearnerLeft(ctx context.Context, learnerID, groupID string, remaining []string, reason string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMatching,
		EventType: audit.EventLearnerLeft,
		LearnerID: learnerID,
		GroupID:   groupID,
		MemberIDs: remaining,
		Actor:     audit.ActorLearner,
		Success:   true,
		Details:   map[string]string{"reason": reason},
	})
}

// LearnerDeleted logs removal of a learner's record.
func (l *Logger) LearnerDeleted(ctx context.Context, learnerID, actor, reason string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMatching,
		EventType: audit.EventLearnerDeleted,
		LearnerID: learnerID,
		Actor:     actor,
		Success:   true,
		Details:   map[string]string{"reason": reason},
	})
}

// --- Admin events ---

// AdminAction logs a successful admin operation such as a random or manual
// pairing, an unpair or an export.
func (l *Logger) AdminAction(ctx context.Context, r *http.Request, eventType, groupID string, memberIDs []string, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: eventType,
		GroupID:   groupID,
		MemberIDs: memberIDs,
		Actor:     audit.ActorAdmin,
		IP:        clientIP(r),
		UserAgent: userAgent(r),
		Success:   true,
		Details:   details,
	})
}

// AdminAuthFailed logs a rejected admin credential.
func (l *Logger) AdminAuthFailed(ctx context.Context, r *http.Request, route string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAdmin,
		EventType:     audit.EventAdminAuthFailed,
		Actor:         audit.ActorAdmin,
		IP:            clientIP(r),
		UserAgent:     userAgent(r),
		Success:       false,
		FailureReason: "invalid password",
		Details:       map[string]string{"route": route},
	})
}

// AdminRateLimited logs an admin request refused by the rate limiter.
func (l *Logger) AdminRateLimited(ctx context.Context, r *http.Request, route string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAdmin,
		EventType:     audit.EventAdminRateLimited,
		Actor:         audit.ActorAdmin,
		IP:            clientIP(r),
		UserAgent:     userAgent(r),
		Success:       false,
		FailureReason: "rate limit exceeded",
		Details:       map[string]string{"route": route},
	})
}
