package auditlog_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/peerfinder/internal/app/store/audit"
	"github.com/dalemusser/peerfinder/internal/app/system/auditlog"
	"github.com/dalemusser/peerfinder/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	// nil logger should be a no-op (not panic)
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()
	req := httptest.NewRequest("GET", "/", nil)

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.GroupFormed(ctx, "group-x", []string{"a", "b"}, audit.ActorLearner, "auto")
	logger.AdminAuthFailed(ctx, req, "/api/admin/data")
}

func TestLogger_Log_ConfigOff(t *testing.T) {
	store := audit.NewMemory()
	core, logs := observer.New(zap.DebugLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.New(core), auditlog.Config{Matching: "off", Admin: "off"})
	logger.LearnerRegistered(ctx, "l1", "PF", "C1")

	events, _ := store.Query(ctx, audit.QueryFilter{})
	if len(events) != 0 {
		t.Errorf("expected no stored events when config is 'off', got %d", len(events))
	}
	if logs.Len() != 0 {
		t.Errorf("expected no zap entries when config is 'off', got %d", logs.Len())
	}
}

func TestLogger_Log_ConfigDB(t *testing.T) {
	store := audit.NewMemory()
	core, logs := observer.New(zap.DebugLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.New(core), auditlog.Config{Matching: "db", Admin: "db"})
	logger.GroupDissolved(ctx, "group-1", []string{"a", "b"}, audit.ActorAdmin, "Admin Dissolved Group")

	events, _ := store.Query(ctx, audit.QueryFilter{GroupID: "group-1"})
	if len(events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(events))
	}
	if events[0].Details["reason"] != "Admin Dissolved Group" {
		t.Errorf("reason = %q", events[0].Details["reason"])
	}
	if logs.Len() != 0 {
		t.Errorf("expected no zap entries for 'db', got %d", logs.Len())
	}
}

func TestLogger_Log_ConfigLog(t *testing.T) {
	store := audit.NewMemory()
	core, logs := observer.New(zap.DebugLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.New(core), auditlog.Config{Matching: "all", Admin: "log"})
	req := httptest.NewRequest("POST", "/api/admin/data", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	logger.AdminAuthFailed(ctx, req, "/api/admin/data")

	events, _ := store.Query(ctx, audit.QueryFilter{})
	if len(events) != 0 {
		t.Errorf("expected no stored events for 'log', got %d", len(events))
	}
	entries := logs.FilterField(zap.String("ip", "203.0.113.9")).All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 zap entry with client ip, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("failed events should log at warn, got %v", entries[0].Level)
	}
}
