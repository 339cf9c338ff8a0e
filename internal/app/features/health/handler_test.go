package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/peerfinder/internal/app/features/health"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"go.uber.org/zap"
)

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

type healthBody struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Message  string `json:"message"`
	Error    string `json:"error"`
}

func TestServe_DatabaseConnected(t *testing.T) {
	handler := health.NewHandler(learnerstore.NewMemory(), "2.0.0", zap.NewNop())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	handler.Serve(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", contentType, "application/json")
	}

	var response healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Status != "healthy" {
		t.Errorf("status: got %q, want %q", response.Status, "healthy")
	}
	if response.Database != "connected" {
		t.Errorf("database: got %q, want %q", response.Database, "connected")
	}
	if response.Version != "2.0.0" {
		t.Errorf("version: got %q, want %q", response.Version, "2.0.0")
	}
}

func TestServe_DatabaseDown(t *testing.T) {
	handler := health.NewHandler(downDB{}, "2.0.0", zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Serve(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	var response healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Status != "unhealthy" || response.Database != "disconnected" {
		t.Errorf("got status=%q database=%q", response.Status, response.Database)
	}
	if response.Error != "connection refused" {
		t.Errorf("error: got %q", response.Error)
	}
}

func TestRoutes(t *testing.T) {
	r := health.Routes(health.NewHandler(learnerstore.NewMemory(), "dev", zap.NewNop()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET / = %d, want %d", rec.Code, http.StatusOK)
	}
}
