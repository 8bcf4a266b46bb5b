package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/ferrum/internal/common"
)

func TestVersionHandler(t *testing.T) {
	h := NewAPIHandler(newTestStorage(t))

	req := httptest.NewRequest("GET", "/api/version", nil)
	rec := httptest.NewRecorder()
	h.VersionHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["name"] != "ferrum" {
		t.Errorf("expected name ferrum, got %q", body["name"])
	}
	if body["version"] != common.GetVersion() {
		t.Errorf("expected version %q, got %q", common.GetVersion(), body["version"])
	}
}

func TestVersionHandlerMethodNotAllowed(t *testing.T) {
	h := NewAPIHandler(newTestStorage(t))

	req := httptest.NewRequest("POST", "/api/version", nil)
	rec := httptest.NewRecorder()
	h.VersionHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewAPIHandler(newTestStorage(t))

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestHealthHandlerClosedStore(t *testing.T) {
	storage := newTestStorage(t)
	h := NewAPIHandler(storage)
	storage.Close()

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after the store is closed, got %d", rec.Code)
	}
}

func TestNotFoundHandler(t *testing.T) {
	h := NewAPIHandler(newTestStorage(t))

	req := httptest.NewRequest("GET", "/api/nope", nil)
	rec := httptest.NewRecorder()
	h.NotFoundHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["path"] != "/api/nope" {
		t.Errorf("expected path in body, got %v", body["path"])
	}
}
