package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/inventory"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/treatment"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:               "8000",
		Env:                "test",
		CORSOrigins:        []string{"*"},
		DefaultPhoneRegion: "BR",
		RequestTimeout:     5 * time.Second,
		BodyLimit:          "1M",
		ServiceName:        "clinica-backend",
	}
}

func serve(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := newServer(testConfig(), zerolog.New(io.Discard))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		OK bool   `json:"ok"`
		TS string `json:"ts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK {
		t.Error("expected ok=true")
	}
	if _, err := time.Parse(time.RFC3339, body.TS); err != nil {
		t.Errorf("ts not RFC3339: %q", body.TS)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestPing(t *testing.T) {
	rec := serve(t, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["service"] != "clinica-backend" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestUnknownRouteIsJSONError(t *testing.T) {
	rec := serve(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Errorf("expected error message, got %s", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(t, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("max age = %q", got)
	}
}

func TestRegisterAPI(t *testing.T) {
	cfg := testConfig()
	e := newServer(cfg, zerolog.New(io.Discard))
	inv := inventory.NewService(nil)
	registerAPI(e.Group("/api"),
		patient.NewHandler(patient.NewService(nil, cfg.DefaultPhoneRegion)),
		inventory.NewHandler(inv),
		treatment.NewHandler(treatment.NewService(nil, inv, nil)),
	)

	want := map[string]bool{
		"GET /api/patients":                  false,
		"POST /api/patients":                 false,
		"PATCH /api/patients/:id":            false,
		"DELETE /api/patients/:id":           false,
		"GET /api/patients/:id/treatments":   false,
		"POST /api/patients/:id/treatments":  false,
		"GET /api/patients/:id/applications": false,
		"GET /api/assets":                    false,
		"POST /api/assets":                   false,
		"PATCH /api/assets/:id":              false,
		"DELETE /api/assets/:id":             false,
		"GET /api/assets/export":             false,
		"GET /api/assets/:id/movements":      false,
		"GET /api/treatments":                false,
		"POST /api/treatments":               false,
		"GET /api/treatments/:id":            false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, seen := range want {
		if !seen {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestTreatmentValidationThroughStack(t *testing.T) {
	cfg := testConfig()
	e := newServer(cfg, zerolog.New(io.Discard))
	inv := inventory.NewService(nil)
	registerAPI(e.Group("/api"), treatment.NewHandler(treatment.NewService(nil, inv, nil)))

	req := httptest.NewRequest(http.MethodPost, "/api/treatments", strings.NewReader(`{"patient_id":"x","date":"2024-01-01","items":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "at least one item required" {
		t.Errorf("error = %q", body["error"])
	}
}
