package treatment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/middleware"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func TestCreateTreatmentHandler(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.ledger.add("Botox", 10)
	body := `{"patientId":"` + f.patient.String() + `","date":"2024-05-01","value":"120.50","assets":[{"asset_id":"` + a.String() + `","qty":"1.5"}]}`

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)
	if err := h.CreateTreatment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["date"] != "2024-05-01" || got["value_paid"] != 120.5 || got["next_date"] != nil {
		t.Errorf("unexpected treatment: %v", got)
	}
	items := got["items"].([]interface{})
	item := items[0].(map[string]interface{})
	if item["asset_name"] != "Botox" || item["quantity"] != 1.5 || item["unit"] != "ml" {
		t.Errorf("unexpected item: %v", item)
	}
}

func TestCreateTreatmentHandler_Errors(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.ledger.add("Botox", 10)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"array body", `[]`, http.StatusBadRequest},
		{"no items", `{"patient_id":"` + f.patient.String() + `","date":"2024-05-01","items":[]}`, http.StatusBadRequest},
		{"garbage quantity", `{"patient_id":"` + f.patient.String() + `","date":"2024-05-01","items":[{"asset_id":"` + a.String() + `","quantity":"x"}]}`, http.StatusBadRequest},
		{"unknown asset", `{"patient_id":"` + f.patient.String() + `","date":"2024-05-01","items":[{"asset_id":"` + uuid.NewString() + `","quantity":1}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(http.MethodPost, "/", tt.body), httptest.NewRecorder())
			if got := statusOf(h.CreateTreatment(c)); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
	if len(f.repo.treatments) != 0 {
		t.Error("no treatment should have been written")
	}
}

func TestCreateTreatmentHandler_StorageError(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.ledger.add("Botox", 10)
	f.repo.failItems = errors.New("disk full")
	body := `{"patient_id":"` + f.patient.String() + `","date":"2024-05-01","items":[{"asset_id":"` + a.String() + `","quantity":1}]}`

	err := h.CreateTreatment(e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder()))
	if !errors.Is(err, ErrStorageWrite) {
		t.Fatalf("expected storage error to reach the error handler, got %v", err)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("message should carry the cause: %v", err)
	}
}

func TestCreatePatientTreatmentHandler(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.ledger.add("Botox", 10)
	body := `{"patient_id":"` + uuid.NewString() + `","date":"2024-05-01","items":[{"asset_id":"` + a.String() + `","quantity":1}]}`

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patient.String())
	if err := h.CreatePatientTreatment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestListTreatmentsHandler(t *testing.T) {
	h, f, e := newTestHandler()

	err := h.ListTreatments(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	if statusOf(err) != http.StatusBadRequest {
		t.Errorf("missing patientId: got %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?patientId="+f.patient.String(), nil), rec)
	if err := h.ListTreatments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestListPatientTreatmentsHandler(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.ledger.add("Botox", 10)
	if _, err := f.svc.CreateTreatment(context.Background(), f.request(line(a, 1.0))); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patient.String())
	if err := h.ListPatientTreatments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []View
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || len(got[0].Items) != 1 {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestGetTreatmentHandler(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if got := statusOf(h.GetTreatment(c)); got != http.StatusNotFound {
		t.Errorf("status = %d, want 404", got)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	if got := statusOf(h.GetTreatment(c)); got != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", got)
	}
}

func TestListApplicationsHandler(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.ledger.add("Botox", 10)
	r := f.request(line(a, 1.0))
	r.NextDate = "2024-08-15"
	if _, err := f.svc.CreateTreatment(context.Background(), r); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patient.String())
	if err := h.ListApplications(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"next_date":"2024-08-15"`) || !strings.Contains(rec.Body.String(), `"applications"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateTreatmentHandler_ChunkedBodyOverLimit(t *testing.T) {
	h, f, e := newTestHandler()
	a := f.ledger.add("Botox", 10)
	body := `{"patient_id":"` + f.patient.String() + `","date":"2024-05-01","items":[{"asset_id":"` + a.String() + `","quantity":1}],"notes":"` + strings.Repeat("x", 512) + `"}`

	req := jsonRequest(http.MethodPost, "/", body)
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	err := middleware.BodyLimit("256")(h.CreateTreatment)(c)
	if got := statusOf(err); got != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413 (%v)", got, err)
	}
	if len(f.repo.treatments) != 0 {
		t.Error("no treatment should have been written")
	}
}
