package inventory

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
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/middleware"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
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

func TestCreateAssetHandler(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"name":"Botox","laboratory":"Allergan","quantity":"50","unit":"UN"}`), rec)

	if err := h.CreateAsset(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var body struct {
		Item map[string]interface{} `json:"item"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Item["unit"] != "un" {
		t.Errorf("unit = %v, want un", body.Item["unit"])
	}
	if body.Item["quantity"] != float64(50) {
		t.Errorf("quantity = %v, want 50", body.Item["quantity"])
	}
}

func TestCreateAssetHandler_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	for _, body := range []string{`{"name":"X"}`, `{bad json`, `{"name":"X","laboratory":"Y","quantity":0}`} {
		c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())
		if err := h.CreateAsset(c); statusOf(err) != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %v", body, err)
		}
	}
}

func TestListAssetsHandler(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := h.ListAssets(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"items":[]}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestUpdateAssetHandler(t *testing.T) {
	h, e := newTestHandler()
	a := seedAsset(t, h.svc, 2.0)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, `{"quantity":8}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.UpdateAsset(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(jsonRequest(http.MethodPatch, `{"quantity":8}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if err := h.UpdateAsset(c); statusOf(err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}

	c = e.NewContext(jsonRequest(http.MethodPatch, `{}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if err := h.UpdateAsset(c); statusOf(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestDeleteAssetHandler(t *testing.T) {
	h, e := newTestHandler()
	a := seedAsset(t, h.svc, 2.0)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.DeleteAsset(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestExportAssetsHandler(t *testing.T) {
	h, e := newTestHandler()
	seedAsset(t, h.svc, 2.0)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := h.ExportAssets(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != ExportContentType {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "inventory.xlsx") {
		t.Errorf("missing attachment filename")
	}
	if rec.Body.Len() == 0 {
		t.Error("empty workbook")
	}
}

func TestListMovementsHandler(t *testing.T) {
	h, e := newTestHandler()
	a := seedAsset(t, h.svc, 5.0)
	if _, err := h.svc.DecrementStock(context.Background(), Decrement{AssetID: a.ID, Amount: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=10", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.ListMovements(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Movement `json:"data"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || len(body.Data) != 1 {
		t.Errorf("total=%d len=%d", body.Total, len(body.Data))
	}
}

func TestCreateAssetHandler_BodyErrors(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(jsonRequest(http.MethodPost, `{"name":`), httptest.NewRecorder())
	err := h.CreateAsset(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest || he.Message != "invalid JSON body" {
		t.Errorf("malformed body: got %v", err)
	}

	req := jsonRequest(http.MethodPost, `{"name":"Botox","laboratory":"`+strings.Repeat("x", 512)+`","quantity":1}`)
	req.ContentLength = -1
	c = e.NewContext(req, httptest.NewRecorder())
	if got := statusOf(middleware.BodyLimit("128")(h.CreateAsset)(c)); got != http.StatusRequestEntityTooLarge {
		t.Errorf("chunked body over limit: status = %d, want 413", got)
	}
}
