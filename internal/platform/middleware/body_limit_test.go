package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10MB", 10 << 20},
		{"512K", 512 << 10},
		{"512kb", 512 << 10},
		{"1G", 1 << 30},
		{"1024", 1024},
		{"", 1 << 20},
		{"invalid", 1 << 20},
		{"-5", 1 << 20},
	}

	for _, tt := range tests {
		if got := parseLimit(tt.input); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/assets", strings.NewReader(`{"name":"Botox"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}
		if len(b) == 0 {
			t.Error("expected non-empty body")
		}
		called = true
		return c.NoContent(http.StatusCreated)
	}

	if err := BodyLimit("1M")(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/treatments", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		t.Error("handler should not be called when body exceeds limit")
		return nil
	}

	err := BodyLimit("1K")(handler)(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestBodyLimit_RejectsWhileReading(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/treatments", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var readErr error
	handler := func(c echo.Context) error {
		_, readErr = io.ReadAll(c.Request().Body)
		return readErr
	}

	_ = BodyLimit("1K")(handler)(c)
	var httpErr *echo.HTTPError
	if !errors.As(readErr, &httpErr) || httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 while reading, got %v", readErr)
	}
}

func TestBodyError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"too large passes through", tooLarge(64), http.StatusRequestEntityTooLarge, "request body exceeds maximum allowed size of 64 bytes"},
		{"unsupported media type passes through", echo.ErrUnsupportedMediaType, http.StatusUnsupportedMediaType, "Unsupported Media Type"},
		{"binder 400 is normalized", echo.NewHTTPError(http.StatusBadRequest, "Syntax error: offset=1"), http.StatusBadRequest, "invalid JSON body"},
		{"decoder error", io.ErrUnexpectedEOF, http.StatusBadRequest, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := BodyError(tt.err)
			if he.Code != tt.code || he.Message != tt.message {
				t.Errorf("got %d %v, want %d %q", he.Code, he.Message, tt.code, tt.message)
			}
		})
	}
}
