package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func render(t *testing.T, method string, err error) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/api/v1/requests", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	Handler(zerolog.Nop())(err, c)

	var env Envelope
	if method != http.MethodHead {
		if jerr := json.Unmarshal(rec.Body.Bytes(), &env); jerr != nil {
			t.Fatalf("decode body: %v (%s)", jerr, rec.Body.String())
		}
	}
	return rec, env
}

func TestHandler_BodyPassthrough(t *testing.T) {
	rec, env := render(t, http.MethodPost,
		New(http.StatusConflict, "InvalidStateTransition", "already decided", map[string]string{"status": "approved"}))

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if env.Error.Kind != "InvalidStateTransition" || env.Error.Message != "already decided" {
		t.Errorf("unexpected body %+v", env.Error)
	}
	if env.Error.Details == nil {
		t.Error("expected details")
	}
}

func TestHandler_StringMessage(t *testing.T) {
	rec, env := render(t, http.MethodGet, echo.NewHTTPError(http.StatusForbidden, "required capability: review"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if env.Error.Kind != "Forbidden" {
		t.Errorf("expected Forbidden kind, got %s", env.Error.Kind)
	}
}

func TestHandler_PlainErrorHidesText(t *testing.T) {
	rec, env := render(t, http.MethodGet, errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if env.Error.Message != "internal server error" {
		t.Errorf("internal error text leaked: %q", env.Error.Message)
	}
}

func TestHandler_Head(t *testing.T) {
	rec, _ := render(t, http.MethodHead, echo.ErrNotFound)
	if rec.Code != http.StatusNotFound || rec.Body.Len() != 0 {
		t.Errorf("expected empty 404, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestKindForStatus(t *testing.T) {
	tests := map[int]string{
		http.StatusUnauthorized:        "UnauthenticatedSubmitter",
		http.StatusTooManyRequests:     "RateLimited",
		http.StatusServiceUnavailable:  "StoreUnavailable",
		http.StatusTeapot:              "Internal",
		http.StatusUnprocessableEntity: "MalformedPayload",
	}
	for status, want := range tests {
		if got := KindForStatus(status); got != want {
			t.Errorf("KindForStatus(%d) = %s, want %s", status, got, want)
		}
	}
}
