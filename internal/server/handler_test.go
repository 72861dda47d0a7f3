package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/orders"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestWriteErrorMapsDomainErrors(t *testing.T) {
	h := &Handler{logger: logger.Discard()}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"permission", &orders.PermissionDeniedError{}, http.StatusForbidden, orders.ReasonPermissionDenied},
		{"validation", &orders.ValidationError{Field: "body", Msg: "malformed JSON"}, http.StatusBadRequest, orders.ReasonValidationFailed},
		{"transition", &orders.InvalidTransitionError{}, http.StatusConflict, orders.ReasonInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, "req-1", tt.err)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			body := decodeErrorBody(t, rec)
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
			if body["error"] != tt.err.Error() {
				t.Errorf("error = %v, want the domain message", body["error"])
			}
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	h := &Handler{logger: logger.Discard()}

	rec := httptest.NewRecorder()
	h.writeError(rec, "req-1", errors.New(`connect to host db:5432 failed: password "hunter2" rejected`))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	body := decodeErrorBody(t, rec)
	if body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %v, want INTERNAL_ERROR", body["code"])
	}
	msg, _ := body["error"].(string)
	if strings.Contains(msg, "hunter2") || strings.Contains(msg, "db:5432") {
		t.Errorf("response leaks internal detail: %q", msg)
	}
	if msg != "unexpected error, please retry" {
		t.Errorf("error = %q, want the fixed generic message", msg)
	}
}
