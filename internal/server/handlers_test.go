package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reuniteapp/reunite/internal/model"
)

// newTestHandlers builds Handlers without storage for exercising the
// validation paths that reject before any query runs.
func newTestHandlers() *Handlers {
	return NewHandlers(HandlersDeps{
		Logger:              testLogger(),
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})
}

func decodeErrorBody(t *testing.T, body []byte) model.APIError {
	t.Helper()
	var resp model.APIError
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	return resp
}

func TestHandleCreateReport_Validation(t *testing.T) {
	h := newTestHandlers()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing kind", `{"title":"black phone"}`},
		{"bad kind", `{"kind":"stolen","title":"black phone"}`},
		{"missing title", `{"kind":"lost"}`},
		{"empty tag", `{"kind":"lost","title":"black phone","tags":[""]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/v1/reports", strings.NewReader(tt.body))
			h.HandleCreateReport(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400", rec.Code)
			}
			resp := decodeErrorBody(t, rec.Body.Bytes())
			if resp.Error.Code != model.ErrCodeInvalidInput {
				t.Errorf("error code: got %q", resp.Error.Code)
			}
		})
	}
}

func TestHandleSignup_Validation(t *testing.T) {
	h := newTestHandlers()

	tests := []struct {
		name string
		body string
	}{
		{"bad email", `{"email":"not-an-email","name":"A"}`},
		{"missing name", `{"email":"a@example.com"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/auth/signup", strings.NewReader(tt.body))
			h.HandleSignup(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleConfirmMatch_InvalidID(t *testing.T) {
	h := newTestHandlers()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/matches/not-a-uuid/confirm", nil)
	req.SetPathValue("id", "not-a-uuid")
	h.HandleConfirmMatch(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestHandleListResolvedMatches_BadLimit(t *testing.T) {
	h := newTestHandlers()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/matches/resolved?limit=abc", nil)
	h.HandleListResolvedMatches(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestHandleSubscribe_NoBroker(t *testing.T) {
	h := newTestHandlers()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/subscribe", nil)
	h.HandleSubscribe(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
}
