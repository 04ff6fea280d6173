package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSONSetsContentTypeAndStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"ok": "true"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != "true" {
		t.Fatalf("body = %v", body)
	}
}

func TestWriteErrorResponseDefaultsCodeFromStatus(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteErrorResponse(w, r, http.StatusBadRequest, "", "bad input", nil)

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "HTTP_400" {
		t.Fatalf("code = %q, want HTTP_400", resp.Code)
	}
	if resp.Message != "bad input" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestWriteErrorResponsePropagatesTraceIDFromRequestHeader(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Trace-ID", "trace-123")

	WriteErrorResponse(w, r, http.StatusInternalServerError, "BOOM", "broke", nil)

	if got := w.Header().Get("X-Trace-ID"); got != "trace-123" {
		t.Fatalf("X-Trace-ID header = %q", got)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TraceID != "trace-123" {
		t.Fatalf("trace_id in body = %q", resp.TraceID)
	}
}

func TestDecodeJSONRejectsMalformedBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))

	var target map[string]string
	ok := DecodeJSON(w, r, &target)
	if ok {
		t.Fatalf("DecodeJSON() = true, want false for malformed body")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDecodeJSONAcceptsValidBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"bot"}`))

	var target struct {
		Name string `json:"name"`
	}
	if ok := DecodeJSON(w, r, &target); !ok {
		t.Fatalf("DecodeJSON() = false, want true")
	}
	if target.Name != "bot" {
		t.Fatalf("name = %q", target.Name)
	}
}
