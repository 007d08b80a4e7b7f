package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, http.StatusConflict, "busy")

	if rr.Code != http.StatusConflict {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"error":"busy"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var payload struct {
		Model string `json:"model"`
	}

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"model":"pro"}`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &payload); err != nil {
		t.Fatalf("DecodeJSON err: %v", err)
	}
	if payload.Model != "pro" {
		t.Fatalf("unexpected model: %s", payload.Model)
	}

	empty := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(httptest.NewRecorder(), empty, &payload); err != nil {
		t.Fatalf("empty body must decode to zero value: %v", err)
	}

	unknown := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"modle":"pro"}`))
	if err := DecodeJSON(httptest.NewRecorder(), unknown, &payload); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestSendSSEEvent(t *testing.T) {
	rr := httptest.NewRecorder()
	if err := SendSSEEvent(rr, rr, "busy", map[string]bool{"busy": true}); err != nil {
		t.Fatalf("SendSSEEvent err: %v", err)
	}
	if got := rr.Body.String(); got != "event: busy\ndata: {\"busy\":true}\n\n" {
		t.Fatalf("unexpected frame: %q", got)
	}
}
