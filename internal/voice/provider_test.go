package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPlaceCallReturnsCallID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req placeCallRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.To != "+15551234" {
			t.Fatalf("unexpected to: %q", req.To)
		}
		json.NewEncoder(w).Encode(placeCallResponse{CallID: "call-1"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "key")
	id, err := p.PlaceCall(context.Background(), "+15551234", "alert-critical")
	if err != nil {
		t.Fatalf("PlaceCall failed: %v", err)
	}
	if id != "call-1" {
		t.Fatalf("expected call-1, got %q", id)
	}
}

func TestPlaceCallErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "bad-key")
	if _, err := p.PlaceCall(context.Background(), "+15551234", "ref"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestTwiMLResponseEmpty(t *testing.T) {
	out := TwiMLResponse("")
	if !strings.Contains(out, "<Response></Response>") {
		t.Fatalf("unexpected body: %q", out)
	}
}

func TestTwiMLResponseEscapesSay(t *testing.T) {
	out := TwiMLResponse(`A & B <test> "quote"`)
	if strings.Contains(out, "&B") || strings.Contains(out, "<test>") {
		t.Fatalf("expected escaping, got %q", out)
	}
	if !strings.Contains(out, "&amp;") || !strings.Contains(out, "&lt;test&gt;") {
		t.Fatalf("expected escaped entities, got %q", out)
	}
}
