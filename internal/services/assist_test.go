package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/models"
)

func TestAssist_Explain(t *testing.T) {
	var received ExplainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(ExplainResponse{Answer: "off by one", Fix: "use <="})
	}))
	defer srv.Close()

	s := NewAssistService(&config.AssistConfig{URL: srv.URL, Timeout: 5})

	resp, err := s.Explain(context.Background(), &ExplainRequest{
		Question:     "why does this fail",
		Language:     models.LangC,
		Error:        "segfault",
		CompileError: false,
	})
	if err != nil {
		t.Fatalf("explain failed: %v", err)
	}

	if resp.Answer != "off by one" || resp.Fix != "use <=" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if received.Question != "why does this fail" || received.Language != models.LangC {
		t.Errorf("request not forwarded intact: %+v", received)
	}
}

func TestAssist_Disabled(t *testing.T) {
	s := NewAssistService(&config.AssistConfig{})

	if s.Enabled() {
		t.Error("expected disabled without a URL")
	}
	if _, err := s.Explain(context.Background(), &ExplainRequest{}); err == nil {
		t.Error("expected error when not configured")
	}
}

func TestAssist_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewAssistService(&config.AssistConfig{URL: srv.URL, Timeout: 5})
	if _, err := s.Explain(context.Background(), &ExplainRequest{}); err == nil {
		t.Error("expected error for non-200 upstream")
	}
}
