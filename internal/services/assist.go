package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/models"
)

// ExplainRequest is forwarded verbatim to the explanation collaborator.
// The engine supplies trigger data; interpretation happens remotely.
type ExplainRequest struct {
	Question string              `json:"question"`
	Language models.Language     `json:"language"`
	Files    []models.SourceFile `json:"files,omitempty"`
	Error    string              `json:"error,omitempty"`
	// CompileError distinguishes "your syntax is wrong" from "your
	// program crashed" for the collaborator.
	CompileError bool `json:"compileError,omitempty"`
}

// ExplainResponse is relayed to the caller untouched.
type ExplainResponse struct {
	Answer string `json:"answer"`
	Fix    string `json:"fix,omitempty"`
}

// AssistService calls the configured error-explanation collaborator over
// HTTP. Disabled when no URL is configured.
type AssistService struct {
	cfg    *config.AssistConfig
	client *http.Client
}

// NewAssistService creates the collaborator client.
func NewAssistService(cfg *config.AssistConfig) *AssistService {
	return &AssistService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.TimeoutDuration()},
	}
}

// Enabled reports whether a collaborator endpoint is configured.
func (s *AssistService) Enabled() bool {
	return s.cfg.URL != ""
}

// Explain forwards the request and relays the collaborator's answer.
func (s *AssistService) Explain(ctx context.Context, req *ExplainRequest) (*ExplainResponse, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("assist collaborator not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode assist request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build assist request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assist collaborator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("assist collaborator returned %d: %s", resp.StatusCode, string(payload))
	}

	var out ExplainResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode assist response: %w", err)
	}
	return &out, nil
}
