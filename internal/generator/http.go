package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"example.com/admissions/services/pipeline/config"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Client renders offer letter draft bodies
type Client interface {
	GenerateDraft(ctx context.Context, req DraftInput) (string, error)
}

// DraftInput carries the fields the generator templates against
type DraftInput struct {
	ApplicationID uuid.UUID `json:"application_id"`
	StudentID     uuid.UUID `json:"student_id"`
	ProgramID     uuid.UUID `json:"program_id"`
	ProgramName   string    `json:"program_name"`
	RequestedAt   time.Time `json:"requested_at"`
}

// HTTPClient implements Client against the letter rendering service
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new generator client
func NewHTTPClient(cfg config.GeneratorConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// GenerateDraft calls the rendering service and returns the draft body
func (c *HTTPClient) GenerateDraft(ctx context.Context, input DraftInput) (string, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal draft input")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/offer-letters/draft", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to build generator request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "generator request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("generator returned status %d", resp.StatusCode)
	}

	var out struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "failed to decode generator response")
	}
	if out.Body == "" {
		return "", errors.New("generator returned an empty draft body")
	}

	return out.Body, nil
}
