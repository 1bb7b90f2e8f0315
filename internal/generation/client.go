// Package generation provides the client for the pipeline's text generation
// service.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
)

// ErrGenerationFailed is returned when a generation call fails.
var ErrGenerationFailed = errors.New("generation request failed")

const maxErrorBodySize = 4 * 1024

// Request asks the generation service to produce one content item.
type Request struct {
	ContentID string `json:"content_id,omitempty"`
	ScopeRef  string `json:"scope_ref,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Content is one generated item as reported by the generation service.
type Content struct {
	ID        string    `json:"id"`
	ScopeRef  string    `json:"scope_ref"`
	Title     string    `json:"title"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
}

// BatchResult reports the outcome of a batched generation call. The service
// stops early when its budget runs out, so the result may be partial.
type BatchResult struct {
	Requested int       `json:"requested"`
	Generated []Content `json:"generated"`
	Exhausted bool      `json:"budget_exhausted"`
}

// Client talks to the generation service. Both endpoints are rate-limited
// upstream; the dispatcher's per-type caps exist to respect that.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  logger.Logger
}

// NewClient creates a generation service client.
func NewClient(baseURL, token string, timeout time.Duration, log logger.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("generation URL is required")
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}, nil
}

// Generate requests a single content item.
func (c *Client) Generate(ctx context.Context, req Request) (*Content, error) {
	var content Content
	if err := c.post(ctx, "/api/v1/generate", req, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// GenerateBatch requests generation for a set of scope references under an
// explicit remaining-time budget. The service reports partial progress
// rather than exceeding the budget.
func (c *Client) GenerateBatch(ctx context.Context, scopeRefs []string, budget time.Duration) (*BatchResult, error) {
	payload := struct {
		ScopeRefs []string `json:"scope_refs"`
		BudgetMs  int64    `json:"budget_ms"`
	}{
		ScopeRefs: scopeRefs,
		BudgetMs:  budget.Milliseconds(),
	}

	var result BatchResult
	if err := c.post(ctx, "/api/v1/generate/batch", payload, &result); err != nil {
		return nil, err
	}

	c.logger.Info("batch generation completed",
		logger.Int("requested", result.Requested),
		logger.Int("generated", len(result.Generated)),
		logger.Bool("budget_exhausted", result.Exhausted),
	)
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
		return fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, res.StatusCode, errBody)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
