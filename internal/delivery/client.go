// Package delivery provides the client for the downstream delivery service.
package delivery

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

// ErrDeliveryFailed is returned when a redelivery call fails.
var ErrDeliveryFailed = errors.New("delivery request failed")

const maxErrorBodySize = 4 * 1024

// Client re-attempts notifications through the delivery service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  logger.Logger
}

// NewClient creates a delivery service client.
func NewClient(baseURL, token string, timeout time.Duration, log logger.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("delivery URL is required")
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}, nil
}

// Redeliver asks the delivery service to re-attempt the notification for a
// content reference.
func (c *Client) Redeliver(ctx context.Context, ref string) error {
	payload := struct {
		ContentRef string `json:"content_ref"`
	}{ContentRef: ref}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/redeliver", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
		return fmt.Errorf("%w: status %d: %s", ErrDeliveryFailed, res.StatusCode, errBody)
	}

	c.logger.Debug("redelivery accepted", logger.String("content_ref", ref))
	return nil
}
