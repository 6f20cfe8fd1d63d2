package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client implements Decrementer against the stock service's HTTP API.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientConfig contains configuration for the inventory client.
type ClientConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration // Optional: defaults to 30s
	Logger   *slog.Logger  // Optional: defaults to slog.Default()
}

type decrementRequest struct {
	InvoiceID string `json:"invoice_id"`
}

type decrementResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewClient creates a new inventory service client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiToken:   cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// DecrementStock asks the stock service to decrement inventory for the
// invoice's product-backed line items.
func (c *Client) DecrementStock(ctx context.Context, invoiceID string) error {
	payload, err := json.Marshal(decrementRequest{InvoiceID: invoiceID})
	if err != nil {
		return fmt.Errorf("failed to marshal decrement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stock/decrement", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inventory request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inventory service error (status %d): %s", resp.StatusCode, string(body))
	}

	var result decrementResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !result.Success {
		c.logger.Warn("stock decrement rejected",
			"invoice_id", invoiceID,
			"message", result.Message,
		)
		return ErrDecrementFailed
	}

	return nil
}
