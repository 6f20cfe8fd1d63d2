package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// dispatchTimeout bounds a single email dispatch. Past this the outcome
// is inconclusive: the mail service may have sent the email anyway.
const dispatchTimeout = 35 * time.Second

// Client implements Sender against the mail service's HTTP API.
type Client struct {
	baseURL    string
	apiToken   string
	fromAddr   string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientConfig contains configuration for the mail service client.
type ClientConfig struct {
	BaseURL  string
	APIToken string
	FromAddr string
	Logger   *slog.Logger // Optional: defaults to slog.Default()
}

type dispatchRequest struct {
	Kind          string `json:"kind"`
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	To            string `json:"to"`
	From          string `json:"from"`
	PublicToken   string `json:"public_token"`
	TotalCents    int64  `json:"total_cents"`
}

type dispatchResponse struct {
	MessageID         string `json:"message_id"`
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CooldownRemaining int64  `json:"cooldownRemaining"`
}

// NewClient creates a new mail service client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("email: base URL is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiToken:   cfg.APIToken,
		fromAddr:   cfg.FromAddr,
		httpClient: &http.Client{Timeout: dispatchTimeout},
		logger:     logger,
	}, nil
}

// Send dispatches an email via the mail service.
func (c *Client) Send(ctx context.Context, msg *Message) (string, error) {
	payload := dispatchRequest{
		Kind:          string(msg.Kind),
		InvoiceID:     msg.InvoiceID,
		InvoiceNumber: msg.InvoiceNumber,
		To:            msg.Recipient,
		From:          c.fromAddr,
		PublicToken:   msg.PublicToken,
		TotalCents:    msg.TotalCents,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal dispatch payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTransportFailure(err) {
			c.logger.Warn("email dispatch inconclusive",
				"invoice_id", msg.InvoiceID,
				"error", err,
			)
			return "", &InconclusiveError{Err: err}
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &InconclusiveError{Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to body parsing
	case http.StatusTooManyRequests:
		var result dispatchResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("failed to parse rate-limit response: %w", err)
		}
		return "", &RateLimitedError{
			CooldownRemaining: time.Duration(result.CooldownRemaining) * time.Second,
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrUnauthorized
	case http.StatusNotFound:
		return "", ErrInvoiceNotFound
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return "", ErrUpstreamUnavailable
	default:
		return "", fmt.Errorf("mail service error (status %d): %s", resp.StatusCode, string(body))
	}

	var result dispatchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("mail service rejected dispatch: %s", result.Message)
	}

	return result.MessageID, nil
}

func isTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
