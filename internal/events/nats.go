package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSPublisher implements Publisher over a NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NATSConfig contains configuration for the event publisher.
type NATSConfig struct {
	URL    string
	Name   string       // Optional: connection name shown in monitoring
	Logger *slog.Logger // Optional: defaults to slog.Default()
}

// NewNATSPublisher connects to the NATS server and returns a publisher.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn, logger: logger}, nil
}

// PublishStatusChanged publishes the event on the status-changed subject.
func (p *NATSPublisher) PublishStatusChanged(ctx context.Context, ev StatusChanged) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	if err := p.conn.Publish(SubjectInvoiceStatusChanged, data); err != nil {
		p.logger.Warn("failed to publish status event",
			"invoice_id", ev.InvoiceID,
			"error", err,
		)
		return fmt.Errorf("failed to publish status event: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}
