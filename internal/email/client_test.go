package email

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() *Message {
	return &Message{
		Kind:          KindInvoice,
		InvoiceID:     "inv_123",
		InvoiceNumber: "INV-001",
		Recipient:     "customer@example.com",
		PublicToken:   "tok_abc",
		TotalCents:    10000,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:  srv.URL,
		APIToken: "test-token",
		FromAddr: "billing@example.com",
	})
	require.NoError(t, err)
	return client, srv
}

func TestClientSendSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message_id":"msg_42","success":true}`))
	})

	id, err := client.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "msg_42", id)
}

func TestClientSendRateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"success":false,"cooldownRemaining":300}`))
	})

	_, err := client.Send(context.Background(), testMessage())
	require.Error(t, err)

	remaining, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, remaining)
}

func TestClientSendStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrInvoiceNotFound},
		{"unavailable", http.StatusServiceUnavailable, ErrUpstreamUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := client.Send(context.Background(), testMessage())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, IsInconclusive(err))
		})
	}
}

func TestClientSendNetworkFailureIsInconclusive(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, IsInconclusive(err))
}

func TestClientSendRejectedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"template render failed"}`))
	})

	_, err := client.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template render failed")
	assert.False(t, IsInconclusive(err))
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}
