package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundin/kvitto/internal/domain"
)

func TestCreateInvoiceRejectsDuplicateNumber(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, s.CreateInvoice(ctx, &domain.Invoice{ID: "a", InvoiceNumber: "INV-001"}))

	err := s.CreateInvoice(ctx, &domain.Invoice{ID: "b", InvoiceNumber: "INV-001"})
	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestNextInvoiceNumberIsSequential(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	first, err := s.NextInvoiceNumber(ctx)
	require.NoError(t, err)
	second, err := s.NextInvoiceNumber(ctx)
	require.NoError(t, err)

	assert.Equal(t, "INV-001", first)
	assert.Equal(t, "INV-002", second)
}

func TestMarkSentSetsAllSendFacts(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()
	require.NoError(t, s.CreateInvoice(ctx, &domain.Invoice{ID: "a", InvoiceNumber: "INV-001", Status: domain.StatusDraft}))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSent(ctx, "a", at))

	inv, err := s.GetInvoice(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, inv.Status)
	require.NotNil(t, inv.SentAt)
	assert.Equal(t, at, *inv.SentAt)
	require.NotNil(t, inv.LastInvoiceEmailSent)
	assert.Equal(t, at, *inv.LastInvoiceEmailSent)
}

func TestMutationsReturnNotFoundForUnknownInvoice(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", domain.StatusSent), domain.ErrInvoiceNotFound)
	assert.ErrorIs(t, s.MarkPaid(ctx, "missing", time.Now()), domain.ErrInvoiceNotFound)
	assert.ErrorIs(t, s.DeleteInvoice(ctx, "missing"), domain.ErrInvoiceNotFound)
}

func TestGetInvoiceReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()
	require.NoError(t, s.CreateInvoice(ctx, &domain.Invoice{ID: "a", InvoiceNumber: "INV-001", Status: domain.StatusDraft}))

	inv, err := s.GetInvoice(ctx, "a")
	require.NoError(t, err)
	inv.Status = domain.StatusPaid

	again, err := s.GetInvoice(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, again.Status)
}

func TestFindMatchIsCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()
	s.AddBlacklistRecord(domain.BlacklistRecord{CustomerEmail: "fraud@example.com", CustomerName: "Bad Actor"})

	rec, err := s.FindMatch(ctx, "FRAUD@example.com", "")
	require.NoError(t, err)
	require.NotNil(t, rec)

	rec, err = s.FindMatch(ctx, "", "bad actor")
	require.NoError(t, err)
	require.NotNil(t, rec)

	rec, err = s.FindMatch(ctx, "clean@example.com", "Someone Else")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
