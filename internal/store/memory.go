package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sundin/kvitto/internal/domain"
)

// MemoryStore is an in-memory implementation of InvoiceStore,
// BlacklistStore and NotificationStore. Used in tests and dev mode.
type MemoryStore struct {
	mu sync.RWMutex

	invoices  map[string]*domain.Invoice
	items     map[string][]domain.InvoiceItem
	blacklist []domain.BlacklistRecord
	seq       int

	notifications map[string][]domain.Notification
	tombstones    map[string]map[string]time.Time
	digestDates   map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invoices:      make(map[string]*domain.Invoice),
		items:         make(map[string][]domain.InvoiceItem),
		notifications: make(map[string][]domain.Notification),
		tombstones:    make(map[string]map[string]time.Time),
		digestDates:   make(map[string]string),
	}
}

// AddBlacklistRecord seeds a blacklist entry.
func (s *MemoryStore) AddBlacklistRecord(rec domain.BlacklistRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist = append(s.blacklist, rec)
}

func (s *MemoryStore) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return domain.Conflict("store.create_invoice", "invoice number already exists")
		}
	}

	cp := *inv
	s.invoices[inv.ID] = &cp
	return nil
}

func (s *MemoryStore) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.InvoiceNumber == number {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrInvoiceNotFound
}

func (s *MemoryStore) GetInvoiceByToken(ctx context.Context, token string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.PublicToken == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrInvoiceNotFound
}

func (s *MemoryStore) UpdateDraft(ctx context.Context, inv *domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invoices[inv.ID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}

	existing.CustomerName = inv.CustomerName
	existing.CustomerEmail = inv.CustomerEmail
	existing.SubtotalCents = inv.SubtotalCents
	existing.TaxRate = inv.TaxRate
	existing.TaxCents = inv.TaxCents
	existing.TotalCents = inv.TotalCents
	existing.DueDate = inv.DueDate
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteInvoice(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return domain.ErrInvoiceNotFound
	}
	delete(s.invoices, id)
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) ReplaceItems(ctx context.Context, invoiceID string, items []domain.InvoiceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[invoiceID]; !ok {
		return domain.ErrInvoiceNotFound
	}
	s.items[invoiceID] = append([]domain.InvoiceItem(nil), items...)
	return nil
}

func (s *MemoryStore) GetItems(ctx context.Context, invoiceID string) ([]domain.InvoiceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.InvoiceItem(nil), s.items[invoiceID]...), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	return s.mutate(id, func(inv *domain.Invoice) {
		inv.Status = status
	})
}

func (s *MemoryStore) SetPaymentLink(ctx context.Context, id string, url string) error {
	return s.mutate(id, func(inv *domain.Invoice) {
		inv.StripePaymentLink = url
	})
}

func (s *MemoryStore) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return s.mutate(id, func(inv *domain.Invoice) {
		inv.Status = domain.StatusSent
		t := sentAt
		inv.SentAt = &t
		t2 := sentAt
		inv.LastInvoiceEmailSent = &t2
	})
}

func (s *MemoryStore) SetLastReminderSent(ctx context.Context, id string, at time.Time) error {
	return s.mutate(id, func(inv *domain.Invoice) {
		t := at
		inv.LastReminderEmailSent = &t
	})
}

func (s *MemoryStore) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	return s.mutate(id, func(inv *domain.Invoice) {
		inv.Status = domain.StatusPaid
		t := paidAt
		inv.PaidDate = &t
	})
}

func (s *MemoryStore) SetStockUpdateStatus(ctx context.Context, id string, status domain.StockUpdateStatus) error {
	return s.mutate(id, func(inv *domain.Invoice) {
		inv.StockUpdateStatus = status
	})
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Invoice
	for _, inv := range s.invoices {
		if inv.Status == status {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByOwnerAndStatus(ctx context.Context, userID string, status domain.Status) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Invoice
	for _, inv := range s.invoices {
		if inv.UserID == userID && inv.Status == status {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s *MemoryStore) NextInvoiceNumber(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	return fmt.Sprintf("INV-%03d", s.seq), nil
}

func (s *MemoryStore) FindMatch(ctx context.Context, email, name string) (*domain.BlacklistRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.blacklist {
		if (email != "" && strings.EqualFold(rec.CustomerEmail, email)) ||
			(name != "" && strings.EqualFold(rec.CustomerName, name)) {
			cp := rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetList(ctx context.Context, userID string) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Notification(nil), s.notifications[userID]...), nil
}

func (s *MemoryStore) SaveList(ctx context.Context, userID string, list []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications[userID] = append([]domain.Notification(nil), list...)
	return nil
}

func (s *MemoryStore) GetTombstones(ctx context.Context, userID string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time, len(s.tombstones[userID]))
	for k, v := range s.tombstones[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SaveTombstones(ctx context.Context, userID string, tombstones map[string]time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(map[string]time.Time, len(tombstones))
	for k, v := range tombstones {
		cp[k] = v
	}
	s.tombstones[userID] = cp
	return nil
}

func (s *MemoryStore) GetLastDigestDate(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.digestDates[userID], nil
}

func (s *MemoryStore) SetLastDigestDate(ctx context.Context, userID string, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.digestDates[userID] = date
	return nil
}

// mutate applies fn to the stored invoice under the write lock.
func (s *MemoryStore) mutate(id string, fn func(*domain.Invoice)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	fn(inv)
	inv.UpdatedAt = time.Now()
	return nil
}
