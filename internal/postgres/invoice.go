// Package postgres implements the store interfaces on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/store"
)

// InvoiceStore implements store.InvoiceStore on a pgx connection pool.
type InvoiceStore struct {
	pool *pgxpool.Pool
}

// Compile-time check that InvoiceStore implements store.InvoiceStore.
var _ store.InvoiceStore = (*InvoiceStore)(nil)

// NewInvoiceStore creates a new PostgreSQL-backed invoice store.
func NewInvoiceStore(pool *pgxpool.Pool) *InvoiceStore {
	return &InvoiceStore{pool: pool}
}

const invoiceColumns = `id, invoice_number, status, customer_name, customer_email,
	subtotal_cents, tax_rate, tax_cents, total_cents,
	public_token, stripe_payment_link, stock_update_status,
	sent_at, last_invoice_email_sent, last_reminder_email_sent, paid_date, due_date,
	user_id, creator_role, created_at, updated_at`

func (s *InvoiceStore) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		inv.ID, inv.InvoiceNumber, inv.Status, inv.CustomerName, inv.CustomerEmail,
		inv.SubtotalCents, inv.TaxRate, inv.TaxCents, inv.TotalCents,
		inv.PublicToken, nullStr(inv.StripePaymentLink), inv.StockUpdateStatus,
		inv.SentAt, inv.LastInvoiceEmailSent, inv.LastReminderEmailSent, inv.PaidDate, inv.DueDate,
		inv.UserID, inv.CreatorRole, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Conflict("postgres.create_invoice", "invoice number already exists")
		}
		return domain.Internal(err, "postgres.create_invoice", "failed to insert invoice")
	}
	return nil
}

func (s *InvoiceStore) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return s.getBy(ctx, "id", id)
}

func (s *InvoiceStore) GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	return s.getBy(ctx, "invoice_number", number)
}

func (s *InvoiceStore) GetInvoiceByToken(ctx context.Context, token string) (*domain.Invoice, error) {
	return s.getBy(ctx, "public_token", token)
}

func (s *InvoiceStore) getBy(ctx context.Context, column, value string) (*domain.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+column+` = $1`, value)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, domain.Internal(err, "postgres.get_invoice", "failed to load invoice")
	}
	return inv, nil
}

func (s *InvoiceStore) UpdateDraft(ctx context.Context, inv *domain.Invoice) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invoices SET
			customer_name = $2, customer_email = $3,
			subtotal_cents = $4, tax_rate = $5, tax_cents = $6, total_cents = $7,
			due_date = $8, updated_at = now()
		WHERE id = $1`,
		inv.ID, inv.CustomerName, inv.CustomerEmail,
		inv.SubtotalCents, inv.TaxRate, inv.TaxCents, inv.TotalCents,
		inv.DueDate,
	)
	if err != nil {
		return domain.Internal(err, "postgres.update_draft", "failed to update invoice")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

func (s *InvoiceStore) DeleteInvoice(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return domain.Internal(err, "postgres.delete_invoice", "failed to delete invoice")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

func (s *InvoiceStore) ReplaceItems(ctx context.Context, invoiceID string, items []domain.InvoiceItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, "postgres.replace_items", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return domain.Internal(err, "postgres.replace_items", "failed to clear items")
	}
	for _, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, product_id, name, quantity, unit_price_cents, total_cents, stock_snapshot)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, invoiceID, nullStr(item.ProductID), item.Name,
			item.Quantity, item.UnitPriceCents, item.TotalCents, item.StockSnapshot,
		)
		if err != nil {
			return domain.Internal(err, "postgres.replace_items", "failed to insert item")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, "postgres.replace_items", "failed to commit")
	}
	return nil
}

func (s *InvoiceStore) GetItems(ctx context.Context, invoiceID string) ([]domain.InvoiceItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, COALESCE(product_id, ''), name, quantity, unit_price_cents, total_cents, stock_snapshot
		FROM invoice_items WHERE invoice_id = $1
		ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, domain.Internal(err, "postgres.get_items", "failed to load items")
	}
	defer rows.Close()

	var items []domain.InvoiceItem
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Name,
			&item.Quantity, &item.UnitPriceCents, &item.TotalCents, &item.StockSnapshot); err != nil {
			return nil, domain.Internal(err, "postgres.get_items", "failed to scan item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *InvoiceStore) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	return s.exec(ctx, "postgres.update_status",
		`UPDATE invoices SET status = $2, updated_at = now() WHERE id = $1`, id, status)
}

func (s *InvoiceStore) SetPaymentLink(ctx context.Context, id string, url string) error {
	return s.exec(ctx, "postgres.set_payment_link",
		`UPDATE invoices SET stripe_payment_link = $2, updated_at = now() WHERE id = $1`, id, url)
}

func (s *InvoiceStore) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return s.exec(ctx, "postgres.mark_sent", `
		UPDATE invoices SET status = 'sent', sent_at = $2, last_invoice_email_sent = $2, updated_at = now()
		WHERE id = $1`, id, sentAt)
}

func (s *InvoiceStore) SetLastReminderSent(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "postgres.set_last_reminder_sent",
		`UPDATE invoices SET last_reminder_email_sent = $2, updated_at = now() WHERE id = $1`, id, at)
}

func (s *InvoiceStore) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	return s.exec(ctx, "postgres.mark_paid",
		`UPDATE invoices SET status = 'paid', paid_date = $2, updated_at = now() WHERE id = $1`, id, paidAt)
}

func (s *InvoiceStore) SetStockUpdateStatus(ctx context.Context, id string, status domain.StockUpdateStatus) error {
	return s.exec(ctx, "postgres.set_stock_update_status",
		`UPDATE invoices SET stock_update_status = $2, updated_at = now() WHERE id = $1`, id, status)
}

func (s *InvoiceStore) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, domain.Internal(err, "postgres.list_by_status", "failed to list invoices")
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s *InvoiceStore) ListByOwnerAndStatus(ctx context.Context, userID string, status domain.Status) ([]domain.Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 AND status = $2 ORDER BY created_at`,
		userID, status)
	if err != nil {
		return nil, domain.Internal(err, "postgres.list_by_owner", "failed to list invoices")
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// NextInvoiceNumber allocates from a sequence so concurrent creators
// never collide.
func (s *InvoiceStore) NextInvoiceNumber(ctx context.Context) (string, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&n); err != nil {
		return "", domain.Internal(err, "postgres.next_invoice_number", "failed to allocate invoice number")
	}
	return fmt.Sprintf("INV-%03d", n), nil
}

func (s *InvoiceStore) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return domain.Internal(err, op, "invoice update failed")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	var paymentLink *string
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.Status, &inv.CustomerName, &inv.CustomerEmail,
		&inv.SubtotalCents, &inv.TaxRate, &inv.TaxCents, &inv.TotalCents,
		&inv.PublicToken, &paymentLink, &inv.StockUpdateStatus,
		&inv.SentAt, &inv.LastInvoiceEmailSent, &inv.LastReminderEmailSent, &inv.PaidDate, &inv.DueDate,
		&inv.UserID, &inv.CreatorRole, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paymentLink != nil {
		inv.StripePaymentLink = *paymentLink
	}
	return &inv, nil
}

func collectInvoices(rows pgx.Rows) ([]domain.Invoice, error) {
	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, domain.Internal(err, "postgres.scan_invoice", "failed to scan invoice")
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
