package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
)

// Settlement is the outcome of flipping an invoice to paid.
type Settlement struct {
	// Settled is false when the invoice was already paid; nothing was credited in that case.
	Settled bool
	UserID  int64
	Coins   int64
	Balance int64
}

// Undelivered is a paid invoice whose payment confirmation never reached the user.
type Undelivered struct {
	InvoiceID  int64
	ExternalID int64
	UserID     int64
	Coins      int64
	// Balance is the user's current balance.
	Balance int64
}

// InvoiceRepository defines persistence operations for invoices.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *domain.Invoice) error
	FindByID(ctx context.Context, id int64) (*domain.Invoice, error)
	// ListPending returns pending invoices created at or after since, oldest first.
	ListPending(ctx context.Context, since time.Time, limit int) ([]domain.Invoice, error)
	// CountPendingBefore counts pending invoices that are no longer polled.
	CountPendingBefore(ctx context.Context, before time.Time) (int64, error)
	// Settle flips pending to paid, credits the invoice coins and writes the ledger entry atomically.
	Settle(ctx context.Context, id int64, at time.Time) (Settlement, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) error
	RecordNotifyFailure(ctx context.Context, id int64, reason string) error
	// ListUndelivered returns paid invoices settled before paidBefore that have no
	// delivered confirmation and fewer than maxAttempts delivery attempts, oldest first.
	ListUndelivered(ctx context.Context, paidBefore time.Time, maxAttempts, limit int) ([]Undelivered, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

type invoiceRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewInvoiceRepository creates a new SQL-backed invoice repository.
func NewInvoiceRepository(db *sql.DB, log *slog.Logger) InvoiceRepository {
	if log == nil {
		log = slog.Default()
	}

	return &invoiceRepository{db: db, log: log}
}

const invoiceColumns = `id, external_id, user_id, pack_id, coins, asset, amount, pay_url, status,
	created_at, paid_at, notified_at, notify_attempts, notify_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (domain.Invoice, error) {
	var (
		inv              domain.Invoice
		amount, status   string
		paidAt, notified sql.NullTime
	)
	if err := row.Scan(
		&inv.ID,
		&inv.ExternalID,
		&inv.UserID,
		&inv.PackID,
		&inv.Coins,
		&inv.Asset,
		&amount,
		&inv.PayURL,
		&status,
		&inv.CreatedAt,
		&paidAt,
		&notified,
		&inv.NotifyAttempts,
		&inv.NotifyError,
	); err != nil {
		return domain.Invoice{}, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("parse invoice amount %q: %w", amount, err)
	}
	inv.Amount = d
	inv.Status = domain.InvoiceStatus(status)
	inv.PaidAt = nullTime(paidAt)
	inv.NotifiedAt = nullTime(notified)

	return inv, nil
}

func (r *invoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	const query = `
		INSERT INTO invoices (external_id, user_id, pack_id, coins, asset, amount, pay_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.Status == "" {
		inv.Status = domain.InvoicePending
	}

	if err := r.db.QueryRowContext(ctx, query,
		inv.ExternalID,
		inv.UserID,
		inv.PackID,
		inv.Coins,
		inv.Asset,
		inv.Amount.String(),
		inv.PayURL,
		string(inv.Status),
		inv.CreatedAt,
	).Scan(&inv.ID); err != nil {
		r.log.Error("failed to create invoice",
			slog.Int64("telegram_id", inv.UserID),
			slog.Int64("external_id", inv.ExternalID),
			slog.Any("error", err),
		)
		return fmt.Errorf("insert invoice: %w", err)
	}

	return nil
}

func (r *invoiceRepository) FindByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select invoice: %w", err)
	}
	return &inv, nil
}

func (r *invoiceRepository) ListPending(ctx context.Context, since time.Time, limit int) ([]domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status = 'pending' AND created_at >= $1
		ORDER BY created_at, id
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending invoices: %w", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending invoices: %w", err)
	}

	return invoices, nil
}

func (r *invoiceRepository) CountPendingBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `SELECT count(*) FROM invoices WHERE status = 'pending' AND created_at < $1`

	var n int64
	if err := r.db.QueryRowContext(ctx, query, before).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stale invoices: %w", err)
	}
	return n, nil
}

func (r *invoiceRepository) Settle(ctx context.Context, id int64, at time.Time) (Settlement, error) {
	const (
		flip = `
			UPDATE invoices SET status = 'paid', paid_at = $2
			WHERE id = $1 AND status = 'pending'
			RETURNING user_id, coins
		`
		credit = `UPDATE users SET balance = balance + $2 WHERE id = $1 RETURNING balance`
		ledger = `
			INSERT INTO ledger_entries (user_id, amount, kind, invoice_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
	)

	var s Settlement
	err := withTx(ctx, r.db, r.log, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, flip, id, at).Scan(&s.UserID, &s.Coins)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark invoice paid: %w", err)
		}

		if err := tx.QueryRowContext(ctx, credit, s.UserID, s.Coins).Scan(&s.Balance); err != nil {
			return fmt.Errorf("credit user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, ledger, s.UserID, s.Coins, string(domain.LedgerPurchase), id, at); err != nil {
			return fmt.Errorf("insert purchase ledger entry: %w", err)
		}

		s.Settled = true
		return nil
	})
	if err != nil {
		r.log.Error("failed to settle invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		return Settlement{}, err
	}

	return s, nil
}

func (r *invoiceRepository) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	const query = `
		UPDATE invoices
		SET notified_at = $2, notify_attempts = notify_attempts + 1, notify_error = ''
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark invoice notified: %w", err)
	}
	return nil
}

func (r *invoiceRepository) RecordNotifyFailure(ctx context.Context, id int64, reason string) error {
	const query = `
		UPDATE invoices
		SET notify_attempts = notify_attempts + 1, notify_error = $2
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("record notify failure: %w", err)
	}
	return nil
}

func (r *invoiceRepository) ListUndelivered(ctx context.Context, paidBefore time.Time, maxAttempts, limit int) ([]Undelivered, error) {
	const query = `
		SELECT i.id, i.external_id, i.user_id, i.coins, u.balance
		FROM invoices i
		JOIN users u ON u.id = i.user_id
		WHERE i.status = 'paid'
			AND i.notified_at IS NULL
			AND i.paid_at < $1
			AND i.notify_attempts < $2
		ORDER BY i.paid_at, i.id
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, paidBefore, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("select undelivered invoices: %w", err)
	}
	defer rows.Close()

	var out []Undelivered
	for rows.Next() {
		var u Undelivered
		if err := rows.Scan(&u.InvoiceID, &u.ExternalID, &u.UserID, &u.Coins, &u.Balance); err != nil {
			return nil, fmt.Errorf("scan undelivered invoice: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate undelivered invoices: %w", err)
	}

	return out, nil
}

func (r *invoiceRepository) Stats(ctx context.Context) (domain.Stats, error) {
	const query = `
		SELECT
			(SELECT count(*) FROM users),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'paid'),
			COALESCE(sum(coins) FILTER (WHERE status = 'paid'), 0)
		FROM invoices
	`

	var s domain.Stats
	if err := r.db.QueryRowContext(ctx, query).Scan(&s.Users, &s.PendingInvoices, &s.PaidInvoices, &s.CoinsSold); err != nil {
		return domain.Stats{}, fmt.Errorf("select stats: %w", err)
	}
	return s, nil
}
