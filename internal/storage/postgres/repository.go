// Package postgres is the PostgreSQL ledger backend, built on a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"spendwise/internal/core"
	"spendwise/internal/ledger"
)

const expenseColumns = `id, user_id, amount::text, category, note, payment_type, date, raw_message, is_impulsive`

var (
	_ ledger.Store       = (*Repository)(nil)
	_ ledger.SyncTracker = (*Repository)(nil)
)

type Repository struct {
	Pool *pgxpool.Pool
}

// Open connects to databaseURL, applies migrations and returns a ready
// repository.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{Pool: pool}, nil
}

func (r *Repository) Close() error {
	if r.Pool != nil {
		r.Pool.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.Pool.Ping(ctx)
}

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Amount = core.RoundAmount(e.Amount)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	err := r.Pool.QueryRow(ctx,
		`INSERT INTO expenses (user_id, amount, category, note, payment_type, date, raw_message, is_impulsive)
		 VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		e.UserID, e.Amount.StringFixed(core.AmountPlaces), string(e.Category), e.Note, string(e.PaymentType),
		e.Date.UTC(), e.RawMessage, e.IsImpulsive,
	).Scan(&e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to PostgreSQL",
		"id", e.ID,
		"user_id", e.UserID,
		"amount", e.Amount.StringFixed(core.AmountPlaces),
		"category", e.Category)
	return e, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Amount = core.RoundAmount(e.Amount)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	tag, err := r.Pool.Exec(ctx,
		`UPDATE expenses
		    SET amount = $1::numeric, category = $2, note = $3, payment_type = $4, date = $5,
		        raw_message = $6, is_impulsive = $7, sync_status = 'pending', updated_at = NOW()
		  WHERE id = $8`,
		e.Amount.StringFixed(core.AmountPlaces), string(e.Category), e.Note, string(e.PaymentType), e.Date.UTC(),
		e.RawMessage, e.IsImpulsive, e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.Expense{}, ledger.ErrNotFound
	}
	return e, nil
}

func (r *Repository) DeleteExpense(ctx context.Context, id int64) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *Repository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	e, err := scanExpense(r.Pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

func (r *Repository) GetExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return r.ListExpenses(ctx, userID, core.ExpenseFilter{})
}

func (r *Repository) ListExpenses(ctx context.Context, userID string, f core.ExpenseFilter) ([]core.Expense, error) {
	query, args := listQuery(userID, f)
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// GetPendingSyncExpenses returns expenses not yet mirrored, oldest first.
func (r *Repository) GetPendingSyncExpenses(ctx context.Context, limit int) ([]ledger.PendingSync, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, user_id FROM expenses WHERE sync_status <> 'synced' ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync expenses: %w", err)
	}
	defer rows.Close()

	pending := make([]ledger.PendingSync, 0)
	for rows.Next() {
		var p ledger.PendingSync
		if err := rows.Scan(&p.ID, &p.UserID); err != nil {
			return nil, fmt.Errorf("scan pending expense: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func (r *Repository) MarkSynced(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, "synced")
}

func (r *Repository) MarkSyncError(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, "error")
}

func (r *Repository) setSyncStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.Pool.Exec(ctx, `UPDATE expenses SET sync_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set sync status %s for %d: %w", status, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// listQuery builds the filtered SELECT with positional placeholders.
func listQuery(userID string, f core.ExpenseFilter) (string, []any) {
	args := []any{userID}
	where := []string{"user_id = $1"}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if !f.StartDate.IsZero() {
		add("date >= $%d", f.StartDate.UTC())
	}
	if !f.EndDate.IsZero() {
		add("date <= $%d", f.EndDate.UTC())
	}
	return `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC, id DESC`, args
}

func scanExpense(row pgx.Row) (core.Expense, error) {
	var (
		e                             core.Expense
		amount, category, paymentType string
	)
	if err := row.Scan(&e.ID, &e.UserID, &amount, &category, &e.Note, &paymentType,
		&e.Date, &e.RawMessage, &e.IsImpulsive); err != nil {
		return core.Expense{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	e.Amount = d
	e.Category = core.Category(category)
	e.PaymentType = core.PaymentType(paymentType)
	e.Date = e.Date.UTC()
	return e, nil
}
