package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
	"spendwise/internal/ledger"

	_ "modernc.org/sqlite"
)

// Dates are stored as fixed-width UTC text so that lexical order equals
// chronological order.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

// Sync states for the spreadsheet mirror.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

const expenseColumns = `id, user_id, amount, category, note, payment_type, date, raw_message, is_impulsive`

var (
	_ ledger.Store       = (*SQLiteRepository)(nil)
	_ ledger.SyncTracker = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable. Used by /readyz.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Amount = core.RoundAmount(e.Amount)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount, category, note, payment_type, date, raw_message, is_impulsive)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Amount.StringFixed(core.AmountPlaces), string(e.Category), e.Note, string(e.PaymentType),
		formatDate(e.Date), e.RawMessage, e.IsImpulsive)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("read expense id: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"amount", e.Amount.StringFixed(core.AmountPlaces),
		"category", e.Category)

	return e, nil
}

// UpdateExpense rewrites every stored field and re-queues the row for the
// spreadsheet mirror.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Amount = core.RoundAmount(e.Amount)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses
		    SET amount = ?, category = ?, note = ?, payment_type = ?, date = ?,
		        raw_message = ?, is_impulsive = ?, sync_status = ?,
		        updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		  WHERE id = ?`,
		e.Amount.StringFixed(core.AmountPlaces), string(e.Category), e.Note, string(e.PaymentType), formatDate(e.Date),
		e.RawMessage, e.IsImpulsive, SyncPending, e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	return expectOneRow(res)
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) GetExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return r.ListExpenses(ctx, userID, core.ExpenseFilter{})
}

// ListExpenses returns a user's expenses matching f, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string, f core.ExpenseFilter) ([]core.Expense, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if !f.StartDate.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatDate(f.StartDate))
	}
	if !f.EndDate.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatDate(f.EndDate))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE `+strings.Join(where, " AND ")+
			` ORDER BY date DESC, id DESC`, args...)
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
func (r *SQLiteRepository) GetPendingSyncExpenses(ctx context.Context, limit int) ([]ledger.PendingSync, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id FROM expenses WHERE sync_status != ? ORDER BY id LIMIT ?`, SyncDone, limit)
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

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, SyncDone); err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	slog.InfoContext(ctx, "Expense marked as synced", "id", id)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, SyncError); err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with sync error", "id", id)
	return nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE expenses SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(s rowScanner) (core.Expense, error) {
	var (
		e                             core.Expense
		amount, category, paymentType string
		date                          string
	)
	if err := s.Scan(&e.ID, &e.UserID, &amount, &category, &e.Note, &paymentType,
		&date, &e.RawMessage, &e.IsImpulsive); err != nil {
		return core.Expense{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	e.Amount = d
	e.Category = core.Category(category)
	e.PaymentType = core.PaymentType(paymentType)
	e.Date = t
	return e, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
