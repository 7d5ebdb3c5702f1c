package ledger

import (
	"context"
	"errors"

	"spendwise/internal/core"
)

// ErrNotFound is returned when an expense ID does not exist in the store.
var ErrNotFound = errors.New("expense not found")

// Ports for outbound storage adapters.
type (
	// ExpenseReader returns a user's ledger. GetExpenses must return the full,
	// unfiltered set: the stats aggregator depends on it.
	ExpenseReader interface {
		GetExpenses(ctx context.Context, userID string) ([]core.Expense, error)
	}

	// ExpenseLister returns a filtered view of a user's ledger, newest first.
	ExpenseLister interface {
		ListExpenses(ctx context.Context, userID string, f core.ExpenseFilter) ([]core.Expense, error)
	}

	// ExpenseGetter fetches one expense by ID regardless of owner. Ownership
	// checks belong to the caller.
	ExpenseGetter interface {
		GetExpense(ctx context.Context, id int64) (core.Expense, error)
	}

	ExpenseWriter interface {
		// CreateExpense stores e and returns it with its assigned ID.
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		// UpdateExpense replaces the stored fields of e.ID.
		UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	}

	ExpenseDeleter interface {
		DeleteExpense(ctx context.Context, id int64) error
	}

	// Store is everything the service layer needs from a backend.
	Store interface {
		ExpenseReader
		ExpenseLister
		ExpenseGetter
		ExpenseWriter
		ExpenseDeleter
	}
)

// PendingSync identifies an expense the spreadsheet mirror has not confirmed.
type PendingSync struct {
	ID     int64
	UserID string
}

// SyncTracker is implemented by backends that persist mirror status.
type SyncTracker interface {
	GetPendingSyncExpenses(ctx context.Context, limit int) ([]PendingSync, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}
