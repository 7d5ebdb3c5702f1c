// Package worker mirrors ledger changes into the spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	"spendwise/internal/ledger"
	applog "spendwise/internal/log"
)

// RowWriter appends mirror rows. *google.Client implements it.
type RowWriter interface {
	AppendExpense(ctx context.Context, e core.Expense, action string) (string, error)
	AppendDeletion(ctx context.Context, id int64, userID string) (string, error)
}

// SyncWorker writes each ledger change to the spreadsheet and records the
// outcome when the backend tracks mirror status.
type SyncWorker struct {
	store     ledger.ExpenseGetter
	sheets    RowWriter
	tracker   ledger.SyncTracker
	batchSize int
	logger    *applog.Logger
}

// NewSyncWorker wires the worker. tracker may be nil for backends that do not
// persist sync status.
func NewSyncWorker(store ledger.ExpenseGetter, sheets RowWriter, tracker ledger.SyncTracker, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		store:     store,
		sheets:    sheets,
		tracker:   tracker,
		batchSize: batchSize,
		logger:    applog.FromContext(context.Background()).WithComponent(applog.ComponentWorker),
	}
}

// HandleLedgerChanged processes one AMQP event. Returning an error requeues it.
func (w *SyncWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		applog.FieldMessageID, msg.MessageID,
		applog.FieldExpenseID, msg.ExpenseID,
		"action", msg.Action)

	if msg.Action == amqp.ActionDeleted {
		if _, err := w.sheets.AppendDeletion(ctx, msg.ExpenseID, msg.UserID); err != nil {
			return fmt.Errorf("append deletion to sheets: %w", err)
		}
		return nil
	}

	e, err := w.store.GetExpense(ctx, msg.ExpenseID)
	if errors.Is(err, ledger.ErrNotFound) {
		// Deleted before we got here; the delete event will record it.
		w.logger.WarnContext(ctx, "Expense vanished before sync, skipping",
			applog.FieldExpenseID, msg.ExpenseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	return w.syncExpense(ctx, e, string(msg.Action))
}

// ProcessPending re-syncs expenses the tracker still reports as unsynced. It
// recovers from lost messages and worker downtime.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced, failed int, err error) {
	if w.tracker == nil {
		return 0, 0, nil
	}
	pending, err := w.tracker.GetPendingSyncExpenses(ctx, w.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending expenses", "count", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		e, err := w.store.GetExpense(ctx, p.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to get expense", applog.FieldExpenseID, p.ID, applog.FieldError, err)
			failed++
			continue
		}
		if err := w.syncExpense(ctx, e, "resync"); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync expense", applog.FieldExpenseID, p.ID, applog.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Pending sync pass completed",
		"total", len(pending), "synced", synced, "errors", failed)
	return synced, failed, nil
}

func (w *SyncWorker) syncExpense(ctx context.Context, e core.Expense, action string) error {
	ref, err := w.sheets.AppendExpense(ctx, e, action)
	if err != nil {
		if w.tracker != nil {
			if markErr := w.tracker.MarkSyncError(ctx, e.ID); markErr != nil {
				w.logger.ErrorContext(ctx, "Failed to mark sync error", applog.FieldExpenseID, e.ID, applog.FieldError, markErr)
			}
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	if w.tracker != nil {
		if err := w.tracker.MarkSynced(ctx, e.ID); err != nil {
			// The row is written; a stale status only causes a duplicate resync row.
			w.logger.ErrorContext(ctx, "Failed to mark as synced", applog.FieldExpenseID, e.ID, applog.FieldError, err)
		}
	}

	w.logger.InfoContext(ctx, "Synced expense to sheets",
		applog.FieldExpenseID, e.ID,
		"sheets_ref", ref,
		"action", action)
	return nil
}
