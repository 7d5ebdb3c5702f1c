package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	"spendwise/internal/ledger"
	applog "spendwise/internal/log"
)

// ErrForbidden is returned when a caller touches an expense owned by someone else.
var ErrForbidden = errors.New("expense belongs to another user")

// EventPublisher announces ledger mutations. *amqp.Client implements it.
type EventPublisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

// Invalidator drops cached derived state for a user.
type Invalidator interface {
	Invalidate(userID string)
}

// ExpenseService orchestrates expense mutations across the store, the stats
// cache and the event bus.
type ExpenseService struct {
	store     ledger.Store
	publisher EventPublisher
	stats     Invalidator
	now       func() time.Time
	logger    *applog.Logger
}

// NewExpenseService wires the service. publisher and stats may be nil.
func NewExpenseService(store ledger.Store, publisher EventPublisher, stats Invalidator) *ExpenseService {
	return &ExpenseService{
		store:     store,
		publisher: publisher,
		stats:     stats,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    applog.FromContext(context.Background()).WithComponent(applog.ComponentExpense),
	}
}

// WithLogger replaces the service logger.
func (s *ExpenseService) WithLogger(l *applog.Logger) *ExpenseService {
	s.logger = l.WithComponent(applog.ComponentExpense)
	return s
}

// Create stores e as a new expense owned by userID.
func (s *ExpenseService) Create(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	e.ID = 0
	e.UserID = userID
	e.Normalize(s.now())
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.logSaved(ctx, applog.OpCreate, created)

	s.afterMutation(ctx, userID, created.ID, amqp.ActionCreated)
	return created, nil
}

// Get returns one expense, checking that userID owns it.
func (s *ExpenseService) Get(ctx context.Context, userID string, id int64) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if e.UserID != userID {
		return core.Expense{}, ErrForbidden
	}
	return e, nil
}

// List returns the caller's expenses matching f, newest first.
func (s *ExpenseService) List(ctx context.Context, userID string, f core.ExpenseFilter) ([]core.Expense, error) {
	out, err := s.store.ListExpenses(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

// Update applies a partial update to an expense the caller owns.
func (s *ExpenseService) Update(ctx context.Context, userID string, id int64, p core.ExpensePatch) (core.Expense, error) {
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return core.Expense{}, err
	}

	next := current.Apply(p)
	if err := next.Validate(); err != nil {
		return core.Expense{}, err
	}

	updated, err := s.store.UpdateExpense(ctx, next)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.logSaved(ctx, applog.OpUpdate, updated)
	s.afterMutation(ctx, userID, id, amqp.ActionUpdated)
	return updated, nil
}

// Delete removes an expense the caller owns.
func (s *ExpenseService) Delete(ctx context.Context, userID string, id int64) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.afterMutation(ctx, userID, id, amqp.ActionDeleted)
	return nil
}

// afterMutation invalidates cached stats and announces the change. Publish
// failures are logged only: the store is the source of truth.
func (s *ExpenseService) afterMutation(ctx context.Context, userID string, id int64, action amqp.Action) {
	if s.stats != nil {
		s.stats.Invalidate(userID)
	}

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping ledger event",
			applog.FieldExpenseID, id)
		return
	}
	if err := s.publisher.PublishLedgerChanged(ctx, amqp.NewLedgerChangedMessage(userID, id, action)); err != nil {
		applog.NewStructuredLogger(s.logger).LogError(ctx, "Failed to publish ledger event", err,
			applog.ComponentAMQP, string(action),
			applog.LogFields{applog.FieldUserID: userID, applog.FieldExpenseID: id})
	}
}

func (s *ExpenseService) logSaved(ctx context.Context, op string, e core.Expense) {
	applog.NewStructuredLogger(s.logger).LogExpenseSaved(ctx, op, e.UserID, e.ID,
		e.Amount.StringFixed(core.AmountPlaces), e.Category.String(), string(e.PaymentType))
}
