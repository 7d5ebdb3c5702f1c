package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	"spendwise/internal/ledger"
	"spendwise/internal/ledger/memory"
)

type fakeSheets struct {
	mu       sync.Mutex
	rows     []string
	deleted  []int64
	failNext bool
}

func (f *fakeSheets) AppendExpense(_ context.Context, e core.Expense, action string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return "", errors.New("quota exceeded")
	}
	f.rows = append(f.rows, action)
	return "Ledger!A2:I2", nil
}

func (f *fakeSheets) AppendDeletion(_ context.Context, id int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return "Ledger!A3:I3", nil
}

func (f *fakeSheets) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeTracker struct {
	mu      sync.Mutex
	pending []ledger.PendingSync
	synced  map[int64]bool
	errored map[int64]bool
}

func newTracker(ids ...int64) *fakeTracker {
	t := &fakeTracker{synced: map[int64]bool{}, errored: map[int64]bool{}}
	for _, id := range ids {
		t.pending = append(t.pending, ledger.PendingSync{ID: id, UserID: "u1"})
	}
	return t
}

func (f *fakeTracker) GetPendingSyncExpenses(_ context.Context, limit int) ([]ledger.PendingSync, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledger.PendingSync, 0)
	for _, p := range f.pending {
		if !f.synced[p.ID] && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeTracker) MarkSynced(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced[id] = true
	return nil
}

func (f *fakeTracker) MarkSyncError(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errored[id] = true
	return nil
}

func seedStore(t *testing.T) (*memory.Store, core.Expense) {
	t.Helper()
	store := memory.New()
	e, err := store.CreateExpense(context.Background(), core.Expense{
		UserID:      "u1",
		Amount:      decimal.NewFromInt(120),
		Category:    core.Food,
		PaymentType: core.PaymentUPI,
		Date:        time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return store, e
}

func TestHandleLedgerChanged_CreatedMarksSynced(t *testing.T) {
	store, e := seedStore(t)
	sheets := &fakeSheets{}
	tracker := newTracker(e.ID)
	w := NewSyncWorker(store, sheets, tracker, 10)

	err := w.HandleLedgerChanged(context.Background(), amqp.NewLedgerChangedMessage("u1", e.ID, amqp.ActionCreated))
	require.NoError(t, err)
	assert.Equal(t, []string{"created"}, sheets.rows)
	assert.True(t, tracker.synced[e.ID])
}

func TestHandleLedgerChanged_SheetsFailureRequeues(t *testing.T) {
	store, e := seedStore(t)
	sheets := &fakeSheets{failNext: true}
	tracker := newTracker(e.ID)
	w := NewSyncWorker(store, sheets, tracker, 10)

	err := w.HandleLedgerChanged(context.Background(), amqp.NewLedgerChangedMessage("u1", e.ID, amqp.ActionUpdated))
	require.Error(t, err)
	assert.True(t, tracker.errored[e.ID])
	assert.False(t, tracker.synced[e.ID])
}

func TestHandleLedgerChanged_Deleted(t *testing.T) {
	sheets := &fakeSheets{}
	w := NewSyncWorker(memory.New(), sheets, nil, 10)

	require.NoError(t, w.HandleLedgerChanged(context.Background(), amqp.NewLedgerChangedMessage("u1", 42, amqp.ActionDeleted)))
	assert.Equal(t, []int64{42}, sheets.deleted)
}

func TestHandleLedgerChanged_VanishedExpenseIsAcked(t *testing.T) {
	sheets := &fakeSheets{}
	w := NewSyncWorker(memory.New(), sheets, nil, 10)

	require.NoError(t, w.HandleLedgerChanged(context.Background(), amqp.NewLedgerChangedMessage("u1", 404, amqp.ActionCreated)))
	assert.Equal(t, 0, sheets.count())
}

func TestProcessPending(t *testing.T) {
	store, e := seedStore(t)
	sheets := &fakeSheets{}
	tracker := newTracker(e.ID, 999) // 999 does not exist
	w := NewSyncWorker(store, sheets, tracker, 10)

	synced, failed, err := w.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"resync"}, sheets.rows)

	// Without a tracker there is nothing to do.
	synced, failed, err = NewSyncWorker(store, sheets, nil, 0).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, synced+failed)
}

func TestPollerLifecycle(t *testing.T) {
	store, e := seedStore(t)
	sheets := &fakeSheets{}
	p := NewPoller(NewSyncWorker(store, sheets, newTracker(e.ID), 10), PollerConfig{PollInterval: 10 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	assert.Error(t, p.Start(ctx), "second start is rejected")
	assert.True(t, p.IsRunning())

	assert.Eventually(t, func() bool { return sheets.count() >= 1 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop(stopCtx))
}
