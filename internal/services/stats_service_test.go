package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/amqp"
	"spendwise/internal/cache"
	"spendwise/internal/core"
	"spendwise/internal/ledger/memory"
	"spendwise/internal/stats"
)

type countingReader struct {
	inner *memory.Store
	calls int
	err   error
}

func (c *countingReader) GetExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.GetExpenses(ctx, userID)
}

func seed(t *testing.T, store *memory.Store, user string, amount int64, c core.Category) {
	t.Helper()
	_, err := store.CreateExpense(context.Background(), core.Expense{
		UserID:      user,
		Amount:      decimal.NewFromInt(amount),
		Category:    c,
		PaymentType: core.PaymentManual,
		Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func TestStatsService_DashboardCachesPerUser(t *testing.T) {
	store := memory.New()
	seed(t, store, "u1", 100, core.Entertainment)
	seed(t, store, "u1", 200, core.Food)
	reader := &countingReader{inner: store}
	s := NewStatsService(reader, cache.NewLRUCache[core.DashboardStats](10, time.Minute))

	first, err := s.Dashboard(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, first.TotalSpent.Equal(decimal.NewFromInt(300)))
	require.Len(t, first.Insights, 2)
	assert.Equal(t, stats.InsightEntertainment, first.Insights[0].ID)

	_, err = s.Dashboard(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, reader.calls, "second call served from cache")

	_, err = s.Dashboard(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls)
}

func TestStatsService_InvalidationThroughExpenseService(t *testing.T) {
	store := memory.New()
	reader := &countingReader{inner: store}
	st := NewStatsService(reader, cache.NewLRUCache[core.DashboardStats](10, time.Minute))
	svc := NewExpenseService(store, nil, st)
	ctx := context.Background()

	empty, err := st.Dashboard(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, stats.InsightDefault, empty.Insights[0].ID)

	_, err = svc.Create(ctx, "u1", core.Expense{Amount: decimal.NewFromInt(50), Category: core.Food})
	require.NoError(t, err)

	fresh, err := st.Dashboard(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, fresh.TotalSpent.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 2, reader.calls)
}

func TestStatsService_HandleLedgerChanged(t *testing.T) {
	store := memory.New()
	reader := &countingReader{inner: store}
	s := NewStatsService(reader, cache.NewLRUCache[core.DashboardStats](10, time.Minute))
	ctx := context.Background()

	_, _ = s.Dashboard(ctx, "u1")
	require.NoError(t, s.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage("u1", 1, amqp.ActionCreated)))
	_, _ = s.Dashboard(ctx, "u1")
	assert.Equal(t, 2, reader.calls)
}

func TestStatsService_NoCacheAndErrors(t *testing.T) {
	reader := &countingReader{inner: memory.New(), err: errors.New("db down")}
	s := NewStatsService(reader, nil)

	_, err := s.Dashboard(context.Background(), "u1")
	assert.ErrorContains(t, err, "db down")

	reader.err = nil
	_, _ = s.Dashboard(context.Background(), "u1")
	_, _ = s.Dashboard(context.Background(), "u1")
	assert.Equal(t, 3, reader.calls)
	s.Invalidate("u1")
}

// blockingReader parks GetExpenses until released so a mutation can land
// between the ledger read and the cache write.
type blockingReader struct {
	inner   *memory.Store
	entered chan struct{}
	release chan struct{}
	blocked bool
}

func (b *blockingReader) GetExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	expenses, err := b.inner.GetExpenses(ctx, userID)
	if !b.blocked {
		b.blocked = true
		close(b.entered)
		<-b.release
	}
	return expenses, err
}

func TestStatsService_InvalidationDuringComputeIsNotCached(t *testing.T) {
	store := memory.New()
	reader := &blockingReader{inner: store, entered: make(chan struct{}), release: make(chan struct{})}
	st := NewStatsService(reader, cache.NewLRUCache[core.DashboardStats](10, time.Minute))
	svc := NewExpenseService(store, nil, st)
	ctx := context.Background()

	done := make(chan core.DashboardStats)
	go func() {
		stale, err := st.Dashboard(ctx, "u")
		assert.NoError(t, err)
		done <- stale
	}()

	<-reader.entered
	_, err := svc.Create(ctx, "u", core.Expense{Amount: decimal.NewFromInt(100), Category: core.Food})
	require.NoError(t, err)
	close(reader.release)

	stale := <-done
	assert.True(t, stale.TotalSpent.IsZero(), "in-flight read saw the old ledger")

	fresh, err := st.Dashboard(ctx, "u")
	require.NoError(t, err)
	assert.True(t, fresh.TotalSpent.Equal(decimal.NewFromInt(100)))
}
