package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"spendwise/internal/core"
	"spendwise/internal/ledger"
)

// RepositoryTestSuite runs against a fresh on-disk database per test.
type RepositoryTestSuite struct {
	suite.Suite
	repo *SQLiteRepository
	ctx  context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	repo, err := NewSQLiteRepository(filepath.Join(s.T().TempDir(), "ledger.db"))
	require.NoError(s.T(), err, "failed to create test database")
	s.repo = repo
	s.ctx = context.Background()
}

func (s *RepositoryTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *RepositoryTestSuite) expense(user, amount string, c core.Category, d time.Time) core.Expense {
	return core.Expense{
		UserID:      user,
		Amount:      decimal.RequireFromString(amount),
		Category:    c,
		PaymentType: core.PaymentManual,
		Date:        d,
	}
}

func (s *RepositoryTestSuite) TestCreateAndGet() {
	d := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	in := s.expense("u1", "250.50", core.Food, d)
	in.Note = "Paid to Zomato"
	in.PaymentType = core.PaymentUPI
	in.RawMessage = "Paid Rs 250.50 to Zomato"

	created, err := s.repo.CreateExpense(s.ctx, in)
	require.NoError(s.T(), err)
	assert.NotZero(s.T(), created.ID)

	got, err := s.repo.GetExpense(s.ctx, created.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), got.Amount.Equal(decimal.RequireFromString("250.50")))
	assert.Equal(s.T(), core.Food, got.Category)
	assert.Equal(s.T(), core.PaymentUPI, got.PaymentType)
	assert.Equal(s.T(), "Paid to Zomato", got.Note)
	assert.Equal(s.T(), in.RawMessage, got.RawMessage)
	assert.True(s.T(), got.Date.Equal(d))
	assert.False(s.T(), got.IsImpulsive)
}

func (s *RepositoryTestSuite) TestCreateRejectsInvalid() {
	_, err := s.repo.CreateExpense(s.ctx, s.expense("u1", "0", core.Food, time.Now()))
	assert.ErrorIs(s.T(), err, core.ErrInvalidAmount)
}

func (s *RepositoryTestSuite) TestCreateRoundsAmount() {
	_, err := s.repo.CreateExpense(s.ctx, s.expense("u1", "0.004", core.Food, time.Now()))
	assert.ErrorIs(s.T(), err, core.ErrInvalidAmount)

	created, err := s.repo.CreateExpense(s.ctx, s.expense("u1", "12.345", core.Food, time.Now()))
	require.NoError(s.T(), err)
	assert.True(s.T(), created.Amount.Equal(decimal.RequireFromString("12.35")))

	got, err := s.repo.GetExpense(s.ctx, created.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), got.Amount.Equal(created.Amount), "returned and stored amounts agree")
	assert.NoError(s.T(), got.Validate())
}

func (s *RepositoryTestSuite) TestGetMissing() {
	_, err := s.repo.GetExpense(s.ctx, 999)
	assert.ErrorIs(s.T(), err, ledger.ErrNotFound)
}

func (s *RepositoryTestSuite) TestUpdateAndDelete() {
	created, err := s.repo.CreateExpense(s.ctx, s.expense("u1", "10", core.Misc, time.Now()))
	require.NoError(s.T(), err)

	created.Category = core.Shopping
	created.IsImpulsive = true
	_, err = s.repo.UpdateExpense(s.ctx, created)
	require.NoError(s.T(), err)

	got, err := s.repo.GetExpense(s.ctx, created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), core.Shopping, got.Category)
	assert.True(s.T(), got.IsImpulsive)

	require.NoError(s.T(), s.repo.DeleteExpense(s.ctx, created.ID))
	assert.ErrorIs(s.T(), s.repo.DeleteExpense(s.ctx, created.ID), ledger.ErrNotFound)

	created.ID = 12345
	_, err = s.repo.UpdateExpense(s.ctx, created)
	assert.ErrorIs(s.T(), err, ledger.ErrNotFound)
}

func (s *RepositoryTestSuite) TestListExpensesFiltersAndOrder() {
	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	for _, e := range []core.Expense{
		s.expense("u1", "1", core.Food, base),
		s.expense("u1", "2", core.Travel, base.AddDate(0, 0, 1)),
		s.expense("u1", "3", core.Food, base.AddDate(0, 0, 2)),
		s.expense("u2", "4", core.Food, base.AddDate(0, 0, 3)),
	} {
		_, err := s.repo.CreateExpense(s.ctx, e)
		require.NoError(s.T(), err)
	}

	all, err := s.repo.GetExpenses(s.ctx, "u1")
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 3)
	assert.True(s.T(), all[0].Amount.Equal(decimal.NewFromInt(3)), "newest first")

	food, err := s.repo.ListExpenses(s.ctx, "u1", core.ExpenseFilter{Category: core.Food})
	require.NoError(s.T(), err)
	assert.Len(s.T(), food, 2)

	window, err := s.repo.ListExpenses(s.ctx, "u1", core.ExpenseFilter{
		StartDate: base.AddDate(0, 0, 1),
		EndDate:   base.AddDate(0, 0, 1),
	})
	require.NoError(s.T(), err)
	require.Len(s.T(), window, 1)
	assert.Equal(s.T(), core.Travel, window[0].Category)

	none, err := s.repo.GetExpenses(s.ctx, "nobody")
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), none)
	assert.Empty(s.T(), none)
}

func (s *RepositoryTestSuite) TestSyncStatusLifecycle() {
	a, err := s.repo.CreateExpense(s.ctx, s.expense("u1", "5", core.Food, time.Now()))
	require.NoError(s.T(), err)
	b, err := s.repo.CreateExpense(s.ctx, s.expense("u1", "6", core.Food, time.Now()))
	require.NoError(s.T(), err)

	pending, err := s.repo.GetPendingSyncExpenses(s.ctx, 10)
	require.NoError(s.T(), err)
	assert.Len(s.T(), pending, 2)

	require.NoError(s.T(), s.repo.MarkSynced(s.ctx, a.ID))
	require.NoError(s.T(), s.repo.MarkSyncError(s.ctx, b.ID))

	pending, err = s.repo.GetPendingSyncExpenses(s.ctx, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), pending, 1)
	assert.Equal(s.T(), b.ID, pending[0].ID)

	// An update re-queues a synced row.
	_, err = s.repo.UpdateExpense(s.ctx, a)
	require.NoError(s.T(), err)
	pending, err = s.repo.GetPendingSyncExpenses(s.ctx, 10)
	require.NoError(s.T(), err)
	assert.Len(s.T(), pending, 2)

	assert.ErrorIs(s.T(), s.repo.MarkSynced(s.ctx, 9999), ledger.ErrNotFound)
}

func (s *RepositoryTestSuite) TestMigrationsAreIdempotent() {
	path := filepath.Join(s.T().TempDir(), "again.db")
	require.NoError(s.T(), RunMigrations(path))
	require.NoError(s.T(), RunMigrations(path))
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
