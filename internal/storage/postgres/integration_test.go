//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
	"spendwise/internal/ledger"
)

// Integration tests require a reachable PostgreSQL.
// Run with: TEST_DATABASE_URL=postgres://... go test -tags=integration ./internal/storage/postgres

func TestIntegration_PostgresLedger(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	repo, err := Open(ctx, url)
	require.NoError(t, err)
	defer repo.Close()

	user := "it-" + time.Now().Format("150405.000000")
	created, err := repo.CreateExpense(ctx, core.Expense{
		UserID:      user,
		Amount:      decimal.RequireFromString("99.50"),
		Category:    core.Food,
		PaymentType: core.PaymentUPI,
		Note:        "Paid to Cafe",
		Date:        time.Now().UTC().Truncate(time.Microsecond),
	})
	require.NoError(t, err)

	got, err := repo.GetExpense(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(created.Amount))
	assert.Equal(t, user, got.UserID)

	list, err := repo.ListExpenses(ctx, user, core.ExpenseFilter{Category: core.Food})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.DeleteExpense(ctx, created.ID))
	_, err = repo.GetExpense(ctx, created.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
