package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"spendwise/internal/core"
)

func TestListQueryPlaceholders(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		filter    core.ExpenseFilter
		wantWhere string
		wantArgs  int
	}{
		{"no filter", core.ExpenseFilter{}, "WHERE user_id = $1 ORDER BY", 1},
		{"category", core.ExpenseFilter{Category: core.Food}, "user_id = $1 AND category = $2 ORDER BY", 2},
		{"dates only", core.ExpenseFilter{StartDate: start, EndDate: end}, "user_id = $1 AND date >= $2 AND date <= $3 ORDER BY", 3},
		{"all", core.ExpenseFilter{Category: core.Food, StartDate: start, EndDate: end}, "category = $2 AND date >= $3 AND date <= $4", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := listQuery("u1", tt.filter)
			assert.Contains(t, q, tt.wantWhere)
			assert.Contains(t, q, "ORDER BY date DESC, id DESC")
			assert.Len(t, args, tt.wantArgs)
			assert.Equal(t, "u1", args[0])
		})
	}
}
