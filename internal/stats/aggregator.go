// Package stats computes the dashboard summary for one user's ledger.
//
// Compute is a pure function of its input: it does no I/O, keeps no state and
// may be called concurrently. Callers must pass the complete, unfiltered
// ledger; percentages and monthly buckets are only meaningful over the full set.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

// RecentLimit is the number of expenses returned in RecentExpenses.
const RecentLimit = 5

var hundred = decimal.NewFromInt(100)

// Compute builds the dashboard summary for a ledger.
func Compute(expenses []core.Expense) core.DashboardStats {
	total := Total(expenses)
	s := core.DashboardStats{
		TotalSpent:     total,
		CategoryStats:  ByCategory(expenses, total),
		MonthlyStats:   ByMonth(expenses),
		RecentExpenses: Recent(expenses, RecentLimit),
	}
	s.Insights = Insights(s, expenses)
	return s
}

// Total sums every amount in the ledger.
func Total(expenses []core.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// ByCategory returns one stat per category present, largest total first.
// Ties are broken by category name so the order is stable across calls.
func ByCategory(expenses []core.Expense, totalSpent decimal.Decimal) []core.CategoryStat {
	totals := make(map[core.Category]decimal.Decimal)
	for _, e := range expenses {
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}

	out := make([]core.CategoryStat, 0, len(totals))
	for c, t := range totals {
		out = append(out, core.CategoryStat{
			Category:   c,
			Total:      t,
			Percentage: Percentage(t, totalSpent),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].Total.Cmp(out[j].Total); cmp != 0 {
			return cmp > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Percentage returns part as a percentage of whole, or 0 when whole is zero.
func Percentage(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Mul(hundred).Div(whole).InexactFloat64()
}

// ByMonth buckets spending by calendar month, ordered January to December.
// Expenses from different years that share a month land in the same bucket.
func ByMonth(expenses []core.Expense) []core.MonthlyStat {
	var totals [12]decimal.Decimal
	var seen [12]bool
	for _, e := range expenses {
		i := int(e.Date.Month()) - 1
		totals[i] = totals[i].Add(e.Amount)
		seen[i] = true
	}

	out := make([]core.MonthlyStat, 0, 12)
	for i := range totals {
		if !seen[i] {
			continue
		}
		out = append(out, core.MonthlyStat{
			Month: MonthLabel(time.Month(i + 1)),
			Total: totals[i],
		})
	}
	return out
}

// MonthLabel returns the short English month name ("Jan").
func MonthLabel(m time.Month) string {
	return m.String()[:3]
}

// Recent returns up to n expenses, newest first. Expenses sharing a date are
// ordered by descending ID. The input slice is not modified.
func Recent(expenses []core.Expense, n int) []core.Expense {
	sorted := make([]core.Expense, len(expenses))
	copy(sorted, expenses)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.After(sorted[j].Date)
		}
		return sorted[i].ID > sorted[j].ID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
