package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InsightWarning InsightType = "warning"
	InsightInfo    InsightType = "info"
	InsightSuccess InsightType = "success"
)

type (
	InsightType string

	// CategoryStat is the share of total spending that falls in one category.
	CategoryStat struct {
		Category   Category        `json:"category"`
		Total      decimal.Decimal `json:"total"`
		Percentage float64         `json:"percentage"`
	}

	// MonthlyStat is spending bucketed by calendar month, regardless of year.
	MonthlyStat struct {
		Month string          `json:"month"`
		Total decimal.Decimal `json:"total"`
	}

	Insight struct {
		ID                string      `json:"id"`
		Type              InsightType `json:"type"`
		Message           string      `json:"message"`
		RelatedExpenseIDs []int64     `json:"relatedExpenseIds,omitempty"`
	}

	// DashboardStats is the summary served to the dashboard for one user.
	DashboardStats struct {
		TotalSpent     decimal.Decimal `json:"totalSpent"`
		CategoryStats  []CategoryStat  `json:"categoryStats"`
		MonthlyStats   []MonthlyStat   `json:"monthlyStats"`
		RecentExpenses []Expense       `json:"recentExpenses"`
		Insights       []Insight       `json:"insights"`
	}

	// ParsedMessage is the parser's best guess at the expense behind a
	// payment notification.
	ParsedMessage struct {
		Amount          decimal.Decimal `json:"amount"`
		Category        Category        `json:"category"`
		Note            string          `json:"note"`
		Date            time.Time       `json:"date"`
		OriginalMessage string          `json:"originalMessage"`
	}
)

// Category returns the stat for c, if present.
func (s DashboardStats) Category(c Category) (CategoryStat, bool) {
	for _, cs := range s.CategoryStats {
		if cs.Category == c {
			return cs, true
		}
	}
	return CategoryStat{}, false
}
