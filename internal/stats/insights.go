package stats

import (
	"fmt"

	"spendwise/internal/core"
)

// Insight IDs are fixed per rule so clients can key on them.
const (
	InsightEntertainment = "impulsive-entertainment"
	InsightFood          = "high-food"
	InsightDefault       = "good-job"
)

const (
	entertainmentThreshold = 30.0
	foodThreshold          = 40.0
)

// insightRule fires when its category's share of spending exceeds threshold.
type insightRule struct {
	id        string
	kind      core.InsightType
	category  core.Category
	threshold float64
	message   func(pct float64) string
}

var insightRules = []insightRule{
	{
		id:        InsightEntertainment,
		kind:      core.InsightWarning,
		category:  core.Entertainment,
		threshold: entertainmentThreshold,
		message: func(pct float64) string {
			return fmt.Sprintf("Your entertainment spending is %.1f%% of your total expenses. Consider setting a limit.", pct)
		},
	},
	{
		id:        InsightFood,
		kind:      core.InsightInfo,
		category:  core.Food,
		threshold: foodThreshold,
		message: func(pct float64) string {
			return fmt.Sprintf("You're spending a lot on Food (%.1f%%). Try cooking more often!", pct)
		},
	},
}

var defaultInsight = core.Insight{
	ID:      InsightDefault,
	Type:    core.InsightSuccess,
	Message: "You're doing great! Keep tracking your expenses to get more insights.",
}

// Insights evaluates every rule in order against the computed category stats.
// The result always holds at least one insight.
func Insights(s core.DashboardStats, expenses []core.Expense) []core.Insight {
	out := make([]core.Insight, 0, len(insightRules)+1)
	for _, r := range insightRules {
		cs, ok := s.Category(r.category)
		if !ok || cs.Percentage <= r.threshold {
			continue
		}
		out = append(out, core.Insight{
			ID:                r.id,
			Type:              r.kind,
			Message:           r.message(cs.Percentage),
			RelatedExpenseIDs: idsIn(expenses, r.category),
		})
	}
	if len(out) == 0 {
		out = append(out, defaultInsight)
	}
	return out
}

func idsIn(expenses []core.Expense, c core.Category) []int64 {
	var ids []int64
	for _, e := range expenses {
		if e.Category == c && e.ID != 0 {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
