package parser

import (
	"strings"

	"spendwise/internal/core"
)

// categoryRule maps a keyword set to a category. Rules are evaluated in
// slice order and the first rule with any keyword present wins.
type categoryRule struct {
	category core.Category
	keywords []string
}

var categoryRules = []categoryRule{
	{core.Food, []string{"zomato", "swiggy", "food", "restaurant", "cafe", "eat", "lunch", "dinner"}},
	{core.Travel, []string{"uber", "ola", "travel", "fuel", "petrol", "auto", "taxi"}},
	{core.Essentials, []string{"amazon", "flipkart", "shopping", "blinkit", "zepto", "grocery"}},
	{core.Entertainment, []string{"netflix", "movie", "cinema", "spotify", "game", "prime"}},
	{core.Academics, []string{"fees", "books", "course", "exam", "library"}},
}

// knownMerchants is scanned in order when no merchant could be read from the
// message structure.
var knownMerchants = []string{
	// food delivery
	"zomato", "swiggy",
	// ride-hailing
	"uber", "ola", "rapido",
	// e-commerce and quick commerce
	"amazon", "flipkart", "myntra", "blinkit", "zepto", "bigbasket",
	// streaming
	"netflix", "spotify", "hotstar",
	// telecom
	"jio", "airtel",
	// payment apps
	"paytm", "phonepe", "gpay",
}

func (r categoryRule) matches(lower string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Classify returns the category of the first matching rule, or Misc.
func Classify(message string) core.Category {
	lower := strings.ToLower(message)
	for _, r := range categoryRules {
		if r.matches(lower) {
			return r.category
		}
	}
	return core.Misc
}

func knownMerchant(lower string) (string, bool) {
	for _, m := range knownMerchants {
		if strings.Contains(lower, m) {
			return strings.ToUpper(m[:1]) + m[1:], true
		}
	}
	return "", false
}
