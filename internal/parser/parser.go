// Package parser turns free-text payment notifications (UPI SMS and similar)
// into a best-guess expense.
//
// Extraction is heuristic and lossy. Parse never fails: anything it cannot
// read falls back to a default (amount 0, category Misc, a generic note).
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

// DefaultNote is used when no merchant can be resolved.
const DefaultNote = "UPI Payment"

var (
	amountRe = regexp.MustCompile(`(?i)(?:\bRs\.?|\bINR|\bAmt:)\s*(\d[\d,]*(?:\.\d{1,2})?)`)

	// A lead-in word, an optional second lead-in ("paid to"), then a lazy run
	// of merchant characters up to a trailing marker or end of text.
	merchantRe = regexp.MustCompile(`(?i)(?:\b(?:to|at|paid)|\bref:)\s+(?:(?:to|at)\s+)?([a-z][a-z0-9 &'_\-]*?)(?:\s+(?:for|via|on|ref)\b|\s*@|\s*\.|\s*,|\s*$)`)

	// Captures that are really a currency marker or another marker word.
	notMerchantRe = regexp.MustCompile(`(?i)^(?:rs|inr|amt|for|via|on|ref|to|at|paid)\b`)
)

// Parser extracts expenses from notification text. The zero value is not
// usable; call New.
type Parser struct {
	now func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock overrides the source of the parse timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = New()

// Parse runs the default parser.
func Parse(message string) core.ParsedMessage {
	return defaultParser.Parse(message)
}

// Parse returns the parser's best guess for message. Date is always the parse
// time; dates written in the message are ignored.
func (p *Parser) Parse(message string) core.ParsedMessage {
	note := DefaultNote
	if merchant, ok := Merchant(message); ok {
		note = "Paid to " + merchant
	}

	return core.ParsedMessage{
		Amount:          Amount(message),
		Category:        Classify(message),
		Note:            note,
		Date:            p.now().UTC(),
		OriginalMessage: message,
	}
}

// Amount returns the first currency-marked amount in message, or zero.
func Amount(message string) decimal.Decimal {
	m := amountRe.FindStringSubmatch(message)
	if m == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Merchant reads the payee from the message structure, falling back to the
// known merchant list.
func Merchant(message string) (string, bool) {
	if m, ok := structuredMerchant(message); ok {
		return m, true
	}
	return knownMerchant(strings.ToLower(message))
}

func structuredMerchant(message string) (string, bool) {
	pos := 0
	for pos < len(message) {
		loc := merchantRe.FindStringSubmatchIndex(message[pos:])
		if loc == nil {
			return "", false
		}
		candidate := strings.TrimSpace(message[pos+loc[2] : pos+loc[3]])
		if len(candidate) >= 2 && !notMerchantRe.MatchString(candidate) {
			return candidate, true
		}
		// Resume inside the rejected run so "paid Rs 50 to X" still finds X.
		pos += loc[2]
	}
	return "", false
}
