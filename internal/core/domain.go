package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Food          Category = "Food"
	Travel        Category = "Travel"
	Academics     Category = "Academics"
	Entertainment Category = "Entertainment"
	Essentials    Category = "Essentials"
	Shopping      Category = "Shopping"
	Misc          Category = "Misc"
)

const (
	PaymentManual PaymentType = "manual"
	PaymentUPI    PaymentType = "upi"
)

// MaxNoteLength bounds the free-text note stored with an expense.
const MaxNoteLength = 500

type (
	Category    string
	PaymentType string

	Expense struct {
		ID          int64           `json:"id"`
		UserID      string          `json:"userId"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Note        string          `json:"note,omitempty"`
		PaymentType PaymentType     `json:"paymentType"`
		Date        time.Time       `json:"date"`
		RawMessage  string          `json:"rawMessage,omitempty"`
		IsImpulsive bool            `json:"isImpulsive"`
	}

	// ExpensePatch carries a partial update. Nil fields are left untouched.
	ExpensePatch struct {
		Amount      *decimal.Decimal `json:"amount,omitempty"`
		Category    *Category        `json:"category,omitempty"`
		Note        *string          `json:"note,omitempty"`
		PaymentType *PaymentType     `json:"paymentType,omitempty"`
		Date        *time.Time       `json:"date,omitempty"`
		RawMessage  *string          `json:"rawMessage,omitempty"`
		IsImpulsive *bool            `json:"isImpulsive,omitempty"`
	}

	// ExpenseFilter narrows a ledger listing. Zero values mean "no filter".
	ExpenseFilter struct {
		Category  Category
		StartDate time.Time
		EndDate   time.Time
	}
)

var (
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidCategory    = errors.New("unknown category")
	ErrInvalidPaymentType = errors.New("unknown payment type")
	ErrEmptyUser          = errors.New("expense has no owner")
	ErrZeroDate           = errors.New("date cannot be zero")
	ErrNoteTooLong        = errors.New("note too long (max 500 characters)")
)

// Categories returns the fixed category enumeration in display order.
func Categories() []Category {
	return []Category{Food, Travel, Academics, Entertainment, Essentials, Shopping, Misc}
}

func (c Category) IsValid() bool {
	switch c {
	case Food, Travel, Academics, Entertainment, Essentials, Shopping, Misc:
		return true
	default:
		return false
	}
}

func (c Category) String() string {
	return string(c)
}

func (p PaymentType) IsValid() bool {
	return p == PaymentManual || p == PaymentUPI
}

// ValidationError names the offending field so the HTTP layer can report it.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Validate checks the invariants every persisted expense must satisfy.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return invalid("userId", ErrEmptyUser)
	}
	if !e.Amount.IsPositive() {
		return invalid("amount", ErrInvalidAmount)
	}
	if !e.Category.IsValid() {
		return invalid("category", ErrInvalidCategory)
	}
	if !e.PaymentType.IsValid() {
		return invalid("paymentType", ErrInvalidPaymentType)
	}
	if e.Date.IsZero() {
		return invalid("date", ErrZeroDate)
	}
	if len(e.Note) > MaxNoteLength {
		return invalid("note", ErrNoteTooLong)
	}
	return nil
}

// Normalize fills defaults for fields a client may omit on creation and rounds
// the amount to the stored precision.
func (e *Expense) Normalize(now time.Time) {
	e.Amount = RoundAmount(e.Amount)
	if e.PaymentType == "" {
		e.PaymentType = PaymentManual
	}
	if e.Date.IsZero() {
		e.Date = now
	}
	e.Note = strings.TrimSpace(e.Note)
}

// Apply merges a patch into the expense. ID and owner never change.
func (e Expense) Apply(p ExpensePatch) Expense {
	if p.Amount != nil {
		e.Amount = RoundAmount(*p.Amount)
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Note != nil {
		e.Note = strings.TrimSpace(*p.Note)
	}
	if p.PaymentType != nil {
		e.PaymentType = *p.PaymentType
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.RawMessage != nil {
		e.RawMessage = *p.RawMessage
	}
	if p.IsImpulsive != nil {
		e.IsImpulsive = *p.IsImpulsive
	}
	return e
}

// Matches reports whether the expense passes the filter. Date bounds are inclusive.
func (f ExpenseFilter) Matches(e Expense) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if !f.StartDate.IsZero() && e.Date.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && e.Date.After(f.EndDate) {
		return false
	}
	return true
}
