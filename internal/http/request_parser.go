// This file implements helpers for decoding request bodies and query
// parameters into domain values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

const maxBodyBytes = 64 << 10

const dayLayout = "2006-01-02"

// RequestError is a client input problem, optionally tied to a field.
type RequestError struct {
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Response converts the error into its 400 response.
func (e *RequestError) Response() *JSONResponseBuilder {
	if e.Field == "" {
		return BadRequestError(e.Message)
	}
	return FieldError(e.Field, e.Message)
}

// DecodeJSON reads one JSON object from the body into dst. Bodies larger than
// 64 KiB, trailing data and non-object documents are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		var dateErr *dateError
		switch {
		case errors.Is(err, io.EOF):
			return &RequestError{Message: "request body is empty"}
		case errors.As(err, &dateErr):
			return &RequestError{Field: "date", Message: dateErr.Error()}
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return &RequestError{Field: typeErr.Field, Message: "has the wrong type"}
		case errors.As(err, &maxErr):
			return &RequestError{Message: "request body too large"}
		default:
			return &RequestError{Message: "malformed JSON body"}
		}
	}
	if dec.More() {
		return &RequestError{Message: "request body must contain a single JSON object"}
	}
	return nil
}

type dateError struct {
	value string
}

func (e *dateError) Error() string {
	return fmt.Sprintf("invalid date %q: use YYYY-MM-DD or RFC 3339", e.value)
}

// Date accepts either RFC 3339 timestamps or plain YYYY-MM-DD days in JSON.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := parseDateValue(s, false)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// parseDateValue parses a timestamp or a day. With endOfDay a bare day
// resolves to its last nanosecond so range filters stay inclusive.
func parseDateValue(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, &dateError{value: s}
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// expenseInput is the create body.
type expenseInput struct {
	Amount      decimal.Decimal  `json:"amount"`
	Category    core.Category    `json:"category"`
	Note        string           `json:"note"`
	PaymentType core.PaymentType `json:"paymentType"`
	Date        *Date            `json:"date"`
	RawMessage  string           `json:"rawMessage"`
	IsImpulsive bool             `json:"isImpulsive"`
}

func (in expenseInput) toExpense() core.Expense {
	e := core.Expense{
		Amount:      in.Amount,
		Category:    in.Category,
		Note:        sanitizeInput(in.Note),
		PaymentType: in.PaymentType,
		RawMessage:  in.RawMessage,
		IsImpulsive: in.IsImpulsive,
	}
	if in.Date != nil {
		e.Date = in.Date.Time
	}
	return e
}

// patchInput is the partial-update body. Absent fields stay nil.
type patchInput struct {
	Amount      *decimal.Decimal  `json:"amount"`
	Category    *core.Category    `json:"category"`
	Note        *string           `json:"note"`
	PaymentType *core.PaymentType `json:"paymentType"`
	Date        *Date             `json:"date"`
	RawMessage  *string           `json:"rawMessage"`
	IsImpulsive *bool             `json:"isImpulsive"`
}

func (in patchInput) toPatch() core.ExpensePatch {
	p := core.ExpensePatch{
		Amount:      in.Amount,
		Category:    in.Category,
		PaymentType: in.PaymentType,
		RawMessage:  in.RawMessage,
		IsImpulsive: in.IsImpulsive,
	}
	if in.Note != nil {
		note := sanitizeInput(*in.Note)
		p.Note = &note
	}
	if in.Date != nil {
		p.Date = &in.Date.Time
	}
	return p
}

// ParseExpenseFilter reads the category, startDate and endDate query
// parameters. Both dates are inclusive.
func ParseExpenseFilter(query url.Values) (core.ExpenseFilter, error) {
	var f core.ExpenseFilter

	if v := strings.TrimSpace(query.Get("category")); v != "" {
		c := core.Category(v)
		if !c.IsValid() {
			return f, &RequestError{Field: "category", Message: core.ErrInvalidCategory.Error()}
		}
		f.Category = c
	}
	if v := query.Get("startDate"); v != "" {
		t, err := parseDateValue(v, false)
		if err != nil {
			return f, &RequestError{Field: "startDate", Message: err.Error()}
		}
		f.StartDate = t
	}
	if v := query.Get("endDate"); v != "" {
		t, err := parseDateValue(v, true)
		if err != nil {
			return f, &RequestError{Field: "endDate", Message: err.Error()}
		}
		f.EndDate = t
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate) {
		return f, &RequestError{Field: "endDate", Message: "endDate is before startDate"}
	}
	return f, nil
}

// ParseIDParam reads the {id} path parameter.
func ParseIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &RequestError{Field: "id", Message: "must be a positive integer"}
	}
	return id, nil
}
