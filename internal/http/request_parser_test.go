package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
)

func TestParseExpenseFilter(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantField string
		check     func(t *testing.T, f core.ExpenseFilter)
	}{
		{
			name:  "empty",
			query: "",
			check: func(t *testing.T, f core.ExpenseFilter) {
				assert.Equal(t, core.ExpenseFilter{}, f)
			},
		},
		{
			name:  "day bounds are inclusive",
			query: "category=Food&startDate=2025-01-01&endDate=2025-01-31",
			check: func(t *testing.T, f core.ExpenseFilter) {
				assert.Equal(t, core.Food, f.Category)
				assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), f.StartDate)
				assert.Equal(t, time.Date(2025, 1, 31, 23, 59, 59, 999999999, time.UTC), f.EndDate)
			},
		},
		{
			name:  "timestamps are kept exact",
			query: "endDate=2025-01-31T10:00:00%2B02:00",
			check: func(t *testing.T, f core.ExpenseFilter) {
				assert.Equal(t, time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC), f.EndDate)
			},
		},
		{name: "unknown category", query: "category=Rent", wantField: "category"},
		{name: "bad start", query: "startDate=01/02/2025", wantField: "startDate"},
		{name: "bad end", query: "endDate=soon", wantField: "endDate"},
		{name: "inverted range", query: "startDate=2025-02-01&endDate=2025-01-01", wantField: "endDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			f, err := ParseExpenseFilter(q)
			if tt.wantField != "" {
				var rerr *RequestError
				require.True(t, errors.As(err, &rerr), "got %v", err)
				assert.Equal(t, tt.wantField, rerr.Field)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}

func TestParseIDParam(t *testing.T) {
	withID := func(id string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}

	id, err := ParseIDParam(withID("42"))
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	for _, bad := range []string{"", "0", "-3", "abc", "1.5"} {
		_, err := ParseIDParam(withID(bad))
		assert.Error(t, err, bad)
	}
}

func TestDecodeJSON(t *testing.T) {
	decode := func(body string) (expenseInput, error) {
		var in expenseInput
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := DecodeJSON(httptest.NewRecorder(), r, &in)
		return in, err
	}

	in, err := decode(`{"amount": "12.50", "category": "Travel", "date": "2025-03-04", "note": "bus\u0007 "}`)
	require.NoError(t, err)
	e := in.toExpense()
	assert.Equal(t, "12.5", e.Amount.String())
	assert.Equal(t, "bus", e.Note)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), e.Date)

	_, err = decode(``)
	assert.EqualError(t, err, "request body is empty")

	_, err = decode(`{} {}`)
	assert.EqualError(t, err, "request body must contain a single JSON object")

	_, err = decode(`{"amount": 1, "date": 5}`)
	assert.Error(t, err)

	_, err = decode(`{"note": "` + strings.Repeat("x", maxBodyBytes) + `"}`)
	assert.EqualError(t, err, "request body too large")
}

func TestPatchInputLeavesAbsentFieldsNil(t *testing.T) {
	var in patchInput
	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"note": "  dinner  ", "isImpulsive": true}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &in))

	p := in.toPatch()
	assert.Nil(t, p.Amount)
	assert.Nil(t, p.Category)
	assert.Nil(t, p.Date)
	require.NotNil(t, p.Note)
	assert.Equal(t, "dinner", *p.Note)
	require.NotNil(t, p.IsImpulsive)
	assert.True(t, *p.IsImpulsive)
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "a\tb\nc", sanitizeInput("  a\tb\nc\x00\x1b  "))
}
