package http

import (
	"errors"
	"net/http"
	"strconv"

	"spendwise/internal/core"
	"spendwise/internal/ledger"
	"spendwise/internal/middleware/identity"
	"spendwise/internal/services"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := ParseExpenseFilter(r.URL.Query())
	if err != nil {
		requestErrorResponse(err).Write(w)
		return
	}

	items, err := s.deps.Expenses.List(r.Context(), identity.UserID(r.Context()), f)
	if err != nil {
		s.logError(r, "Failed to list expenses", err)
		InternalServerError("failed to list expenses").Write(w)
		return
	}
	NewJSONResponse().Body(items).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		requestErrorResponse(err).Write(w)
		return
	}

	e, err := s.deps.Expenses.Get(r.Context(), identity.UserID(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, "Failed to get expense", err)
		return
	}
	NewJSONResponse().Body(e).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in expenseInput
	if err := DecodeJSON(w, r, &in); err != nil {
		requestErrorResponse(err).Write(w)
		return
	}

	e, err := s.deps.Expenses.Create(r.Context(), identity.UserID(r.Context()), in.toExpense())
	if err != nil {
		s.writeServiceError(w, r, "Failed to create expense", err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+strconv.FormatInt(e.ID, 10)).
		Body(e).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		requestErrorResponse(err).Write(w)
		return
	}
	var in patchInput
	if err := DecodeJSON(w, r, &in); err != nil {
		requestErrorResponse(err).Write(w)
		return
	}

	e, err := s.deps.Expenses.Update(r.Context(), identity.UserID(r.Context()), id, in.toPatch())
	if err != nil {
		s.writeServiceError(w, r, "Failed to update expense", err)
		return
	}
	NewJSONResponse().Body(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		requestErrorResponse(err).Write(w)
		return
	}

	if err := s.deps.Expenses.Delete(r.Context(), identity.UserID(r.Context()), id); err != nil {
		s.writeServiceError(w, r, "Failed to delete expense", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// writeServiceError logs only failures the client could not have caused.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var verr *core.ValidationError
	if !errors.As(err, &verr) && !errors.Is(err, ledger.ErrNotFound) && !errors.Is(err, services.ErrForbidden) {
		s.logError(r, msg, err)
	}
	ServiceError(err).Write(w)
}
