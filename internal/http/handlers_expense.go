package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"spendlog/internal/auth"
	"spendlog/internal/core"
	"spendlog/internal/log"
)

const parseFailureDetail = "Could not parse expense into valid structure"

func owner(r *http.Request) string {
	id, _ := auth.OwnerFromContext(r.Context())
	return id
}

func (s *Server) handleParseExpense(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := NewRequestBodyParser(w, r).Decode(&body); err != nil {
		ParseFailure(err).Write(w)
		return
	}

	draft, err := s.expenses.ParseDraft(r.Context(), body.Message, owner(r))
	if errors.Is(err, core.ErrParseFailure) {
		UnprocessableEntityError(parseFailureDetail).Write(w)
		return
	}
	if err != nil {
		InternalServerError("Failed to parse expense").Write(w)
		return
	}
	NewJSONResponse().Body(draft).Write(w)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	obj, err := NewRequestBodyParser(w, r).Object()
	if err != nil {
		ParseFailure(err).Write(w)
		return
	}

	_, err = s.expenses.Ingest(r.Context(), core.FieldsFromMap(obj), owner(r))
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		BadRequestError("Invalid amount: must be a positive number").Write(w)
		return
	case errors.Is(err, core.ErrStorage):
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to add expense",
			log.FieldOperation, log.OpIngest, log.FieldError, err)
		InternalServerError("Failed to add expense: storage failure").Write(w)
		return
	case err != nil:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Unexpected ingestion error",
			log.FieldOperation, log.OpIngest, log.FieldError, err)
		InternalServerError("Failed to add expense").Write(w)
		return
	}

	NewJSONResponse().Message("Expense added successfully").Write(w)
}

func (s *Server) handleClearExpenses(w http.ResponseWriter, r *http.Request) {
	n, err := s.expenses.Clear(r.Context(), owner(r))
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to clear expenses",
			log.FieldOperation, log.OpDelete, log.FieldError, err)
		InternalServerError("Failed to clear expenses").Write(w)
		return
	}
	NewJSONResponse().
		Body(map[string]any{
			"message":       fmt.Sprintf("Deleted %d expenses", n),
			"deleted_count": n,
		}).
		Write(w)
}

// view adapts an owner-scoped read to a handler.
func view[T any](name string, read func(ctx context.Context, owner string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := read(r.Context(), owner(r))
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to read view",
				log.FieldOperation, log.OpList, "view", name, log.FieldError, err)
			InternalServerError("Failed to fetch " + name).Write(w)
			return
		}
		NewJSONResponse().Body(v).Write(w)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	view("summary", s.expenses.Summary)(w, r)
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	view("today's expenses", s.expenses.Today)(w, r)
}

func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	view("category summary", s.expenses.CategorySummary)(w, r)
}

func (s *Server) handleMonthlyTrends(w http.ResponseWriter, r *http.Request) {
	view("monthly trends", s.expenses.MonthlyTrends)(w, r)
}

func (s *Server) handleWeeklyTrends(w http.ResponseWriter, r *http.Request) {
	view("weekly trends", s.expenses.WeeklyTrends)(w, r)
}

func (s *Server) handleTopCategories(w http.ResponseWriter, r *http.Request) {
	view("top categories", s.expenses.TopCategories)(w, r)
}

func (s *Server) handleAllExpenses(w http.ResponseWriter, r *http.Request) {
	view("expenses", s.expenses.All)(w, r)
}
