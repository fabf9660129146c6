package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"expense-api/internal/storage"
)

type expenseRequest struct {
	AmountCents *int64     `json:"amount_cents"`
	Category    *string    `json:"category"`
	Date        *time.Time `json:"date"`
	Description *string    `json:"description"`
}

// validate checks field constraints. When create is true, missing required
// fields are errors; for partial updates they are simply left unset.
func (e *expenseRequest) validate(create bool) map[string]string {
	fields := map[string]string{}

	if e.AmountCents == nil {
		if create {
			fields["amount_cents"] = "is required"
		}
	} else if *e.AmountCents <= 0 {
		fields["amount_cents"] = "must be a positive integer of cents"
	}

	if e.Category == nil {
		if create {
			fields["category"] = "is required"
		}
	} else if *e.Category == "" || len(*e.Category) > 64 {
		fields["category"] = "must be between 1 and 64 characters"
	}

	if e.Description != nil && len(*e.Description) > 255 {
		fields["description"] = "must be at most 255 characters"
	}

	return fields
}

// CreateExpense handles the creation of a new expense.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	var in expenseRequest
	if err := decodeJSON(r, &in); err != nil {
		decodeError(w, err)
		return
	}
	if fields := in.validate(true); len(fields) > 0 {
		validationJSON(w, fields)
		return
	}

	f := storage.ExpenseFields{
		AmountCents: *in.AmountCents,
		Category:    *in.Category,
		Date:        time.Now().UTC(),
	}
	if in.Date != nil {
		f.Date = *in.Date
	}
	if in.Description != nil {
		f.Description = *in.Description
	}

	expense, err := h.db.CreateExpense(user.ID, f)
	if err != nil {
		log.Printf("CreateExpense error: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, expense)
}

// GetExpense fetches a single expense owned by the authenticated user.
func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusNotFound, "expense not found")
		return
	}

	expense, err := h.db.GetExpense(user.ID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "expense not found")
			return
		}
		log.Printf("GetExpense error: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, expense)
}

// ListExpenses lists the authenticated user's expenses with filters and
// pagination taken from query parameters.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	filter, fields := parseFilter(r)
	if len(fields) > 0 {
		validationJSON(w, fields)
		return
	}

	expenses, err := h.db.ListExpenses(user.ID, filter)
	if err != nil {
		log.Printf("ListExpenses error: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, expenses)
}

// UpdateExpense applies a partial update to an expense.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusNotFound, "expense not found")
		return
	}

	var in expenseRequest
	if err := decodeJSON(r, &in); err != nil {
		decodeError(w, err)
		return
	}
	if fields := in.validate(false); len(fields) > 0 {
		validationJSON(w, fields)
		return
	}

	expense, err := h.db.UpdateExpense(user.ID, id, storage.ExpenseUpdate{
		AmountCents: in.AmountCents,
		Category:    in.Category,
		Date:        in.Date,
		Description: in.Description,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "expense not found")
			return
		}
		log.Printf("UpdateExpense error: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, expense)
}

// DeleteExpense removes an expense. Hard delete.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusNotFound, "expense not found")
		return
	}

	if err := h.db.DeleteExpense(user.ID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "expense not found")
			return
		}
		log.Printf("DeleteExpense error: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StatsResponse is the body returned by the stats endpoint.
type StatsResponse struct {
	TotalCents int64                   `json:"total_cents"`
	Categories []storage.CategoryTotal `json:"categories"`
}

// ExpenseStats returns per-category totals for the authenticated user,
// narrowed by the same filters as the list endpoint.
func (h *Handlers) ExpenseStats(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	filter, fields := parseFilter(r)
	if len(fields) > 0 {
		validationJSON(w, fields)
		return
	}

	totals, err := h.db.SummarizeExpenses(user.ID, filter)
	if err != nil {
		log.Printf("ExpenseStats error: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := StatsResponse{Categories: totals}
	for _, t := range totals {
		resp.TotalCents += t.TotalCents
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseFilter reads filter and pagination query parameters. Malformed
// values are reported as field errors.
func parseFilter(r *http.Request) (storage.ExpenseFilter, map[string]string) {
	q := r.URL.Query()
	filter := storage.ExpenseFilter{Category: q.Get("category")}
	fields := map[string]string{}

	if v := q.Get("from"); v != "" {
		t, err := parseDate(v, false)
		if err != nil {
			fields["from"] = "must be an RFC 3339 timestamp or YYYY-MM-DD date"
		} else {
			filter.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v, true)
		if err != nil {
			fields["to"] = "must be an RFC 3339 timestamp or YYYY-MM-DD date"
		} else {
			filter.To = &t
		}
	}
	if v := q.Get("min_amount_cents"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fields["min_amount_cents"] = "must be an integer"
		} else {
			filter.MinCents = &n
		}
	}
	if v := q.Get("max_amount_cents"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fields["max_amount_cents"] = "must be an integer"
		} else {
			filter.MaxCents = &n
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields["limit"] = "must be a non-negative integer"
		} else {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields["offset"] = "must be a non-negative integer"
		} else {
			filter.Offset = n
		}
	}

	return filter, fields
}

// parseDate accepts RFC 3339 timestamps and bare dates. A bare date used
// as a range end covers the whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
