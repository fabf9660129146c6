package handlers

import "net/http"

// Routes assembles the API surface on a ServeMux. All expense routes and
// /users/me require a valid bearer token.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	guard := func(fn http.HandlerFunc) http.Handler {
		return h.AuthMiddleware(fn)
	}

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("POST /users/register", h.Register)
	mux.HandleFunc("POST /users/login", h.Login)

	mux.Handle("GET /users/me", guard(h.Me))
	mux.Handle("POST /expenses", guard(h.CreateExpense))
	mux.Handle("GET /expenses", guard(h.ListExpenses))
	mux.Handle("GET /expenses/stats", guard(h.ExpenseStats))
	mux.Handle("GET /expenses/{id}", guard(h.GetExpense))
	mux.Handle("PUT /expenses/{id}", guard(h.UpdateExpense))
	mux.Handle("DELETE /expenses/{id}", guard(h.DeleteExpense))

	return mux
}
