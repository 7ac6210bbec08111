package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"bank-ledger/internal/auth"
)

// Router wires the API surface. Public routes: healthcheck, register,
// login. Everything under /api/account and /api/transaction requires a
// bearer token.
func Router(h *Handlers, authSvc *auth.Service, maxInflight int) http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/healthcheck", h.Healthcheck).Methods(http.MethodGet)
	api.HandleFunc("/user/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/user/login", h.Login).Methods(http.MethodPost)

	protected := api.PathPrefix("/").Subrouter()
	protected.Use(AuthMiddleware(authSvc))
	protected.HandleFunc("/account/create", h.CreateAccount).Methods(http.MethodPost)
	protected.HandleFunc("/account/list", h.ListAccounts).Methods(http.MethodGet)
	protected.HandleFunc("/account/{id}", h.GetAccount).Methods(http.MethodGet)
	protected.HandleFunc("/account/{id}/balance", h.GetBalance).Methods(http.MethodGet)
	protected.HandleFunc("/transaction/create", h.CreateTransaction).Methods(http.MethodPost)
	protected.HandleFunc("/transaction/user/tx", h.ListUserTransactions).Methods(http.MethodGet)
	protected.HandleFunc("/transaction/{id}", h.GetTransaction).Methods(http.MethodGet)

	// Backpressure at the edge; fail fast instead of queueing behind a
	// saturated pool.
	return withConcurrencyLimit(r, maxInflight)
}
