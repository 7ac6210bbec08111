package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/auth"
	"bank-ledger/internal/domain"
	"bank-ledger/internal/ledger"
)

const (
	readTimeout  = 3 * time.Second
	writeTimeout = 5 * time.Second
)

var validate = validator.New()

type Handlers struct {
	auth     *auth.Service
	accounts domain.AccountStore
	coord    *ledger.Coordinator
	facade   *ledger.Facade
	log      *logrus.Logger
}

func NewHandlers(authSvc *auth.Service, accounts domain.AccountStore, coord *ledger.Coordinator, facade *ledger.Facade, log *logrus.Logger) *Handlers {
	return &Handlers{auth: authSvc, accounts: accounts, coord: coord, facade: facade, log: log}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, domain.ErrIdempotencyConflict):
		return http.StatusConflict

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	// Don't leak internals on 5xx; retry counts and storage diagnostics
	// stay out of responses entirely.
	if code >= 500 {
		return "internal error"
	}
	return err.Error()
}

func (h *Handlers) writeDomainErr(w http.ResponseWriter, err error) {
	code := httpStatusForErr(err)
	if code >= 500 {
		h.log.WithError(err).Error("request failed")
	}
	writeErr(w, code, publicErrMessage(code, err))
}

func (h *Handlers) Healthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	user, token, err := h.auth.Register(ctx, req.Username, req.Password)
	if err != nil {
		h.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{UserID: user.ID, Username: user.Username, Token: token})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	user, token, err := h.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		h.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{UserID: user.ID, Username: user.Username, Token: token})
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorID(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	acc, err := h.accounts.Create(ctx, actor, req.InitialBalance)
	if err != nil {
		h.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorID(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}
	accountID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid account id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	acc, err := h.facade.GetAccount(ctx, actor, accountID)
	if err != nil {
		h.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorID(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	accs, err := h.facade.ListAccountsForUser(ctx, actor)
	if err != nil {
		h.writeDomainErr(w, err)
		return
	}
	resp := listAccountsResponse{Accounts: make([]accountResponse, 0, len(accs))}
	for _, acc := range accs {
		resp.Accounts = append(resp.Accounts, toAccountResponse(acc))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorID(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}
	accountID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid account id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	balance, err := h.facade.GetAccountBalance(ctx, actor, accountID)
	if err != nil {
		h.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: accountID, Balance: balance})
}

func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorID(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("X-Idempotency-Key")
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	tx, err := h.coord.Transfer(ctx, actor, req.FromAccountID, req.ToAccountID, req.Amount, req.IdempotencyKey)
	if err != nil {
		h.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorID(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}
	txID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	tx, err := h.facade.GetTransaction(ctx, actor, txID)
	if err != nil {
		h.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *Handlers) ListUserTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorID(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	txs, err := h.facade.ListTransactionsForUser(ctx, actor)
	if err != nil {
		h.writeDomainErr(w, err)
		return
	}
	resp := listTransactionsResponse{Transactions: make([]transactionResponse, 0, len(txs))}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, resp)
}
