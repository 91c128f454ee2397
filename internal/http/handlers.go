package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"envelopes/internal/core"
	"envelopes/internal/storage"
	"envelopes/internal/text"
)

type envelopeResponse struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	BudgetCents  int64     `json:"budget_cents"`
	BalanceCents int64     `json:"balance_cents"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type createEnvelopeRequest struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	BudgetCents int64  `json:"budget_cents"`
}

type transactionResponse struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	EnvelopeID   int64     `json:"envelope_id"`
	EnvelopeName string    `json:"envelope_name,omitempty"`
	EnvelopeKind string    `json:"envelope_kind,omitempty"`
	AmountCents  int64     `json:"amount_cents"`
	Description  string    `json:"description"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

type createTransactionRequest struct {
	EnvelopeID  int64  `json:"envelope_id"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

type updateTransactionRequest struct {
	EnvelopeID  *int64  `json:"envelope_id"`
	AmountCents *int64  `json:"amount_cents"`
	Description *string `json:"description"`
}

type mutationResponse struct {
	Transaction  transactionResponse `json:"transaction"`
	BalanceCents int64               `json:"balance_cents"`
}

type statsResponse struct {
	TotalBudgetCents int64 `json:"total_budget_cents"`
	TotalSpentCents  int64 `json:"total_spent_cents"`
	TotalSavedCents  int64 `json:"total_saved_cents"`
	RemainingCents   int64 `json:"remaining_cents"`
}

type userResponse struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

type webhookRequest struct {
	From string `json:"from"`
	Body string `json:"body"`
}

type webhookResponse struct {
	Message string `json:"message"`
}

func toEnvelopeResponse(e core.Envelope) envelopeResponse {
	return envelopeResponse{
		ID:           e.ID,
		UserID:       e.UserID,
		Name:         e.Name,
		Kind:         string(e.Kind),
		BudgetCents:  e.Budget.Cents,
		BalanceCents: e.Balance.Cents,
		IsActive:     e.Active,
		CreatedAt:    e.CreatedAt,
	}
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		EnvelopeID:  t.EnvelopeID,
		AmountCents: t.Amount.Cents,
		Description: t.Description,
		Source:      t.Source,
		CreatedAt:   t.CreatedAt,
	}
}

// statusForError maps domain errors to response codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrEnvelopeNotFound),
		errors.Is(err, core.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, core.ErrEnvelopeInactive),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrEmptyName):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error, endpoint string) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "endpoint", endpoint, "error", err)
		respondWithError(w, code, "internal error", r.Method, endpoint)
		return
	}
	respondWithError(w, code, err.Error(), r.Method, endpoint)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/user/{userID}"
	userID := pathID(r, "userID")
	if userID == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid user id", r.Method, endpoint)
		return
	}

	user, err := s.repo.GetUser(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, userResponse{
		ID:          user.ID,
		Username:    user.Username,
		PhoneNumber: user.PhoneNumber,
		CreatedAt:   user.CreatedAt,
	}, r.Method, endpoint)
}

func (s *Server) handleListEnvelopes(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/envelopes/{userID}"
	userID := pathID(r, "userID")
	if userID == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid user id", r.Method, endpoint)
		return
	}

	envelopes, err := s.repo.ListActiveEnvelopes(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}
	out := make([]envelopeResponse, 0, len(envelopes))
	for _, e := range envelopes {
		out = append(out, toEnvelopeResponse(e))
	}
	respondWithJSON(w, http.StatusOK, out, r.Method, endpoint)
}

func (s *Server) handleCreateEnvelope(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/envelopes/{userID}"
	userID := pathID(r, "userID")
	if userID == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid user id", r.Method, endpoint)
		return
	}

	var req createEnvelopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON", r.Method, endpoint)
		return
	}

	// Reject envelopes for users that do not exist, instead of relying on the
	// foreign key error.
	if _, err := s.repo.GetUser(r.Context(), userID); err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}

	created, err := s.repo.CreateEnvelope(r.Context(), core.Envelope{
		UserID: userID,
		Name:   strings.TrimSpace(req.Name),
		Kind:   core.EnvelopeKind(req.Kind),
		Budget: core.Money{Cents: req.BudgetCents},
	})
	if err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}
	respondWithJSON(w, http.StatusCreated, toEnvelopeResponse(created), r.Method, endpoint)
}

func (s *Server) handleDeactivateEnvelope(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/envelopes/{id}"
	id := pathID(r, "id")
	if id == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid envelope id", r.Method, endpoint)
		return
	}

	if err := s.repo.DeactivateEnvelope(r.Context(), id); err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(http.StatusNoContent)).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/transactions/{userID}"
	userID := pathID(r, "userID")
	if userID == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid user id", r.Method, endpoint)
		return
	}

	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit", r.Method, endpoint)
			return
		}
		limit = n
	}

	transactions, err := s.repo.ListTransactionsByUser(r.Context(), userID, limit)
	if err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}

	// Envelope names resolved once per distinct envelope, inactive ones
	// included so history stays readable.
	envelopes := map[int64]core.Envelope{}
	out := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp := toTransactionResponse(t)
		env, ok := envelopes[t.EnvelopeID]
		if !ok {
			env, err = s.repo.GetEnvelope(r.Context(), t.EnvelopeID)
			if err != nil {
				s.respondDomainError(w, r, err, endpoint)
				return
			}
			envelopes[t.EnvelopeID] = env
		}
		resp.EnvelopeName = env.Name
		resp.EnvelopeKind = string(env.Kind)
		out = append(out, resp)
	}
	respondWithJSON(w, http.StatusOK, out, r.Method, endpoint)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/transactions/{userID}"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
	defer timer.ObserveDuration()

	userID := pathID(r, "userID")
	if userID == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid user id", r.Method, endpoint)
		return
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON", r.Method, endpoint)
		return
	}

	created, balance, err := s.ledger.CreateTransaction(r.Context(), core.Transaction{
		UserID:      userID,
		EnvelopeID:  req.EnvelopeID,
		Amount:      core.Money{Cents: req.AmountCents},
		Description: req.Description,
		Source:      core.SourceAPI,
	})
	if err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}
	respondWithJSON(w, http.StatusCreated, mutationResponse{
		Transaction:  toTransactionResponse(created),
		BalanceCents: balance.Cents,
	}, r.Method, endpoint)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/transactions/{id}"
	id := pathID(r, "id")
	if id == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid transaction id", r.Method, endpoint)
		return
	}

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON", r.Method, endpoint)
		return
	}

	patch := core.TransactionPatch{
		EnvelopeID:  req.EnvelopeID,
		Description: req.Description,
	}
	if req.AmountCents != nil {
		patch.Amount = &core.Money{Cents: *req.AmountCents}
	}

	updated, balance, err := s.ledger.UpdateTransaction(r.Context(), id, patch)
	if err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, mutationResponse{
		Transaction:  toTransactionResponse(updated),
		BalanceCents: balance.Cents,
	}, r.Method, endpoint)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/transactions/{id}"
	id := pathID(r, "id")
	if id == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid transaction id", r.Method, endpoint)
		return
	}

	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(http.StatusNoContent)).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/stats/{userID}"
	userID := pathID(r, "userID")
	if userID == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid user id", r.Method, endpoint)
		return
	}

	envelopes, err := s.repo.ListActiveEnvelopes(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, r, err, endpoint)
		return
	}
	stats := core.ComputeStats(envelopes)
	respondWithJSON(w, http.StatusOK, statsResponse{
		TotalBudgetCents: stats.TotalBudget.Cents,
		TotalSpentCents:  stats.TotalSpent.Cents,
		TotalSavedCents:  stats.TotalSaved.Cents,
		RemainingCents:   stats.Remaining.Cents,
	}, r.Method, endpoint)
}

// handleWebhook is the inbound message shim: {from, body} in, {message} out.
// The interpreter never fails; every outcome is reply text.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/webhook"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
	defer timer.ObserveDuration()

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON", r.Method, endpoint)
		return
	}
	sender := storage.NormalizeSender(req.From)
	if sender == "" || strings.TrimSpace(req.Body) == "" {
		respondWithError(w, http.StatusBadRequest, "missing from or body", r.Method, endpoint)
		return
	}

	reply := s.interpreter.HandleMessage(r.Context(), sender, req.Body)
	webhookRepliesTotal.WithLabelValues(replyCategory(req.Body)).Inc()
	respondWithJSON(w, http.StatusOK, webhookResponse{Message: reply}, r.Method, endpoint)
}

// replyCategory labels webhook traffic by what kind of command came in.
func replyCategory(body string) string {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "add", "subtract":
		return "followup"
	}
	switch text.Parse(body).Kind {
	case text.CmdHelp:
		return "help"
	case text.CmdBalance:
		return "balance"
	case text.CmdList:
		return "list"
	case text.CmdLogin:
		return "login"
	case text.CmdSignedMove:
		return "move"
	case text.CmdAmbiguousMove:
		return "ambiguous"
	default:
		return "unrecognized"
	}
}
