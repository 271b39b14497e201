/**
 * @description
 * This file contains the HTTP handlers for the credit-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gigmarket/credit-service/internal/app"
	"github.com/gigmarket/credit-service/internal/domain"
	"github.com/gigmarket/credit-service/internal/store"
)

// CreditHandlers holds the application service that handlers will use.
type CreditHandlers struct {
	service *app.Service
}

// NewCreditHandlers creates a new instance of CreditHandlers.
func NewCreditHandlers(service *app.Service) *CreditHandlers {
	return &CreditHandlers{service: service}
}

// balanceResponse mirrors what gig-market clients expect when reading a wallet:
// the pool split plus the spendable total, so the frontend never has to add.
type balanceResponse struct {
	AccountID           string `json:"account_id"`
	SubscriptionCredits int64  `json:"subscription_credits"`
	PurchasedCredits    int64  `json:"purchased_credits"`
	TotalCredits        int64  `json:"total_credits"`
	LifetimeEarned      int64  `json:"lifetime_earned"`
	LifetimeSpent       int64  `json:"lifetime_spent"`
}

func buildBalanceResponse(b *domain.CreditBalance) balanceResponse {
	return balanceResponse{
		AccountID:           b.AccountID.String(),
		SubscriptionCredits: b.SubscriptionCredits,
		PurchasedCredits:    b.PurchasedCredits,
		TotalCredits:        b.Total(),
		LifetimeEarned:      b.LifetimeEarned,
		LifetimeSpent:       b.LifetimeSpent,
	}
}

// mutationResponse is sent back for every engine mutation. Applied=false tells
// the caller the operation was a replay of an already-recorded request.
type mutationResponse struct {
	Applied bool                      `json:"applied"`
	Balance balanceResponse           `json:"balance"`
	Entry   *domain.CreditTransaction `json:"entry,omitempty"`
}

func buildMutationResponse(result *domain.BalanceResult) mutationResponse {
	return mutationResponse{
		Applied: result.Applied,
		Balance: buildBalanceResponse(result.Balance),
		Entry:   result.Entry,
	}
}

// authedAccountID resolves the authenticated caller to an account UUID. Writes
// the error response itself and returns false when resolution fails.
func (h *CreditHandlers) authedAccountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountIDStr, ok := GetAuthedAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return uuid.Nil, false
	}
	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=invalid_account_id account_id=%s", accountIDStr)
		h.writeError(w, http.StatusBadRequest, "Invalid account ID format")
		return uuid.Nil, false
	}
	return accountID, true
}

// GetBalanceHandler returns the caller's credit balance, provisioning a zero
// balance on first read.
func (h *CreditHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authedAccountID(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		log.Printf("level=error component=api endpoint=get_balance account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load balance")
		return
	}

	h.writeJSON(w, http.StatusOK, buildBalanceResponse(balance))
}

// ListTransactionsHandler returns the caller's ledger history, newest first.
func (h *CreditHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authedAccountID(w, r)
	if !ok {
		return
	}

	opts := domain.LedgerListOptions{}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		opts.Limit = limit
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		opts.Offset = offset
	}

	transactions, err := h.service.ListTransactions(r.Context(), accountID, opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// GetFounderRankHandler returns the caller's founder slot, or the default tier
// when the caller holds none.
func (h *CreditHandlers) GetFounderRankHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authedAccountID(w, r)
	if !ok {
		return
	}

	result, err := h.service.FounderRank(r.Context(), accountID)
	if err != nil {
		log.Printf("level=error component=api endpoint=founder_rank account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load founder rank")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// FounderStatusHandler reports slot consumption for a category. Public: the
// marketing site uses it for the "N founder slots left" banner.
func (h *CreditHandlers) FounderStatusHandler(w http.ResponseWriter, r *http.Request) {
	category := domain.Category(strings.TrimSpace(r.URL.Query().Get("category")))
	status, err := h.service.FounderStatus(r.Context(), category)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCategory) {
			h.writeError(w, http.StatusBadRequest, "Invalid category")
			return
		}
		log.Printf("level=error component=api endpoint=founder_status category=%s err=%v", category, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load founder status")
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// PricingHandler returns the tool cost table.
func (h *CreditHandlers) PricingHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": h.service.PricingEntries(),
	})
}

// ToolUsageHandler (internal) debits a tool's cost ahead of running the job.
func (h *CreditHandlers) ToolUsageHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ToolUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	result, err := h.service.ChargeToolUsage(r.Context(), req)
	if err != nil {
		h.writeMutationError(w, "tool_usage", req.AccountID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, buildMutationResponse(result))
}

// RefundHandler (internal) reverses a prior tool charge.
func (h *CreditHandlers) RefundHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == uuid.Nil || req.JobID == "" {
		h.writeError(w, http.StatusBadRequest, "account_id and job_id are required")
		return
	}

	result, err := h.service.RefundToolUsage(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, "No recorded charge for that job")
			return
		}
		h.writeMutationError(w, "refund", req.AccountID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, buildMutationResponse(result))
}

// PurchaseHandler (internal) credits a completed credit pack purchase. Normally
// reached through the payment event consumer; the HTTP path exists for gateway
// webhook relays that bypass the bus.
func (h *CreditHandlers) PurchaseHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == uuid.Nil || req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "account_id and session_id are required")
		return
	}

	result, err := h.service.Purchase(r.Context(), req.AccountID, req.Amount, req.SessionID)
	if err != nil {
		h.writeMutationError(w, "purchase", req.AccountID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, buildMutationResponse(result))
}

type claimFounderSlotRequest struct {
	AccountID uuid.UUID       `json:"account_id"`
	Category  domain.Category `json:"category"`
}

// ClaimFounderSlotHandler (internal) allocates a founder slot for a freshly
// approved account. Idempotent per account.
func (h *CreditHandlers) ClaimFounderSlotHandler(w http.ResponseWriter, r *http.Request) {
	var req claimFounderSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	result, err := h.service.ClaimFounderSlot(r.Context(), req.AccountID, req.Category)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCategory) {
			h.writeError(w, http.StatusBadRequest, "Invalid category")
			return
		}
		h.writeMutationError(w, "founder_claim", req.AccountID, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyHeld || result.Rank == 0 {
		status = http.StatusOK
	}
	h.writeJSON(w, status, result)
}

// writeMutationError maps engine errors onto HTTP statuses shared by every
// mutation endpoint.
func (h *CreditHandlers) writeMutationError(w http.ResponseWriter, endpoint string, accountID uuid.UUID, err error) {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient credits")
	case errors.Is(err, app.ErrUnknownTool):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, store.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Amount must be positive")
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
	case errors.Is(err, store.ErrStorageConflict):
		h.writeError(w, http.StatusServiceUnavailable, "Temporary storage contention, retry the request")
	default:
		log.Printf("level=error component=api endpoint=%s account_id=%s err=%v", endpoint, accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *CreditHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *CreditHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
