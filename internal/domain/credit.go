/**
 * @description
 * This file defines the core domain models for the credit-service: the per-account
 * balance with its two credit pools, the append-only ledger transaction, and the
 * DTOs exchanged with the API layer and the message bus.
 *
 * @notes
 * - Credit amounts are `int64` whole credits; there are no fractional credits.
 * - A ledger transaction records the signed total (`Amount`) plus the exact split
 *   across the two pools (`SubscriptionDelta` + `PurchasedDelta` == `Amount`), so
 *   replaying the ledger reproduces both pools without parsing descriptions.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionPurchase          TransactionType = "purchase"
	TransactionSpend             TransactionType = "spend"
	TransactionRefund            TransactionType = "refund"
	TransactionBonus             TransactionType = "bonus"
	TransactionSubscriptionReset TransactionType = "subscription_reset"
)

// Valid reports whether t is one of the known ledger entry types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionPurchase, TransactionSpend, TransactionRefund, TransactionBonus, TransactionSubscriptionReset:
		return true
	}
	return false
}

// CreditBalance is the spendable state for one account. It maps directly to the
// `credit_balances` table. Both pools are invariantly non-negative; the spendable
// total is always SubscriptionCredits + PurchasedCredits.
type CreditBalance struct {
	AccountID           uuid.UUID `json:"account_id"`
	SubscriptionCredits int64     `json:"subscription_credits"`
	PurchasedCredits    int64     `json:"purchased_credits"`
	LifetimeEarned      int64     `json:"lifetime_earned"`
	LifetimeSpent       int64     `json:"lifetime_spent"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Total returns the spendable credit total across both pools.
func (b *CreditBalance) Total() int64 {
	return b.SubscriptionCredits + b.PurchasedCredits
}

// CreditTransaction is one immutable row of the append-only ledger. Refunds and
// reversals append new rows; existing rows are never updated or deleted.
type CreditTransaction struct {
	ID                uuid.UUID       `json:"id"`
	AccountID         uuid.UUID       `json:"account_id"`
	Amount            int64           `json:"amount"` // positive = credit, negative = debit
	SubscriptionDelta int64           `json:"subscription_delta"`
	PurchasedDelta    int64           `json:"purchased_delta"`
	Type              TransactionType `json:"type"`
	Description       string          `json:"description"`
	Reference         *string         `json:"reference,omitempty"` // namespaced idempotency key
	CreatedAt         time.Time       `json:"created_at"`
}

// LedgerListOptions controls pagination for transaction history reads.
// Results are always ordered most-recent-first.
type LedgerListOptions struct {
	Limit  int
	Offset int
}

// ToolUsageRequest is the DTO for the tool invocation gate: debit the tool's cost
// before the billable job is started.
type ToolUsageRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	ToolID    string    `json:"tool_id"`
	JobID     string    `json:"job_id"`
}

// RefundRequest is the DTO for reversing a prior tool charge after the job failed.
// OriginalCost may be zero, in which case the recorded spend for JobID is used.
type RefundRequest struct {
	AccountID    uuid.UUID `json:"account_id"`
	OriginalCost int64     `json:"original_cost"`
	Reason       string    `json:"reason"`
	JobID        string    `json:"job_id"`
}

// PurchaseRequest is the DTO for crediting a completed credit-pack purchase
// reported by the payment gateway.
type PurchaseRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
	SessionID string    `json:"session_id"`
}

// BalanceResult is returned by every engine operation so callers always see the
// post-operation state. Applied is false when the operation was an idempotent
// replay and the ledger was left untouched.
type BalanceResult struct {
	Balance *CreditBalance     `json:"balance"`
	Entry   *CreditTransaction `json:"entry,omitempty"`
	Applied bool               `json:"applied"`
}

// PaymentCompletedEvent is the payload consumed from the payment gateway relay
// for one-time credit pack purchases.
type PaymentCompletedEvent struct {
	EventID   string    `json:"event_id"`
	AccountID uuid.UUID `json:"account_id"`
	Credits   int64     `json:"credits"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriptionRenewedEvent is the payload consumed when a billing cycle renews.
// Credits may be zero; the grant then falls back to the account's tier amount.
type SubscriptionRenewedEvent struct {
	EventID   string    `json:"event_id"`
	AccountID uuid.UUID `json:"account_id"`
	Credits   int64     `json:"credits"`
	Timestamp time.Time `json:"timestamp"`
}

// JobFailedEvent is the payload consumed when a generation job fails or is
// cancelled after its cost was already debited.
type JobFailedEvent struct {
	JobID     string    `json:"job_id"`
	AccountID uuid.UUID `json:"account_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// RegistrationApprovedEvent is the payload consumed when the approval workflow
// admits a new account; it triggers the founder slot claim.
type RegistrationApprovedEvent struct {
	AccountID uuid.UUID `json:"account_id"`
	Category  Category  `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// LedgerEvent is published (fire-and-forget) after every applied balance change
// so downstream services can notify the user.
type LedgerEvent struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    int64           `json:"amount"`
	Type      TransactionType `json:"type"`
	NewTotal  int64           `json:"new_total"`
	Timestamp time.Time       `json:"timestamp"`
}
