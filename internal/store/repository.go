/**
 * @description
 * This file defines the `Repository` interface: the contract for all data access
 * the credit-service needs. The interface decouples the debit/credit engine and
 * the founder allocator from the PostgreSQL implementation, which keeps the
 * business logic testable against in-memory stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For account and transaction identifiers.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/gigmarket/credit-service/internal/domain"
)

var (
	ErrBalanceNotFound     = errors.New("credit balance not found")
	ErrInsufficientFunds   = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("invalid transaction amount")
	ErrNoSlotsRemaining    = errors.New("no founder slots remaining")
	ErrTransactionNotFound = errors.New("ledger transaction not found")

	// ErrStorageConflict marks transient contention (serialization failure, lock
	// timeout, deadlock). Callers retry with bounded backoff; the operation never
	// partially applied.
	ErrStorageConflict = errors.New("storage conflict")
)

// ApplyDeltaParams describes one atomic balance mutation plus its ledger entry.
type ApplyDeltaParams struct {
	AccountID   uuid.UUID
	Amount      int64 // signed: positive credits, negative debits
	Type        domain.TransactionType
	Reference   string // namespaced idempotency key; empty disables the guard
	Description string
}

// Repository is the persistence contract for the ledger core.
type Repository interface {
	// EnsureBalance creates the zeroed balance row for an account if it does not
	// exist yet. Safe to call concurrently.
	EnsureBalance(ctx context.Context, accountID uuid.UUID) error
	GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.CreditBalance, error)

	// ApplyDelta executes the balance mutation and the ledger append as one atomic
	// unit. A repeated Reference is a no-op returning the current balance with
	// Applied=false. A debit exceeding the spendable total fails with
	// ErrInsufficientFunds and mutates nothing.
	ApplyDelta(ctx context.Context, params ApplyDeltaParams) (*domain.BalanceResult, error)

	// ResetSubscription atomically forfeits any unspent subscription credits and
	// grants the new cycle amount, appending one ledger row per effect. Idempotent
	// on reference.
	ResetSubscription(ctx context.Context, accountID uuid.UUID, grant int64, reference string) (*domain.BalanceResult, error)

	ListTransactions(ctx context.Context, accountID uuid.UUID, opts domain.LedgerListOptions) ([]domain.CreditTransaction, error)
	FindTransactionByReference(ctx context.Context, accountID uuid.UUID, reference string) (*domain.CreditTransaction, error)

	// ClaimFounderSlot assigns the next rank in the category, bounded by cap.
	// Returns the existing rank with alreadyHeld=true when the account claimed
	// before; ErrNoSlotsRemaining once the pool is exhausted.
	ClaimFounderSlot(ctx context.Context, accountID uuid.UUID, category domain.Category, cap int) (rank *domain.FounderRank, alreadyHeld bool, err error)
	GetFounderRank(ctx context.Context, accountID uuid.UUID) (*domain.FounderRank, error)
	GetFounderStatus(ctx context.Context, category domain.Category, cap int) (*domain.FounderStatus, error)
}
