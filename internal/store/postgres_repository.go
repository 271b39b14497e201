/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. All balance mutations
 * run inside a single database transaction that locks the balance row with
 * `SELECT ... FOR UPDATE` before reading it, so two concurrent debits can never
 * both observe a balance that only covers one of them.
 *
 * Schema (managed by migrations outside this service):
 *   credit_balances(account_id PK, subscription_credits, purchased_credits,
 *                   lifetime_earned, lifetime_spent, updated_at)
 *                   with CHECK constraints keeping every column >= 0
 *   credit_transactions(id PK, account_id, amount, subscription_delta,
 *                   purchased_delta, type, description, reference, created_at)
 *                   with UNIQUE(account_id, reference)
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/gigmarket/credit-service/internal/domain"
)

// PostgresRepository is the concrete Repository backed by a pgx pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// isRetryableError reports whether err is transient lock/serialization
// contention that the caller should retry.
func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03": // serialization failure, deadlock, lock not available
		return true
	}
	return false
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func classify(err error) error {
	if isRetryableError(err) {
		return fmt.Errorf("%w: %v", ErrStorageConflict, err)
	}
	return err
}

// EnsureBalance creates the zeroed balance row if the account has none yet.
func (r *PostgresRepository) EnsureBalance(ctx context.Context, accountID uuid.UUID) error {
	query := `
		INSERT INTO credit_balances (account_id, subscription_credits, purchased_credits, lifetime_earned, lifetime_spent)
		VALUES ($1, 0, 0, 0, 0)
		ON CONFLICT (account_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, accountID)
	return classify(err)
}

// GetBalance retrieves the balance row for an account.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.CreditBalance, error) {
	var balance domain.CreditBalance
	query := `
		SELECT account_id, subscription_credits, purchased_credits, lifetime_earned, lifetime_spent, updated_at
		FROM credit_balances
		WHERE account_id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&balance.AccountID,
		&balance.SubscriptionCredits,
		&balance.PurchasedCredits,
		&balance.LifetimeEarned,
		&balance.LifetimeSpent,
		&balance.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBalanceNotFound
		}
		return nil, classify(err)
	}
	return &balance, nil
}

// lockBalance reads the balance row under FOR UPDATE, creating it first if the
// account has never been touched.
func (r *PostgresRepository) lockBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.CreditBalance, error) {
	ensure := `
		INSERT INTO credit_balances (account_id, subscription_credits, purchased_credits, lifetime_earned, lifetime_spent)
		VALUES ($1, 0, 0, 0, 0)
		ON CONFLICT (account_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, ensure, accountID); err != nil {
		return nil, err
	}

	var balance domain.CreditBalance
	query := `
		SELECT account_id, subscription_credits, purchased_credits, lifetime_earned, lifetime_spent, updated_at
		FROM credit_balances
		WHERE account_id = $1
		FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, accountID).Scan(
		&balance.AccountID,
		&balance.SubscriptionCredits,
		&balance.PurchasedCredits,
		&balance.LifetimeEarned,
		&balance.LifetimeSpent,
		&balance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *PostgresRepository) findEntryByReference(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, accountID uuid.UUID, reference string) (*domain.CreditTransaction, error) {
	var entry domain.CreditTransaction
	query := `
		SELECT id, account_id, amount, subscription_delta, purchased_delta, type, description, reference, created_at
		FROM credit_transactions
		WHERE account_id = $1 AND reference = $2
	`
	err := q.QueryRow(ctx, query, accountID, reference).Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.Amount,
		&entry.SubscriptionDelta,
		&entry.PurchasedDelta,
		&entry.Type,
		&entry.Description,
		&entry.Reference,
		&entry.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *PostgresRepository) insertEntry(ctx context.Context, tx pgx.Tx, entry *domain.CreditTransaction) error {
	query := `
		INSERT INTO credit_transactions (id, account_id, amount, subscription_delta, purchased_delta, type, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return tx.QueryRow(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Amount,
		entry.SubscriptionDelta,
		entry.PurchasedDelta,
		entry.Type,
		entry.Description,
		entry.Reference,
	).Scan(&entry.CreatedAt)
}

func (r *PostgresRepository) writeBalance(ctx context.Context, tx pgx.Tx, balance *domain.CreditBalance) error {
	query := `
		UPDATE credit_balances
		SET subscription_credits = $2,
		    purchased_credits = $3,
		    lifetime_earned = $4,
		    lifetime_spent = $5,
		    updated_at = NOW()
		WHERE account_id = $1
	`
	result, err := tx.Exec(ctx, query,
		balance.AccountID,
		balance.SubscriptionCredits,
		balance.PurchasedCredits,
		balance.LifetimeEarned,
		balance.LifetimeSpent,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// splitDelta applies a signed amount to the pools, returning the per-pool deltas.
// Debits drain subscription credits first: they expire, so they are spent before
// credits that never do. Credits land in the pool implied by the entry type.
func splitDelta(balance *domain.CreditBalance, amount int64, entryType domain.TransactionType) (subDelta, purDelta int64, err error) {
	if amount == 0 {
		return 0, 0, ErrInvalidAmount
	}
	if amount < 0 {
		cost := -amount
		if balance.Total() < cost {
			return 0, 0, ErrInsufficientFunds
		}
		subDelta = -min64(balance.SubscriptionCredits, cost)
		purDelta = -(cost + subDelta) // shortfall after the subscription pool
		return subDelta, purDelta, nil
	}
	if entryType == domain.TransactionSubscriptionReset {
		return amount, 0, nil
	}
	return 0, amount, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// ApplyDelta performs one atomic balance mutation plus ledger append.
func (r *PostgresRepository) ApplyDelta(ctx context.Context, params ApplyDeltaParams) (*domain.BalanceResult, error) {
	if !params.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAmount, params.Type)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback(ctx)

	// Idempotency probe inside the transaction: the later FOR UPDATE lock
	// serializes concurrent writers for the same account, and the unique
	// (account_id, reference) index backstops anything that slips through.
	if params.Reference != "" {
		entry, err := r.findEntryByReference(ctx, tx, params.AccountID, params.Reference)
		if err == nil {
			balance, lockErr := r.lockBalance(ctx, tx, params.AccountID)
			if lockErr != nil {
				return nil, classify(lockErr)
			}
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, classify(commitErr)
			}
			return &domain.BalanceResult{Balance: balance, Entry: entry, Applied: false}, nil
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			return nil, classify(err)
		}
	}

	balance, err := r.lockBalance(ctx, tx, params.AccountID)
	if err != nil {
		return nil, classify(err)
	}

	subDelta, purDelta, err := splitDelta(balance, params.Amount, params.Type)
	if err != nil {
		return nil, err
	}

	balance.SubscriptionCredits += subDelta
	balance.PurchasedCredits += purDelta
	if params.Amount > 0 {
		balance.LifetimeEarned += params.Amount
	} else if params.Type == domain.TransactionSpend {
		balance.LifetimeSpent += -params.Amount
	}

	entry := &domain.CreditTransaction{
		ID:                uuid.New(),
		AccountID:         params.AccountID,
		Amount:            params.Amount,
		SubscriptionDelta: subDelta,
		PurchasedDelta:    purDelta,
		Type:              params.Type,
		Description:       params.Description,
	}
	if params.Reference != "" {
		ref := params.Reference
		entry.Reference = &ref
	}

	if err := r.insertEntry(ctx, tx, entry); err != nil {
		if isUniqueViolation(err) {
			// A concurrent writer won the reference; surface as a replay.
			return r.replayExisting(ctx, params.AccountID, params.Reference)
		}
		return nil, classify(err)
	}
	if err := r.writeBalance(ctx, tx, balance); err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}

	return &domain.BalanceResult{Balance: balance, Entry: entry, Applied: true}, nil
}

// replayExisting re-reads the committed state after a reference collision.
func (r *PostgresRepository) replayExisting(ctx context.Context, accountID uuid.UUID, reference string) (*domain.BalanceResult, error) {
	entry, err := r.findEntryByReference(ctx, r.db, accountID, reference)
	if err != nil {
		return nil, classify(err)
	}
	balance, err := r.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.BalanceResult{Balance: balance, Entry: entry, Applied: false}, nil
}

// ResetSubscription forfeits unspent subscription credits and grants the new
// cycle amount in one atomic unit. The forfeiture row does not touch lifetime
// counters; the grant row increments lifetime earned.
func (r *PostgresRepository) ResetSubscription(ctx context.Context, accountID uuid.UUID, grant int64, reference string) (*domain.BalanceResult, error) {
	if grant <= 0 {
		return nil, fmt.Errorf("%w: subscription grant must be positive, got %d", ErrInvalidAmount, grant)
	}
	if reference == "" {
		return nil, fmt.Errorf("%w: subscription reset requires a reference", ErrInvalidAmount)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback(ctx)

	if entry, err := r.findEntryByReference(ctx, tx, accountID, reference); err == nil {
		balance, lockErr := r.lockBalance(ctx, tx, accountID)
		if lockErr != nil {
			return nil, classify(lockErr)
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return nil, classify(commitErr)
		}
		return &domain.BalanceResult{Balance: balance, Entry: entry, Applied: false}, nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, classify(err)
	}

	balance, err := r.lockBalance(ctx, tx, accountID)
	if err != nil {
		return nil, classify(err)
	}

	if leftover := balance.SubscriptionCredits; leftover > 0 {
		expiryRef := reference + ":expiry"
		expiry := &domain.CreditTransaction{
			ID:                uuid.New(),
			AccountID:         accountID,
			Amount:            -leftover,
			SubscriptionDelta: -leftover,
			Type:              domain.TransactionSubscriptionReset,
			Description:       fmt.Sprintf("subscription credits expired at cycle rollover (%d forfeited)", leftover),
			Reference:         &expiryRef,
		}
		if err := r.insertEntry(ctx, tx, expiry); err != nil {
			if isUniqueViolation(err) {
				return r.replayExisting(ctx, accountID, reference)
			}
			return nil, classify(err)
		}
		balance.SubscriptionCredits = 0
	}

	ref := reference
	grantEntry := &domain.CreditTransaction{
		ID:                uuid.New(),
		AccountID:         accountID,
		Amount:            grant,
		SubscriptionDelta: grant,
		Type:              domain.TransactionSubscriptionReset,
		Description:       fmt.Sprintf("subscription cycle grant of %d credits", grant),
		Reference:         &ref,
	}
	if err := r.insertEntry(ctx, tx, grantEntry); err != nil {
		if isUniqueViolation(err) {
			return r.replayExisting(ctx, accountID, reference)
		}
		return nil, classify(err)
	}

	balance.SubscriptionCredits += grant
	balance.LifetimeEarned += grant

	if err := r.writeBalance(ctx, tx, balance); err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}

	return &domain.BalanceResult{Balance: balance, Entry: grantEntry, Applied: true}, nil
}

// ListTransactions retrieves a page of ledger history, most recent first.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, opts domain.LedgerListOptions) ([]domain.CreditTransaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, account_id, amount, subscription_delta, purchased_delta, type, description, reference, created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	entries := make([]domain.CreditTransaction, 0, limit)
	for rows.Next() {
		var entry domain.CreditTransaction
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Amount,
			&entry.SubscriptionDelta,
			&entry.PurchasedDelta,
			&entry.Type,
			&entry.Description,
			&entry.Reference,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FindTransactionByReference retrieves one ledger entry by its idempotency key.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, accountID uuid.UUID, reference string) (*domain.CreditTransaction, error) {
	entry, err := r.findEntryByReference(ctx, r.db, accountID, reference)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, classify(err)
	}
	return entry, nil
}
