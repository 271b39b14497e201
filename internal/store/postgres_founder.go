/**
 * @description
 * Founder slot persistence. The claim is a single database transaction built
 * around an atomic bounded increment:
 *
 *   UPDATE founder_slot_counters
 *   SET claimed = claimed + 1
 *   WHERE category = $1 AND claimed < cap
 *   RETURNING claimed
 *
 * The row lock taken by the UPDATE serializes concurrent claims, so at most cap
 * ranks are ever issued per category and each rank value goes to exactly one
 * account. UNIQUE(category, rank_number) and the account primary key on
 * founder_ranks backstop the invariant.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/gigmarket/credit-service/internal/domain"
)

func (r *PostgresRepository) findRank(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, accountID uuid.UUID) (*domain.FounderRank, error) {
	var rank domain.FounderRank
	query := `
		SELECT account_id, category, rank_number, claimed_at
		FROM founder_ranks
		WHERE account_id = $1
	`
	err := q.QueryRow(ctx, query, accountID).Scan(&rank.AccountID, &rank.Category, &rank.RankNumber, &rank.ClaimedAt)
	if err != nil {
		return nil, err
	}
	return &rank, nil
}

// ClaimFounderSlot assigns the next free rank in the category, or returns the
// account's existing rank. Exhausted pools yield ErrNoSlotsRemaining.
func (r *PostgresRepository) ClaimFounderSlot(ctx context.Context, accountID uuid.UUID, category domain.Category, cap int) (*domain.FounderRank, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, classify(err)
	}
	defer tx.Rollback(ctx)

	// Approval retries must not consume a second slot.
	if existing, err := r.findRank(ctx, tx, accountID); err == nil {
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return nil, false, classify(commitErr)
		}
		return existing, true, nil
	} else if err != pgx.ErrNoRows {
		return nil, false, classify(err)
	}

	// Counter rows are seeded lazily so a fresh database works without fixtures.
	seed := `
		INSERT INTO founder_slot_counters (category, claimed)
		VALUES ($1, 0)
		ON CONFLICT (category) DO NOTHING
	`
	if _, err := tx.Exec(ctx, seed, category); err != nil {
		return nil, false, classify(err)
	}

	var rankNumber int
	increment := `
		UPDATE founder_slot_counters
		SET claimed = claimed + 1, updated_at = NOW()
		WHERE category = $1 AND claimed < $2
		RETURNING claimed
	`
	if err := tx.QueryRow(ctx, increment, category, cap).Scan(&rankNumber); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, ErrNoSlotsRemaining
		}
		return nil, false, classify(err)
	}

	rank := &domain.FounderRank{
		AccountID:  accountID,
		Category:   category,
		RankNumber: rankNumber,
	}
	insert := `
		INSERT INTO founder_ranks (account_id, category, rank_number)
		VALUES ($1, $2, $3)
		RETURNING claimed_at
	`
	if err := tx.QueryRow(ctx, insert, accountID, category, rankNumber).Scan(&rank.ClaimedAt); err != nil {
		if isUniqueViolation(err) {
			// Lost a race on the account key; the winner's rank is authoritative.
			if existing, findErr := r.GetFounderRank(ctx, accountID); findErr == nil {
				return existing, true, nil
			}
			return nil, false, classify(err)
		}
		return nil, false, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, classify(err)
	}
	return rank, false, nil
}

// GetFounderRank retrieves the permanent rank assignment for an account.
// Accounts without a slot yield ErrTransactionNotFound.
func (r *PostgresRepository) GetFounderRank(ctx context.Context, accountID uuid.UUID) (*domain.FounderRank, error) {
	rank, err := r.findRank(ctx, r.db, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, classify(err)
	}
	return rank, nil
}

// GetFounderStatus reports slot consumption for one category.
func (r *PostgresRepository) GetFounderStatus(ctx context.Context, category domain.Category, cap int) (*domain.FounderStatus, error) {
	var claimed int
	query := `SELECT claimed FROM founder_slot_counters WHERE category = $1`
	err := r.db.QueryRow(ctx, query, category).Scan(&claimed)
	if err != nil && err != pgx.ErrNoRows {
		return nil, classify(err)
	}

	remaining := cap - claimed
	if remaining < 0 {
		remaining = 0
	}
	return &domain.FounderStatus{
		Category:       category,
		SlotsClaimed:   claimed,
		SlotsRemaining: remaining,
	}, nil
}
