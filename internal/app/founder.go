/**
 * @description
 * Founder slot allocation logic. A claim is triggered exactly once per approved
 * account by the registration workflow, but retries of that trigger are normal,
 * so both the slot assignment and the signup bonus are idempotent: the slot via
 * the account key in the ranks table, the bonus via a reference derived from the
 * account id.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/gigmarket/credit-service/internal/domain"
	"github.com/gigmarket/credit-service/internal/store"
)

// ClaimFounderSlot assigns the next founder rank in the category and grants the
// tier's signup bonus. Slot exhaustion is not an error to callers: the account
// proceeds on the default tier, still receiving the default signup bonus.
func (s *Service) ClaimFounderSlot(ctx context.Context, accountID uuid.UUID, category domain.Category) (*domain.ClaimResult, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	result := &domain.ClaimResult{
		AccountID: accountID,
		Category:  category,
		Tier:      domain.DefaultTier,
	}

	err := s.withConflictRetry(ctx, func() error {
		rank, alreadyHeld, err := s.repo.ClaimFounderSlot(ctx, accountID, category, domain.FounderSlotCap)
		if err != nil {
			if errors.Is(err, store.ErrNoSlotsRemaining) {
				log.Printf("level=info component=founder msg=\"slot pool exhausted; default tier assigned\" account_id=%s category=%s",
					accountID, category)
				return nil
			}
			return err
		}
		result.Rank = rank.RankNumber
		result.Tier = domain.TierForRank(rank.RankNumber)
		result.AlreadyHeld = alreadyHeld
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The bonus reference is derived from the account id, so approval retries
	// (and re-claims after pool exhaustion) can never double-grant.
	bonus := result.Tier.SignupBonus
	if bonus > 0 {
		description := fmt.Sprintf("signup bonus (%s tier)", result.Tier.Name)
		bonusResult, err := s.ApplyDelta(ctx, accountID, bonus, domain.TransactionBonus, refBonus(accountID), description)
		if err != nil {
			return nil, fmt.Errorf("signup bonus grant failed: %w", err)
		}
		result.BonusGranted = bonusResult.Applied
	}

	return result, nil
}

// FounderStatus reports remaining slots for a category.
func (s *Service) FounderStatus(ctx context.Context, category domain.Category) (*domain.FounderStatus, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return s.repo.GetFounderStatus(ctx, category, domain.FounderSlotCap)
}

// FounderRank returns the claim state for one account: its permanent rank (zero
// when unranked) and the derived tier.
func (s *Service) FounderRank(ctx context.Context, accountID uuid.UUID) (*domain.ClaimResult, error) {
	result := &domain.ClaimResult{AccountID: accountID, Tier: domain.DefaultTier}
	rank, err := s.repo.GetFounderRank(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return result, nil
		}
		return nil, err
	}
	result.Category = rank.Category
	result.Rank = rank.RankNumber
	result.Tier = domain.TierForRank(rank.RankNumber)
	result.AlreadyHeld = true
	return result, nil
}
