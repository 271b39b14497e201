/**
 * @description
 * Founder slot domain model: account categories, the immutable rank record, and
 * tier banding. The tier is never stored; it is recomputed from the raw rank
 * number so band threshold changes only affect new assignments.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category partitions the founder slot pools. Each category has its own
// independent cap of FounderSlotCap ranks.
type Category string

const (
	CategoryDriver       Category = "driver"
	CategoryProfessional Category = "professional"
)

// FounderSlotCap is the hard limit of founder ranks per category. Once exhausted,
// new accounts fall to the default tier permanently.
const FounderSlotCap = 100

// Valid reports whether c is a known account category.
func (c Category) Valid() bool {
	return c == CategoryDriver || c == CategoryProfessional
}

// FounderRank records a permanent slot assignment. RankNumber is unique within a
// category and assigned strictly in claim order; it is never reassigned, even if
// the account later goes inactive.
type FounderRank struct {
	AccountID  uuid.UUID `json:"account_id"`
	Category   Category  `json:"category"`
	RankNumber int       `json:"rank_number"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

// Tier is a pricing band derived from a rank number.
type Tier struct {
	Name         string  `json:"name"`
	Multiplier   float64 `json:"multiplier"`    // permanent credit/pricing multiplier
	MonthlyGrant int64   `json:"monthly_grant"` // subscription credits granted per cycle
	SignupBonus  int64   `json:"signup_bonus"`  // one-time purchased-pool bonus on claim
}

// DefaultTier is what every account without a founder rank gets.
var DefaultTier = Tier{Name: "standard", Multiplier: 1.0, MonthlyGrant: 50, SignupBonus: 10}

var founderBands = []struct {
	maxRank int
	tier    Tier
}{
	{10, Tier{Name: "founding_ten", Multiplier: 2.0, MonthlyGrant: 500, SignupBonus: 100}},
	{30, Tier{Name: "vanguard", Multiplier: 1.75, MonthlyGrant: 300, SignupBonus: 75}},
	{60, Tier{Name: "pioneer", Multiplier: 1.5, MonthlyGrant: 200, SignupBonus: 50}},
	{FounderSlotCap, Tier{Name: "early_supporter", Multiplier: 1.25, MonthlyGrant: 100, SignupBonus: 25}},
}

// TierForRank maps a rank number to its band. Rank 0 (or anything outside
// 1..FounderSlotCap) means no founder slot and yields the default tier.
func TierForRank(rank int) Tier {
	if rank < 1 {
		return DefaultTier
	}
	for _, band := range founderBands {
		if rank <= band.maxRank {
			return band.tier
		}
	}
	return DefaultTier
}

// ClaimResult is returned by the founder slot allocator. For an account with no
// slot (pool exhausted) Rank is 0 and Tier is the default tier.
type ClaimResult struct {
	AccountID    uuid.UUID `json:"account_id"`
	Category     Category  `json:"category"`
	Rank         int       `json:"rank_number"`
	Tier         Tier      `json:"tier"`
	AlreadyHeld  bool      `json:"already_held"`  // true on idempotent re-claim
	BonusGranted bool      `json:"bonus_granted"` // false when the bonus was a replay
}

// FounderStatus reports slot consumption for one category.
type FounderStatus struct {
	Category       Category `json:"category"`
	SlotsClaimed   int      `json:"slots_claimed"`
	SlotsRemaining int      `json:"slots_remaining"`
}
