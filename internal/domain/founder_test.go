package domain

import "testing"

func TestTierForRank(t *testing.T) {
	tests := []struct {
		name           string
		rank           int
		wantName       string
		wantMultiplier float64
	}{
		{name: "first rank lands in top band", rank: 1, wantName: "founding_ten", wantMultiplier: 2.0},
		{name: "band boundary stays in top band", rank: 10, wantName: "founding_ten", wantMultiplier: 2.0},
		{name: "rank 11 drops to second band", rank: 11, wantName: "vanguard", wantMultiplier: 1.75},
		{name: "rank 30 stays in second band", rank: 30, wantName: "vanguard", wantMultiplier: 1.75},
		{name: "rank 31 drops to third band", rank: 31, wantName: "pioneer", wantMultiplier: 1.5},
		{name: "rank 60 stays in third band", rank: 60, wantName: "pioneer", wantMultiplier: 1.5},
		{name: "rank 61 drops to fourth band", rank: 61, wantName: "early_supporter", wantMultiplier: 1.25},
		{name: "last slot stays in fourth band", rank: 100, wantName: "early_supporter", wantMultiplier: 1.25},
		{name: "beyond the cap is default", rank: 101, wantName: "standard", wantMultiplier: 1.0},
		{name: "no rank is default", rank: 0, wantName: "standard", wantMultiplier: 1.0},
		{name: "negative rank is default", rank: -3, wantName: "standard", wantMultiplier: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := TierForRank(tt.rank)
			if tier.Name != tt.wantName {
				t.Fatalf("expected tier %q for rank %d, got %q", tt.wantName, tt.rank, tier.Name)
			}
			if tier.Multiplier != tt.wantMultiplier {
				t.Fatalf("expected multiplier %v for rank %d, got %v", tt.wantMultiplier, tt.rank, tier.Multiplier)
			}
		})
	}
}

func TestTierForRank_MonthlyGrantsDecreaseDownTheBands(t *testing.T) {
	ranks := []int{1, 11, 31, 61, 101}
	prev := int64(0)
	for i := len(ranks) - 1; i >= 0; i-- {
		grant := TierForRank(ranks[i]).MonthlyGrant
		if grant <= prev {
			t.Fatalf("expected monthly grant for rank %d to exceed lower band grant %d, got %d", ranks[i], prev, grant)
		}
		prev = grant
	}
}

func TestCategoryValid(t *testing.T) {
	if !CategoryDriver.Valid() || !CategoryProfessional.Valid() {
		t.Fatal("expected known categories to be valid")
	}
	if Category("vendor").Valid() {
		t.Fatal("expected unknown category to be invalid")
	}
}

func TestTransactionTypeValid(t *testing.T) {
	for _, typ := range []TransactionType{TransactionPurchase, TransactionSpend, TransactionRefund, TransactionBonus, TransactionSubscriptionReset} {
		if !typ.Valid() {
			t.Fatalf("expected %q to be valid", typ)
		}
	}
	if TransactionType("chargeback").Valid() {
		t.Fatal("expected unknown transaction type to be invalid")
	}
}
