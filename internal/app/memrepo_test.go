package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigmarket/credit-service/internal/domain"
	"github.com/gigmarket/credit-service/internal/store"
)

// memRepository is a mutex-serialized in-memory Repository with the same
// observable semantics as the Postgres implementation: atomic mutations,
// reference-keyed idempotency, subscription-pool-first debits and bounded
// founder slot allocation.
type memRepository struct {
	mu sync.Mutex

	balances map[uuid.UUID]*domain.CreditBalance
	entries  []domain.CreditTransaction
	byRef    map[string]int // accountID|reference -> index into entries

	ranks    map[uuid.UUID]domain.FounderRank
	counters map[domain.Category]int

	// conflictsRemaining makes the next N mutations fail with
	// ErrStorageConflict before succeeding.
	conflictsRemaining int
}

func newMemRepository() *memRepository {
	return &memRepository{
		balances: make(map[uuid.UUID]*domain.CreditBalance),
		byRef:    make(map[string]int),
		ranks:    make(map[uuid.UUID]domain.FounderRank),
		counters: make(map[domain.Category]int),
	}
}

func refKey(accountID uuid.UUID, reference string) string {
	return accountID.String() + "|" + reference
}

func (m *memRepository) ensureLocked(accountID uuid.UUID) *domain.CreditBalance {
	balance, ok := m.balances[accountID]
	if !ok {
		balance = &domain.CreditBalance{AccountID: accountID, UpdatedAt: time.Now().UTC()}
		m.balances[accountID] = balance
	}
	return balance
}

func (m *memRepository) EnsureBalance(ctx context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLocked(accountID)
	return nil
}

func (m *memRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return nil, store.ErrBalanceNotFound
	}
	copied := *balance
	return &copied, nil
}

func (m *memRepository) consumeConflictLocked() bool {
	if m.conflictsRemaining > 0 {
		m.conflictsRemaining--
		return true
	}
	return false
}

func (m *memRepository) appendEntryLocked(accountID uuid.UUID, amount, subDelta, purDelta int64, entryType domain.TransactionType, reference, description string) domain.CreditTransaction {
	entry := domain.CreditTransaction{
		ID:                uuid.New(),
		AccountID:         accountID,
		Amount:            amount,
		SubscriptionDelta: subDelta,
		PurchasedDelta:    purDelta,
		Type:              entryType,
		Description:       description,
		CreatedAt:         time.Now().UTC(),
	}
	if reference != "" {
		ref := reference
		entry.Reference = &ref
		m.byRef[refKey(accountID, reference)] = len(m.entries)
	}
	m.entries = append(m.entries, entry)
	return entry
}

func (m *memRepository) ApplyDelta(ctx context.Context, params store.ApplyDeltaParams) (*domain.BalanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consumeConflictLocked() {
		return nil, store.ErrStorageConflict
	}

	if params.Reference != "" {
		if idx, ok := m.byRef[refKey(params.AccountID, params.Reference)]; ok {
			balance := *m.ensureLocked(params.AccountID)
			existing := m.entries[idx]
			return &domain.BalanceResult{Balance: &balance, Entry: &existing, Applied: false}, nil
		}
	}

	balance := m.ensureLocked(params.AccountID)

	var subDelta, purDelta int64
	if params.Amount < 0 {
		cost := -params.Amount
		if balance.Total() < cost {
			return nil, store.ErrInsufficientFunds
		}
		fromSub := balance.SubscriptionCredits
		if fromSub > cost {
			fromSub = cost
		}
		subDelta = -fromSub
		purDelta = params.Amount - subDelta
	} else {
		if params.Type == domain.TransactionSubscriptionReset {
			subDelta = params.Amount
		} else {
			purDelta = params.Amount
		}
	}

	balance.SubscriptionCredits += subDelta
	balance.PurchasedCredits += purDelta
	if params.Amount > 0 {
		balance.LifetimeEarned += params.Amount
	}
	if params.Type == domain.TransactionSpend {
		balance.LifetimeSpent += -params.Amount
	}
	balance.UpdatedAt = time.Now().UTC()

	entry := m.appendEntryLocked(params.AccountID, params.Amount, subDelta, purDelta, params.Type, params.Reference, params.Description)
	copied := *balance
	return &domain.BalanceResult{Balance: &copied, Entry: &entry, Applied: true}, nil
}

func (m *memRepository) ResetSubscription(ctx context.Context, accountID uuid.UUID, grant int64, reference string) (*domain.BalanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consumeConflictLocked() {
		return nil, store.ErrStorageConflict
	}

	if idx, ok := m.byRef[refKey(accountID, reference)]; ok {
		balance := *m.ensureLocked(accountID)
		existing := m.entries[idx]
		return &domain.BalanceResult{Balance: &balance, Entry: &existing, Applied: false}, nil
	}

	balance := m.ensureLocked(accountID)
	if leftover := balance.SubscriptionCredits; leftover > 0 {
		m.appendEntryLocked(accountID, -leftover, -leftover, 0, domain.TransactionSubscriptionReset, reference+":expiry", "subscription credits expired at cycle end")
		balance.SubscriptionCredits = 0
	}
	balance.SubscriptionCredits += grant
	balance.LifetimeEarned += grant
	balance.UpdatedAt = time.Now().UTC()

	entry := m.appendEntryLocked(accountID, grant, grant, 0, domain.TransactionSubscriptionReset, reference, "subscription cycle grant")
	copied := *balance
	return &domain.BalanceResult{Balance: &copied, Entry: &entry, Applied: true}, nil
}

func (m *memRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, opts domain.LedgerListOptions) ([]domain.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.CreditTransaction
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].AccountID == accountID {
			out = append(out, m.entries[i])
		}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepository) FindTransactionByReference(ctx context.Context, accountID uuid.UUID, reference string) (*domain.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byRef[refKey(accountID, reference)]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	entry := m.entries[idx]
	return &entry, nil
}

func (m *memRepository) ClaimFounderSlot(ctx context.Context, accountID uuid.UUID, category domain.Category, cap int) (*domain.FounderRank, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consumeConflictLocked() {
		return nil, false, store.ErrStorageConflict
	}

	if existing, ok := m.ranks[accountID]; ok {
		copied := existing
		return &copied, true, nil
	}
	if m.counters[category] >= cap {
		return nil, false, store.ErrNoSlotsRemaining
	}
	m.counters[category]++
	rank := domain.FounderRank{
		AccountID:  accountID,
		Category:   category,
		RankNumber: m.counters[category],
		ClaimedAt:  time.Now().UTC(),
	}
	m.ranks[accountID] = rank
	copied := rank
	return &copied, false, nil
}

func (m *memRepository) GetFounderRank(ctx context.Context, accountID uuid.UUID) (*domain.FounderRank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rank, ok := m.ranks[accountID]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	copied := rank
	return &copied, nil
}

func (m *memRepository) GetFounderStatus(ctx context.Context, category domain.Category, cap int) (*domain.FounderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	claimed := m.counters[category]
	return &domain.FounderStatus{
		Category:       category,
		SlotsClaimed:   claimed,
		SlotsRemaining: cap - claimed,
	}, nil
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Exchange   string
	RoutingKey string
	Body       interface{}
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
