/**
 * @description
 * This file contains the core business logic of the credit-service. The `Service`
 * struct is the debit/credit engine: it owns reference namespacing, the bounded
 * retry policy around transient storage conflicts, and the fire-and-forget ledger
 * event publishing. All atomicity lives in the repository; the service composes
 * operations and never holds work across a database transaction boundary.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: Account identifiers.
 * - internal/domain, internal/pricing, internal/store: Models, reference data, persistence.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/gigmarket/credit-service/internal/domain"
	"github.com/gigmarket/credit-service/internal/pricing"
	"github.com/gigmarket/credit-service/internal/store"
	"github.com/gigmarket/credit-service/pkg/rabbitmq"
)

var (
	ErrUnknownTool     = errors.New("unknown tool id")
	ErrInvalidCategory = errors.New("invalid account category")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrRateLimited     = errors.New("rate limited")
)

const (
	conflictRetryAttempts = 3
	conflictRetryBaseWait = 25 * time.Millisecond

	ledgerExchange = "gigmarket.events"
)

// Service provides the core business logic for the credit ledger.
type Service struct {
	repo          store.Repository
	prices        *pricing.Table
	eventProducer rabbitmq.Publisher

	rateLimiter          RateLimiter
	spendRateLimitPerMin int
}

// RateLimiter is the distributed limiter used on the spend gate. A nil limiter
// disables limiting.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// NewService creates a new credit service instance.
func NewService(repo store.Repository, prices *pricing.Table, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:          repo,
		prices:        prices,
		eventProducer: producer,
	}
}

// SetSpendRateLimiter enables distributed rate limiting on the tool gate.
func (s *Service) SetSpendRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.spendRateLimitPerMin = perMinute
}

// Reference namespacing: callers pass raw external ids (job id, payment session
// id); the engine scopes them per operation so a refund keyed on a job id cannot
// collide with the spend keyed on the same job id.
func refSpend(jobID string) string        { return "spend:" + jobID }
func refRefund(jobID string) string       { return "refund:" + jobID }
func refPurchase(sessionID string) string { return "purchase:" + sessionID }
func refBonus(accountID uuid.UUID) string { return "bonus:" + accountID.String() }
func refSubGrant(eventID string) string   { return "subgrant:" + eventID }

// withConflictRetry runs one repository mutation, retrying transient storage
// conflicts with jittered backoff. Anything else surfaces immediately; the
// repository guarantees a failed attempt mutated nothing.
func (s *Service) withConflictRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < conflictRetryAttempts; attempt++ {
		if attempt > 0 {
			wait := conflictRetryBaseWait<<(attempt-1) + time.Duration(rand.Int63n(int64(conflictRetryBaseWait)))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrStorageConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (s *Service) applyWithRetry(ctx context.Context, op func() (*domain.BalanceResult, error)) (*domain.BalanceResult, error) {
	var result *domain.BalanceResult
	err := s.withConflictRetry(ctx, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyDelta is the raw engine entry point: one signed balance change, atomic
// with its ledger append, idempotent on reference.
func (s *Service) ApplyDelta(ctx context.Context, accountID uuid.UUID, amount int64, entryType domain.TransactionType, reference, description string) (*domain.BalanceResult, error) {
	result, err := s.applyWithRetry(ctx, func() (*domain.BalanceResult, error) {
		return s.repo.ApplyDelta(ctx, store.ApplyDeltaParams{
			AccountID:   accountID,
			Amount:      amount,
			Type:        entryType,
			Reference:   reference,
			Description: description,
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Applied {
		s.publishLedgerEvent(ctx, result)
	}
	return result, nil
}

// Purchase credits the purchased pool for a completed credit-pack charge.
// Redelivery of the same payment session id is a no-op.
func (s *Service) Purchase(ctx context.Context, accountID uuid.UUID, amount int64, sessionID string) (*domain.BalanceResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: purchase requires a payment session id", store.ErrInvalidAmount)
	}
	description := fmt.Sprintf("credit pack purchase of %d credits", amount)
	return s.ApplyDelta(ctx, accountID, amount, domain.TransactionPurchase, refPurchase(sessionID), description)
}

// Refund reverses a prior tool charge after the job failed or was cancelled.
// The credit always lands in the purchased pool regardless of the original
// split: purchased credits never expire, so this is strictly more generous and
// avoids reconstructing which pool the debit drained. When originalCost is zero
// the recorded spend for the job is used.
func (s *Service) Refund(ctx context.Context, accountID uuid.UUID, originalCost int64, reason, jobID string) (*domain.BalanceResult, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: refund requires a job id", store.ErrInvalidAmount)
	}
	if originalCost < 0 {
		return nil, ErrInvalidAmount
	}
	if originalCost == 0 {
		spend, err := s.repo.FindTransactionByReference(ctx, accountID, refSpend(jobID))
		if err != nil {
			if errors.Is(err, store.ErrTransactionNotFound) {
				return nil, fmt.Errorf("no recorded spend for job %s: %w", jobID, err)
			}
			return nil, err
		}
		originalCost = -spend.Amount
	}

	description := fmt.Sprintf("refund for failed job %s: %s", jobID, reason)
	return s.ApplyDelta(ctx, accountID, originalCost, domain.TransactionRefund, refRefund(jobID), description)
}

// ResetSubscription expires leftover subscription credits and grants the new
// cycle amount. When the renewal event carries no amount, the grant falls back
// to the account's founder tier.
func (s *Service) ResetSubscription(ctx context.Context, accountID uuid.UUID, grant int64, eventID string) (*domain.BalanceResult, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: subscription reset requires an event id", store.ErrInvalidAmount)
	}
	if grant <= 0 {
		tier, err := s.tierFor(ctx, accountID)
		if err != nil {
			return nil, err
		}
		grant = tier.MonthlyGrant
	}
	result, err := s.applyWithRetry(ctx, func() (*domain.BalanceResult, error) {
		return s.repo.ResetSubscription(ctx, accountID, grant, refSubGrant(eventID))
	})
	if err != nil {
		return nil, err
	}
	if result.Applied {
		s.publishLedgerEvent(ctx, result)
	}
	return result, nil
}

// GetBalance returns the current balance, provisioning the zeroed row for
// accounts the ledger has never touched.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.CreditBalance, error) {
	balance, err := s.repo.GetBalance(ctx, accountID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, store.ErrBalanceNotFound) {
		return nil, err
	}
	if err := s.repo.EnsureBalance(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.GetBalance(ctx, accountID)
}

// ListTransactions returns a page of ledger history, most recent first.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, opts domain.LedgerListOptions) ([]domain.CreditTransaction, error) {
	return s.repo.ListTransactions(ctx, accountID, opts)
}

func (s *Service) tierFor(ctx context.Context, accountID uuid.UUID) (domain.Tier, error) {
	rank, err := s.repo.GetFounderRank(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return domain.DefaultTier, nil
		}
		return domain.Tier{}, err
	}
	return domain.TierForRank(rank.RankNumber), nil
}

// publishLedgerEvent emits a credit.* event for downstream notification. Failures
// are logged and swallowed: the ledger write already committed, and notification
// is explicitly fire-and-forget.
func (s *Service) publishLedgerEvent(ctx context.Context, result *domain.BalanceResult) {
	if s.eventProducer == nil || result.Entry == nil {
		return
	}
	event := domain.LedgerEvent{
		AccountID: result.Entry.AccountID,
		Amount:    result.Entry.Amount,
		Type:      result.Entry.Type,
		NewTotal:  result.Balance.Total(),
		Timestamp: time.Now().UTC(),
	}
	routingKey := "credit." + string(result.Entry.Type)
	if err := s.eventProducer.Publish(ctx, ledgerExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"ledger event publish failed\" account_id=%s type=%s err=%v",
			event.AccountID, event.Type, err)
	}
}
