/**
 * @description
 * Tool invocation gate: the primary consumer of the debit/credit engine. A
 * billable job must debit its cost here *before* the external provider is
 * invoked, and the job id becomes the idempotency key tying the spend to any
 * later refund. This ordering is what stops a failed job from permanently
 * consuming credits and stops a racing client from getting free work.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gigmarket/credit-service/internal/domain"
	"github.com/gigmarket/credit-service/internal/pricing"
)

const spendRateLimitScope = "tool_usage"

// ChargeToolUsage debits the tool's cost against the account, keyed on the job
// id. Retrying a timed-out charge with the same job id returns the recorded
// outcome instead of double-billing.
func (s *Service) ChargeToolUsage(ctx context.Context, req domain.ToolUsageRequest) (*domain.BalanceResult, error) {
	if req.ToolID == "" || req.JobID == "" {
		return nil, fmt.Errorf("%w: tool id and job id are required", ErrUnknownTool)
	}

	cost, ok := s.prices.CostFor(req.ToolID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, req.ToolID)
	}

	if s.rateLimiter != nil && s.spendRateLimitPerMin > 0 {
		count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, spendRateLimitScope, req.AccountID.String(), s.spendRateLimitPerMin, time.Minute)
		if err == nil && count > s.spendRateLimitPerMin {
			return nil, fmt.Errorf("%w: retry after %ds", ErrRateLimited, retryAfter)
		}
		// Limiter outages never block spending; the balance check is the guard
		// that matters.
	}

	description := fmt.Sprintf("tool usage %s (job %s)", req.ToolID, req.JobID)
	return s.ApplyDelta(ctx, req.AccountID, -cost, domain.TransactionSpend, refSpend(req.JobID), description)
}

// RefundToolUsage reverses a charge after the provider reported failure or the
// job was cancelled. See Service.Refund for the idempotency and pool rules.
func (s *Service) RefundToolUsage(ctx context.Context, req domain.RefundRequest) (*domain.BalanceResult, error) {
	return s.Refund(ctx, req.AccountID, req.OriginalCost, req.Reason, req.JobID)
}

// ToolCost exposes the face-value cost of a tool (both pools debit at face
// value; there is no purchased-pool surcharge).
func (s *Service) ToolCost(toolID string) (int64, bool) {
	return s.prices.CostFor(toolID)
}

// PricingEntries returns the read-only pricing surface.
func (s *Service) PricingEntries() []pricing.ToolCost {
	return s.prices.Entries()
}
