package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gigmarket/credit-service/internal/domain"
)

// stubRateLimiter returns a fixed count, or an error when failWith is set.
type stubRateLimiter struct {
	count    int
	failWith error
	calls    int
}

func (s *stubRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	s.calls++
	if s.failWith != nil {
		return 0, 0, s.failWith
	}
	return s.count, 30, nil
}

func TestChargeToolUsage_UnknownTool(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)

	_, err := svc.ChargeToolUsage(context.Background(), domain.ToolUsageRequest{
		AccountID: uuid.New(),
		ToolID:    "hologram_generator",
		JobID:     "job-1",
	})
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestChargeToolUsage_MissingJobID(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)

	_, err := svc.ChargeToolUsage(context.Background(), domain.ToolUsageRequest{
		AccountID: uuid.New(),
		ToolID:    "profile_photo",
	})
	if err == nil {
		t.Fatal("expected error for missing job id")
	}
}

func TestChargeToolUsage_RateLimitExceeded(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)
	accountID := uuid.New()
	seedCredits(t, svc, accountID, 0, 100)

	limiter := &stubRateLimiter{count: 61}
	svc.SetSpendRateLimiter(limiter, 60)

	_, err := svc.ChargeToolUsage(context.Background(), domain.ToolUsageRequest{
		AccountID: accountID,
		ToolID:    "profile_photo",
		JobID:     "job-1",
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	balance, err := svc.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if balance.Total() != 100 {
		t.Errorf("expected no debit while rate limited, got total %d", balance.Total())
	}
}

func TestChargeToolUsage_LimiterOutageDoesNotBlock(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)
	accountID := uuid.New()
	seedCredits(t, svc, accountID, 0, 100)

	limiter := &stubRateLimiter{failWith: errors.New("redis unreachable")}
	svc.SetSpendRateLimiter(limiter, 60)

	result, err := svc.ChargeToolUsage(context.Background(), domain.ToolUsageRequest{
		AccountID: accountID,
		ToolID:    "profile_photo",
		JobID:     "job-1",
	})
	if err != nil {
		t.Fatalf("expected charge to succeed despite limiter outage, got %v", err)
	}
	if !result.Applied {
		t.Fatal("expected debit to apply")
	}
	if limiter.calls != 1 {
		t.Errorf("expected limiter to be consulted once, got %d calls", limiter.calls)
	}
}

func TestToolCost_MatchesPricingTable(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)

	cost, ok := svc.ToolCost("promo_video")
	if !ok || cost != 25 {
		t.Fatalf("expected promo_video to cost 25, got %d (ok=%t)", cost, ok)
	}
	if _, ok := svc.ToolCost("unknown"); ok {
		t.Fatal("expected unknown tool to be rejected")
	}
}
