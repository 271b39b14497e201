package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gigmarket/credit-service/internal/domain"
)

func marshalEvent(t *testing.T, event interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return body
}

func TestHandlePurchaseCompleted_CreditsAndAcks(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)
	consumer := svc.EventConsumer()
	accountID := uuid.New()

	body := marshalEvent(t, domain.PaymentCompletedEvent{
		EventID:   "evt-1",
		AccountID: accountID,
		Credits:   50,
		Timestamp: time.Now().UTC(),
	})

	if !consumer.HandlePurchaseCompleted(body) {
		t.Fatal("expected purchase event to ack")
	}

	balance, err := svc.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if balance.PurchasedCredits != 50 {
		t.Errorf("expected 50 purchased credits, got %d", balance.PurchasedCredits)
	}

	// Redelivery acks without double-crediting.
	if !consumer.HandlePurchaseCompleted(body) {
		t.Fatal("expected redelivered purchase event to ack")
	}
	balance, _ = svc.GetBalance(context.Background(), accountID)
	if balance.PurchasedCredits != 50 {
		t.Errorf("expected redelivery to be a no-op, got %d", balance.PurchasedCredits)
	}
}

func TestHandlePurchaseCompleted_MalformedPayloadAcks(t *testing.T) {
	repo := newMemRepository()
	consumer := newTestService(t, repo).EventConsumer()

	if !consumer.HandlePurchaseCompleted([]byte("{not json")) {
		t.Fatal("expected malformed payload to ack; redelivery cannot fix it")
	}
	if !consumer.HandlePurchaseCompleted([]byte(`{"event_id":"","credits":10}`)) {
		t.Fatal("expected payload with missing fields to ack")
	}
}

func TestHandleSubscriptionRenewed_ResetsPool(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)
	consumer := svc.EventConsumer()
	accountID := uuid.New()
	seedCredits(t, svc, accountID, 40, 15)

	body := marshalEvent(t, domain.SubscriptionRenewedEvent{
		EventID:   "evt-renew-1",
		AccountID: accountID,
		Credits:   200,
		Timestamp: time.Now().UTC(),
	})

	if !consumer.HandleSubscriptionRenewed(body) {
		t.Fatal("expected renewal event to ack")
	}

	balance, err := svc.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if balance.SubscriptionCredits != 200 || balance.PurchasedCredits != 15 {
		t.Errorf("expected pools 200/15 after renewal, got %d/%d",
			balance.SubscriptionCredits, balance.PurchasedCredits)
	}
}

func TestHandleJobFailed_RefundsRecordedSpend(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)
	consumer := svc.EventConsumer()
	accountID := uuid.New()
	seedCredits(t, svc, accountID, 0, 30)

	if _, err := svc.ChargeToolUsage(context.Background(), domain.ToolUsageRequest{
		AccountID: accountID,
		ToolID:    "promo_video",
		JobID:     "job-x",
	}); err != nil {
		t.Fatalf("ChargeToolUsage returned error: %v", err)
	}

	body := marshalEvent(t, domain.JobFailedEvent{
		JobID:     "job-x",
		AccountID: accountID,
		Reason:    "provider error",
		Timestamp: time.Now().UTC(),
	})

	if !consumer.HandleJobFailed(body) {
		t.Fatal("expected failure event to ack")
	}

	balance, err := svc.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if balance.Total() != 30 {
		t.Errorf("expected full refund back to 30, got %d", balance.Total())
	}
}

func TestHandleJobFailed_NoRecordedSpendDrops(t *testing.T) {
	repo := newMemRepository()
	consumer := newTestService(t, repo).EventConsumer()

	body := marshalEvent(t, domain.JobFailedEvent{
		JobID:     "job-never-charged",
		AccountID: uuid.New(),
		Reason:    "cancelled",
		Timestamp: time.Now().UTC(),
	})

	if !consumer.HandleJobFailed(body) {
		t.Fatal("expected event without a recorded spend to ack and drop")
	}
}

func TestHandleRegistrationApproved_ClaimsSlot(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)
	consumer := svc.EventConsumer()
	accountID := uuid.New()

	body := marshalEvent(t, domain.RegistrationApprovedEvent{
		AccountID: accountID,
		Category:  domain.CategoryProfessional,
		Timestamp: time.Now().UTC(),
	})

	if !consumer.HandleRegistrationApproved(body) {
		t.Fatal("expected approval event to ack")
	}

	rank, err := svc.FounderRank(context.Background(), accountID)
	if err != nil {
		t.Fatalf("FounderRank returned error: %v", err)
	}
	if rank.Rank != 1 {
		t.Errorf("expected rank 1 assigned, got %d", rank.Rank)
	}

	if !consumer.HandleRegistrationApproved(body) {
		t.Fatal("expected redelivered approval to ack")
	}
	balance, err := svc.GetBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	want := domain.TierForRank(1).SignupBonus
	if balance.PurchasedCredits != want {
		t.Errorf("expected bonus granted exactly once (%d), got %d", want, balance.PurchasedCredits)
	}
}

func TestHandleRegistrationApproved_InvalidCategoryAcks(t *testing.T) {
	repo := newMemRepository()
	consumer := newTestService(t, repo).EventConsumer()

	body := marshalEvent(t, map[string]interface{}{
		"account_id": uuid.New().String(),
		"category":   "vendor",
	})

	if !consumer.HandleRegistrationApproved(body) {
		t.Fatal("expected unknown category to ack and drop")
	}
}
