/**
 * @description
 * Message-bus entry points for the ledger core. External collaborators deliver
 * their events over the topic exchange: the payment gateway relay (purchase
 * completed, subscription renewed), the job execution subsystem (generation
 * failed) and the registration approval workflow (account approved). Handlers
 * return true to ack and drop, false to nack and requeue; malformed payloads are
 * always acked since redelivery cannot fix them, and every balance-touching
 * handler rides on the engine's reference-keyed idempotency so redelivered
 * events never double-apply.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gigmarket/credit-service/internal/domain"
	"github.com/gigmarket/credit-service/internal/store"
)

const consumerTimeout = 15 * time.Second

// EventConsumer handles ledger-relevant events from the message bus.
type EventConsumer struct {
	service *Service
}

// EventConsumer returns the bus-facing handler set backed by this service.
func (s *Service) EventConsumer() *EventConsumer {
	return &EventConsumer{service: s}
}

// HandlePurchaseCompleted credits a completed credit-pack purchase.
func (c *EventConsumer) HandlePurchaseCompleted(body []byte) bool {
	var event domain.PaymentCompletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=consumer msg=\"purchase payload unmarshal failed\" err=%v", err)
		return true
	}
	if event.EventID == "" || event.AccountID == uuid.Nil || event.Credits <= 0 {
		log.Printf("level=error component=consumer msg=\"purchase event missing fields\" event_id=%q account_id=%s credits=%d",
			event.EventID, event.AccountID, event.Credits)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	result, err := c.service.Purchase(ctx, event.AccountID, event.Credits, event.EventID)
	if err != nil {
		log.Printf("level=error component=consumer msg=\"purchase credit failed\" event_id=%s account_id=%s err=%v",
			event.EventID, event.AccountID, err)
		return false
	}
	if !result.Applied {
		log.Printf("level=info component=consumer msg=\"purchase event redelivered; no-op\" event_id=%s account_id=%s",
			event.EventID, event.AccountID)
	}
	return true
}

// HandleSubscriptionRenewed resets the subscription pool for a renewed cycle.
func (c *EventConsumer) HandleSubscriptionRenewed(body []byte) bool {
	var event domain.SubscriptionRenewedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=consumer msg=\"renewal payload unmarshal failed\" err=%v", err)
		return true
	}
	if event.EventID == "" || event.AccountID == uuid.Nil {
		log.Printf("level=error component=consumer msg=\"renewal event missing fields\" event_id=%q account_id=%s",
			event.EventID, event.AccountID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	if _, err := c.service.ResetSubscription(ctx, event.AccountID, event.Credits, event.EventID); err != nil {
		log.Printf("level=error component=consumer msg=\"subscription reset failed\" event_id=%s account_id=%s err=%v",
			event.EventID, event.AccountID, err)
		return false
	}
	return true
}

// HandleJobFailed refunds the debit recorded for a failed or cancelled job.
func (c *EventConsumer) HandleJobFailed(body []byte) bool {
	var event domain.JobFailedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=consumer msg=\"job failure payload unmarshal failed\" err=%v", err)
		return true
	}
	if event.JobID == "" || event.AccountID == uuid.Nil {
		log.Printf("level=error component=consumer msg=\"job failure event missing fields\" job_id=%q account_id=%s",
			event.JobID, event.AccountID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	_, err := c.service.Refund(ctx, event.AccountID, 0, event.Reason, event.JobID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			// Nothing was ever debited for this job; requeueing cannot change that.
			log.Printf("level=warn component=consumer msg=\"job failure with no recorded spend; dropping\" job_id=%s account_id=%s",
				event.JobID, event.AccountID)
			return true
		}
		log.Printf("level=error component=consumer msg=\"job refund failed\" job_id=%s account_id=%s err=%v",
			event.JobID, event.AccountID, err)
		return false
	}
	return true
}

// HandleRegistrationApproved claims a founder slot for a newly approved account.
func (c *EventConsumer) HandleRegistrationApproved(body []byte) bool {
	var event domain.RegistrationApprovedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=consumer msg=\"approval payload unmarshal failed\" err=%v", err)
		return true
	}
	if event.AccountID == uuid.Nil || !event.Category.Valid() {
		log.Printf("level=error component=consumer msg=\"approval event missing fields\" account_id=%s category=%q",
			event.AccountID, event.Category)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	result, err := c.service.ClaimFounderSlot(ctx, event.AccountID, event.Category)
	if err != nil {
		log.Printf("level=error component=consumer msg=\"founder claim failed\" account_id=%s category=%s err=%v",
			event.AccountID, event.Category, err)
		return false
	}
	log.Printf("level=info component=consumer msg=\"registration processed\" account_id=%s category=%s rank=%d tier=%s already_held=%t",
		event.AccountID, event.Category, result.Rank, result.Tier.Name, result.AlreadyHeld)
	return true
}
