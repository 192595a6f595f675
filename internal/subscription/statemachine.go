package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
)

// StateMachine consumes verified payment outcomes and drives subscription
// status transitions (C10), per the table in spec §4.10.
type StateMachine struct {
	Subscriptions ports.SubscriptionRepository
	Plans         ports.PlanRepository
	Events        ports.SubscriptionEventRepository
	Logger        ports.Logger
}

// NewStateMachine constructs a StateMachine over its repository ports.
func NewStateMachine(subs ports.SubscriptionRepository, plans ports.PlanRepository, events ports.SubscriptionEventRepository, logger ports.Logger) *StateMachine {
	return &StateMachine{Subscriptions: subs, Plans: plans, Events: events, Logger: logger}
}

// Apply transitions the subscription named by outcome.SubscriptionID per
// the §4.10 table and appends one SubscriptionEvent recording whatever
// happened, including the "unchanged" cases. Idempotency against duplicate
// delivery is the inbox's job (C13), not this function's — Apply assumes
// it is only ever invoked once per logical event.
func (sm *StateMachine) Apply(ctx context.Context, outcome PaymentOutcome) error {
	if outcome.Action == "" {
		return fmt.Errorf("%w: payment outcome missing action", domain.ErrMissingActionOnWire)
	}

	sub, err := sm.Subscriptions.GetByID(ctx, outcome.SubscriptionID)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", outcome.SubscriptionID, err)
	}

	eventType := "payment_" + outcome.Status
	oldPlanID := sub.PlanID

	if sub.IsTerminal() {
		return sm.recordEvent(ctx, sub, outcome, eventType, oldPlanID, sub.PlanID)
	}

	plan, err := sm.Plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return fmt.Errorf("load plan %d: %w", sub.PlanID, err)
	}

	switch {
	case outcome.Status == PaymentStatusFailed:
		if err := sm.applyFailure(sub); err != nil {
			return err
		}

	case outcome.Status == PaymentStatusSuccess:
		newPlan, err := sm.applySuccess(ctx, sub, plan, outcome)
		if err != nil {
			return err
		}
		if newPlan != nil {
			plan = newPlan
		}

	default:
		return fmt.Errorf("%w: unrecognized payment status %q", domain.ErrUnexpectedSubscriptionState, outcome.Status)
	}

	if err := sm.Subscriptions.Update(ctx, sub); err != nil {
		return fmt.Errorf("persist subscription %s: %w", sub.ID, err)
	}

	return sm.recordEvent(ctx, sub, outcome, eventType, oldPlanID, sub.PlanID)
}

// applyFailure implements the two failed-status rows of the §4.10 table.
func (sm *StateMachine) applyFailure(sub *domain.Subscription) error {
	switch sub.Status {
	case domain.SubscriptionStatusPending:
		// Stays pending; the payment-initiation retry is a queue-level
		// concern driven by the worker's own backoff, not a state change
		// here.
		return nil
	case domain.SubscriptionStatusActive, domain.SubscriptionStatusTrial:
		sub.Status = domain.SubscriptionStatusRevoked
		return nil
	default:
		return fmt.Errorf("%w: failed event against status %s", domain.ErrUnexpectedSubscriptionState, sub.Status)
	}
}

// applySuccess implements the success-status rows of the §4.10 table. It
// returns the plan to use going forward when a renewal-plan switch
// happened, otherwise nil.
func (sm *StateMachine) applySuccess(ctx context.Context, sub *domain.Subscription, plan *domain.Plan, outcome PaymentOutcome) (*domain.Plan, error) {
	switch sub.Status {
	case domain.SubscriptionStatusPending:
		if plan.IsTrialPlan() {
			sub.Status = domain.SubscriptionStatusTrial
		} else {
			sub.Status = domain.SubscriptionStatusActive
		}
		return nil, nil

	case domain.SubscriptionStatusPastDue:
		sub.Status = domain.SubscriptionStatusActive
		return nil, nil

	case domain.SubscriptionStatusActive:
		sub.Status = domain.SubscriptionStatusActive
		sub.ExtendCycle(plan.Cycle)
		return nil, nil

	case domain.SubscriptionStatusTrial:
		if outcome.Action != ActionRenewal {
			return nil, fmt.Errorf("%w: trial subscription received non-renewal success without a prior trial-activation transition", domain.ErrUnexpectedSubscriptionState)
		}
		if plan.Features.RenewalPlanID != nil {
			renewalPlan, err := sm.Plans.GetByID(ctx, *plan.Features.RenewalPlanID)
			if err != nil {
				return nil, fmt.Errorf("load renewal plan %d: %w", *plan.Features.RenewalPlanID, err)
			}
			sub.PlanID = renewalPlan.ID
			sub.Status = domain.SubscriptionStatusActive
			sub.ExtendCycle(renewalPlan.Cycle)
			return renewalPlan, nil
		}
		sub.Status = domain.SubscriptionStatusTrial
		sub.ExtendCycle(plan.Cycle)
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: success event against status %s", domain.ErrUnexpectedSubscriptionState, sub.Status)
	}
}

func (sm *StateMachine) recordEvent(ctx context.Context, sub *domain.Subscription, outcome PaymentOutcome, eventType string, oldPlanID, newPlanID int) error {
	ev := &domain.SubscriptionEvent{
		SubscriptionID: sub.ID,
		EventType:      eventType,
		TransactionID:  &outcome.TransactionID,
		EffectiveAt:    effectiveAt(outcome),
		Metadata: map[string]interface{}{
			"action": outcome.Action,
			"amount": outcome.Amount.String(),
		},
	}
	if oldPlanID != newPlanID {
		ev.OldPlanID = &oldPlanID
		ev.NewPlanID = &newPlanID
	}
	if err := sm.Events.Append(ctx, ev); err != nil {
		return fmt.Errorf("append subscription event: %w", err)
	}
	return nil
}

func effectiveAt(outcome PaymentOutcome) time.Time {
	if outcome.OccurredAt.IsZero() {
		return time.Now().UTC()
	}
	return outcome.OccurredAt.UTC()
}
