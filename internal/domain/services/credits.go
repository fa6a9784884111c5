package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/contentpilot-ai/contentpilot/internal/dispatch"
	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
)

type subscriptionStore interface {
	FindByOwnerID(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error)
	CreditsAvailable(ctx context.Context, ownerID uuid.UUID) (int, error)
	ConsumeCredit(ctx context.Context, ownerID uuid.UUID) (bool, error)
	GrantCredits(ctx context.Context, ownerID uuid.UUID, amount int) error
}

type schedulePauser interface {
	Deactivate(ctx context.Context, id uuid.UUID, reason string) error
}

// CreditService implements the dispatch credit gate. The balance is checked
// before generation and decremented only after a successful one, so a failed
// generation never costs a credit.
type CreditService struct {
	subscriptions subscriptionStore
	schedules     schedulePauser
}

func NewCreditService(subscriptions subscriptionStore, schedules schedulePauser) *CreditService {
	return &CreditService{
		subscriptions: subscriptions,
		schedules:     schedules,
	}
}

// Reserve rejects the dispatch when the owner's balance is empty. The
// schedule is paused on denial so the delay queue stops re-firing it; topping
// up and resuming re-arms it.
func (s *CreditService) Reserve(ctx context.Context, schedule *models.Schedule) error {
	balance, err := s.subscriptions.CreditsAvailable(ctx, schedule.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to read credit balance: %w", err)
	}
	if balance > 0 {
		return nil
	}

	if err := s.schedules.Deactivate(ctx, schedule.ID, "credits exhausted"); err != nil {
		log.Error().Err(err).
			Str("schedule_id", schedule.ID.String()).
			Msg("Failed to pause schedule on credit denial")
	}

	log.Warn().
		Str("schedule_id", schedule.ID.String()).
		Str("owner_id", schedule.OwnerID.String()).
		Msg("Dispatch denied, credit balance exhausted")

	return dispatch.ErrCreditsExhausted
}

// Commit consumes one credit and returns the remaining balance. A conditional
// decrement keeps concurrent dispatches from driving the balance negative;
// losing that race after a successful generation is booked as zero remaining,
// never a failed dispatch.
func (s *CreditService) Commit(ctx context.Context, schedule *models.Schedule) (int, error) {
	consumed, err := s.subscriptions.ConsumeCredit(ctx, schedule.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("failed to consume credit: %w", err)
	}
	if !consumed {
		log.Warn().
			Str("owner_id", schedule.OwnerID.String()).
			Msg("Credit consumption raced to an empty balance")
		return 0, nil
	}

	remaining, err := s.subscriptions.CreditsAvailable(ctx, schedule.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("failed to read credit balance: %w", err)
	}

	if remaining == 0 {
		if err := s.schedules.Deactivate(ctx, schedule.ID, "credits exhausted"); err != nil {
			log.Error().Err(err).
				Str("schedule_id", schedule.ID.String()).
				Msg("Failed to pause schedule on exhausted balance")
		}
		log.Info().
			Str("owner_id", schedule.OwnerID.String()).
			Str("schedule_id", schedule.ID.String()).
			Msg("Credit balance exhausted, schedule paused")
	}

	return remaining, nil
}

// Balance returns the owner's current credit balance.
func (s *CreditService) Balance(ctx context.Context, ownerID uuid.UUID) (int, error) {
	return s.subscriptions.CreditsAvailable(ctx, ownerID)
}

// RolloverPeriod resets an owner's balance to the plan allowance at the start
// of a billing period.
func (s *CreditService) RolloverPeriod(ctx context.Context, ownerID uuid.UUID, monthlyCredits int) error {
	sub, err := s.subscriptions.FindByOwnerID(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	delta := monthlyCredits - sub.CreditsAvailable
	if delta <= 0 {
		return nil
	}
	return s.subscriptions.GrantCredits(ctx, ownerID, delta)
}
