package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
	"github.com/Apsistec/fitos-app-sub002/internal/repository"
)

type renewableGrantStore interface {
	Create(ctx context.Context, input repository.CreateGrantInput) (*models.CreditGrant, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.CreditGrant, error)
	RefreshCycle(ctx context.Context, subscriptionID string, allotment *int, cycleEnd time.Time) (*models.CreditGrant, error)
}

// ContractService enrolls clients into recurring-billing contracts and
// applies cycle renewals posted back by the billing collaborator. Enrollment
// never participates in checkout concurrency; it only feeds the ledger.
type ContractService struct {
	offeringRepo offeringReader
	grantRepo    renewableGrantStore
	billing      BillingGateway
}

func NewContractService(offeringRepo *repository.OfferingRepository, grantRepo *repository.GrantRepository, billing BillingGateway) *ContractService {
	return &ContractService{
		offeringRepo: offeringRepo,
		grantRepo:    grantRepo,
		billing:      billing,
	}
}

// Enroll checks every precondition before any mutation: the offering must
// be an active contract and the client must have a payment method on file.
// Only then is the subscription created and the grant seeded.
func (s *ContractService) Enroll(ctx context.Context, clientID, offeringID int64) (*models.CreditGrant, error) {
	if clientID <= 0 {
		return nil, ErrInvalidInput
	}

	offering, err := s.offeringRepo.GetByID(ctx, offeringID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferingNotFound
		}
		return nil, err
	}
	if offering.Kind != models.OfferingKindContract {
		return nil, ErrNotAContract
	}
	if !offering.IsActive {
		return nil, ErrOfferingArchived
	}

	hasMethod, err := s.billing.HasPaymentMethod(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !hasMethod {
		return nil, ErrNoPaymentMethod
	}

	now := time.Now().UTC()
	interval := models.AutopayIntervalMonthly
	if offering.AutopayInterval != nil {
		interval = *offering.AutopayInterval
	}

	subscription, err := s.billing.CreateSubscription(ctx, CreateSubscriptionInput{
		ClientID:        clientID,
		OfferingID:      offering.ID,
		Interval:        string(interval),
		AmountCents:     offering.PriceCents,
		FirstCycleStart: now,
	})
	if err != nil {
		return nil, err
	}

	terms := deriveGrantTerms(offering, now, true)
	return s.grantRepo.Create(ctx, repository.CreateGrantInput{
		ClientID:          clientID,
		TrainerID:         offering.TrainerID,
		OfferingID:        offering.ID,
		SubscriptionID:    &subscription.ID,
		SessionsRemaining: terms.SessionsRemaining,
		SessionsTotal:     terms.SessionsTotal,
		ActivatedAt:       terms.ActivatedAt,
		ExpiresAt:         terms.ExpiresAt,
	})
}

// ApplyRenewal refreshes the grant behind a subscription for a new billing
// cycle: the offering's per-cycle allotment becomes the usable session
// count (nil keeps the grant unlimited) and the expiry rolls to the cycle
// end.
func (s *ContractService) ApplyRenewal(ctx context.Context, notice models.RenewalNotice) (*models.CreditGrant, error) {
	if notice.SubscriptionID == "" || notice.ClientID <= 0 || !notice.CycleEnd.After(notice.CycleStart) {
		return nil, ErrInvalidInput
	}

	grant, err := s.grantRepo.GetBySubscriptionID(ctx, notice.SubscriptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	// The notice must name the client the subscription belongs to; a
	// mismatch is indistinguishable from an unknown subscription.
	if grant.ClientID != notice.ClientID {
		return nil, ErrGrantNotFound
	}

	offering, err := s.offeringRepo.GetByID(ctx, grant.OfferingID)
	if err != nil {
		return nil, err
	}

	return s.grantRepo.RefreshCycle(ctx, notice.SubscriptionID, offering.AutopaySessionCount, notice.CycleEnd)
}
